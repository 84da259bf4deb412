package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/holiman/uint256"

	"jidchain/cmd/internal/passphrase"
	"jidchain/config"
	"jidchain/core"
	"jidchain/core/genesis"
	"jidchain/crypto"
	"jidchain/eventlog"
	"jidchain/explorer"
	"jidchain/native/jid"
	"jidchain/observability/logging"
	telemetry "jidchain/observability/otel"
	"jidchain/rpc"
	"jidchain/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "jidd: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	env := strings.TrimSpace(os.Getenv("JID_ENV"))
	if env == "" {
		env = cfg.Node.Env
	}
	logger, logCloser := logging.SetupWithOptions("jidd", env, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: "jidd",
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     cfg.Telemetry.Headers,
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	db, err := openDatabase(cfg.Node)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	mode, err := jid.ParseVerificationMode(cfg.Registry.VerificationMode)
	if err != nil {
		return err
	}
	proc, err := core.NewProcessor(db, core.ProcessorOptions{VerificationMode: mode, Logger: logger})
	if err != nil {
		return fmt.Errorf("open processor: %w", err)
	}
	logger.Info("proof verification", slog.String("mode", string(mode)))

	nodeKey, err := loadOrCreateNodeKey(cfg.Node.KeystorePath, passphrase.NewSource(passphrase.DefaultEnvVar, "node keystore"), logger)
	if err != nil {
		return fmt.Errorf("node key: %w", err)
	}
	admin, ok, err := cfg.Registry.AdminAccount()
	if err != nil {
		return fmt.Errorf("registry admin: %w", err)
	}
	if !ok {
		admin = nodeKey.Account()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Events.JournalPath), 0o755); err != nil {
		return fmt.Errorf("prepare journal directory: %w", err)
	}
	journal, err := eventlog.Open(cfg.Events.JournalPath, nil)
	if err != nil {
		return fmt.Errorf("open event journal: %w", err)
	}
	defer journal.Close()
	proc.Subscribe(journal)

	var indexer *explorer.Indexer
	if cfg.Explorer.Enabled {
		gormDB, err := explorer.Open(cfg.Explorer.Driver, cfg.Explorer.DSN)
		if err != nil {
			return fmt.Errorf("open explorer: %w", err)
		}
		indexer = explorer.NewIndexer(gormDB)
		proc.Subscribe(indexer)
	}

	if path := strings.TrimSpace(cfg.Registry.GenesisFile); path != "" {
		spec, err := genesis.LoadGenesisSpec(path)
		if err != nil {
			return err
		}
		admin = spec.AdminAccount()
		if err := genesis.Apply(ctx, proc, spec); err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
	} else if err := bootstrap(ctx, proc, cfg.Registry, admin); err != nil {
		return err
	}

	var faucetAmount *uint256.Int
	if cfg.RPC.EnableFaucet {
		if faucetAmount, err = cfg.RPC.Faucet(); err != nil {
			return fmt.Errorf("faucet amount: %w", err)
		}
		if faucetAmount != nil {
			logger.Warn("development faucet enabled", slog.String("amount", faucetAmount.Dec()))
		}
	}
	secret := cfg.RPC.Secret()
	if secret == "" {
		logger.Warn("rpc auth secret not configured; only self-signed tokens are accepted",
			slog.String("env", cfg.RPC.AuthSecretEnv))
	}
	server := rpc.NewServer(proc, rpc.ServerConfig{
		Auth: rpc.AuthConfig{
			Secret:          secret,
			Issuer:          cfg.RPC.Issuer,
			Audience:        cfg.RPC.Audience,
			AllowSelfSigned: true,
			Logger:          logger,
		},
		RateLimit: rpc.RateLimit{
			RequestsPerMinute: float64(cfg.RPC.RequestsPerMinute),
			Burst:             cfg.RPC.Burst,
		},
		Journal:           journal,
		Explorer:          indexer,
		FaucetAmount:      faucetAmount,
		Logger:            logger,
		ReadHeaderTimeout: time.Duration(cfg.RPC.ReadHeaderTimeout) * time.Second,
	})

	logger.Info("registry ready",
		slog.String("admin", admin.String()),
		slog.Uint64("height", proc.Height()),
		slog.String("addr", cfg.Node.ListenAddress))
	return server.Start(ctx, cfg.Node.ListenAddress)
}

func openDatabase(node config.NodeConfig) (storage.Database, error) {
	switch strings.ToLower(strings.TrimSpace(node.Backend)) {
	case "memory":
		return storage.NewMemDB(), nil
	case "", "leveldb":
		return storage.NewLevelDBWithOptions(node.DataDir, storage.LevelOptions{CacheMB: node.CacheMB, Handles: node.Handles})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", node.Backend)
	}
}

// bootstrap deploys the registry on first start and applies the configured
// fee. Later starts only confirm the stored genesis fingerprint.
func bootstrap(ctx context.Context, proc *core.Processor, reg config.RegistryConfig, admin crypto.AccountID) error {
	genesis, err := reg.GenesisFingerprint()
	if err != nil {
		return fmt.Errorf("genesis hash: %w", err)
	}
	contract, err := reg.Contract()
	if err != nil {
		return fmt.Errorf("contract address: %w", err)
	}
	fresh := proc.Height() == 0
	if err := proc.Bootstrap(ctx, admin, jid.Params{ChainLabel: reg.ChainLabel, GenesisHash: genesis, Contract: contract}); err != nil {
		if errors.Is(err, core.ErrGenesisMismatch) {
			return fmt.Errorf("%w: stored registry was deployed with a different genesis hash", err)
		}
		return fmt.Errorf("bootstrap registry: %w", err)
	}
	fee, err := reg.Fee()
	if err != nil {
		return fmt.Errorf("registration fee: %w", err)
	}
	if !fresh || fee == nil {
		return nil
	}
	return proc.Execute(ctx, "set_fee", admin, nil, func(engine *jid.Engine, call jid.Call) error {
		return engine.SetRegistrationFee(call, fee)
	})
}

func loadOrCreateNodeKey(path string, source *passphrase.Source, logger *slog.Logger) (*crypto.PrivateKey, error) {
	if _, statErr := os.Stat(path); statErr == nil {
		pass, err := source.Get()
		if err != nil {
			return nil, err
		}
		return crypto.LoadFromKeystore(path, pass)
	} else if !os.IsNotExist(statErr) {
		return nil, statErr
	}
	pass, err := source.GetNew()
	if err != nil {
		return nil, err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	if err := crypto.SaveToKeystore(path, key, pass); err != nil {
		return nil, err
	}
	logger.Info("generated node key", slog.String("admin", key.Account().String()))
	return key, nil
}
