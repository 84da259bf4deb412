package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/holiman/uint256"

	"jidchain/crypto"
	"jidchain/native/jid"
)

// Config is the daemon configuration file.
type Config struct {
	Node      NodeConfig      `toml:"node"`
	Registry  RegistryConfig  `toml:"registry"`
	RPC       RPCConfig       `toml:"rpc"`
	Log       LogConfig       `toml:"log"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Explorer  ExplorerConfig  `toml:"explorer"`
	Events    EventsConfig    `toml:"events"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			ListenAddress: ":8645",
			DataDir:       "./jid-data",
			Env:           "local",
			Backend:       "leveldb",
			CacheMB:       16,
			Handles:       64,
		},
		Registry: RegistryConfig{
			ChainLabel:       "jid-local",
			VerificationMode: string(jid.ModeCorrelation),
		},
		RPC: RPCConfig{
			AuthSecretEnv:     "JID_RPC_SECRET",
			Issuer:            "jid-local",
			RequestsPerMinute: 600,
			Burst:             60,
			FaucetAmount:      "10000000000000",
			ReadHeaderTimeout: 5,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Telemetry: TelemetryConfig{Endpoint: "localhost:4318", Traces: true},
		Explorer:  ExplorerConfig{Driver: "sqlite"},
	}
}

func (c *Config) applyDefaults(path string) {
	dir := filepath.Dir(path)
	if c.Node.KeystorePath == "" {
		c.Node.KeystorePath = filepath.Join(dir, "node.keystore")
	}
	if c.Events.JournalPath == "" {
		c.Events.JournalPath = filepath.Join(c.Node.DataDir, "events.db")
	}
	if c.Explorer.Enabled && c.Explorer.DSN == "" && strings.EqualFold(c.Explorer.Driver, "sqlite") {
		c.Explorer.DSN = filepath.Join(c.Node.DataDir, "explorer.sqlite")
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	cfg.applyDefaults(path)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// GenesisFingerprint returns the configured genesis hash, or one derived from
// the chain label when none is set.
func (r RegistryConfig) GenesisFingerprint() ([32]byte, error) {
	if strings.TrimSpace(r.GenesisHash) == "" {
		return crypto.Blake2b256([]byte("jid/genesis"), []byte(r.ChainLabel)), nil
	}
	return jid.ParseHash32(r.GenesisHash)
}

// Contract returns the configured fee account, or the zero account when it
// should be derived from the genesis fingerprint.
func (r RegistryConfig) Contract() (crypto.AccountID, error) {
	if strings.TrimSpace(r.ContractAddress) == "" {
		return crypto.ZeroAccount, nil
	}
	return crypto.ParseAccount(r.ContractAddress)
}

// AdminAccount returns the configured administrator. ok is false when the
// node key should be used instead.
func (r RegistryConfig) AdminAccount() (crypto.AccountID, bool, error) {
	if strings.TrimSpace(r.Admin) == "" {
		return crypto.ZeroAccount, false, nil
	}
	account, err := crypto.ParseAccount(r.Admin)
	return account, err == nil, err
}

// Fee returns the configured registration fee, or nil to keep the default.
func (r RegistryConfig) Fee() (*uint256.Int, error) {
	return parseAmount(r.RegistrationFee)
}

// Faucet returns the amount credited per faucet request.
func (r RPCConfig) Faucet() (*uint256.Int, error) {
	return parseAmount(r.FaucetAmount)
}

// Secret resolves the JWT signing secret, preferring the environment.
func (r RPCConfig) Secret() string {
	if r.AuthSecretEnv != "" {
		if value := strings.TrimSpace(os.Getenv(r.AuthSecretEnv)); value != "" {
			return value
		}
	}
	return strings.TrimSpace(r.AuthSecret)
}

func parseAmount(raw string) (*uint256.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(raw), "_", "")
	if trimmed == "" {
		return nil, nil
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return amount, nil
}
