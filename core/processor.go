package core

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"jidchain/core/events"
	"jidchain/core/state"
	"jidchain/core/types"
	"jidchain/crypto"
	"jidchain/native/jid"
	"jidchain/observability"
	telemetry "jidchain/observability/otel"
	"jidchain/storage"
	"jidchain/storage/trie"
)

var (
	headRootKey   = []byte("jid/head/root")
	headHeightKey = []byte("jid/head/height")

	// ErrGenesisMismatch is returned when a restarted node is configured with a
	// different genesis fingerprint than the one it was deployed with.
	ErrGenesisMismatch = errors.New("core: genesis fingerprint mismatch")
	// ErrNotBootstrapped is returned by invocations issued before Bootstrap.
	ErrNotBootstrapped = errors.New("core: registry not bootstrapped")
)

// EventSink receives committed event batches in commit order. Sinks run while
// the processor lock is held and must not call back into the processor.
type EventSink interface {
	Name() string
	Publish(ctx context.Context, height uint64, evts []types.Event) error
}

// Processor hosts the registry engine. Every invocation runs against the
// state trie; a failed invocation is rolled back to the last committed root
// and its buffered events are dropped.
type Processor struct {
	mu        sync.Mutex
	db        storage.Database
	trie      *trie.Trie
	manager   *state.Manager
	engine    *jid.Engine
	committed common.Hash
	height    uint64
	pending   events.Buffer
	sinks     []EventSink
	nowFn     func() uint64
	logger    *slog.Logger
}

// ProcessorOptions configure NewProcessor.
type ProcessorOptions struct {
	VerificationMode jid.VerificationMode
	Logger           *slog.Logger
	Now              func() uint64
}

// NewProcessor opens the state trie at the persisted head, if any.
func NewProcessor(db storage.Database, opts ProcessorOptions) (*Processor, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	root, height, err := loadHead(db)
	if err != nil {
		return nil, err
	}
	stateTrie, err := trie.Open(db, root)
	if err != nil {
		return nil, fmt.Errorf("open state trie: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = func() uint64 { return uint64(time.Now().UnixMilli()) }
	}

	p := &Processor{
		db:        db,
		trie:      stateTrie,
		manager:   state.NewManager(stateTrie),
		engine:    jid.NewEngine(),
		committed: stateTrie.Committed(),
		height:    height,
		nowFn:     nowFn,
		logger:    logger.With(slog.String("component", "processor")),
	}
	p.engine.SetState(p.manager)
	p.engine.SetLedger(p.manager)
	p.engine.SetEmitter(&p.pending)
	p.engine.SetVerificationMode(opts.VerificationMode)
	observability.RegistryMetrics().SetHeight(height)
	return p, nil
}

// DeriveContractAddress returns the account that holds registry fees when no
// explicit address is configured.
func DeriveContractAddress(genesis [32]byte) crypto.AccountID {
	return crypto.AccountID(crypto.Blake2b256([]byte("jid/contract"), genesis[:]))
}

// Bootstrap deploys the registry with admin as administrator on first start.
// On later starts it only checks that the genesis fingerprint is unchanged.
func (p *Processor) Bootstrap(ctx context.Context, admin crypto.AccountID, params jid.Params) error {
	if params.Contract.IsZero() {
		params.Contract = DeriveContractAddress(params.GenesisHash)
	}
	p.mu.Lock()
	initialised, err := p.engine.Initialized()
	var stored [32]byte
	if err == nil && initialised {
		stored, err = p.engine.GenesisHash()
	}
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if initialised {
		if stored != params.GenesisHash {
			return fmt.Errorf("%w: stored %x, configured %x", ErrGenesisMismatch, stored, params.GenesisHash)
		}
		p.logger.Info("registry loaded", slog.Uint64("height", p.Height()))
		return nil
	}
	if err := p.Execute(ctx, "initialize", admin, nil, func(engine *jid.Engine, call jid.Call) error {
		return engine.Initialize(call, params)
	}); err != nil {
		return fmt.Errorf("initialise registry: %w", err)
	}
	p.logger.Info("registry deployed",
		slog.String("admin", admin.String()),
		slog.String("contract", params.Contract.String()),
		slog.String("chain", params.ChainLabel))
	return nil
}

// Subscribe registers a sink for committed events.
func (p *Processor) Subscribe(sink EventSink) {
	if sink == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, sink)
}

// Execute runs fn as a single atomic invocation on behalf of caller. Attached
// value moves from the caller to the registry contract account before fn runs
// and is returned by the rollback if fn fails.
func (p *Processor) Execute(ctx context.Context, operation string, caller crypto.AccountID, value *uint256.Int, fn func(*jid.Engine, jid.Call) error) (err error) {
	ctx, span := telemetry.Tracer("jidchain/core").Start(ctx, "registry."+operation)
	defer span.End()
	started := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	call := jid.Call{Caller: caller, Value: value, Timestamp: p.nowFn()}
	defer func() {
		code := jid.ErrorCode(err)
		if err != nil && code == "" {
			code = "internal"
		}
		observability.RegistryMetrics().Observe(operation, code, time.Since(started))
		span.SetAttributes(attribute.String("jid.operation", operation), attribute.String("jid.code", code))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := p.run(operation, call, fn); err != nil {
		p.rollback()
		p.logger.Debug("invocation rolled back",
			slog.String("operation", operation),
			slog.String("caller", call.Caller.String()),
			slog.String("error", err.Error()))
		return err
	}
	return p.commit(ctx)
}

func (p *Processor) run(operation string, call jid.Call, fn func(*jid.Engine, jid.Call) error) error {
	p.pending.Reset()
	if call.Value != nil && !call.Value.IsZero() {
		contract, err := p.engine.ContractAddress()
		if err != nil {
			if errors.Is(err, jid.ErrNotInitialised) {
				return ErrNotBootstrapped
			}
			return err
		}
		if err := p.manager.Transfer(call.Caller, contract, call.Value); err != nil {
			return fmt.Errorf("%s: attach value: %w", operation, err)
		}
	}
	return fn(p.engine, call)
}

func (p *Processor) rollback() {
	p.pending.Reset()
	observability.RegistryMetrics().RecordRollback()
	if err := p.trie.Rollback(); err != nil {
		p.logger.Error("state rollback failed", slog.String("error", err.Error()))
	}
}

func (p *Processor) commit(ctx context.Context) error {
	next := p.height + 1
	root, err := p.trie.Commit(next)
	if err != nil {
		p.rollback()
		return fmt.Errorf("commit state: %w", err)
	}
	if err := storeHead(p.db, root, next); err != nil {
		p.pending.Reset()
		observability.RegistryMetrics().RecordRollback()
		if revertErr := p.trie.Revert(p.committed); revertErr != nil {
			p.logger.Error("state revert failed", slog.String("error", revertErr.Error()))
		}
		// The root key may have been written before the failure.
		if restoreErr := storeHead(p.db, p.committed, p.height); restoreErr != nil {
			p.logger.Error("head restore failed", slog.String("error", restoreErr.Error()))
		}
		return fmt.Errorf("persist head: %w", err)
	}
	p.committed = root
	p.height = next

	metrics := observability.RegistryMetrics()
	metrics.SetHeight(next)
	if total, err := p.engine.TotalRegistered(); err == nil {
		metrics.SetTotalRegistered(total)
	}

	if p.pending.Len() == 0 {
		return nil
	}
	batch := p.pending.Drain()
	for _, evt := range batch {
		metrics.RecordPublished(evt.Type)
	}
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, next, batch); err != nil {
			metrics.RecordSinkFailure(sink.Name())
			p.logger.Warn("event sink rejected batch",
				slog.String("sink", sink.Name()),
				slog.Uint64("height", next),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// View runs fn against committed state at the current host time.
func (p *Processor) View(fn func(engine *jid.Engine, now uint64) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn(p.engine, p.nowFn())
}

// Balance returns the native balance of account.
func (p *Processor) Balance(account crypto.AccountID) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.manager.Balance(account)
}

// Credit mints amount into account as its own committed transition. It backs
// the development faucet and genesis allocations.
func (p *Processor) Credit(ctx context.Context, account crypto.AccountID, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	return p.Execute(ctx, "credit", account, nil, func(_ *jid.Engine, call jid.Call) error {
		return p.manager.Credit(call.Caller, amount)
	})
}

// Height returns the number of committed transitions.
func (p *Processor) Height() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.height
}

// Root returns the committed state root.
func (p *Processor) Root() common.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.committed
}

func loadHead(db storage.Database) (common.Hash, uint64, error) {
	rawRoot, err := db.Get(headRootKey)
	if errors.Is(err, storage.ErrNotFound) {
		return common.Hash{}, 0, nil
	}
	if err != nil {
		return common.Hash{}, 0, fmt.Errorf("load head root: %w", err)
	}
	rawHeight, err := db.Get(headHeightKey)
	if err != nil {
		return common.Hash{}, 0, fmt.Errorf("load head height: %w", err)
	}
	if len(rawHeight) != 8 {
		return common.Hash{}, 0, fmt.Errorf("load head height: malformed value")
	}
	return common.BytesToHash(rawRoot), binary.BigEndian.Uint64(rawHeight), nil
}

func storeHead(db storage.Database, root common.Hash, height uint64) error {
	if err := db.Put(headRootKey, root.Bytes()); err != nil {
		return err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	return db.Put(headHeightKey, buf[:])
}
