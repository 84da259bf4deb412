package core

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/holiman/uint256"

	"jidchain/core/events"
	"jidchain/core/state"
	"jidchain/core/types"
	"jidchain/crypto"
	"jidchain/native/jid"
	"jidchain/storage"
)

type captureSink struct {
	mu      sync.Mutex
	heights []uint64
	batches [][]types.Event
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Publish(_ context.Context, height uint64, evts []types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heights = append(s.heights, height)
	s.batches = append(s.batches, evts)
	return nil
}

var testGenesis = [32]byte{0x42}

func processorKey(t *testing.T, seed byte) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.PrivateKeyFromSeed(bytes.Repeat([]byte{seed}, 32))
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	return key
}

func newTestProcessor(t *testing.T, db storage.Database, admin crypto.AccountID) *Processor {
	t.Helper()
	clock := uint64(1_000)
	p, err := NewProcessor(db, ProcessorOptions{Now: func() uint64 { clock++; return clock }})
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	if err := p.Bootstrap(context.Background(), admin, jid.Params{ChainLabel: "devnet", GenesisHash: testGenesis}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return p
}

func register(ctx context.Context, p *Processor, key *crypto.PrivateKey, name string, value *uint256.Int) error {
	return p.Execute(ctx, "register", key.Account(), value, func(engine *jid.Engine, call jid.Call) error {
		contract, err := engine.ContractAddress()
		if err != nil {
			return err
		}
		nonce, err := engine.Nonce(call.Caller)
		if err != nil {
			return err
		}
		proof, err := jid.SignEnvelope(key, jid.RegisterMessage(testGenesis, name, nonce, contract))
		if err != nil {
			return err
		}
		return engine.Register(call, name, proof, nonce, 0)
	})
}

func TestProcessorCommitsAndPublishes(t *testing.T) {
	ctx := context.Background()
	admin := processorKey(t, 0xAA)
	alice := processorKey(t, 1)
	p := newTestProcessor(t, storage.NewMemDB(), admin.Account())
	sink := &captureSink{}
	p.Subscribe(sink)

	fee := uint256.NewInt(jid.DefaultRegistrationFee)
	if err := p.Credit(ctx, alice.Account(), new(uint256.Int).Mul(fee, uint256.NewInt(2))); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := register(ctx, p, alice, "alice", fee); err != nil {
		t.Fatalf("register: %v", err)
	}

	balance, err := p.Balance(alice.Account())
	if err != nil || !balance.Eq(fee) {
		t.Fatalf("expected remaining balance %s, got %s (%v)", fee, balance, err)
	}
	holdings, _ := p.Balance(DeriveContractAddress(testGenesis))
	if !holdings.Eq(fee) {
		t.Fatalf("expected contract holdings %s, got %s", fee, holdings)
	}
	if len(sink.batches) != 1 {
		t.Fatalf("expected one published batch, got %d", len(sink.batches))
	}
	if sink.heights[0] != p.Height() {
		t.Fatalf("batch height %d does not match head %d", sink.heights[0], p.Height())
	}
	if got := sink.batches[0][0].Type; got != events.TypeJIDRegistered {
		t.Fatalf("unexpected event type %q", got)
	}
}

func TestProcessorRollsBackFailedInvocation(t *testing.T) {
	ctx := context.Background()
	admin := processorKey(t, 0xAA)
	alice := processorKey(t, 1)
	p := newTestProcessor(t, storage.NewMemDB(), admin.Account())
	sink := &captureSink{}
	p.Subscribe(sink)

	funds := uint256.NewInt(10)
	if err := p.Credit(ctx, alice.Account(), funds); err != nil {
		t.Fatalf("credit: %v", err)
	}
	root, height := p.Root(), p.Height()

	err := register(ctx, p, alice, "alice", funds)
	if !errors.Is(err, jid.ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}
	if p.Root() != root || p.Height() != height {
		t.Fatalf("failed invocation moved the head")
	}
	balance, _ := p.Balance(alice.Account())
	if !balance.Eq(funds) {
		t.Fatalf("attached value must be returned, balance %s", balance)
	}
	if err := p.View(func(engine *jid.Engine, _ uint64) error {
		nonce, err := engine.Nonce(alice.Account())
		if err != nil {
			return err
		}
		if nonce != 0 {
			t.Fatalf("nonce advanced by failed invocation: %d", nonce)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(sink.batches) != 0 {
		t.Fatalf("failed invocation must not publish events")
	}

	err = register(ctx, p, alice, "alice", uint256.NewInt(jid.DefaultRegistrationFee))
	if !errors.Is(err, state.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestProcessorPersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state")
	admin := processorKey(t, 0xAA)
	alice := processorKey(t, 1)
	fee := uint256.NewInt(jid.DefaultRegistrationFee)

	db, err := storage.NewLevelDB(path)
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	p := newTestProcessor(t, db, admin.Account())
	if err := p.Credit(ctx, alice.Account(), fee); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := register(ctx, p, alice, "alice", fee); err != nil {
		t.Fatalf("register: %v", err)
	}
	height := p.Height()
	db.Close()

	reopened, err := storage.NewLevelDB(path)
	if err != nil {
		t.Fatalf("reopen leveldb: %v", err)
	}
	defer reopened.Close()
	restarted := newTestProcessor(t, reopened, admin.Account())
	if restarted.Height() != height {
		t.Fatalf("expected height %d after restart, got %d", height, restarted.Height())
	}
	if err := restarted.View(func(engine *jid.Engine, now uint64) error {
		record, err := engine.Resolve("alice", now)
		if err != nil {
			return err
		}
		if record.Owner != alice.Account() {
			t.Fatalf("registration lost across restart")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}

	mismatch := jid.Params{ChainLabel: "devnet", GenesisHash: [32]byte{0x99}}
	if err := restarted.Bootstrap(ctx, admin.Account(), mismatch); !errors.Is(err, ErrGenesisMismatch) {
		t.Fatalf("expected ErrGenesisMismatch, got %v", err)
	}
}

type headFailingDB struct {
	storage.Database
	fail bool
}

func (db *headFailingDB) Put(key, value []byte) error {
	if db.fail && bytes.Equal(key, headHeightKey) {
		return errors.New("disk full")
	}
	return db.Database.Put(key, value)
}

func TestProcessorRevertsWhenHeadWriteFails(t *testing.T) {
	ctx := context.Background()
	admin := processorKey(t, 0xAA)
	alice := processorKey(t, 1)
	db := &headFailingDB{Database: storage.NewMemDB()}
	p := newTestProcessor(t, db, admin.Account())
	sink := &captureSink{}
	p.Subscribe(sink)

	fee := uint256.NewInt(jid.DefaultRegistrationFee)
	if err := p.Credit(ctx, alice.Account(), fee); err != nil {
		t.Fatalf("credit: %v", err)
	}
	root, height := p.Root(), p.Height()

	db.fail = true
	if err := register(ctx, p, alice, "alice", fee); err == nil {
		t.Fatalf("expected head write failure")
	}
	db.fail = false
	if p.Root() != root || p.Height() != height {
		t.Fatalf("failed head write moved the processor head")
	}
	if len(sink.batches) != 0 {
		t.Fatalf("events published for an unpersisted transition")
	}
	storedRoot, storedHeight, err := loadHead(db)
	if err != nil || storedRoot != root || storedHeight != height {
		t.Fatalf("persisted head %x/%d does not match %x/%d (%v)", storedRoot, storedHeight, root, height, err)
	}
	if err := p.View(func(engine *jid.Engine, now uint64) error {
		if _, err := engine.Resolve("alice", now); !errors.Is(err, jid.ErrJIDNotFound) {
			t.Fatalf("expected reverted registration to be absent, got %v", err)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}

	if err := register(ctx, p, alice, "alice", fee); err != nil {
		t.Fatalf("retry register: %v", err)
	}
	if p.Height() != height+1 {
		t.Fatalf("expected height %d after retry, got %d", height+1, p.Height())
	}
}
