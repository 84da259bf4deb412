package jid

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"jidchain/core/events"
	"jidchain/core/state"
	"jidchain/crypto"
	"jidchain/storage"
	"jidchain/storage/trie"
)

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) { r.events = append(r.events, evt) }

type harness struct {
	engine   *Engine
	manager  *state.Manager
	emitter  *recordingEmitter
	admin    *crypto.PrivateKey
	genesis  [32]byte
	contract crypto.AccountID
}

func testKey(t *testing.T, seed byte) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.PrivateKeyFromSeed(bytes.Repeat([]byte{seed}, 32))
	if err != nil {
		t.Fatalf("derive key: %v", err)
	}
	return key
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tr, err := trie.Open(storage.NewMemDB(), common.Hash{})
	if err != nil {
		t.Fatalf("new trie: %v", err)
	}
	manager := state.NewManager(tr)
	emitter := &recordingEmitter{}
	engine := NewEngine()
	engine.SetState(manager)
	engine.SetLedger(manager)
	engine.SetEmitter(emitter)

	h := &harness{
		engine:   engine,
		manager:  manager,
		emitter:  emitter,
		admin:    testKey(t, 0xAA),
		genesis:  [32]byte{0x01, 0x02, 0x03},
		contract: crypto.AccountID{0xC0, 0xFF, 0xEE},
	}
	params := Params{ChainLabel: "testnet", GenesisHash: h.genesis, Contract: h.contract}
	if err := engine.Initialize(h.call(h.admin, nil, 1), params); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return h
}

func (h *harness) call(key *crypto.PrivateKey, value *uint256.Int, ts uint64) Call {
	return Call{Caller: key.Account(), Value: value, Timestamp: ts}
}

func fee() *uint256.Int { return uint256.NewInt(DefaultRegistrationFee) }

func (h *harness) registerProof(t *testing.T, key *crypto.PrivateKey, jid string, nonce uint64) []byte {
	t.Helper()
	proof, err := SignEnvelope(key, RegisterMessage(h.genesis, jid, nonce, h.contract))
	if err != nil {
		t.Fatalf("sign register: %v", err)
	}
	return proof
}

func (h *harness) transferProof(t *testing.T, key *crypto.PrivateKey, jid string, to crypto.AccountID, nonce uint64) []byte {
	t.Helper()
	proof, err := SignEnvelope(key, TransferMessage(h.genesis, jid, to, nonce, h.contract))
	if err != nil {
		t.Fatalf("sign transfer: %v", err)
	}
	return proof
}

func (h *harness) mustRegister(t *testing.T, key *crypto.PrivateKey, jid string, nonce, expiresAt uint64) {
	t.Helper()
	proof := h.registerProof(t, key, strings.ToLower(jid), nonce)
	if err := h.engine.Register(h.call(key, fee(), 100), jid, proof, nonce, expiresAt); err != nil {
		t.Fatalf("register %q: %v", jid, err)
	}
}

func TestRegisterAndResolve(t *testing.T) {
	h := newHarness(t)
	alice := testKey(t, 1)
	h.mustRegister(t, alice, "Alice.Dev", 0, 0)

	record, err := h.engine.Resolve("alice.dev", 500)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if record.Owner != alice.Account() {
		t.Fatalf("unexpected owner %s", record.Owner)
	}
	if record.RegisteredAt != 100 || record.UpdatedAt != 100 || !record.IsActive {
		t.Fatalf("unexpected record %+v", record)
	}
	name, ok, err := h.engine.ResolveByAccount(alice.Account(), 500)
	if err != nil || !ok || name != "alice.dev" {
		t.Fatalf("resolve by account: name=%q ok=%v err=%v", name, ok, err)
	}
	total, err := h.engine.TotalRegistered()
	if err != nil || total != 1 {
		t.Fatalf("expected one registration, got %d (%v)", total, err)
	}
	nonce, err := h.engine.Nonce(alice.Account())
	if err != nil || nonce != 1 {
		t.Fatalf("expected register nonce 1, got %d (%v)", nonce, err)
	}
	if len(h.emitter.events) != 1 || h.emitter.events[0].EventType() != events.TypeJIDRegistered {
		t.Fatalf("expected a single registered event, got %+v", h.emitter.events)
	}
}

func TestRegisterUniquenessIsCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	h.mustRegister(t, testKey(t, 1), "alice", 0, 0)

	bob := testKey(t, 2)
	err := h.engine.Register(h.call(bob, fee(), 200), "ALICE", h.registerProof(t, bob, "alice", 0), 0, 0)
	if !errors.Is(err, ErrJIDAlreadyExists) {
		t.Fatalf("expected ErrJIDAlreadyExists, got %v", err)
	}
}

func TestRegisterOnePerAccount(t *testing.T) {
	h := newHarness(t)
	alice := testKey(t, 1)
	h.mustRegister(t, alice, "alice", 0, 0)

	err := h.engine.Register(h.call(alice, fee(), 200), "alice2", h.registerProof(t, alice, "alice2", 1), 1, 0)
	if !errors.Is(err, ErrAccountAlreadyRegistered) {
		t.Fatalf("expected ErrAccountAlreadyRegistered, got %v", err)
	}
}

func TestRegisterRejectsInvalidIdentifiers(t *testing.T) {
	h := newHarness(t)
	alice := testKey(t, 1)
	for _, jid := range []string{"ab", "-abc", "abc.", "a..b", "a_b", strings.Repeat("a", 65)} {
		err := h.engine.Register(h.call(alice, fee(), 1), jid, h.registerProof(t, alice, jid, 0), 0, 0)
		if !errors.Is(err, ErrInvalidJID) {
			t.Fatalf("%q: expected ErrInvalidJID, got %v", jid, err)
		}
	}
}

func TestRegisterPayment(t *testing.T) {
	h := newHarness(t)
	alice := testKey(t, 1)
	short := new(uint256.Int).SubUint64(fee(), 1)
	err := h.engine.Register(h.call(alice, short, 1), "alice", h.registerProof(t, alice, "alice", 0), 0, 0)
	if !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}

	over := new(uint256.Int).Mul(fee(), uint256.NewInt(3))
	if err := h.engine.Register(h.call(alice, over, 1), "alice", h.registerProof(t, alice, "alice", 0), 0, 0); err != nil {
		t.Fatalf("register with overpayment: %v", err)
	}
	collected, err := h.engine.TotalFeesCollected()
	if err != nil {
		t.Fatalf("fees collected: %v", err)
	}
	if !collected.Eq(over) {
		t.Fatalf("expected collected %s, got %s", over, collected)
	}
}

func TestNonceReplayRejected(t *testing.T) {
	h := newHarness(t)
	alice := testKey(t, 1)
	h.mustRegister(t, alice, "alice", 0, 0)
	if err := h.engine.Revoke(h.call(alice, nil, 200), "alice"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	replay := h.registerProof(t, alice, "alice2", 0)
	err := h.engine.Register(h.call(alice, fee(), 300), "alice2", replay, 0, 0)
	if !errors.Is(err, ErrInvalidNonce) {
		t.Fatalf("expected ErrInvalidNonce on replay, got %v", err)
	}
	err = h.engine.Register(h.call(alice, fee(), 300), "alice2", h.registerProof(t, alice, "alice2", 2), 2, 0)
	if !errors.Is(err, ErrInvalidNonce) {
		t.Fatalf("expected ErrInvalidNonce for future nonce, got %v", err)
	}
	h.mustRegister(t, alice, "alice2", 1, 0)
}

func TestNonceNamespacesAreIndependent(t *testing.T) {
	h := newHarness(t)
	alice := testKey(t, 1)
	bob := testKey(t, 2)
	h.mustRegister(t, alice, "alice", 0, 0)

	proof := h.transferProof(t, alice, "alice", bob.Account(), 0)
	if err := h.engine.Transfer(h.call(alice, nil, 200), "alice", bob.Account(), proof, 0); err != nil {
		t.Fatalf("transfer with fresh transfer nonce: %v", err)
	}
	reg, _ := h.engine.NonceForAction(alice.Account(), ActionRegister)
	xfer, _ := h.engine.NonceForAction(alice.Account(), ActionTransfer)
	if reg != 1 || xfer != 1 {
		t.Fatalf("expected register=1 transfer=1, got %d %d", reg, xfer)
	}
}

func TestNonceOverflow(t *testing.T) {
	h := newHarness(t)
	alice := testKey(t, 1)
	if err := h.manager.KVPut(nonceKey(alice.Account(), ActionRegister), uint64(math.MaxUint64)); err != nil {
		t.Fatalf("seed nonce: %v", err)
	}
	proof := h.registerProof(t, alice, "alice", math.MaxUint64)
	err := h.engine.Register(h.call(alice, fee(), 1), "alice", proof, math.MaxUint64, 0)
	if !errors.Is(err, ErrNonceOverflow) {
		t.Fatalf("expected ErrNonceOverflow, got %v", err)
	}
}

func TestProofMustCorrelateWithCaller(t *testing.T) {
	h := newHarness(t)
	alice := testKey(t, 1)
	mallory := testKey(t, 9)

	foreign := h.registerProof(t, mallory, "alice", 0)
	err := h.engine.Register(h.call(alice, fee(), 1), "alice", foreign, 0, 0)
	if !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof for foreign key, got %v", err)
	}

	good := h.registerProof(t, alice, "alice", 0)
	err = h.engine.Register(h.call(alice, fee(), 1), "alice", good[:EnvelopeLength-1], 0, 0)
	if !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof for short envelope, got %v", err)
	}
	tagged := append([]byte(nil), good...)
	tagged[0] = 7
	err = h.engine.Register(h.call(alice, fee(), 1), "alice", tagged, 0, 0)
	if !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof for unknown family, got %v", err)
	}
}

func TestStrictModeBindsProofToMessage(t *testing.T) {
	h := newHarness(t)
	h.engine.SetVerificationMode(ModeStrict)
	alice := testKey(t, 1)

	wrongName := h.registerProof(t, alice, "mallory", 0)
	err := h.engine.Register(h.call(alice, fee(), 1), "alice", wrongName, 0, 0)
	if !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof for mismatched message, got %v", err)
	}

	good := h.registerProof(t, alice, "alice", 0)
	sr := append([]byte(nil), good...)
	sr[0] = byte(FamilySr25519)
	err = h.engine.Register(h.call(alice, fee(), 1), "alice", sr, 0, 0)
	if !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected sr25519 rejection in strict mode, got %v", err)
	}

	if err := h.engine.Register(h.call(alice, fee(), 1), "alice", good, 0, 0); err != nil {
		t.Fatalf("strict register: %v", err)
	}
}

func TestEventsCarryOnlyDigests(t *testing.T) {
	h := newHarness(t)
	alice := testKey(t, 1)
	h.mustRegister(t, alice, "secret-name", 0, 0)
	if err := h.engine.AdminRevoke(h.call(h.admin, nil, 300), "secret-name", "fraud report 42"); err != nil {
		t.Fatalf("admin revoke: %v", err)
	}
	for _, evt := range h.emitter.events {
		var attrs map[string]string
		switch typed := evt.(type) {
		case events.JIDRegistered:
			attrs = typed.Event().Attributes
		case events.JIDAdminRevoked:
			attrs = typed.Event().Attributes
			want := crypto.Blake2b256([]byte("fraud report 42"))
			if typed.ReasonHash != want {
				t.Fatalf("unexpected reason hash")
			}
		default:
			t.Fatalf("unexpected event %T", evt)
		}
		for key, value := range attrs {
			if strings.Contains(value, "secret-name") || strings.Contains(value, "fraud") {
				t.Fatalf("attribute %s leaks plaintext: %q", key, value)
			}
		}
	}
}

func TestRevokedIdentifierStaysReserved(t *testing.T) {
	h := newHarness(t)
	alice := testKey(t, 1)
	bob := testKey(t, 2)
	h.mustRegister(t, alice, "alice", 0, 0)
	if err := h.engine.Revoke(h.call(bob, nil, 150), "alice"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-owner revoke, got %v", err)
	}
	if err := h.engine.Revoke(h.call(alice, nil, 200), "alice"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := h.engine.Revoke(h.call(alice, nil, 210), "alice"); !errors.Is(err, ErrAlreadyRevoked) {
		t.Fatalf("expected ErrAlreadyRevoked, got %v", err)
	}

	if _, err := h.engine.Resolve("alice", 300); !errors.Is(err, ErrJIDRevoked) {
		t.Fatalf("expected ErrJIDRevoked, got %v", err)
	}
	if exists, _ := h.engine.Exists("alice"); !exists {
		t.Fatalf("revoked identifier must still exist")
	}
	if _, ok, _ := h.engine.ResolveByAccount(alice.Account(), 300); ok {
		t.Fatalf("revocation must free the account slot")
	}
	err := h.engine.Register(h.call(bob, fee(), 400), "alice", h.registerProof(t, bob, "alice", 0), 0, 0)
	if !errors.Is(err, ErrJIDAlreadyExists) {
		t.Fatalf("expected ErrJIDAlreadyExists for revoked name, got %v", err)
	}
	if err := h.engine.UpdateMetadata(h.call(alice, nil, 500), "alice", []byte("x")); !errors.Is(err, ErrJIDRevoked) {
		t.Fatalf("expected ErrJIDRevoked on update, got %v", err)
	}
	total, _ := h.engine.TotalRegistered()
	if total != 1 {
		t.Fatalf("revocation must not decrement total, got %d", total)
	}
}

func TestExpiryBoundaries(t *testing.T) {
	h := newHarness(t)
	alice := testKey(t, 1)
	h.mustRegister(t, alice, "alice", 0, 1000)

	if _, err := h.engine.Resolve("alice", 1000); err != nil {
		t.Fatalf("resolve must succeed at the expiry instant: %v", err)
	}
	if _, ok, _ := h.engine.ResolveByAccount(alice.Account(), 999); !ok {
		t.Fatalf("reverse lookup must succeed before expiry")
	}
	if _, ok, _ := h.engine.ResolveByAccount(alice.Account(), 1000); ok {
		t.Fatalf("reverse lookup must fail at the expiry instant")
	}
	if _, err := h.engine.Resolve("alice", 1001); !errors.Is(err, ErrJIDExpired) {
		t.Fatalf("expected ErrJIDExpired after expiry, got %v", err)
	}
}

func TestPauseBlocksMutations(t *testing.T) {
	h := newHarness(t)
	alice := testKey(t, 1)
	bob := testKey(t, 2)
	h.mustRegister(t, alice, "alice", 0, 0)

	if err := h.engine.SetPaused(h.call(alice, nil, 1), true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-admin pause, got %v", err)
	}
	if err := h.engine.SetPaused(h.call(h.admin, nil, 1), true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := h.engine.Register(h.call(bob, fee(), 1), "bob", h.registerProof(t, bob, "bob", 0), 0, 0); !errors.Is(err, ErrContractPaused) {
		t.Fatalf("register while paused: %v", err)
	}
	if err := h.engine.UpdateMetadata(h.call(alice, nil, 1), "alice", nil); !errors.Is(err, ErrContractPaused) {
		t.Fatalf("update while paused: %v", err)
	}
	proof := h.transferProof(t, alice, "alice", bob.Account(), 0)
	if err := h.engine.Transfer(h.call(alice, nil, 1), "alice", bob.Account(), proof, 0); !errors.Is(err, ErrContractPaused) {
		t.Fatalf("transfer while paused: %v", err)
	}
	if err := h.engine.Revoke(h.call(alice, nil, 1), "alice"); !errors.Is(err, ErrContractPaused) {
		t.Fatalf("revoke while paused: %v", err)
	}
	if _, err := h.engine.Resolve("alice", 1); err != nil {
		t.Fatalf("reads must work while paused: %v", err)
	}
	if err := h.engine.AdminRevoke(h.call(h.admin, nil, 1), "alice", ""); err != nil {
		t.Fatalf("admin revoke while paused: %v", err)
	}
}

func TestTransfer(t *testing.T) {
	h := newHarness(t)
	alice := testKey(t, 1)
	bob := testKey(t, 2)
	carol := testKey(t, 3)
	h.mustRegister(t, alice, "alice", 0, 0)
	h.mustRegister(t, carol, "carol", 0, 0)

	zero := h.transferProof(t, alice, "alice", crypto.ZeroAccount, 0)
	if err := h.engine.Transfer(h.call(alice, nil, 1), "alice", crypto.ZeroAccount, zero, 0); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for zero address, got %v", err)
	}
	toCarol := h.transferProof(t, alice, "alice", carol.Account(), 0)
	if err := h.engine.Transfer(h.call(alice, nil, 1), "alice", carol.Account(), toCarol, 0); !errors.Is(err, ErrAccountAlreadyRegistered) {
		t.Fatalf("expected ErrAccountAlreadyRegistered, got %v", err)
	}
	toBob := h.transferProof(t, alice, "alice", bob.Account(), 0)
	if err := h.engine.Transfer(h.call(bob, nil, 1), "alice", bob.Account(), toBob, 0); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-owner, got %v", err)
	}
	if err := h.engine.Transfer(h.call(alice, nil, 700), "ALICE", bob.Account(), toBob, 0); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	record, err := h.engine.Resolve("alice", 800)
	if err != nil || record.Owner != bob.Account() || record.UpdatedAt != 700 {
		t.Fatalf("unexpected record after transfer: %+v", record)
	}
	if _, ok, _ := h.engine.ResolveByAccount(alice.Account(), 800); ok {
		t.Fatalf("previous owner must lose the reverse entry")
	}
	if name, ok, _ := h.engine.ResolveByAccount(bob.Account(), 800); !ok || name != "alice" {
		t.Fatalf("new owner reverse lookup: %q %v", name, ok)
	}
	last := h.emitter.events[len(h.emitter.events)-1]
	moved, ok := last.(events.JIDTransferred)
	if !ok || moved.From != alice.Account() || moved.To != bob.Account() {
		t.Fatalf("unexpected transfer event %+v", last)
	}
}

func TestUpdateMetadata(t *testing.T) {
	h := newHarness(t)
	alice := testKey(t, 1)
	h.mustRegister(t, alice, "alice", 0, 0)

	if err := h.engine.UpdateMetadata(h.call(alice, nil, 1), "alice", make([]byte, MaxMetadataSize+1)); !errors.Is(err, ErrMetadataTooLarge) {
		t.Fatalf("expected ErrMetadataTooLarge, got %v", err)
	}
	if err := h.engine.UpdateMetadata(h.call(alice, nil, 900), "alice", []byte(`{"avatar":"x"}`)); err != nil {
		t.Fatalf("update: %v", err)
	}
	record, err := h.engine.Resolve("alice", 901)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if string(record.Metadata) != `{"avatar":"x"}` || record.UpdatedAt != 900 {
		t.Fatalf("unexpected record %+v", record)
	}
	if err := h.engine.UpdateMetadata(h.call(alice, nil, 1), "nobody", nil); !errors.Is(err, ErrJIDNotFound) {
		t.Fatalf("expected ErrJIDNotFound, got %v", err)
	}
}

func TestBlacklist(t *testing.T) {
	h := newHarness(t)
	alice := testKey(t, 1)
	if err := h.engine.Blacklist(h.call(alice, nil, 1), "evil"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := h.engine.Blacklist(h.call(h.admin, nil, 1), "Evil"); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	if blocked, _ := h.engine.IsBlacklisted("evil"); !blocked {
		t.Fatalf("expected evil to be blacklisted")
	}
	err := h.engine.Register(h.call(alice, fee(), 1), "evil", h.registerProof(t, alice, "evil", 0), 0, 0)
	if !errors.Is(err, ErrJIDBlacklisted) {
		t.Fatalf("expected ErrJIDBlacklisted, got %v", err)
	}
	if err := h.engine.Unblacklist(h.call(h.admin, nil, 1), "evil"); err != nil {
		t.Fatalf("unblacklist: %v", err)
	}
	h.mustRegister(t, alice, "evil", 0, 0)
}

func TestAdminRevokeFreesOnlyCurrentSlot(t *testing.T) {
	h := newHarness(t)
	alice := testKey(t, 1)
	h.mustRegister(t, alice, "alice", 0, 0)
	if err := h.engine.AdminRevoke(h.call(alice, nil, 1), "alice", "x"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := h.engine.AdminRevoke(h.call(h.admin, nil, 1), "alice", strings.Repeat("r", MaxMetadataSize+1)); !errors.Is(err, ErrMetadataTooLarge) {
		t.Fatalf("expected ErrMetadataTooLarge, got %v", err)
	}
	if err := h.engine.AdminRevoke(h.call(h.admin, nil, 2), "alice", "spam"); err != nil {
		t.Fatalf("admin revoke: %v", err)
	}
	if err := h.engine.AdminRevoke(h.call(h.admin, nil, 3), "alice", "spam"); !errors.Is(err, ErrAlreadyRevoked) {
		t.Fatalf("expected ErrAlreadyRevoked, got %v", err)
	}

	h.mustRegister(t, alice, "alice2", 1, 0)
	if name, ok, _ := h.engine.ResolveByAccount(alice.Account(), 10); !ok || name != "alice2" {
		t.Fatalf("expected alice2 after re-registration, got %q", name)
	}
}

func TestFeesAndWithdraw(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.SetRegistrationFee(h.call(h.admin, nil, 1), new(uint256.Int)); !errors.Is(err, ErrInvalidFeeAmount) {
		t.Fatalf("expected ErrInvalidFeeAmount, got %v", err)
	}
	if err := h.engine.SetRegistrationFee(h.call(testKey(t, 1), nil, 1), uint256.NewInt(5)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := h.engine.SetRegistrationFee(h.call(h.admin, nil, 1), uint256.NewInt(5)); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	if current, _ := h.engine.RegistrationFee(); current.Uint64() != 5 {
		t.Fatalf("expected fee 5, got %s", current)
	}

	if err := h.manager.SetBalance(h.contract, uint256.NewInt(100)); err != nil {
		t.Fatalf("seed holdings: %v", err)
	}
	if err := h.engine.Withdraw(h.call(h.admin, nil, 1), uint256.NewInt(101)); !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if withdrawn, _ := h.engine.TotalFeesWithdrawn(); !withdrawn.IsZero() {
		t.Fatalf("failed withdrawal must not move the counter, got %s", withdrawn)
	}
	if err := h.engine.Withdraw(h.call(h.admin, nil, 1), uint256.NewInt(60)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	adminBalance, _ := h.manager.Balance(h.admin.Account())
	if adminBalance.Uint64() != 60 {
		t.Fatalf("expected admin balance 60, got %s", adminBalance)
	}
	info, err := h.engine.Info()
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Holdings.Uint64() != 40 || info.TotalFeesWithdrawn.Uint64() != 60 {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestOwnershipTransfer(t *testing.T) {
	h := newHarness(t)
	bob := testKey(t, 2)
	if err := h.engine.TransferOwnership(h.call(bob, nil, 1), bob.Account()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := h.engine.TransferOwnership(h.call(h.admin, nil, 1), bob.Account()); err != nil {
		t.Fatalf("transfer ownership: %v", err)
	}
	if owner, _ := h.engine.Owner(); owner != bob.Account() {
		t.Fatalf("expected bob as owner, got %s", owner)
	}
	if err := h.engine.SetPaused(h.call(h.admin, nil, 1), true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("previous admin must lose rights, got %v", err)
	}
}

func TestInitializeOnlyOnce(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.Initialize(h.call(h.admin, nil, 1), Params{}); err == nil {
		t.Fatalf("expected second initialisation to fail")
	}
	genesis, _ := h.engine.GenesisHash()
	if genesis != h.genesis {
		t.Fatalf("genesis changed")
	}
	label, _ := h.engine.ChainID()
	if label != "testnet" {
		t.Fatalf("unexpected chain label %q", label)
	}
}

func TestErrorCode(t *testing.T) {
	if code := ErrorCode(ErrContractPaused); code != "ContractPaused" {
		t.Fatalf("unexpected code %q", code)
	}
	wrapped := errors.Join(errors.New("context"), ErrInvalidProof)
	if code := ErrorCode(wrapped); code != "InvalidProof" {
		t.Fatalf("unexpected code %q", code)
	}
	if code := ErrorCode(errors.New("other")); code != "" {
		t.Fatalf("expected empty code, got %q", code)
	}
}

func TestResolveErrorOrder(t *testing.T) {
	h := newHarness(t)
	alice := testKey(t, 1)
	bob := testKey(t, 2)
	h.mustRegister(t, alice, "alice", 0, 500)
	h.mustRegister(t, bob, "bob", 0, 500)

	if _, err := h.engine.Resolve("nobody", 1); !errors.Is(err, ErrJIDNotFound) {
		t.Fatalf("expected ErrJIDNotFound, got %v", err)
	}
	if err := h.engine.Revoke(h.call(alice, nil, 200), "alice"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	// Revocation is reported before expiry once both apply.
	if _, err := h.engine.Resolve("alice", 900); !errors.Is(err, ErrJIDRevoked) {
		t.Fatalf("expected ErrJIDRevoked, got %v", err)
	}
	if _, err := h.engine.Resolve("bob", 900); !errors.Is(err, ErrJIDExpired) {
		t.Fatalf("expected ErrJIDExpired, got %v", err)
	}
	if code := ErrorCode(ErrJIDExpired); code != "JIDExpired" {
		t.Fatalf("unexpected code %q", code)
	}
}

func TestTransferToZeroAccountIgnoresValidProof(t *testing.T) {
	h := newHarness(t)
	alice := testKey(t, 1)
	h.mustRegister(t, alice, "alice", 0, 0)

	proof := h.transferProof(t, alice, "alice", crypto.ZeroAccount, 0)
	if err := h.engine.Transfer(h.call(alice, nil, 1), "alice", crypto.ZeroAccount, proof, 0); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	record, err := h.engine.Resolve("alice", 2)
	if err != nil || record.Owner != alice.Account() {
		t.Fatalf("ownership must be unchanged: %+v %v", record, err)
	}
	if nonce, _ := h.engine.NonceForAction(alice.Account(), ActionTransfer); nonce != 0 {
		t.Fatalf("rejected transfer consumed nonce %d", nonce)
	}
}

func TestRejectedProofKeepsNonce(t *testing.T) {
	h := newHarness(t)
	alice := testKey(t, 1)
	mallory := testKey(t, 9)

	forged := h.registerProof(t, mallory, "alice", 0)
	if err := h.engine.Register(h.call(alice, fee(), 10), "alice", forged, 0, 0); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof, got %v", err)
	}
	if nonce, _ := h.engine.Nonce(alice.Account()); nonce != 0 {
		t.Fatalf("failed proof advanced nonce to %d", nonce)
	}
	h.mustRegister(t, alice, "alice", 0, 0)
	if nonce, _ := h.engine.Nonce(alice.Account()); nonce != 1 {
		t.Fatalf("expected nonce 1 after success, got %d", nonce)
	}
}

func TestMetadataSizeBoundary(t *testing.T) {
	h := newHarness(t)
	alice := testKey(t, 1)
	h.mustRegister(t, alice, "alice", 0, 0)

	exact := bytes.Repeat([]byte{'m'}, MaxMetadataSize)
	if err := h.engine.UpdateMetadata(h.call(alice, nil, 5), "alice", exact); err != nil {
		t.Fatalf("metadata of %d bytes must be accepted: %v", MaxMetadataSize, err)
	}
	if err := h.engine.UpdateMetadata(h.call(alice, nil, 6), "alice", append(exact, 'x')); !errors.Is(err, ErrMetadataTooLarge) {
		t.Fatalf("expected ErrMetadataTooLarge, got %v", err)
	}
	record, err := h.engine.Resolve("alice", 7)
	if err != nil || len(record.Metadata) != MaxMetadataSize || record.UpdatedAt != 5 {
		t.Fatalf("unexpected record after rejected update: %+v %v", record, err)
	}
}
