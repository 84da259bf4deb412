package jid

import (
	"errors"
	"math"
	"math/big"

	"github.com/holiman/uint256"

	"jidchain/core/events"
	"jidchain/core/identity"
	"jidchain/crypto"
)

// Engine implements the registry operations on top of the key/value state.
// It is not safe for concurrent use; the host serialises invocations and
// discards all writes of a failed one.
type Engine struct {
	state    engineState
	ledger   ledger
	emitter  events.Emitter
	verifier *Verifier
}

// NewEngine constructs an engine using correlation-mode proof checks.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}, verifier: NewVerifier(ModeCorrelation)}
}

// SetState wires the key/value backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger wires the native balance ledger used for fee withdrawals and
// the holdings query.
func (e *Engine) SetLedger(l ledger) { e.ledger = l }

// SetEmitter configures the event sink.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetVerificationMode swaps the proof verifier.
func (e *Engine) SetVerificationMode(mode VerificationMode) {
	e.verifier = NewVerifier(mode)
}

// VerificationMode reports the active proof verification mode.
func (e *Engine) VerificationMode() VerificationMode { return e.verifier.Mode() }

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

// Initialize deploys the registry with the caller as administrator. It can
// only run once.
func (e *Engine) Initialize(call Call, params Params) error {
	if e.state == nil {
		return errNilState
	}
	if _, err := e.loadRegistry(); err == nil {
		return errAlreadyInitialised
	} else if !errors.Is(err, ErrNotInitialised) {
		return err
	}
	reg := &registry{
		Admin:         call.Caller,
		Contract:      params.Contract,
		Genesis:       params.GenesisHash,
		ChainLabel:    params.ChainLabel,
		Fee:           new(big.Int).SetUint64(DefaultRegistrationFee),
		FeesCollected: new(big.Int),
		FeesWithdrawn: new(big.Int),
	}
	return e.storeRegistry(reg)
}

// Initialized reports whether the registry has been deployed.
func (e *Engine) Initialized() (bool, error) {
	if _, err := e.loadRegistry(); err != nil {
		if errors.Is(err, ErrNotInitialised) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Register claims jid for the caller. The attached value must cover the
// registration fee and the proof must sign the canonical registration
// message for the caller's current register nonce.
func (e *Engine) Register(call Call, jid string, proof []byte, nonce uint64, expiresAt uint64) error {
	reg, err := e.loadRegistry()
	if err != nil {
		return err
	}
	if reg.Paused {
		return ErrContractPaused
	}
	normalized, err := identity.NormalizeJID(jid)
	if err != nil {
		return err
	}
	hash := HashJID(normalized)
	if blocked, err := e.isBlacklisted(hash); err != nil {
		return err
	} else if blocked {
		return ErrJIDBlacklisted
	}
	if _, exists, err := e.loadRecord(hash); err != nil {
		return err
	} else if exists {
		return ErrJIDAlreadyExists
	}
	if _, held, err := e.accountSlot(call.Caller); err != nil {
		return err
	} else if held {
		return ErrAccountAlreadyRegistered
	}
	paid := call.value()
	if paid.Lt(bigToU256(reg.Fee)) {
		return ErrInsufficientPayment
	}
	current, err := e.checkNonce(call.Caller, ActionRegister, nonce)
	if err != nil {
		return err
	}
	message := RegisterMessage(reg.Genesis, normalized, nonce, reg.Contract)
	if err := e.verifier.Verify(call.Caller, message, proof); err != nil {
		return err
	}
	if err := e.advanceNonce(call.Caller, ActionRegister, current); err != nil {
		return err
	}

	record := &Record{
		Owner:        call.Caller,
		RegisteredAt: call.Timestamp,
		UpdatedAt:    call.Timestamp,
		IsActive:     true,
		ExpiresAt:    expiresAt,
	}
	if err := e.storeRecord(hash, record); err != nil {
		return err
	}
	if err := e.state.KVPut(nameKey(hash), normalized); err != nil {
		return err
	}
	if err := e.state.KVPut(accountKey(call.Caller), hash); err != nil {
		return err
	}
	reg.FeesCollected = saturatingAdd(reg.FeesCollected, paid)
	if reg.TotalRegistered < math.MaxUint64 {
		reg.TotalRegistered++
	}
	if err := e.storeRegistry(reg); err != nil {
		return err
	}
	e.emit(events.JIDRegistered{JIDHash: hash, Owner: call.Caller, RegisteredAt: call.Timestamp})
	return nil
}

// Resolve returns the record for jid. Checks run in order: existence
// (ErrJIDNotFound), status (ErrJIDRevoked), expiry at now (ErrJIDExpired).
func (e *Engine) Resolve(jid string, now uint64) (*Record, error) {
	if e.state == nil {
		return nil, errNilState
	}
	record, ok, err := e.loadRecord(HashJID(jid))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrJIDNotFound
	}
	if !record.IsActive {
		return nil, ErrJIDRevoked
	}
	if record.expiredAt(now) {
		return nil, ErrJIDExpired
	}
	return record, nil
}

// ResolveByAccount returns the normalized identifier held by account. The
// lookup treats a record as lapsed from the instant now reaches ExpiresAt.
func (e *Engine) ResolveByAccount(account crypto.AccountID, now uint64) (string, bool, error) {
	if e.state == nil {
		return "", false, errNilState
	}
	hash, ok, err := e.accountSlot(account)
	if err != nil || !ok {
		return "", false, err
	}
	record, ok, err := e.loadRecord(hash)
	if err != nil || !ok {
		return "", false, err
	}
	if !record.IsActive {
		return "", false, nil
	}
	if record.ExpiresAt > 0 && now >= record.ExpiresAt {
		return "", false, nil
	}
	return e.loadName(hash)
}

// Exists reports whether a record was ever stored for jid, active or not.
func (e *Engine) Exists(jid string) (bool, error) {
	if e.state == nil {
		return false, errNilState
	}
	_, ok, err := e.loadRecord(HashJID(jid))
	return ok, err
}

// Record returns the raw stored record regardless of status.
func (e *Engine) Record(jid string) (*Record, bool, error) {
	if e.state == nil {
		return nil, false, errNilState
	}
	return e.loadRecord(HashJID(jid))
}

// UpdateMetadata replaces the metadata of an active record owned by the
// caller.
func (e *Engine) UpdateMetadata(call Call, jid string, metadata []byte) error {
	reg, err := e.loadRegistry()
	if err != nil {
		return err
	}
	if reg.Paused {
		return ErrContractPaused
	}
	if len(metadata) > MaxMetadataSize {
		return ErrMetadataTooLarge
	}
	hash := HashJID(jid)
	record, ok, err := e.loadRecord(hash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrJIDNotFound
	}
	if record.Owner != call.Caller {
		return ErrUnauthorized
	}
	if !record.IsActive {
		return ErrJIDRevoked
	}
	record.Metadata = append([]byte(nil), metadata...)
	record.UpdatedAt = call.Timestamp
	if err := e.storeRecord(hash, record); err != nil {
		return err
	}
	e.emit(events.JIDUpdated{JIDHash: hash, UpdatedAt: call.Timestamp})
	return nil
}

// Transfer hands an active record to newOwner. The proof must sign the
// canonical transfer message for the caller's current transfer nonce.
func (e *Engine) Transfer(call Call, jid string, newOwner crypto.AccountID, proof []byte, nonce uint64) error {
	reg, err := e.loadRegistry()
	if err != nil {
		return err
	}
	if reg.Paused {
		return ErrContractPaused
	}
	if newOwner.IsZero() {
		return ErrUnauthorized
	}
	normalized := identity.Normalize(jid)
	hash := HashJID(normalized)
	record, ok, err := e.loadRecord(hash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrJIDNotFound
	}
	if record.Owner != call.Caller {
		return ErrUnauthorized
	}
	if !record.IsActive {
		return ErrJIDRevoked
	}
	if _, held, err := e.accountSlot(newOwner); err != nil {
		return err
	} else if held {
		return ErrAccountAlreadyRegistered
	}
	current, err := e.checkNonce(call.Caller, ActionTransfer, nonce)
	if err != nil {
		return err
	}
	message := TransferMessage(reg.Genesis, normalized, newOwner, nonce, reg.Contract)
	if err := e.verifier.Verify(call.Caller, message, proof); err != nil {
		return err
	}
	if err := e.advanceNonce(call.Caller, ActionTransfer, current); err != nil {
		return err
	}

	previous := record.Owner
	record.Owner = newOwner
	record.UpdatedAt = call.Timestamp
	if err := e.storeRecord(hash, record); err != nil {
		return err
	}
	if err := e.releaseAccountSlot(previous, hash); err != nil {
		return err
	}
	if err := e.state.KVPut(accountKey(newOwner), hash); err != nil {
		return err
	}
	e.emit(events.JIDTransferred{JIDHash: hash, From: previous, To: newOwner, TransferredAt: call.Timestamp})
	return nil
}

// Revoke deactivates a record owned by the caller and frees the caller's
// account slot. The identifier stays reserved.
func (e *Engine) Revoke(call Call, jid string) error {
	reg, err := e.loadRegistry()
	if err != nil {
		return err
	}
	if reg.Paused {
		return ErrContractPaused
	}
	hash := HashJID(jid)
	record, ok, err := e.loadRecord(hash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrJIDNotFound
	}
	if record.Owner != call.Caller {
		return ErrUnauthorized
	}
	if !record.IsActive {
		return ErrAlreadyRevoked
	}
	record.IsActive = false
	record.UpdatedAt = call.Timestamp
	if err := e.storeRecord(hash, record); err != nil {
		return err
	}
	if err := e.releaseAccountSlot(record.Owner, hash); err != nil {
		return err
	}
	e.emit(events.JIDRevoked{JIDHash: hash, RevokedAt: call.Timestamp})
	return nil
}

// Nonce returns the register nonce for account.
func (e *Engine) Nonce(account crypto.AccountID) (uint64, error) {
	return e.NonceForAction(account, ActionRegister)
}

// NonceForAction returns the next acceptable nonce for the action.
func (e *Engine) NonceForAction(account crypto.AccountID, action Action) (uint64, error) {
	if e.state == nil {
		return 0, errNilState
	}
	return e.currentNonce(account, action)
}

// TotalRegistered returns the number of successful registrations ever made.
func (e *Engine) TotalRegistered() (uint64, error) {
	reg, err := e.loadRegistry()
	if err != nil {
		return 0, err
	}
	return reg.TotalRegistered, nil
}

func (e *Engine) holdings(contract crypto.AccountID) (*uint256.Int, error) {
	if e.ledger == nil {
		return new(uint256.Int), nil
	}
	return e.ledger.Balance(contract)
}
