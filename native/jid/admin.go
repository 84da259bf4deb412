package jid

import (

	"github.com/holiman/uint256"

	"jidchain/core/events"
	"jidchain/crypto"
)

// loadAdminRegistry loads the registry and rejects callers other than the
// administrator.
func (e *Engine) loadAdminRegistry(caller crypto.AccountID) (*registry, error) {
	reg, err := e.loadRegistry()
	if err != nil {
		return nil, err
	}
	if reg.Admin != caller {
		return nil, ErrUnauthorized
	}
	return reg, nil
}

// SetPaused toggles the pause flag. Paused registries reject register,
// update, transfer and revoke.
func (e *Engine) SetPaused(call Call, paused bool) error {
	reg, err := e.loadAdminRegistry(call.Caller)
	if err != nil {
		return err
	}
	reg.Paused = paused
	if err := e.storeRegistry(reg); err != nil {
		return err
	}
	e.emit(events.RegistryPaused{Paused: paused})
	return nil
}

// IsPaused reports the pause flag.
func (e *Engine) IsPaused() (bool, error) {
	reg, err := e.loadRegistry()
	if err != nil {
		return false, err
	}
	return reg.Paused, nil
}

// Blacklist blocks future registrations of jid. Existing records are not
// affected.
func (e *Engine) Blacklist(call Call, jid string) error {
	if _, err := e.loadAdminRegistry(call.Caller); err != nil {
		return err
	}
	return e.state.KVPut(blacklistKey(HashJID(jid)), true)
}

// Unblacklist lifts a blacklist entry.
func (e *Engine) Unblacklist(call Call, jid string) error {
	if _, err := e.loadAdminRegistry(call.Caller); err != nil {
		return err
	}
	return e.state.KVDelete(blacklistKey(HashJID(jid)))
}

// IsBlacklisted reports whether jid is blocked.
func (e *Engine) IsBlacklisted(jid string) (bool, error) {
	if e.state == nil {
		return false, errNilState
	}
	return e.isBlacklisted(HashJID(jid))
}

func (e *Engine) isBlacklisted(hash [32]byte) (bool, error) {
	var blocked bool
	ok, err := e.state.KVGet(blacklistKey(hash), &blocked)
	if err != nil {
		return false, err
	}
	return ok && blocked, nil
}

// AdminRevoke deactivates any active record. Only the BLAKE2b-256 digest of
// the reason is published.
func (e *Engine) AdminRevoke(call Call, jid string, reason string) error {
	if _, err := e.loadAdminRegistry(call.Caller); err != nil {
		return err
	}
	if len(reason) > MaxMetadataSize {
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
	e.emit(events.JIDAdminRevoked{
		JIDHash:    hash,
		OldOwner:   record.Owner,
		ReasonHash: crypto.Blake2b256([]byte(reason)),
		Timestamp:  call.Timestamp,
	})
	return nil
}

// Withdraw moves collected value from the registry contract account to the
// administrator.
func (e *Engine) Withdraw(call Call, amount *uint256.Int) error {
	reg, err := e.loadAdminRegistry(call.Caller)
	if err != nil {
		return err
	}
	if amount == nil {
		amount = new(uint256.Int)
	}
	if e.ledger == nil {
		return ErrTransferFailed
	}
	balance, err := e.ledger.Balance(reg.Contract)
	if err != nil {
		return err
	}
	if amount.Gt(balance) {
		return ErrTransferFailed
	}
	if err := e.ledger.Transfer(reg.Contract, reg.Admin, amount); err != nil {
		return ErrTransferFailed
	}
	reg.FeesWithdrawn = saturatingAdd(reg.FeesWithdrawn, amount)
	return e.storeRegistry(reg)
}

// SetRegistrationFee changes the fee charged by Register. Zero is rejected.
func (e *Engine) SetRegistrationFee(call Call, fee *uint256.Int) error {
	reg, err := e.loadAdminRegistry(call.Caller)
	if err != nil {
		return err
	}
	if fee == nil || fee.IsZero() {
		return ErrInvalidFeeAmount
	}
	reg.Fee = fee.ToBig()
	return e.storeRegistry(reg)
}

// RegistrationFee returns the current fee.
func (e *Engine) RegistrationFee() (*uint256.Int, error) {
	reg, err := e.loadRegistry()
	if err != nil {
		return nil, err
	}
	return bigToU256(reg.Fee), nil
}

// TotalFeesCollected returns the informational collected-fees counter.
func (e *Engine) TotalFeesCollected() (*uint256.Int, error) {
	reg, err := e.loadRegistry()
	if err != nil {
		return nil, err
	}
	return bigToU256(reg.FeesCollected), nil
}

// TotalFeesWithdrawn returns the informational withdrawn counter.
func (e *Engine) TotalFeesWithdrawn() (*uint256.Int, error) {
	reg, err := e.loadRegistry()
	if err != nil {
		return nil, err
	}
	return bigToU256(reg.FeesWithdrawn), nil
}

// ChainID returns the chain label supplied at deployment.
func (e *Engine) ChainID() (string, error) {
	reg, err := e.loadRegistry()
	if err != nil {
		return "", err
	}
	return reg.ChainLabel, nil
}

// GenesisHash returns the immutable genesis fingerprint.
func (e *Engine) GenesisHash() ([32]byte, error) {
	reg, err := e.loadRegistry()
	if err != nil {
		return [32]byte{}, err
	}
	return reg.Genesis, nil
}

// ContractAddress returns the account holding collected fees.
func (e *Engine) ContractAddress() (crypto.AccountID, error) {
	reg, err := e.loadRegistry()
	if err != nil {
		return crypto.AccountID{}, err
	}
	return reg.Contract, nil
}

// TransferOwnership hands administrator rights to newOwner immediately.
func (e *Engine) TransferOwnership(call Call, newOwner crypto.AccountID) error {
	reg, err := e.loadAdminRegistry(call.Caller)
	if err != nil {
		return err
	}
	reg.Admin = newOwner
	return e.storeRegistry(reg)
}

// Owner returns the administrator.
func (e *Engine) Owner() (crypto.AccountID, error) {
	reg, err := e.loadRegistry()
	if err != nil {
		return crypto.AccountID{}, err
	}
	return reg.Admin, nil
}

// Info summarises configuration, counters and current holdings.
func (e *Engine) Info() (*Info, error) {
	reg, err := e.loadRegistry()
	if err != nil {
		return nil, err
	}
	holdings, err := e.holdings(reg.Contract)
	if err != nil {
		return nil, err
	}
	return &Info{
		ChainLabel:         reg.ChainLabel,
		GenesisHash:        reg.Genesis,
		Contract:           reg.Contract,
		Owner:              reg.Admin,
		Paused:             reg.Paused,
		RegistrationFee:    bigToU256(reg.Fee),
		TotalRegistered:    reg.TotalRegistered,
		TotalFeesCollected: bigToU256(reg.FeesCollected),
		TotalFeesWithdrawn: bigToU256(reg.FeesWithdrawn),
		Holdings:           holdings,
	}, nil
}

