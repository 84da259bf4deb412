package jid

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"jidchain/crypto"
)

// engineState abstracts the subset of state manager functionality required
// by the registry.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// ledger moves native value held by the registry contract account.
type ledger interface {
	Balance(account crypto.AccountID) (*uint256.Int, error)
	Transfer(from, to crypto.AccountID, amount *uint256.Int) error
}

var (
	registryKey     = []byte("jid/registry")
	recordPrefix    = []byte("jid/record/")
	namePrefix      = []byte("jid/name/")
	accountPrefix   = []byte("jid/account/")
	noncePrefix     = []byte("jid/nonce/")
	blacklistPrefix = []byte("jid/blacklist/")
)

func recordKey(hash [32]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", recordPrefix, hash))
}

func nameKey(hash [32]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", namePrefix, hash))
}

func accountKey(account crypto.AccountID) []byte {
	return []byte(fmt.Sprintf("%s%x", accountPrefix, account[:]))
}

func nonceKey(account crypto.AccountID, action Action) []byte {
	return []byte(fmt.Sprintf("%s%x/%d", noncePrefix, account[:], action))
}

func blacklistKey(hash [32]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", blacklistPrefix, hash))
}

func (e *Engine) loadRegistry() (*registry, error) {
	if e.state == nil {
		return nil, errNilState
	}
	var reg registry
	ok, err := e.state.KVGet(registryKey, &reg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialised
	}
	if reg.Fee == nil {
		reg.Fee = new(big.Int)
	}
	if reg.FeesCollected == nil {
		reg.FeesCollected = new(big.Int)
	}
	if reg.FeesWithdrawn == nil {
		reg.FeesWithdrawn = new(big.Int)
	}
	return &reg, nil
}

func (e *Engine) storeRegistry(reg *registry) error {
	return e.state.KVPut(registryKey, reg)
}

func (e *Engine) loadRecord(hash [32]byte) (*Record, bool, error) {
	var record Record
	ok, err := e.state.KVGet(recordKey(hash), &record)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &record, true, nil
}

func (e *Engine) storeRecord(hash [32]byte, record *Record) error {
	return e.state.KVPut(recordKey(hash), record)
}

func (e *Engine) accountSlot(account crypto.AccountID) ([32]byte, bool, error) {
	var hash [32]byte
	ok, err := e.state.KVGet(accountKey(account), &hash)
	return hash, ok, err
}

// releaseAccountSlot clears the account index only when it still points at
// hash, so a stale owner never evicts a newer registration.
func (e *Engine) releaseAccountSlot(account crypto.AccountID, hash [32]byte) error {
	current, ok, err := e.accountSlot(account)
	if err != nil {
		return err
	}
	if !ok || current != hash {
		return nil
	}
	return e.state.KVDelete(accountKey(account))
}

func (e *Engine) loadName(hash [32]byte) (string, bool, error) {
	var name string
	ok, err := e.state.KVGet(nameKey(hash), &name)
	return name, ok, err
}
