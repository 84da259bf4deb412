package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"jidchain/crypto"
	"jidchain/storage/trie"
)

var (
	// ErrInsufficientBalance is returned when a transfer would overdraw the
	// sending account.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	// ErrBalanceOverflow is returned when a credit would exceed 2^256-1.
	ErrBalanceOverflow = errors.New("state: balance overflow")
)

// Manager provides the key-value and balance primitives the registry engine
// executes against. All writes land in the trie and only become durable when
// the owning processor commits.
type Manager struct {
	trie *trie.Trie
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

var balancePrefix = []byte("balance:")

func balanceKey(account crypto.AccountID) []byte {
	buf := make([]byte, len(balancePrefix)+len(account))
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], account[:])
	return buf
}

// SetBalance stores the native balance of an account.
func (m *Manager) SetBalance(account crypto.AccountID, amount *uint256.Int) error {
	if amount == nil {
		amount = new(uint256.Int)
	}
	encoded, err := rlp.EncodeToBytes(amount.ToBig())
	if err != nil {
		return err
	}
	return m.trie.Put(balanceKey(account), encoded)
}

// Balance retrieves the native balance of an account. Unknown accounts hold
// zero.
func (m *Manager) Balance(account crypto.AccountID) (*uint256.Int, error) {
	data, err := m.trie.Get(balanceKey(account))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return new(uint256.Int), nil
	}
	amount := new(big.Int)
	if err := rlp.DecodeBytes(data, amount); err != nil {
		return nil, err
	}
	out, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrBalanceOverflow
	}
	return out, nil
}

// Credit adds amount to the account balance.
func (m *Manager) Credit(account crypto.AccountID, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	current, err := m.Balance(account)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(current, amount)
	if overflow {
		return ErrBalanceOverflow
	}
	return m.SetBalance(account, next)
}

// Transfer moves amount from one account to another.
func (m *Manager) Transfer(from, to crypto.AccountID, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	source, err := m.Balance(from)
	if err != nil {
		return err
	}
	if source.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, source.Dec(), amount.Dec())
	}
	if err := m.SetBalance(from, new(uint256.Int).Sub(source, amount)); err != nil {
		return err
	}
	return m.Credit(to, amount)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is automatically hashed with keccak256 to match the requirements of
// the underlying trie implementation.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Put(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.trie.Get(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.trie.Delete(key)
}
