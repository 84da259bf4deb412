package jid

import (
	"math/big"

	"github.com/holiman/uint256"

	"jidchain/crypto"
)

const (
	// MaxMetadataSize bounds record metadata and admin revocation reasons.
	MaxMetadataSize = 256
	// DefaultRegistrationFee is charged until the administrator changes it.
	DefaultRegistrationFee uint64 = 1_000_000_000_000
)

// Action namespaces the per-account nonce counters. Exhausting one action's
// sequence never blocks the other.
type Action uint8

const (
	ActionRegister Action = 0
	ActionTransfer Action = 1
)

// String returns the lower-case action name used in signed messages.
func (a Action) String() string {
	switch a {
	case ActionRegister:
		return "register"
	case ActionTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// ParseAction maps the textual action name back to its namespace.
func ParseAction(name string) (Action, bool) {
	switch name {
	case "register":
		return ActionRegister, true
	case "transfer":
		return ActionTransfer, true
	default:
		return 0, false
	}
}

// Call carries the host-supplied context of a single invocation: who is
// calling, what value they attached and the host clock (unix milliseconds).
type Call struct {
	Caller    crypto.AccountID
	Value     *uint256.Int
	Timestamp uint64
}

func (c Call) value() *uint256.Int {
	if c.Value == nil {
		return new(uint256.Int)
	}
	return c.Value
}

// Record is the unit of registration.
type Record struct {
	Owner        crypto.AccountID `json:"owner"`
	RegisteredAt uint64           `json:"registeredAt"`
	UpdatedAt    uint64           `json:"updatedAt"`
	Metadata     []byte           `json:"metadata"`
	IsActive     bool             `json:"isActive"`
	// ExpiresAt of zero means the record never expires.
	ExpiresAt uint64 `json:"expiresAt"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Metadata = append([]byte(nil), r.Metadata...)
	return &clone
}

// expiredAt reports whether the record has lapsed strictly before now.
func (r *Record) expiredAt(now uint64) bool {
	return r.ExpiresAt > 0 && r.ExpiresAt < now
}

// Params are supplied once when the registry is deployed. The genesis
// fingerprint is immutable afterwards.
type Params struct {
	ChainLabel  string
	GenesisHash [32]byte
	Contract    crypto.AccountID
}

// Info summarises the registry configuration and counters.
type Info struct {
	ChainLabel         string           `json:"chainId"`
	GenesisHash        [32]byte         `json:"genesisHash"`
	Contract           crypto.AccountID `json:"contract"`
	Owner              crypto.AccountID `json:"owner"`
	Paused             bool             `json:"paused"`
	RegistrationFee    *uint256.Int     `json:"registrationFee"`
	TotalRegistered    uint64           `json:"totalRegistered"`
	TotalFeesCollected *uint256.Int     `json:"totalFeesCollected"`
	TotalFeesWithdrawn *uint256.Int     `json:"totalFeesWithdrawn"`
	Holdings           *uint256.Int     `json:"holdings"`
}

// registry is the persisted configuration and counter set.
type registry struct {
	Admin           crypto.AccountID
	Contract        crypto.AccountID
	Genesis         [32]byte
	ChainLabel      string
	Paused          bool
	Fee             *big.Int
	TotalRegistered uint64
	FeesCollected   *big.Int
	FeesWithdrawn   *big.Int
}

func bigToU256(v *big.Int) *uint256.Int {
	if v == nil || v.Sign() <= 0 {
		return new(uint256.Int)
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return out
}

// saturatingAdd adds delta to an informational counter, pinning at 2^256-1
// instead of wrapping.
func saturatingAdd(counter *big.Int, delta *uint256.Int) *big.Int {
	sum, overflow := new(uint256.Int).AddOverflow(bigToU256(counter), delta)
	if overflow {
		return new(uint256.Int).SetAllOne().ToBig()
	}
	return sum.ToBig()
}
