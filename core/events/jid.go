package events

import (
	"encoding/hex"
	"strconv"

	"jidchain/core/types"
	"jidchain/crypto"
)

const (
	TypeJIDRegistered   = "jid.registered"
	TypeJIDTransferred  = "jid.transferred"
	TypeJIDRevoked      = "jid.revoked"
	TypeJIDAdminRevoked = "jid.adminRevoked"
	TypeJIDUpdated      = "jid.updated"
	TypeRegistryPaused  = "jid.paused"
)

// The payloads below only carry digests of identifiers and reasons. There is
// deliberately no field that could hold the plaintext.

// JIDRegistered is emitted when an identifier is bound to its first owner.
type JIDRegistered struct {
	JIDHash      [32]byte
	Owner        crypto.AccountID
	RegisteredAt uint64
}

// EventType implements the Event interface.
func (JIDRegistered) EventType() string { return TypeJIDRegistered }

// Event converts the strongly typed event to the generic representation used by subscribers.
func (e JIDRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypeJIDRegistered,
		Attributes: map[string]string{
			"jidHash":      hex.EncodeToString(e.JIDHash[:]),
			"owner":        e.Owner.String(),
			"registeredAt": strconv.FormatUint(e.RegisteredAt, 10),
		},
	}
}

// JIDTransferred is emitted when ownership moves between accounts.
type JIDTransferred struct {
	JIDHash       [32]byte
	From          crypto.AccountID
	To            crypto.AccountID
	TransferredAt uint64
}

// EventType implements the Event interface.
func (JIDTransferred) EventType() string { return TypeJIDTransferred }

// Event converts the strongly typed event to the generic representation used by subscribers.
func (e JIDTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeJIDTransferred,
		Attributes: map[string]string{
			"jidHash":       hex.EncodeToString(e.JIDHash[:]),
			"from":          e.From.String(),
			"to":            e.To.String(),
			"transferredAt": strconv.FormatUint(e.TransferredAt, 10),
		},
	}
}

// JIDRevoked is emitted when an owner revokes their own identifier.
type JIDRevoked struct {
	JIDHash   [32]byte
	RevokedAt uint64
}

// EventType implements the Event interface.
func (JIDRevoked) EventType() string { return TypeJIDRevoked }

// Event converts the strongly typed event to the generic representation used by subscribers.
func (e JIDRevoked) Event() *types.Event {
	return &types.Event{
		Type: TypeJIDRevoked,
		Attributes: map[string]string{
			"jidHash":   hex.EncodeToString(e.JIDHash[:]),
			"revokedAt": strconv.FormatUint(e.RevokedAt, 10),
		},
	}
}

// JIDAdminRevoked is emitted when the administrator force-revokes an
// identifier. Only the digest of the moderation reason is published.
type JIDAdminRevoked struct {
	JIDHash    [32]byte
	OldOwner   crypto.AccountID
	ReasonHash [32]byte
	Timestamp  uint64
}

// EventType implements the Event interface.
func (JIDAdminRevoked) EventType() string { return TypeJIDAdminRevoked }

// Event converts the strongly typed event to the generic representation used by subscribers.
func (e JIDAdminRevoked) Event() *types.Event {
	return &types.Event{
		Type: TypeJIDAdminRevoked,
		Attributes: map[string]string{
			"jidHash":    hex.EncodeToString(e.JIDHash[:]),
			"oldOwner":   e.OldOwner.String(),
			"reasonHash": hex.EncodeToString(e.ReasonHash[:]),
			"timestamp":  strconv.FormatUint(e.Timestamp, 10),
		},
	}
}

// JIDUpdated is emitted when record metadata changes.
type JIDUpdated struct {
	JIDHash   [32]byte
	UpdatedAt uint64
}

// EventType implements the Event interface.
func (JIDUpdated) EventType() string { return TypeJIDUpdated }

// Event converts the strongly typed event to the generic representation used by subscribers.
func (e JIDUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeJIDUpdated,
		Attributes: map[string]string{
			"jidHash":   hex.EncodeToString(e.JIDHash[:]),
			"updatedAt": strconv.FormatUint(e.UpdatedAt, 10),
		},
	}
}

// RegistryPaused is emitted whenever the pause flag is set or cleared.
type RegistryPaused struct {
	Paused bool
}

// EventType implements the Event interface.
func (RegistryPaused) EventType() string { return TypeRegistryPaused }

// Event converts the strongly typed event to the generic representation used by subscribers.
func (e RegistryPaused) Event() *types.Event {
	return &types.Event{
		Type:       TypeRegistryPaused,
		Attributes: map[string]string{"paused": strconv.FormatBool(e.Paused)},
	}
}
