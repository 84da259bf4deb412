package jid

import (
	"errors"

	"jidchain/core/identity"
)

// The registry reports failures from this closed set. Every mutating error
// leaves state unchanged because the host discards the invocation.
var (
	ErrJIDAlreadyExists         = errors.New("jid: identifier already registered")
	ErrAccountAlreadyRegistered = errors.New("jid: account already owns an identifier")
	ErrJIDNotFound              = errors.New("jid: identifier not found")
	ErrInvalidProof             = errors.New("jid: invalid proof of ownership")
	ErrUnauthorized             = errors.New("jid: unauthorized")
	ErrInvalidJID               = identity.ErrInvalidJID
	ErrJIDBlacklisted           = errors.New("jid: identifier is blacklisted")
	ErrMetadataTooLarge         = errors.New("jid: metadata too large")
	ErrContractPaused           = errors.New("jid: registry paused")
	ErrInvalidNonce             = errors.New("jid: invalid nonce")
	ErrInsufficientPayment      = errors.New("jid: insufficient payment")
	ErrJIDRevoked               = errors.New("jid: identifier revoked")
	ErrJIDExpired               = errors.New("jid: identifier expired")
	ErrTransferFailed           = errors.New("jid: transfer failed")
	ErrNonceOverflow            = errors.New("jid: nonce overflow")
	ErrInvalidFeeAmount         = errors.New("jid: invalid fee amount")
	ErrAlreadyRevoked           = errors.New("jid: identifier already revoked")

	// ErrNotInitialised is returned before the registry has been deployed.
	ErrNotInitialised = errors.New("jid: registry not initialised")

	errNilState           = errors.New("jid: state not configured")
	errAlreadyInitialised = errors.New("jid: registry already initialised")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrJIDAlreadyExists, "JIDAlreadyExists"},
	{ErrAccountAlreadyRegistered, "AccountAlreadyRegistered"},
	{ErrJIDNotFound, "JIDNotFound"},
	{ErrInvalidProof, "InvalidProof"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrInvalidJID, "InvalidJID"},
	{ErrJIDBlacklisted, "JIDBlacklisted"},
	{ErrMetadataTooLarge, "MetadataTooLarge"},
	{ErrContractPaused, "ContractPaused"},
	{ErrInvalidNonce, "InvalidNonce"},
	{ErrInsufficientPayment, "InsufficientPayment"},
	{ErrJIDRevoked, "JIDRevoked"},
	{ErrJIDExpired, "JIDExpired"},
	{ErrTransferFailed, "TransferFailed"},
	{ErrNonceOverflow, "NonceOverflow"},
	{ErrInvalidFeeAmount, "InvalidFeeAmount"},
	{ErrAlreadyRevoked, "AlreadyRevoked"},
}

// ErrorCode returns the stable name of a registry error kind, or the empty
// string when err is not one of them.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return ""
}
