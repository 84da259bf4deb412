package jid

import (
	"math"

	"jidchain/crypto"
)

// currentNonce returns the next acceptable nonce for the account and action.
// Unseen pairs start at zero.
func (e *Engine) currentNonce(account crypto.AccountID, action Action) (uint64, error) {
	var nonce uint64
	if _, err := e.state.KVGet(nonceKey(account, action), &nonce); err != nil {
		return 0, err
	}
	return nonce, nil
}

// checkNonce rejects any supplied nonce that is not exactly the current one.
func (e *Engine) checkNonce(account crypto.AccountID, action Action, supplied uint64) (uint64, error) {
	current, err := e.currentNonce(account, action)
	if err != nil {
		return 0, err
	}
	if supplied != current {
		return 0, ErrInvalidNonce
	}
	return current, nil
}

// advanceNonce increments the counter. It refuses to wrap so a nonce value is
// never accepted twice.
func (e *Engine) advanceNonce(account crypto.AccountID, action Action, current uint64) error {
	if current == math.MaxUint64 {
		return ErrNonceOverflow
	}
	return e.state.KVPut(nonceKey(account, action), current+1)
}
