package jid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"jidchain/core/identity"
	"jidchain/crypto"
)

// MessageNamespace prefixes every signed ownership message so signatures
// cannot be replayed against unrelated protocols.
const MessageNamespace = "JAMID"

// HashJID returns the SHA-256 digest of the normalized identifier. Callers
// must normalize before hashing; HashJID lower-cases defensively so that
// resolution by any case variant lands on the same key.
func HashJID(jid string) [32]byte {
	return sha256.Sum256([]byte(identity.Normalize(jid)))
}

// MessageDigest returns the SHA-256 digest of a canonical message string.
func MessageDigest(message string) [32]byte {
	return sha256.Sum256([]byte(message))
}

// RegisterMessage builds the canonical registration message:
// JAMID:<genesis>:register:<jid>:<nonce>:<contract>.
func RegisterMessage(genesis [32]byte, jid string, nonce uint64, contract crypto.AccountID) string {
	return strings.Join([]string{
		MessageNamespace,
		hex.EncodeToString(genesis[:]),
		ActionRegister.String(),
		jid,
		strconv.FormatUint(nonce, 10),
		contract.Hex(),
	}, ":")
}

// TransferMessage builds the canonical transfer message:
// JAMID:<genesis>:transfer:<jid>:<new owner>:<nonce>:<contract>.
func TransferMessage(genesis [32]byte, jid string, newOwner crypto.AccountID, nonce uint64, contract crypto.AccountID) string {
	return strings.Join([]string{
		MessageNamespace,
		hex.EncodeToString(genesis[:]),
		ActionTransfer.String(),
		jid,
		newOwner.Hex(),
		strconv.FormatUint(nonce, 10),
		contract.Hex(),
	}, ":")
}

// ParseHash32 decodes a 32-byte hex string, with or without a 0x prefix.
func ParseHash32(raw string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(raw), "0x"), "0X")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("decode hash: %w", err)
	}
	if len(decoded) != len(out) {
		return out, fmt.Errorf("hash must be %d bytes, got %d", len(out), len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}
