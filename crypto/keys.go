package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"golang.org/x/crypto/blake2b"
)

// AccountPrefix is the human-readable bech32 prefix used when displaying
// registry accounts.
const AccountPrefix = "jid"

// AccountLength is the size in bytes of an account identifier.
const AccountLength = 32

// PublicKeyLength is the size of the public keys carried in proof envelopes.
const PublicKeyLength = ed25519.PublicKeySize

var (
	// ErrInvalidAccount is returned when an account string or byte slice cannot
	// be decoded into an AccountID.
	ErrInvalidAccount = errors.New("crypto: invalid account")
)

// AccountID identifies a controlling account. Accounts are either raw 32-byte
// public keys or the BLAKE2b-256 digest of one.
type AccountID [AccountLength]byte

// ZeroAccount is the null address. Nothing may ever be transferred to it.
var ZeroAccount AccountID

// Bytes returns a copy of the raw account bytes.
func (a AccountID) Bytes() []byte {
	out := make([]byte, AccountLength)
	copy(out, a[:])
	return out
}

// IsZero reports whether the account is the null address.
func (a AccountID) IsZero() bool { return a == ZeroAccount }

// Hex returns the canonical lower-case hex encoding without a 0x prefix.
func (a AccountID) Hex() string { return hex.EncodeToString(a[:]) }

// String renders the account in bech32 form.
func (a AccountID) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AccountPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// MarshalText implements encoding.TextMarshaler using the bech32 form.
func (a AccountID) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AccountID) UnmarshalText(text []byte) error {
	parsed, err := ParseAccount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AccountFromBytes copies a 32-byte slice into an AccountID.
func AccountFromBytes(b []byte) (AccountID, error) {
	var out AccountID
	if len(b) != AccountLength {
		return out, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAccount, AccountLength, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// ParseAccount accepts either the bech32 form or a 64 character hex string
// (with or without 0x prefix).
func ParseAccount(raw string) (AccountID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AccountID{}, fmt.Errorf("%w: empty", ErrInvalidAccount)
	}
	if strings.HasPrefix(strings.ToLower(trimmed), AccountPrefix+"1") {
		prefix, decoded, err := bech32.Decode(trimmed)
		if err != nil {
			return AccountID{}, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
		}
		if prefix != AccountPrefix {
			return AccountID{}, fmt.Errorf("%w: unexpected prefix %q", ErrInvalidAccount, prefix)
		}
		conv, err := bech32.ConvertBits(decoded, 5, 8, false)
		if err != nil {
			return AccountID{}, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
		}
		return AccountFromBytes(conv)
	}
	hexPart := strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	decoded, err := hex.DecodeString(hexPart)
	if err != nil {
		return AccountID{}, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	return AccountFromBytes(decoded)
}

// Blake2b256 hashes the concatenation of the supplied parts with BLAKE2b-256.
func Blake2b256(parts ...[]byte) [32]byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		// Only a non-nil key longer than 64 bytes can fail.
		panic(err)
	}
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// HashedAccount derives the account for addressing schemes where the account
// is the BLAKE2b-256 digest of the public key.
func HashedAccount(pubkey []byte) AccountID {
	return AccountID(Blake2b256(pubkey))
}

// --- Key Management ---

// PrivateKey wraps an ed25519 signing key held by a wallet.
type PrivateKey struct {
	ed25519.PrivateKey
}

// GeneratePrivateKey creates a fresh ed25519 key.
func GeneratePrivateKey() (*PrivateKey, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromSeed restores a key from its 32-byte seed.
func PrivateKeyFromSeed(seed []byte) (*PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: seed must be %d bytes", ed25519.SeedSize)
	}
	return &PrivateKey{ed25519.NewKeyFromSeed(seed)}, nil
}

// Seed returns the 32-byte seed the key was derived from.
func (k *PrivateKey) Seed() []byte { return k.PrivateKey.Seed() }

// PublicKey returns the raw 32-byte public key.
func (k *PrivateKey) PublicKey() []byte {
	pub := k.PrivateKey.Public().(ed25519.PublicKey)
	out := make([]byte, len(pub))
	copy(out, pub)
	return out
}

// Account returns the account identified directly by the public key.
func (k *PrivateKey) Account() AccountID {
	var out AccountID
	copy(out[:], k.PublicKey())
	return out
}

// Sign signs the digest with ed25519.
func (k *PrivateKey) Sign(digest []byte) []byte {
	return ed25519.Sign(k.PrivateKey, digest)
}

// VerifyEd25519 checks an ed25519 signature over digest.
func VerifyEd25519(pubkey, digest, sig []byte) bool {
	if len(pubkey) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubkey), digest, sig)
}
