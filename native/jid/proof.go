package jid

import (
	"bytes"
	"fmt"
	"strings"

	"jidchain/crypto"
)

// SignatureFamily is the leading tag byte of a proof envelope.
type SignatureFamily uint8

const (
	FamilySr25519 SignatureFamily = 0
	FamilyEd25519 SignatureFamily = 1
)

const (
	signatureLength = 64
	publicKeyLength = 32
	// EnvelopeLength is the minimum size of a proof envelope:
	// [family:1][signature:64][public key:32]. Trailing bytes are ignored.
	EnvelopeLength = 1 + signatureLength + publicKeyLength
)

// VerificationMode selects how strictly proof envelopes are checked.
type VerificationMode string

const (
	// ModeCorrelation accepts a well-formed envelope whose public key
	// correlates with the account. Signatures are structurally checked only.
	ModeCorrelation VerificationMode = "correlation"
	// ModeStrict additionally verifies ed25519 signatures over the message
	// digest and rejects families that cannot be verified.
	ModeStrict VerificationMode = "strict"
)

// ParseVerificationMode maps a configuration string to a mode. The empty
// string selects correlation.
func ParseVerificationMode(raw string) (VerificationMode, error) {
	switch VerificationMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeCorrelation:
		return ModeCorrelation, nil
	case ModeStrict:
		return ModeStrict, nil
	default:
		return "", fmt.Errorf("jid: unknown verification mode %q", raw)
	}
}

// Envelope is the decoded form of an ownership proof.
type Envelope struct {
	Family    SignatureFamily
	Signature [signatureLength]byte
	PublicKey [publicKeyLength]byte
}

// DecodeEnvelope splits raw proof bytes. Short envelopes and unknown family
// tags are rejected.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	if len(raw) < EnvelopeLength {
		return nil, fmt.Errorf("%w: envelope has %d bytes, need %d", ErrInvalidProof, len(raw), EnvelopeLength)
	}
	env := &Envelope{Family: SignatureFamily(raw[0])}
	switch env.Family {
	case FamilySr25519, FamilyEd25519:
	default:
		return nil, fmt.Errorf("%w: unknown signature family %d", ErrInvalidProof, raw[0])
	}
	copy(env.Signature[:], raw[1:1+signatureLength])
	copy(env.PublicKey[:], raw[1+signatureLength:EnvelopeLength])
	return env, nil
}

// Encode serialises the envelope in wire order.
func (env *Envelope) Encode() []byte {
	out := make([]byte, 0, EnvelopeLength)
	out = append(out, byte(env.Family))
	out = append(out, env.Signature[:]...)
	out = append(out, env.PublicKey[:]...)
	return out
}

// BuildEnvelope assembles a proof envelope from its parts.
func BuildEnvelope(family SignatureFamily, signature, publicKey []byte) ([]byte, error) {
	if len(signature) != signatureLength {
		return nil, fmt.Errorf("jid: signature must be %d bytes, got %d", signatureLength, len(signature))
	}
	if len(publicKey) != publicKeyLength {
		return nil, fmt.Errorf("jid: public key must be %d bytes, got %d", publicKeyLength, len(publicKey))
	}
	env := &Envelope{Family: family}
	copy(env.Signature[:], signature)
	copy(env.PublicKey[:], publicKey)
	return env.Encode(), nil
}

// SignEnvelope signs the digest of message with an ed25519 key and returns a
// ready-to-submit envelope.
func SignEnvelope(key *crypto.PrivateKey, message string) ([]byte, error) {
	digest := MessageDigest(message)
	return BuildEnvelope(FamilyEd25519, key.Sign(digest[:]), key.PublicKey())
}

// CorrelatesWith reports whether the public key belongs to the account: an
// exact match, a 32-byte prefix of a longer account encoding, or the
// BLAKE2b-256 of the key.
func CorrelatesWith(account, publicKey []byte) bool {
	if len(publicKey) != publicKeyLength {
		return false
	}
	if bytes.Equal(account, publicKey) {
		return true
	}
	if len(account) > publicKeyLength && bytes.Equal(account[:publicKeyLength], publicKey) {
		return true
	}
	if len(account) == publicKeyLength {
		hashed := crypto.Blake2b256(publicKey)
		return bytes.Equal(account, hashed[:])
	}
	return false
}

type familyChecker func(signature, publicKey, digest []byte) error

// Verifier checks ownership proofs against canonical messages.
type Verifier struct {
	mode     VerificationMode
	checkers map[SignatureFamily]familyChecker
}

// NewVerifier returns a verifier for the requested mode.
func NewVerifier(mode VerificationMode) *Verifier {
	v := &Verifier{mode: mode, checkers: make(map[SignatureFamily]familyChecker)}
	switch mode {
	case ModeStrict:
		v.checkers[FamilyEd25519] = verifyEd25519
		v.checkers[FamilySr25519] = func([]byte, []byte, []byte) error {
			return fmt.Errorf("%w: sr25519 proofs cannot be verified in strict mode", ErrInvalidProof)
		}
	default:
		v.mode = ModeCorrelation
		v.checkers[FamilyEd25519] = checkStructure
		v.checkers[FamilySr25519] = checkStructure
	}
	return v
}

// Mode reports the active verification mode.
func (v *Verifier) Mode() VerificationMode {
	if v == nil {
		return ModeCorrelation
	}
	return v.mode
}

// Verify decodes the envelope, correlates its key with account and checks
// the signature over SHA-256(message) with the family-specific checker.
func (v *Verifier) Verify(account crypto.AccountID, message string, proof []byte) error {
	env, err := DecodeEnvelope(proof)
	if err != nil {
		return err
	}
	if !CorrelatesWith(account.Bytes(), env.PublicKey[:]) {
		return fmt.Errorf("%w: public key does not belong to account", ErrInvalidProof)
	}
	checker, ok := v.checkers[env.Family]
	if !ok {
		return fmt.Errorf("%w: unsupported signature family %d", ErrInvalidProof, env.Family)
	}
	digest := MessageDigest(message)
	return checker(env.Signature[:], env.PublicKey[:], digest[:])
}

func checkStructure(signature, publicKey, _ []byte) error {
	if len(signature) != signatureLength || len(publicKey) != publicKeyLength {
		return ErrInvalidProof
	}
	return nil
}

func verifyEd25519(signature, publicKey, digest []byte) error {
	if err := checkStructure(signature, publicKey, digest); err != nil {
		return err
	}
	if !crypto.VerifyEd25519(publicKey, digest, signature) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidProof)
	}
	return nil
}
