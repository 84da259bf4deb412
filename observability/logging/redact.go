package logging

import (
	"encoding/hex"
	"log/slog"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// RedactedValue replaces secrets in log output.
const RedactedValue = "[REDACTED]"

type maskRule int

const (
	maskRedact maskRule = iota + 1
	maskFingerprint
)

// Keys matched case-insensitively. Identifiers that operators still need to
// correlate across lines are fingerprinted instead of dropped.
var maskedKeys = map[string]maskRule{
	"jid":           maskFingerprint,
	"newjid":        maskFingerprint,
	"metadata":      maskFingerprint,
	"reason":        maskRedact,
	"token":         maskRedact,
	"authorization": maskRedact,
	"secret":        maskRedact,
	"passphrase":    maskRedact,
	"proof":         maskRedact,
	"signature":     maskRedact,
	"privatekey":    maskRedact,
}

func ruleFor(key string) maskRule {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.NewReplacer("_", "", "-", "").Replace(normalized)
	return maskedKeys[normalized]
}

// Sensitive reports whether values logged under key are rewritten.
func Sensitive(key string) bool {
	return ruleFor(key) != 0
}

// Fingerprint is a short stable digest of value. Two log lines about the
// same handle share a fingerprint without the handle appearing in either.
func Fingerprint(value string) string {
	sum := blake2b.Sum256([]byte(strings.ToLower(strings.TrimSpace(value))))
	return "fp:" + hex.EncodeToString(sum[:6])
}

// MaskAttr rewrites string attributes whose key is sensitive. Empty values and
// non-string kinds pass through. It has the slog ReplaceAttr signature so the
// JSON handler applies it to every record.
func MaskAttr(_ []string, attr slog.Attr) slog.Attr {
	rule := ruleFor(attr.Key)
	if rule == 0 || attr.Value.Kind() != slog.KindString {
		return attr
	}
	value := attr.Value.String()
	if strings.TrimSpace(value) == "" {
		return attr
	}
	if rule == maskFingerprint {
		return slog.String(attr.Key, Fingerprint(value))
	}
	return slog.String(attr.Key, RedactedValue)
}
