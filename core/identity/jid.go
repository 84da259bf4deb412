package identity

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MinJIDLength is the shortest identifier accepted.
	MinJIDLength = 3
	// MaxJIDLength is the longest identifier accepted.
	MaxJIDLength = 64
)

var (
	// ErrInvalidJID is returned when the supplied identifier does not satisfy
	// the naming constraints.
	ErrInvalidJID = errors.New("identity: invalid jid")

	forbiddenPairs = []string{"..", "--", ".-", "-."}
)

// Normalize lower-cases the identifier. Case is not an identity dimension, so
// normalization happens before validation and before hashing.
func Normalize(jid string) string {
	return strings.ToLower(jid)
}

// ValidateJID checks an already normalized identifier.
func ValidateJID(jid string) error {
	length := len(jid)
	if length < MinJIDLength || length > MaxJIDLength {
		return fmt.Errorf("%w: must be between %d and %d characters", ErrInvalidJID, MinJIDLength, MaxJIDLength)
	}
	if isSeparator(jid[0]) || isSeparator(jid[length-1]) {
		return fmt.Errorf("%w: cannot start or end with '.' or '-'", ErrInvalidJID)
	}
	for i := 0; i < length; i++ {
		c := jid[i]
		if !isASCIIAlphanumeric(c) && !isSeparator(c) {
			return fmt.Errorf("%w: allowed characters are [a-z0-9.-]", ErrInvalidJID)
		}
	}
	for _, pair := range forbiddenPairs {
		if strings.Contains(jid, pair) {
			return fmt.Errorf("%w: consecutive separators %q", ErrInvalidJID, pair)
		}
	}
	return nil
}

// NormalizeJID lower-cases and validates the identifier, returning the
// canonical form.
func NormalizeJID(jid string) (string, error) {
	normalized := Normalize(jid)
	if err := ValidateJID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

func isSeparator(c byte) bool { return c == '.' || c == '-' }

func isASCIIAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
