package identity

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateJIDAcceptsWellFormed(t *testing.T) {
	valid := []string{
		"abc",
		"alice.jid",
		"bob-smith",
		"a1.b2-c3",
		"123",
		strings.Repeat("a", MaxJIDLength),
	}
	for _, jid := range valid {
		if err := ValidateJID(jid); err != nil {
			t.Fatalf("expected %q to be valid: %v", jid, err)
		}
	}
}

func TestValidateJIDRejectsMalformed(t *testing.T) {
	invalid := map[string]string{
		"too short":        "ab",
		"too long":         strings.Repeat("a", MaxJIDLength+1),
		"empty":            "",
		"leading dot":      ".alice",
		"leading hyphen":   "-alice",
		"trailing dot":     "alice.",
		"trailing hyphen":  "alice-",
		"double dot":       "alice..jid",
		"double hyphen":    "alice--jid",
		"dot hyphen":       "alice.-jid",
		"hyphen dot":       "alice-.jid",
		"underscore":       "alice_jid",
		"space":            "alice jid",
		"at sign":          "alice@jid",
		"non-ascii letter": "alicé",
	}
	for name, jid := range invalid {
		err := ValidateJID(jid)
		if !errors.Is(err, ErrInvalidJID) {
			t.Fatalf("%s: expected ErrInvalidJID for %q, got %v", name, jid, err)
		}
	}
}

func TestLengthBoundary(t *testing.T) {
	if err := ValidateJID("ab"); !errors.Is(err, ErrInvalidJID) {
		t.Fatalf("length 2 should be rejected, got %v", err)
	}
	if err := ValidateJID("abc"); err != nil {
		t.Fatalf("length 3 should be accepted: %v", err)
	}
}

func TestNormalizeJIDFoldsCase(t *testing.T) {
	got, err := NormalizeJID("Alice.JID")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got != "alice.jid" {
		t.Fatalf("unexpected normalized value %q", got)
	}
}
