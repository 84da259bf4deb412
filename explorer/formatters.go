package explorer

import "strings"

var eventLabels = map[string]string{
	"jid.registered":   "Registered",
	"jid.transferred":  "Transferred",
	"jid.updated":      "Metadata updated",
	"jid.revoked":      "Revoked by owner",
	"jid.adminRevoked": "Revoked by administrator",
	"jid.paused":       "Registry pause toggled",
}

// EventLabel returns the explorer label for a registry event type.
func EventLabel(eventType string) string {
	normalized := strings.TrimSpace(eventType)
	if label, ok := eventLabels[normalized]; ok {
		return label
	}
	if normalized == "" {
		return "Unknown"
	}
	return normalized
}

// ShortHash abbreviates a hex digest for display.
func ShortHash(hash string) string {
	trimmed := strings.TrimPrefix(strings.TrimSpace(hash), "0x")
	if len(trimmed) <= 12 {
		return trimmed
	}
	return trimmed[:6] + "…" + trimmed[len(trimmed)-6:]
}
