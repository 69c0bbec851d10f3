package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces the value of sensitive attributes.
const RedactedValue = "[REDACTED]"

// sensitiveMarkers match attribute keys case-insensitively by substring, so
// "hmacSecret" and "auth_token" are both caught. A bare "token" is a currency
// symbol here and stays visible.
var sensitiveMarkers = []string{
	"secret",
	"authtoken",
	"bearer",
	"jwt",
	"passphrase",
	"password",
	"authorization",
	"privatekey",
}

// IsSensitive reports whether values logged under key must be masked.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(key))
	for _, marker := range sensitiveMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

// redactAttr masks sensitive string-like attributes. Empty values pass
// through so a missing secret is still visible as missing.
func redactAttr(attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && strings.TrimSpace(attr.Value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
