package logger

import (
	"encoding/base64"
	"encoding/hex"
	"log/slog"
	"strings"
)

// Attribute names whose values are never logged.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"encryption_key",
	"credential",
	"authorization",
}

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// keyMaterialSize is the size of a WAL encryption key.
const keyMaterialSize = 32

func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		v := a.Value.String()
		if v != "" && (IsSensitiveKey(a.Key) || IsKeyMaterial(v)) {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// IsSensitiveKey reports whether an attribute or config key name suggests
// secret content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

// IsKeyMaterial reports whether value decodes, as hex or standard base64,
// to exactly one encryption key.
func IsKeyMaterial(value string) bool {
	value = strings.TrimSpace(value)
	switch len(value) {
	case hex.EncodedLen(keyMaterialSize):
		_, err := hex.DecodeString(value)
		return err == nil
	case base64.StdEncoding.EncodedLen(keyMaterialSize):
		b, err := base64.StdEncoding.DecodeString(value)
		return err == nil && len(b) == keyMaterialSize
	}
	return false
}
