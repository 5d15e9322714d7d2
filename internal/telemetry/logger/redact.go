package logger

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Key fragments whose values are always redacted.
var sensitiveKeyPatterns = []string{
	"passphrase",
	"password",
	"secret",
	"token",
	"credential",
	"bearer",
}

const redactedValue = "***REDACTED***"

// secrets are literal values registered at startup, e.g. the snapshot
// encryption passphrase. Any string attribute containing one is redacted
// whatever its key.
var (
	secretsMu sync.RWMutex
	secrets   []string
)

// RegisterSecret redacts value wherever it shows up in a log attribute.
// Values shorter than four bytes are ignored.
func RegisterSecret(value string) {
	if len(value) < 4 {
		return
	}
	secretsMu.Lock()
	defer secretsMu.Unlock()
	if !slices.Contains(secrets, value) {
		secrets = append(secrets, value)
	}
}

func containsSecret(s string) bool {
	secretsMu.RLock()
	defer secretsMu.RUnlock()
	for _, secret := range secrets {
		if strings.Contains(s, secret) {
			return true
		}
	}
	return false
}

func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		v := a.Value.String()
		if v == "" {
			return a
		}
		if IsSensitiveKey(a.Key) || containsSecret(v) {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindAny:
		// errors and Stringers may embed a secret in their text
		if err, ok := a.Value.Any().(error); ok && containsSecret(err.Error()) {
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

// RedactString replaces every registered secret in value.
func RedactString(value string) string {
	secretsMu.RLock()
	defer secretsMu.RUnlock()
	for _, secret := range secrets {
		value = strings.ReplaceAll(value, secret, redactedValue)
	}
	return value
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}
