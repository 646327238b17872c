package config

// redacted replaces secret values in sanitized output.
const redacted = "***REDACTED***"

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging and printing configuration without exposing
// the WAL encryption key.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	if sanitized.Storage.WALEncryptionKey != "" {
		sanitized.Storage.WALEncryptionKey = redacted
	}
	return &sanitized
}
