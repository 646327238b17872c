// Package config defines the metastore-server configuration.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: validation of loaded values
//   - sanitize.go: copy safe for logging
//
// Configuration is loaded via internal/infra/confloader.
package config
