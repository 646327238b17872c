package config

import "time"

// CLIConfig is the configuration for metastore-cli.
type CLIConfig struct {
	// Server is the metastore-server address, host:port or a URL.
	Server string `koanf:"server" yaml:"server"`

	// Output is the default output format: table, json or yaml.
	Output string `koanf:"output" yaml:"output"`

	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`

	// CACertFile verifies an HTTPS server. ClientCertFile and
	// ClientKeyFile authenticate against a server requiring mutual TLS.
	CACertFile     string `koanf:"ca_cert_file" yaml:"ca_cert_file,omitempty"`
	ClientCertFile string `koanf:"client_cert_file" yaml:"client_cert_file,omitempty"`
	ClientKeyFile  string `koanf:"client_key_file" yaml:"client_key_file,omitempty"`

	// EncryptionKey decrypts WAL segments for the offline commands.
	EncryptionKey string `koanf:"encryption_key" yaml:"encryption_key,omitempty"`
}
