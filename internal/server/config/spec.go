package config

import "time"

// ServerConfig is the root configuration for metastore-server.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server" json:"server" yaml:"server"`
	Storage StorageSection `koanf:"storage" json:"storage" yaml:"storage"`
	Log     LogSection     `koanf:"log" json:"log" yaml:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http" json:"http" yaml:"http"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// HTTPConfig configures the admin and row HTTP server.
type HTTPConfig struct {
	Addr        string `koanf:"addr" json:"addr" yaml:"addr"`
	TLSCertFile string `koanf:"tls_cert_file" json:"tls_cert_file,omitempty" yaml:"tls_cert_file,omitempty"`
	TLSKeyFile  string `koanf:"tls_key_file" json:"tls_key_file,omitempty" yaml:"tls_key_file,omitempty"`

	// TLSClientCAFile, a PEM file or directory, turns on mutual TLS.
	TLSClientCAFile string `koanf:"tls_client_ca_file" json:"tls_client_ca_file,omitempty" yaml:"tls_client_ca_file,omitempty"`

	ReadTimeout  time.Duration `koanf:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout" json:"write_timeout" yaml:"write_timeout"`

	// RateLimit is the per-client request rate in requests/second. Zero
	// disables limiting.
	RateLimit int `koanf:"rate_limit" json:"rate_limit" yaml:"rate_limit"`

	// AdminAllowList restricts /admin routes to these IPs or CIDRs.
	AdminAllowList []string `koanf:"admin_allow_list" json:"admin_allow_list,omitempty" yaml:"admin_allow_list,omitempty"`
}

// StorageSection configures the storage engine, the WAL and its index.
type StorageSection struct {
	// MetaDir holds the WAL segments and the WAL index under MetaDir/wal.
	MetaDir    string `koanf:"meta_dir" json:"meta_dir" yaml:"meta_dir"`
	TableCount int    `koanf:"table_count" json:"table_count" yaml:"table_count"`

	WALSyncMode     string        `koanf:"wal_sync_mode" json:"wal_sync_mode" yaml:"wal_sync_mode"`
	WALSyncInterval time.Duration `koanf:"wal_sync_interval" json:"wal_sync_interval" yaml:"wal_sync_interval"`
	WALMaxFileSize  int64         `koanf:"wal_max_file_size" json:"wal_max_file_size" yaml:"wal_max_file_size"`
	WALRetain       int           `koanf:"wal_retain" json:"wal_retain" yaml:"wal_retain"`

	// WALEncryptionKey is a 32-byte key, hex or base64. Empty disables
	// encryption.
	WALEncryptionKey string `koanf:"wal_encryption_key" json:"wal_encryption_key,omitempty" yaml:"wal_encryption_key,omitempty"`

	CheckpointInterval time.Duration `koanf:"checkpoint_interval" json:"checkpoint_interval" yaml:"checkpoint_interval"`
	CheckpointWALBytes int64         `koanf:"checkpoint_wal_bytes" json:"checkpoint_wal_bytes" yaml:"checkpoint_wal_bytes"`
	IndexEnabled       bool          `koanf:"index_enabled" json:"index_enabled" yaml:"index_enabled"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Format string `koanf:"format" json:"format" yaml:"format"`
}
