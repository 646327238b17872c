package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr        = "127.0.0.1:5080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultRateLimit       = 1000

	DefaultMetaDir            = "/var/lib/metastore/meta"
	DefaultTableCount         = 12
	DefaultWALSyncMode        = "batch"
	DefaultWALSyncInterval    = 100 * time.Millisecond
	DefaultWALMaxFileSize     = 64 << 20
	DefaultWALRetain          = 2
	DefaultCheckpointInterval = 10 * time.Minute
	DefaultCheckpointWALBytes = 256 << 20

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:         DefaultHTTPAddr,
				ReadTimeout:  DefaultReadTimeout,
				WriteTimeout: DefaultWriteTimeout,
				RateLimit:    DefaultRateLimit,
			},
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Storage: StorageSection{
			MetaDir:            DefaultMetaDir,
			TableCount:         DefaultTableCount,
			WALSyncMode:        DefaultWALSyncMode,
			WALSyncInterval:    DefaultWALSyncInterval,
			WALMaxFileSize:     DefaultWALMaxFileSize,
			WALRetain:          DefaultWALRetain,
			CheckpointInterval: DefaultCheckpointInterval,
			CheckpointWALBytes: DefaultCheckpointWALBytes,
			IndexEnabled:       true,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
