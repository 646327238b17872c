package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/yndnr/metastore-go/internal/infra/confloader"
)

// EnvPrefix prefixes the CLI's environment variables.
const EnvPrefix = "METASTORE_CLI_"

// Default values.
const (
	DefaultServer  = "127.0.0.1:5080"
	DefaultOutput  = "table"
	DefaultTimeout = 30 * time.Second
)

// Default returns the built-in configuration.
func Default() *CLIConfig {
	return &CLIConfig{
		Server:  DefaultServer,
		Output:  DefaultOutput,
		Timeout: DefaultTimeout,
	}
}

// DefaultConfigPath returns the default CLI config file path.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".metastore", "cli.yaml")
}

// Load reads the configuration file at path, or the default path when
// path is empty, and applies the environment. A missing default file is
// not an error; a missing explicit file is.
func Load(path string) (*CLIConfig, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && !explicit {
			path = ""
		}
	}

	cfg := Default()
	loader := confloader.NewLoader(
		confloader.WithEnvPrefix(EnvPrefix),
		confloader.WithConfigFile(path),
	)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
