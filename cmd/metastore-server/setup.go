package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/yndnr/metastore-go/internal/infra/confloader"
	"github.com/yndnr/metastore-go/internal/server/config"
	"github.com/yndnr/metastore-go/internal/storage"
	"github.com/yndnr/metastore-go/internal/storage/wal"
	"github.com/yndnr/metastore-go/internal/telemetry/logger"
	"github.com/yndnr/metastore-go/internal/telemetry/metric"
	"github.com/yndnr/metastore-go/pkg/crypto/adaptive"
)

// loadConfig loads configuration from defaults, file and environment.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	loader := confloader.NewLoader(confloader.WithConfigFile(configFile))
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initStorage creates the storage engine. Recovery is left to the caller.
func initStorage(cfg *config.ServerConfig, log *slog.Logger, metrics *metric.Registry) (*storage.Engine, error) {
	sc := storage.DefaultConfig(cfg.Storage.MetaDir)
	sc.TableCount = cfg.Storage.TableCount
	sc.IndexEnabled = cfg.Storage.IndexEnabled
	sc.CheckpointInterval = cfg.Storage.CheckpointInterval
	sc.CheckpointWALBytes = cfg.Storage.CheckpointWALBytes
	sc.WALRetain = cfg.Storage.WALRetain
	sc.WAL.SyncMode = wal.SyncMode(cfg.Storage.WALSyncMode)
	if cfg.Storage.WALSyncInterval > 0 {
		sc.WAL.SyncInterval = cfg.Storage.WALSyncInterval
	}
	if cfg.Storage.WALMaxFileSize > 0 {
		sc.WAL.MaxFileSize = cfg.Storage.WALMaxFileSize
	}
	sc.Logger = log
	sc.Metrics = metrics

	if cfg.Storage.WALEncryptionKey != "" {
		key, err := adaptive.ParseKey(cfg.Storage.WALEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("wal encryption key: %w", err)
		}
		cipher, err := adaptive.New(key)
		if err != nil {
			return nil, err
		}
		sc.Cipher = cipher
		log.Info("wal encryption enabled", "cipher", cipher.Type())
	}

	return storage.New(sc)
}

// watchConfig applies log level changes from the config file without a
// restart. Other settings need a restart and are only reported.
func watchConfig(path string, log logger.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log.Slog()))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(path); err != nil {
		watcher.Stop()
		return nil, err
	}

	watcher.OnChange(func(string) {
		cfg, err := loadConfig(path)
		if err != nil {
			log.Warn("ignoring invalid configuration change", "path", path, "error", err)
			return
		}
		if strings.EqualFold(cfg.Log.Level, logger.GetLevel()) {
			log.Info("configuration changed; restart to apply", "path", path)
			return
		}
		if err := logger.SetLevel(cfg.Log.Level); err != nil {
			log.Warn("apply log level failed", "level", cfg.Log.Level, "error", err)
			return
		}
		log.Info("log level changed", "level", cfg.Log.Level)
	})
	watcher.StartAsync()
	return watcher, nil
}
