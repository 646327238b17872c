package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yndnr/metastore-go/internal/core/domain"
	"github.com/yndnr/metastore-go/internal/telemetry/logger"
	"github.com/yndnr/metastore-go/pkg/crypto/adaptive"
)

// Verify validates the configuration and reports every problem found.
func Verify(cfg *ServerConfig) error {
	return errors.Join(
		verifyServer(&cfg.Server),
		verifyStorage(&cfg.Storage),
		verifyLog(&cfg.Log),
	)
}

func verifyServer(cfg *ServerSection) error {
	var errs []error
	if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.http.addr: %w", err))
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.http: tls_cert_file and tls_key_file must be set together"))
	}
	if cfg.HTTP.TLSClientCAFile != "" && cfg.HTTP.TLSCertFile == "" {
		errs = append(errs, errors.New("server.http: tls_client_ca_file requires tls_cert_file"))
	}
	for _, f := range []string{cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile, cfg.HTTP.TLSClientCAFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			errs = append(errs, fmt.Errorf("server.http: %w", err))
		}
	}
	if cfg.HTTP.RateLimit < 0 {
		errs = append(errs, errors.New("server.http.rate_limit must not be negative"))
	}
	for _, entry := range cfg.HTTP.AdminAllowList {
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				errs = append(errs, fmt.Errorf("server.http.admin_allow_list: %w", err))
			}
		} else if net.ParseIP(entry) == nil {
			errs = append(errs, fmt.Errorf("server.http.admin_allow_list: invalid ip %q", entry))
		}
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must not be negative"))
	}
	return errors.Join(errs...)
}

func verifyStorage(cfg *StorageSection) error {
	var errs []error
	if cfg.MetaDir == "" {
		errs = append(errs, errors.New("storage.meta_dir is required"))
	} else if err := os.MkdirAll(cfg.MetaDir, 0o750); err != nil {
		errs = append(errs, fmt.Errorf("storage.meta_dir: cannot create: %w", err))
	}

	if cfg.TableCount < 1 || cfg.TableCount > domain.MaxTables {
		errs = append(errs, fmt.Errorf("storage.table_count must be in [1,%d], got %d", domain.MaxTables, cfg.TableCount))
	}
	switch cfg.WALSyncMode {
	case "sync", "batch":
	default:
		errs = append(errs, fmt.Errorf("storage.wal_sync_mode must be sync or batch, got %q", cfg.WALSyncMode))
	}
	if cfg.WALSyncInterval < 0 {
		errs = append(errs, errors.New("storage.wal_sync_interval must not be negative"))
	}
	if cfg.WALMaxFileSize < 0 {
		errs = append(errs, errors.New("storage.wal_max_file_size must not be negative"))
	}
	if cfg.WALRetain < 1 {
		errs = append(errs, errors.New("storage.wal_retain must be at least 1"))
	}
	if cfg.CheckpointInterval < 0 || cfg.CheckpointWALBytes < 0 {
		errs = append(errs, errors.New("storage: checkpoint triggers must not be negative"))
	}
	if cfg.WALEncryptionKey != "" {
		if _, err := adaptive.ParseKey(cfg.WALEncryptionKey); err != nil {
			errs = append(errs, fmt.Errorf("storage.wal_encryption_key: %w", err))
		}
	}
	return errors.Join(errs...)
}

func verifyLog(cfg *LogSection) error {
	var errs []error
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch cfg.Format {
	case "", "json", "text", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", cfg.Format))
	}
	return errors.Join(errs...)
}
