package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/yndnr/metastore-go/internal/core/domain"
	"github.com/yndnr/metastore-go/internal/storage/memory"
	"github.com/yndnr/metastore-go/internal/storage/wal"
	"github.com/yndnr/metastore-go/internal/storage/walindex"
	"github.com/yndnr/metastore-go/internal/telemetry/metric"
	"github.com/yndnr/metastore-go/pkg/crypto/adaptive"
)

// Default configuration values.
const (
	DefaultCheckpointInterval       = 10 * time.Minute
	DefaultCheckpointWALBytes int64 = 256 << 20 // 256MB
	DefaultWALRetain                = 2
	WALDirName                      = "wal"
)

// Config configures the storage engine.
type Config struct {
	// MetaDir is the base directory. The WAL and its index live in
	// MetaDir/wal.
	MetaDir string

	// TableCount is the number of tables, at most domain.MaxTables.
	TableCount int

	// WAL configuration. Dir and Cipher are filled in by New.
	WAL wal.Config

	// CheckpointInterval is the interval between automatic checkpoints.
	// Zero disables the timer.
	CheckpointInterval time.Duration

	// CheckpointWALBytes triggers a checkpoint once the WAL grows past it.
	// Zero disables the size trigger.
	CheckpointWALBytes int64

	// IndexEnabled controls building and restoring the WAL index.
	IndexEnabled bool

	// WALRetain is the minimum number of segments kept after compaction.
	WALRetain int

	// Cipher is the optional WAL encryption cipher.
	Cipher adaptive.Cipher

	// Logger is the structured logger.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metric.Registry
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig(metaDir string) Config {
	return Config{
		MetaDir:            metaDir,
		TableCount:         domain.DefaultTableCount,
		WAL:                wal.DefaultConfig(filepath.Join(metaDir, WALDirName)),
		CheckpointInterval: DefaultCheckpointInterval,
		CheckpointWALBytes: DefaultCheckpointWALBytes,
		IndexEnabled:       true,
		WALRetain:          DefaultWALRetain,
		Logger:             slog.Default(),
	}
}

// Engine combines the in-memory row store, the WAL and the WAL index.
type Engine struct {
	cfg Config

	store     *memory.Store
	wal       *wal.Writer
	compactor *wal.Compactor
	indexPath string

	// mu serializes mutations, recovery and checkpoints. Reads go to the
	// row store directly.
	mu      sync.Mutex
	version uint64

	statusMu  sync.Mutex
	lastBuild *walindex.BuildResult
	lastErr   error
	recovery  *RecoveryInfo

	logger  *slog.Logger
	metrics *metric.Registry

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// New creates a new storage engine.
//
// This initializes all components but does NOT perform recovery.
// Call Recover() after New() to load existing data.
func New(cfg Config) (*Engine, error) {
	if cfg.MetaDir == "" {
		return nil, fmt.Errorf("storage: meta_dir is required")
	}
	if cfg.TableCount <= 0 || cfg.TableCount > domain.MaxTables {
		return nil, fmt.Errorf("storage: table_count %d out of range [1,%d]", cfg.TableCount, domain.MaxTables)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	walDir := filepath.Join(cfg.MetaDir, WALDirName)
	cfg.WAL.Dir = walDir
	cfg.WAL.Cipher = cfg.Cipher

	walWriter, err := wal.NewWriter(cfg.WAL)
	if err != nil {
		return nil, fmt.Errorf("storage: create wal writer: %w", err)
	}

	e := &Engine{
		cfg:       cfg,
		store:     memory.New(cfg.TableCount),
		wal:       walWriter,
		compactor: wal.NewCompactor(walDir, wal.WithRetainCount(cfg.WALRetain)),
		indexPath: walindex.DefaultPath(cfg.MetaDir),
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	if err := cfg.Metrics.Register(metric.NewCollector(e.Stats)); err != nil {
		walWriter.Close()
		return nil, fmt.Errorf("storage: register metrics: %w", err)
	}

	go e.backgroundLoop()

	return e, nil
}

// TableCount returns the number of tables.
func (e *Engine) TableCount() int {
	return e.cfg.TableCount
}

// IndexPath returns the path of the WAL index file.
func (e *Engine) IndexPath() string {
	return e.indexPath
}

// WALDir returns the WAL segment directory.
func (e *Engine) WALDir() string {
	return e.wal.Dir()
}

func (e *Engine) nextVersion() uint64 {
	e.version++
	return e.version
}

// Insert creates a new row and returns the stored copy with its version.
//
// The operation is durable: written to WAL before memory.
func (e *Engine) Insert(ctx context.Context, row *domain.Row) (*domain.Row, error) {
	if err := e.validate(row); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.Get(ctx, row.Table, row.Key); err == nil {
		return nil, domain.ErrRowExists
	}

	r := row.Clone()
	r.Version = e.nextVersion()
	r.UpdatedAt = time.Now().UnixMilli()

	// Step 1: Write to WAL
	if err := e.wal.Append(wal.NewInsertEntry(r)); err != nil {
		return nil, domain.ErrStorageError.WithCause(fmt.Errorf("write wal: %w", err))
	}

	// Step 2: Write to memory
	if err := e.store.Insert(ctx, r); err != nil {
		return nil, err
	}

	e.metrics.IncMutation(int32(r.Table), domain.ActionInsert.String())
	return r.Clone(), nil
}

// Update replaces the value of an existing row. When expectedVersion is
// non-zero it must match the stored version.
//
// The operation is durable: written to WAL before memory.
func (e *Engine) Update(ctx context.Context, row *domain.Row, expectedVersion uint64) (*domain.Row, error) {
	if err := e.validate(row); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	existing, err := e.store.Get(ctx, row.Table, row.Key)
	if err != nil {
		return nil, err
	}
	if expectedVersion != 0 && existing.Version != expectedVersion {
		return nil, domain.ErrRowVersionConflict
	}

	r := row.Clone()
	r.Version = e.nextVersion()
	r.UpdatedAt = time.Now().UnixMilli()

	// Step 1: Write to WAL
	if err := e.wal.Append(wal.NewUpdateEntry(r)); err != nil {
		return nil, domain.ErrStorageError.WithCause(fmt.Errorf("write wal: %w", err))
	}

	// Step 2: Update memory
	if err := e.store.Update(ctx, r, existing.Version); err != nil {
		return nil, err
	}

	e.metrics.IncMutation(int32(r.Table), domain.ActionUpdate.String())
	return r.Clone(), nil
}

// Delete removes a row and returns its last stored copy.
//
// The operation is durable: written to WAL before memory.
func (e *Engine) Delete(ctx context.Context, table domain.TableID, key []byte) (*domain.Row, error) {
	if !table.Valid(e.cfg.TableCount) {
		return nil, domain.ErrInvalidArgument.WithDetails("unknown table " + table.String())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.Get(ctx, table, key); err != nil {
		return nil, err
	}

	// Step 1: Write to WAL
	if err := e.wal.Append(wal.NewDeleteEntry(table, key, e.nextVersion())); err != nil {
		return nil, domain.ErrStorageError.WithCause(fmt.Errorf("write wal: %w", err))
	}

	// Step 2: Delete from memory
	old, err := e.store.Delete(ctx, table, key)
	if err != nil {
		return nil, err
	}

	e.metrics.IncMutation(int32(table), domain.ActionDelete.String())
	return old, nil
}

func (e *Engine) validate(row *domain.Row) error {
	if row == nil {
		return domain.ErrInvalidArgument.WithDetails("row is nil")
	}
	if !row.Table.Valid(e.cfg.TableCount) {
		return domain.ErrInvalidArgument.WithDetails("unknown table " + row.Table.String())
	}
	if err := domain.ValidateKey(row.Key); err != nil {
		return err
	}
	if len(row.Value) > domain.MaxValueLength {
		return domain.ErrInvalidArgument.WithDetails("value too large")
	}
	return nil
}

// Get retrieves a row by table and key.
func (e *Engine) Get(ctx context.Context, table domain.TableID, key []byte) (*domain.Row, error) {
	return e.store.Get(ctx, table, key)
}

// List lists rows of a table matching the filter.
func (e *Engine) List(ctx context.Context, table domain.TableID, filter *memory.ListFilter) ([]*domain.Row, int, error) {
	return e.store.List(ctx, table, filter)
}

// Count returns the total number of rows in storage.
func (e *Engine) Count() int {
	return e.store.Count()
}

// CountTable returns the number of rows in one table.
func (e *Engine) CountTable(table domain.TableID) int {
	return e.store.CountTable(table)
}

// Scan iterates over all rows in storage.
func (e *Engine) Scan(fn func(*domain.Row) bool) {
	e.store.Scan(fn)
}

// Version returns the last assigned row version.
func (e *Engine) Version() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// Stats reports point-in-time storage statistics for metrics.
func (e *Engine) Stats() metric.Stats {
	s := metric.Stats{RowsPerTable: make([]int, e.cfg.TableCount)}
	for t := range s.RowsPerTable {
		s.RowsPerTable[t] = e.store.CountTable(domain.TableID(t))
	}
	if n, err := e.compactor.TotalSize(); err == nil {
		s.WALBytes = n
	}
	if n, err := e.compactor.FileCount(); err == nil {
		s.WALSegments = n
	}
	return s
}

// backgroundLoop runs periodic and size-triggered checkpoints.
func (e *Engine) backgroundLoop() {
	defer close(e.doneCh)

	if e.cfg.CheckpointInterval <= 0 && e.cfg.CheckpointWALBytes <= 0 {
		<-e.stopCh
		return
	}

	// The size trigger is polled; the interval trigger counts ticks.
	poll := time.Minute
	if e.cfg.CheckpointInterval > 0 && e.cfg.CheckpointInterval < poll {
		poll = e.cfg.CheckpointInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case now := <-ticker.C:
			due := e.cfg.CheckpointInterval > 0 && now.Sub(last) >= e.cfg.CheckpointInterval
			if !due && e.cfg.CheckpointWALBytes > 0 {
				due = e.compactor.NeedsCompaction(e.cfg.CheckpointWALBytes)
			}
			if !due {
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := e.Checkpoint(ctx); err != nil {
				e.logger.Error("auto checkpoint failed", "error", err)
			}
			cancel()
			last = time.Now()

		case <-e.stopCh:
			return
		}
	}
}

// Close gracefully shuts down the storage engine.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.logger.Info("shutting down storage engine")

		close(e.stopCh)
		<-e.doneCh

		e.mu.Lock()
		defer e.mu.Unlock()

		// Close WAL writer (this will flush pending writes)
		if err = e.wal.Close(); err != nil {
			e.logger.Error("close wal failed", "error", err)
			return
		}
		e.logger.Info("storage engine shutdown complete")
	})
	return err
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
