package benchmark

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"testing"

	"github.com/yndnr/metastore-go/internal/core/domain"
	"github.com/yndnr/metastore-go/internal/storage"
	"github.com/yndnr/metastore-go/internal/storage/wal"
)

// RowCounts defines the live row counts for benchmarking.
var RowCounts = []int{1000, 10000, 50000, 100000}

// SmallRowCounts for quick benchmarks.
var SmallRowCounts = []int{1000, 10000}

const benchTables = 12

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// benchRow creates row i. Keys spread over all tables.
func benchRow(i int, value []byte) *domain.Row {
	return &domain.Row{
		Table:     domain.TableID(i % benchTables),
		Key:       fmt.Appendf(nil, "key-%08d", i),
		Value:     value,
		UpdatedAt: 1,
	}
}

// engineConfig returns a quiet engine config without background work.
func engineConfig(metaDir string, indexEnabled bool) storage.Config {
	cfg := storage.DefaultConfig(metaDir)
	cfg.TableCount = benchTables
	cfg.CheckpointInterval = 0
	cfg.CheckpointWALBytes = 0
	cfg.IndexEnabled = indexEnabled
	cfg.WAL.SyncMode = wal.SyncModeBatch
	cfg.Logger = discard
	return cfg
}

// prefillMetaDir writes count rows, rewrites each of them updates times
// and checkpoints, leaving a log much longer than the live row set.
func prefillMetaDir(b *testing.B, metaDir string, count, updates int) {
	b.Helper()
	ctx := context.Background()

	engine, err := storage.New(engineConfig(metaDir, true))
	if err != nil {
		b.Fatalf("storage.New: %v", err)
	}
	defer engine.Close()
	if err := engine.Recover(ctx); err != nil {
		b.Fatalf("Recover: %v", err)
	}

	value := make([]byte, 128)
	for i := 0; i < count; i++ {
		if _, err := engine.Insert(ctx, benchRow(i, value)); err != nil {
			b.Fatalf("Insert: %v", err)
		}
	}
	for u := 0; u < updates; u++ {
		for i := 0; i < count; i++ {
			if _, err := engine.Update(ctx, benchRow(i, value), 0); err != nil {
				b.Fatalf("Update: %v", err)
			}
		}
	}
	if _, err := engine.Checkpoint(ctx); err != nil {
		b.Fatalf("Checkpoint: %v", err)
	}
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithRowCounts runs a benchmark function with various row counts.
func runWithRowCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("rows_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
