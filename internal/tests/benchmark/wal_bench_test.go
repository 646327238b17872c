package benchmark

import (
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/yndnr/metastore-go/internal/storage/wal"
)

func newBenchWriter(b *testing.B, dir string, mode wal.SyncMode, maxFileSize int64) *wal.Writer {
	b.Helper()
	cfg := wal.DefaultConfig(dir)
	cfg.SyncMode = mode
	cfg.MaxFileSize = maxFileSize

	w, err := wal.NewWriter(cfg)
	if err != nil {
		b.Fatalf("Failed to create WAL writer: %v", err)
	}
	return w
}

// BenchmarkWALAppend benchmarks WAL append operations.
func BenchmarkWALAppend(b *testing.B) {
	w := newBenchWriter(b, b.TempDir(), wal.SyncModeBatch, 64<<20)
	defer w.Close()

	row := benchRow(1, make([]byte, 128))

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		row.Version = uint64(i + 1)
		if err := w.Append(wal.NewUpdateEntry(row)); err != nil {
			b.Fatalf("Append failed: %v", err)
		}
	}
}

// BenchmarkWALAppendWithSync benchmarks WAL append with sync.
func BenchmarkWALAppendWithSync(b *testing.B) {
	w := newBenchWriter(b, b.TempDir(), wal.SyncModeSync, 64<<20)
	defer w.Close()

	row := benchRow(1, make([]byte, 128))

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		row.Version = uint64(i + 1)
		if err := w.Append(wal.NewUpdateEntry(row)); err != nil {
			b.Fatalf("Append failed: %v", err)
		}
	}
}

// BenchmarkWALMixedOperations benchmarks interleaved inserts, updates
// and deletes.
func BenchmarkWALMixedOperations(b *testing.B) {
	w := newBenchWriter(b, b.TempDir(), wal.SyncModeBatch, 64<<20)
	defer w.Close()

	value := make([]byte, 64)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		row := benchRow(i/3, value)
		row.Version = uint64(i + 1)

		var entry *wal.Entry
		switch i % 3 {
		case 0:
			entry = wal.NewInsertEntry(row)
		case 1:
			entry = wal.NewUpdateEntry(row)
		case 2:
			entry = wal.NewDeleteEntry(row.Table, row.Key, row.Version)
		}
		if err := w.Append(entry); err != nil {
			b.Fatalf("Append failed: %v", err)
		}
	}
}

// BenchmarkWALFileRotation benchmarks WAL file rotation.
func BenchmarkWALFileRotation(b *testing.B) {
	dir := b.TempDir()
	w := newBenchWriter(b, dir, wal.SyncModeBatch, 4*1024)
	defer w.Close()

	value := make([]byte, 64)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		row := benchRow(i, value)
		row.Version = uint64(i + 1)
		if err := w.Append(wal.NewInsertEntry(row)); err != nil {
			b.Fatalf("Append failed: %v", err)
		}
	}

	b.StopTimer()
	files, _ := filepath.Glob(filepath.Join(dir, wal.FilePrefix+"*"+wal.FileExtension))
	b.ReportMetric(float64(len(files)), "files")
}

// BenchmarkWALReadWithPosition benchmarks the positioned scan used when
// building the WAL index.
func BenchmarkWALReadWithPosition(b *testing.B) {
	runWithRowCounts(b, SmallRowCounts, func(b *testing.B, count int) {
		dir := b.TempDir()
		w := newBenchWriter(b, dir, wal.SyncModeBatch, 256<<20)
		value := make([]byte, 128)
		for i := 0; i < count; i++ {
			row := benchRow(i, value)
			row.Version = uint64(i + 1)
			if err := w.Append(wal.NewInsertEntry(row)); err != nil {
				b.Fatalf("Append failed: %v", err)
			}
		}
		if err := w.Close(); err != nil {
			b.Fatalf("Close failed: %v", err)
		}

		b.ResetTimer()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			reader, err := wal.NewReader(dir, nil)
			if err != nil {
				b.Fatalf("NewReader failed: %v", err)
			}
			n := 0
			for {
				_, _, err := reader.ReadWithPosition()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					b.Fatalf("Read failed: %v", err)
				}
				n++
			}
			reader.Close()
			if n != count {
				b.Fatalf("Expected %d entries, got %d", count, n)
			}
		}
	})
}
