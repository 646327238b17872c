package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/yndnr/metastore-go/internal/core/domain"
	"github.com/yndnr/metastore-go/internal/storage/wal"
	"github.com/yndnr/metastore-go/internal/storage/walindex"
	"github.com/yndnr/metastore-go/internal/telemetry/metric"
	"github.com/yndnr/metastore-go/pkg/crypto/adaptive"
)

// ErrCheckpointSpansSegments is returned when the row dump of a checkpoint
// did not fit into a single WAL segment.
var ErrCheckpointSpansSegments = errors.New("storage: checkpoint dump spans more than one wal segment")

var errNoIndex = errors.New("storage: no wal index")

// RecoveryInfo describes the last Recover call.
type RecoveryInfo struct {
	// Mode is "index" when rows were restored from the WAL index and
	// "replay" when the whole log was replayed.
	Mode string `json:"mode"`

	// Fallback holds the reason a present index could not be used.
	Fallback string `json:"fallback,omitempty"`

	Segment   string        `json:"segment,omitempty"`
	FromIndex int           `json:"from_index"`
	Replayed  int           `json:"replayed"`
	Skipped   int           `json:"skipped"`
	Torn      int           `json:"torn_segments"`
	Version   uint64        `json:"version"`
	Elapsed   time.Duration `json:"elapsed"`
}

// IndexStatus reports the state of the WAL index.
type IndexStatus struct {
	Enabled   bool                  `json:"enabled"`
	Path      string                `json:"path"`
	Present   bool                  `json:"present"`
	SizeBytes int64                 `json:"size_bytes"`
	LastBuild *walindex.BuildResult `json:"last_build,omitempty"`
	LastError string                `json:"last_error,omitempty"`
	Recovery  *RecoveryInfo         `json:"recovery,omitempty"`
}

// IndexStatus returns the current index state.
func (e *Engine) IndexStatus() IndexStatus {
	st := IndexStatus{
		Enabled: e.cfg.IndexEnabled,
		Path:    e.indexPath,
	}
	if fi, err := os.Stat(e.indexPath); err == nil {
		st.Present = true
		st.SizeBytes = fi.Size()
	}

	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	st.LastBuild = e.lastBuild
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	if e.recovery != nil {
		r := *e.recovery
		st.Recovery = &r
	}
	return st
}

// Recover loads the rows persisted in the WAL.
//
// Recovery process:
//  1. Restore rows from the WAL index (if enabled and present)
//  2. Replay WAL records written after the indexed segment range
//
// Any restore failure discards the partially restored rows and falls back
// to replaying the whole log.
func (e *Engine) Recover(ctx context.Context) error {
	startTime := time.Now()
	e.logger.Info("storage recovery started", "index_enabled", e.cfg.IndexEnabled)

	e.mu.Lock()
	defer e.mu.Unlock()

	info := &RecoveryInfo{Mode: metric.RecoveryReplay}
	var from uint64

	if e.cfg.IndexEnabled {
		res, err := e.restoreIndex(ctx)
		switch {
		case err == nil:
			info.Mode = metric.RecoveryIndex
			info.Segment = res.Segment
			info.FromIndex = res.Entries
			from = res.from
			e.logger.Info("wal index restored",
				"path", e.indexPath,
				"segment", res.Segment,
				"entries", res.Entries,
				"max_offset", res.MaxOffset,
				"elapsed", time.Since(startTime))

		case errors.Is(err, errNoIndex):
			e.logger.Info("no wal index found, replaying full wal", "path", e.indexPath)

		case ctx.Err() != nil:
			return ctx.Err()

		default:
			e.logger.Warn("wal index restore failed, falling back to full replay",
				"path", e.indexPath,
				"error", err)
			info.Fallback = err.Error()
			e.store.Clear()
			e.version = 0
		}
	}

	replayStart := time.Now()
	if err := e.replayWAL(ctx, from, info); err != nil {
		return fmt.Errorf("replay wal: %w", err)
	}
	if info.Replayed > 0 {
		e.logger.Info("wal replayed",
			"entries_applied", info.Replayed,
			"from_offset", from,
			"elapsed", time.Since(replayStart))
	}
	if info.Torn > 0 {
		e.logger.Warn("wal segments ended on a damaged frame", "count", info.Torn)
	}

	info.Version = e.version
	info.Elapsed = time.Since(startTime)
	e.metrics.ObserveRecovery(info.Mode, info.Elapsed, info.FromIndex, info.Replayed)

	e.statusMu.Lock()
	e.recovery = info
	e.statusMu.Unlock()

	e.logger.Info("recovery completed",
		"mode", info.Mode,
		"elapsed", info.Elapsed,
		"row_count", e.store.Count(),
		"version", e.version)
	return nil
}

type restoreResult struct {
	*walindex.RestoreResult
	from uint64
}

// restoreIndex loads every indexed row. It returns errNoIndex when no
// index file exists.
func (e *Engine) restoreIndex(ctx context.Context) (*restoreResult, error) {
	if _, err := os.Stat(e.indexPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errNoIndex
		}
		return nil, err
	}

	res, err := walindex.Restore(e.indexPath, func(seg io.ReaderAt, segment string, table domain.TableID, version uint64, ie walindex.Entry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, err := ReadIndexed(seg, segment, table, ie, e.cfg.Cipher)
		if err != nil {
			return err
		}
		if err := e.store.Apply(domain.ActionInsert, entry.Row()); err != nil {
			return err
		}
		e.version = max(e.version, entry.Version, version)
		return nil
	})
	if err != nil {
		// The index exists, so a missing segment is corruption, not absence.
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: indexed segment missing: %v", walindex.ErrCorruptFormat, err)
		}
		return nil, err
	}

	out := &restoreResult{RestoreResult: res}
	if res.Segment != "" {
		id, ok := wal.ParseSegmentFilename(res.Segment)
		if !ok {
			return nil, fmt.Errorf("%w: segment name %q", walindex.ErrCorruptFormat, res.Segment)
		}
		out.from = wal.CompositeOffset(id, res.MaxOffset)
	}
	return out, nil
}

// replayWAL applies WAL records from the given composite offset.
func (e *Engine) replayWAL(ctx context.Context, fromOffset uint64, info *RecoveryInfo) error {
	reader, err := wal.NewReader(e.wal.Dir(), e.cfg.Cipher)
	if err != nil {
		return err
	}
	defer reader.Close()

	if err := reader.Seek(fromOffset); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, err := reader.Read()
		if err != nil {
			if isEOF(err) {
				break
			}
			return err
		}

		if err := e.store.Apply(entry.Action, entry.Row()); err != nil {
			e.logger.Warn("apply wal entry failed",
				"action", entry.Action,
				"table", entry.Table,
				"error", err)
			info.Skipped++
			continue
		}
		e.version = max(e.version, entry.Version)
		info.Replayed++
	}

	info.Torn = reader.TornSegments()
	return nil
}

// Checkpoint rewrites the live rows into a fresh WAL segment, builds the
// WAL index over it and compacts the segments it supersedes.
//
// Mutations are blocked for the duration so the index covers exactly the
// rows dumped. A nil result with a nil error means the index is disabled.
func (e *Engine) Checkpoint(ctx context.Context) (*walindex.BuildResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	e.logger.Info("checkpoint started")

	segID, segPath, err := e.wal.Rotate()
	if err != nil {
		return nil, fmt.Errorf("rotate wal: %w", err)
	}

	rows := e.store.All()
	for _, r := range rows {
		if err := e.wal.Append(wal.NewInsertEntry(r)); err != nil {
			return nil, fmt.Errorf("dump rows: %w", err)
		}
	}
	if err := e.wal.Flush(); err != nil {
		return nil, fmt.Errorf("dump rows: %w", err)
	}
	if e.wal.SegmentID() != segID {
		return nil, e.buildFailed(fmt.Errorf("%w: %d rows", ErrCheckpointSpansSegments, len(rows)), start)
	}

	var res *walindex.BuildResult
	if e.cfg.IndexEnabled {
		res, err = e.buildIndex(ctx, segPath, len(rows))
		if err != nil {
			return nil, e.buildFailed(err, start)
		}
		e.metrics.ObserveIndexBuild(nil, res.Duration, res.Entries, res.Bytes)

		e.statusMu.Lock()
		e.lastBuild = res
		e.lastErr = nil
		e.statusMu.Unlock()

		e.logger.Info("wal index built",
			"id", res.ID,
			"segment", res.Segment,
			"entries", res.Entries,
			"bytes", res.Bytes,
			"max_version", res.MaxVersion,
			"elapsed", res.Duration)
	}

	// Best-effort WAL compaction after checkpoint.
	removed, err := e.compactor.Compact(wal.CompositeOffset(segID, 0))
	if err != nil {
		e.logger.Warn("wal compaction failed", "error", err)
	}

	e.logger.Info("checkpoint completed",
		"segment", segPath,
		"rows", len(rows),
		"segments_removed", len(removed),
		"elapsed", time.Since(start))
	return res, nil
}

// buildIndex replays one segment into an accumulator and persists it.
func (e *Engine) buildIndex(ctx context.Context, segPath string, want int) (*walindex.BuildResult, error) {
	acc, err := AccumulateSegment(ctx, segPath, e.cfg.TableCount, e.cfg.Cipher)
	if err != nil {
		return nil, err
	}
	acc.NoteVersion(e.version)

	if acc.Applied() != want {
		return nil, &walindex.InvariantError{What: "dumped records", Want: int64(want), Got: int64(acc.Applied())}
	}

	return walindex.Build(acc, e.indexPath)
}

// AccumulateSegment replays the WAL segment at segPath into a fresh
// accumulator. A segment ending on a damaged frame is rejected.
func AccumulateSegment(ctx context.Context, segPath string, tableCount int, cipher adaptive.Cipher) (*walindex.Accumulator, error) {
	acc, err := walindex.NewAccumulator(tableCount)
	if err != nil {
		return nil, err
	}

	reader, err := wal.NewSegmentReader(segPath, cipher)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, pos, err := reader.ReadWithPosition()
		if err != nil {
			if isEOF(err) {
				break
			}
			return nil, err
		}
		if err := acc.Apply(walindex.Record{
			Action:  entry.Action,
			Table:   entry.Table,
			Key:     entry.Key,
			Offset:  pos.Offset,
			Length:  pos.Length,
			Version: entry.Version,
			Segment: pos.Segment,
		}); err != nil {
			return nil, err
		}
	}

	if reader.TornSegments() > 0 {
		return nil, fmt.Errorf("segment %s has a damaged frame", segPath)
	}
	return acc, nil
}

// ReadIndexed fetches the record an index entry points at and checks
// that it is a live write of the same table and key.
func ReadIndexed(seg io.ReaderAt, segment string, table domain.TableID, ie walindex.Entry, cipher adaptive.Cipher) (*wal.Entry, error) {
	entry, err := wal.ReadFrameAt(seg, ie.Offset, ie.Length, cipher)
	if err != nil {
		return nil, err
	}
	if entry.Table != table || !bytes.Equal(entry.Key, ie.Key) {
		return nil, fmt.Errorf("record at %s:%d is %s/%q", segment, ie.Offset, entry.Table, entry.Key)
	}
	if entry.Action == domain.ActionDelete {
		return nil, fmt.Errorf("record at %s:%d is a delete", segment, ie.Offset)
	}
	return entry, nil
}

// buildFailed removes any stale index so the next recovery replays the
// whole log, and records the failure.
func (e *Engine) buildFailed(err error, start time.Time) error {
	if rmErr := os.Remove(e.indexPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		e.logger.Warn("remove stale wal index failed", "path", e.indexPath, "error", rmErr)
	}
	e.metrics.ObserveIndexBuild(err, time.Since(start), 0, 0)

	e.statusMu.Lock()
	e.lastErr = err
	e.statusMu.Unlock()

	e.logger.Error("wal index build failed", "error", err)
	return fmt.Errorf("build wal index: %w", err)
}
