package wal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DefaultRetainCount is the default number of segments kept after compaction.
const DefaultRetainCount = 3

// Compactor deletes segments made redundant by a checkpoint.
type Compactor struct {
	walDir      string
	retainCount int
}

// CompactorOption configures the Compactor.
type CompactorOption func(*Compactor)

// WithRetainCount sets the minimum number of segments to keep.
func WithRetainCount(count int) CompactorOption {
	return func(c *Compactor) {
		if count > 0 {
			c.retainCount = count
		}
	}
}

// NewCompactor creates a compactor for walDir.
func NewCompactor(walDir string, opts ...CompactorOption) *Compactor {
	c := &Compactor{
		walDir:      walDir,
		retainCount: DefaultRetainCount,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compact removes segments older than the segment of keepFrom, a composite
// offset (segmentID<<32 | offset). The newest retainCount segments are
// always kept. It returns the removed paths.
func (c *Compactor) Compact(keepFrom uint64) ([]string, error) {
	segs, err := c.segments()
	if err != nil {
		return nil, err
	}

	keepID := keepFrom >> 32
	var older []segmentInfo
	for _, s := range segs {
		if s.id < keepID {
			older = append(older, s)
		}
	}

	// older is a prefix of segs; trim it so retainCount files survive.
	if excess := len(segs) - c.retainCount; len(older) > excess {
		if excess < 0 {
			excess = 0
		}
		older = older[:excess]
	}

	var removed []string
	var errs []error
	for _, s := range older {
		if err := os.Remove(s.path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", s.path, err))
			continue
		}
		removed = append(removed, s.path)
	}

	if len(errs) > 0 {
		return removed, fmt.Errorf("wal: failed to delete %d files: %w", len(errs), errors.Join(errs...))
	}
	return removed, nil
}

// NeedsCompaction reports whether the segments exceed threshold bytes.
func (c *Compactor) NeedsCompaction(threshold int64) bool {
	total, _ := c.TotalSize()
	return threshold > 0 && total > threshold
}

// TotalSize returns the size of all segments in bytes.
func (c *Compactor) TotalSize() (int64, error) {
	segs, err := c.segments()
	if err != nil {
		return 0, err
	}

	var total int64
	for _, s := range segs {
		info, err := os.Stat(s.path)
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

// FileCount returns the number of segments.
func (c *Compactor) FileCount() (int, error) {
	segs, err := c.segments()
	if err != nil {
		return 0, err
	}
	return len(segs), nil
}

// segments lists segments oldest first.
func (c *Compactor) segments() ([]segmentInfo, error) {
	entries, err := os.ReadDir(c.walDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var segs []segmentInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if id, ok := ParseSegmentFilename(entry.Name()); ok {
			segs = append(segs, segmentInfo{id: id, path: filepath.Join(c.walDir, entry.Name())})
		}
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].id < segs[j].id })
	return segs, nil
}
