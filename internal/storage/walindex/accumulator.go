package walindex

import (
	"errors"
	"fmt"

	"github.com/yndnr/metastore-go/internal/core/domain"
)

// ErrSegmentMismatch is returned when one build pass sees records from
// more than one WAL segment.
var ErrSegmentMismatch = errors.New("walindex: records span more than one segment")

// Accumulator folds replayed WAL records into per-table entry stores and
// tracks the aggregates written into the file header.
//
// An Accumulator serves exactly one build pass and is not safe for
// concurrent use.
type Accumulator struct {
	segment    string
	maxOffset  int64
	maxVersion uint64
	totalSize  int64
	tableSize  []int64
	tables     []*KeyedEntryStore
	applied    int
}

// NewAccumulator creates an empty accumulator for tables [0, tableCount).
func NewAccumulator(tableCount int) (*Accumulator, error) {
	if tableCount <= 0 || tableCount > domain.MaxTables {
		return nil, fmt.Errorf("%w: table count %d out of range [1,%d]", ErrInvalidTable, tableCount, domain.MaxTables)
	}

	a := &Accumulator{
		tableSize: make([]int64, tableCount),
		tables:    make([]*KeyedEntryStore, tableCount),
	}
	for i := range a.tables {
		a.tables[i] = NewKeyedEntryStore()
	}
	return a, nil
}

// Apply folds one WAL record into the index.
//
// Delete and Update drop the key's current entry; Insert and Update append
// a fresh one at the tail of the table. All checks run before any state
// changes, so a failed Apply leaves the accumulator untouched.
func (a *Accumulator) Apply(rec Record) error {
	if !rec.Table.Valid(len(a.tables)) {
		return fmt.Errorf("%w: %d", ErrInvalidTable, rec.Table)
	}
	if !rec.Action.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidAction, rec.Action)
	}
	if rec.Offset < 0 || rec.Length < 0 {
		return fmt.Errorf("walindex: negative record position %d+%d", rec.Offset, rec.Length)
	}
	if len(rec.Key) > domain.MaxKeyLength {
		return fmt.Errorf("%w: key of %d bytes", ErrTooLarge, len(rec.Key))
	}
	if a.segment != "" && rec.Segment != "" && rec.Segment != a.segment {
		return fmt.Errorf("%w: %s then %s", ErrSegmentMismatch, a.segment, rec.Segment)
	}

	store := a.tables[rec.Table]
	total, tsize := a.totalSize, a.tableSize[rec.Table]

	removing := rec.Action == domain.ActionDelete || rec.Action == domain.ActionUpdate
	if removing {
		old, ok := store.Get(rec.Key)
		if !ok {
			return fmt.Errorf("%w: %s/%q", ErrMissingKey, rec.Table, rec.Key)
		}
		total -= old.Size()
		tsize -= old.Size()
		if total < 0 || tsize < 0 {
			return fmt.Errorf("%w: total %d, table %s %d", ErrNegativeAccounting, total, rec.Table, tsize)
		}
	} else if _, ok := store.Get(rec.Key); ok {
		return fmt.Errorf("%w: %s/%q", ErrDuplicateKey, rec.Table, rec.Key)
	}

	if removing {
		store.Remove(rec.Key)
	}
	if rec.Action != domain.ActionDelete {
		e := Entry{Key: rec.Key, Offset: rec.Offset, Length: rec.Length}
		if err := store.Append(e); err != nil {
			return err
		}
		total += e.Size()
		tsize += e.Size()
	}

	a.totalSize = total
	a.tableSize[rec.Table] = tsize
	if rec.Segment != "" {
		a.segment = rec.Segment
	}
	if end := rec.Offset + int64(rec.Length); end > a.maxOffset {
		a.maxOffset = end
	}
	if rec.Version > a.maxVersion {
		a.maxVersion = rec.Version
	}
	a.applied++
	return nil
}

// NoteVersion raises the recorded max version to v without indexing a
// record. It lets the header carry the sequence number of mutations that
// left no live entry behind.
func (a *Accumulator) NoteVersion(v uint64) {
	if v > a.maxVersion {
		a.maxVersion = v
	}
}

// Segment returns the WAL segment name of the applied records.
func (a *Accumulator) Segment() string { return a.segment }

// MaxOffset returns the largest record end offset seen.
func (a *Accumulator) MaxOffset() int64 { return a.maxOffset }

// MaxVersion returns the largest record version seen.
func (a *Accumulator) MaxVersion() uint64 { return a.maxVersion }

// TotalSize returns the encoded size of all live entries.
func (a *Accumulator) TotalSize() int64 { return a.totalSize }

// TableSize returns the encoded size of the live entries of table t.
func (a *Accumulator) TableSize(t domain.TableID) int64 {
	if !t.Valid(len(a.tables)) {
		return 0
	}
	return a.tableSize[t]
}

// TableCount returns the number of tables the accumulator was built for.
func (a *Accumulator) TableCount() int { return len(a.tables) }

// Table returns the entry store of table t, or nil if t is out of range.
func (a *Accumulator) Table(t domain.TableID) *KeyedEntryStore {
	if !t.Valid(len(a.tables)) {
		return nil
	}
	return a.tables[t]
}

// Applied returns the number of records folded in so far.
func (a *Accumulator) Applied() int { return a.applied }

// Entries returns the number of live entries across all tables.
func (a *Accumulator) Entries() int {
	n := 0
	for _, s := range a.tables {
		n += s.Len()
	}
	return n
}
