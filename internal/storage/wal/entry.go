package wal

import (
	"errors"
	"time"

	"github.com/yndnr/metastore-go/internal/core/domain"
)

const (
	// headerSize is the size of entry header: length (4) + crc (4) = 8 bytes.
	headerSize = 8

	// minEntrySize is the minimum entry size: header (8) + type (1).
	minEntrySize = headerSize + 1
)

// Errors for WAL operations.
var (
	ErrCorruptedEntry   = errors.New("wal: corrupted entry")
	ErrChecksumMismatch = errors.New("wal: checksum mismatch")
	ErrInvalidEntryType = errors.New("wal: invalid entry type")
)

// Entry is one durable row mutation.
//
// Timestamp is Unix milliseconds.
type Entry struct {
	Action    domain.Action
	Table     domain.TableID
	Key       []byte
	Value     []byte
	Version   uint64
	Timestamp int64
}

// NewInsertEntry creates an insert record for row.
func NewInsertEntry(row *domain.Row) *Entry {
	return rowEntry(domain.ActionInsert, row)
}

// NewUpdateEntry creates an update record for row.
func NewUpdateEntry(row *domain.Row) *Entry {
	return rowEntry(domain.ActionUpdate, row)
}

// NewDeleteEntry creates a delete record for a key.
func NewDeleteEntry(table domain.TableID, key []byte, version uint64) *Entry {
	return &Entry{
		Action:    domain.ActionDelete,
		Table:     table,
		Key:       key,
		Version:   version,
		Timestamp: time.Now().UnixMilli(),
	}
}

func rowEntry(action domain.Action, row *domain.Row) *Entry {
	ts := row.UpdatedAt
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	return &Entry{
		Action:    action,
		Table:     row.Table,
		Key:       row.Key,
		Value:     row.Value,
		Version:   row.Version,
		Timestamp: ts,
	}
}

// Row converts an insert or update record into a row.
func (e *Entry) Row() *domain.Row {
	return &domain.Row{
		Table:     e.Table,
		Key:       e.Key,
		Value:     e.Value,
		Version:   e.Version,
		UpdatedAt: e.Timestamp,
	}
}

// MsgType packs table and action into the frame type byte.
func (e *Entry) MsgType() byte {
	return MsgType(e.Table, e.Action)
}

// MsgType packs a table id and action as table*10+action.
func MsgType(table domain.TableID, action domain.Action) byte {
	return byte(int(table)*10 + int(action))
}

// SplitMsgType reverses MsgType.
func SplitMsgType(b byte) (domain.TableID, domain.Action) {
	return domain.TableID(b / 10), domain.Action(b % 10)
}

// Position locates a record inside a segment. Offset points at the
// length prefix and Length covers the whole frame.
type Position struct {
	Segment   string
	SegmentID uint64
	Offset    int64
	Length    int32
}

// End returns the composite offset just past the record, suitable for Seek.
func (p Position) End() uint64 {
	return CompositeOffset(p.SegmentID, p.Offset+int64(p.Length))
}

// CompositeOffset packs a segment id and in-segment offset as id<<32 | off.
func CompositeOffset(segmentID uint64, offset int64) uint64 {
	return (segmentID << 32) | uint64(uint32(offset))
}
