package walindex

import "github.com/yndnr/metastore-go/internal/core/domain"

// Fixed sizes of the encoded structures, excluding variable-length tails.
const (
	entryFixedSize      = 4 + 8 + 4
	tableHeaderSize     = 1 + 4 + 8
	fileHeaderFixedSize = 1 + 8 + 8 + 8 + 4

	headerTypeFile  byte = 0
	headerTypeTable byte = 1
)

// Entry locates the record that last wrote Key inside a WAL segment.
type Entry struct {
	Key    []byte
	Offset int64
	Length int32
}

// Size returns the number of bytes the entry occupies when encoded.
func (e Entry) Size() int64 {
	return int64(entryFixedSize + len(e.Key))
}

// End returns the segment offset just past the record.
func (e Entry) End() int64 {
	return e.Offset + int64(e.Length)
}

// Record is one replayed WAL action fed into an Accumulator.
type Record struct {
	Action  domain.Action
	Table   domain.TableID
	Key     []byte
	Offset  int64
	Length  int32
	Version uint64

	// Segment is the file name of the WAL segment holding the record.
	Segment string
}
