package walindex

import (
	"encoding/binary"
	"math"
	"path/filepath"

	"github.com/yndnr/metastore-go/internal/core/domain"
)

// FileName is the index file name inside the WAL directory.
const FileName = "index"

// DefaultPath returns the index location under a node's metadata directory.
func DefaultPath(metaDir string) string {
	return filepath.Join(metaDir, "wal", FileName)
}

// Header is the decoded FileHeader of one index section.
type Header struct {
	TotalSize  int64
	MaxVersion uint64
	MaxOffset  int64
	Segment    string
}

func (h Header) size() int {
	return fileHeaderFixedSize + len(h.Segment)
}

func appendFileHeader(b []byte, h Header) []byte {
	b = append(b, headerTypeFile)
	b = binary.LittleEndian.AppendUint64(b, uint64(h.TotalSize))
	b = binary.LittleEndian.AppendUint64(b, h.MaxVersion)
	b = binary.LittleEndian.AppendUint64(b, uint64(h.MaxOffset))
	b = binary.LittleEndian.AppendUint32(b, uint32(int32(len(h.Segment))))
	return append(b, h.Segment...)
}

func appendTableHeader(b []byte, t domain.TableID, size int64) []byte {
	b = append(b, headerTypeTable)
	b = binary.LittleEndian.AppendUint32(b, uint32(int32(t)))
	return binary.LittleEndian.AppendUint64(b, uint64(size))
}

func appendEntry(b []byte, e Entry) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(int32(len(e.Key))))
	b = binary.LittleEndian.AppendUint64(b, uint64(e.Offset))
	b = binary.LittleEndian.AppendUint32(b, uint32(e.Length))
	return append(b, e.Key...)
}

// cursor reads packed little-endian fields and turns short reads into
// format errors carrying the failing byte offset.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) remaining() int { return len(c.buf) - c.off }

func (c *cursor) need(n int, what string) error {
	if n < 0 || c.remaining() < n {
		return formatErrorf(c.off, "truncated %s: need %d bytes, have %d", what, n, c.remaining())
	}
	return nil
}

func (c *cursor) u8() byte {
	v := c.buf[c.off]
	c.off++
	return v
}

func (c *cursor) u32() uint32 {
	v := binary.LittleEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v
}

func (c *cursor) u64() uint64 {
	v := binary.LittleEndian.Uint64(c.buf[c.off:])
	c.off += 8
	return v
}

func (c *cursor) bytes(n int) []byte {
	v := c.buf[c.off : c.off+n : c.off+n]
	c.off += n
	return v
}

func (c *cursor) fileHeader() (Header, error) {
	start := c.off
	if err := c.need(fileHeaderFixedSize, "file header"); err != nil {
		return Header{}, err
	}
	if tag := c.u8(); tag != headerTypeFile {
		return Header{}, formatErrorf(start, "file header tag %d, want %d", tag, headerTypeFile)
	}

	var h Header
	h.TotalSize = int64(c.u64())
	h.MaxVersion = c.u64()
	h.MaxOffset = int64(c.u64())
	nameLen := int32(c.u32())

	if h.TotalSize < 0 {
		return Header{}, formatErrorf(start, "negative total size %d", h.TotalSize)
	}
	if h.MaxOffset < 0 {
		return Header{}, formatErrorf(start, "negative max offset %d", h.MaxOffset)
	}
	if nameLen < 0 {
		return Header{}, formatErrorf(start, "negative segment name length %d", nameLen)
	}
	if err := c.need(int(nameLen), "segment name"); err != nil {
		return Header{}, err
	}
	h.Segment = string(c.bytes(int(nameLen)))
	return h, nil
}

func (c *cursor) tableHeader() (domain.TableID, int64, error) {
	start := c.off
	if err := c.need(tableHeaderSize, "table header"); err != nil {
		return 0, 0, err
	}
	if tag := c.u8(); tag != headerTypeTable {
		return 0, 0, formatErrorf(start, "table header tag %d, want %d", tag, headerTypeTable)
	}
	t := domain.TableID(int32(c.u32()))
	size := int64(c.u64())
	if !t.Valid(domain.MaxTables) {
		return 0, 0, formatErrorf(start, "table id %d out of range", t)
	}
	if size < 0 {
		return 0, 0, formatErrorf(start, "negative table size %d", size)
	}
	return t, size, nil
}

func (c *cursor) entry() (Entry, error) {
	start := c.off
	if err := c.need(entryFixedSize, "entry"); err != nil {
		return Entry{}, err
	}
	keyLen := int32(c.u32())
	offset := int64(c.u64())
	length := int32(c.u32())
	if keyLen < 0 {
		return Entry{}, formatErrorf(start, "negative key length %d", keyLen)
	}
	if offset < 0 || length < 0 {
		return Entry{}, formatErrorf(start, "negative record position %d+%d", offset, length)
	}
	if err := c.need(int(keyLen), "entry key"); err != nil {
		return Entry{}, err
	}
	return Entry{Key: c.bytes(int(keyLen)), Offset: offset, Length: length}, nil
}

// fitsInt reports whether n bytes can be addressed as a Go slice length.
func fitsInt(n int64) bool {
	return n >= 0 && uint64(n) <= uint64(math.MaxInt)
}
