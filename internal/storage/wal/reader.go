package wal

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/yndnr/metastore-go/pkg/crypto/adaptive"
)

var (
	ErrCorrupted = errors.New("wal: corrupted segment")
)

type segmentInfo struct {
	id   uint64
	path string
}

// Reader reads WAL entries across all segments in order.
//
// A frame that fails its checksum ends the current segment: everything
// after a torn write is ignored and reading continues with the next one.
type Reader struct {
	dir    string
	cipher adaptive.Cipher

	segments []segmentInfo
	segIndex int

	cur      segmentInfo
	file     *os.File
	dataLen  int64
	startAt  int64
	pos      int64
	reader   *bufio.Reader
	headerOK bool
	torn     int
}

// NewReader creates a new WAL reader for a directory.
func NewReader(dir string, cipher adaptive.Cipher) (*Reader, error) {
	r := &Reader{
		dir:    dir,
		cipher: cipher,
	}
	if err := r.scanSegments(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewSegmentReader creates a reader over a single segment file.
func NewSegmentReader(path string, cipher adaptive.Cipher) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("wal: stat segment: %w", err)
	}
	id, _ := ParseSegmentFilename(filepath.Base(path))
	return &Reader{
		dir:      filepath.Dir(path),
		cipher:   cipher,
		segments: []segmentInfo{{id: id, path: path}},
	}, nil
}

// Seek positions the reader at the given composite offset.
// Offset is (segmentID<<32 | offsetWithinSegment). When the segment no
// longer exists, reading starts at the beginning of the next one.
func (r *Reader) Seek(offset uint64) error {
	segID := offset >> 32
	segOff := int64(uint32(offset))

	// Find segment index (first with id >= segID).
	i := 0
	for ; i < len(r.segments); i++ {
		if r.segments[i].id >= segID {
			break
		}
	}
	r.closeCurrent()
	r.segIndex = i
	r.startAt = 0
	if i < len(r.segments) && r.segments[i].id == segID {
		r.startAt = segOff
	}
	r.headerOK = false
	return nil
}

// Read reads the next entry from the WAL stream.
func (r *Reader) Read() (*Entry, error) {
	e, _, err := r.ReadWithPosition()
	return e, err
}

// ReadWithPosition reads the next entry and reports where it is stored.
func (r *Reader) ReadWithPosition() (*Entry, Position, error) {
	for {
		// Need next segment.
		if r.reader == nil {
			if err := r.openNextSegment(); err != nil {
				return nil, Position{}, err
			}
		}

		// Ensure header is consumed when starting at offset 0.
		if !r.headerOK && r.pos == 0 {
			if err := r.readAndValidateHeader(); err != nil {
				r.torn++
				r.closeCurrent()
				continue
			}
		} else {
			r.headerOK = true
		}

		start := r.pos
		e, n, err := r.readOneEntry()
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.closeCurrent()
				continue
			}
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrCorruptedEntry) ||
				errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrInvalidEntryType) {
				r.torn++
				r.closeCurrent()
				continue
			}
			return nil, Position{}, err
		}
		r.pos += int64(n)

		return e, Position{
			Segment:   filepath.Base(r.cur.path),
			SegmentID: r.cur.id,
			Offset:    start,
			Length:    int32(n),
		}, nil
	}
}

// ReadAll reads all entries from the WAL.
func (r *Reader) ReadAll() ([]*Entry, error) {
	var out []*Entry
	for {
		e, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, err
		}
		out = append(out, e)
	}
}

// TornSegments returns how many segments ended early on a damaged frame.
func (r *Reader) TornSegments() int {
	return r.torn
}

// Close closes any open segment file.
func (r *Reader) Close() error {
	return r.closeCurrent()
}

func (r *Reader) scanSegments() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.segments = nil
			return nil
		}
		return err
	}

	var segs []segmentInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := ParseSegmentFilename(e.Name())
		if !ok {
			continue
		}
		segs = append(segs, segmentInfo{
			id:   id,
			path: filepath.Join(r.dir, e.Name()),
		})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].id < segs[j].id })
	r.segments = segs
	return nil
}

func (r *Reader) openNextSegment() error {
	r.closeCurrent()

	if r.segIndex >= len(r.segments) {
		return io.EOF
	}

	seg := r.segments[r.segIndex]
	r.segIndex++

	f, err := os.Open(seg.path)
	if err != nil {
		return err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	closed, dataLen, err := verifyChecksumTrailer(f, stat.Size())
	if err != nil {
		f.Close()
		return err
	}
	if closed && dataLen < MagicBytesSize {
		f.Close()
		return ErrCorrupted
	}

	// Limit reads to data portion (excluding checksum trailer if present).
	r.dataLen = dataLen
	if !closed {
		r.dataLen = stat.Size()
	}
	r.file = f
	r.cur = seg

	start := r.startAt
	if start > r.dataLen {
		start = r.dataLen
	}
	sr := io.NewSectionReader(f, start, r.dataLen-start)
	r.reader = bufio.NewReader(sr)
	r.pos = start
	r.headerOK = false

	// After first segment, subsequent segments start at 0.
	r.startAt = 0
	return nil
}

func (r *Reader) readAndValidateHeader() error {
	magic := make([]byte, MagicBytesSize)
	if _, err := io.ReadFull(r.reader, magic); err != nil {
		return err
	}
	if string(magic) != MagicBytes {
		return errInvalidMagic
	}
	r.pos = MagicBytesSize
	r.headerOK = true
	return nil
}

func (r *Reader) closeCurrent() error {
	r.reader = nil
	r.headerOK = false

	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}

func (r *Reader) readOneEntry() (*Entry, int, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.reader, lenBuf[:]); err != nil {
		return nil, 0, err
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < 5 || int64(length) > r.dataLen {
		return nil, 0, ErrCorruptedEntry
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(r.reader, frame); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, 0, err
	}

	e, err := decodeEntryFrame(frame, r.cipher)
	if err != nil {
		return nil, 0, err
	}
	return e, 4 + int(length), nil
}

// ReadFrameAt decodes the record stored at [offset, offset+length) of a
// segment, as reported by Position.
func ReadFrameAt(seg io.ReaderAt, offset int64, length int32, cipher adaptive.Cipher) (*Entry, error) {
	if offset < MagicBytesSize || length < minEntrySize {
		return nil, ErrCorruptedEntry
	}

	buf := make([]byte, length)
	if _, err := seg.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("wal: read frame at %d: %w", offset, err)
	}
	if int64(binary.BigEndian.Uint32(buf[:4])) != int64(length)-4 {
		return nil, ErrCorruptedEntry
	}
	return decodeEntryFrame(buf[4:], cipher)
}

// VerifyTrailerChecksum checks the sha256 trailer of a sealed segment.
func VerifyTrailerChecksum(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}
	if stat.Size() < ChecksumSize {
		return ErrCorrupted
	}

	trailer := make([]byte, ChecksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, stat.Size()-ChecksumSize, ChecksumSize), trailer); err != nil {
		return err
	}

	h := sha256.New()
	if _, err := io.CopyN(h, io.NewSectionReader(f, 0, stat.Size()-ChecksumSize), stat.Size()-ChecksumSize); err != nil {
		return err
	}
	if !bytes.Equal(h.Sum(nil), trailer) {
		return errChecksumInvalid
	}
	return nil
}
