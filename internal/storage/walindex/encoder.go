package walindex

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/metastore-go/internal/core/domain"
)

// File permissions for the index and its directory.
const (
	DefaultFilePerm = 0600
	DefaultDirPerm  = 0750
)

// Encode serializes the accumulator into the index file layout.
//
// The written byte count of every table section is checked against the
// accumulator's running totals. A mismatch is returned as *InvariantError.
func Encode(acc *Accumulator) ([]byte, error) {
	if acc == nil {
		return nil, errors.New("walindex: accumulator is nil")
	}

	payload := int64(acc.TableCount()) * tableHeaderSize
	var sum int64
	for t := range acc.TableCount() {
		sum += acc.TableSize(domain.TableID(t))
	}
	if sum != acc.TotalSize() {
		return nil, &InvariantError{What: "sum of table sizes", Want: acc.TotalSize(), Got: sum}
	}
	payload += sum

	h := Header{
		TotalSize:  payload,
		MaxVersion: acc.MaxVersion(),
		MaxOffset:  acc.MaxOffset(),
		Segment:    acc.Segment(),
	}
	capacity := int64(h.size()) + payload
	if !fitsInt(capacity) {
		return nil, fmt.Errorf("%w: index of %d bytes", ErrTooLarge, capacity)
	}

	buf := make([]byte, 0, int(capacity))
	buf = appendFileHeader(buf, h)
	bodyStart := len(buf)

	for t := range acc.TableCount() {
		id := domain.TableID(t)
		want := acc.TableSize(id)
		buf = appendTableHeader(buf, id, want)

		start := len(buf)
		acc.Table(id).Scan(func(e Entry) bool {
			buf = appendEntry(buf, e)
			return true
		})
		if got := int64(len(buf) - start); got != want {
			return nil, &InvariantError{What: fmt.Sprintf("table %s bytes", id), Want: want, Got: got}
		}
	}

	if got := int64(len(buf) - bodyStart); got != payload {
		return nil, &InvariantError{What: "payload bytes", Want: payload, Got: got}
	}
	return buf, nil
}

// Persist replaces the file at path with data and syncs it.
//
// Any existing file is removed first. When a later step fails the path
// is left absent; readers treat a missing index as "replay the WAL".
func Persist(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPerm); err != nil {
		return &IOError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &IOError{Op: "remove", Path: path, Err: err}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, DefaultFilePerm)
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return &IOError{Op: "sync", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return &IOError{Op: "close", Path: path, Err: err}
	}
	return nil
}

// BuildResult summarizes a persisted index.
type BuildResult struct {
	ID         string        `json:"id"`
	Path       string        `json:"path"`
	Segment    string        `json:"segment"`
	Records    int           `json:"records"`
	Entries    int           `json:"entries"`
	Bytes      int           `json:"bytes"`
	MaxVersion uint64        `json:"max_version"`
	MaxOffset  int64         `json:"max_offset"`
	Duration   time.Duration `json:"duration"`
}

// Build encodes acc and persists it at path.
func Build(acc *Accumulator, path string) (*BuildResult, error) {
	start := time.Now()

	data, err := Encode(acc)
	if err != nil {
		return nil, err
	}
	if err := Persist(path, data); err != nil {
		return nil, err
	}

	return &BuildResult{
		ID:         ulid.Make().String(),
		Path:       path,
		Segment:    acc.Segment(),
		Records:    acc.Applied(),
		Entries:    acc.Entries(),
		Bytes:      len(data),
		MaxVersion: acc.MaxVersion(),
		MaxOffset:  acc.MaxOffset(),
		Duration:   time.Since(start),
	}, nil
}
