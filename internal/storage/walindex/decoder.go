package walindex

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/yndnr/metastore-go/internal/core/domain"
)

// ReaderFunc receives one restored entry. seg is the open WAL segment
// named by segment; the record bytes live at e.Offset for e.Length bytes.
// version is the largest version recorded for the segment. Returning an
// error aborts the restore.
type ReaderFunc func(seg io.ReaderAt, segment string, table domain.TableID, version uint64, e Entry) error

// Table is one decoded table section.
type Table struct {
	ID      domain.TableID
	Size    int64
	Entries []Entry
}

// Section is one header/body group of an index file.
type Section struct {
	Header Header
	Tables []Table
}

// Index is a fully decoded index file.
type Index struct {
	Sections []Section
}

// Entries returns the number of entries across all sections.
func (x *Index) Entries() int {
	n := 0
	for _, s := range x.Sections {
		for _, t := range s.Tables {
			n += len(t.Entries)
		}
	}
	return n
}

// Decode parses an index buffer without touching any WAL segment.
// Entry keys alias data.
func Decode(data []byte) (*Index, error) {
	idx := &Index{}
	err := walk(data,
		func(h Header) error {
			idx.Sections = append(idx.Sections, Section{Header: h})
			return nil
		},
		func(t domain.TableID, size int64) error {
			s := &idx.Sections[len(idx.Sections)-1]
			s.Tables = append(s.Tables, Table{ID: t, Size: size})
			return nil
		},
		func(_ Header, _ domain.TableID, _ int, e Entry) error {
			s := &idx.Sections[len(idx.Sections)-1]
			tb := &s.Tables[len(s.Tables)-1]
			tb.Entries = append(tb.Entries, e)
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// RestoreResult summarizes a restore pass.
type RestoreResult struct {
	// Segment and MaxOffset come from the last section in the file.
	Segment    string
	MaxOffset  int64
	MaxVersion uint64
	Sections   int
	Entries    int
}

// Restore reads the index at path and calls fn once per entry, in table
// then insertion order. Relative segment names are resolved against the
// directory holding the index file.
func Restore(path string, fn ReaderFunc) (*RestoreResult, error) {
	if fn == nil {
		return nil, errors.New("walindex: reader func is nil")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}

	res := &RestoreResult{}
	var seg *os.File
	defer func() {
		if seg != nil {
			seg.Close()
		}
	}()

	err = walk(data,
		func(h Header) error {
			if seg != nil {
				seg.Close()
				seg = nil
			}
			if h.Segment != "" {
				segPath := resolveSegment(path, h.Segment)
				f, err := os.Open(segPath)
				if err != nil {
					return &IOError{Op: "open segment", Path: segPath, Err: err}
				}
				seg = f
			}

			res.Sections++
			res.Segment = h.Segment
			res.MaxOffset = h.MaxOffset
			if h.MaxVersion > res.MaxVersion {
				res.MaxVersion = h.MaxVersion
			}
			return nil
		},
		nil,
		func(h Header, t domain.TableID, off int, e Entry) error {
			if seg == nil {
				return formatErrorf(off, "entry %s/%q has no segment", t, e.Key)
			}
			if err := fn(seg, h.Segment, t, h.MaxVersion, e); err != nil {
				return fmt.Errorf("walindex: restore %s/%q: %w", t, e.Key, err)
			}
			res.Entries++
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SegmentPath returns the path Restore opens for a segment name stored
// in the index at indexPath.
func SegmentPath(indexPath, segment string) string {
	return resolveSegment(indexPath, segment)
}

func resolveSegment(indexPath, segment string) string {
	if segment == "" || filepath.IsAbs(segment) {
		return segment
	}
	return filepath.Join(filepath.Dir(indexPath), segment)
}

// walk validates data section by section. onTable may be nil. onEntry
// receives the offset at which the entry starts.
func walk(
	data []byte,
	onHeader func(Header) error,
	onTable func(domain.TableID, int64) error,
	onEntry func(Header, domain.TableID, int, Entry) error,
) error {
	if len(data) == 0 {
		return formatErrorf(0, "empty index")
	}

	c := &cursor{buf: data}
	for c.remaining() > 0 {
		h, err := c.fileHeader()
		if err != nil {
			return err
		}
		if h.TotalSize > int64(c.remaining()) {
			return formatErrorf(c.off, "total size %d exceeds remaining %d bytes", h.TotalSize, c.remaining())
		}
		if err := onHeader(h); err != nil {
			return err
		}

		bodyStart := c.off
		bodyEnd := bodyStart + int(h.TotalSize)
		for c.off < bodyEnd {
			t, size, err := c.tableHeader()
			if err != nil {
				return err
			}
			tableEnd := int64(c.off) + size
			if tableEnd > int64(bodyEnd) {
				return formatErrorf(c.off, "table %s size %d overruns section", t, size)
			}
			if onTable != nil {
				if err := onTable(t, size); err != nil {
					return err
				}
			}

			var consumed int64
			for consumed < size {
				start := c.off
				e, err := c.entry()
				if err != nil {
					return err
				}
				consumed += int64(c.off - start)
				if consumed > size {
					return formatErrorf(start, "entry overruns table %s", t)
				}
				if err := onEntry(h, t, start, e); err != nil {
					return err
				}
			}
		}

		if got := int64(c.off - bodyStart); got != h.TotalSize {
			return formatErrorf(c.off, "section holds %d bytes, header declares %d", got, h.TotalSize)
		}
	}
	return nil
}
