package walindex

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yndnr/metastore-go/internal/core/domain"
)

// writeSegment lays records out back to back in a fake segment file and
// returns one Record per payload.
func writeSegment(t *testing.T, dir string, payloads []string) []Record {
	t.Helper()
	var buf []byte
	var out []Record
	for _, p := range payloads {
		out = append(out, Record{Offset: int64(len(buf)), Length: int32(len(p)), Segment: testSegment})
		buf = append(buf, p...)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, testSegment), buf, 0600))
	return out
}

type restored struct {
	table   domain.TableID
	key     string
	payload string
	version uint64
}

func restoreAll(t *testing.T, path string) ([]restored, *RestoreResult) {
	t.Helper()
	var got []restored
	res, err := Restore(path, func(seg io.ReaderAt, segment string, table domain.TableID, version uint64, e Entry) error {
		require.Equal(t, testSegment, segment)
		buf := make([]byte, e.Length)
		if _, err := seg.ReadAt(buf, e.Offset); err != nil {
			return err
		}
		got = append(got, restored{table: table, key: string(e.Key), payload: string(buf), version: version})
		return nil
	})
	require.NoError(t, err)
	return got, res
}

func TestEncode_Layout(t *testing.T) {
	acc := newAcc(t, 2)
	require.NoError(t, acc.Apply(rec(1, "k", domain.ActionInsert, 8, 20, 5)))

	data, err := Encode(acc)
	require.NoError(t, err)

	nameLen := len(testSegment)
	payload := 2*tableHeaderSize + entryFixedSize + 1
	require.Len(t, data, fileHeaderFixedSize+nameLen+payload)

	le := binary.LittleEndian
	require.Equal(t, headerTypeFile, data[0])
	require.Equal(t, uint64(payload), le.Uint64(data[1:]))
	require.Equal(t, uint64(5), le.Uint64(data[9:]))
	require.Equal(t, uint64(28), le.Uint64(data[17:]))
	require.Equal(t, uint32(nameLen), le.Uint32(data[25:]))
	require.Equal(t, testSegment, string(data[29:29+nameLen]))

	p := data[29+nameLen:]
	// Table 0 is empty.
	require.Equal(t, headerTypeTable, p[0])
	require.Equal(t, uint32(0), le.Uint32(p[1:]))
	require.Equal(t, uint64(0), le.Uint64(p[5:]))

	p = p[tableHeaderSize:]
	require.Equal(t, headerTypeTable, p[0])
	require.Equal(t, uint32(1), le.Uint32(p[1:]))
	require.Equal(t, uint64(entryFixedSize+1), le.Uint64(p[5:]))

	p = p[tableHeaderSize:]
	require.Equal(t, uint32(1), le.Uint32(p[0:]))
	require.Equal(t, uint64(8), le.Uint64(p[4:]))
	require.Equal(t, uint32(20), le.Uint32(p[12:]))
	require.Equal(t, "k", string(p[16:]))
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	acc := newAcc(t, 3)
	require.NoError(t, acc.Apply(rec(0, "a", domain.ActionInsert, 0, 10, 1)))
	require.NoError(t, acc.Apply(rec(0, "b", domain.ActionInsert, 10, 5, 2)))
	require.NoError(t, acc.Apply(rec(2, "z", domain.ActionInsert, 15, 5, 3)))
	require.NoError(t, acc.Apply(rec(0, "a", domain.ActionUpdate, 20, 4, 4)))
	require.NoError(t, acc.Apply(rec(2, "z", domain.ActionDelete, 24, 2, 5)))

	data, err := Encode(acc)
	require.NoError(t, err)

	idx, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, idx.Sections, 1)
	require.Equal(t, 2, idx.Entries())

	s := idx.Sections[0]
	require.Equal(t, testSegment, s.Header.Segment)
	require.Equal(t, uint64(5), s.Header.MaxVersion)
	require.Equal(t, int64(26), s.Header.MaxOffset)
	require.Len(t, s.Tables, 3)

	t0 := s.Tables[0]
	require.Len(t, t0.Entries, 2)
	require.Equal(t, "b", string(t0.Entries[0].Key))
	require.Equal(t, "a", string(t0.Entries[1].Key))
	require.Equal(t, int64(20), t0.Entries[1].Offset)
	require.Equal(t, int32(4), t0.Entries[1].Length)

	require.Empty(t, s.Tables[1].Entries)
	require.Empty(t, s.Tables[2].Entries)
	require.Equal(t, int64(0), s.Tables[2].Size)
}

func TestEncode_EmptyAccumulator(t *testing.T) {
	acc := newAcc(t, 2)
	data, err := Encode(acc)
	require.NoError(t, err)

	idx, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, 0, idx.Entries())
	require.Equal(t, "", idx.Sections[0].Header.Segment)

	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, Persist(path, data))
	res, err := Restore(path, func(io.ReaderAt, string, domain.TableID, uint64, Entry) error {
		t.Fatal("no entries expected")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 0, res.Entries)
}

func TestEncode_DetectsAccountingBug(t *testing.T) {
	acc := newAcc(t, 1)
	require.NoError(t, acc.Apply(rec(0, "k", domain.ActionInsert, 0, 8, 1)))
	acc.tableSize[0]++
	acc.totalSize++

	_, err := Encode(acc)
	require.ErrorIs(t, err, ErrInvariant)

	var inv *InvariantError
	require.True(t, errors.As(err, &inv))
	require.False(t, errors.Is(err, ErrCorruptFormat))

	acc.tableSize[0]--
	_, err = Encode(acc)
	require.ErrorIs(t, err, ErrInvariant)
}

func TestBuildRestore(t *testing.T) {
	dir := t.TempDir()
	pos := writeSegment(t, dir, []string{"A1", "B1", "A2", "C1", "C-del"})

	acc := newAcc(t, 2)
	apply := func(i int, table domain.TableID, key string, action domain.Action) {
		r := pos[i]
		r.Table, r.Key, r.Action, r.Version = table, []byte(key), action, uint64(i+1)
		require.NoError(t, acc.Apply(r))
	}
	apply(0, 0, "a", domain.ActionInsert)
	apply(1, 1, "b", domain.ActionInsert)
	apply(2, 0, "a", domain.ActionUpdate)
	apply(3, 0, "c", domain.ActionInsert)
	apply(4, 0, "c", domain.ActionDelete)

	path := filepath.Join(dir, FileName)
	res, err := Build(acc, path)
	require.NoError(t, err)
	require.NotEmpty(t, res.ID)
	require.Equal(t, 2, res.Entries)
	require.Equal(t, 5, res.Records)
	require.Equal(t, uint64(5), res.MaxVersion)

	got, rr := restoreAll(t, path)
	require.Equal(t, []restored{
		{table: 0, key: "a", payload: "A2", version: 5},
		{table: 1, key: "b", payload: "B1", version: 5},
	}, got)
	require.Equal(t, testSegment, rr.Segment)
	require.Equal(t, acc.MaxOffset(), rr.MaxOffset)
	require.Equal(t, 1, rr.Sections)
	require.Equal(t, 2, rr.Entries)
}

func TestPersist_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal", FileName)
	require.NoError(t, Persist(path, []byte("first-and-longer")))
	require.NoError(t, Persist(path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "second", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(DefaultFilePerm), info.Mode().Perm())
}

func TestRestore_RepeatedSections(t *testing.T) {
	dir := t.TempDir()
	pos := writeSegment(t, dir, []string{"one", "two"})

	build := func(i int, key string) []byte {
		acc := newAcc(t, 1)
		r := pos[i]
		r.Key, r.Action, r.Version = []byte(key), domain.ActionInsert, uint64(i+1)
		require.NoError(t, acc.Apply(r))
		data, err := Encode(acc)
		require.NoError(t, err)
		return data
	}
	data := append(build(0, "x"), build(1, "y")...)

	path := filepath.Join(dir, FileName)
	require.NoError(t, Persist(path, data))

	got, res := restoreAll(t, path)
	require.Equal(t, []restored{
		{table: 0, key: "x", payload: "one", version: 1},
		{table: 0, key: "y", payload: "two", version: 2},
	}, got)
	require.Equal(t, 2, res.Sections)
	require.Equal(t, uint64(2), res.MaxVersion)
	require.Equal(t, int64(6), res.MaxOffset)
}

func TestRestore_Failures(t *testing.T) {
	dir := t.TempDir()
	noop := func(io.ReaderAt, string, domain.TableID, uint64, Entry) error { return nil }

	t.Run("missing index", func(t *testing.T) {
		_, err := Restore(filepath.Join(dir, "absent"), noop)
		var ioErr *IOError
		require.True(t, errors.As(err, &ioErr))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("missing segment", func(t *testing.T) {
		acc := newAcc(t, 1)
		require.NoError(t, acc.Apply(rec(0, "k", domain.ActionInsert, 0, 1, 1)))
		path := filepath.Join(dir, "orphan")
		_, err := Build(acc, path)
		require.NoError(t, err)

		_, err = Restore(path, noop)
		var ioErr *IOError
		require.True(t, errors.As(err, &ioErr))
		require.Equal(t, filepath.Join(dir, testSegment), ioErr.Path)
	})

	t.Run("callback error", func(t *testing.T) {
		sub := t.TempDir()
		pos := writeSegment(t, sub, []string{"x"})
		acc := newAcc(t, 1)
		r := pos[0]
		r.Key, r.Action = []byte("k"), domain.ActionInsert
		require.NoError(t, acc.Apply(r))
		path := filepath.Join(sub, FileName)
		_, err := Build(acc, path)
		require.NoError(t, err)

		boom := errors.New("boom")
		_, err = Restore(path, func(io.ReaderAt, string, domain.TableID, uint64, Entry) error { return boom })
		require.ErrorIs(t, err, boom)
	})
}

func TestDecode_Corrupt(t *testing.T) {
	acc := newAcc(t, 2)
	require.NoError(t, acc.Apply(rec(0, "alpha", domain.ActionInsert, 0, 10, 1)))
	require.NoError(t, acc.Apply(rec(1, "beta", domain.ActionInsert, 10, 10, 2)))
	good, err := Encode(acc)
	require.NoError(t, err)

	hdr := fileHeaderFixedSize + len(testSegment)
	mutate := func(fn func(b []byte) []byte) []byte {
		b := append([]byte(nil), good...)
		return fn(b)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad file tag", mutate(func(b []byte) []byte { b[0] = 7; return b })},
		{"bad table tag", mutate(func(b []byte) []byte { b[hdr] = 0; return b })},
		{"truncated header", good[:10]},
		{"truncated name", good[:fileHeaderFixedSize+2]},
		{"truncated body", good[:len(good)-1]},
		{"trailing garbage", append(append([]byte(nil), good...), 0xff)},
		{"negative name length", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[25:], 0xffffffff)
			return b
		})},
		{"total size too small", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint64(b[1:], binary.LittleEndian.Uint64(b[1:])-1)
			return b
		})},
		{"table size too small", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint64(b[hdr+5:], binary.LittleEndian.Uint64(b[hdr+5:])-1)
			return b
		})},
		{"table id out of range", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[hdr+1:], uint32(domain.MaxTables))
			return b
		})},
		{"key length overruns", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[hdr+tableHeaderSize:], 1000)
			return b
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.ErrorIs(t, err, ErrCorruptFormat)
			var fe *FormatError
			require.True(t, errors.As(err, &fe))
		})
	}
}

func TestRestore_EntryWithoutSegment(t *testing.T) {
	key := []byte("users/alice")
	entrySize := entryFixedSize + len(key)
	tableSize := tableHeaderSize + entrySize

	var b []byte
	b = append(b, headerTypeFile)
	b = binary.LittleEndian.AppendUint64(b, uint64(tableSize))
	b = binary.LittleEndian.AppendUint64(b, 7)
	b = binary.LittleEndian.AppendUint64(b, 40)
	b = binary.LittleEndian.AppendUint32(b, 0)
	b = append(b, headerTypeTable)
	b = binary.LittleEndian.AppendUint32(b, 1)
	b = binary.LittleEndian.AppendUint64(b, uint64(entrySize))
	entryStart := len(b)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(key)))
	b = binary.LittleEndian.AppendUint64(b, 0)
	b = binary.LittleEndian.AppendUint32(b, 40)
	b = append(b, key...)

	path := filepath.Join(t.TempDir(), "index")
	require.NoError(t, os.WriteFile(path, b, 0600))

	_, err := Restore(path, func(io.ReaderAt, string, domain.TableID, uint64, Entry) error { return nil })
	require.ErrorIs(t, err, ErrCorruptFormat)
	var fe *FormatError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, fileHeaderFixedSize+tableHeaderSize, entryStart)
	require.Equal(t, entryStart, fe.Offset)
}
