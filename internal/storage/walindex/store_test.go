package walindex

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func keysOf(s *KeyedEntryStore) []string {
	var out []string
	s.Scan(func(e Entry) bool {
		out = append(out, string(e.Key))
		return true
	})
	return out
}

func TestKeyedEntryStore_AppendRemove(t *testing.T) {
	s := NewKeyedEntryStore()
	require.Equal(t, 0, s.Len())
	require.Empty(t, s.Entries())

	for i, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Append(Entry{Key: []byte(k), Offset: int64(i * 10), Length: 10}))
	}
	require.Equal(t, 3, s.Len())
	require.Equal(t, int64(3*17), s.Size())
	require.Equal(t, []string{"a", "b", "c"}, keysOf(s))

	e, ok := s.Remove([]byte("b"))
	require.True(t, ok)
	require.Equal(t, int64(10), e.Offset)
	require.Equal(t, int64(17), e.Size())
	require.Equal(t, []string{"a", "c"}, keysOf(s))
	require.Equal(t, int64(2*17), s.Size())

	_, ok = s.Get([]byte("b"))
	require.False(t, ok)

	_, ok = s.Remove([]byte("b"))
	require.False(t, ok, "second remove must miss")
}

func TestKeyedEntryStore_RemoveEndpoints(t *testing.T) {
	s := NewKeyedEntryStore()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Append(Entry{Key: []byte(k)}))
	}

	_, ok := s.Remove([]byte("a"))
	require.True(t, ok)
	require.Equal(t, []string{"b", "c"}, keysOf(s))

	_, ok = s.Remove([]byte("c"))
	require.True(t, ok)
	require.Equal(t, []string{"b"}, keysOf(s))

	_, ok = s.Remove([]byte("b"))
	require.True(t, ok)
	require.Empty(t, keysOf(s))
	require.Equal(t, 0, s.Len())

	require.NoError(t, s.Append(Entry{Key: []byte("d")}))
	require.Equal(t, []string{"d"}, keysOf(s))
}

func TestKeyedEntryStore_Duplicate(t *testing.T) {
	s := NewKeyedEntryStore()
	require.NoError(t, s.Append(Entry{Key: []byte("k")}))
	require.ErrorIs(t, s.Append(Entry{Key: []byte("k")}), ErrDuplicateKey)
	require.Equal(t, 1, s.Len())
}

func TestKeyedEntryStore_ReinsertMovesToTail(t *testing.T) {
	s := NewKeyedEntryStore()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Append(Entry{Key: []byte(k)}))
	}
	_, ok := s.Remove([]byte("a"))
	require.True(t, ok)
	require.NoError(t, s.Append(Entry{Key: []byte("a"), Offset: 99}))

	require.Equal(t, []string{"b", "c", "a"}, keysOf(s))
	e, ok := s.Get([]byte("a"))
	require.True(t, ok)
	require.Equal(t, int64(99), e.Offset)
}

func TestKeyedEntryStore_SlotReuse(t *testing.T) {
	s := NewKeyedEntryStore()
	for i := range 100 {
		k := []byte(fmt.Sprintf("k%03d", i))
		require.NoError(t, s.Append(Entry{Key: k}))
		if i%2 == 0 {
			_, ok := s.Remove(k)
			require.True(t, ok)
		}
	}
	require.Equal(t, 50, s.Len())
	require.LessOrEqual(t, len(s.slots), 51, "removed slots should be reused")

	prev := ""
	s.Scan(func(e Entry) bool {
		require.Greater(t, string(e.Key), prev)
		prev = string(e.Key)
		return true
	})
}

func TestKeyedEntryStore_KeyNotAliased(t *testing.T) {
	s := NewKeyedEntryStore()
	key := []byte("abc")
	require.NoError(t, s.Append(Entry{Key: key}))
	key[0] = 'x'

	_, ok := s.Get([]byte("abc"))
	require.True(t, ok)
	require.Equal(t, []string{"abc"}, keysOf(s))
}

func TestKeyedEntryStore_ScanStops(t *testing.T) {
	s := NewKeyedEntryStore()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, s.Append(Entry{Key: []byte(k)}))
	}
	n := 0
	s.Scan(func(Entry) bool {
		n++
		return n < 2
	})
	require.Equal(t, 2, n)
}
