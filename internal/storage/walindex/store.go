package walindex

import (
	"github.com/yndnr/metastore-go/pkg/cmap"
)

const nilSlot int32 = -1

// slot is one arena cell. Links are arena indices; gen is bumped every
// time the cell is released so stale handles never resolve.
type slot struct {
	entry Entry
	prev  int32
	next  int32
	gen   uint32
	live  bool
}

type handle struct {
	idx int32
	gen uint32
}

// KeyedEntryStore holds entries in insertion order with O(1) lookup and
// removal by key. Re-inserting a removed key places it at the tail.
//
// Entries live in an index-linked arena; removed cells go to a free list.
// Mutations are not safe for concurrent use. The key map is a sharded
// concurrent map so lookups from other goroutines are cheap once a build
// pass is over.
type KeyedEntryStore struct {
	slots []slot
	free  []int32
	head  int32
	tail  int32
	keys  *cmap.Map[string, handle]
	count int
	size  int64
}

// NewKeyedEntryStore creates an empty store.
func NewKeyedEntryStore() *KeyedEntryStore {
	return &KeyedEntryStore{
		head: nilSlot,
		tail: nilSlot,
		keys: cmap.New[string, handle](),
	}
}

// Append adds e at the tail. It fails with ErrDuplicateKey if the key is live.
func (s *KeyedEntryStore) Append(e Entry) error {
	k := string(e.Key)
	if _, ok := s.lookup(k); ok {
		return ErrDuplicateKey
	}

	e.Key = []byte(k)

	var idx int32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		s.slots = append(s.slots, slot{})
		idx = int32(len(s.slots) - 1)
	}

	sl := &s.slots[idx]
	sl.entry = e
	sl.prev = s.tail
	sl.next = nilSlot
	sl.live = true

	if s.tail != nilSlot {
		s.slots[s.tail].next = idx
	} else {
		s.head = idx
	}
	s.tail = idx

	s.keys.Set(k, handle{idx: idx, gen: sl.gen})
	s.count++
	s.size += e.Size()
	return nil
}

// Remove unlinks the entry for key and returns it.
func (s *KeyedEntryStore) Remove(key []byte) (Entry, bool) {
	k := string(key)
	idx, ok := s.lookup(k)
	if !ok {
		return Entry{}, false
	}

	sl := &s.slots[idx]
	if sl.prev != nilSlot {
		s.slots[sl.prev].next = sl.next
	} else {
		s.head = sl.next
	}
	if sl.next != nilSlot {
		s.slots[sl.next].prev = sl.prev
	} else {
		s.tail = sl.prev
	}

	e := sl.entry
	*sl = slot{prev: nilSlot, next: nilSlot, gen: sl.gen + 1}
	s.free = append(s.free, idx)
	s.keys.Delete(k)
	s.count--
	s.size -= e.Size()
	return e, true
}

// Get returns the live entry for key.
func (s *KeyedEntryStore) Get(key []byte) (Entry, bool) {
	idx, ok := s.lookup(string(key))
	if !ok {
		return Entry{}, false
	}
	return s.slots[idx].entry, true
}

// Len returns the number of live entries.
func (s *KeyedEntryStore) Len() int {
	return s.count
}

// Size returns the encoded size of all live entries.
func (s *KeyedEntryStore) Size() int64 {
	return s.size
}

// Scan calls fn for every live entry from oldest to newest until fn
// returns false. fn must not mutate the store.
func (s *KeyedEntryStore) Scan(fn func(Entry) bool) {
	for i := s.head; i != nilSlot; i = s.slots[i].next {
		if !fn(s.slots[i].entry) {
			return
		}
	}
}

// Entries returns the live entries in insertion order.
func (s *KeyedEntryStore) Entries() []Entry {
	out := make([]Entry, 0, s.count)
	s.Scan(func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

func (s *KeyedEntryStore) lookup(k string) (int32, bool) {
	h, ok := s.keys.Get(k)
	if !ok {
		return 0, false
	}
	if int(h.idx) >= len(s.slots) {
		return 0, false
	}
	sl := &s.slots[h.idx]
	if !sl.live || sl.gen != h.gen {
		return 0, false
	}
	return h.idx, true
}
