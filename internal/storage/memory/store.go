package memory

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/yndnr/metastore-go/internal/core/domain"
	"github.com/yndnr/metastore-go/pkg/cmap"
)

// Pagination limits for List.
const (
	DefaultPageSize = 20
	MaxPageSize     = 1000
)

// ListFilter narrows List results.
type ListFilter struct {
	// Prefix keeps rows whose key starts with it.
	Prefix string

	// SortOrder is "asc" (default) or "desc" by key.
	SortOrder string

	Page     int
	PageSize int
}

// Store provides in-memory row storage for a fixed set of tables.
type Store struct {
	tables []*cmap.Map[string, *domain.Row]

	// Serializes Update against Delete.
	mu sync.Mutex
}

// Option configures the Store.
type Option func(*storeOptions)

type storeOptions struct {
	shards int
}

// WithShards sets the shard count of every table map.
func WithShards(n int) Option {
	return func(o *storeOptions) {
		o.shards = n
	}
}

// New creates a store for tables [0, tableCount).
func New(tableCount int, opts ...Option) *Store {
	o := storeOptions{shards: cmap.DefaultShardCount}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store{tables: make([]*cmap.Map[string, *domain.Row], tableCount)}
	for i := range s.tables {
		s.tables[i] = cmap.NewWithShards[string, *domain.Row](o.shards)
	}
	return s
}

// TableCount returns the number of tables.
func (s *Store) TableCount() int {
	return len(s.tables)
}

func (s *Store) table(t domain.TableID) (*cmap.Map[string, *domain.Row], error) {
	if !t.Valid(len(s.tables)) {
		return nil, domain.ErrInvalidArgument.WithDetails("unknown table " + t.String())
	}
	return s.tables[t], nil
}

// Get retrieves a row by table and key.
func (s *Store) Get(_ context.Context, t domain.TableID, key []byte) (*domain.Row, error) {
	m, err := s.table(t)
	if err != nil {
		return nil, err
	}
	row, ok := m.Get(string(key))
	if !ok {
		return nil, domain.ErrRowNotFound
	}

	// Return a clone to prevent external modification
	return row.Clone(), nil
}

// Insert stores a new row.
func (s *Store) Insert(_ context.Context, row *domain.Row) error {
	m, err := s.table(row.Table)
	if err != nil {
		return err
	}
	if !m.SetIfAbsent(string(row.Key), row.Clone()) {
		return domain.ErrRowExists
	}
	return nil
}

// Update replaces an existing row. When expectedVersion is non-zero it
// must match the stored version.
func (s *Store) Update(_ context.Context, row *domain.Row, expectedVersion uint64) error {
	m, err := s.table(row.Table)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := m.Get(string(row.Key))
	if !ok {
		return domain.ErrRowNotFound
	}
	if expectedVersion != 0 && existing.Version != expectedVersion {
		return domain.ErrRowVersionConflict
	}
	m.Set(string(row.Key), row.Clone())
	return nil
}

// Delete removes a row and returns it.
func (s *Store) Delete(_ context.Context, t domain.TableID, key []byte) (*domain.Row, error) {
	m, err := s.table(t)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := m.Pop(string(key))
	if !ok {
		return nil, domain.ErrRowNotFound
	}
	return row, nil
}

// Apply installs the effect of a replayed action without existence
// checks. Replay may legitimately re-apply a mutation already captured
// by a checkpoint.
func (s *Store) Apply(action domain.Action, row *domain.Row) error {
	m, err := s.table(row.Table)
	if err != nil {
		return err
	}
	switch action {
	case domain.ActionInsert, domain.ActionUpdate:
		m.Set(string(row.Key), row.Clone())
	case domain.ActionDelete:
		m.Delete(string(row.Key))
	default:
		return domain.ErrInvalidArgument.WithDetails("unknown action " + action.String())
	}
	return nil
}

// List returns one page of a table's rows sorted by key, and the number
// of rows matching the filter.
func (s *Store) List(_ context.Context, t domain.TableID, filter *ListFilter) ([]*domain.Row, int, error) {
	m, err := s.table(t)
	if err != nil {
		return nil, 0, err
	}
	if filter == nil {
		filter = &ListFilter{}
	}

	var filtered []*domain.Row
	m.Range(func(k string, row *domain.Row) bool {
		if filter.Prefix == "" || strings.HasPrefix(k, filter.Prefix) {
			filtered = append(filtered, row)
		}
		return true
	})
	total := len(filtered)

	desc := filter.SortOrder == "desc"
	sort.Slice(filtered, func(i, j int) bool {
		c := bytes.Compare(filtered[i].Key, filtered[j].Key)
		if desc {
			return c > 0
		}
		return c < 0
	})

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	} else if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	startIdx := (page - 1) * pageSize
	if startIdx >= len(filtered) {
		return []*domain.Row{}, total, nil
	}
	endIdx := min(startIdx+pageSize, len(filtered))

	results := make([]*domain.Row, 0, endIdx-startIdx)
	for _, row := range filtered[startIdx:endIdx] {
		results = append(results, row.Clone())
	}
	return results, total, nil
}

// Count returns the number of rows across all tables.
func (s *Store) Count() int {
	n := 0
	for _, m := range s.tables {
		n += m.Count()
	}
	return n
}

// CountTable returns the number of rows in table t.
func (s *Store) CountTable(t domain.TableID) int {
	m, err := s.table(t)
	if err != nil {
		return 0
	}
	return m.Count()
}

// Scan calls fn for every row, table by table, until fn returns false.
// Rows are passed without cloning and must not be modified.
func (s *Store) Scan(fn func(*domain.Row) bool) {
	for _, m := range s.tables {
		stopped := false
		m.Range(func(_ string, row *domain.Row) bool {
			if !fn(row) {
				stopped = true
				return false
			}
			return true
		})
		if stopped {
			return
		}
	}
}

// All returns a clone of every row, ordered by table then key.
func (s *Store) All() []*domain.Row {
	rows := make([]*domain.Row, 0, s.Count())
	for _, m := range s.tables {
		start := len(rows)
		m.Range(func(_ string, row *domain.Row) bool {
			rows = append(rows, row.Clone())
			return true
		})
		part := rows[start:]
		sort.Slice(part, func(i, j int) bool { return bytes.Compare(part[i].Key, part[j].Key) < 0 })
	}
	return rows
}

// Clear removes every row.
func (s *Store) Clear() {
	for _, m := range s.tables {
		m.Clear()
	}
}
