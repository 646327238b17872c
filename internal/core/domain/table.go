// Package domain defines the core domain models for the metadata node.
//
// Domain models are pure value objects without any IO dependencies.
package domain

import (
	"fmt"
	"time"
)

// Table limits.
const (
	// MaxTables bounds the table id domain. Table ids are packed into a
	// single WAL message type byte as table*10+action.
	MaxTables = 25

	// DefaultTableCount is the number of metadata tables a node manages
	// when no explicit count is configured.
	DefaultTableCount = 12

	// MaxKeyLength is the largest accepted row key in bytes.
	MaxKeyLength = 1 << 16

	// MaxValueLength is the largest accepted row value in bytes.
	MaxValueLength = 1 << 20
)

// TableID identifies a metadata table (users, databases, vgroups, ...).
type TableID int32

// Valid reports whether the id falls inside [0, count).
func (t TableID) Valid(count int) bool {
	return t >= 0 && int(t) < count
}

// String implements fmt.Stringer.
func (t TableID) String() string {
	return fmt.Sprintf("t%d", int32(t))
}

// Action describes what a WAL record does to a keyed row.
type Action uint8

const (
	ActionUnspecified Action = iota
	ActionInsert
	ActionUpdate
	ActionDelete
)

// Valid reports whether a is one of Insert, Update or Delete.
func (a Action) Valid() bool {
	return a >= ActionInsert && a <= ActionDelete
}

// String implements fmt.Stringer.
func (a Action) String() string {
	switch a {
	case ActionInsert:
		return "insert"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unspecified"
	}
}

// ParseAction converts a lowercase action name to an Action.
func ParseAction(s string) (Action, error) {
	switch s {
	case "insert":
		return ActionInsert, nil
	case "update":
		return ActionUpdate, nil
	case "delete":
		return ActionDelete, nil
	default:
		return ActionUnspecified, ErrInvalidArgument.WithDetails("unknown action " + s)
	}
}

// Row is one live metadata row held by the node.
type Row struct {
	Table TableID `json:"table"`
	Key   []byte  `json:"key"`
	Value []byte  `json:"value"`

	// Version is the WAL sequence number of the last mutation.
	Version uint64 `json:"version"`

	// UpdatedAt is the mutation timestamp (Unix milliseconds).
	UpdatedAt int64 `json:"updated_at"`
}

// NewRow validates its arguments and creates a row stamped with the current time.
func NewRow(table TableID, key, value []byte, tableCount int) (*Row, error) {
	if !table.Valid(tableCount) {
		return nil, ErrInvalidArgument.WithDetails(fmt.Sprintf("table %d out of range [0,%d)", table, tableCount))
	}
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if len(value) > MaxValueLength {
		return nil, ErrInvalidArgument.WithDetails("value too large")
	}

	return &Row{
		Table:     table,
		Key:       append([]byte(nil), key...),
		Value:     append([]byte(nil), value...),
		UpdatedAt: time.Now().UnixMilli(),
	}, nil
}

// ValidateKey checks key length constraints.
func ValidateKey(key []byte) error {
	if len(key) == 0 {
		return ErrInvalidArgument.WithDetails("key is empty")
	}
	if len(key) > MaxKeyLength {
		return ErrInvalidArgument.WithDetails("key too long")
	}
	return nil
}

// Clone returns a deep copy of the row.
func (r *Row) Clone() *Row {
	if r == nil {
		return nil
	}
	c := *r
	c.Key = append([]byte(nil), r.Key...)
	c.Value = append([]byte(nil), r.Value...)
	return &c
}
