package walindex

import (
	"errors"
	"fmt"
)

// Sentinel errors for index construction and restore.
var (
	// ErrMissingKey is returned when a Delete or Update references a key
	// that has no live entry. WAL actions are well-formed by construction,
	// so this means the log (or the replay order) is corrupt.
	ErrMissingKey = errors.New("walindex: key not in index")

	// ErrDuplicateKey is returned when an Insert targets a key that is already live.
	ErrDuplicateKey = errors.New("walindex: key already in index")

	// ErrNegativeAccounting is returned when a size total would drop below zero.
	ErrNegativeAccounting = errors.New("walindex: negative size accounting")

	// ErrInvalidTable is returned for table ids outside the configured range.
	ErrInvalidTable = errors.New("walindex: invalid table id")

	// ErrInvalidAction is returned for actions other than Insert, Update, Delete.
	ErrInvalidAction = errors.New("walindex: invalid action")

	// ErrCorruptFormat matches every *FormatError.
	ErrCorruptFormat = errors.New("walindex: corrupt index format")

	// ErrInvariant matches every *InvariantError.
	ErrInvariant = errors.New("walindex: invariant violated")

	// ErrTooLarge is returned when a buffer size cannot be represented or
	// exceeds what the input can hold.
	ErrTooLarge = errors.New("walindex: size too large")
)

// IOError records a failed storage operation on a path.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("walindex: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// FormatError describes a malformed index buffer.
type FormatError struct {
	Offset int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("walindex: corrupt index at byte %d: %s", e.Offset, e.Reason)
}

// Is reports ErrCorruptFormat as a match.
func (e *FormatError) Is(target error) bool { return target == ErrCorruptFormat }

// InvariantError reports an internal accounting mismatch found while
// encoding. It points at a bug in the accumulator, not at bad input.
type InvariantError struct {
	What string
	Want int64
	Got  int64
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("walindex: invariant violated: %s: want %d, got %d", e.What, e.Want, e.Got)
}

// Is reports ErrInvariant as a match.
func (e *InvariantError) Is(target error) bool { return target == ErrInvariant }

func formatErrorf(offset int, format string, args ...any) error {
	return &FormatError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
