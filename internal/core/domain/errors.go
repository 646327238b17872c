package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes follow the format MS-<AREA>-<NNNN>.
type DomainError struct {
	Code    string // Error code (e.g., "MS-ROW-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Row errors.
var (
	// ErrRowNotFound indicates the requested row does not exist.
	ErrRowNotFound = NewDomainError("MS-ROW-4040", "row not found")

	// ErrRowExists indicates an insert collided with a live row.
	ErrRowExists = NewDomainError("MS-ROW-4090", "row already exists")

	// ErrRowVersionConflict indicates an update carried a stale expected version.
	ErrRowVersionConflict = NewDomainError("MS-ROW-4091", "row version conflict")
)

// Argument errors.
var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("MS-ARG-1001", "invalid argument")
)

// System errors.
var (
	// ErrStorageError indicates a storage layer error.
	ErrStorageError = NewDomainError("MS-SYS-5001", "storage error")

	// ErrIndexUnavailable indicates no usable WAL index exists.
	ErrIndexUnavailable = NewDomainError("MS-SYS-5031", "wal index unavailable")

	// ErrServerBusy indicates an exclusive maintenance task is already running.
	ErrServerBusy = NewDomainError("MS-SYS-5032", "server busy")
)
