package database

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyIdentity is returned when a record has no identity ID.
	ErrEmptyIdentity = errors.New("identity ID is required")

	// ErrNotSupported is returned by backends that lack an optional operation.
	ErrNotSupported = errors.New("operation not supported by backend")

	// ErrClosed is returned when using a closed store.
	ErrClosed = errors.New("store is closed")
)

// ValidationError reports a vector rejected at insert time.
// Index is the position of the offending vector within the Add call.
type ValidationError struct {
	Index    int
	Expected int
	Actual   int
	cause    error
}

func (e *ValidationError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("invalid record %d: %v", e.Index, e.cause)
	}
	return fmt.Sprintf("invalid record %d: dimension mismatch: expected %d, got %d", e.Index, e.Expected, e.Actual)
}

func (e *ValidationError) Unwrap() error { return e.cause }
