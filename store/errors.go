package store

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("store: closed")
	// ErrInvalidMagic indicates a store file that is not a logoann store.
	ErrInvalidMagic = errors.New("store: invalid magic number")
	// ErrInvalidVersion indicates an unsupported store file version.
	ErrInvalidVersion = errors.New("store: unsupported version")
)

// ErrDimensionMismatch indicates a vector whose length disagrees with the
// store's fixed width.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrWrite indicates a persistence failure during an append. The in-memory
// mapping is never updated when the persisted write did not complete, so a
// failed append leaves the store observably unchanged.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrWrite struct {
	cause error
}

func (e *ErrWrite) Error() string {
	return fmt.Sprintf("store write: %v", e.cause)
}

func (e *ErrWrite) Unwrap() error { return e.cause }
