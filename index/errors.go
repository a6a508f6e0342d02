package index

import "fmt"

// ErrDimensionMismatch indicates a query vector whose length disagrees with
// the index dimensionality.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrLoad indicates that the artifacts of a named index are missing or
// inconsistent. Load failures are fatal for the affected index only.
type ErrLoad struct {
	Index string
	cause error
}

func (e *ErrLoad) Error() string {
	return fmt.Sprintf("load index %q: %v", e.Index, e.cause)
}

func (e *ErrLoad) Unwrap() error { return e.cause }
