package logoann

import (
	"errors"
	"fmt"

	"github.com/hupe1980/logoann/index"
	"github.com/hupe1980/logoann/store"
)

var (
	// ErrUnknownIndex is returned when the named index is not loaded.
	ErrUnknownIndex = errors.New("unknown index")

	// ErrUnknownID is returned when an identifier is present in neither the
	// frozen index nor the embedding store.
	ErrUnknownID = errors.New("unknown identifier")

	// ErrInvalidK is returned when the requested result count is not positive.
	ErrInvalidK = errors.New("count must be positive")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// translateError normalizes per-package error types into the public
// taxonomy of this package.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var idm *index.ErrDimensionMismatch
	if errors.As(err, &idm) {
		return &ErrDimensionMismatch{Expected: idm.Expected, Actual: idm.Actual, cause: err}
	}
	var sdm *store.ErrDimensionMismatch
	if errors.As(err, &sdm) {
		return &ErrDimensionMismatch{Expected: sdm.Expected, Actual: sdm.Actual, cause: err}
	}

	return err
}
