package models

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when a vector length differs from the store dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrDuplicateKey is returned when inserting an id that is already stored.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNotNormalized is returned when a vector's L2 norm is not 1 within NormTolerance.
	ErrNotNormalized = errors.New("vector not normalized")
	// ErrDegenerateVector is returned for zero-norm vectors that cannot be normalized.
	ErrDegenerateVector = errors.New("degenerate vector")
	// ErrNotFound is returned when an id is absent from the store.
	ErrNotFound = errors.New("not found")
	// ErrEmbeddingFailure wraps errors returned by an embedding generator.
	ErrEmbeddingFailure = errors.New("embedding failure")
	// ErrBackendFailure wraps errors returned by the durable store backend.
	ErrBackendFailure = errors.New("backend failure")
	// ErrInvalidQuery is returned for a malformed search query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidK is returned when a negative result count is requested.
	ErrInvalidK = errors.New("k must not be negative")
)

// DimensionError reports the expected and actual vector length. It matches ErrDimensionMismatch.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Is reports whether target is ErrDimensionMismatch.
func (e *DimensionError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// NewDimensionError returns a DimensionError for the given lengths.
func NewDimensionError(expected, actual int) error {
	return &DimensionError{Expected: expected, Actual: actual}
}

// BackendError wraps err so that it matches ErrBackendFailure while keeping the cause.
func BackendError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrBackendFailure, err)
}
