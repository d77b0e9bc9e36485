// Package storage defines the vector record store and its SQLite and in-memory implementations.
package storage

import (
	"context"
	"fmt"
	"iter"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/vector"
)

// Store is a durable keyed collection of fixed-dimension unit vectors.
// Implementations must be safe for concurrent use; Insert is an atomic insert-if-absent.
type Store interface {
	// Dimension returns the vector length fixed at creation.
	Dimension() int
	// Contains reports whether id is stored.
	Contains(ctx context.Context, id string) (bool, error)
	// Get returns the record for id or an error matching models.ErrNotFound.
	Get(ctx context.Context, id string) (models.Record, error)
	// Insert stores a new record. It fails with models.ErrDuplicateKey, models.ErrDimensionMismatch,
	// or models.ErrNotNormalized and leaves the store unchanged on failure.
	Insert(ctx context.Context, id string, vec []float32) error
	// Scan yields every stored record. Each call starts a fresh pass that sees at least
	// the records present when it started. Do not call other Store methods while iterating.
	Scan(ctx context.Context) iter.Seq2[models.Record, error]
	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
	Close() error
}

// validateRecord checks the insert preconditions shared by all stores.
// maxIDLen bounds record ids so snapshot readers can reject corrupt length prefixes.
const maxIDLen = 1 << 16

func validateRecord(dimension int, id string, vec []float32) error {
	if id == "" {
		return fmt.Errorf("record id cannot be empty")
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("record id longer than %d bytes", maxIDLen)
	}
	if len(vec) != dimension {
		return models.NewDimensionError(dimension, len(vec))
	}
	if !vector.IsUnit(vec) {
		return fmt.Errorf("%w: id %s has norm %.6f", models.ErrNotNormalized, id, vector.L2Norm(vec))
	}
	return nil
}

func notFound(id string) error {
	return fmt.Errorf("record %q: %w", id, models.ErrNotFound)
}

func duplicate(id string) error {
	return fmt.Errorf("record %q: %w", id, models.ErrDuplicateKey)
}
