package storage

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/hyperjump/ruiji/internal/models"
)

// MemoryStore is an in-memory Store. With a snapshot path it loads the snapshot on open
// and writes it back on Close, which makes it durable between runs.
type MemoryStore struct {
	dimension int
	ids       []string
	vectors   [][]float32
	positions map[string]int
	mu        sync.RWMutex

	snapshotPath string
	codec        Codec
	dirty        bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithSnapshot makes the store load from and save to path using codec.
func WithSnapshot(path string, codec Codec) MemoryOption {
	return func(m *MemoryStore) {
		m.snapshotPath = path
		m.codec = codec
	}
}

// NewMemoryStore creates an in-memory store with the given dimension. When a snapshot
// path is configured and the file exists, its records are loaded.
func NewMemoryStore(dimension int, opts ...MemoryOption) (*MemoryStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	m := &MemoryStore{
		dimension: dimension,
		ids:       make([]string, 0),
		vectors:   make([][]float32, 0),
		positions: make(map[string]int),
		codec:     CodecZstd,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.snapshotPath != "" {
		if err := m.Load(m.snapshotPath); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Dimension returns the vector length of the store.
func (m *MemoryStore) Dimension() int {
	return m.dimension
}

// Contains reports whether id is stored.
func (m *MemoryStore) Contains(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.positions[id]
	return ok, nil
}

// Get returns a copy of the record for id.
func (m *MemoryStore) Get(ctx context.Context, id string) (models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[id]
	if !ok {
		return models.Record{}, notFound(id)
	}
	vec := make([]float32, m.dimension)
	copy(vec, m.vectors[pos])
	return models.Record{ID: id, Vector: vec}, nil
}

// Insert appends a copy of vec under id.
func (m *MemoryStore) Insert(ctx context.Context, id string, vec []float32) error {
	if err := validateRecord(m.dimension, id, vec); err != nil {
		return err
	}
	stored := make([]float32, m.dimension)
	copy(stored, vec)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.positions[id]; ok {
		return duplicate(id)
	}
	m.positions[id] = len(m.ids)
	m.ids = append(m.ids, id)
	m.vectors = append(m.vectors, stored)
	m.dirty = true
	return nil
}

// Scan yields the records present when iteration starts. Records are append-only,
// so the snapshot is a prefix of the backing slices and needs no copy.
func (m *MemoryStore) Scan(ctx context.Context) iter.Seq2[models.Record, error] {
	return func(yield func(models.Record, error) bool) {
		m.mu.RLock()
		ids := m.ids[:len(m.ids):len(m.ids)]
		vectors := m.vectors[:len(m.vectors):len(m.vectors)]
		m.mu.RUnlock()
		for i, id := range ids {
			if err := ctx.Err(); err != nil {
				yield(models.Record{}, err)
				return
			}
			if !yield(models.Record{ID: id, Vector: vectors[i]}, nil) {
				return
			}
		}
	}
}

// Count returns the number of records.
func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids), nil
}

// Close writes the snapshot when one is configured and records were added.
func (m *MemoryStore) Close() error {
	m.mu.RLock()
	dirty := m.dirty
	m.mu.RUnlock()
	if m.snapshotPath == "" || !dirty {
		return nil
	}
	return m.Save(m.snapshotPath)
}
