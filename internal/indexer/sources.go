package indexer

import (
	"context"
	"errors"
	"slices"

	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/fileid"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
)

// NewFileIndexer returns an indexer over file paths: ids follow scheme and vectors come
// from emb.
func NewFileIndexer(store storage.Store, emb embedding.Embedder, scheme fileid.Scheme, opts ...Option) (*Indexer[string], error) {
	if emb == nil {
		return nil, errors.New("indexer: embedder is required")
	}
	id, err := fileid.Func(scheme)
	if err != nil {
		return nil, err
	}
	return New(store, IDFunc[string](id), emb.Embed, opts...)
}

// NewRecordIndexer returns an indexer for records that already carry a vector. The vector
// is copied and normalized; the caller's record is left untouched.
func NewRecordIndexer(store storage.Store, opts ...Option) (*Indexer[models.Record], error) {
	return New(store, recordID, recordVector, opts...)
}

func recordID(r models.Record) (string, error) {
	return r.ID, nil
}

func recordVector(_ context.Context, r models.Record) ([]float32, error) {
	if len(r.Vector) == 0 {
		return nil, errors.New("record has no vector")
	}
	return slices.Clone(r.Vector), nil
}
