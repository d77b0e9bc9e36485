// Package search answers similarity queries against a vector store.
package search

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/vector"
	"go.uber.org/zap"
)

// Engine ranks stored records against a reference vector.
type Engine struct {
	store    storage.Store
	ranker   vector.Ranker
	embedder embedding.Embedder // optional; enables QueryByItem
	logger   *zap.Logger        // optional
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRanker sets the worker count and batch size used to rank scans.
func WithRanker(r vector.Ranker) EngineOption {
	return func(e *Engine) { e.ranker = r }
}

// WithEmbedder enables queries by raw item (e.g. an image file that is not stored).
func WithEmbedder(emb embedding.Embedder) EngineOption {
	return func(e *Engine) { e.embedder = emb }
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a search engine over store.
func NewEngine(store storage.Store, opts ...EngineOption) *Engine {
	e := &Engine{store: store}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// reference is a unit query vector plus the id to leave out of results.
type reference struct {
	vec     []float32
	exclude string
}

// QueryByVector returns the k stored records most similar to vec. vec need not be
// normalized but must have the store's dimension and a non-zero norm.
func (e *Engine) QueryByVector(ctx context.Context, vec []float32, k int) ([]models.Match, error) {
	if err := checkK(k); err != nil {
		return nil, err
	}
	ref, err := e.vectorReference(vec)
	if err != nil {
		return nil, err
	}
	return e.rank(ctx, ref, k)
}

// QueryByID returns the k records most similar to the stored record id, excluding id itself.
func (e *Engine) QueryByID(ctx context.Context, id string, k int) ([]models.Match, error) {
	if err := checkK(k); err != nil {
		return nil, err
	}
	ref, err := e.idReference(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.rank(ctx, ref, k)
}

// QueryByItem embeds key with the configured embedder and queries by the resulting vector.
func (e *Engine) QueryByItem(ctx context.Context, key string, k int) ([]models.Match, error) {
	if err := checkK(k); err != nil {
		return nil, err
	}
	ref, err := e.itemReference(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.rank(ctx, ref, k)
}

// Above returns every stored record whose similarity to vec is at least minSimilarity.
func (e *Engine) Above(ctx context.Context, vec []float32, minSimilarity float32) ([]models.Match, error) {
	ref, err := e.vectorReference(vec)
	if err != nil {
		return nil, err
	}
	return e.above(ctx, ref, minSimilarity)
}

// Search validates q, resolves its reference and runs either a top-k or a threshold query.
func (e *Engine) Search(ctx context.Context, q *models.SearchQuery, defaultLimit, maxLimit int) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := ProcessQuery(q, defaultLimit, maxLimit); err != nil {
		return nil, err
	}

	var (
		ref reference
		err error
	)
	switch {
	case q.ID != "":
		ref, err = e.idReference(ctx, q.ID)
	case len(q.Vector) > 0:
		ref, err = e.vectorReference(q.Vector)
	default:
		ref, err = e.itemReference(ctx, q.Path)
	}
	if err != nil {
		return nil, err
	}

	var matches []models.Match
	total := 0
	if q.MinSimilarity != nil {
		matches, err = e.above(ctx, ref, *q.MinSimilarity)
		total = len(matches)
		if len(matches) > q.Limit {
			matches = matches[:q.Limit]
		}
	} else {
		matches, err = e.rank(ctx, ref, q.Limit)
		total = len(matches)
	}
	if err != nil {
		return nil, err
	}

	resp := &models.SearchResponse{
		Matches:   matches,
		Total:     total,
		QueryTime: time.Since(startTime).Milliseconds(),
	}
	if e.logger != nil {
		e.logger.Debug("search done",
			zap.String("id", q.ID),
			zap.String("path", q.Path),
			zap.Int("limit", q.Limit),
			zap.Int("total", total),
			zap.Int64("query_time_ms", resp.QueryTime))
	}
	return resp, nil
}

func checkK(k int) error {
	if k < 0 {
		return fmt.Errorf("%w: got %d", models.ErrInvalidK, k)
	}
	return nil
}

func (e *Engine) vectorReference(vec []float32) (reference, error) {
	if dim := e.store.Dimension(); len(vec) != dim {
		return reference{}, models.NewDimensionError(dim, len(vec))
	}
	unit, err := vector.Normalize(vec)
	if err != nil {
		return reference{}, err
	}
	return reference{vec: unit}, nil
}

func (e *Engine) idReference(ctx context.Context, id string) (reference, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return reference{}, err
	}
	return reference{vec: rec.Vector, exclude: id}, nil
}

func (e *Engine) itemReference(ctx context.Context, key string) (reference, error) {
	if e.embedder == nil {
		return reference{}, errors.New("query by item requires an embedder")
	}
	vec, err := e.embedder.Embed(ctx, key)
	if err != nil {
		return reference{}, fmt.Errorf("%w: %w", models.ErrEmbeddingFailure, err)
	}
	return e.vectorReference(vec)
}

func (e *Engine) rank(ctx context.Context, ref reference, k int) ([]models.Match, error) {
	if k == 0 {
		return []models.Match{}, nil
	}
	matches, err := e.ranker.Rank(ctx, ref.vec, e.store.Scan(ctx), k, ref.exclude)
	if err != nil {
		return nil, fmt.Errorf("rank records: %w", err)
	}
	return matches, nil
}

func (e *Engine) above(ctx context.Context, ref reference, minSimilarity float32) ([]models.Match, error) {
	var scanErr error
	matches := vector.Threshold(ref.vec, records(e.store.Scan(ctx), &scanErr), minSimilarity, ref.exclude)
	if scanErr != nil {
		return nil, fmt.Errorf("scan records: %w", scanErr)
	}
	return matches, nil
}

// records adapts a fallible scan to a plain sequence. The first scan error stops the
// sequence and is stored in *errp.
func records(scan iter.Seq2[models.Record, error], errp *error) iter.Seq[models.Record] {
	return func(yield func(models.Record) bool) {
		for rec, err := range scan {
			if err != nil {
				*errp = err
				return
			}
			if !yield(rec) {
				return
			}
		}
	}
}
