// Package indexer turns a stream of raw items into deduplicated, normalized vector records.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// EmbedFunc computes a raw feature vector for item. It may be slow and may fail.
type EmbedFunc[T any] func(ctx context.Context, item T) ([]float32, error)

// IDFunc derives the record id for item.
type IDFunc[T any] func(item T) (string, error)

// Indexer ingests items into a store. Per-item failures are recorded in the report and
// never abort a run.
type Indexer[T any] struct {
	store    storage.Store
	id       IDFunc[T]
	embed    EmbedFunc[T]
	workers  int
	limiter  *rate.Limiter
	progress func(models.Outcome)
	logger   *zap.Logger // optional; when set, logs debug events
}

type settings struct {
	workers  int
	rate     float64
	progress func(models.Outcome)
	logger   *zap.Logger
}

// Option configures an Indexer.
type Option func(*settings)

// WithWorkers sets how many items are embedded concurrently. n <= 1 embeds one at a time.
func WithWorkers(n int) Option {
	return func(s *settings) { s.workers = n }
}

// WithRateLimit caps embed calls per second. perSecond <= 0 means unlimited.
func WithRateLimit(perSecond float64) Option {
	return func(s *settings) { s.rate = perSecond }
}

// WithProgress registers fn to receive each outcome in sequence order, from a single goroutine.
func WithProgress(fn func(models.Outcome)) Option {
	return func(s *settings) { s.progress = fn }
}

// WithLogger sets a logger for debug output (item added, skipped, failed).
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// New creates an indexer writing to store, deriving ids with id and vectors with embed.
func New[T any](store storage.Store, id IDFunc[T], embed EmbedFunc[T], opts ...Option) (*Indexer[T], error) {
	if store == nil {
		return nil, errors.New("indexer: store is required")
	}
	if id == nil {
		return nil, errors.New("indexer: id function is required")
	}
	if embed == nil {
		return nil, errors.New("indexer: embed function is required")
	}
	s := settings{workers: 1}
	for _, opt := range opts {
		opt(&s)
	}
	if s.workers < 1 {
		s.workers = 1
	}
	x := &Indexer[T]{
		store:    store,
		id:       id,
		embed:    embed,
		workers:  s.workers,
		progress: s.progress,
		logger:   s.logger,
	}
	if s.rate > 0 {
		x.limiter = rate.NewLimiter(rate.Limit(s.rate), 1)
	}
	return x, nil
}

// slot carries one item from dispatch to commit. A decided slot already has its outcome;
// otherwise done is closed once the embedding finished. committed is closed after the
// final outcome was recorded.
type slot struct {
	outcome   models.Outcome
	decided   bool
	vec       []float32
	err       error
	done      chan struct{}
	committed chan struct{}
}

// Run ingests items in order and returns the report. Ids already stored are skipped before
// embedding. An item repeating an id of the same run waits for the earlier item: it is
// skipped when that one was added or found stored, and goes through the store check again
// when it failed. The returned error is non-nil only when ctx is done; the report then
// covers the items dispatched so far, and those are committed even after cancellation.
func (x *Indexer[T]) Run(ctx context.Context, items iter.Seq[T]) (*models.IngestReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report := &models.IngestReport{}

	queue := make(chan *slot, x.workers)
	committed := make(chan struct{})
	go func() {
		defer close(committed)
		for s := range queue {
			if !s.decided {
				<-s.done
				s.outcome = x.commit(context.WithoutCancel(ctx), s)
			}
			x.record(report, s.outcome)
			close(s.committed)
		}
	}()

	var (
		g       errgroup.Group
		runErr  error
		index   int
		claimed = make(map[string]*slot)
	)
	g.SetLimit(x.workers)
	for item := range items {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		index++
		s := x.dispatch(ctx, index, item, claimed)
		if !s.decided {
			if x.limiter != nil {
				if err := x.limiter.Wait(ctx); err != nil {
					runErr = ctx.Err()
					if runErr == nil {
						runErr = err
					}
					break
				}
			}
			s.done = make(chan struct{})
			g.Go(func() error {
				defer close(s.done)
				vec, err := x.embed(ctx, item)
				if err != nil {
					s.err = fmt.Errorf("%w: %w", models.ErrEmbeddingFailure, err)
					return nil
				}
				s.vec = vec
				return nil
			})
		}
		queue <- s
	}
	close(queue)
	<-committed
	_ = g.Wait()

	if x.logger != nil {
		x.logger.Debug("indexer run finished",
			zap.Int("added", report.AddedCount()),
			zap.Int("skipped", report.SkippedCount()),
			zap.Int("failed", report.FailedCount()))
	}
	return report, runErr
}

// Ingest runs a single item and returns its outcome.
func (x *Indexer[T]) Ingest(ctx context.Context, item T) (models.Outcome, error) {
	report, err := x.Run(ctx, func(yield func(T) bool) { yield(item) })
	if err != nil {
		return models.Outcome{}, err
	}
	if report.Total() == 0 {
		return models.Outcome{}, errors.New("indexer: item was not processed")
	}
	return report.Outcomes[0], nil
}

// dispatch resolves the id and decides skips and id failures before any embedding happens.
func (x *Indexer[T]) dispatch(ctx context.Context, index int, item T, claimed map[string]*slot) *slot {
	s := &slot{outcome: models.Outcome{Index: index}, committed: make(chan struct{})}
	id, err := x.id(item)
	if err == nil && id == "" {
		err = errors.New("empty id")
	}
	if err != nil {
		s.decided = true
		s.outcome.ID = fmt.Sprint(item)
		s.outcome.Kind = models.OutcomeFailed
		s.outcome.Err = fmt.Errorf("derive id: %w", err)
		return s
	}
	s.outcome.ID = id

	if prev, seen := claimed[id]; seen {
		// prev is already queued, so the committer reaches it without this item.
		<-prev.committed
		if prev.outcome.Kind != models.OutcomeFailed {
			s.decided = true
			s.outcome.Kind = models.OutcomeSkipped
			return s
		}
	}
	claimed[id] = s

	exists, err := x.store.Contains(ctx, id)
	switch {
	case err != nil:
		s.decided = true
		s.outcome.Kind = models.OutcomeFailed
		s.outcome.Err = err
	case exists:
		s.decided = true
		s.outcome.Kind = models.OutcomeSkipped
	}
	return s
}

// commit normalizes the embedded vector and inserts it. Only the commit goroutine calls it.
func (x *Indexer[T]) commit(ctx context.Context, s *slot) models.Outcome {
	o := s.outcome
	o.Kind = models.OutcomeFailed
	if s.err != nil {
		o.Err = s.err
		return o
	}
	norm := utils.NormalizeL2(s.vec)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		o.Err = fmt.Errorf("%w: norm %v", models.ErrDegenerateVector, norm)
		return o
	}
	if err := x.store.Insert(ctx, o.ID, s.vec); err != nil {
		o.Err = err
		return o
	}
	o.Kind = models.OutcomeAdded
	return o
}

func (x *Indexer[T]) record(report *models.IngestReport, o models.Outcome) {
	report.Record(o)
	if x.logger != nil {
		switch o.Kind {
		case models.OutcomeFailed:
			x.logger.Debug("indexer item failed", zap.String("id", o.ID), zap.Error(o.Err))
		default:
			x.logger.Debug("indexer item "+string(o.Kind), zap.String("id", o.ID))
		}
	}
	if x.progress != nil {
		x.progress(o)
	}
}
