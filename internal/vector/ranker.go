package vector

import (
	"context"
	"iter"
	"runtime"
	"sync"

	"github.com/hyperjump/ruiji/internal/models"
	"golang.org/x/sync/errgroup"
)

const defaultBatchSize = 4096

// Ranker ranks a record scan against a reference vector, splitting the scan into
// batches that are scored concurrently and merged with MergeTopK.
// The zero value ranks with GOMAXPROCS workers and the default batch size.
type Ranker struct {
	// Workers bounds the number of batches scored at once. <= 0 means GOMAXPROCS.
	Workers int
	// BatchSize is the number of records per batch. <= 0 means 4096.
	BatchSize int
}

// Rank returns the top-k matches for reference over scan, excluding excludeID.
// A scan error aborts the ranking and is returned; no partial result is produced.
func (r Ranker) Rank(ctx context.Context, reference []float32, scan iter.Seq2[models.Record, error], k int, excludeID string) ([]models.Match, error) {
	if k <= 0 {
		return []models.Match{}, nil
	}
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	batchSize := r.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var (
		mu       sync.Mutex
		partials [][]models.Match
	)
	submit := func(batch []models.Record) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			top := TopK(reference, Records(batch), k, excludeID)
			mu.Lock()
			partials = append(partials, top)
			mu.Unlock()
			return nil
		})
	}

	batch := make([]models.Record, 0, batchSize)
	var scanErr error
	for rec, err := range scan {
		if err != nil {
			scanErr = err
			break
		}
		if err := gctx.Err(); err != nil {
			scanErr = err
			break
		}
		batch = append(batch, rec)
		if len(batch) == batchSize {
			submit(batch)
			batch = make([]models.Record, 0, batchSize)
		}
	}
	if scanErr == nil && len(batch) > 0 {
		submit(batch)
	}
	if err := g.Wait(); err != nil && scanErr == nil {
		scanErr = err
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return MergeTopK(k, partials...), nil
}
