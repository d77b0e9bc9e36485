package cli

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/fileid"
	"github.com/hyperjump/ruiji/internal/indexer"
	"github.com/hyperjump/ruiji/internal/keyword"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/search"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/vector"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    storage.Store
	Embedder embedding.Embedder // nil unless requested
	IDs      keyword.IDIndex    // nil unless requested
	Engine   *search.Engine
}

// needs selects the optional components a command uses. The embedder loads a model and
// the id index takes a file lock, so commands only open what they need.
type needs struct {
	embedder bool
	ids      bool
}

func (c *Components) Close() {
	if c.IDs != nil {
		_ = c.IDs.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			c.Logger.Warn("store close failed", zap.Error(err))
		}
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, n needs) (*Components, error) {
	c := &Components{Config: cfg, Logger: logger}

	codec, err := storage.ParseCodec(cfg.Storage.SnapshotCodec)
	if err != nil {
		return nil, err
	}
	path := cfg.Storage.DatabasePath
	if cfg.Storage.Backend == string(storage.BackendMemory) {
		path = cfg.Storage.SnapshotPath
	}
	c.Store, err = storage.Open(storage.Options{
		Backend:   storage.Backend(cfg.Storage.Backend),
		Driver:    cfg.Storage.Driver,
		Path:      path,
		Dimension: cfg.Embedding.Dimensions,
		Codec:     codec,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if n.embedder {
		c.Embedder, err = embedding.New(embedding.ONNXConfig{
			ModelPath:  cfg.Embedding.ModelPath,
			Dimensions: cfg.Embedding.Dimensions,
			ImageSize:  cfg.Embedding.ImageSize,
			InputName:  cfg.Embedding.InputName,
			OutputName: cfg.Embedding.OutputName,
			CacheSize:  cfg.Embedding.CacheSize,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		if dim := c.Embedder.Dimensions(); dim != cfg.Embedding.Dimensions {
			c.Close()
			return nil, fmt.Errorf("embedder produces %d dimensions, store expects %d", dim, cfg.Embedding.Dimensions)
		}
	}

	if n.ids {
		c.IDs, err = keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize id index: %w", err)
		}
		if err := c.syncIDs(ctx); err != nil {
			c.Close()
			return nil, err
		}
	}

	engineOpts := []search.EngineOption{
		search.WithRanker(vector.Ranker{Workers: cfg.Search.Workers, BatchSize: cfg.Search.BatchSize}),
	}
	if c.Embedder != nil {
		engineOpts = append(engineOpts, search.WithEmbedder(c.Embedder))
	}
	if cfg.Debug {
		engineOpts = append(engineOpts, search.WithLogger(logger))
	}
	c.Engine = search.NewEngine(c.Store, engineOpts...)
	return c, nil
}

// syncIDs rebuilds the id index from the store when it lags behind, e.g. after the index
// directory was deleted or records were added with the index closed.
func (c *Components) syncIDs(ctx context.Context) error {
	indexed, err := c.IDs.DocCount()
	if err != nil {
		return fmt.Errorf("count indexed ids: %w", err)
	}
	stored, err := c.Store.Count(ctx)
	if err != nil {
		return err
	}
	if uint64(stored) <= indexed {
		return nil
	}
	n, err := c.IDs.Sync(ctx, storedIDs(c.Store.Scan(ctx)))
	if err != nil {
		return fmt.Errorf("sync id index: %w", err)
	}
	c.Logger.Debug("id index synced", zap.Int("ids", n), zap.Uint64("previously_indexed", indexed))
	return nil
}

func storedIDs(scan iter.Seq2[models.Record, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for rec, err := range scan {
			if !yield(rec.ID, err) {
				return
			}
		}
	}
}

// indexerOptions returns the configured ingestion options. Added ids are indexed in the
// id index before progress is called.
func (c *Components) indexerOptions(progress func(models.Outcome)) []indexer.Option {
	ing := c.Config.Ingest
	opts := []indexer.Option{
		indexer.WithWorkers(ing.Workers),
		indexer.WithRateLimit(ing.RateLimit),
		indexer.WithProgress(func(o models.Outcome) {
			if o.Kind == models.OutcomeAdded && c.IDs != nil {
				if err := c.IDs.Index(context.Background(), o.ID); err != nil {
					c.Logger.Warn("id index update failed", zap.String("id", o.ID), zap.Error(err))
				}
			}
			if progress != nil {
				progress(o)
			}
		}),
	}
	if c.Config.Debug {
		opts = append(opts, indexer.WithLogger(c.Logger))
	}
	return opts
}

// FileIndexer returns an indexer for image paths. It requires the embedder.
func (c *Components) FileIndexer(progress func(models.Outcome)) (*indexer.Indexer[string], error) {
	if c.Embedder == nil {
		return nil, errors.New("file ingestion requires an embedder")
	}
	return indexer.NewFileIndexer(c.Store, c.Embedder, fileid.Scheme(c.Config.Ingest.IDScheme), c.indexerOptions(progress)...)
}

// RecordIndexer returns an indexer for records that carry their own vectors.
func (c *Components) RecordIndexer(progress func(models.Outcome)) (*indexer.Indexer[models.Record], error) {
	return indexer.NewRecordIndexer(c.Store, c.indexerOptions(progress)...)
}
