package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/spf13/cobra"
)

type searchFlags struct {
	id            string
	vectorFile    string
	image         string
	limit         int
	minSimilarity float32
}

func newSearchCommand(opts *globalOptions) *cobra.Command {
	var f searchFlags
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find the stored images most similar to a reference",
		Long: `Rank stored records by cosine similarity to exactly one reference:
  --id           a stored id (the id itself is left out of the results)
  --vector-file  a JSON file holding a raw query vector
  --image        an image file, embedded with the configured model

Examples:
  ruiji search --id ./photos/cat.jpg
  ruiji search --vector-file q.json --limit 20
  ruiji search --image new.jpg --min-similarity 0.9`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			q, err := f.query(cmd)
			if err != nil {
				return err
			}
			cfg, _, logger, err := opts.setup(false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			components, err := initializeComponents(ctx, cfg, logger, needs{embedder: q.Path != ""})
			if err != nil {
				return err
			}
			defer components.Close()

			start := time.Now()
			response, err := components.Engine.Search(ctx, q, cfg.Search.DefaultLimit, cfg.Search.MaxLimit)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					return fmt.Errorf("%q was not found in DB", q.ID)
				}
				return err
			}
			elapsed := time.Since(start)

			out := cmd.OutOrStdout()
			decimals := 6
			if q.ID != "" {
				decimals = 4
			}
			if err := WriteMatches(out, response, format, decimals); err != nil {
				return err
			}
			if format == OutputText && q.ID == "" {
				WriteElapsed(out, elapsed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.id, "id", "", "stored id to search from")
	cmd.Flags().StringVar(&f.vectorFile, "vector-file", "", "JSON file with the query vector")
	cmd.Flags().StringVar(&f.image, "image", "", "image file to embed and search from")
	cmd.Flags().IntVarP(&f.limit, "limit", "n", 0, "number of results (default from config)")
	cmd.Flags().Float32Var(&f.minSimilarity, "min-similarity", 0, "return every match at or above this similarity (capped by --limit)")
	cmd.MarkFlagsMutuallyExclusive("id", "vector-file", "image")
	cmd.MarkFlagsOneRequired("id", "vector-file", "image")
	return cmd
}

func (f *searchFlags) query(cmd *cobra.Command) (*models.SearchQuery, error) {
	q := &models.SearchQuery{ID: f.id, Path: f.image, Limit: f.limit}
	if f.vectorFile != "" {
		vec, err := ReadVectorFile(f.vectorFile)
		if err != nil {
			return nil, err
		}
		q.Vector = vec
	}
	if cmd.Flags().Changed("min-similarity") {
		threshold := f.minSimilarity
		q.MinSimilarity = &threshold
	}
	return q, nil
}
