package cli

import (
	"fmt"
	"iter"
	"math/rand/v2"
	"os"

	"github.com/google/uuid"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/pkg/utils"
	"github.com/spf13/cobra"
)

// RandomUnitVector draws dims components uniformly from [-0.5, 0.5) and normalizes them.
func RandomUnitVector(rng *rand.Rand, dims int) []float32 {
	vec := make([]float32, dims)
	for {
		for i := range vec {
			vec[i] = rng.Float32() - 0.5
		}
		if utils.NormalizeL2(vec) > 0 {
			return vec
		}
	}
}

// rngReader adapts rng to io.Reader so uuids follow the same seed as the vectors.
type rngReader struct{ rng *rand.Rand }

func (r rngReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r.rng.Uint32())
	}
	return len(p), nil
}

// randomRecords yields count records with random uuid ids and random unit vectors, both
// drawn from rng.
func randomRecords(rng *rand.Rand, count, dims int) iter.Seq[models.Record] {
	return func(yield func(models.Record) bool) {
		for range count {
			id := uuid.Must(uuid.NewRandomFromReader(rngReader{rng}))
			if !yield(models.Record{ID: id.String(), Vector: RandomUnitVector(rng, dims)}) {
				return
			}
		}
	}
}

func newRNG(seed uint64, seeded bool) *rand.Rand {
	if !seeded {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func newGenerateCommand(opts *globalOptions) *cobra.Command {
	var (
		count int
		seed  uint64
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Store random fixture records",
		Long: `Store --count records with random ids and random unit vectors of the configured
dimension. Useful for load testing searches.

Example:
  ruiji generate --count 100000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			if count <= 0 {
				return fmt.Errorf("--count must be positive, got %d", count)
			}
			cfg, _, logger, err := opts.setup(false)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			components, err := initializeComponents(ctx, cfg, logger, needs{ids: true})
			if err != nil {
				return err
			}
			defer components.Close()

			idx, err := components.RecordIndexer(nil)
			if err != nil {
				return err
			}
			rng := newRNG(seed, cmd.Flags().Changed("seed"))
			report, err := idx.Run(ctx, randomRecords(rng, count, cfg.Embedding.Dimensions))
			if report != nil {
				var werr error
				if format == OutputJSON {
					werr = writeJSON(cmd.OutOrStdout(), map[string]int{
						"added":  report.AddedCount(),
						"failed": report.FailedCount(),
					})
				} else {
					werr = WriteReport(cmd.OutOrStdout(), report, format)
				}
				if werr != nil {
					return werr
				}
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1000, "number of records to generate")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed for ids and vectors (default random)")
	return cmd
}

func newMakeQueryCommand() *cobra.Command {
	var (
		dims int
		out  string
		seed uint64
	)
	cmd := &cobra.Command{
		Use:   "make-query",
		Short: "Write a random unit query vector as JSON",
		Long: `Write a random unit vector for "ruiji search --vector-file".

Example:
  ruiji make-query --dims 1024 --out q.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dims <= 0 {
				return fmt.Errorf("--dims must be positive, got %d", dims)
			}
			vec := RandomUnitVector(newRNG(seed, cmd.Flags().Changed("seed")), dims)
			if out == "" || out == "-" {
				return WriteVectorFile(cmd.OutOrStdout(), vec)
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create query file: %w", err)
			}
			if err := WriteVectorFile(f, vec); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().IntVar(&dims, "dims", 1024, "vector dimension")
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed (default random)")
	return cmd
}
