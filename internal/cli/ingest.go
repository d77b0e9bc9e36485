package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/hyperjump/ruiji/internal/indexer"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newIngestCommand(opts *globalOptions) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "ingest <file-or-directory>...",
		Short: "Embed images and store their vectors",
		Long: `Embed every image under the given directories (filtered by ingest.extensions) and every
file given directly, then store one normalized vector per image. Images whose id is
already stored are skipped without being embedded.

Examples:
  ruiji ingest ~/Pictures
  ruiji ingest --workers 4 ./photos ./scans/receipt.jpg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format()
			if err != nil {
				return err
			}
			cfg, _, logger, err := opts.setup(false)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if cmd.Flags().Changed("workers") {
				cfg.Ingest.Workers = workers
			}

			paths, err := collectPaths(args, cfg.Ingest.Extensions, cfg.Ingest.RecursiveOrDefault())
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No images found")
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			components, err := initializeComponents(ctx, cfg, logger, needs{embedder: true, ids: true})
			if err != nil {
				return err
			}
			defer components.Close()

			out := cmd.OutOrStdout()
			total := len(paths)
			var progress func(models.Outcome)
			if format == OutputText {
				progress = func(o models.Outcome) {
					fmt.Fprintln(out, ProgressLine(o, total, paths[o.Index-1]))
				}
			}
			idx, err := components.FileIndexer(progress)
			if err != nil {
				return err
			}
			report, runErr := idx.Run(ctx, slices.Values(paths))
			if report != nil {
				if err := WriteReport(out, report, format); err != nil {
					return err
				}
			}
			if runErr != nil {
				logger.Warn("ingestion interrupted", zap.Error(runErr))
				return fmt.Errorf("ingestion interrupted: %w", runErr)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "images embedded concurrently (default from config)")
	return cmd
}

// collectPaths expands directories into their matching files. Files named directly are
// kept regardless of extension.
func collectPaths(args []string, exts []string, recursive bool) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%s: no such file or directory", arg)
			}
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		files, err := indexer.ListFiles(arg, exts, recursive)
		if err != nil {
			return nil, err
		}
		paths = append(paths, files...)
	}
	return paths, nil
}
