package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/server"
	"github.com/hyperjump/ruiji/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServerCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server and watch configured directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, resolvedConfigPath, logger, err := opts.setup(true)
			if err != nil {
				return err
			}
			defer logger.Sync()
			logger.Info("config loaded",
				zap.String("config_path", resolvedConfigPath),
				zap.Bool("debug", cfg.Debug),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			components, err := initializeComponents(ctx, cfg, logger, needs{embedder: true, ids: true})
			if err != nil {
				return err
			}
			defer components.Close()

			files, err := components.FileIndexer(func(o models.Outcome) {
				if o.Kind == models.OutcomeFailed {
					logger.Warn("ingest failed", zap.String("id", o.ID), zap.Error(o.Err))
				}
			})
			if err != nil {
				return err
			}
			records, err := components.RecordIndexer(nil)
			if err != nil {
				return err
			}

			watchOpts := []watcher.WatcherOption{}
			if cfg.Debug {
				watchOpts = append(watchOpts, watcher.WithLogger(logger))
			}
			watchSvc := watcher.NewWatcher(
				cfg.Watch.Directories,
				cfg.Ingest.Extensions,
				cfg.Ingest.RecursiveOrDefault(),
				func(paths []string) {
					report, err := files.Run(ctx, slices.Values(paths))
					if err != nil {
						logger.Warn("watch ingestion interrupted", zap.Error(err))
					}
					if report != nil && report.AddedCount() > 0 {
						logger.Info("watch ingested files",
							zap.Int("added", report.AddedCount()),
							zap.Int("skipped", report.SkippedCount()),
							zap.Int("failed", report.FailedCount()))
					}
				},
				watchOpts...,
			)
			if err := watchSvc.Start(ctx); err != nil {
				return err
			}
			defer watchSvc.Stop()
			go watchSvc.SyncExistingFiles()

			srv := server.NewServer(server.Deps{
				Engine:     components.Engine,
				Store:      components.Store,
				Files:      files,
				Records:    records,
				IDs:        components.IDs,
				Watch:      watchSvc,
				Config:     cfg,
				ConfigPath: resolvedConfigPath,
			}, logger)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
}
