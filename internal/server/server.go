// Package server provides the HTTP API for ruiji.
package server

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/keyword"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/search"
	"github.com/hyperjump/ruiji/internal/storage"
	"go.uber.org/zap"
)

// Ingester runs an ingestion pass over a sequence of items.
type Ingester[T any] interface {
	Run(ctx context.Context, items iter.Seq[T]) (*models.IngestReport, error)
}

// WatchService manages watched directories. Implemented by *watcher.Watcher.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Deps holds the components the API serves. Engine, Store and Config are required;
// the rest disable their routes when nil.
type Deps struct {
	Engine  *search.Engine
	Store   storage.Store
	Files   Ingester[string]
	Records Ingester[models.Record]
	IDs     keyword.IDIndex
	Watch   WatchService
	Config  *config.Config
	// ConfigPath is where watch directory changes are persisted. Empty disables persistence.
	ConfigPath string
}

// Server is the HTTP server for the ruiji API.
type Server struct {
	Deps
	logger   *zap.Logger
	server   *http.Server
	configMu sync.Mutex
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Deps: deps, logger: logger}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search", s.handleSearch)
	r.Get("/api/v1/records", s.handleGetRecord)
	r.Post("/api/v1/records", s.handleInsertRecords)
	r.Get("/api/v1/lookup", s.handleLookup)
	r.Post("/api/v1/ingest", s.handleIngest)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/api/v1/watch/directories", s.handleWatchDirectoriesList)
	r.Post("/api/v1/watch/directories", s.handleWatchDirectoriesAdd)
	r.Delete("/api/v1/watch/directories", s.handleWatchDirectoriesRemove)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
