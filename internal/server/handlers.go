package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/indexer"
	"github.com/hyperjump/ruiji/internal/keyword"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
	"go.uber.org/zap"
)

// statusFor maps query errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidQuery),
		errors.Is(err, models.ErrInvalidK),
		errors.Is(err, models.ErrDimensionMismatch),
		errors.Is(err, models.ErrDegenerateVector):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrEmbeddingFailure):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request",
		zap.String("id", query.ID),
		zap.String("path", query.Path),
		zap.Int("vector_len", len(query.Vector)),
		zap.Int("limit", query.Limit))
	response, err := s.Engine.Search(r.Context(), &query, s.Config.Search.DefaultLimit, s.Config.Search.MaxLimit)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("search failed", zap.Error(err))
		}
		s.respondError(w, status, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		s.respondError(w, http.StatusBadRequest, "id is required")
		return
	}
	rec, err := s.Store.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

type insertRecordsRequest struct {
	Records []models.Record `json:"records"`
}

func (s *Server) handleInsertRecords(w http.ResponseWriter, r *http.Request) {
	if s.Records == nil {
		s.respondError(w, http.StatusNotImplemented, "record ingestion not enabled")
		return
	}
	var req insertRecordsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Records) == 0 {
		s.respondError(w, http.StatusBadRequest, "records are required")
		return
	}
	s.logger.Debug("insert records request", zap.Int("records", len(req.Records)))
	report, err := s.Records.Run(r.Context(), slices.Values(req.Records))
	if err != nil {
		s.logger.Error("record ingestion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

type ingestRequest struct {
	Paths     []string `json:"paths"`
	Directory string   `json:"directory"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.Files == nil {
		s.respondError(w, http.StatusNotImplemented, "file ingestion not enabled")
		return
	}
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	paths := req.Paths
	if req.Directory != "" {
		found, err := indexer.ListFiles(req.Directory, s.Config.Ingest.Extensions, s.Config.Ingest.RecursiveOrDefault())
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				s.respondError(w, http.StatusNotFound, "directory not found")
				return
			}
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		s.respondError(w, http.StatusBadRequest, "paths or directory is required")
		return
	}
	s.logger.Debug("ingest request", zap.Int("paths", len(paths)), zap.String("directory", req.Directory))
	report, err := s.Files.Run(r.Context(), slices.Values(paths))
	if err != nil {
		s.logger.Error("ingestion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	if s.IDs == nil {
		s.respondError(w, http.StatusNotImplemented, "id lookup not enabled")
		return
	}
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := s.Config.Search.DefaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, s.Config.Search.MaxLimit)
	}
	var opts *keyword.SearchOptions
	if v := q.Get("fuzziness"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 2 {
			s.respondError(w, http.StatusBadRequest, "fuzziness must be 0, 1 or 2")
			return
		}
		opts = &keyword.SearchOptions{Fuzziness: n}
	}
	hits, err := s.IDs.Search(r.Context(), query, limit, opts)
	if err != nil {
		s.logger.Error("lookup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"hits": hits})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.Store.Count(r.Context())
	if err != nil {
		s.logger.Error("status: count records failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"records":   count,
		"dimension": s.Store.Dimension(),
	}
	if s.IDs != nil {
		if n, err := s.IDs.DocCount(); err == nil {
			resp["ids_indexed"] = n
		}
	}

	st := s.Config.Storage
	dataPath := st.DatabasePath
	if st.Backend == string(storage.BackendMemory) {
		dataPath = st.SnapshotPath
	}
	resp["config"] = map[string]interface{}{
		"backend":            st.Backend,
		"driver":             st.Driver,
		"data_path":          dataPath,
		"keyword_index_path": st.KeywordIndexPath,
		"model_path":         s.Config.Embedding.ModelPath,
	}
	if diskBytes, err := storage.DiskUsageBytes(dataPath, st.KeywordIndexPath); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.Watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.Watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.Watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.Watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.Watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.Watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistWatchDirectories writes the current watch list back to the config file.
func (s *Server) persistWatchDirectories() {
	if s.ConfigPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.Config.Watch.Directories = s.Watch.Directories()
	if err := config.Save(s.ConfigPath, s.Config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
