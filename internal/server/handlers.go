package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/models"
	"github.com/hyperjump/kikoe/internal/store"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := query.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		if errors.Is(err, store.ErrModelMismatch) {
			s.respondError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

type ingestRequest struct {
	Path    string `json:"path"`
	Project string `json:"project,omitempty"`
	// Language overrides the configured transcription language hint.
	Language string `json:"language,omitempty"`
	// Diarize toggles speaker diarization; unset falls back to the config.
	Diarize *bool `json:"diarize,omitempty"`
}

// handleIngest runs one media file through the pipeline synchronously. Long
// transcriptions are expected; the route timeout is generous.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
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
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "media file not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	diarize := true
	if s.fullConfig != nil {
		diarize = s.fullConfig.Diarization.EnabledOrDefault()
	}
	if req.Diarize != nil {
		diarize = *req.Diarize
	}
	s.logger.Debug("ingest request",
		zap.String("path", abs),
		zap.String("project", req.Project),
		zap.String("language", req.Language),
		zap.Bool("diarize", diarize))
	if err := s.pipeline.ProcessFile(r.Context(), abs, req.Project, req.Language, diarize); err != nil {
		s.logger.Error("ingestion failed", zap.String("path", abs), zap.Error(err))
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "indexed"})
}

func (s *Server) handleListMedia(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	items, err := s.store.ListMediaItems(r.Context(), q.Get("project"), models.IngestStatus(q.Get("status")), limit, offset)
	if err != nil {
		s.logger.Error("list media failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"items": items, "count": len(items)})
}

// mediaDetail is a media item with its stored pipeline artifacts.
type mediaDetail struct {
	Media    *models.MediaItem          `json:"media"`
	Segments []models.TranscriptSegment `json:"segments"`
	Speakers []models.SpeakerInterval   `json:"speakers"`
	ChunkIDs []string                   `json:"chunk_ids"`
}

func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()
	item, err := s.store.GetMediaItem(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "media not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	segments, err := s.store.GetSegments(ctx, id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	intervals, err := s.store.GetIntervals(ctx, id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	chunks, err := s.store.GetChunks(ctx, id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	detail := mediaDetail{Media: item, Segments: segments, Speakers: intervals}
	for _, ch := range chunks {
		detail.ChunkIDs = append(detail.ChunkIDs, ch.ID)
	}
	s.respondJSON(w, http.StatusOK, detail)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.logger.Error("status: stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"media_total":   stats.MediaTotal,
		"media_indexed": stats.MediaIndexed,
		"media_failed":  stats.MediaFailed,
		"chunks":        stats.Chunks,
	}
	if meta, err := s.store.GetIndexMeta(ctx); err == nil && meta != nil {
		resp["index"] = map[string]interface{}{
			"model":      meta.Model,
			"dimensions": meta.Dimensions,
			"metric":     meta.Metric,
		}
	}
	if s.fullConfig != nil {
		resp["config"] = map[string]interface{}{
			"storage_driver":        s.fullConfig.Storage.Driver,
			"database_path":         s.fullConfig.Storage.DatabasePath,
			"lexical_index_path":    s.fullConfig.Storage.LexicalIndexPath,
			"transcription_backend": s.fullConfig.Transcription.Backend,
			"diarization_enabled":   s.fullConfig.Diarization.EnabledOrDefault(),
			"embedding_provider":    s.fullConfig.Embedding.Provider,
			"embedding_model":       s.fullConfig.Embedding.Model,
			"max_chunk_chars":       s.fullConfig.Search.MaxChunkChars,
			"pipeline_workers":      s.fullConfig.Pipeline.Workers,
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	// IngestExisting queues media already inside the folder; default true.
	IngestExisting *bool `json:"ingest_existing,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
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
	ingestExisting := true
	if req.IngestExisting != nil {
		ingestExisting = *req.IngestExisting
	}
	s.logger.Debug("watch add request", zap.String("path", abs), zap.Bool("ingest_existing", ingestExisting))
	if err := s.watch.AddDirectory(abs, ingestExisting); err != nil {
		s.logger.Error("watch add failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
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
	s.logger.Debug("watch remove request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistWatchDirectories writes runtime drop-folder changes back to the
// config file so they survive a restart. Best effort.
func (s *Server) persistWatchDirectories() {
	if s.configPath == "" || s.fullConfig == nil {
		return
	}
	s.fullConfigMu.Lock()
	s.fullConfig.Watch.Directories = s.watch.Directories()
	err := config.Save(s.configPath, s.fullConfig)
	s.fullConfigMu.Unlock()
	if err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
