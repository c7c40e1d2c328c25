// Package server provides the HTTP API over the transcript index.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/search"
	"github.com/hyperjump/kikoe/internal/store"
)

// Ingestor runs a single media file through the pipeline. language overrides
// the configured transcription language hint when non-empty; diarize toggles
// speaker diarization for the call. Satisfied by pipeline.Orchestrator.
type Ingestor interface {
	ProcessFile(ctx context.Context, path, project, language string, diarize bool) error
}

// WatchService manages drop folders at runtime. Satisfied by watcher.Watcher.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, ingestExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP API server.
type Server struct {
	engine   *search.Engine
	pipeline Ingestor
	store    store.Store
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server

	// watch and fullConfig are optional; watch endpoints return 501 without them.
	watch        WatchService
	configPath   string
	fullConfig   *config.Config
	fullConfigMu sync.Mutex
}

// NewServer creates a server. watch, configPath, and fullCfg may be zero when
// the watch endpoints and extended status are not needed.
func NewServer(
	engine *search.Engine,
	pipe Ingestor,
	st store.Store,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	watch WatchService,
	configPath string,
	fullCfg *config.Config,
) *Server {
	return &Server{
		engine:     engine,
		pipeline:   pipe,
		store:      st,
		config:     cfg,
		logger:     logger,
		watch:      watch,
		configPath: configPath,
		fullConfig: fullCfg,
	}
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/ingest", s.handleIngest)
	r.Get("/api/v1/media", s.handleListMedia)
	r.Get("/api/v1/media/{id}", s.handleGetMedia)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/api/v1/watch/directories", s.handleWatchDirectoriesList)
	r.Post("/api/v1/watch/directories", s.handleWatchDirectoriesAdd)
	r.Delete("/api/v1/watch/directories", s.handleWatchDirectoriesRemove)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router(),
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
