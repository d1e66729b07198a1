// Package server provides the HTTP API for Sashikomi.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/sashikomi/internal/config"
	"github.com/hyperjump/sashikomi/internal/datasource"
	"github.com/hyperjump/sashikomi/internal/generate"
	"github.com/hyperjump/sashikomi/internal/storage"
	"github.com/hyperjump/sashikomi/internal/watcher"
)

// Server is the HTTP server for the Sashikomi API.
type Server struct {
	store     storage.Store
	objects   storage.ObjectStore
	source    datasource.Source // nil when no data source is configured
	generator *generate.Generator
	registrar *Registrar
	inbox     *watcher.Inbox // nil when watching is disabled
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies. source and inbox
// may be nil.
func NewServer(
	store storage.Store,
	objects storage.ObjectStore,
	source datasource.Source,
	generator *generate.Generator,
	registrar *Registrar,
	inbox *watcher.Inbox,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		store:     store,
		objects:   objects,
		source:    source,
		generator: generator,
		registrar: registrar,
		inbox:     inbox,
		config:    cfg,
		logger:    logger,
	}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Post("/api/v1/templates", s.handleUploadTemplate)
	r.Get("/api/v1/templates", s.handleListTemplates)
	r.Get("/api/v1/templates/{id}", s.handleGetTemplate)
	r.Delete("/api/v1/templates/{id}", s.handleDeleteTemplate)
	r.Get("/api/v1/templates/{id}/tags", s.handleGetTags)
	r.Post("/api/v1/templates/{id}/automap", s.handleAutoMap)
	r.Put("/api/v1/templates/{id}/mappings", s.handleSaveMappings)
	r.Get("/api/v1/templates/{id}/mappings", s.handleGetMappings)
	r.Get("/api/v1/fields", s.handleFields)
	r.Post("/api/v1/generate", s.handleGenerate)
	r.Get("/api/v1/generations", s.handleListGenerations)
	r.Get("/api/v1/generations/{id}", s.handleGetGeneration)
	r.Delete("/api/v1/generations/{id}", s.handleDeleteGeneration)
	r.Get("/api/v1/artifacts/{userID}/{generationID}/{filename}", s.handleDownloadArtifact)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router(),
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
