// Package server provides the HTTP API for kbserve.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/gowows/kbserve/internal/answercache"
	"github.com/gowows/kbserve/internal/catalog"
	"github.com/gowows/kbserve/internal/config"
	"github.com/gowows/kbserve/internal/extract"
	"github.com/gowows/kbserve/internal/feedback"
	"github.com/gowows/kbserve/internal/indexstore"
	"github.com/gowows/kbserve/internal/resolver"
	"github.com/gowows/kbserve/internal/storage"
)

// Server is the HTTP server for the kbserve API.
type Server struct {
	resolver  *resolver.Resolver
	catalog   *catalog.Catalog
	cache     answercache.Cache
	chunks    storage.ChunkStore
	indexes   *indexstore.Store
	extractor *extract.Extractor
	feedback  *feedback.Store
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server
	// fetcher retrieves web pages for embedding; swapped out in tests.
	fetcher *http.Client
}

// NewServer creates a server with the given dependencies.
func NewServer(
	res *resolver.Resolver,
	cat *catalog.Catalog,
	cache answercache.Cache,
	chunks storage.ChunkStore,
	indexes *indexstore.Store,
	extractor *extract.Extractor,
	fb *feedback.Store,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		resolver:  res,
		catalog:   cat,
		cache:     cache,
		chunks:    chunks,
		indexes:   indexes,
		extractor: extractor,
		feedback:  fb,
		config:    cfg,
		logger:    logger,
		fetcher:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/kb/ask", s.handleAsk)
	r.Get("/api/v1/kb/folders", s.handleFolders)
	r.Get("/api/v1/kb/folders/{folder}/{subfolder}", s.handleSubfolder)
	r.Post("/api/v1/kb/upload", s.handleUpload)
	r.Get("/api/v1/kb/questions", s.handleQuestions)
	r.Get("/api/v1/kb/questions/export", s.handleQuestionsExport)
	r.Get("/api/v1/kb/read", s.handleRead)
	r.Post("/api/v1/web/embed", s.handleWebEmbed)
	r.Post("/api/v1/web/ask", s.handleWebAsk)
	r.Post("/api/v1/feedback", s.handleFeedback)
	r.Get("/api/v1/feedback/stats", s.handleFeedbackStats)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
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
