// Package server provides the HTTP API for kotae.
package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/pkg/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Asker answers questions.
type Asker interface {
	Ask(ctx context.Context, query string) (*models.AskResponse, error)
}

// ContentIndexer writes content items to the store and the native index.
type ContentIndexer interface {
	IndexItem(ctx context.Context, item *models.ContentItem) error
	DeleteItem(ctx context.Context, id string) error
}

// CacheAdmin exposes answer cache maintenance.
type CacheAdmin interface {
	Stats(ctx context.Context) (*models.CacheStats, error)
	Clear(ctx context.Context) (int64, error)
	EvictOlderThan(ctx context.Context, days int) (int64, error)
}

// DocCounter reports how many documents the native index holds.
type DocCounter interface {
	DocCount() (uint64, error)
}

// Deps are the components the API serves. Index may be nil.
type Deps struct {
	Answers Asker
	Indexer ContentIndexer
	Store   storage.Storage
	Index   DocCounter
	Cache   CacheAdmin
	Config  *config.Config
	Logger  *zap.Logger
}

// Server is the HTTP server for the kotae API.
type Server struct {
	answers Asker
	indexer ContentIndexer
	store   storage.Storage
	index   DocCounter
	cache   CacheAdmin
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps) *Server {
	return &Server{
		answers: deps.Answers,
		indexer: deps.Indexer,
		store:   deps.Store,
		index:   deps.Index,
		cache:   deps.Cache,
		config:  deps.Config,
		logger:  utils.OrNop(deps.Logger),
	}
}

// Handler builds the router with every route and middleware attached.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(metrics.Middleware())
	if origins := s.config.Server.CORSOrigins; len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Get("/status", s.handleStatus)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/content", s.handleIndexContent)
			r.Get("/content/{id}", s.handleGetContent)
			r.Delete("/content/{id}", s.handleDeleteContent)
			r.Get("/cache/stats", s.handleCacheStats)
			r.Delete("/cache", s.handleCacheClear)
			r.Post("/cache/evict", s.handleCacheEvict)
		})
	})
	return r
}

// requireAdmin rejects requests without the configured bearer token.
// Without a configured token the admin routes are open.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.config.Server.AdminToken
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			s.respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
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
