// Package api exposes the memory engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apppromo "github.com/blackms/memtier-go/internal/application/promotion"
	appres "github.com/blackms/memtier-go/internal/application/resources"
	appsearch "github.com/blackms/memtier-go/internal/application/search"
	domainsearch "github.com/blackms/memtier-go/internal/domain/search"
	"github.com/blackms/memtier-go/internal/shared"
)

// RecordIndex mirrors record writes into a vector index.
type RecordIndex interface {
	Add(ctx context.Context, record *shared.Record) error
	Remove(ctx context.Context, id string, tier shared.Tier) error
}

// Server is the HTTP API server.
type Server struct {
	search    *appsearch.Coordinator
	resources *appres.Controller
	promotion *apppromo.Service
	repo      shared.StorageRepository
	embedder  domainsearch.EmbeddingProvider
	index     RecordIndex
	router    chi.Router
	logger    *slog.Logger
	started   time.Time
}

// ServerOption configures optional server dependencies.
type ServerOption func(*Server)

// WithRecordIndex mirrors record create/delete into a vector index.
func WithRecordIndex(index RecordIndex) ServerOption {
	return func(s *Server) { s.index = index }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// NewServer wires the HTTP surface over the application services.
func NewServer(search *appsearch.Coordinator, resources *appres.Controller, promotion *apppromo.Service, repo shared.StorageRepository, embedder domainsearch.EmbeddingProvider, opts ...ServerOption) *Server {
	s := &Server{
		search:    search,
		resources: resources,
		promotion: promotion,
		repo:      repo,
		embedder:  embedder,
		logger:    slog.Default(),
		started:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/search/vector", s.handleVectorSearch)
		r.Post("/search/rerank", s.handleRerankSearch)

		r.Post("/records", s.handleCreateRecord)
		r.Get("/records/{tier}/{id}", s.handleGetRecord)
		r.Delete("/records/{tier}/{id}", s.handleDeleteRecord)

		r.Get("/resources", s.handleResources)
		r.Post("/resources/free", s.handleFreeResources)

		r.Post("/promotion/run", s.handlePromotionRun)
		r.Post("/promotion/force", s.handlePromotionForce)
		r.Get("/promotion/stats", s.handlePromotionStats)
	})

	s.router = r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)))
	})
}

// ============================================================================
// Response helpers
// ============================================================================

func (s *Server) respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Warn("response encode failed", slog.String("error", err.Error()))
		}
	}
}

// respondError maps domain error categories onto HTTP statuses.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shared.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, shared.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, shared.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, shared.ErrCircuitOpen), errors.Is(err, shared.ErrResourceExhausted):
		status = http.StatusServiceUnavailable
	}
	s.respond(w, status, map[string]string{"error": err.Error()})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return shared.Validationf("invalid json: %v", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.repo.HealthCheck(r.Context())
	if err != nil {
		s.respond(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"storage": health,
		"breaker": s.search.BreakerSnapshot().State,
		"uptime":  time.Since(s.started).Seconds(),
	})
}
