// Package httpserver provides the HTTP REST API server for the research portal service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/helixir/research-portal-service/internal/auth"
	"github.com/helixir/research-portal-service/internal/database"
	"github.com/helixir/research-portal-service/internal/observability"
	"github.com/helixir/research-portal-service/internal/service"
)

// HealthChecker reports database health. *database.DB implements it.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	service    *service.ResearchService
	verifier   *auth.Verifier
	health     HealthChecker
	limiter    *clientLimiter
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// TrackRPS and TrackBurst bound view and download tracking per client IP.
	TrackRPS   float64
	TrackBurst int
	MaxClients int
	ClientTTL  time.Duration
}

// NewServer creates a new HTTP server with all dependencies.
// A nil health checker reports the in-memory store as always healthy.
func NewServer(
	cfg Config,
	svc *service.ResearchService,
	verifier *auth.Verifier,
	health HealthChecker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		service:  svc,
		verifier: verifier,
		health:   health,
		limiter:  newClientLimiter(cfg.TrackRPS, cfg.TrackBurst, cfg.MaxClients, cfg.ClientTTL),
		metrics:  metrics,
		logger:   logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(jsonContentTypeMiddleware)
	r.Use(s.metricsMiddleware)

	// Health endpoints (no auth)
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		// Public browsing and tracking
		r.Get("/published", s.listPublished)
		r.Get("/categories", s.listCategories)
		r.Get("/faculty", s.listFacultyMembers)
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)
			r.Post("/research/{paperID}/view", s.trackView)
			r.Post("/research/{paperID}/download", s.trackDownload)
		})

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/research", s.submitResearch)
			r.Get("/research", s.listResearch)
			r.Get("/research/mine", s.listMyResearch)
			r.Get("/research/stats", s.researchStats)
			r.Get("/research/{paperID}", s.getResearch)
			r.Post("/research/{paperID}/approve", s.approveResearch)
			r.Post("/research/{paperID}/reject", s.rejectResearch)
			r.Post("/research/{paperID}/request-revision", s.requestRevision)
			r.Post("/research/{paperID}/resubmit", s.resubmitResearch)
		})
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) databaseHealth(ctx context.Context) database.HealthStatus {
	if s.health == nil {
		return database.HealthStatus{Status: database.StatusHealthy}
	}
	return s.health.Health(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.databaseHealth(r.Context())
	if health.Healthy() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   database.StatusUnhealthy,
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler returns readiness status including reference data availability.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.databaseHealth(r.Context())
	if !health.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	if _, err := s.service.Categories(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": database.StatusHealthy,
			"error":    "reference data unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": database.StatusHealthy,
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort log; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// writeErrorCode writes a JSON error response with a machine-readable code.
func writeErrorCode(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
		"code":  code,
	})
}
