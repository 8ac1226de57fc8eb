package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/certmint/certmint/pkg/health"
	"github.com/certmint/certmint/pkg/log"
	"github.com/certmint/certmint/pkg/metrics"
	"github.com/certmint/certmint/pkg/templates"
)

// Server is the operational HTTP endpoint of the daemon: liveness,
// readiness, Prometheus metrics and template cache statistics. It never
// serves domain traffic; batches only enter through the bus.
type Server struct {
	health  *health.Health
	cache   *templates.Cache
	version string
	logger  zerolog.Logger
	mux     *http.ServeMux
	server  *http.Server
}

// NewServer creates the ops server. cache may be nil in tests.
func NewServer(h *health.Health, cache *templates.Cache, version string) *Server {
	mux := http.NewServeMux()
	s := &Server{
		health:  h,
		cache:   cache,
		version: version,
		logger:  log.WithComponent("api"),
		mux:     mux,
	}

	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/ready", s.readyHandler)
	mux.HandleFunc("/stats/cache", s.cacheStatsHandler)
	mux.Handle("/metrics", metrics.Handler())

	return s
}

// Start serves on addr in the background
func (s *Server) Start(addr string) {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info().Str("addr", addr).Msg("Ops server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Ops server failed")
		}
	}()
}

// Stop shuts the server down, letting in-flight requests finish
func (s *Server) Stop(ctx context.Context) {
	if s.server == nil {
		return
	}
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Ops server shutdown failed")
	}
}

// GetHandler returns the HTTP handler for embedding in other servers
func (s *Server) GetHandler() http.Handler {
	return s.mux
}

// HealthResponse represents the liveness check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// healthHandler implements /health. Liveness only: a process that can
// answer is alive, whatever its dependencies are doing.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   s.version,
	})
}

// readyHandler implements /ready: 200 only when every dependency check
// passes, 503 otherwise.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for name, result := range report.Checks {
		checks[name] = result.Message
	}

	status := "ready"
	statusCode := http.StatusOK
	if !report.Healthy {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadyResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}

// cacheStatsHandler implements /stats/cache with a snapshot of the
// template cache population and traffic
func (s *Server) cacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cache == nil {
		http.Error(w, "Cache not configured", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, s.cache.Stats())
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
