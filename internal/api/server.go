package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SlackHandler serves the Slack-facing endpoints
type SlackHandler interface {
	SlashCommand(command string) http.HandlerFunc
	Events(w http.ResponseWriter, r *http.Request)
}

// Check reports whether one dependency is ready
type Check func() bool

// Server is the webby HTTP front end
type Server struct {
	r        *chi.Mux
	slack    SlackHandler
	gatherer prometheus.Gatherer
	logger   *slog.Logger

	mu     sync.RWMutex
	checks map[string]Check
}

// NewServer creates the router. gatherer backs /metrics.
func NewServer(slack SlackHandler, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		r:        chi.NewRouter(),
		slack:    slack,
		gatherer: gatherer,
		logger:   logger.With("component", "http"),
		checks:   make(map[string]Check),
	}

	s.r.Use(middleware.RequestID)
	s.r.Use(middleware.RealIP)
	s.r.Use(s.requestLogger)
	s.r.Use(middleware.Recoverer)

	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.Get("/healthz", s.handleHealth)
	s.r.Get("/readyz", s.handleReady)
	s.r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Slack
	s.r.Post("/slack/commands", s.slack.SlashCommand(""))
	s.r.Post("/slack/events", s.slack.Events)

	// Per-command routes
	for _, command := range []string{"/website", "/cf", "/cloudflare", "/webby", "/help"} {
		s.r.Post(command, s.slack.SlashCommand(command))
	}
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler { return s.r }

// AddCheck registers a readiness check under name
func (s *Server) AddCheck(name string, check Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// handleReady handles GET /readyz
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ready := true
	results := make(map[string]bool, len(names))
	for _, name := range names {
		ok := s.checks[name]()
		results[name] = ok
		ready = ready && ok
	}
	s.mu.RUnlock()

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"checks":    results,
		"timestamp": time.Now().UTC(),
	})
}

// requestLogger logs each request through slog
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
