// Package http provides the read-only inspection server for the served
// GeoPackages.
package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/jobrunner/gpkgkit/internal/config"
	"github.com/jobrunner/gpkgkit/internal/ports/input"
)

// Metrics is the optional metrics exposition mounted on the router.
type Metrics interface {
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
}

// Server wraps the HTTP server with application handlers.
type Server struct {
	server  *http.Server
	router  *mux.Router
	browser input.PackageBrowser
	health  input.HealthChecker
	sync    input.SyncTrigger
	logger  *slog.Logger
	config  config.ServerConfig
}

// NewServer creates a new HTTP server. sync may be nil when no object
// storage is configured; the sync endpoint is then not registered.
func NewServer(
	cfg config.ServerConfig,
	browser input.PackageBrowser,
	health input.HealthChecker,
	sync input.SyncTrigger,
	logger *slog.Logger,
) *Server {
	s := &Server{
		browser: browser,
		health:  health,
		sync:    sync,
		logger:  logger,
		config:  cfg,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Address(),
		Handler:           s.router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	if s.config.CORS.Enabled() {
		r.Use(s.corsMiddleware)
	}

	// Health endpoints
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReadiness).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/packages", s.handleListPackages).Methods(http.MethodGet)
	api.HandleFunc("/packages/{packageId}", s.handleGetPackage).Methods(http.MethodGet)
	api.HandleFunc("/packages/{packageId}/layers", s.handleGetLayers).Methods(http.MethodGet)
	api.HandleFunc("/packages/{packageId}/layers/{layer}", s.handleGetLayer).Methods(http.MethodGet)
	api.HandleFunc("/packages/{packageId}/layers/{layer}/schema", s.handleDescribeLayer).Methods(http.MethodGet)
	api.HandleFunc("/packages/{packageId}/layers/{layer}/records", s.handleRecords).Methods(http.MethodGet)

	if s.sync != nil {
		api.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
	}

	r.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)
	r.HandleFunc("/openapi.yaml", s.handleOpenAPIYAML).Methods(http.MethodGet)

	return r
}

// MountMetrics exposes m under path and records every request through its
// middleware.
func (s *Server) MountMetrics(path string, m Metrics) {
	s.router.Use(m.Middleware)
	s.router.Handle(path, m.Handler()).Methods(http.MethodGet)
}

// Router returns the mux router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.config.Address())
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs each request once it is served. Health probes
// are logged at debug level.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		level := slog.LevelInfo
		if strings.HasPrefix(r.URL.Path, "/health") {
			level = slog.LevelDebug
		}
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		}
		if id := mux.Vars(r)["packageId"]; id != "" {
			attrs = append(attrs, "package", id)
		}
		s.logger.Log(r.Context(), level, "request", attrs...)
	})
}

// recoveryMiddleware turns a panicking handler into a JSON 500 response.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "error", rec, "path", r.URL.Path)
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
