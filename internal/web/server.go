// Package web provides the HTTP boundary of the usage import service.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/usageimport/internal/config"
	"github.com/JonMunkholm/usageimport/internal/core"
	"github.com/JonMunkholm/usageimport/internal/web/middleware"
)

// Server is the HTTP server for the import service.
type Server struct {
	service  *core.Service
	cfg      *config.Config
	registry *prometheus.Registry
	router   *chi.Mux
	server   *http.Server
	limiters []*rateLimiter
}

// NewServer creates a Server. registry may be nil, in which case no
// Prometheus endpoint or HTTP metrics are installed.
func NewServer(service *core.Service, cfg *config.Config, registry *prometheus.Registry) *Server {
	s := &Server{
		service:  service,
		cfg:      cfg,
		registry: registry,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           s.router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	if s.registry != nil && s.cfg.Metrics.Enabled {
		s.router.Use(middleware.NewHTTPMetrics(s.registry).Handler)
	}
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Security.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "HX-Request", "HX-Target", "HX-Current-URL"},
		MaxAge:         300,
	}))
	s.router.Use(s.securityHeaders)

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute).middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Uploads are bounded by the import timeout, not the request timeout.
	upload := s.router.With()
	if s.cfg.Rate.Enabled {
		upload = s.router.With(s.newRateLimiter(s.cfg.Rate.UploadLimit, time.Minute).middleware)
	}
	upload.Post("/api/upload", s.handleUpload)

	s.router.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

		r.Get("/health", s.handleHealth)
		r.Get("/api/dataset", s.handleDataset)
		r.Get("/api/metrics/processing", s.handleProcessingMetrics)

		if s.registry != nil && s.cfg.Metrics.Enabled {
			r.Handle(s.cfg.Metrics.Path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
		}
	})
}

// Start listens on the configured address and blocks until Shutdown.
// It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	slog.Info("server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server and its background cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, rl := range s.limiters {
		rl.stop()
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if s.cfg.Security.EnableCSP {
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

// Request-level failures outside the import error taxonomy.
var (
	msgInvalidForm = core.UserMessage{
		Message: "The upload must be sent as multipart/form-data",
		Action:  "Send the file in a form field named \"file\"",
		Code:    "REQ001",
	}
	msgNoFile = core.UserMessage{
		Message: "No file was provided",
		Action:  "Attach a .csv or .xlsx file in the \"file\" form field",
		Code:    "REQ002",
	}
	msgRateLimited = core.UserMessage{
		Message: "Too many requests",
		Action:  "Wait a minute and try again",
		Code:    "REQ003",
	}
)

// writeError writes a request-level error in the same shape as respondError.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg core.UserMessage) {
	if isHTMX(r) {
		renderErrorPartial(w, r, msg, status)
		return
	}
	respondErrorJSON(w, msg, status)
}
