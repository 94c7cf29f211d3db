// Package api provides the HTTP review server: session management, the
// decision queue, KML download and the event stream.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/geoproapp/geopro-server/internal/metrics"
	"github.com/geoproapp/geopro-server/internal/ratelimit"
	"github.com/geoproapp/geopro-server/internal/sse"
)

// Version is reported in the OpenAPI document and the health response.
const Version = "1.0.0"

// Options configures the HTTP surface.
type Options struct {
	// CORSOrigins lists allowed browser origins; empty allows none.
	CORSOrigins []string
	// SessionsPerMinute caps session creation per client IP. Zero disables
	// the limit.
	SessionsPerMinute int
	SessionBurst      int
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	services   *Services
	sseHandler *sse.Handler
	sseManager *sse.Manager
	metrics    *metrics.Metrics
	router     *chi.Mux
	api        huma.API
	logger     *slog.Logger

	sessionLimiter *ratelimit.KeyedRateLimiter
}

// NewServer creates a new HTTP server with all routes configured. metrics
// may be nil, in which case /metrics is not served.
func NewServer(services *Services, sseManager *sse.Manager, m *metrics.Metrics, opts Options, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		services:   services,
		sseManager: sseManager,
		metrics:    m,
		router:     router,
		logger:     logger,

		sessionLimiter: newSessionLimiter(opts.SessionsPerMinute, time.Minute, opts.SessionBurst),
	}
	if sseManager != nil {
		s.sseHandler = sse.NewHandler(sseManager, logger)
	}

	s.setupMiddleware(opts)

	config := huma.DefaultConfig("GeoPro API", Version)
	config.Info.Description = "Review and export saved-place migration sessions."
	s.api = humachi.New(router, config)
	RegisterErrorHandler()

	s.registerRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases background resources. The server must not be used after.
func (s *Server) Close() {
	if s.sessionLimiter != nil {
		s.sessionLimiter.Stop()
	}
}

// API exposes the huma API, mainly for tests.
func (s *Server) API() huma.API {
	return s.api
}

func (s *Server) setupMiddleware(opts Options) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	if len(opts.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "Last-Event-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

func (s *Server) registerRoutes() {
	s.registerHealthRoutes()
	s.registerSessionRoutes()
	s.registerReviewRoutes()
	s.registerExportRoutes()
	s.registerCategoryRoutes()

	// Streaming and scrape endpoints bypass huma.
	if s.sseHandler != nil {
		s.router.Get("/api/v1/events", s.sseHandler.ServeHTTP)
	}
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}
}
