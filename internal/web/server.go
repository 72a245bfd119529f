package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kozaktomas/sketch-match/internal/config"
	"github.com/kozaktomas/sketch-match/internal/database"
	"github.com/kozaktomas/sketch-match/internal/logging"
	"github.com/kozaktomas/sketch-match/internal/metrics"
	"github.com/kozaktomas/sketch-match/internal/retrieval"
	"github.com/kozaktomas/sketch-match/internal/web/handlers"
	"github.com/kozaktomas/sketch-match/internal/web/middleware"
)

// Options holds listener and session settings
type Options struct {
	Port           int
	Host           string
	SessionSecret  string
	AllowedOrigins []string
}

// Dependencies are the collaborators the handlers call
type Dependencies struct {
	Similarity  retrieval.SimilaritySearcher
	Generator   handlers.Generator
	Runner      retrieval.Runner
	SessionRepo database.SessionRepository // nil keeps sessions in memory only
	Notifier    handlers.ResetNotifier     // nil logs reset links
	Logger      *zap.Logger
}

// Server represents the web server
type Server struct {
	config         *config.Config
	router         *chi.Mux
	httpServer     *http.Server
	trackers       *retrieval.Registry
	sessionManager *middleware.SessionManager
	logger         *zap.Logger
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, opts Options, deps Dependencies) *Server {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sessionManager := middleware.NewSessionManager(opts.SessionSecret, deps.SessionRepo)

	s := &Server{
		config:         cfg,
		router:         r,
		trackers:       retrieval.NewRegistry(deps.Runner),
		sessionManager: sessionManager,
		logger:         logger,
	}
	// A tracker lives only as long as its session.
	sessionManager.OnRemove(s.trackers.Remove)

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware())
	r.Use(chiMiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CORS(cfg.Auth.ClientURL, opts.AllowedOrigins))

	s.setupRoutes(deps)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long timeout for SSE and uploads
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting web server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")

	s.sessionManager.Stop()

	err := s.httpServer.Shutdown(ctx)
	s.trackers.Shutdown()
	if err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
