package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sundayezeilo/linkstat/internal/analytics"
	"github.com/sundayezeilo/linkstat/internal/config"
	"github.com/sundayezeilo/linkstat/internal/httpx"
	"github.com/sundayezeilo/linkstat/internal/metrics"
	"github.com/sundayezeilo/linkstat/internal/shortener"
)

// Handlers groups the HTTP handlers the server routes to.
type Handlers struct {
	Links   *shortener.Handler
	Stats   *analytics.Handler
	// Metrics is optional; nil disables both the endpoint and the middleware.
	Metrics *metrics.Metrics
}

// Server represents the HTTP server with all dependencies.
type Server struct {
	config   *config.Config
	logger   *slog.Logger
	handlers Handlers
	server   *http.Server
}

// New creates a new Server instance.
func New(cfg *config.Config, logger *slog.Logger, handlers Handlers) *Server {
	return &Server{
		config:   cfg,
		logger:   logger,
		handlers: handlers,
	}
}

// Routes returns the fully wrapped HTTP handler.
func (s *Server) Routes() http.Handler {
	return s.applyMiddleware(s.setupRoutes())
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.Routes(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting http server",
			"addr", s.server.Addr,
			"env", s.config.App.Environment,
		)
		serverErrors <- s.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(shutdown)

	var reason string
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		reason = sig.String()

	case <-ctx.Done():
		reason = ctx.Err().Error()
	}

	s.logger.Info("shutdown requested", "reason", reason)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	s.logger.Info("server stopped gracefully")
	return nil
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /x/health", s.healthCheckHandler)
	if s.handlers.Metrics != nil {
		mux.Handle("GET "+s.config.Metrics.Path, s.handlers.Metrics.Handler())
	}

	mux.HandleFunc("POST /api/links", s.handlers.Links.CreateLink)
	mux.HandleFunc("GET /api/links", s.handlers.Links.ListLinks)
	mux.HandleFunc("GET /api/links/{code}", s.handlers.Links.GetLink)

	mux.HandleFunc("GET /api/stats", s.handlers.Stats.Stats)
	mux.HandleFunc("GET /api/stats/daily", s.handlers.Stats.Daily)
	mux.HandleFunc("GET /api/stats/top", s.handlers.Stats.Top)
	mux.HandleFunc("GET /api/dashboard", s.handlers.Stats.Dashboard)

	mux.HandleFunc("GET /{code}", s.handlers.Links.ResolveLink)

	return mux
}

// applyMiddleware wraps the handler with middleware in the correct order.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	chain := []httpx.Middleware{
		httpx.Recovery(s.logger), // Outermost: catch panics
		httpx.RequestID,
		httpx.Logger(s.logger),
	}
	if s.handlers.Metrics != nil {
		// After RequestID, which replaces the request.
		chain = append(chain, s.handlers.Metrics.Middleware)
	}
	chain = append(chain, httpx.CORS(nil)) // allow all origins

	return httpx.Chain(chain...)(handler)
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.config.App.Name,
		"version": s.config.App.Version,
	})
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("shutdown timeout exceeded, forcing close")
			return s.server.Close()
		}
		return err
	}

	return nil
}
