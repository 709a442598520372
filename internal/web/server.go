// Package web provides the HTTP API for the CSV escape service.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/csvescape/internal/config"
	"github.com/JonMunkholm/csvescape/internal/history"
	mw "github.com/JonMunkholm/csvescape/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP server for the CSV escape service.
type Server struct {
	cfg     *config.Config
	store   history.Store
	limiter *ProcessLimiter
	rate    *rateLimiter
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new Server instance. A nil store disables run history.
func NewServer(cfg *config.Config, store history.Store) *Server {
	if store == nil {
		store = history.NopStore{}
	}
	s := &Server{
		cfg:     cfg,
		store:   store,
		limiter: NewProcessLimiter(cfg.Limits.MaxConcurrent, cfg.Limits.MaxWaitTime),
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	// Validate has already rejected bad entries for a loaded config.
	proxies, err := s.cfg.Security.TrustedNets()
	if err != nil {
		slog.Warn("ignoring invalid trusted proxies", "error", err)
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(proxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	// Security hardening
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		s.rate = newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(s.rate.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/csv/v0", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))

		r.Post("/escape", s.handleEscape)
		r.Post("/escape/batch", s.handleBatch)
		r.Get("/profiles", s.handleProfiles)
		r.Get("/runs", s.handleRuns)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := s.cfg.Server.Addr()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown lets in-flight requests finish, then stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.limiter.WaitForDrain(ctx); err != nil {
		slog.Warn("shutdown: requests still in flight", "active", s.limiter.ActiveCount())
	}
	if s.rate != nil {
		s.rate.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME type sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// JSON only; nothing may be loaded from a response
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}
