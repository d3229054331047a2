// Package web provides the HTTP server for the intervention upload API.
package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/grovekeeper/intervention-uploader/internal/config"
	"github.com/grovekeeper/intervention-uploader/internal/core"
	ourmw "github.com/grovekeeper/intervention-uploader/internal/web/middleware"
)

// Server is the HTTP server for the intervention upload application.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(ourmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(ourmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Security.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Security hardening
	s.router.Use(securityHeaders)
	s.router.Use(ourmw.APIKeyAuth(&s.cfg.Security))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

			// Source table ingestion
			r.Post("/load", s.handleLoadTable)

			// Bulk geometry attachment
			r.Post("/geometry", s.handleAttachFolder)

			// Review
			r.Get("/records", s.handleListRecords)
			r.Get("/stats", s.handleStats)

			// Per-record operations
			r.Patch("/records/{id}", s.handleUpdateRecord)
			r.Post("/records/{id}/geometry", s.handleAttachGeometry)
			r.Delete("/records/{id}", s.handleDeleteRecord)

			// Bulk cleanup
			r.Post("/records/delete-invalid", s.handleDeleteInvalid)
			r.Post("/records/delete-missing-geometry", s.handleDeleteMissingGeometry)

			r.Post("/runs", s.handleStartRun)
			r.Post("/runs/{runID}/cancel", s.handleCancelRun)
		})

		// Progress streaming, the blocking result fetch, and the archive
		// download can outlive the request timeout; they end with the run.
		r.Get("/runs/{runID}/progress", s.handleRunProgress)
		r.Get("/runs/{runID}/result", s.handleRunResult)
		r.Get("/runs/{runID}/archive", s.handleRunArchive)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 for SSE
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
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

		// Control referrer information
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"active_runs": s.service.ActiveRuns(),
	})
}
