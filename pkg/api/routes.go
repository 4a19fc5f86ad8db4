package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints.
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleSiteStats)

		// Ingestion endpoints (authenticated mining servers).
		r.Route("/ingest", func(r chi.Router) {
			r.Use(s.requireServerAuth)

			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					s.cfg.Server.RateLimit.Ingest,
				))
			}

			r.Post("/runs", s.handleCreateRun)
			r.Post("/runs/{id}/keywords", s.handleUploadBatch)
			r.Post("/runs/{id}/report", s.handleAttachReport)
		})

		// Dashboard read endpoints.
		r.Group(func(r chi.Router) {
			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					s.cfg.Server.RateLimit.Read,
				))
			}

			r.Route("/keywords", func(r chi.Router) {
				r.Get("/", s.handleListKeywords)
				r.Get("/dashboard", s.handleDashboard)
				r.Get("/trends", s.handleTrends)
				r.Post("/batch-delete", s.handleBatchDeleteKeywords)
				r.Get("/{id}", s.handleKeywordDetail)
				r.Delete("/{id}", s.handleDeleteKeyword)
				r.Post("/{id}/notes", s.handleCreateNote)
			})

			r.Route("/reports", func(r chi.Router) {
				r.Get("/", s.handleListReports)
				r.Get("/{id}", s.handleGetReport)
				r.Delete("/{id}", s.handleDeleteReport)
			})

			r.Get("/servers", s.handleListServers)

			// Admin endpoints.
			r.Route("/admin", func(r chi.Router) {
				r.Get("/credentials", s.handleListCredentials)
				r.Post("/credentials", s.handleIssueCredential)
				r.Delete("/credentials/{id}", s.handleRevokeCredential)
				r.Post("/projection/refresh", s.handleRefreshProjection)
			})
		})
	})

	return r
}

// corsMiddleware returns a CORS handler configured from the API config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the requesting origin so credentials work from any origin.
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
