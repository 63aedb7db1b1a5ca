package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/riskline/internal/api/middleware"
	"github.com/good-yellow-bee/riskline/internal/metrics"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogger(s.log, s.config.Verbose))
	r.Use(middleware.Recoverer(s.log))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.health.Health)
	r.Get("/readyz", s.health.Ready)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Post("/{name}/run", s.runJob)
		})
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.listNotifications)
			r.Post("/{id}/ack", s.acknowledgeNotification)
			r.Post("/{id}/resolve", s.resolveNotification)
		})
	})

	return r
}
