package http

import (
	"github.com/go-chi/chi/v5"

	"github.com/weathervane/weathervane/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)
	r.Get("/ws/events", h.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/weather", h.GetWeather)
		r.Get("/cache/stats", h.GetCacheStats)
		r.Get("/janitor/sweeps", h.ListSweeps)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminToken(h.cfg.Server.AdminToken))
			r.Post("/cache/invalidate", h.InvalidateCache)
			r.Post("/janitor/sweep", h.RunSweep)
		})
	})
}
