package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// MountRoutes registers the REST surface. ws and mcp may be nil; they are
// long-lived streams and stay outside h.RequestTimeout.
func MountRoutes(r chi.Router, h *Handlers, ws http.HandlerFunc, mcp http.Handler) {
	r.Group(func(r chi.Router) {
		if h.RequestTimeout > 0 {
			r.Use(chimw.Timeout(h.RequestTimeout))
		}

		r.Get("/health", h.Health)
		r.Get("/providers", h.ListProviders)

		r.Route("/council", func(r chi.Router) {
			r.Post("/plan", h.PlanFeature)
			r.Post("/verdict", h.ReviewVerdict)
			r.Post("/review", h.Review)
			r.Post("/security", h.SecurityScan)
			r.Post("/performance", h.PerformanceScan)
			r.Post("/qa/generate-tests", h.GenerateTests)
			r.Post("/fix", h.ApplyFixes)
		})

		r.Route("/code", func(r chi.Router) {
			r.Post("/implement", h.Implement)
			r.Get("/sessions", h.ListSessions)
			r.Get("/status/{id}", h.SessionStatus)
			r.Get("/status/{id}/features", h.SessionFeatures)
		})
	})

	if ws != nil {
		r.Get("/ws", ws)
	}
	if mcp != nil {
		r.Handle("/mcp", mcp)
	}
}
