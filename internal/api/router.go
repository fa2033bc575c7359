package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/projects", h.ListProjects)
	r.Route("/projects/{project}", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Post("/sync", h.SyncProject)
		r.Get("/history", h.History)

		r.Route("/steps/{step}", func(r chi.Router) {
			r.Post("/sync", h.SyncStep)
			r.Post("/backup", h.Backup)
			r.Post("/repair", h.Repair)
			r.Get("/plan", h.Plan)
		})
	})

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
