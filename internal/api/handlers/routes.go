package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"backburner/internal/core"
)

// RouterDeps carries everything the router mounts.
type RouterDeps struct {
	Notes  *NotesHandler
	Jobs   *JobsHandler
	Health *HealthHandler
	Logger *slog.Logger
}

// NewRouter builds the service's route tree with the shared middleware
// chain. Ordering matters: the recoverer is outermost so panics anywhere in
// the chain produce a clean 500, and identity resolution runs before any
// handler that reads the calling user.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(core.Recoverer(deps.Logger))
	r.Use(core.RequestID)
	r.Use(core.RequestLogger(deps.Logger))
	r.Use(core.Identity)

	r.Get("/healthz", deps.Health.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/notes", func(r chi.Router) {
			r.Get("/resurfacing/candidates", deps.Notes.GetCandidates)
			r.Post("/{noteID}/resurfacing/evaluate", deps.Notes.EvaluateNote)
		})
		r.Post("/jobs/resurfacing", deps.Jobs.RunResurfacing)
	})

	return r
}
