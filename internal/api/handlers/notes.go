// Package handlers contains the HTTP handlers for the service's routes.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"backburner/internal/core"
	"backburner/internal/resurfacing"
	"backburner/internal/types"
)

// NoteService is the slice of the resurfacing engine the note routes need.
type NoteService interface {
	TopCandidates(ctx context.Context, userID string, limit int, opts resurfacing.TopOptions) ([]types.ResurfacingCandidate, error)
	EvaluateNote(ctx context.Context, noteID string) (types.EvaluatedSignal, error)
}

// NotesHandler serves the resurfacing note routes.
type NotesHandler struct {
	svc          NoteService
	defaultLimit int
}

// NewNotesHandler creates a NotesHandler. defaultLimit applies when the
// caller omits the limit query parameter.
func NewNotesHandler(svc NoteService, defaultLimit int) *NotesHandler {
	return &NotesHandler{svc: svc, defaultLimit: defaultLimit}
}

type candidatesResponse struct {
	Candidates []types.ResurfacingCandidate `json:"candidates"`
	Count      int                          `json:"count"`
}

// GetCandidates handles GET /v1/notes/resurfacing/candidates. It scores the
// calling user's backlog, persists the signals, and returns the top notes.
func (h *NotesHandler) GetCandidates(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "missing user identity", nil))
		return
	}

	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationLimitRange, "limit must be an integer", err))
			return
		}
		limit = parsed
	}

	candidates, err := h.svc.TopCandidates(r.Context(), userID, limit, resurfacing.TopOptions{EmitEvents: true})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if candidates == nil {
		candidates = []types.ResurfacingCandidate{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: candidatesResponse{Candidates: candidates, Count: len(candidates)},
	})
}

// EvaluateNote handles POST /v1/notes/{noteID}/resurfacing/evaluate. It
// rescores a single note on demand and returns the persisted signal.
func (h *NotesHandler) EvaluateNote(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")

	signal, err := h.svc.EvaluateNote(r.Context(), noteID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: signal})
}
