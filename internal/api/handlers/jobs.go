package handlers

import (
	"context"
	"net/http"
	"time"

	"backburner/internal/core"
	"backburner/internal/types"
)

// JobRunner executes one resurfacing pass.
type JobRunner interface {
	Run(ctx context.Context, now time.Time) (types.RunReport, error)
}

// JobsHandler exposes the batch job for on-demand runs, used by operators
// and the staging environment where no schedule is configured.
type JobsHandler struct {
	job JobRunner
}

// NewJobsHandler creates a JobsHandler.
func NewJobsHandler(job JobRunner) *JobsHandler {
	return &JobsHandler{job: job}
}

// RunResurfacing handles POST /v1/jobs/resurfacing. The run executes
// synchronously and the report is returned to the caller.
func (h *JobsHandler) RunResurfacing(w http.ResponseWriter, r *http.Request) {
	report, err := h.job.Run(r.Context(), time.Now().UTC())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: report})
}
