package handlers

import (
	"context"
	"net/http"
	"time"

	"backburner/internal/core"
)

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Health handles GET /healthz. A failed database ping degrades the report
// and returns 503 so load balancers rotate the instance out.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Database: "ok"}
	status := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}

	core.JSON(w, r, status, resp)
}
