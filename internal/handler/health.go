package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/tikuhub/qbank/internal/model"
)

// Pinger is satisfied by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// JobCounter reports queue depth per status.
type JobCounter interface {
	CountByStatus(ctx context.Context) (map[model.JobStatus]int, error)
}

type HealthHandler struct {
	db   Pinger
	jobs JobCounter
}

func NewHealthHandler(db Pinger, jobs JobCounter) *HealthHandler {
	return &HealthHandler{db: db, jobs: jobs}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	err := h.db.PingContext(ctx)
	if err != nil {
		slog.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
		})
		return
	}

	counts, err := h.jobs.CountByStatus(ctx)
	if err != nil {
		slog.Warn("failed to count jobs", "error", err)
		counts = map[model.JobStatus]int{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"jobs":   counts,
	})
}
