package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/stowbox/stowbox/internal/gc"
	"github.com/stowbox/stowbox/internal/handler/dto"
)

// SweepRunner runs one sweeper pass on demand.
type SweepRunner interface {
	RunNow(ctx context.Context) (*gc.Stats, error)
}

// GCHandler exposes the orphan sweeper for manual runs.
type GCHandler struct {
	sweeper SweepRunner
	logger  *slog.Logger
}

// NewGCHandler creates a new GCHandler.
func NewGCHandler(sweeper SweepRunner, logger *slog.Logger) *GCHandler {
	return &GCHandler{sweeper: sweeper, logger: logger}
}

// Run handles POST /internal/gc.
func (h *GCHandler) Run(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sweeper.RunNow(r.Context())
	if err != nil {
		if errors.Is(err, gc.ErrRunInProgress) {
			writeError(w, http.StatusConflict, "SWEEP_IN_PROGRESS", "a sweep is already running")
			return
		}
		h.logger.ErrorContext(r.Context(), "manual sweep failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "SWEEP_FAILED", "sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, dto.ToSweepResponse(stats))
}
