package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/sportsettle/internal/settlement"
)

// BatchRunner processes queued settlements.
type BatchRunner interface {
	ProcessAll(ctx context.Context, maxItems int) settlement.BatchResult
}

// QueueSweeper reclaims stale locks and requeues due retries.
type QueueSweeper interface {
	Sweep(ctx context.Context) (settlement.SweepResult, error)
}

// RunHandler triggers settlement work on demand.
type RunHandler struct {
	driver   BatchRunner
	sweeper  QueueSweeper
	maxItems int
	logger   *slog.Logger
}

// NewRunHandler creates a RunHandler. maxItems is the default batch size.
func NewRunHandler(driver BatchRunner, sweeper QueueSweeper, maxItems int, logger *slog.Logger) *RunHandler {
	return &RunHandler{driver: driver, sweeper: sweeper, maxItems: maxItems, logger: logger}
}

type processRequest struct {
	MaxItems int `json:"max_items"`
}

// Process runs one batch synchronously and returns its per-item results.
// POST /api/settlement/process {"max_items": 10}
func (h *RunHandler) Process(w http.ResponseWriter, r *http.Request) {
	req := processRequest{MaxItems: h.maxItems}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MaxItems < 0 {
		writeError(w, http.StatusBadRequest, "max_items must be >= 0")
		return
	}

	h.logger.InfoContext(r.Context(), "handler: manual settlement run", slog.Int("max_items", req.MaxItems))
	writeJSON(w, http.StatusOK, h.driver.ProcessAll(r.Context(), req.MaxItems))
}

// Sweep runs the queue sweeper once.
// POST /api/settlement/sweep
func (h *RunHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: sweep failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	status := http.StatusOK
	if res.LockHeld {
		status = http.StatusConflict
	}
	writeJSON(w, status, res)
}
