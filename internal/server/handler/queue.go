package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

const statsCacheKey = "queue:stats"

// DepthGauge receives per-status queue counts whenever stats are refreshed.
type DepthGauge interface {
	SetQueueDepth(counts map[string]int64)
}

// QueueHandler serves the settlement queue endpoints.
type QueueHandler struct {
	queue    domain.QueueStore
	cache    domain.Cache
	statsTTL time.Duration
	gauge    DepthGauge
	logger   *slog.Logger
}

// NewQueueHandler creates a QueueHandler. cache and gauge may be nil.
func NewQueueHandler(queue domain.QueueStore, cache domain.Cache, statsTTL time.Duration, gauge DepthGauge, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{
		queue:    queue,
		cache:    cache,
		statsTTL: statsTTL,
		gauge:    gauge,
		logger:   logger,
	}
}

type listQueueResponse struct {
	Items []domain.QueueItem `json:"items"`
	Count int                `json:"count"`
	Limit int                `json:"limit"`
}

// ListQueue returns queue items newest-first.
// GET /api/settlement/queue?status=FAILED&league=nba&limit=50
func (h *QueueHandler) ListQueue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.QueueFilter{
		Status: domain.QueueStatus(strings.ToUpper(q.Get("status"))),
		League: q.Get("league"),
		Limit:  parseLimit(r),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+string(filter.Status))
		return
	}

	items, err := h.queue.List(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list queue failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list queue")
		return
	}
	if items == nil {
		items = []domain.QueueItem{}
	}
	writeJSON(w, http.StatusOK, listQueueResponse{Items: items, Count: len(items), Limit: filter.Limit})
}

// QueueStats returns item counts per status, served from cache when fresh.
// GET /api/settlement/queue/stats
func (h *QueueHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if stats, ok := h.cachedStats(ctx); ok {
		w.Header().Set("X-Cache", "HIT")
		writeJSON(w, http.StatusOK, stats)
		return
	}

	stats, err := h.queue.Stats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "handler: queue stats failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load queue stats")
		return
	}
	if h.gauge != nil {
		h.gauge.SetQueueDepth(map[string]int64{
			string(domain.QueueStatusQueued):     stats.Queued,
			string(domain.QueueStatusProcessing): stats.Processing,
			string(domain.QueueStatusDone):       stats.Done,
			string(domain.QueueStatusFailed):     stats.Failed,
			string(domain.QueueStatusSkipped):    stats.Skipped,
		})
	}
	h.storeStats(ctx, stats)
	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, stats)
}

func (h *QueueHandler) cachedStats(ctx context.Context) (domain.QueueStats, bool) {
	var stats domain.QueueStats
	if h.cache == nil || h.statsTTL <= 0 {
		return stats, false
	}
	raw, err := h.cache.Get(ctx, statsCacheKey)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(ctx, "handler: stats cache read failed", slog.String("error", err.Error()))
		}
		return stats, false
	}
	if err := json.Unmarshal(raw, &stats); err != nil {
		return stats, false
	}
	return stats, true
}

func (h *QueueHandler) storeStats(ctx context.Context, stats domain.QueueStats) {
	if h.cache == nil || h.statsTTL <= 0 {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := h.cache.Set(ctx, statsCacheKey, raw, h.statsTTL); err != nil {
		h.logger.WarnContext(ctx, "handler: stats cache write failed", slog.String("error", err.Error()))
	}
}

// Enqueue adds a settlement item for a finished game. A game that already has
// an active item yields 409.
// POST /api/settlement/queue
func (h *QueueHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req domain.NewQueueItem
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.GameID = strings.TrimSpace(req.GameID)
	req.League = strings.ToLower(strings.TrimSpace(req.League))
	if req.GameID == "" || req.League == "" {
		writeError(w, http.StatusBadRequest, "game_id and league are required")
		return
	}
	if err := domain.ValidateOutcome(req.Outcome); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Outcome != nil {
		o := strings.ToUpper(strings.TrimSpace(*req.Outcome))
		req.Outcome = &o
	}

	item, err := h.queue.Enqueue(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "game already has an active settlement item")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: enqueue failed",
			slog.String("game_id", req.GameID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to enqueue settlement")
		return
	}

	if h.cache != nil {
		_ = h.cache.Delete(r.Context(), statsCacheKey)
	}
	h.logger.InfoContext(r.Context(), "handler: settlement enqueued",
		slog.String("queue_id", item.ID),
		slog.String("game_id", item.GameID),
	)
	writeJSON(w, http.StatusCreated, item)
}
