package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

// ReceiptHandler serves the reconciliation views.
type ReceiptHandler struct {
	receipts domain.ReceiptStore
	reports  domain.ReportArchive
	logger   *slog.Logger
}

// NewReceiptHandler creates a ReceiptHandler. reports may be nil when no
// archive is configured.
func NewReceiptHandler(receipts domain.ReceiptStore, reports domain.ReportArchive, logger *slog.Logger) *ReceiptHandler {
	return &ReceiptHandler{receipts: receipts, reports: reports, logger: logger}
}

// ListReceipts returns receipts newest-first.
// GET /api/settlement/receipts?status=FAILED&market_id=m1&limit=50
func (h *ReceiptHandler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.ReceiptFilter{
		Status:   domain.ReceiptStatus(strings.ToUpper(q.Get("status"))),
		MarketID: q.Get("market_id"),
		Limit:    parseLimit(r),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+string(filter.Status))
		return
	}

	receipts, err := h.receipts.List(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list receipts failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list receipts")
		return
	}
	if receipts == nil {
		receipts = []domain.Receipt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": receipts, "count": len(receipts)})
}

// ListReports returns archived reconciliation reports.
// GET /api/settlement/reports?prefix=reconciliation/2026/03/
func (h *ReceiptHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "report archive not configured")
		return
	}
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = "reconciliation/"
	}
	infos, err := h.reports.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list reports failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": infos, "count": len(infos)})
}

// GetReport streams one archived report.
// GET /api/settlement/reports/reconciliation/2026/03/14/{queue_id}.json
func (h *ReceiptHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "report archive not configured")
		return
	}
	path := r.PathValue("path")
	body, err := h.reports.Get(r.Context(), path)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get report failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to fetch report")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "handler: report stream interrupted",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
