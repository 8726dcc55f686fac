package settlement

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/sportsettle/internal/domain"
	"github.com/alanyoungcy/sportsettle/internal/notify"
)

// reconcile completes the report with receipts of the item's markets that
// did not reach CONFIRMED. A non-empty report is logged, counted, audited,
// archived and sent to operators. None of this can fail the item.
func (o *Orchestrator) reconcile(ctx context.Context, markets []domain.Market, report *domain.ReconciliationReport, res *Result, log *slog.Logger) {
	ids := make([]string, 0, len(markets))
	for _, m := range markets {
		ids = append(ids, m.ID)
	}

	receipts, err := call(ctx, o.cfg.StoreTimeout, func(ctx context.Context) ([]domain.Receipt, error) {
		return o.stores.Receipts.ListByMarkets(ctx, ids)
	})
	if err != nil {
		log.WarnContext(ctx, "list receipts for reconciliation", slog.String("error", err.Error()))
	}
	classifyReceipts(receipts, report)

	if report.Empty() {
		return
	}
	report.GeneratedAt = o.now().UTC()
	res.Reconciliation = report
	o.metrics.Reconciliation()

	log.WarnContext(ctx, "settlement requires reconciliation",
		slog.Int("failed_receipts", len(report.FailedReceipts)),
		slog.Int("stuck_receipts", len(report.StuckReceipts)),
		slog.Int("trade_failures", len(report.TradeFailures)),
		slog.Int("market_failures", len(report.MarketFailures)),
	)

	var path string
	if o.archive != nil {
		path, err = o.archive.Archive(ctx, *report)
		if err != nil {
			log.WarnContext(ctx, "archive reconciliation report", slog.String("error", err.Error()))
		}
	}

	o.audit(ctx, "settlement.reconciliation_required", map[string]any{
		"settlement_queue_id": report.QueueID,
		"game_id":             report.GameID,
		"failed_receipts":     len(report.FailedReceipts),
		"stuck_receipts":      len(report.StuckReceipts),
		"trade_failures":      len(report.TradeFailures),
		"market_failures":     len(report.MarketFailures),
		"archive_path":        path,
	}, log)

	title, msg := notify.ReconciliationMessage(*report, path)
	o.alert(ctx, notify.EventReconciliation, title, msg, log)
}

// classifyReceipts sorts receipts that need an operator into the report.
func classifyReceipts(receipts []domain.Receipt, report *domain.ReconciliationReport) {
	for _, r := range receipts {
		switch r.Status {
		case domain.ReceiptStatusFailed:
			report.FailedReceipts = append(report.FailedReceipts, r)
		case domain.ReceiptStatusInitiated:
			report.StuckReceipts = append(report.StuckReceipts, r)
		}
	}
}
