package notify

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

// FailureMessage renders a failed queue item.
func FailureMessage(item domain.QueueItem, err error) (title, message string) {
	title = "Settlement failed"
	message = fmt.Sprintf("queue item %s (game %s, %s) attempt %d: %v",
		item.ID, item.GameID, item.League, item.Attempts+1, err)
	return title, message
}

// SafetyMessage renders a force-locked market.
func SafetyMessage(item domain.QueueItem, market domain.Market) (title, message string) {
	title = "Settlement safety violation"
	message = fmt.Sprintf("market %s of game %s was unlocked at settlement time and has been locked (%s)",
		market.ID, item.GameID, domain.LockReasonSettlementSafety)
	return title, message
}

// ReconciliationMessage summarises a report for operators.
func ReconciliationMessage(r domain.ReconciliationReport, archivedAt string) (title, message string) {
	title = "Settlement needs reconciliation"
	var b strings.Builder
	fmt.Fprintf(&b, "game %s outcome %s (queue item %s)\n", r.GameID, r.Outcome, r.QueueID)
	fmt.Fprintf(&b, "failed receipts: %d\n", len(r.FailedReceipts))
	fmt.Fprintf(&b, "stuck receipts: %d\n", len(r.StuckReceipts))
	fmt.Fprintf(&b, "trade failures: %d\n", len(r.TradeFailures))
	fmt.Fprintf(&b, "market failures: %d", len(r.MarketFailures))
	if archivedAt != "" {
		fmt.Fprintf(&b, "\nreport: %s", archivedAt)
	}
	return title, b.String()
}
