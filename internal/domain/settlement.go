package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SettledBySystem is recorded on market settlements produced by the worker.
const SettledBySystem = "system"

// MarketSettlement closes out one market. At most one exists per market.
type MarketSettlement struct {
	ID           string          `json:"id"`
	MarketID     string          `json:"market_id"`
	GameID       string          `json:"game_id"`
	Outcome      string          `json:"outcome"`
	TotalVolume  decimal.Decimal `json:"total_volume"`
	TotalPayouts decimal.Decimal `json:"total_payouts"`
	PayoutCount  int             `json:"payout_count"`
	SettledBy    string          `json:"settled_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PayoutStatus is the state of a queued disbursement.
type PayoutStatus string

const PayoutStatusQueued PayoutStatus = "queued"

// Payout is a disbursement handed to the downstream payout processor.
type Payout struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	MarketID  string          `json:"market_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    PayoutStatus    `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// TradeFailure records a single trade the engine could not settle.
type TradeFailure struct {
	TradeID  string          `json:"trade_id"`
	MarketID string          `json:"market_id"`
	UserID   string          `json:"user_id"`
	Amount   decimal.Decimal `json:"amount"`
	Stage    string          `json:"stage"`
	Reason   string          `json:"reason"`
}

// MarketFailure records a market whose settlement aborted part-way.
type MarketFailure struct {
	MarketID string `json:"market_id"`
	Reason   string `json:"reason"`
}

// ReconciliationReport lists everything an operator must resolve by hand
// after a queue item completes: receipts that did not reach CONFIRMED,
// trades that never got a receipt, and markets that aborted.
type ReconciliationReport struct {
	QueueID        string          `json:"settlement_queue_id"`
	GameID         string          `json:"game_id"`
	Outcome        string          `json:"outcome"`
	GeneratedAt    time.Time       `json:"generated_at"`
	FailedReceipts []Receipt       `json:"failed_receipts,omitempty"`
	StuckReceipts  []Receipt       `json:"stuck_receipts,omitempty"`
	TradeFailures  []TradeFailure  `json:"trade_failures,omitempty"`
	MarketFailures []MarketFailure `json:"market_failures,omitempty"`
}

// Empty reports whether the report has nothing to reconcile.
func (r ReconciliationReport) Empty() bool {
	return len(r.FailedReceipts) == 0 &&
		len(r.StuckReceipts) == 0 &&
		len(r.TradeFailures) == 0 &&
		len(r.MarketFailures) == 0
}

// ObjectKey is the blob path the report is archived under, partitioned by the
// UTC day it was generated.
func (r ReconciliationReport) ObjectKey() string {
	t := r.GeneratedAt.UTC()
	return fmt.Sprintf("reconciliation/%04d/%02d/%02d/%s.json", t.Year(), int(t.Month()), t.Day(), r.QueueID)
}
