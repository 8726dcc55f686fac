package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptType identifies which money movement a receipt guards.
type ReceiptType string

const (
	ReceiptTypePayout ReceiptType = "PAYOUT"
	ReceiptTypeRefund ReceiptType = "REFUND"
	ReceiptTypeFee    ReceiptType = "FEE"
)

// ReceiptStatus is the lifecycle state of a settlement receipt.
type ReceiptStatus string

const (
	ReceiptStatusInitiated ReceiptStatus = "INITIATED"
	ReceiptStatusConfirmed ReceiptStatus = "CONFIRMED"
	ReceiptStatusFailed    ReceiptStatus = "FAILED"
)

// Valid reports whether s is one of the known receipt statuses.
func (s ReceiptStatus) Valid() bool {
	switch s {
	case ReceiptStatusInitiated, ReceiptStatusConfirmed, ReceiptStatusFailed:
		return true
	}
	return false
}

// Receipt is the idempotency record for one (market, user, type) money
// movement. Receipts are never deleted.
type Receipt struct {
	ID            string          `json:"id"`
	QueueID       string          `json:"settlement_queue_id"`
	MarketID      string          `json:"market_id"`
	GameID        string          `json:"game_id"`
	UserID        string          `json:"user_id"`
	Type          ReceiptType     `json:"receipt_type"`
	Status        ReceiptStatus   `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PayoutID      *string         `json:"payout_id,omitempty"`
	LedgerEntryID *string         `json:"ledger_entry_id,omitempty"`
	TxHash        *string         `json:"tx_hash,omitempty"`
	InitiatedAt   time.Time       `json:"initiated_at"`
	ConfirmedAt   *time.Time      `json:"confirmed_at,omitempty"`
	FailedAt      *time.Time      `json:"failed_at,omitempty"`
	FailureReason *string         `json:"failure_reason,omitempty"`
}

// ReceiptConfirmation carries the optional references merged into a receipt
// when it is confirmed.
type ReceiptConfirmation struct {
	LedgerEntryID *string
	PayoutID      *string
	TxHash        *string
}

// ReceiptFilter narrows receipt listings. Zero values mean "no filter".
type ReceiptFilter struct {
	Status   ReceiptStatus
	MarketID string
	Limit    int
}
