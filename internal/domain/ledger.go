package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EntryType classifies a ledger movement.
type EntryType string

const (
	EntryTypeTradeLock    EntryType = "trade_lock"
	EntryTypeTradeRelease EntryType = "trade_release"
	EntryTypePayout       EntryType = "payout"
)

// Direction is the accounting side of a ledger entry.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// LedgerMeta is the JSON meta blob attached to a ledger entry.
type LedgerMeta struct {
	Side          string `json:"side,omitempty"`
	Position      string `json:"position,omitempty"`
	OriginalTrade string `json:"original_trade,omitempty"`
	ReceiptID     string `json:"receipt_id,omitempty"`
	PayoutID      string `json:"payout_id,omitempty"`
	QueueID       string `json:"settlement_queue_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// LedgerEntry is one append-only balance movement.
type LedgerEntry struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	MarketID    string          `json:"market_id"`
	EntryType   EntryType       `json:"entry_type"`
	Direction   Direction       `json:"direction"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	ReferenceID string          `json:"reference_id"`
	Meta        LedgerMeta      `json:"meta"`
	CreatedAt   time.Time       `json:"created_at"`
}

// PositionSide returns the side a trade_lock entry was placed on. Older rows
// record it under "position" rather than "side".
func (e LedgerEntry) PositionSide() string {
	if s := strings.TrimSpace(e.Meta.Side); s != "" {
		return s
	}
	return strings.TrimSpace(e.Meta.Position)
}
