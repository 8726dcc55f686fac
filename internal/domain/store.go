package domain

import (
	"context"
	"time"
)

// QueueStore persists settlement work items.
type QueueStore interface {
	// Enqueue inserts a QUEUED item for a game. It returns ErrAlreadyExists
	// when the game already has an item that is not DONE or SKIPPED.
	Enqueue(ctx context.Context, item NewQueueItem) (QueueItem, error)
	// List returns items newest-first.
	List(ctx context.Context, filter QueueFilter) ([]QueueItem, error)
	Stats(ctx context.Context) (QueueStats, error)
	// ClaimNext atomically moves the oldest eligible QUEUED item to
	// PROCESSING under workerID. It returns (nil, nil) when nothing is
	// eligible.
	ClaimNext(ctx context.Context, workerID string) (*QueueItem, error)
	MarkDone(ctx context.Context, id string) error
	// MarkFailed increments attempts and schedules the next attempt using
	// RetryBackoff.
	MarkFailed(ctx context.Context, id string, reason string) error
	// ReclaimStale returns PROCESSING items locked before cutoff to QUEUED.
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)
	// RequeueDue moves FAILED items whose next attempt is due back to
	// QUEUED. Items that reached maxAttempts (when > 0) become SKIPPED.
	RequeueDue(ctx context.Context, maxAttempts int) (requeued int64, skipped int64, err error)
}

// GameStore reads and stamps sports_games rows.
type GameStore interface {
	GetByID(ctx context.Context, id string) (Game, error)
	// MarkSettled sets settled_at if it is not already set.
	MarkSettled(ctx context.Context, id string, at time.Time) error
}

// MarketStore reads and transitions markets.
type MarketStore interface {
	ListByGame(ctx context.Context, gameID string) ([]Market, error)
	ListByExternalGame(ctx context.Context, externalGameID, league string) ([]Market, error)
	Lock(ctx context.Context, id string, reason string, at time.Time) error
	// Resolve sets market_status, game_status=final and final_outcome.
	Resolve(ctx context.Context, id string, status MarketStatus, outcome string) error
}

// LedgerStore reads and appends ledger entries.
type LedgerStore interface {
	ListByMarket(ctx context.Context, marketID string, entryType EntryType) ([]LedgerEntry, error)
	Insert(ctx context.Context, entry LedgerEntry) (LedgerEntry, error)
}

// ReceiptStore is the idempotency ledger keyed on (market, user, type).
type ReceiptStore interface {
	Exists(ctx context.Context, marketID, userID string, receiptType ReceiptType) (bool, error)
	// Create inserts an INITIATED receipt. It returns (nil, nil) when a
	// receipt for the same (market, user, type) already exists.
	Create(ctx context.Context, r Receipt) (*Receipt, error)
	Confirm(ctx context.Context, id string, c ReceiptConfirmation) error
	Fail(ctx context.Context, id string, reason string) error
	ListByMarkets(ctx context.Context, marketIDs []string) ([]Receipt, error)
	List(ctx context.Context, filter ReceiptFilter) ([]Receipt, error)
}

// SettlementStore persists market_settlements rows.
type SettlementStore interface {
	CountByGame(ctx context.Context, gameID string) (int, error)
	ExistsForMarket(ctx context.Context, marketID string) (bool, error)
	// Create returns ErrAlreadyExists if the market is already settled.
	Create(ctx context.Context, s MarketSettlement) error
}

// PayoutStore persists queued disbursements.
type PayoutStore interface {
	Create(ctx context.Context, p Payout) (Payout, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditFilter narrows an audit log listing. Zero fields match everything.
type AuditFilter struct {
	// EventPrefix matches events by prefix, e.g. "settlement.".
	EventPrefix string
	// QueueID matches the settlement_queue_id recorded in the detail.
	QueueID string
	Since   *time.Time
	Until   *time.Time
	Limit   int
	Offset  int
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	// List returns entries newest-first.
	List(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}
