// Package memory implements the settlement store interfaces in process
// memory. Unique constraints of the SQL schema are enforced so the
// orchestrator's idempotency paths behave as they do against PostgreSQL.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

type receiptKey struct {
	marketID string
	userID   string
	rtype    domain.ReceiptType
}

// DB is the shared state behind every memory store. One mutex guards all
// tables, which makes every store call atomic.
type DB struct {
	mu  sync.Mutex
	now func() time.Time

	queue       map[string]*domain.QueueItem
	queueOrder  []string
	games       map[string]*domain.Game
	markets     map[string]*domain.Market
	marketOrder []string
	ledger      []domain.LedgerEntry
	ledgerRefs  map[string]struct{}
	receipts    map[string]*domain.Receipt
	receiptKeys map[receiptKey]string
	receiptSeq  []string
	settlements map[string]domain.MarketSettlement
	payouts     []domain.Payout
	audit       []domain.AuditEntry
}

// Option configures a DB.
type Option func(*DB)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// NewDB returns an empty database.
func NewDB(opts ...Option) *DB {
	db := &DB{
		now:         time.Now,
		queue:       make(map[string]*domain.QueueItem),
		games:       make(map[string]*domain.Game),
		markets:     make(map[string]*domain.Market),
		ledgerRefs:  make(map[string]struct{}),
		receipts:    make(map[string]*domain.Receipt),
		receiptKeys: make(map[receiptKey]string),
		settlements: make(map[string]domain.MarketSettlement),
	}
	for _, o := range opts {
		o(db)
	}
	return db
}

func newID() string { return uuid.NewString() }

// Stores bundles every store view over one DB.
type Stores struct {
	Queue       *QueueStore
	Games       *GameStore
	Markets     *MarketStore
	Ledger      *LedgerStore
	Receipts    *ReceiptStore
	Settlements *SettlementStore
	Payouts     *PayoutStore
	Audit       *AuditStore
}

// Stores returns store views sharing db.
func (db *DB) Stores() Stores {
	return Stores{
		Queue:       &QueueStore{db: db},
		Games:       &GameStore{db: db},
		Markets:     &MarketStore{db: db},
		Ledger:      &LedgerStore{db: db},
		Receipts:    &ReceiptStore{db: db},
		Settlements: &SettlementStore{db: db},
		Payouts:     &PayoutStore{db: db},
		Audit:       &AuditStore{db: db},
	}
}

// PutGame inserts or replaces a game row.
func (db *DB) PutGame(g domain.Game) {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := g
	db.games[g.ID] = &cp
}

// PutMarket inserts or replaces a market row.
func (db *DB) PutMarket(m domain.Market) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.markets[m.ID]; !ok {
		db.marketOrder = append(db.marketOrder, m.ID)
	}
	cp := m
	db.markets[m.ID] = &cp
}

// Game returns a copy of a game row.
func (db *DB) Game(id string) (domain.Game, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	g, ok := db.games[id]
	if !ok {
		return domain.Game{}, false
	}
	return *g, true
}

// Market returns a copy of a market row.
func (db *DB) Market(id string) (domain.Market, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	m, ok := db.markets[id]
	if !ok {
		return domain.Market{}, false
	}
	return *m, true
}

// QueueItem returns a copy of a queue row.
func (db *DB) QueueItem(id string) (domain.QueueItem, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	q, ok := db.queue[id]
	if !ok {
		return domain.QueueItem{}, false
	}
	return *q, true
}

// LedgerEntries returns all entries, optionally filtered by type.
func (db *DB) LedgerEntries(entryType domain.EntryType) []domain.LedgerEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range db.ledger {
		if entryType == "" || e.EntryType == entryType {
			out = append(out, e)
		}
	}
	return out
}

// Receipts returns every receipt in insertion order.
func (db *DB) Receipts() []domain.Receipt {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]domain.Receipt, 0, len(db.receiptSeq))
	for _, id := range db.receiptSeq {
		out = append(out, *db.receipts[id])
	}
	return out
}

// Settlement returns the settlement row for a market.
func (db *DB) Settlement(marketID string) (domain.MarketSettlement, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	s, ok := db.settlements[marketID]
	return s, ok
}

// Payouts returns every payout row.
func (db *DB) Payouts() []domain.Payout {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]domain.Payout(nil), db.payouts...)
}

// SetQueueItem overwrites a queue row; tests use it to age locks or attempts.
func (db *DB) SetQueueItem(q domain.QueueItem) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.queue[q.ID]; !ok {
		db.queueOrder = append(db.queueOrder, q.ID)
	}
	cp := q
	db.queue[q.ID] = &cp
}
