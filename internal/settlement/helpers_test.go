package settlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportsettle/internal/domain"
	"github.com/alanyoungcy/sportsettle/internal/store/memory"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fixture is an in-memory world with one game.
type fixture struct {
	t      *testing.T
	clock  *fakeClock
	db     *memory.DB
	mem    memory.Stores
	stores Stores
	bus    *memory.Bus
	alerts *recordingNotifier
	arch   *recordingArchive
	gameID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newFakeClock()
	db := memory.NewDB(memory.WithClock(clock.Now))
	mem := db.Stores()
	f := &fixture{
		t:      t,
		clock:  clock,
		db:     db,
		mem:    mem,
		bus:    memory.NewBus(),
		alerts: &recordingNotifier{},
		arch:   &recordingArchive{},
		gameID: "game-1",
		stores: Stores{
			Queue:       mem.Queue,
			Games:       mem.Games,
			Markets:     mem.Markets,
			Ledger:      mem.Ledger,
			Receipts:    mem.Receipts,
			Settlements: mem.Settlements,
			Payouts:     mem.Payouts,
			Audit:       mem.Audit,
		},
	}
	db.PutGame(domain.Game{ID: f.gameID, League: "nba", ExternalGameID: "sd-77", Status: "final"})
	return f
}

func (f *fixture) orchestrator() *Orchestrator {
	return NewOrchestrator(f.stores, Config{WorkerID: "test-worker", StoreTimeout: time.Second, Currency: "USD"}, quietLogger(),
		WithClock(f.clock.Now),
		WithEventBus(f.bus),
		WithNotifier(f.alerts),
		WithArchive(f.arch),
	)
}

func (f *fixture) addMarket(id string, locked bool) {
	game := f.gameID
	f.db.PutMarket(domain.Market{ID: id, SportsGameID: &game, League: "nba", Status: domain.MarketStatusOpen, IsLocked: locked})
}

func (f *fixture) addTrade(marketID, userID, side, amount string) domain.LedgerEntry {
	f.t.Helper()
	e, err := f.mem.Ledger.Insert(context.Background(), domain.LedgerEntry{
		UserID:      userID,
		MarketID:    marketID,
		EntryType:   domain.EntryTypeTradeLock,
		Direction:   domain.DirectionDebit,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "USD",
		ReferenceID: "lock_" + marketID + "_" + userID,
		Meta:        domain.LedgerMeta{Side: side},
	})
	require.NoError(f.t, err)
	return e
}

// claim enqueues an item for the fixture game and claims it.
func (f *fixture) claim(outcome *string) domain.QueueItem {
	f.t.Helper()
	ctx := context.Background()
	_, err := f.mem.Queue.Enqueue(ctx, domain.NewQueueItem{GameID: f.gameID, League: "nba", ExternalGameID: "sd-77", Outcome: outcome})
	require.NoError(f.t, err)
	item, err := f.mem.Queue.ClaimNext(ctx, "test-worker")
	require.NoError(f.t, err)
	require.NotNil(f.t, item)
	return *item
}

func (f *fixture) receipts(rt domain.ReceiptType) []domain.Receipt {
	var out []domain.Receipt
	for _, r := range f.db.Receipts() {
		if r.Type == rt {
			out = append(out, r)
		}
	}
	return out
}

func strPtr(s string) *string { return &s }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type recordingArchive struct {
	mu      sync.Mutex
	reports []domain.ReconciliationReport
}

func (a *recordingArchive) Archive(_ context.Context, r domain.ReconciliationReport) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports = append(a.reports, r)
	return r.ObjectKey(), nil
}

func (a *recordingArchive) List(context.Context, string) ([]domain.BlobInfo, error) { return nil, nil }

func (a *recordingArchive) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, domain.ErrNotFound
}

var errInjected = errors.New("injected failure")

// failingLedger fails Insert for one user.
type failingLedger struct {
	domain.LedgerStore
	userID string
}

func (l failingLedger) Insert(ctx context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error) {
	if e.UserID == l.userID && e.EntryType != domain.EntryTypeTradeLock {
		return domain.LedgerEntry{}, errInjected
	}
	return l.LedgerStore.Insert(ctx, e)
}

// failingPayouts fails every Create.
type failingPayouts struct{ domain.PayoutStore }

func (failingPayouts) Create(context.Context, domain.Payout) (domain.Payout, error) {
	return domain.Payout{}, errInjected
}

// failingReceiptCreate fails Create for one user with a non-duplicate error.
type failingReceiptCreate struct {
	domain.ReceiptStore
	userID string
}

func (r failingReceiptCreate) Create(ctx context.Context, rec domain.Receipt) (*domain.Receipt, error) {
	if rec.UserID == r.userID {
		return nil, errInjected
	}
	return r.ReceiptStore.Create(ctx, rec)
}

// forgetfulSettlements never records market settlements, simulating a worker
// that crashed after moving money but before closing out its markets.
type forgetfulSettlements struct{}

func (forgetfulSettlements) CountByGame(context.Context, string) (int, error) { return 0, nil }
func (forgetfulSettlements) ExistsForMarket(context.Context, string) (bool, error) { return false, nil }
func (forgetfulSettlements) Create(context.Context, domain.MarketSettlement) error { return nil }

// failingSettlementCreate fails Create for one market.
type failingSettlementCreate struct {
	domain.SettlementStore
	marketID string
}

func (s failingSettlementCreate) Create(ctx context.Context, ms domain.MarketSettlement) error {
	if ms.MarketID == s.marketID {
		return errInjected
	}
	return s.SettlementStore.Create(ctx, ms)
}

// failingGames fails GetByID.
type failingGames struct{ domain.GameStore }

func (failingGames) GetByID(context.Context, string) (domain.Game, error) {
	return domain.Game{}, errInjected
}

// ctxStores wraps the fixture stores so every call fails once its context is
// done, the way pgx does. onPayoutEntry runs after each payout ledger insert.
func (f *fixture) ctxStores(onPayoutEntry func()) {
	s := f.stores
	f.stores = Stores{
		Queue:       ctxQueue{s.Queue},
		Games:       ctxGames{s.Games},
		Markets:     ctxMarkets{s.Markets},
		Ledger:      ctxLedger{LedgerStore: s.Ledger, onPayout: onPayoutEntry},
		Receipts:    ctxReceipts{s.Receipts},
		Settlements: ctxSettlements{s.Settlements},
		Payouts:     ctxPayouts{s.Payouts},
		Audit:       s.Audit,
	}
}

type ctxQueue struct{ domain.QueueStore }

func (q ctxQueue) MarkDone(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return q.QueueStore.MarkDone(ctx, id)
}

func (q ctxQueue) MarkFailed(ctx context.Context, id, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return q.QueueStore.MarkFailed(ctx, id, reason)
}

type ctxGames struct{ domain.GameStore }

func (g ctxGames) GetByID(ctx context.Context, id string) (domain.Game, error) {
	if err := ctx.Err(); err != nil {
		return domain.Game{}, err
	}
	return g.GameStore.GetByID(ctx, id)
}

func (g ctxGames) MarkSettled(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return g.GameStore.MarkSettled(ctx, id, at)
}

type ctxMarkets struct{ domain.MarketStore }

func (m ctxMarkets) ListByGame(ctx context.Context, gameID string) ([]domain.Market, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.MarketStore.ListByGame(ctx, gameID)
}

func (m ctxMarkets) Resolve(ctx context.Context, id string, status domain.MarketStatus, outcome string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.MarketStore.Resolve(ctx, id, status, outcome)
}

type ctxLedger struct {
	domain.LedgerStore
	onPayout func()
}

func (l ctxLedger) ListByMarket(ctx context.Context, marketID string, et domain.EntryType) ([]domain.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.LedgerStore.ListByMarket(ctx, marketID, et)
}

func (l ctxLedger) Insert(ctx context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.LedgerEntry{}, err
	}
	out, err := l.LedgerStore.Insert(ctx, e)
	if err == nil && e.EntryType == domain.EntryTypePayout && l.onPayout != nil {
		l.onPayout()
	}
	return out, err
}

type ctxReceipts struct{ domain.ReceiptStore }

func (r ctxReceipts) Exists(ctx context.Context, marketID, userID string, rt domain.ReceiptType) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.ReceiptStore.Exists(ctx, marketID, userID, rt)
}

func (r ctxReceipts) Create(ctx context.Context, rec domain.Receipt) (*domain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.ReceiptStore.Create(ctx, rec)
}

func (r ctxReceipts) Confirm(ctx context.Context, id string, c domain.ReceiptConfirmation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.ReceiptStore.Confirm(ctx, id, c)
}

func (r ctxReceipts) Fail(ctx context.Context, id, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.ReceiptStore.Fail(ctx, id, reason)
}

func (r ctxReceipts) ListByMarkets(ctx context.Context, ids []string) ([]domain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.ReceiptStore.ListByMarkets(ctx, ids)
}

type ctxSettlements struct{ domain.SettlementStore }

func (s ctxSettlements) CountByGame(ctx context.Context, gameID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.SettlementStore.CountByGame(ctx, gameID)
}

func (s ctxSettlements) ExistsForMarket(ctx context.Context, marketID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.SettlementStore.ExistsForMarket(ctx, marketID)
}

func (s ctxSettlements) Create(ctx context.Context, ms domain.MarketSettlement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.SettlementStore.Create(ctx, ms)
}

type ctxPayouts struct{ domain.PayoutStore }

func (p ctxPayouts) Create(ctx context.Context, po domain.Payout) (domain.Payout, error) {
	if err := ctx.Err(); err != nil {
		return domain.Payout{}, err
	}
	return p.PayoutStore.Create(ctx, po)
}

// slowGames blocks GetByID until its context expires.
type slowGames struct{ domain.GameStore }

func (slowGames) GetByID(ctx context.Context, _ string) (domain.Game, error) {
	<-ctx.Done()
	return domain.Game{}, ctx.Err()
}
