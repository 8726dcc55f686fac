package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

func TestReceiptUniqueTriple(t *testing.T) {
	s := NewDB().Stores().Receipts
	ctx := context.Background()
	r := domain.Receipt{
		MarketID: "m1", UserID: "u1", Type: domain.ReceiptTypePayout,
		Amount: decimal.RequireFromString("195"), Currency: "USD",
	}

	created, err := s.Create(ctx, r)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, domain.ReceiptStatusInitiated, created.Status)

	dup, err := s.Create(ctx, r)
	require.NoError(t, err)
	assert.Nil(t, dup)

	r.Type = domain.ReceiptTypeRefund
	other, err := s.Create(ctx, r)
	require.NoError(t, err)
	assert.NotNil(t, other)

	exists, err := s.Exists(ctx, "m1", "u1", domain.ReceiptTypePayout)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = s.Exists(ctx, "m1", "u2", domain.ReceiptTypePayout)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestReceiptConfirmAndFail(t *testing.T) {
	db := NewDB()
	s := db.Stores().Receipts
	ctx := context.Background()

	a, err := s.Create(ctx, domain.Receipt{MarketID: "m1", UserID: "u1", Type: domain.ReceiptTypePayout})
	require.NoError(t, err)
	b, err := s.Create(ctx, domain.Receipt{MarketID: "m1", UserID: "u2", Type: domain.ReceiptTypePayout})
	require.NoError(t, err)

	ledgerID, payoutID := "le-1", "po-1"
	require.NoError(t, s.Confirm(ctx, a.ID, domain.ReceiptConfirmation{LedgerEntryID: &ledgerID, PayoutID: &payoutID}))
	require.NoError(t, s.Fail(ctx, b.ID, "ledger down"))
	assert.ErrorIs(t, s.Fail(ctx, "missing", "x"), domain.ErrNotFound)

	all, err := s.ListByMarkets(ctx, []string{"m1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.ReceiptStatusConfirmed, all[0].Status)
	assert.Equal(t, "le-1", *all[0].LedgerEntryID)
	assert.Equal(t, "po-1", *all[0].PayoutID)
	assert.NotNil(t, all[0].ConfirmedAt)
	assert.Equal(t, domain.ReceiptStatusFailed, all[1].Status)
	assert.Equal(t, "ledger down", *all[1].FailureReason)

	failed, err := s.List(ctx, domain.ReceiptFilter{Status: domain.ReceiptStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, b.ID, failed[0].ID)
}

func TestSettlementCreateOnce(t *testing.T) {
	s := NewDB().Stores().Settlements
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, domain.MarketSettlement{MarketID: "m1", GameID: "g1"}))
	assert.ErrorIs(t, s.Create(ctx, domain.MarketSettlement{MarketID: "m1", GameID: "g1"}), domain.ErrAlreadyExists)

	n, err := s.CountByGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	ok, err := s.ExistsForMarket(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMarketLookupAndResolve(t *testing.T) {
	db := NewDB()
	s := db.Stores().Markets
	ctx := context.Background()
	game, ext := "g1", "4411"
	db.PutMarket(domain.Market{ID: "m1", SportsGameID: &game, League: "nba", Status: domain.MarketStatusOpen})
	db.PutMarket(domain.Market{ID: "m2", SportsDataGameID: &ext, League: "nba", Status: domain.MarketStatusOpen})

	byGame, err := s.ListByGame(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, byGame, 1)
	assert.Equal(t, "m1", byGame[0].ID)

	byExt, err := s.ListByExternalGame(ctx, "4411", "nba")
	require.NoError(t, err)
	require.Len(t, byExt, 1)
	none, err := s.ListByExternalGame(ctx, "4411", "nfl")
	require.NoError(t, err)
	assert.Empty(t, none)

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Lock(ctx, "m1", domain.LockReasonSettlementSafety, at))
	require.NoError(t, s.Resolve(ctx, "m1", domain.MarketStatusSettled, "HOME"))
	m, _ := db.Market("m1")
	assert.True(t, m.IsLocked)
	assert.Equal(t, domain.MarketStatusSettled, m.Status)
	assert.Equal(t, domain.GameStatusFinal, m.GameStatus)
	assert.Equal(t, "HOME", *m.FinalOutcome)
}

func TestLedgerReferenceUnique(t *testing.T) {
	s := NewDB().Stores().Ledger
	ctx := context.Background()
	e := domain.LedgerEntry{UserID: "u1", MarketID: "m1", EntryType: domain.EntryTypePayout, ReferenceID: "payout_r1"}

	got, err := s.Insert(ctx, e)
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	_, err = s.Insert(ctx, e)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestGameMarkSettledKeepsFirstStamp(t *testing.T) {
	db := NewDB()
	s := db.Stores().Games
	ctx := context.Background()
	db.PutGame(domain.Game{ID: "g1"})

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkSettled(ctx, "g1", first))
	require.NoError(t, s.MarkSettled(ctx, "g1", first.Add(time.Hour)))
	g, err := s.GetByID(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, first, *g.SettledAt)

	_, err = s.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCacheTTL(t *testing.T) {
	clock := newFakeClock()
	c := NewCache(clock.Now)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	clock.Advance(2 * time.Minute)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, c.Set(ctx, "forever", []byte("x"), 0))
	clock.Advance(24 * time.Hour)
	_, err = c.Get(ctx, "forever")
	assert.NoError(t, err)
	require.NoError(t, c.Delete(ctx, "forever"))
	_, err = c.Get(ctx, "forever")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBusStreamRead(t *testing.T) {
	b := NewBus()
	ctx := context.Background()
	require.NoError(t, b.StreamAppend(ctx, "s", []byte("a")))
	require.NoError(t, b.StreamAppend(ctx, "s", []byte("b")))

	all, err := b.StreamRead(ctx, "s", "0", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)

	after, err := b.StreamRead(ctx, "s", all[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, []byte("b"), after[0].Payload)
}

func TestBusPublishSubscribe(t *testing.T) {
	b := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx, "settlements")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "settlements", []byte("hello")))
	select {
	case msg := <-ch:
		assert.Equal(t, []byte("hello"), msg)
	case <-time.After(time.Second):
		t.Fatal("no message")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, time.Second, 10*time.Millisecond)
}

func TestAuditListFilters(t *testing.T) {
	clock := newFakeClock()
	audit := NewDB(WithClock(clock.Now)).Stores().Audit
	ctx := context.Background()

	start := clock.Now()
	require.NoError(t, audit.Log(ctx, "settlement.safety_violation", map[string]any{"settlement_queue_id": "q1"}))
	clock.Advance(time.Minute)
	require.NoError(t, audit.Log(ctx, "settlement.reconciliation_required", map[string]any{"settlement_queue_id": "q2"}))
	clock.Advance(time.Minute)
	require.NoError(t, audit.Log(ctx, "settlement.reconciliation_required", map[string]any{"settlement_queue_id": "q1"}))
	require.NoError(t, audit.Log(ctx, "ops.restart", nil))

	all, err := audit.List(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "ops.restart", all[0].Event, "newest first")

	byQueue, err := audit.List(ctx, domain.AuditFilter{EventPrefix: "settlement.", QueueID: "q1"})
	require.NoError(t, err)
	require.Len(t, byQueue, 2)
	assert.Equal(t, "settlement.reconciliation_required", byQueue[0].Event)
	assert.Equal(t, "settlement.safety_violation", byQueue[1].Event)

	until := start.Add(90 * time.Second)
	window, err := audit.List(ctx, domain.AuditFilter{Since: &start, Until: &until})
	require.NoError(t, err)
	assert.Len(t, window, 2)

	page, err := audit.List(ctx, domain.AuditFilter{EventPrefix: "settlement.", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "q2", page[0].Detail["settlement_queue_id"])

	none, err := audit.List(ctx, domain.AuditFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, none)
}
