package settlement

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportsettle/internal/domain"
	"github.com/alanyoungcy/sportsettle/internal/notify"
)

func TestWinnerPaidLoserIgnored(t *testing.T) {
	f := newFixture(t)
	f.addMarket("m1", true)
	win := f.addTrade("m1", "u1", "HOME", "100")
	f.addTrade("m1", "u2", "AWAY", "50")
	item := f.claim(strPtr("HOME"))

	res := f.orchestrator().ProcessSettlement(context.Background(), item)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "HOME", res.Outcome)
	assert.Equal(t, 1, res.MarketsSettled)
	assert.Equal(t, 1, res.PayoutsCreated)
	assert.Zero(t, res.RefundsCreated)
	assert.True(t, res.TotalPayouts.Equal(dec("195")), res.TotalPayouts.String())
	assert.Nil(t, res.Reconciliation)

	payouts := f.receipts(domain.ReceiptTypePayout)
	require.Len(t, payouts, 1)
	r := payouts[0]
	assert.Equal(t, "u1", r.UserID)
	assert.Equal(t, domain.ReceiptStatusConfirmed, r.Status)
	assert.True(t, r.Amount.Equal(dec("195.00")))
	assert.Equal(t, item.ID, r.QueueID)
	require.NotNil(t, r.PayoutID)
	require.NotNil(t, r.LedgerEntryID)

	for _, rec := range f.db.Receipts() {
		assert.NotEqual(t, "u2", rec.UserID)
	}

	ms, ok := f.db.Settlement("m1")
	require.True(t, ok)
	assert.True(t, ms.TotalPayouts.Equal(dec("195")))
	assert.True(t, ms.TotalVolume.Equal(dec("150")))
	assert.Equal(t, 1, ms.PayoutCount)
	assert.Equal(t, domain.SettledBySystem, ms.SettledBy)
	assert.Equal(t, "HOME", ms.Outcome)

	m, _ := f.db.Market("m1")
	assert.Equal(t, domain.MarketStatusSettled, m.Status)
	assert.Equal(t, domain.GameStatusFinal, m.GameStatus)
	assert.Equal(t, "HOME", *m.FinalOutcome)

	entries := f.db.LedgerEntries(domain.EntryTypePayout)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, domain.DirectionCredit, e.Direction)
	assert.Equal(t, win.ID, e.Meta.OriginalTrade)
	assert.Equal(t, r.ID, e.Meta.ReceiptID)
	assert.Equal(t, *r.PayoutID, e.Meta.PayoutID)
	assert.Equal(t, "payout_"+r.ID, e.ReferenceID)
	assert.Equal(t, *r.LedgerEntryID, e.ID)

	queued := f.db.Payouts()
	require.Len(t, queued, 1)
	assert.Equal(t, domain.PayoutStatusQueued, queued[0].Status)
	assert.True(t, queued[0].Amount.Equal(dec("195")))

	g, _ := f.db.Game(f.gameID)
	require.NotNil(t, g.SettledAt)
	q, _ := f.db.QueueItem(item.ID)
	assert.Equal(t, domain.QueueStatusDone, q.Status)
	assert.Nil(t, q.LockedBy)
}

func TestCancellationRefundsFullStake(t *testing.T) {
	f := newFixture(t)
	f.addMarket("m1", true)
	trade := f.addTrade("m1", "u1", "HOME", "75")
	item := f.claim(strPtr("CANCELED"))

	res := f.orchestrator().ProcessSettlement(context.Background(), item)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, res.RefundsCreated)
	assert.Zero(t, res.PayoutsCreated)
	assert.True(t, res.TotalRefunds.Equal(dec("75")))

	refunds := f.receipts(domain.ReceiptTypeRefund)
	require.Len(t, refunds, 1)
	assert.Equal(t, domain.ReceiptStatusConfirmed, refunds[0].Status)
	assert.True(t, refunds[0].Amount.Equal(dec("75.00")))
	assert.Empty(t, f.receipts(domain.ReceiptTypePayout))
	assert.Empty(t, f.db.Payouts())

	m, _ := f.db.Market("m1")
	assert.Equal(t, domain.MarketStatusVoid, m.Status)

	ms, ok := f.db.Settlement("m1")
	require.True(t, ok)
	assert.True(t, ms.TotalPayouts.Equal(dec("75")))
	assert.Equal(t, 1, ms.PayoutCount)

	releases := f.db.LedgerEntries(domain.EntryTypeTradeRelease)
	require.Len(t, releases, 1)
	assert.Equal(t, trade.ID, releases[0].Meta.OriginalTrade)
	assert.Equal(t, "refund_"+refunds[0].ID, releases[0].ReferenceID)
	assert.True(t, releases[0].Amount.Equal(dec("75")))
}

func TestPostponedAndMissingOutcomeRefund(t *testing.T) {
	for name, outcome := range map[string]*string{
		"postponed": strPtr("postponed"),
		"nil":       nil,
		"blank":     strPtr("  "),
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.addMarket("m1", true)
			f.addTrade("m1", "u1", "AWAY", "20")
			res := f.orchestrator().ProcessSettlement(context.Background(), f.claim(outcome))

			require.True(t, res.Success, res.Error)
			assert.Equal(t, 1, res.RefundsCreated)
			m, _ := f.db.Market("m1")
			assert.Equal(t, domain.MarketStatusVoid, m.Status)
		})
	}
}

func TestSideMatchIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	f.addMarket("m1", true)
	f.addTrade("m1", "u1", "home", "10")
	// Older rows keep the side under "position".
	_, err := f.mem.Ledger.Insert(context.Background(), domain.LedgerEntry{
		UserID: "u2", MarketID: "m1", EntryType: domain.EntryTypeTradeLock,
		Direction: domain.DirectionDebit, Amount: dec("10"), Currency: "USD",
		ReferenceID: "lock_m1_u2", Meta: domain.LedgerMeta{Position: "Home"},
	})
	require.NoError(t, err)

	res := f.orchestrator().ProcessSettlement(context.Background(), f.claim(strPtr("HOME")))
	require.True(t, res.Success)
	assert.Equal(t, 2, res.PayoutsCreated)
	assert.True(t, res.TotalPayouts.Equal(dec("39")))
}

func TestRerunNeverPaysTwice(t *testing.T) {
	for _, tc := range []struct {
		name    string
		outcome string
		rt      domain.ReceiptType
		entry   domain.EntryType
	}{
		{"payout", "HOME", domain.ReceiptTypePayout, domain.EntryTypePayout},
		{"refund", "CANCELED", domain.ReceiptTypeRefund, domain.EntryTypeTradeRelease},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.stores.Settlements = forgetfulSettlements{}
			f.addMarket("m1", true)
			f.addTrade("m1", "u1", "HOME", "100")
			item := f.claim(strPtr(tc.outcome))
			orch := f.orchestrator()

			first := orch.ProcessSettlement(context.Background(), item)
			require.True(t, first.Success)

			// Undo the game and market stamps so the second run walks every trade again.
			f.db.PutGame(domain.Game{ID: f.gameID, League: "nba"})
			f.addMarket("m1", true)

			second := orch.ProcessSettlement(context.Background(), item)
			require.True(t, second.Success)
			assert.Equal(t, 1, second.ReceiptsSkipped)
			assert.Zero(t, second.PayoutsCreated+second.RefundsCreated)

			assert.Len(t, f.receipts(tc.rt), 1)
			assert.Len(t, f.db.LedgerEntries(tc.entry), 1)
		})
	}
}

func TestStuckInitiatedReceiptIsNotRepaid(t *testing.T) {
	f := newFixture(t)
	f.addMarket("m1", true)
	f.addTrade("m1", "u1", "HOME", "100")
	// A prior worker wrote the receipt and crashed before moving money.
	_, err := f.mem.Receipts.Create(context.Background(), domain.Receipt{
		MarketID: "m1", UserID: "u1", GameID: f.gameID, Type: domain.ReceiptTypePayout, Amount: dec("195"), Currency: "USD",
	})
	require.NoError(t, err)

	res := f.orchestrator().ProcessSettlement(context.Background(), f.claim(strPtr("HOME")))

	require.True(t, res.Success)
	assert.Equal(t, 1, res.ReceiptsSkipped)
	assert.Empty(t, f.db.LedgerEntries(domain.EntryTypePayout))
	require.NotNil(t, res.Reconciliation)
	assert.Len(t, res.Reconciliation.StuckReceipts, 1)
}

func TestAlreadySettledGameIsNoop(t *testing.T) {
	f := newFixture(t)
	f.addMarket("m1", true)
	f.addTrade("m1", "u1", "HOME", "100")
	settled := f.clock.Now().Add(-time.Hour)
	f.db.PutGame(domain.Game{ID: f.gameID, League: "nba", SettledAt: &settled})
	require.NoError(t, f.mem.Settlements.Create(context.Background(), domain.MarketSettlement{MarketID: "m1", GameID: f.gameID}))
	require.NoError(t, f.mem.Settlements.Create(context.Background(), domain.MarketSettlement{MarketID: "m0", GameID: f.gameID}))
	item := f.claim(strPtr("HOME"))

	res := f.orchestrator().ProcessSettlement(context.Background(), item)

	require.True(t, res.Success)
	assert.Equal(t, 2, res.MarketsSettled)
	assert.Empty(t, f.db.Receipts())
	assert.Empty(t, f.db.LedgerEntries(domain.EntryTypePayout))
	q, _ := f.db.QueueItem(item.ID)
	assert.Equal(t, domain.QueueStatusDone, q.Status)
}

func TestExistingSettlementsStampGame(t *testing.T) {
	f := newFixture(t)
	f.addMarket("m1", true)
	f.addTrade("m1", "u1", "HOME", "100")
	require.NoError(t, f.mem.Settlements.Create(context.Background(), domain.MarketSettlement{MarketID: "m1", GameID: f.gameID}))
	item := f.claim(strPtr("HOME"))

	res := f.orchestrator().ProcessSettlement(context.Background(), item)

	require.True(t, res.Success)
	assert.Equal(t, 1, res.MarketsSettled)
	assert.Empty(t, f.db.Receipts())
	g, _ := f.db.Game(f.gameID)
	require.NotNil(t, g.SettledAt)
	assert.Equal(t, f.clock.Now(), *g.SettledAt)
}

func TestNoMarketsIsSuccess(t *testing.T) {
	f := newFixture(t)
	item := f.claim(strPtr("HOME"))

	res := f.orchestrator().ProcessSettlement(context.Background(), item)

	require.True(t, res.Success)
	assert.Zero(t, res.MarketsSettled)
	g, _ := f.db.Game(f.gameID)
	assert.NotNil(t, g.SettledAt)
	q, _ := f.db.QueueItem(item.ID)
	assert.Equal(t, domain.QueueStatusDone, q.Status)
}

func TestLegacyExternalIDFallback(t *testing.T) {
	f := newFixture(t)
	ext := "sd-77"
	f.db.PutMarket(domain.Market{ID: "legacy", SportsDataGameID: &ext, League: "nba", Status: domain.MarketStatusOpen, IsLocked: true})
	f.addTrade("legacy", "u1", "AWAY", "40")

	res := f.orchestrator().ProcessSettlement(context.Background(), f.claim(strPtr("AWAY")))

	require.True(t, res.Success)
	assert.Equal(t, 1, res.MarketsSettled)
	assert.True(t, res.TotalPayouts.Equal(dec("78")))
}

func TestUnlockedMarketIsForceLocked(t *testing.T) {
	f := newFixture(t)
	f.addMarket("m1", false)
	f.addTrade("m1", "u1", "HOME", "10")

	res := f.orchestrator().ProcessSettlement(context.Background(), f.claim(strPtr("HOME")))

	require.True(t, res.Success)
	m, _ := f.db.Market("m1")
	assert.True(t, m.IsLocked)
	require.NotNil(t, m.LockReason)
	assert.Equal(t, domain.LockReasonSettlementSafety, *m.LockReason)
	assert.Equal(t, f.clock.Now(), *m.LockedAt)
	assert.Equal(t, domain.MarketStatusSettled, m.Status)
	assert.Equal(t, []string{"settlement.safety_violation"}, f.mem.Audit.Events("settlement."))
	assert.Contains(t, f.alerts.Events(), notify.EventSafetyViolation)
}

func TestTerminalMarketsAreSkipped(t *testing.T) {
	f := newFixture(t)
	game := f.gameID
	f.db.PutMarket(domain.Market{ID: "done", SportsGameID: &game, Status: domain.MarketStatusVoid, IsLocked: true})
	f.addTrade("done", "u1", "HOME", "10")
	f.addMarket("open", true)
	f.addTrade("open", "u2", "HOME", "10")

	res := f.orchestrator().ProcessSettlement(context.Background(), f.claim(strPtr("HOME")))

	require.True(t, res.Success)
	assert.Equal(t, 2, res.MarketsSettled)
	assert.Equal(t, 1, res.PayoutsCreated)
	_, ok := f.db.Settlement("done")
	assert.False(t, ok)
}

func TestGameNotFoundFailsItemWithBackoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.mem.Queue.Enqueue(ctx, domain.NewQueueItem{GameID: "ghost"})
	require.NoError(t, err)
	item, err := f.mem.Queue.ClaimNext(ctx, "test-worker")
	require.NoError(t, err)

	res := f.orchestrator().ProcessSettlement(ctx, *item)

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, domain.ErrGameNotFound)
	assert.Contains(t, res.Error, "ghost")
	q, _ := f.db.QueueItem(item.ID)
	assert.Equal(t, domain.QueueStatusFailed, q.Status)
	assert.Equal(t, 1, q.Attempts)
	assert.Equal(t, time.Minute, q.NextAttemptAt.Sub(f.clock.Now()))
	assert.Equal(t, res.Error, *q.Reason)
	assert.Contains(t, f.alerts.Events(), notify.EventSettlementFailed)
}

func TestTransientStoreErrorFailsItem(t *testing.T) {
	f := newFixture(t)
	f.stores.Games = failingGames{f.mem.Games}
	item := f.claim(strPtr("HOME"))

	res := f.orchestrator().ProcessSettlement(context.Background(), item)

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, errInjected)
	q, _ := f.db.QueueItem(item.ID)
	assert.Equal(t, domain.QueueStatusFailed, q.Status)
}

func TestLedgerFailureIsolatedToTrade(t *testing.T) {
	f := newFixture(t)
	f.stores.Ledger = failingLedger{LedgerStore: f.mem.Ledger, userID: "u1"}
	f.addMarket("m1", true)
	f.addTrade("m1", "u1", "HOME", "100")
	f.addTrade("m1", "u3", "HOME", "10")
	item := f.claim(strPtr("HOME"))

	res := f.orchestrator().ProcessSettlement(context.Background(), item)

	require.True(t, res.Success)
	assert.Equal(t, 1, res.PayoutsCreated)
	assert.Equal(t, 1, res.ReceiptsFailed)
	assert.True(t, res.TotalPayouts.Equal(dec("19.5")))

	byUser := map[string]domain.Receipt{}
	for _, r := range f.receipts(domain.ReceiptTypePayout) {
		byUser[r.UserID] = r
	}
	assert.Equal(t, domain.ReceiptStatusFailed, byUser["u1"].Status)
	assert.Contains(t, *byUser["u1"].FailureReason, "injected failure")
	assert.Equal(t, domain.ReceiptStatusConfirmed, byUser["u3"].Status)

	require.NotNil(t, res.Reconciliation)
	require.Len(t, res.Reconciliation.FailedReceipts, 1)
	assert.Equal(t, "u1", res.Reconciliation.FailedReceipts[0].UserID)
	require.Len(t, f.arch.reports, 1)
	assert.Equal(t, item.ID, f.arch.reports[0].QueueID)
	assert.Contains(t, f.alerts.Events(), notify.EventReconciliation)

	q, _ := f.db.QueueItem(item.ID)
	assert.Equal(t, domain.QueueStatusDone, q.Status)
}

func TestRefundLedgerFailureFailsReceipt(t *testing.T) {
	f := newFixture(t)
	f.stores.Ledger = failingLedger{LedgerStore: f.mem.Ledger, userID: "u1"}
	f.addMarket("m1", true)
	f.addTrade("m1", "u1", "HOME", "75")

	res := f.orchestrator().ProcessSettlement(context.Background(), f.claim(strPtr("CANCELED")))

	require.True(t, res.Success)
	assert.Equal(t, 1, res.ReceiptsFailed)
	refunds := f.receipts(domain.ReceiptTypeRefund)
	require.Len(t, refunds, 1)
	assert.Equal(t, domain.ReceiptStatusFailed, refunds[0].Status)
	assert.Empty(t, f.db.LedgerEntries(domain.EntryTypeTradeRelease))
}

func TestPayoutRecordFailureFailsReceipt(t *testing.T) {
	f := newFixture(t)
	f.stores.Payouts = failingPayouts{}
	f.addMarket("m1", true)
	f.addTrade("m1", "u1", "HOME", "100")

	res := f.orchestrator().ProcessSettlement(context.Background(), f.claim(strPtr("HOME")))

	require.True(t, res.Success)
	assert.Equal(t, 1, res.ReceiptsFailed)
	assert.Empty(t, f.db.LedgerEntries(domain.EntryTypePayout))
	payouts := f.receipts(domain.ReceiptTypePayout)
	require.Len(t, payouts, 1)
	assert.Equal(t, domain.ReceiptStatusFailed, payouts[0].Status)
}

func TestReceiptCreateErrorRecordedAsTradeFailure(t *testing.T) {
	f := newFixture(t)
	f.stores.Receipts = failingReceiptCreate{ReceiptStore: f.mem.Receipts, userID: "u1"}
	f.addMarket("m1", true)
	f.addTrade("m1", "u1", "HOME", "100")
	f.addTrade("m1", "u2", "HOME", "100")

	res := f.orchestrator().ProcessSettlement(context.Background(), f.claim(strPtr("HOME")))

	require.True(t, res.Success)
	assert.Equal(t, 1, res.PayoutsCreated)
	require.NotNil(t, res.Reconciliation)
	require.Len(t, res.Reconciliation.TradeFailures, 1)
	tf := res.Reconciliation.TradeFailures[0]
	assert.Equal(t, "u1", tf.UserID)
	assert.Equal(t, "receipt_create", tf.Stage)
	assert.True(t, tf.Amount.Equal(dec("100")))
}

func TestMarketFailureDoesNotAbortOthers(t *testing.T) {
	f := newFixture(t)
	f.stores.Settlements = failingSettlementCreate{SettlementStore: f.mem.Settlements, marketID: "m1"}
	f.addMarket("m1", true)
	f.addMarket("m2", true)
	f.addTrade("m1", "u1", "HOME", "10")
	f.addTrade("m2", "u1", "HOME", "20")
	item := f.claim(strPtr("HOME"))

	res := f.orchestrator().ProcessSettlement(context.Background(), item)

	require.True(t, res.Success)
	assert.Equal(t, 1, res.MarketsSettled)
	assert.Equal(t, 2, res.PayoutsCreated)
	require.NotNil(t, res.Reconciliation)
	require.Len(t, res.Reconciliation.MarketFailures, 1)
	assert.Equal(t, "m1", res.Reconciliation.MarketFailures[0].MarketID)
	_, ok := f.db.Settlement("m2")
	assert.True(t, ok)
	q, _ := f.db.QueueItem(item.ID)
	assert.Equal(t, domain.QueueStatusDone, q.Status)
}

func TestEventsPublished(t *testing.T) {
	f := newFixture(t)
	f.addMarket("m1", true)
	f.addTrade("m1", "u1", "HOME", "100")

	res := f.orchestrator().ProcessSettlement(context.Background(), f.claim(strPtr("HOME")))
	require.True(t, res.Success)

	msgs, err := f.bus.StreamRead(context.Background(), StreamSettlements, "0", 10)
	require.NoError(t, err)
	var types []string
	for _, m := range msgs {
		var ev Event
		require.NoError(t, json.Unmarshal(m.Payload, &ev))
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{EventMarketSettled, EventItemCompleted}, types)
}

func TestReportObjectKey(t *testing.T) {
	r := domain.ReconciliationReport{QueueID: "q-9", GeneratedAt: time.Date(2026, 2, 3, 23, 0, 0, 0, time.UTC)}
	assert.Equal(t, "reconciliation/2026/02/03/q-9.json", r.ObjectKey())
}

func TestCancelMidMarketStillPaysEveryWinner(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.ctxStores(cancel)
	f.addMarket("m1", true)
	f.addTrade("m1", "u1", "HOME", "100")
	f.addTrade("m1", "u2", "HOME", "100")
	f.addTrade("m1", "u3", "HOME", "100")
	item := f.claim(strPtr("HOME"))

	res := f.orchestrator().ProcessSettlement(ctx, item)

	require.True(t, res.Success, res.Error)
	require.Error(t, ctx.Err())
	assert.Equal(t, 3, res.PayoutsCreated)
	assert.Nil(t, res.Reconciliation)

	receipts := f.receipts(domain.ReceiptTypePayout)
	require.Len(t, receipts, 3)
	for _, r := range receipts {
		assert.Equal(t, domain.ReceiptStatusConfirmed, r.Status, r.UserID)
	}
	assert.Len(t, f.db.LedgerEntries(domain.EntryTypePayout), 3)

	ms, ok := f.db.Settlement("m1")
	require.True(t, ok)
	assert.Equal(t, 3, ms.PayoutCount)
	g, _ := f.db.Game(f.gameID)
	assert.NotNil(t, g.SettledAt)
	q, _ := f.db.QueueItem(item.ID)
	assert.Equal(t, domain.QueueStatusDone, q.Status)
}

func TestReceiptConfirmedUnderCancelledContext(t *testing.T) {
	f := newFixture(t)
	f.ctxStores(nil)
	f.addMarket("m1", true)
	f.addTrade("m1", "u1", "HOME", "100")
	orch := f.orchestrator()

	rec, err := f.mem.Receipts.Create(context.Background(), domain.Receipt{
		MarketID: "m1", UserID: "u1", GameID: f.gameID, Type: domain.ReceiptTypePayout, Amount: dec("195"), Currency: "USD",
	})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orch.confirmReceipt(ctx, rec, domain.ReceiptConfirmation{}, quietLogger())

	got := f.receipts(domain.ReceiptTypePayout)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ReceiptStatusConfirmed, got[0].Status)
}

func TestStoreTimeoutFailsItem(t *testing.T) {
	f := newFixture(t)
	f.stores.Games = slowGames{f.stores.Games}
	item := f.claim(strPtr("HOME"))
	orch := NewOrchestrator(f.stores, Config{WorkerID: "test-worker", StoreTimeout: 20 * time.Millisecond}, quietLogger(), WithClock(f.clock.Now))

	res := orch.ProcessSettlement(context.Background(), item)

	require.False(t, res.Success)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	q, _ := f.db.QueueItem(item.ID)
	assert.Equal(t, domain.QueueStatusFailed, q.Status)
	assert.Equal(t, 1, q.Attempts)
}

func TestSecondPositionInMarketIsReported(t *testing.T) {
	f := newFixture(t)
	f.addMarket("m1", true)
	f.addTrade("m1", "u1", "HOME", "100")
	second := f.addTrade("m1", "u1", "HOME", "40")
	item := f.claim(strPtr("HOME"))

	res := f.orchestrator().ProcessSettlement(context.Background(), item)

	require.True(t, res.Success)
	assert.Equal(t, 1, res.PayoutsCreated)
	assert.Equal(t, 1, res.ReceiptsSkipped)
	require.NotNil(t, res.Reconciliation)
	require.Len(t, res.Reconciliation.TradeFailures, 1)
	tf := res.Reconciliation.TradeFailures[0]
	assert.Equal(t, second.ID, tf.TradeID)
	assert.Equal(t, "duplicate_position", tf.Stage)
	assert.True(t, tf.Amount.Equal(dec("40")))
}
