package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

// itemRun carries per-item state through the market and trade loops.
type itemRun struct {
	item         domain.QueueItem
	outcome      string
	cancellation bool
	res          *Result
	report       *domain.ReconciliationReport
	// opened holds the (market, user, type) keys already claimed by a trade
	// in this run.
	opened map[string]bool
}

// marketTotals accumulates the figures written to market_settlements.
type marketTotals struct {
	volume  decimal.Decimal
	payouts decimal.Decimal
	count   int
}

func (o *Orchestrator) settleMarket(ctx context.Context, run *itemRun, m domain.Market, log *slog.Logger) error {
	if m.Status.Terminal() {
		log.DebugContext(ctx, "market already terminal", slog.String("status", string(m.Status)))
		run.res.MarketsSettled++
		return nil
	}

	exists, err := call(ctx, o.cfg.StoreTimeout, func(ctx context.Context) (bool, error) {
		return o.stores.Settlements.ExistsForMarket(ctx, m.ID)
	})
	if err != nil {
		return fmt.Errorf("check market settlement: %w", err)
	}
	if exists {
		log.DebugContext(ctx, "market settlement already recorded")
		run.res.MarketsSettled++
		return nil
	}

	status := domain.MarketStatusSettled
	if run.cancellation {
		status = domain.MarketStatusVoid
	}
	if err := exec(ctx, o.cfg.StoreTimeout, func(ctx context.Context) error {
		return o.stores.Markets.Resolve(ctx, m.ID, status, run.outcome)
	}); err != nil {
		return fmt.Errorf("resolve market: %w", err)
	}

	trades, err := call(ctx, o.cfg.StoreTimeout, func(ctx context.Context) ([]domain.LedgerEntry, error) {
		return o.stores.Ledger.ListByMarket(ctx, m.ID, domain.EntryTypeTradeLock)
	})
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}

	totals := marketTotals{volume: decimal.Zero, payouts: decimal.Zero}
	for _, trade := range trades {
		totals.volume = totals.volume.Add(trade.Amount)
		tlog := log.With(slog.String("user_id", trade.UserID), slog.String("trade_id", trade.ID))
		if run.cancellation {
			o.refundTrade(ctx, run, m, trade, &totals, tlog)
		} else {
			o.payTrade(ctx, run, m, trade, &totals, tlog)
		}
	}

	err = exec(ctx, o.cfg.StoreTimeout, func(ctx context.Context) error {
		return o.stores.Settlements.Create(ctx, domain.MarketSettlement{
			MarketID:     m.ID,
			GameID:       run.item.GameID,
			Outcome:      run.outcome,
			TotalVolume:  totals.volume,
			TotalPayouts: totals.payouts,
			PayoutCount:  totals.count,
			SettledBy:    domain.SettledBySystem,
		})
	})
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		log.DebugContext(ctx, "market settlement recorded concurrently")
	case err != nil:
		return fmt.Errorf("record market settlement: %w", err)
	}

	run.res.MarketsSettled++
	o.metrics.ObserveMarket(string(status))
	log.InfoContext(ctx, "market settled",
		slog.String("status", string(status)),
		slog.Int("trades", len(trades)),
		slog.Int("payout_count", totals.count),
		slog.String("total_volume", totals.volume.String()),
		slog.String("total_payouts", totals.payouts.String()),
	)
	o.publish(ctx, Event{
		Type:         EventMarketSettled,
		QueueID:      run.item.ID,
		GameID:       run.item.GameID,
		MarketID:     m.ID,
		Status:       string(status),
		Outcome:      run.outcome,
		TotalPayouts: totals.payouts.String(),
		PayoutCount:  totals.count,
		At:           o.now(),
	}, log)
	return nil
}

// refundTrade returns the full stake of a trade on a canceled game.
func (o *Orchestrator) refundTrade(ctx context.Context, run *itemRun, m domain.Market, trade domain.LedgerEntry, totals *marketTotals, log *slog.Logger) {
	rec, ok := o.openReceipt(ctx, run, m, trade, domain.ReceiptTypeRefund, trade.Amount, log)
	if !ok {
		return
	}

	entry, err := call(ctx, o.cfg.StoreTimeout, func(ctx context.Context) (domain.LedgerEntry, error) {
		return o.stores.Ledger.Insert(ctx, domain.LedgerEntry{
			UserID:      trade.UserID,
			MarketID:    m.ID,
			EntryType:   domain.EntryTypeTradeRelease,
			Direction:   domain.DirectionCredit,
			Amount:      rec.Amount,
			Currency:    rec.Currency,
			ReferenceID: "refund_" + rec.ID,
			Meta: domain.LedgerMeta{
				Side:          trade.PositionSide(),
				OriginalTrade: trade.ID,
				ReceiptID:     rec.ID,
				QueueID:       run.item.ID,
				Reason:        "game " + strings.ToLower(run.outcome),
			},
		})
	})
	if err != nil {
		o.failReceipt(ctx, run, rec, fmt.Errorf("insert refund ledger entry: %w", err), log)
		return
	}

	o.confirmReceipt(ctx, rec, domain.ReceiptConfirmation{LedgerEntryID: &entry.ID}, log)
	run.res.RefundsCreated++
	run.res.TotalRefunds = run.res.TotalRefunds.Add(rec.Amount)
	totals.payouts = totals.payouts.Add(rec.Amount)
	totals.count++
	o.metrics.AddAmount(string(domain.ReceiptTypeRefund), rec.Currency, rec.Amount)
}

// payTrade pays a winning trade; losing trades are left untouched.
func (o *Orchestrator) payTrade(ctx context.Context, run *itemRun, m domain.Market, trade domain.LedgerEntry, totals *marketTotals, log *slog.Logger) {
	if !strings.EqualFold(trade.PositionSide(), run.outcome) {
		return
	}

	breakdown := o.cfg.Policy.Compute(trade.Amount)
	rec, ok := o.openReceipt(ctx, run, m, trade, domain.ReceiptTypePayout, breakdown.Net, log)
	if !ok {
		return
	}

	payout, err := call(ctx, o.cfg.StoreTimeout, func(ctx context.Context) (domain.Payout, error) {
		return o.stores.Payouts.Create(ctx, domain.Payout{
			UserID:   trade.UserID,
			MarketID: m.ID,
			Amount:   rec.Amount,
			Currency: rec.Currency,
			Status:   domain.PayoutStatusQueued,
		})
	})
	if err != nil {
		o.failReceipt(ctx, run, rec, fmt.Errorf("create payout: %w", err), log)
		return
	}

	entry, err := call(ctx, o.cfg.StoreTimeout, func(ctx context.Context) (domain.LedgerEntry, error) {
		return o.stores.Ledger.Insert(ctx, domain.LedgerEntry{
			UserID:      trade.UserID,
			MarketID:    m.ID,
			EntryType:   domain.EntryTypePayout,
			Direction:   domain.DirectionCredit,
			Amount:      rec.Amount,
			Currency:    rec.Currency,
			ReferenceID: "payout_" + rec.ID,
			Meta: domain.LedgerMeta{
				Side:          trade.PositionSide(),
				OriginalTrade: trade.ID,
				ReceiptID:     rec.ID,
				PayoutID:      payout.ID,
				QueueID:       run.item.ID,
			},
		})
	})
	if err != nil {
		o.failReceipt(ctx, run, rec, fmt.Errorf("insert payout ledger entry: %w", err), log)
		return
	}

	o.confirmReceipt(ctx, rec, domain.ReceiptConfirmation{LedgerEntryID: &entry.ID, PayoutID: &payout.ID}, log)
	run.res.PayoutsCreated++
	run.res.TotalPayouts = run.res.TotalPayouts.Add(rec.Amount)
	totals.payouts = totals.payouts.Add(rec.Amount)
	totals.count++
	o.metrics.AddAmount(string(domain.ReceiptTypePayout), rec.Currency, rec.Amount)
	log.DebugContext(ctx, "payout queued",
		slog.String("gross", breakdown.Gross.String()),
		slog.String("fee", breakdown.Fee.String()),
		slog.String("net", breakdown.Net.String()),
	)
}

// openReceipt writes the INITIATED receipt that must precede any money
// movement. It reports false when the trade is already handled or the receipt
// could not be written.
func (o *Orchestrator) openReceipt(ctx context.Context, run *itemRun, m domain.Market, trade domain.LedgerEntry, rt domain.ReceiptType, amount decimal.Decimal, log *slog.Logger) (*domain.Receipt, bool) {
	// One receipt covers a (market, user, type); a second position by the same
	// user cannot be settled automatically.
	key := m.ID + "|" + trade.UserID + "|" + string(rt)
	if run.opened[key] {
		o.duplicatePosition(ctx, run, trade, rt, log)
		return nil, false
	}
	if run.opened == nil {
		run.opened = make(map[string]bool)
	}
	run.opened[key] = true

	exists, err := call(ctx, o.cfg.StoreTimeout, func(ctx context.Context) (bool, error) {
		return o.stores.Receipts.Exists(ctx, m.ID, trade.UserID, rt)
	})
	if err != nil {
		o.tradeFailure(ctx, run, trade, "receipt_check", err, log)
		return nil, false
	}
	if exists {
		o.skipReceipt(ctx, run, rt, "receipt exists", log)
		return nil, false
	}

	currency := trade.Currency
	if currency == "" {
		currency = o.cfg.Currency
	}
	rec, err := call(ctx, o.cfg.StoreTimeout, func(ctx context.Context) (*domain.Receipt, error) {
		return o.stores.Receipts.Create(ctx, domain.Receipt{
			QueueID:  run.item.ID,
			MarketID: m.ID,
			GameID:   run.item.GameID,
			UserID:   trade.UserID,
			Type:     rt,
			Amount:   amount,
			Currency: currency,
		})
	})
	if err != nil {
		o.tradeFailure(ctx, run, trade, "receipt_create", err, log)
		return nil, false
	}
	if rec == nil {
		o.skipReceipt(ctx, run, rt, "receipt created concurrently", log)
		return nil, false
	}
	o.metrics.ObserveReceipt(string(rt), string(domain.ReceiptStatusInitiated))
	return rec, true
}

func (o *Orchestrator) skipReceipt(ctx context.Context, run *itemRun, rt domain.ReceiptType, why string, log *slog.Logger) {
	run.res.ReceiptsSkipped++
	o.metrics.ObserveReceipt(string(rt), "SKIPPED")
	log.DebugContext(ctx, "trade already handled", slog.String("receipt_type", string(rt)), slog.String("reason", why))
}

func (o *Orchestrator) duplicatePosition(ctx context.Context, run *itemRun, trade domain.LedgerEntry, rt domain.ReceiptType, log *slog.Logger) {
	run.res.ReceiptsSkipped++
	o.metrics.ObserveReceipt(string(rt), "SKIPPED")
	log.WarnContext(ctx, "second position for user in market left for reconciliation",
		slog.String("receipt_type", string(rt)),
		slog.String("amount", trade.Amount.String()),
	)
	run.report.TradeFailures = append(run.report.TradeFailures, domain.TradeFailure{
		TradeID:  trade.ID,
		MarketID: trade.MarketID,
		UserID:   trade.UserID,
		Amount:   trade.Amount,
		Stage:    "duplicate_position",
		Reason:   "user already has a " + strings.ToLower(string(rt)) + " receipt for this market",
	})
}

func (o *Orchestrator) tradeFailure(ctx context.Context, run *itemRun, trade domain.LedgerEntry, stage string, err error, log *slog.Logger) {
	log.ErrorContext(ctx, "trade settlement failed before receipt",
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
	run.report.TradeFailures = append(run.report.TradeFailures, domain.TradeFailure{
		TradeID:  trade.ID,
		MarketID: trade.MarketID,
		UserID:   trade.UserID,
		Amount:   trade.Amount,
		Stage:    stage,
		Reason:   err.Error(),
	})
}

func (o *Orchestrator) confirmReceipt(ctx context.Context, rec *domain.Receipt, c domain.ReceiptConfirmation, log *slog.Logger) {
	// Money has already moved; the receipt must leave INITIATED in this attempt.
	err := exec(context.WithoutCancel(ctx), o.cfg.StoreTimeout, func(ctx context.Context) error {
		return o.stores.Receipts.Confirm(ctx, rec.ID, c)
	})
	if err != nil {
		// Money has moved; the receipt stays INITIATED and shows up in the
		// reconciliation report.
		log.ErrorContext(ctx, "confirm receipt failed",
			slog.String("receipt_id", rec.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	o.metrics.ObserveReceipt(string(rec.Type), string(domain.ReceiptStatusConfirmed))
}

func (o *Orchestrator) failReceipt(ctx context.Context, run *itemRun, rec *domain.Receipt, cause error, log *slog.Logger) {
	run.res.ReceiptsFailed++
	o.metrics.ObserveReceipt(string(rec.Type), string(domain.ReceiptStatusFailed))
	log.ErrorContext(ctx, "receipt failed",
		slog.String("receipt_id", rec.ID),
		slog.String("receipt_type", string(rec.Type)),
		slog.String("error", cause.Error()),
	)
	err := exec(context.WithoutCancel(ctx), o.cfg.StoreTimeout, func(ctx context.Context) error {
		return o.stores.Receipts.Fail(ctx, rec.ID, cause.Error())
	})
	if err != nil {
		log.ErrorContext(ctx, "mark receipt failed", slog.String("receipt_id", rec.ID), slog.String("error", err.Error()))
	}
}
