// Package settlement resolves markets of finished games and pays or refunds
// every participant at most once.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/sportsettle/internal/domain"
	"github.com/alanyoungcy/sportsettle/internal/notify"
)

// Stores groups the persistence dependencies of the orchestrator. Audit is
// optional.
type Stores struct {
	Queue       domain.QueueStore
	Games       domain.GameStore
	Markets     domain.MarketStore
	Ledger      domain.LedgerStore
	Receipts    domain.ReceiptStore
	Settlements domain.SettlementStore
	Payouts     domain.PayoutStore
	Audit       domain.AuditStore
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Recorder receives settlement metrics.
type Recorder interface {
	ObserveItem(success bool, d time.Duration)
	ObserveReceipt(receiptType, status string)
	AddAmount(receiptType, currency string, amount decimal.Decimal)
	ObserveMarket(status string)
	SafetyViolation()
	Reconciliation()
	ObserveSweep(reclaimed, requeued, skipped int64)
}

// Config tunes the orchestrator.
type Config struct {
	WorkerID     string
	StoreTimeout time.Duration
	Currency     string
	Policy       PayoutPolicy
}

// Option configures optional collaborators.
type Option func(*Orchestrator)

func WithEventBus(bus domain.EventBus) Option { return func(o *Orchestrator) { o.bus = bus } }

func WithNotifier(n Notifier) Option { return func(o *Orchestrator) { o.notifier = n } }

func WithArchive(a domain.ReportArchive) Option { return func(o *Orchestrator) { o.archive = a } }

func WithRecorder(r Recorder) Option { return func(o *Orchestrator) { o.metrics = r } }

// WithClock overrides the time source used for lock and settlement stamps.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// Orchestrator settles one queue item at a time.
type Orchestrator struct {
	stores   Stores
	cfg      Config
	bus      domain.EventBus
	notifier Notifier
	archive  domain.ReportArchive
	metrics  Recorder
	now      func() time.Time
	logger   *slog.Logger
}

// NewOrchestrator builds an orchestrator. Zero config values fall back to
// defaults: a 10s store timeout, USD and DefaultPayoutPolicy.
func NewOrchestrator(stores Stores, cfg Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 10 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.Policy.Multiplier.IsZero() {
		cfg.Policy = DefaultPayoutPolicy()
	}
	o := &Orchestrator{
		stores:  stores,
		cfg:     cfg,
		metrics: nopRecorder{},
		now:     time.Now,
		logger:  logger.With(slog.String("component", "settlement"), slog.String("worker_id", cfg.WorkerID)),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Result describes the outcome of one ProcessSettlement call.
type Result struct {
	QueueID         string                       `json:"queue_id"`
	GameID          string                       `json:"game_id"`
	Success         bool                         `json:"success"`
	Outcome         string                       `json:"outcome,omitempty"`
	MarketsSettled  int                          `json:"markets_settled"`
	PayoutsCreated  int                          `json:"payouts_created"`
	RefundsCreated  int                          `json:"refunds_created"`
	ReceiptsSkipped int                          `json:"receipts_skipped"`
	ReceiptsFailed  int                          `json:"receipts_failed"`
	TotalPayouts    decimal.Decimal              `json:"total_payouts"`
	TotalRefunds    decimal.Decimal              `json:"total_refunds"`
	Reconciliation  *domain.ReconciliationReport `json:"reconciliation,omitempty"`
	Err             error                        `json:"-"`
	Error           string                       `json:"error,omitempty"`
}

// ProcessSettlement runs the settlement state machine for a claimed item.
// Errors never escape: the item is marked FAILED with backoff and the error
// is carried in the result.
//
// Once started, an item runs to completion even if ctx is cancelled: stopping
// between a market's resolve and its payouts would strand unpaid winners on a
// terminal market. Every store call stays bounded by StoreTimeout, and the
// driver checks ctx between items.
func (o *Orchestrator) ProcessSettlement(ctx context.Context, item domain.QueueItem) Result {
	ctx = context.WithoutCancel(ctx)
	start := o.now()
	res := Result{QueueID: item.ID, GameID: item.GameID, TotalPayouts: decimal.Zero, TotalRefunds: decimal.Zero}
	log := o.logger.With(slog.String("queue_id", item.ID), slog.String("game_id", item.GameID))

	if err := o.settle(ctx, item, &res, log); err != nil {
		res.Success = false
		res.Err = err
		res.Error = err.Error()
		log.ErrorContext(ctx, "settlement failed",
			slog.Int("attempts", item.Attempts),
			slog.String("error", err.Error()),
		)
		o.markFailed(ctx, item, err, log)
		title, msg := notify.FailureMessage(item, err)
		o.alert(ctx, notify.EventSettlementFailed, title, msg, log)
		o.publish(ctx, Event{Type: EventItemFailed, QueueID: item.ID, GameID: item.GameID, Error: res.Error, At: o.now()}, log)
	} else {
		res.Success = true
		log.InfoContext(ctx, "settlement complete",
			slog.String("outcome", res.Outcome),
			slog.Int("markets_settled", res.MarketsSettled),
			slog.Int("payouts", res.PayoutsCreated),
			slog.Int("refunds", res.RefundsCreated),
			slog.Int("skipped", res.ReceiptsSkipped),
			slog.Int("failed", res.ReceiptsFailed),
			slog.String("total_payouts", res.TotalPayouts.String()),
			slog.String("total_refunds", res.TotalRefunds.String()),
		)
		o.publish(ctx, Event{Type: EventItemCompleted, QueueID: item.ID, GameID: item.GameID, Outcome: res.Outcome, Result: &res, At: o.now()}, log)
	}

	o.metrics.ObserveItem(res.Success, o.now().Sub(start))
	return res
}

func (o *Orchestrator) markFailed(ctx context.Context, item domain.QueueItem, cause error, log *slog.Logger) {
	// The caller's context may be the reason we failed; record the failure anyway.
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.StoreTimeout)
	defer cancel()
	if err := o.stores.Queue.MarkFailed(mctx, item.ID, cause.Error()); err != nil {
		log.ErrorContext(ctx, "mark queue item failed", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) settle(ctx context.Context, item domain.QueueItem, res *Result, log *slog.Logger) error {
	game, err := call(ctx, o.cfg.StoreTimeout, func(ctx context.Context) (domain.Game, error) {
		return o.stores.Games.GetByID(ctx, item.GameID)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrGameNotFound, item.GameID)
	}
	if err != nil {
		return fmt.Errorf("load game: %w", err)
	}

	if game.SettledAt != nil {
		n, err := o.countSettlements(ctx, game.ID)
		if err != nil {
			log.WarnContext(ctx, "count existing settlements", slog.String("error", err.Error()))
		}
		res.MarketsSettled = n
		log.InfoContext(ctx, "game already settled", slog.Time("settled_at", *game.SettledAt))
		return o.markDone(ctx, item)
	}

	existing, err := o.countSettlements(ctx, game.ID)
	if err != nil {
		return fmt.Errorf("count settlements: %w", err)
	}
	if existing > 0 {
		log.InfoContext(ctx, "settlements already exist for game", slog.Int("count", existing))
		if err := o.stampGame(ctx, game.ID); err != nil {
			return err
		}
		res.MarketsSettled = existing
		return o.markDone(ctx, item)
	}

	markets, err := o.resolveMarkets(ctx, item, game)
	if err != nil {
		return err
	}
	if len(markets) == 0 {
		log.InfoContext(ctx, "no markets for game")
		if err := o.stampGame(ctx, game.ID); err != nil {
			return err
		}
		return o.markDone(ctx, item)
	}

	for i := range markets {
		if markets[i].IsLocked {
			continue
		}
		if err := o.forceLock(ctx, item, &markets[i], log); err != nil {
			return err
		}
	}

	outcome := domain.ResolveOutcome(item.Outcome)
	cancellation := domain.IsCancellation(outcome)
	res.Outcome = outcome

	report := domain.ReconciliationReport{QueueID: item.ID, GameID: game.ID, Outcome: outcome}
	run := &itemRun{item: item, outcome: outcome, cancellation: cancellation, res: res, report: &report}

	for _, m := range markets {
		mlog := log.With(slog.String("market_id", m.ID))
		if err := o.settleMarket(ctx, run, m, mlog); err != nil {
			mlog.ErrorContext(ctx, "market settlement failed", slog.String("error", err.Error()))
			report.MarketFailures = append(report.MarketFailures, domain.MarketFailure{MarketID: m.ID, Reason: err.Error()})
		}
	}

	if err := o.stampGame(ctx, game.ID); err != nil {
		return err
	}

	o.reconcile(ctx, markets, &report, res, log)

	return o.markDone(ctx, item)
}

// resolveMarkets looks markets up by internal game id, then by the legacy
// provider id and league.
func (o *Orchestrator) resolveMarkets(ctx context.Context, item domain.QueueItem, game domain.Game) ([]domain.Market, error) {
	markets, err := call(ctx, o.cfg.StoreTimeout, func(ctx context.Context) ([]domain.Market, error) {
		return o.stores.Markets.ListByGame(ctx, game.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	if len(markets) > 0 {
		return markets, nil
	}

	extID := firstNonEmpty(item.ExternalGameID, game.ExternalGameID)
	league := firstNonEmpty(item.League, game.League)
	if extID == "" {
		return nil, nil
	}
	markets, err = call(ctx, o.cfg.StoreTimeout, func(ctx context.Context) ([]domain.Market, error) {
		return o.stores.Markets.ListByExternalGame(ctx, extID, league)
	})
	if err != nil {
		return nil, fmt.Errorf("list markets by external id: %w", err)
	}
	return markets, nil
}

func (o *Orchestrator) forceLock(ctx context.Context, item domain.QueueItem, m *domain.Market, log *slog.Logger) error {
	at := o.now()
	err := exec(ctx, o.cfg.StoreTimeout, func(ctx context.Context) error {
		return o.stores.Markets.Lock(ctx, m.ID, domain.LockReasonSettlementSafety, at)
	})
	if err != nil {
		return fmt.Errorf("lock market %s: %w", m.ID, err)
	}
	reason := domain.LockReasonSettlementSafety
	m.IsLocked = true
	m.LockReason = &reason
	m.LockedAt = &at

	log.WarnContext(ctx, "unlocked market at settlement time, force-locked",
		slog.String("event", "safety_violation"),
		slog.String("market_id", m.ID),
	)
	o.metrics.SafetyViolation()
	o.audit(ctx, "settlement.safety_violation", map[string]any{
		"settlement_queue_id": item.ID,
		"game_id":             item.GameID,
		"market_id":           m.ID,
		"lock_reason":         reason,
	}, log)
	title, msg := notify.SafetyMessage(item, *m)
	o.alert(ctx, notify.EventSafetyViolation, title, msg, log)
	return nil
}

func (o *Orchestrator) countSettlements(ctx context.Context, gameID string) (int, error) {
	return call(ctx, o.cfg.StoreTimeout, func(ctx context.Context) (int, error) {
		return o.stores.Settlements.CountByGame(ctx, gameID)
	})
}

func (o *Orchestrator) stampGame(ctx context.Context, gameID string) error {
	at := o.now()
	if err := exec(ctx, o.cfg.StoreTimeout, func(ctx context.Context) error {
		return o.stores.Games.MarkSettled(ctx, gameID, at)
	}); err != nil {
		return fmt.Errorf("stamp game settled: %w", err)
	}
	return nil
}

func (o *Orchestrator) markDone(ctx context.Context, item domain.QueueItem) error {
	if err := exec(ctx, o.cfg.StoreTimeout, func(ctx context.Context) error {
		return o.stores.Queue.MarkDone(ctx, item.ID)
	}); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	return nil
}

func (o *Orchestrator) audit(ctx context.Context, event string, detail map[string]any, log *slog.Logger) {
	if o.stores.Audit == nil {
		return
	}
	if err := exec(ctx, o.cfg.StoreTimeout, func(ctx context.Context) error {
		return o.stores.Audit.Log(ctx, event, detail)
	}); err != nil {
		log.WarnContext(ctx, "audit log write failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) alert(ctx context.Context, event, title, msg string, log *slog.Logger) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, event, title, msg); err != nil {
		log.WarnContext(ctx, "notification failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

func exec(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

type nopRecorder struct{}

func (nopRecorder) ObserveItem(bool, time.Duration) {}
func (nopRecorder) ObserveReceipt(string, string) {}
func (nopRecorder) AddAmount(string, string, decimal.Decimal) {}
func (nopRecorder) ObserveMarket(string) {}
func (nopRecorder) SafetyViolation() {}
func (nopRecorder) Reconciliation() {}
func (nopRecorder) ObserveSweep(int64, int64, int64) {}
