package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/sportsettle/internal/domain"
	"github.com/alanyoungcy/sportsettle/internal/notify"
)

const sweepLockKey = "settlement:sweep"

// SweepResult counts queue items moved by one sweep.
type SweepResult struct {
	Reclaimed int64 `json:"reclaimed"`
	Requeued  int64 `json:"requeued"`
	Skipped   int64 `json:"skipped"`
	LockHeld  bool  `json:"lock_held,omitempty"`
}

// SweeperConfig tunes the sweeper.
type SweeperConfig struct {
	StaleAfter   time.Duration
	MaxAttempts  int
	StoreTimeout time.Duration
}

// Sweeper reclaims items stuck in PROCESSING by crashed workers and returns
// due FAILED items to the queue.
type Sweeper struct {
	queue    domain.QueueStore
	locks    domain.LockManager
	bus      domain.EventBus
	notifier Notifier
	metrics  Recorder
	cfg      SweeperConfig
	now      func() time.Time
	logger   *slog.Logger
}

// SweeperOption configures optional collaborators.
type SweeperOption func(*Sweeper)

// WithSweepLock serialises sweeps across processes.
func WithSweepLock(l domain.LockManager) SweeperOption { return func(s *Sweeper) { s.locks = l } }

func WithSweepEventBus(bus domain.EventBus) SweeperOption { return func(s *Sweeper) { s.bus = bus } }

func WithSweepNotifier(n Notifier) SweeperOption { return func(s *Sweeper) { s.notifier = n } }

func WithSweepRecorder(r Recorder) SweeperOption { return func(s *Sweeper) { s.metrics = r } }

func WithSweepClock(now func() time.Time) SweeperOption { return func(s *Sweeper) { s.now = now } }

// NewSweeper creates a Sweeper. StaleAfter defaults to 15 minutes.
func NewSweeper(queue domain.QueueStore, cfg SweeperConfig, logger *slog.Logger, opts ...SweeperOption) *Sweeper {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 10 * time.Second
	}
	s := &Sweeper{
		queue:   queue,
		cfg:     cfg,
		metrics: nopRecorder{},
		now:     time.Now,
		logger:  logger.With(slog.String("component", "settlement_sweeper")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep runs one pass. When another process holds the sweep lock it returns
// a result with LockHeld set and does nothing.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, sweepLockKey, s.cfg.StaleAfter)
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.DebugContext(ctx, "sweep lock held elsewhere")
			return SweepResult{LockHeld: true}, nil
		}
		if err != nil {
			return SweepResult{}, fmt.Errorf("settlement: acquire sweep lock: %w", err)
		}
		defer unlock()
	}

	var out SweepResult
	cutoff := s.now().Add(-s.cfg.StaleAfter)
	reclaimed, err := call(ctx, s.cfg.StoreTimeout, func(ctx context.Context) (int64, error) {
		return s.queue.ReclaimStale(ctx, cutoff)
	})
	if err != nil {
		return out, fmt.Errorf("settlement: reclaim stale items: %w", err)
	}
	out.Reclaimed = reclaimed

	err = exec(ctx, s.cfg.StoreTimeout, func(ctx context.Context) error {
		var err error
		out.Requeued, out.Skipped, err = s.queue.RequeueDue(ctx, s.cfg.MaxAttempts)
		return err
	})
	if err != nil {
		return out, fmt.Errorf("settlement: requeue due items: %w", err)
	}

	s.metrics.ObserveSweep(out.Reclaimed, out.Requeued, out.Skipped)
	if out.Reclaimed == 0 && out.Requeued == 0 && out.Skipped == 0 {
		return out, nil
	}

	s.logger.InfoContext(ctx, "queue swept",
		slog.Int64("reclaimed", out.Reclaimed),
		slog.Int64("requeued", out.Requeued),
		slog.Int64("skipped", out.Skipped),
	)
	publishEvent(ctx, s.bus, Event{Type: EventQueueSwept, Status: fmt.Sprintf("reclaimed=%d requeued=%d skipped=%d", out.Reclaimed, out.Requeued, out.Skipped), At: s.now()}, s.logger)

	if (out.Reclaimed > 0 || out.Skipped > 0) && s.notifier != nil {
		msg := fmt.Sprintf("reclaimed %d stale item(s), skipped %d exhausted item(s)", out.Reclaimed, out.Skipped)
		if err := s.notifier.Notify(ctx, notify.EventQueueSweep, "Settlement queue sweep", msg); err != nil {
			s.logger.WarnContext(ctx, "notification failed", slog.String("error", err.Error()))
		}
	}
	return out, nil
}
