// Package app wires the settlement engine's dependencies and starts the
// goroutines for the configured run mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/alanyoungcy/sportsettle/internal/config"
	"github.com/alanyoungcy/sportsettle/internal/settlement"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// engine is the settlement pipeline built on top of Dependencies.
type engine struct {
	workerID     string
	orchestrator *settlement.Orchestrator
	driver       *settlement.Driver
	sweeper      *settlement.Sweeper
}

// Run wires dependencies, builds the settlement engine and blocks in the
// selected mode until ctx is cancelled (or, in "once" mode, the batch ends).
func (a *App) Run(ctx context.Context) error {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	eng, err := a.buildEngine(deps)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("worker_id", eng.workerID),
		slog.String("database", a.cfg.Database.Backend),
		slog.Bool("redis", a.cfg.Redis.Enabled),
		slog.Bool("s3", a.cfg.S3.Enabled),
	)

	switch strings.ToLower(a.cfg.Mode) {
	case "worker":
		return a.WorkerMode(ctx, deps, eng)
	case "server":
		return a.ServerMode(ctx, deps, eng)
	case "once":
		return a.OnceMode(ctx, deps, eng)
	case "full":
		return a.FullMode(ctx, deps, eng)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

func (a *App) buildEngine(deps *Dependencies) (*engine, error) {
	s := a.cfg.Settlement

	policy, err := settlement.ParsePayoutPolicy(s.PayoutMultiplier, s.FeeRate)
	if err != nil {
		return nil, fmt.Errorf("payout policy: %w", err)
	}

	workerID := s.WorkerID
	if workerID == "" {
		workerID = defaultWorkerID()
	}

	orch := settlement.NewOrchestrator(deps.Stores, settlement.Config{
		WorkerID:     workerID,
		StoreTimeout: s.StoreTimeout.Duration,
		Currency:     s.Currency,
		Policy:       policy,
	}, a.logger,
		settlement.WithEventBus(deps.Bus),
		settlement.WithNotifier(deps.Notifier),
		settlement.WithArchive(deps.Archive),
		settlement.WithRecorder(deps.Metrics),
	)

	sweepOpts := []settlement.SweeperOption{
		settlement.WithSweepEventBus(deps.Bus),
		settlement.WithSweepNotifier(deps.Notifier),
		settlement.WithSweepRecorder(deps.Metrics),
	}
	if deps.Locks != nil {
		sweepOpts = append(sweepOpts, settlement.WithSweepLock(deps.Locks))
	}

	return &engine{
		workerID:     workerID,
		orchestrator: orch,
		driver:       settlement.NewDriver(deps.Stores.Queue, orch, workerID, s.StoreTimeout.Duration, a.logger),
		sweeper: settlement.NewSweeper(deps.Stores.Queue, settlement.SweeperConfig{
			StaleAfter:   s.StaleLockAfter.Duration,
			MaxAttempts:  s.MaxAttempts,
			StoreTimeout: s.StoreTimeout.Duration,
		}, a.logger, sweepOpts...),
	}, nil
}

// defaultWorkerID is "settled-<hostname>-<8 hex>" so replicas on one host stay
// distinguishable in locked_by.
func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return "settled-" + host + "-" + uuid.NewString()[:8]
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
