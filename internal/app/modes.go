package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/sportsettle/internal/scheduler"
	"github.com/alanyoungcy/sportsettle/internal/server"
	"github.com/alanyoungcy/sportsettle/internal/server/handler"
	"github.com/alanyoungcy/sportsettle/internal/server/ws"
)

const shutdownTimeout = 30 * time.Second

// WorkerMode runs the scheduled batch driver and sweeper without the HTTP
// server.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies, eng *engine) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startScheduler(ctx, g, eng); err != nil {
		return fmt.Errorf("worker mode: %w", err)
	}
	return g.Wait()
}

// ServerMode serves the admin API and websocket feed only. Batches run when
// an operator calls POST /api/settlement/process.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies, eng *engine) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, eng)
	return g.Wait()
}

// OnceMode sweeps once, drains up to max_items and returns. It suits an
// external cron or a serverless invocation.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies, eng *engine) error {
	a.logger.InfoContext(ctx, "starting once mode")

	if _, err := eng.sweeper.Sweep(ctx); err != nil {
		a.logger.WarnContext(ctx, "once mode: sweep failed", slog.String("error", err.Error()))
	}
	res := eng.driver.ProcessAll(ctx, a.cfg.Settlement.MaxItems)
	if res.Failed > 0 {
		return fmt.Errorf("once mode: %d of %d items failed", res.Failed, res.Processed)
	}
	return nil
}

// FullMode runs the scheduler and, when enabled, the HTTP server together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies, eng *engine) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startScheduler(ctx, g, eng); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, eng)
	}
	return g.Wait()
}

// startScheduler registers the batch and sweep jobs and runs the cron in g.
func (a *App) startScheduler(ctx context.Context, g *errgroup.Group, eng *engine) error {
	sched := scheduler.New(a.logger)
	maxItems := a.cfg.Settlement.MaxItems

	if err := sched.Add("process_settlements", a.cfg.Settlement.Cron, func(ctx context.Context) error {
		res := eng.driver.ProcessAll(ctx, maxItems)
		if res.Failed > 0 {
			return fmt.Errorf("%d of %d items failed", res.Failed, res.Processed)
		}
		return nil
	}); err != nil {
		return err
	}
	if err := sched.Add("sweep_queue", a.cfg.Settlement.SweepCron, func(ctx context.Context) error {
		_, err := eng.sweeper.Sweep(ctx)
		return err
	}); err != nil {
		return err
	}

	g.Go(func() error {
		return sched.Run(ctx)
	})
	return nil
}

// startHTTPServer starts the websocket hub and admin server in g and shuts the
// server down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engine) {
	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		WorkerID:       eng.workerID,
		StartedAt:      time.Now().UTC(),
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(deps.Checks, a.logger),
		Queue:    handler.NewQueueHandler(deps.Stores.Queue, deps.Cache, a.cfg.Redis.StatsTTL.Duration, deps.Metrics, a.logger),
		Runs:     handler.NewRunHandler(eng.driver, eng.sweeper, a.cfg.Settlement.MaxItems, a.logger),
		Receipts: handler.NewReceiptHandler(deps.Stores.Receipts, deps.Archive, a.logger),
		Audit:    handler.NewAuditHandler(deps.Stores.Audit, a.logger),
		Metrics:  deps.Metrics.Handler(),
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		Limiter:     deps.Limiter,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
}
