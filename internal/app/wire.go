package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/sportsettle/internal/blob/s3"
	"github.com/alanyoungcy/sportsettle/internal/cache/redis"
	"github.com/alanyoungcy/sportsettle/internal/config"
	"github.com/alanyoungcy/sportsettle/internal/domain"
	"github.com/alanyoungcy/sportsettle/internal/metrics"
	"github.com/alanyoungcy/sportsettle/internal/notify"
	"github.com/alanyoungcy/sportsettle/internal/server/handler"
	"github.com/alanyoungcy/sportsettle/internal/settlement"
	"github.com/alanyoungcy/sportsettle/internal/store/memory"
	"github.com/alanyoungcy/sportsettle/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency the run modes need.
// Optional collaborators (Locks, Limiter, Archive) are nil when their backend
// is disabled.
type Dependencies struct {
	Stores settlement.Stores

	Cache   domain.Cache
	Bus     domain.EventBus
	Locks   domain.LockManager
	Limiter domain.RateLimiter
	Archive domain.ReportArchive

	Notifier *notify.Notifier
	Metrics  *metrics.Metrics

	// Checks pings each external backend for /api/health.
	Checks map[string]handler.Check
}

// Wire constructs all dependencies from cfg and returns them with a cleanup
// function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Checks:  make(map[string]handler.Check),
	}

	// --- Stores ---
	switch cfg.Database.Backend {
	case "memory":
		logger.WarnContext(ctx, "using in-memory stores; all settlement state is lost on exit")
		deps.Stores = memoryStores(memory.NewDB())
	default:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pgClient.Pool()
		deps.Stores = settlement.Stores{
			Queue:       postgres.NewQueueStore(pool),
			Games:       postgres.NewGameStore(pool),
			Markets:     postgres.NewMarketStore(pool),
			Ledger:      postgres.NewLedgerStore(pool),
			Receipts:    postgres.NewReceiptStore(pool),
			Settlements: postgres.NewSettlementStore(pool),
			Payouts:     postgres.NewPayoutStore(pool),
			Audit:       postgres.NewAuditStore(pool),
		}
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.Cache = redis.NewCache(rc)
		deps.Bus = redis.NewEventBus(rc, cfg.Redis.StreamLen)
		deps.Locks = redis.NewLockManager(rc)
		deps.Limiter = redis.NewRateLimiter(rc)
		deps.Checks["redis"] = rc.Ping
	} else {
		// Single-process fallbacks: events stay in-process and sweeps are not
		// serialised across replicas.
		deps.Cache = memory.NewCache(time.Now)
		deps.Bus = memory.NewBus()
	}

	// --- S3 report archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			return fail("s3", err)
		}
		deps.Archive = s3blob.NewClientReportArchive(s3Client, cfg.S3.PartSize)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

func memoryStores(db *memory.DB) settlement.Stores {
	st := db.Stores()
	return settlement.Stores{
		Queue:       st.Queue,
		Games:       st.Games,
		Markets:     st.Markets,
		Ledger:      st.Ledger,
		Receipts:    st.Receipts,
		Settlements: st.Settlements,
		Payouts:     st.Payouts,
		Audit:       st.Audit,
	}
}
