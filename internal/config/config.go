// Package config defines the settlement service configuration and its
// validation rules.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// Config is the root configuration. Fields are populated from a TOML file and
// then overridden by SETTLE_* environment variables.
type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Settlement SettlementConfig `toml:"settlement"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// DatabaseConfig selects the store backend and holds PostgreSQL parameters.
type DatabaseConfig struct {
	// Backend is "postgres" or "memory". The memory backend loses all state on
	// exit and exists for local runs.
	Backend       string `toml:"backend"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	StatsTTL   Duration `toml:"stats_ttl"`
	StreamLen  int64    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters for reconciliation
// reports.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	PartSize       int64  `toml:"part_size"`
}

// SettlementConfig tunes the worker, sweeper and payout policy.
type SettlementConfig struct {
	// WorkerID defaults to "settled-<hostname>-<random>" when empty.
	WorkerID       string   `toml:"worker_id"`
	MaxItems       int      `toml:"max_items"`
	Cron           string   `toml:"cron"`
	SweepCron      string   `toml:"sweep_cron"`
	StaleLockAfter Duration `toml:"stale_lock_after"`
	StoreTimeout   Duration `toml:"store_timeout"`
	// MaxAttempts caps retries; 0 retries forever.
	MaxAttempts      int    `toml:"max_attempts"`
	Currency         string `toml:"currency"`
	FeeRate          string `toml:"fee_rate"`
	PayoutMultiplier string `toml:"payout_multiplier"`
}

// Duration wraps time.Duration so TOML strings like "15m" decode.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds admin HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards every /api/settlement route. Empty disables auth.
	APIKey string `toml:"api_key"`
	// RateLimit is requests per minute per client on /api routes; 0 disables
	// it. Enforced only when redis is enabled.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with the values in config.example.toml.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Backend:       "postgres",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "settle:",
			StatsTTL:   Duration{5 * time.Second},
			StreamLen:  10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "settlement-reports",
			ForcePathStyle: true,
			PartSize:       5 * 1024 * 1024,
		},
		Settlement: SettlementConfig{
			MaxItems:         50,
			Cron:             "0 */1 * * * *",
			SweepCron:        "30 */5 * * * *",
			StaleLockAfter:   Duration{15 * time.Minute},
			StoreTimeout:     Duration{10 * time.Second},
			Currency:         "USD",
			FeeRate:          "0.025",
			PayoutMultiplier: "2",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   120,
		},
		Notify: NotifyConfig{
			Events: []string{"settlement_failed", "safety_violation", "reconciliation_required", "queue_sweep"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"worker": true,
	"server": true,
	"once":   true,
	"full":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks cross-field rules and returns every violation at once.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: worker, server, once, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	switch c.Database.Backend {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			if c.Database.Host == "" {
				errs = append(errs, "database: host must not be empty (or set database.dsn)")
			}
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
			}
			if c.Database.Database == "" {
				errs = append(errs, "database: database must not be empty")
			}
		}
		if c.Database.PoolMaxConns < 1 {
			errs = append(errs, "database: pool_max_conns must be >= 1")
		}
		if c.Database.PoolMinConns < 0 {
			errs = append(errs, "database: pool_min_conns must be >= 0")
		}
		if c.Database.PoolMinConns > c.Database.PoolMaxConns {
			errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("database: unknown backend %q (valid: postgres, memory)", c.Database.Backend))
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	s := c.Settlement
	if s.MaxItems < 1 {
		errs = append(errs, "settlement: max_items must be >= 1")
	}
	if s.MaxAttempts < 0 {
		errs = append(errs, "settlement: max_attempts must be >= 0")
	}
	if s.StoreTimeout.Duration <= 0 {
		errs = append(errs, "settlement: store_timeout must be > 0")
	}
	if s.StaleLockAfter.Duration <= 0 {
		errs = append(errs, "settlement: stale_lock_after must be > 0")
	}
	if s.StaleLockAfter.Duration <= s.StoreTimeout.Duration {
		errs = append(errs, "settlement: stale_lock_after must exceed store_timeout")
	}
	for name, spec := range map[string]string{"cron": s.Cron, "sweep_cron": s.SweepCron} {
		if _, err := cronParser.Parse(spec); err != nil {
			errs = append(errs, fmt.Sprintf("settlement: %s %q: %v", name, spec, err))
		}
	}
	if len(s.Currency) != 3 {
		errs = append(errs, fmt.Sprintf("settlement: currency must be a 3-letter code, got %q", s.Currency))
	}
	if fee, err := decimal.NewFromString(s.FeeRate); err != nil || fee.IsNegative() || fee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Sprintf("settlement: fee_rate must be a decimal in [0, 1), got %q", s.FeeRate))
	}
	if m, err := decimal.NewFromString(s.PayoutMultiplier); err != nil || !m.IsPositive() {
		errs = append(errs, fmt.Sprintf("settlement: payout_multiplier must be a positive decimal, got %q", s.PayoutMultiplier))
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
