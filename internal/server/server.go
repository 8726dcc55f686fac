// Package server exposes the settlement admin API over HTTP and a websocket
// feed of settlement events.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/sportsettle/internal/domain"
	"github.com/alanyoungcy/sportsettle/internal/server/handler"
	"github.com/alanyoungcy/sportsettle/internal/server/middleware"
	"github.com/alanyoungcy/sportsettle/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
	// RateLimit is requests per minute per client IP on /api routes; 0 or a
	// nil Limiter disables it.
	RateLimit int
	Limiter   domain.RateLimiter
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Queue    *handler.QueueHandler
	Runs     *handler.RunHandler
	Receipts *handler.ReceiptHandler
	Audit    *handler.AuditHandler
	Metrics  http.Handler
}

// Server is the admin HTTP + websocket server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in CORS, logging, auth
// and, when configured, rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewHandler(cfg, handlers, wsHub, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 5 * time.Minute, // POST /process runs a whole batch
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/settlement/queue", handlers.Queue.ListQueue)
	mux.HandleFunc("GET /api/settlement/queue/stats", handlers.Queue.QueueStats)
	mux.HandleFunc("POST /api/settlement/queue", handlers.Queue.Enqueue)

	mux.HandleFunc("POST /api/settlement/process", handlers.Runs.Process)
	mux.HandleFunc("POST /api/settlement/sweep", handlers.Runs.Sweep)

	mux.HandleFunc("GET /api/settlement/receipts", handlers.Receipts.ListReceipts)
	mux.HandleFunc("GET /api/settlement/reports", handlers.Receipts.ListReports)
	mux.HandleFunc("GET /api/settlement/reports/{path...}", handlers.Receipts.GetReport)

	if handlers.Audit != nil {
		mux.HandleFunc("GET /api/settlement/audit", handlers.Audit.ListAudit)
	}

	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	if cfg.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, time.Minute, logger)(h)
	}
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
