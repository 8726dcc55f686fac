package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

// PayoutStore implements domain.PayoutStore using PostgreSQL.
type PayoutStore struct {
	pool *pgxpool.Pool
}

// NewPayoutStore creates a new PayoutStore backed by the given connection pool.
func NewPayoutStore(pool *pgxpool.Pool) *PayoutStore {
	return &PayoutStore{pool: pool}
}

// Create inserts a payout row for the downstream processor.
func (s *PayoutStore) Create(ctx context.Context, p domain.Payout) (domain.Payout, error) {
	if p.Status == "" {
		p.Status = domain.PayoutStatusQueued
	}
	const query = `
		INSERT INTO payouts (user_id, market_id, amount, currency, status)
		VALUES ($1, $2, $3::numeric, $4, $5)
		RETURNING id::text, created_at`
	err := s.pool.QueryRow(ctx, query,
		p.UserID, p.MarketID, p.Amount.String(), p.Currency, string(p.Status),
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return domain.Payout{}, fmt.Errorf("postgres: create payout %s/%s: %w", p.MarketID, p.UserID, err)
	}
	return p, nil
}
