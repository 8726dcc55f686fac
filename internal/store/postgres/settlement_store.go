package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a new SettlementStore backed by the given connection pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// CountByGame returns how many markets of a game already have a settlement row.
func (s *SettlementStore) CountByGame(ctx context.Context, gameID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM market_settlements WHERE game_id = $1`, gameID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count settlements for game %s: %w", gameID, err)
	}
	return n, nil
}

// ExistsForMarket reports whether the market already has a settlement row.
func (s *SettlementStore) ExistsForMarket(ctx context.Context, marketID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM market_settlements WHERE market_id = $1)`, marketID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: settlement exists for market %s: %w", marketID, err)
	}
	return exists, nil
}

// Create inserts the settlement row; the unique market_id index maps a second
// insert to domain.ErrAlreadyExists.
func (s *SettlementStore) Create(ctx context.Context, ms domain.MarketSettlement) error {
	settledBy := ms.SettledBy
	if settledBy == "" {
		settledBy = domain.SettledBySystem
	}
	const query = `
		INSERT INTO market_settlements (
			market_id, game_id, outcome, total_volume, total_payouts, payout_count, settled_by
		) VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7)`
	_, err := s.pool.Exec(ctx, query,
		ms.MarketID, ms.GameID, ms.Outcome,
		ms.TotalVolume.String(), ms.TotalPayouts.String(), ms.PayoutCount, settledBy,
	)
	if err != nil {
		return fmt.Errorf("postgres: create settlement for market %s: %w", ms.MarketID, mapErr(err))
	}
	return nil
}
