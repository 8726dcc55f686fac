package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketSelectCols = `id, sports_game_id, sportsdata_game_id, league, market_status,
	game_status, final_outcome, is_locked, lock_reason, locked_at`

func scanMarketRows(rows pgx.Rows) ([]domain.Market, error) {
	defer rows.Close()
	var markets []domain.Market
	for rows.Next() {
		var m domain.Market
		var status string
		if err := rows.Scan(
			&m.ID, &m.SportsGameID, &m.SportsDataGameID, &m.League, &status,
			&m.GameStatus, &m.FinalOutcome, &m.IsLocked, &m.LockReason, &m.LockedAt,
		); err != nil {
			return nil, err
		}
		m.Status = domain.MarketStatus(status)
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// ListByGame returns markets referencing the internal game id.
func (s *MarketStore) ListByGame(ctx context.Context, gameID string) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE sports_game_id = $1 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets for game %s: %w", gameID, err)
	}
	markets, err := scanMarketRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan markets for game %s: %w", gameID, err)
	}
	return markets, nil
}

// ListByExternalGame returns markets keyed by the legacy provider id and league.
func (s *MarketStore) ListByExternalGame(ctx context.Context, externalGameID, league string) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + `
		FROM markets WHERE sportsdata_game_id = $1 AND league = $2 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, externalGameID, league)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets for external game %s/%s: %w", league, externalGameID, err)
	}
	markets, err := scanMarketRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan markets for external game %s/%s: %w", league, externalGameID, err)
	}
	return markets, nil
}

// Lock sets is_locked with the given reason.
func (s *MarketStore) Lock(ctx context.Context, id string, reason string, at time.Time) error {
	const query = `
		UPDATE markets
		SET is_locked = TRUE, lock_reason = $2, locked_at = $3, updated_at = NOW()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, reason, at)
	if err != nil {
		return fmt.Errorf("postgres: lock market %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: lock market %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Resolve moves a market to its terminal status.
func (s *MarketStore) Resolve(ctx context.Context, id string, status domain.MarketStatus, outcome string) error {
	const query = `
		UPDATE markets
		SET market_status = $2, game_status = $3, final_outcome = $4, updated_at = NOW()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, string(status), domain.GameStatusFinal, outcome)
	if err != nil {
		return fmt.Errorf("postgres: resolve market %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: resolve market %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
