package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

// GameStore implements domain.GameStore using PostgreSQL.
type GameStore struct {
	pool *pgxpool.Pool
}

// NewGameStore creates a new GameStore backed by the given connection pool.
func NewGameStore(pool *pgxpool.Pool) *GameStore {
	return &GameStore{pool: pool}
}

// GetByID returns a game or domain.ErrNotFound.
func (s *GameStore) GetByID(ctx context.Context, id string) (domain.Game, error) {
	const query = `
		SELECT id, league, COALESCE(external_game_id, ''), status, settled_at
		FROM sports_games WHERE id = $1`
	var g domain.Game
	err := s.pool.QueryRow(ctx, query, id).Scan(&g.ID, &g.League, &g.ExternalGameID, &g.Status, &g.SettledAt)
	if err != nil {
		return domain.Game{}, fmt.Errorf("postgres: get game %s: %w", id, mapErr(err))
	}
	return g, nil
}

// MarkSettled stamps settled_at unless it is already set.
func (s *GameStore) MarkSettled(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE sports_games
		SET settled_at = COALESCE(settled_at, $2), updated_at = NOW()
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("postgres: mark game %s settled: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark game %s settled: %w", id, domain.ErrNotFound)
	}
	return nil
}
