package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

// QueueStore implements domain.QueueStore using PostgreSQL.
type QueueStore struct {
	pool *pgxpool.Pool
}

// NewQueueStore creates a new QueueStore backed by the given connection pool.
func NewQueueStore(pool *pgxpool.Pool) *QueueStore {
	return &QueueStore{pool: pool}
}

const queueSelectCols = `id::text, game_id, league, external_game_id, status,
	outcome, reason, attempts, next_attempt_at, locked_by, locked_at,
	created_at, updated_at`

func scanQueueItem(row pgx.Row) (domain.QueueItem, error) {
	var q domain.QueueItem
	var status string
	err := row.Scan(
		&q.ID, &q.GameID, &q.League, &q.ExternalGameID, &status,
		&q.Outcome, &q.Reason, &q.Attempts, &q.NextAttemptAt,
		&q.LockedBy, &q.LockedAt, &q.CreatedAt, &q.UpdatedAt,
	)
	q.Status = domain.QueueStatus(status)
	return q, err
}

// Enqueue inserts a QUEUED item. The partial unique index on active items
// turns a second enqueue for the same game into domain.ErrAlreadyExists.
func (s *QueueStore) Enqueue(ctx context.Context, item domain.NewQueueItem) (domain.QueueItem, error) {
	query := `
		INSERT INTO settlement_queue (game_id, league, external_game_id, outcome, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + queueSelectCols

	q, err := scanQueueItem(s.pool.QueryRow(ctx, query,
		item.GameID, item.League, item.ExternalGameID, item.Outcome, item.Reason,
	))
	if err != nil {
		return domain.QueueItem{}, fmt.Errorf("postgres: enqueue game %s: %w", item.GameID, mapErr(err))
	}
	return q, nil
}

// List returns queue items newest-first, optionally filtered by status and league.
func (s *QueueStore) List(ctx context.Context, filter domain.QueueFilter) ([]domain.QueueItem, error) {
	query := `SELECT ` + queueSelectCols + ` FROM settlement_queue WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.League != "" {
		query += fmt.Sprintf(" AND league = $%d", argIdx)
		args = append(args, filter.League)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list queue: %w", err)
	}
	defer rows.Close()

	var items []domain.QueueItem
	for rows.Next() {
		q, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan queue item: %w", err)
		}
		items = append(items, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list queue rows: %w", err)
	}
	return items, nil
}

// Stats returns item counts grouped by status.
func (s *QueueStore) Stats(ctx context.Context) (domain.QueueStats, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM settlement_queue GROUP BY status`)
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("postgres: queue stats: %w", err)
	}
	defer rows.Close()

	var stats domain.QueueStats
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return domain.QueueStats{}, fmt.Errorf("postgres: scan queue stats: %w", err)
		}
		stats.Add(domain.QueueStatus(status), n)
	}
	if err := rows.Err(); err != nil {
		return domain.QueueStats{}, fmt.Errorf("postgres: queue stats rows: %w", err)
	}
	return stats, nil
}

// ClaimNext claims the oldest eligible item in a single statement. FOR UPDATE
// SKIP LOCKED makes concurrent claimers pick different rows or none at all.
func (s *QueueStore) ClaimNext(ctx context.Context, workerID string) (*domain.QueueItem, error) {
	query := `
		UPDATE settlement_queue
		SET status = 'PROCESSING', locked_by = $1, locked_at = NOW(), updated_at = NOW()
		WHERE id = (
			SELECT id FROM settlement_queue
			WHERE status = 'QUEUED'
			  AND next_attempt_at <= NOW()
			  AND locked_by IS NULL
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		AND status = 'QUEUED'
		RETURNING ` + queueSelectCols

	q, err := scanQueueItem(s.pool.QueryRow(ctx, query, workerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: claim next queue item: %w", err)
	}
	return &q, nil
}

// MarkDone sets status DONE and clears the lock.
func (s *QueueStore) MarkDone(ctx context.Context, id string) error {
	const query = `
		UPDATE settlement_queue
		SET status = 'DONE', locked_by = NULL, locked_at = NULL, updated_at = NOW()
		WHERE id = $1::uuid`
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("postgres: mark queue item %s done: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark queue item %s done: %w", id, domain.ErrNotFound)
	}
	return nil
}

// backoffMinutesParam converts the retry schedule into an int4[] parameter.
func backoffMinutesParam() []int32 {
	out := make([]int32, len(domain.RetryBackoffMinutes))
	for i, m := range domain.RetryBackoffMinutes {
		out[i] = int32(m)
	}
	return out
}

// MarkFailed increments attempts and schedules the next attempt from the
// retry table, clamped at its last entry.
func (s *QueueStore) MarkFailed(ctx context.Context, id string, reason string) error {
	const query = `
		UPDATE settlement_queue
		SET status = 'FAILED',
		    attempts = attempts + 1,
		    reason = $2,
		    next_attempt_at = NOW() + make_interval(mins =>
		        ($3::int4[])[LEAST(attempts + 1, array_length($3::int4[], 1))]),
		    locked_by = NULL,
		    locked_at = NULL,
		    updated_at = NOW()
		WHERE id = $1::uuid`
	tag, err := s.pool.Exec(ctx, query, id, reason, backoffMinutesParam())
	if err != nil {
		return fmt.Errorf("postgres: mark queue item %s failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark queue item %s failed: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ReclaimStale returns PROCESSING items locked before cutoff to QUEUED.
func (s *QueueStore) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
		UPDATE settlement_queue
		SET status = 'QUEUED', locked_by = NULL, locked_at = NULL,
		    reason = 'stale lock reclaimed', updated_at = NOW()
		WHERE status = 'PROCESSING' AND locked_at < $1`
	tag, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: reclaim stale queue items: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RequeueDue moves due FAILED items back to QUEUED, or to SKIPPED once
// maxAttempts is reached.
func (s *QueueStore) RequeueDue(ctx context.Context, maxAttempts int) (int64, int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres: begin requeue: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var skipped int64
	if maxAttempts > 0 {
		tag, err := tx.Exec(ctx, `
			UPDATE settlement_queue
			SET status = 'SKIPPED', reason = 'max attempts exceeded', updated_at = NOW()
			WHERE status = 'FAILED' AND attempts >= $1`, maxAttempts)
		if err != nil {
			return 0, 0, fmt.Errorf("postgres: skip exhausted queue items: %w", err)
		}
		skipped = tag.RowsAffected()
	}

	tag, err := tx.Exec(ctx, `
		UPDATE settlement_queue
		SET status = 'QUEUED', updated_at = NOW()
		WHERE status = 'FAILED' AND next_attempt_at <= NOW()`)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres: requeue due items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("postgres: commit requeue: %w", err)
	}
	return tag.RowsAffected(), skipped, nil
}
