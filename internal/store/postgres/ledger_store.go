package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL. Entries are
// append-only.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// ListByMarket returns entries of one type for a market, oldest first.
func (s *LedgerStore) ListByMarket(ctx context.Context, marketID string, entryType domain.EntryType) ([]domain.LedgerEntry, error) {
	const query = `
		SELECT id::text, user_id, market_id, entry_type, direction, amount::text,
		       currency, reference_id, meta, created_at
		FROM ledger_entries
		WHERE market_id = $1 AND entry_type = $2
		ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, marketID, string(entryType))
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s entries for market %s: %w", entryType, marketID, err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var etype, dir, amount string
		var metaJSON []byte
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.MarketID, &etype, &dir, &amount,
			&e.Currency, &e.ReferenceID, &metaJSON, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger entry: %w", err)
		}
		e.EntryType = domain.EntryType(etype)
		e.Direction = domain.Direction(dir)
		if e.Amount, err = parseDecimal(amount); err != nil {
			return nil, fmt.Errorf("postgres: ledger entry %s amount %q: %w", e.ID, amount, err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &e.Meta); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal ledger meta %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list ledger entries rows: %w", err)
	}
	return entries, nil
}

// Insert appends a new entry and returns it with its generated id.
func (s *LedgerStore) Insert(ctx context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error) {
	metaJSON, err := json.Marshal(e.Meta)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("postgres: marshal ledger meta: %w", err)
	}

	const query = `
		INSERT INTO ledger_entries (
			user_id, market_id, entry_type, direction, amount, currency, reference_id, meta
		) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)
		RETURNING id::text, created_at`

	err = s.pool.QueryRow(ctx, query,
		e.UserID, e.MarketID, string(e.EntryType), string(e.Direction),
		e.Amount.String(), e.Currency, e.ReferenceID, metaJSON,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("postgres: insert %s entry %s: %w", e.EntryType, e.ReferenceID, mapErr(err))
	}
	return e, nil
}
