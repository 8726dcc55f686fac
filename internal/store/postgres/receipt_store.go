package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

// ReceiptStore implements domain.ReceiptStore using PostgreSQL. The unique
// index on (market_id, user_id, receipt_type) is the idempotency guard.
type ReceiptStore struct {
	pool *pgxpool.Pool
}

// NewReceiptStore creates a new ReceiptStore backed by the given connection pool.
func NewReceiptStore(pool *pgxpool.Pool) *ReceiptStore {
	return &ReceiptStore{pool: pool}
}

const receiptSelectCols = `id::text, settlement_queue_id, market_id, game_id, user_id,
	receipt_type, status, amount::text, currency, payout_id, ledger_entry_id, tx_hash,
	initiated_at, confirmed_at, failed_at, failure_reason`

func scanReceipt(row pgx.Row) (domain.Receipt, error) {
	var r domain.Receipt
	var rtype, status, amount string
	if err := row.Scan(
		&r.ID, &r.QueueID, &r.MarketID, &r.GameID, &r.UserID,
		&rtype, &status, &amount, &r.Currency,
		&r.PayoutID, &r.LedgerEntryID, &r.TxHash,
		&r.InitiatedAt, &r.ConfirmedAt, &r.FailedAt, &r.FailureReason,
	); err != nil {
		return domain.Receipt{}, err
	}
	r.Type = domain.ReceiptType(rtype)
	r.Status = domain.ReceiptStatus(status)
	amt, err := parseDecimal(amount)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("amount %q: %w", amount, err)
	}
	r.Amount = amt
	return r, nil
}

// Exists reports whether any receipt, in any status, exists for the triple.
func (s *ReceiptStore) Exists(ctx context.Context, marketID, userID string, receiptType domain.ReceiptType) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM settlement_receipts
			WHERE market_id = $1 AND user_id = $2 AND receipt_type = $3
		)`
	var exists bool
	if err := s.pool.QueryRow(ctx, query, marketID, userID, string(receiptType)).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres: receipt exists %s/%s/%s: %w", marketID, userID, receiptType, err)
	}
	return exists, nil
}

// Create inserts an INITIATED receipt. A unique violation returns (nil, nil).
func (s *ReceiptStore) Create(ctx context.Context, r domain.Receipt) (*domain.Receipt, error) {
	query := `
		INSERT INTO settlement_receipts (
			settlement_queue_id, market_id, game_id, user_id,
			receipt_type, status, amount, currency
		) VALUES ($1, $2, $3, $4, $5, 'INITIATED', $6::numeric, $7)
		RETURNING ` + receiptSelectCols

	created, err := scanReceipt(s.pool.QueryRow(ctx, query,
		r.QueueID, r.MarketID, r.GameID, r.UserID,
		string(r.Type), r.Amount.String(), r.Currency,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: create %s receipt %s/%s: %w", r.Type, r.MarketID, r.UserID, err)
	}
	return &created, nil
}

// Confirm sets status CONFIRMED and merges any references provided.
func (s *ReceiptStore) Confirm(ctx context.Context, id string, c domain.ReceiptConfirmation) error {
	const query = `
		UPDATE settlement_receipts
		SET status = 'CONFIRMED',
		    confirmed_at = NOW(),
		    ledger_entry_id = COALESCE($2, ledger_entry_id),
		    payout_id = COALESCE($3, payout_id),
		    tx_hash = COALESCE($4, tx_hash)
		WHERE id = $1::uuid`
	tag, err := s.pool.Exec(ctx, query, id, c.LedgerEntryID, c.PayoutID, c.TxHash)
	if err != nil {
		return fmt.Errorf("postgres: confirm receipt %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: confirm receipt %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Fail sets status FAILED and records the reason.
func (s *ReceiptStore) Fail(ctx context.Context, id string, reason string) error {
	const query = `
		UPDATE settlement_receipts
		SET status = 'FAILED', failed_at = NOW(), failure_reason = $2
		WHERE id = $1::uuid`
	tag, err := s.pool.Exec(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("postgres: fail receipt %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: fail receipt %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListByMarkets returns every receipt for the given markets.
func (s *ReceiptStore) ListByMarkets(ctx context.Context, marketIDs []string) ([]domain.Receipt, error) {
	if len(marketIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + receiptSelectCols + `
		FROM settlement_receipts
		WHERE market_id = ANY($1)
		ORDER BY initiated_at ASC`
	rows, err := s.pool.Query(ctx, query, marketIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: list receipts by markets: %w", err)
	}
	return collectReceipts(rows)
}

// List returns receipts newest-first, optionally filtered.
func (s *ReceiptStore) List(ctx context.Context, filter domain.ReceiptFilter) ([]domain.Receipt, error) {
	query := `SELECT ` + receiptSelectCols + ` FROM settlement_receipts WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.MarketID != "" {
		query += fmt.Sprintf(" AND market_id = $%d", argIdx)
		args = append(args, filter.MarketID)
		argIdx++
	}

	query += " ORDER BY initiated_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list receipts: %w", err)
	}
	return collectReceipts(rows)
}

func collectReceipts(rows pgx.Rows) ([]domain.Receipt, error) {
	defer rows.Close()
	var out []domain.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan receipt: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: receipts rows: %w", err)
	}
	return out, nil
}
