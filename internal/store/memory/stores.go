package memory

import (
	"context"
	"strings"
	"time"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

// GameStore implements domain.GameStore.
type GameStore struct {
	db *DB
}

func (s *GameStore) GetByID(_ context.Context, id string) (domain.Game, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	g, ok := s.db.games[id]
	if !ok {
		return domain.Game{}, domain.ErrNotFound
	}
	return *g, nil
}

func (s *GameStore) MarkSettled(_ context.Context, id string, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	g, ok := s.db.games[id]
	if !ok {
		return domain.ErrNotFound
	}
	if g.SettledAt == nil {
		t := at
		g.SettledAt = &t
	}
	return nil
}

// MarketStore implements domain.MarketStore.
type MarketStore struct {
	db *DB
}

func (s *MarketStore) list(match func(*domain.Market) bool) []domain.Market {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []domain.Market
	for _, id := range s.db.marketOrder {
		if m := s.db.markets[id]; match(m) {
			out = append(out, *m)
		}
	}
	return out
}

func (s *MarketStore) ListByGame(_ context.Context, gameID string) ([]domain.Market, error) {
	return s.list(func(m *domain.Market) bool {
		return m.SportsGameID != nil && *m.SportsGameID == gameID
	}), nil
}

func (s *MarketStore) ListByExternalGame(_ context.Context, externalGameID, league string) ([]domain.Market, error) {
	return s.list(func(m *domain.Market) bool {
		return m.SportsDataGameID != nil && *m.SportsDataGameID == externalGameID && m.League == league
	}), nil
}

func (s *MarketStore) Lock(_ context.Context, id string, reason string, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m, ok := s.db.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	r, t := reason, at
	m.IsLocked = true
	m.LockReason = &r
	m.LockedAt = &t
	return nil
}

func (s *MarketStore) Resolve(_ context.Context, id string, status domain.MarketStatus, outcome string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m, ok := s.db.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	o := outcome
	m.Status = status
	m.GameStatus = domain.GameStatusFinal
	m.FinalOutcome = &o
	return nil
}

// LedgerStore implements domain.LedgerStore.
type LedgerStore struct {
	db *DB
}

func (s *LedgerStore) ListByMarket(_ context.Context, marketID string, entryType domain.EntryType) ([]domain.LedgerEntry, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range s.db.ledger {
		if e.MarketID == marketID && e.EntryType == entryType {
			out = append(out, e)
		}
	}
	return out, nil
}

// Insert appends an entry. reference_id is unique as in the SQL schema.
func (s *LedgerStore) Insert(_ context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if e.ReferenceID == "" {
		e.ReferenceID = newID()
	}
	if _, dup := s.db.ledgerRefs[e.ReferenceID]; dup {
		return domain.LedgerEntry{}, domain.ErrAlreadyExists
	}
	if e.ID == "" {
		e.ID = newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.db.now()
	}
	s.db.ledgerRefs[e.ReferenceID] = struct{}{}
	s.db.ledger = append(s.db.ledger, e)
	return e, nil
}

// ReceiptStore implements domain.ReceiptStore.
type ReceiptStore struct {
	db *DB
}

func (s *ReceiptStore) Exists(_ context.Context, marketID, userID string, rt domain.ReceiptType) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	_, ok := s.db.receiptKeys[receiptKey{marketID, userID, rt}]
	return ok, nil
}

func (s *ReceiptStore) Create(_ context.Context, r domain.Receipt) (*domain.Receipt, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	key := receiptKey{r.MarketID, r.UserID, r.Type}
	if _, dup := s.db.receiptKeys[key]; dup {
		return nil, nil
	}
	r.ID = newID()
	r.Status = domain.ReceiptStatusInitiated
	r.InitiatedAt = s.db.now()
	r.ConfirmedAt, r.FailedAt, r.FailureReason = nil, nil, nil
	cp := r
	s.db.receipts[r.ID] = &cp
	s.db.receiptKeys[key] = r.ID
	s.db.receiptSeq = append(s.db.receiptSeq, r.ID)
	return &r, nil
}

func (s *ReceiptStore) Confirm(_ context.Context, id string, c domain.ReceiptConfirmation) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, ok := s.db.receipts[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := s.db.now()
	r.Status = domain.ReceiptStatusConfirmed
	r.ConfirmedAt = &now
	if c.LedgerEntryID != nil {
		r.LedgerEntryID = c.LedgerEntryID
	}
	if c.PayoutID != nil {
		r.PayoutID = c.PayoutID
	}
	if c.TxHash != nil {
		r.TxHash = c.TxHash
	}
	return nil
}

func (s *ReceiptStore) Fail(_ context.Context, id string, reason string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, ok := s.db.receipts[id]
	if !ok {
		return domain.ErrNotFound
	}
	now, msg := s.db.now(), reason
	r.Status = domain.ReceiptStatusFailed
	r.FailedAt = &now
	r.FailureReason = &msg
	return nil
}

func (s *ReceiptStore) ListByMarkets(_ context.Context, marketIDs []string) ([]domain.Receipt, error) {
	want := make(map[string]struct{}, len(marketIDs))
	for _, id := range marketIDs {
		want[id] = struct{}{}
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []domain.Receipt
	for _, id := range s.db.receiptSeq {
		r := s.db.receipts[id]
		if _, ok := want[r.MarketID]; ok {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *ReceiptStore) List(_ context.Context, f domain.ReceiptFilter) ([]domain.Receipt, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []domain.Receipt
	for i := len(s.db.receiptSeq) - 1; i >= 0; i-- {
		r := s.db.receipts[s.db.receiptSeq[i]]
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.MarketID != "" && r.MarketID != f.MarketID {
			continue
		}
		out = append(out, *r)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// SettlementStore implements domain.SettlementStore.
type SettlementStore struct {
	db *DB
}

func (s *SettlementStore) CountByGame(_ context.Context, gameID string) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for _, ms := range s.db.settlements {
		if ms.GameID == gameID {
			n++
		}
	}
	return n, nil
}

func (s *SettlementStore) ExistsForMarket(_ context.Context, marketID string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	_, ok := s.db.settlements[marketID]
	return ok, nil
}

func (s *SettlementStore) Create(_ context.Context, ms domain.MarketSettlement) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, dup := s.db.settlements[ms.MarketID]; dup {
		return domain.ErrAlreadyExists
	}
	if ms.ID == "" {
		ms.ID = newID()
	}
	if ms.SettledBy == "" {
		ms.SettledBy = domain.SettledBySystem
	}
	ms.CreatedAt = s.db.now()
	s.db.settlements[ms.MarketID] = ms
	return nil
}

// PayoutStore implements domain.PayoutStore.
type PayoutStore struct {
	db *DB
}

func (s *PayoutStore) Create(_ context.Context, p domain.Payout) (domain.Payout, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p.ID = newID()
	if p.Status == "" {
		p.Status = domain.PayoutStatusQueued
	}
	p.CreatedAt = s.db.now()
	s.db.payouts = append(s.db.payouts, p)
	return p, nil
}

// AuditStore implements domain.AuditStore.
type AuditStore struct {
	db *DB
}

func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.audit = append(s.db.audit, domain.AuditEntry{
		ID:        int64(len(s.db.audit) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: s.db.now(),
	})
	return nil
}

func (s *AuditStore) List(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []domain.AuditEntry
	for i := len(s.db.audit) - 1; i >= 0; i-- {
		e := s.db.audit[i]
		switch {
		case !strings.HasPrefix(e.Event, filter.EventPrefix):
		case filter.QueueID != "" && e.Detail["settlement_queue_id"] != filter.QueueID:
		case filter.Since != nil && e.CreatedAt.Before(*filter.Since):
		case filter.Until != nil && e.CreatedAt.After(*filter.Until):
		default:
			out = append(out, e)
		}
	}
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Events returns audit event names matching prefix, oldest first.
func (s *AuditStore) Events(prefix string) []string {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []string
	for _, e := range s.db.audit {
		if strings.HasPrefix(e.Event, prefix) {
			out = append(out, e.Event)
		}
	}
	return out
}
