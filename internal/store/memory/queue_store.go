package memory

import (
	"context"
	"sort"
	"time"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

// QueueStore implements domain.QueueStore.
type QueueStore struct {
	db *DB
}

func activeQueueStatus(s domain.QueueStatus) bool {
	return s == domain.QueueStatusQueued || s == domain.QueueStatusProcessing || s == domain.QueueStatusFailed
}

// Enqueue inserts a QUEUED item, rejecting a second active item per game.
func (s *QueueStore) Enqueue(_ context.Context, in domain.NewQueueItem) (domain.QueueItem, error) {
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, q := range db.queue {
		if q.GameID == in.GameID && activeQueueStatus(q.Status) {
			return domain.QueueItem{}, domain.ErrAlreadyExists
		}
	}

	now := db.now()
	q := &domain.QueueItem{
		ID:             newID(),
		GameID:         in.GameID,
		League:         in.League,
		ExternalGameID: in.ExternalGameID,
		Status:         domain.QueueStatusQueued,
		Outcome:        in.Outcome,
		Reason:         in.Reason,
		NextAttemptAt:  now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	db.queue[q.ID] = q
	db.queueOrder = append(db.queueOrder, q.ID)
	return *q, nil
}

// List returns items newest-first.
func (s *QueueStore) List(_ context.Context, f domain.QueueFilter) ([]domain.QueueItem, error) {
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []domain.QueueItem
	for i := len(db.queueOrder) - 1; i >= 0; i-- {
		q := db.queue[db.queueOrder[i]]
		if f.Status != "" && q.Status != f.Status {
			continue
		}
		if f.League != "" && q.League != f.League {
			continue
		}
		out = append(out, *q)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Stats counts items per status.
func (s *QueueStore) Stats(_ context.Context) (domain.QueueStats, error) {
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()

	var st domain.QueueStats
	for _, q := range db.queue {
		st.Add(q.Status, 1)
	}
	return st, nil
}

// ClaimNext selects and locks the oldest eligible item under the DB mutex,
// which makes the compare-and-set atomic.
func (s *QueueStore) ClaimNext(_ context.Context, workerID string) (*domain.QueueItem, error) {
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()

	now := db.now()
	var pick *domain.QueueItem
	for _, id := range db.queueOrder {
		q := db.queue[id]
		if q.Status != domain.QueueStatusQueued || q.LockedBy != nil || q.NextAttemptAt.After(now) {
			continue
		}
		if pick == nil || q.CreatedAt.Before(pick.CreatedAt) {
			pick = q
		}
	}
	if pick == nil {
		return nil, nil
	}

	worker := workerID
	lockedAt := now
	pick.Status = domain.QueueStatusProcessing
	pick.LockedBy = &worker
	pick.LockedAt = &lockedAt
	pick.UpdatedAt = now
	out := *pick
	return &out, nil
}

// MarkDone sets DONE and clears the lock.
func (s *QueueStore) MarkDone(_ context.Context, id string) error {
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()

	q, ok := db.queue[id]
	if !ok {
		return domain.ErrNotFound
	}
	q.Status = domain.QueueStatusDone
	q.LockedBy = nil
	q.LockedAt = nil
	q.UpdatedAt = db.now()
	return nil
}

// MarkFailed records the failure and schedules the retry.
func (s *QueueStore) MarkFailed(_ context.Context, id string, reason string) error {
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()

	q, ok := db.queue[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := db.now()
	r := reason
	q.Attempts++
	q.Status = domain.QueueStatusFailed
	q.Reason = &r
	q.NextAttemptAt = now.Add(domain.RetryBackoff(q.Attempts))
	q.LockedBy = nil
	q.LockedAt = nil
	q.UpdatedAt = now
	return nil
}

// ReclaimStale requeues PROCESSING items locked before cutoff.
func (s *QueueStore) ReclaimStale(_ context.Context, cutoff time.Time) (int64, error) {
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()

	var n int64
	now := db.now()
	for _, q := range db.queue {
		if q.Status != domain.QueueStatusProcessing || q.LockedAt == nil || !q.LockedAt.Before(cutoff) {
			continue
		}
		reason := "stale lock reclaimed"
		q.Status = domain.QueueStatusQueued
		q.LockedBy = nil
		q.LockedAt = nil
		q.Reason = &reason
		q.UpdatedAt = now
		n++
	}
	return n, nil
}

// RequeueDue moves due FAILED items to QUEUED, or SKIPPED once exhausted.
func (s *QueueStore) RequeueDue(_ context.Context, maxAttempts int) (int64, int64, error) {
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()

	var requeued, skipped int64
	now := db.now()
	for _, q := range db.queue {
		if q.Status != domain.QueueStatusFailed {
			continue
		}
		if maxAttempts > 0 && q.Attempts >= maxAttempts {
			reason := "max attempts exceeded"
			q.Status = domain.QueueStatusSkipped
			q.Reason = &reason
			q.UpdatedAt = now
			skipped++
			continue
		}
		if q.NextAttemptAt.After(now) {
			continue
		}
		q.Status = domain.QueueStatusQueued
		q.UpdatedAt = now
		requeued++
	}
	return requeued, skipped, nil
}
