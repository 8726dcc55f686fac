package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportsettle/internal/domain"
	"github.com/alanyoungcy/sportsettle/internal/notify"
)

type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

type countingLock struct{ acquired, released int }

func (l *countingLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	l.acquired++
	return func() { l.released++ }, nil
}

func TestSweepReclaimsAndRequeues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.mem.Queue

	stale, err := q.Enqueue(ctx, domain.NewQueueItem{GameID: "g-stale"})
	require.NoError(t, err)
	_, err = q.ClaimNext(ctx, "crashed-worker")
	require.NoError(t, err)

	failed, err := q.Enqueue(ctx, domain.NewQueueItem{GameID: "g-failed"})
	require.NoError(t, err)
	require.NoError(t, q.MarkFailed(ctx, failed.ID, "transient"))

	f.clock.Advance(20 * time.Minute)
	lock := &countingLock{}
	sw := NewSweeper(q, SweeperConfig{StaleAfter: 15 * time.Minute}, quietLogger(),
		WithSweepClock(f.clock.Now),
		WithSweepLock(lock),
		WithSweepEventBus(f.bus),
		WithSweepNotifier(f.alerts),
	)

	res, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Reclaimed: 1, Requeued: 1}, res)
	assert.Equal(t, 1, lock.acquired)
	assert.Equal(t, 1, lock.released)
	assert.Contains(t, f.alerts.Events(), notify.EventQueueSweep)

	for _, id := range []string{stale.ID, failed.ID} {
		item, _ := f.db.QueueItem(id)
		assert.Equal(t, domain.QueueStatusQueued, item.Status)
		assert.Nil(t, item.LockedBy)
	}
}

func TestSweepSkipsExhaustedItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item, err := f.mem.Queue.Enqueue(ctx, domain.NewQueueItem{GameID: "g1"})
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		require.NoError(t, f.mem.Queue.MarkFailed(ctx, item.ID, "boom"))
	}

	res, err := NewSweeper(f.mem.Queue, SweeperConfig{MaxAttempts: 2}, quietLogger(), WithSweepClock(f.clock.Now)).Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Skipped)
	got, _ := f.db.QueueItem(item.ID)
	assert.Equal(t, domain.QueueStatusSkipped, got.Status)
}

func TestSweepLockHeldElsewhere(t *testing.T) {
	f := newFixture(t)
	res, err := NewSweeper(f.mem.Queue, SweeperConfig{}, quietLogger(), WithSweepLock(heldLock{})).Sweep(context.Background())
	require.NoError(t, err)
	assert.True(t, res.LockHeld)
}
