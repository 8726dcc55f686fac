package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sportsettle/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestClaimNextEmptyQueue(t *testing.T) {
	q := NewDB().Stores().Queue
	item, err := q.ClaimNext(context.Background(), "w1")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestClaimNextOldestFirst(t *testing.T) {
	clock := newFakeClock()
	q := NewDB(WithClock(clock.Now)).Stores().Queue
	ctx := context.Background()

	first, err := q.Enqueue(ctx, domain.NewQueueItem{GameID: "g1", League: "nba"})
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = q.Enqueue(ctx, domain.NewQueueItem{GameID: "g2", League: "nba"})
	require.NoError(t, err)

	got, err := q.ClaimNext(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, domain.QueueStatusProcessing, got.Status)
	require.NotNil(t, got.LockedBy)
	assert.Equal(t, "w1", *got.LockedBy)
	assert.Equal(t, clock.Now(), *got.LockedAt)
}

func TestClaimNextConcurrentExclusivity(t *testing.T) {
	q := NewDB().Stores().Queue
	ctx := context.Background()
	_, err := q.Enqueue(ctx, domain.NewQueueItem{GameID: "g1"})
	require.NoError(t, err)

	const workers = 16
	results := make([]*domain.QueueItem, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			item, err := q.ClaimNext(ctx, "w")
			assert.NoError(t, err)
			results[i] = item
		}(i)
	}
	close(start)
	wg.Wait()

	claimed := 0
	for _, r := range results {
		if r != nil {
			claimed++
		}
	}
	assert.Equal(t, 1, claimed)
}

func TestMarkFailedBackoffSchedule(t *testing.T) {
	clock := newFakeClock()
	db := NewDB(WithClock(clock.Now))
	q := db.Stores().Queue
	ctx := context.Background()

	item, err := q.Enqueue(ctx, domain.NewQueueItem{GameID: "g1"})
	require.NoError(t, err)

	want := []time.Duration{1, 5, 30, 120, 720, 720, 720}
	for i, minutes := range want {
		require.NoError(t, q.MarkFailed(ctx, item.ID, "boom"))
		got, ok := db.QueueItem(item.ID)
		require.True(t, ok)
		assert.Equal(t, i+1, got.Attempts)
		assert.Equal(t, domain.QueueStatusFailed, got.Status)
		assert.Equal(t, minutes*time.Minute, got.NextAttemptAt.Sub(clock.Now()), "attempt %d", i+1)
		assert.Nil(t, got.LockedBy)
		require.NotNil(t, got.Reason)
		assert.Equal(t, "boom", *got.Reason)
	}
}

func TestClaimNextRespectsNextAttemptAt(t *testing.T) {
	clock := newFakeClock()
	db := NewDB(WithClock(clock.Now))
	q := db.Stores().Queue
	ctx := context.Background()

	item, err := q.Enqueue(ctx, domain.NewQueueItem{GameID: "g1"})
	require.NoError(t, err)
	require.NoError(t, q.MarkFailed(ctx, item.ID, "transient"))

	requeued, skipped, err := q.RequeueDue(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, requeued)
	assert.Zero(t, skipped)

	clock.Advance(time.Minute)
	requeued, _, err = q.RequeueDue(ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, requeued)

	got, err := q.ClaimNext(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Attempts)
}

func TestRequeueDueSkipsExhausted(t *testing.T) {
	clock := newFakeClock()
	db := NewDB(WithClock(clock.Now))
	q := db.Stores().Queue
	ctx := context.Background()

	item, err := q.Enqueue(ctx, domain.NewQueueItem{GameID: "g1"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.MarkFailed(ctx, item.ID, "boom"))
	}

	requeued, skipped, err := q.RequeueDue(ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, requeued)
	assert.EqualValues(t, 1, skipped)

	got, _ := db.QueueItem(item.ID)
	assert.Equal(t, domain.QueueStatusSkipped, got.Status)
}

func TestReclaimStale(t *testing.T) {
	clock := newFakeClock()
	db := NewDB(WithClock(clock.Now))
	q := db.Stores().Queue
	ctx := context.Background()

	_, err := q.Enqueue(ctx, domain.NewQueueItem{GameID: "g1"})
	require.NoError(t, err)
	claimed, err := q.ClaimNext(ctx, "crashed")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	n, err := q.ReclaimStale(ctx, clock.Now().Add(-15*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(20 * time.Minute)
	n, err = q.ReclaimStale(ctx, clock.Now().Add(-15*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	again, err := q.ClaimNext(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, claimed.ID, again.ID)
}

func TestEnqueueOneActivePerGame(t *testing.T) {
	db := NewDB()
	q := db.Stores().Queue
	ctx := context.Background()

	item, err := q.Enqueue(ctx, domain.NewQueueItem{GameID: "g1"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, domain.NewQueueItem{GameID: "g1"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	require.NoError(t, q.MarkDone(ctx, item.ID))
	_, err = q.Enqueue(ctx, domain.NewQueueItem{GameID: "g1"})
	assert.NoError(t, err)
}

func TestListAndStats(t *testing.T) {
	clock := newFakeClock()
	q := NewDB(WithClock(clock.Now)).Stores().Queue
	ctx := context.Background()

	a, _ := q.Enqueue(ctx, domain.NewQueueItem{GameID: "g1", League: "nba"})
	clock.Advance(time.Second)
	b, _ := q.Enqueue(ctx, domain.NewQueueItem{GameID: "g2", League: "nfl"})
	clock.Advance(time.Second)
	c, _ := q.Enqueue(ctx, domain.NewQueueItem{GameID: "g3", League: "nba"})
	require.NoError(t, q.MarkDone(ctx, a.ID))

	all, err := q.List(ctx, domain.QueueFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	nba, err := q.List(ctx, domain.QueueFilter{League: "nba", Status: domain.QueueStatusQueued})
	require.NoError(t, err)
	require.Len(t, nba, 1)
	assert.Equal(t, c.ID, nba[0].ID)

	limited, err := q.List(ctx, domain.QueueFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.QueueStats{Queued: 2, Done: 1, Total: 3}, stats)
}
