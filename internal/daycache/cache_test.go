package daycache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall/internal/model"
)

var monday = model.Day{Year: 2025, Month: time.June, Day: 2}

func event(id string, day model.Day, hour int, dur time.Duration) model.Event {
	start := day.Start(time.UTC).Add(time.Duration(hour) * time.Hour)
	return model.Event{ID: id, Start: start, End: start.Add(dur)}
}

func ids(events []model.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}

func newCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(time.UTC, 8)
	require.NoError(t, err)
	return c
}

func TestEventsAreBucketedByStartDayAndSorted(t *testing.T) {
	c := newCache(t)
	c.Invalidate(context.Background(), []model.Event{
		event("late", monday, 15, time.Hour),
		event("tuesday", monday.AddDays(1), 9, time.Hour),
		event("early", monday, 8, time.Hour),
		event("overnight", monday, 23, 3*time.Hour),
	})

	got, err := c.Events(context.Background(), monday)
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "late", "overnight"}, ids(got))

	got, err = c.Events(context.Background(), monday.AddDays(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"tuesday"}, ids(got))

	got, err = c.Events(context.Background(), monday.AddDays(5))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBucketIsNotRefreshedUntilInvalidated(t *testing.T) {
	c := newCache(t)
	all := []model.Event{event("a", monday, 9, time.Hour)}
	c.Invalidate(context.Background(), all)

	first, err := c.Events(context.Background(), monday)
	require.NoError(t, err)

	// Mutating the caller's slice must not leak into the epoch's snapshot.
	all[0] = event("b", monday, 10, time.Hour)
	second, err := c.Events(context.Background(), monday)
	require.NoError(t, err)
	assert.Equal(t, ids(first), ids(second))

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestInvalidateDoesNotJoinOlderPopulate(t *testing.T) {
	c := newCache(t)
	c.Invalidate(context.Background(), nil)

	// A populate started under the old epoch that has not finished yet.
	release := make(chan struct{})
	inflight := c.group.DoChan(flightKey(monday, c.Epoch()), func() (any, error) {
		<-release
		return []model.Event{}, nil
	})
	defer func() {
		close(release)
		<-inflight
	}()

	c.Invalidate(context.Background(), []model.Event{event("fresh", monday, 9, time.Hour)})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := c.Events(ctx, monday)
	require.NoError(t, err, "must not wait on the older computation")
	assert.Equal(t, []string{"fresh"}, ids(got))
}

func TestInvalidateMovesEventBetweenDays(t *testing.T) {
	c := newCache(t)
	moved := event("m", monday, 9, time.Hour)
	c.Invalidate(context.Background(), []model.Event{moved})

	got, err := c.Events(context.Background(), monday)
	require.NoError(t, err)
	require.Equal(t, []string{"m"}, ids(got))
	_, err = c.Events(context.Background(), monday.AddDays(1))
	require.NoError(t, err)

	moved.Start = moved.Start.Add(24 * time.Hour)
	moved.End = moved.End.Add(24 * time.Hour)
	c.Invalidate(context.Background(), []model.Event{moved})

	got, err = c.Events(context.Background(), monday)
	require.NoError(t, err)
	assert.Empty(t, got)
	got, err = c.Events(context.Background(), monday.AddDays(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"m"}, ids(got))
	assert.Equal(t, uint64(2), c.Epoch())
}

func TestInvalidateWarmsFocusedDayAndNeighbours(t *testing.T) {
	c := newCache(t)
	c.Focus(monday)

	c.Invalidate(context.Background(), []model.Event{event("a", monday, 9, time.Hour)})

	assert.Equal(t, 3, c.Stats().Buckets)
	for _, d := range []model.Day{monday.AddDays(-1), monday, monday.AddDays(1)} {
		_, err := c.Events(context.Background(), d)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(3), c.Stats().Hits)
	assert.Zero(t, c.Stats().Misses)
}

func TestSoftDeletedEventsAreSkipped(t *testing.T) {
	c := newCache(t)
	gone := event("gone", monday, 9, time.Hour)
	now := time.Now()
	gone.DeletedAt = &now

	c.Invalidate(context.Background(), []model.Event{gone, event("kept", monday, 10, time.Hour)})

	got, err := c.Events(context.Background(), monday)
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, ids(got))
}

func TestConcurrentPopulateIsIdempotent(t *testing.T) {
	c := newCache(t)
	c.Invalidate(context.Background(), []model.Event{
		event("a", monday, 9, time.Hour),
		event("b", monday, 9, 30*time.Minute),
	})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Populate(context.Background(), monday))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, c.Stats().Buckets)
	got, err := c.Events(context.Background(), monday)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(got))
}

func TestCancelledContext(t *testing.T) {
	c := newCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Either the populate wins the race or the cancellation does; both are
	// fine, but a cancelled call must never return a nil error with no data
	// for a day that has events.
	c.Invalidate(context.Background(), []model.Event{event("a", monday, 9, time.Hour)})
	got, err := c.Events(ctx, monday)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
		return
	}
	assert.Len(t, got, 1)
}
