package daycache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"recall/internal/layout"
	appLog "recall/internal/log"
	"recall/internal/model"
)

const (
	defaultSize = 62

	// neighborDays are repopulated eagerly around the focused day on every
	// invalidation so the next render does not flash empty.
	neighborDays = 1
)

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Hits          uint64
	Misses        uint64
	Invalidations uint64
	Buckets       int
}

type bucket struct {
	epoch  uint64
	events []model.Event
}

// Cache memoizes the start-sorted events of each calendar day.
//
// A populated bucket is never refreshed in place. The only way to change
// what a day returns is Invalidate, which replaces the whole event snapshot
// and drops every bucket at once (an "epoch"). There is no per-event
// update: an event moving from day A to day B would otherwise
// leave one of the two buckets stale.
type Cache struct {
	loc *time.Location

	mu    sync.RWMutex
	all   []model.Event
	epoch uint64
	focus model.Day

	buckets *lru.Cache[model.Day, bucket]
	group   singleflight.Group

	hits, misses, invalidations atomic.Uint64
}

// New returns an empty cache bucketing days in loc, keeping at most size
// days. size <= 0 selects the default.
func New(loc *time.Location, size int) (*Cache, error) {
	if loc == nil {
		loc = time.Local
	}
	if size <= 0 {
		size = defaultSize
	}
	buckets, err := lru.New[model.Day, bucket](size)
	if err != nil {
		return nil, err
	}
	return &Cache{loc: loc, buckets: buckets}, nil
}

// Location is the zone day keys are computed in.
func (c *Cache) Location() *time.Location {
	return c.loc
}

// Epoch increments on every Invalidate.
func (c *Cache) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Focus records the currently visible day; Invalidate repopulates around it.
func (c *Cache) Focus(day model.Day) {
	c.mu.Lock()
	c.focus = day
	c.mu.Unlock()
}

// Events returns day's events sorted by start. The returned slice is shared
// and must not be modified.
func (c *Cache) Events(ctx context.Context, day model.Day) ([]model.Event, error) {
	c.mu.RLock()
	epoch := c.epoch
	c.mu.RUnlock()

	if b, ok := c.buckets.Get(day); ok && b.epoch == epoch {
		c.hits.Add(1)
		return b.events, nil
	}
	c.misses.Add(1)
	return c.populate(ctx, day)
}

// Populate fills day's bucket if it is not already filled for the current
// epoch. Concurrent calls for the same day share one computation.
func (c *Cache) Populate(ctx context.Context, day model.Day) error {
	_, err := c.populate(ctx, day)
	return err
}

// flightKey scopes concurrent populates to one epoch, so a caller that saw
// an invalidation never joins a computation started before it.
func flightKey(day model.Day, epoch uint64) string {
	return fmt.Sprintf("%s@%d", day, epoch)
}

func (c *Cache) populate(ctx context.Context, day model.Day) ([]model.Event, error) {
	c.mu.RLock()
	seen := c.epoch
	c.mu.RUnlock()

	ch := c.group.DoChan(flightKey(day, seen), func() (any, error) {
		c.mu.RLock()
		epoch, all := c.epoch, c.all
		c.mu.RUnlock()

		if b, ok := c.buckets.Get(day); ok && b.epoch == epoch {
			return b.events, nil
		}

		events := eventsOn(all, day, c.loc)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.epoch != epoch {
			// Invalidated while we were filtering; the result is stale. Hand
			// it to the caller for this frame but do not store it.
			return events, nil
		}
		if b, ok := c.buckets.Peek(day); ok && b.epoch == epoch {
			return b.events, nil
		}
		c.buckets.Add(day, bucket{epoch: epoch, events: events})
		appLog.Debug("day bucket populated", "day", day, "events", len(events), "epoch", epoch)
		return events, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		events, ok := res.Val.([]model.Event)
		if !ok {
			return nil, errors.New("daycache: unexpected bucket type")
		}
		return events, nil
	}
}

// Invalidate replaces the event snapshot, drops every bucket, and eagerly
// repopulates the focused day and its neighbours. Racing invalidations are
// last-writer-wins.
func (c *Cache) Invalidate(ctx context.Context, all []model.Event) {
	snapshot := make([]model.Event, 0, len(all))
	for _, ev := range all {
		if !ev.Deleted() {
			snapshot = append(snapshot, ev)
		}
	}

	c.mu.Lock()
	c.all = snapshot
	c.epoch++
	focus := c.focus
	epoch := c.epoch
	c.buckets.Purge()
	c.mu.Unlock()
	c.invalidations.Add(1)

	appLog.Debug("day cache invalidated", "epoch", epoch, "events", len(snapshot), "focus", focus)

	if focus.IsZero() {
		return
	}
	for d := -neighborDays; d <= neighborDays; d++ {
		if err := c.Populate(ctx, focus.AddDays(d)); err != nil {
			appLog.Warn("day cache warmup interrupted", "day", focus.AddDays(d), "err", err)
			return
		}
	}
}

// Stats returns hit/miss counters and the current bucket count.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
		Buckets:       c.buckets.Len(),
	}
}

// eventsOn selects the events starting on day and sorts them for the layout
// analyzer.
func eventsOn(all []model.Event, day model.Day, loc *time.Location) []model.Event {
	from, to := day.Start(loc), day.End(loc)
	out := make([]model.Event, 0)
	for _, ev := range all {
		if !ev.Start.Before(from) && ev.Start.Before(to) {
			out = append(out, ev)
		}
	}
	layout.Sort(out)
	return slices.Clip(out)
}
