package calendar

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"recall/internal/daycache"
	"recall/internal/layout"
	appLog "recall/internal/log"
	"recall/internal/model"
	"recall/internal/store"
)

// DayView is everything a renderer needs for one day at one scale.
type DayView struct {
	Day     model.Day
	Origin  time.Time
	Scale   float64
	Window  layout.Window
	Events  []model.Event
	Records []layout.CollisionRecord
	Rects   []layout.LayoutRect
}

// Observer receives service activity; the web layer exports it as metrics.
type Observer interface {
	LayoutPass(day model.Day, events int, took time.Duration)
	Commit(err error)
}

type nopObserver struct{}

func (nopObserver) LayoutPass(model.Day, int, time.Duration) {}
func (nopObserver) Commit(error)                             {}

// Service joins the repository, the day cache and the layout engine. It is
// constructed explicitly and passed to whoever renders or edits.
type Service struct {
	repo  store.Repository
	cache *daycache.Cache
	loc   *time.Location
	obs   Observer

	// layouts memoizes analyzed days for the current cache epoch so zoom
	// changes only re-project.
	mu      sync.Mutex
	epoch   uint64
	layouts map[model.Day]*layout.DayLayout[model.Event]
}

// NewService builds a service; call Reload before first use.
func NewService(repo store.Repository, cache *daycache.Cache, obs Observer) *Service {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Service{
		repo:    repo,
		cache:   cache,
		loc:     cache.Location(),
		obs:     obs,
		layouts: make(map[model.Day]*layout.DayLayout[model.Event]),
	}
}

func (s *Service) Location() *time.Location { return s.loc }

// Repository exposes the underlying store for import/export paths.
func (s *Service) Repository() store.Repository { return s.repo }

// Reload re-reads every event and starts a new cache epoch.
func (s *Service) Reload(ctx context.Context) error {
	events, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("calendar: reload: %w", err)
	}
	s.cache.Invalidate(ctx, events)
	appLog.Info("calendar reloaded", "events", len(events), "epoch", s.cache.Epoch())
	return nil
}

// Focus marks day as the visible one so reloads warm it first.
func (s *Service) Focus(day model.Day) {
	s.cache.Focus(day)
}

// Layout returns the analyzed events of day, reusing the analysis until the
// next reload.
func (s *Service) Layout(ctx context.Context, day model.Day) (*layout.DayLayout[model.Event], error) {
	epoch := s.cache.Epoch()

	s.mu.Lock()
	if s.epoch != epoch {
		clear(s.layouts)
		s.epoch = epoch
	}
	dl, ok := s.layouts[day]
	s.mu.Unlock()
	if ok {
		return dl, nil
	}

	events, err := s.cache.Events(ctx, day)
	if err != nil {
		return nil, err
	}
	if !layout.Sorted(events) {
		appLog.Warn("calendar: day events out of order, sorting a copy", "day", day)
		events = slices.Clone(events)
		layout.Sort(events)
	}
	started := time.Now()
	dl = &layout.DayLayout[model.Event]{
		Events:  events,
		Records: layout.ComputeCollisionRecords(events),
	}
	s.obs.LayoutPass(day, len(events), time.Since(started))

	s.mu.Lock()
	if s.epoch == epoch {
		s.layouts[day] = dl
	}
	s.mu.Unlock()
	return dl, nil
}

// Day lays out day at scale, restricted to window.
func (s *Service) Day(ctx context.Context, day model.Day, scale float64, window layout.Window) (DayView, error) {
	window, err := window.Clamped()
	if err != nil {
		return DayView{}, err
	}
	origin := day.Start(s.loc)
	proj := layout.NewProjector(origin, scale)

	var (
		events  []model.Event
		records []layout.CollisionRecord
	)
	if window.Full() {
		dl, err := s.Layout(ctx, day)
		if err != nil {
			return DayView{}, err
		}
		events, records = dl.Events, dl.Records
	} else {
		all, err := s.cache.Events(ctx, day)
		if err != nil {
			return DayView{}, err
		}
		events = layout.Filter(all, origin, window)
		records = layout.ComputeCollisionRecords(events)
	}

	return DayView{
		Day:     day,
		Origin:  origin,
		Scale:   proj.Scale,
		Window:  window,
		Events:  events,
		Records: records,
		Rects:   layout.ProjectAll(proj, records, events),
	}, nil
}

// Range returns non-deleted events starting in [from, to).
func (s *Service) Range(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	out := make([]model.Event, 0)
	for d := model.DayOf(from, s.loc); d.Start(s.loc).Before(to); d = d.AddDays(1) {
		events, err := s.cache.Events(ctx, d)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if !ev.Start.Before(from) && ev.Start.Before(to) {
				out = append(out, ev)
			}
		}
	}
	return out, nil
}

// Update commits changes and starts a new epoch. It satisfies edit.Updater.
func (s *Service) Update(ctx context.Context, id string, changes model.Changes) (model.Event, error) {
	ev, err := s.repo.Update(ctx, id, changes)
	s.obs.Commit(err)
	if err != nil {
		return model.Event{}, err
	}
	s.reloadAfterWrite(ctx, id)
	return ev, nil
}

// Create stores a new recall and reloads.
func (s *Service) Create(ctx context.Context, ev model.Event) (model.Event, error) {
	created, err := s.repo.Create(ctx, ev)
	s.obs.Commit(err)
	if err != nil {
		return model.Event{}, err
	}
	s.reloadAfterWrite(ctx, created.ID)
	return created, nil
}

// Delete removes an event and reloads.
func (s *Service) Delete(ctx context.Context, id string, hard bool) error {
	err := s.repo.Delete(ctx, id, hard)
	s.obs.Commit(err)
	if err != nil {
		return err
	}
	s.reloadAfterWrite(ctx, id)
	return nil
}

// reloadAfterWrite refreshes the cache once a write is stored. A failed
// reload does not undo the write; the next successful reload shows it.
func (s *Service) reloadAfterWrite(ctx context.Context, id string) {
	if err := s.Reload(ctx); err != nil {
		appLog.Error("calendar: reload after write failed", err, "id", id)
	}
}
