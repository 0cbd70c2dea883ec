package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"recall/internal/layout"
	"recall/internal/model"
)

var (
	ErrNotFound     = errors.New("store: event not found")
	ErrInvalidRange = errors.New("store: event ends before it starts")
	ErrMissingTitle = errors.New("store: event title required")
)

// Repository is the persistence contract for recalled events. Reads return
// value snapshots; writes go through explicit calls.
type Repository interface {
	// List returns every non-deleted event sorted by start.
	List(ctx context.Context) ([]model.Event, error)
	Get(ctx context.Context, id string) (model.Event, error)
	// Create stores a new event, assigning an ID when ev.ID is empty.
	Create(ctx context.Context, ev model.Event) (model.Event, error)
	// Update applies changes to an existing event.
	Update(ctx context.Context, id string, changes model.Changes) (model.Event, error)
	// Upsert creates or overwrites ev by ID, keeping CreatedAt of an
	// existing record.
	Upsert(ctx context.Context, ev model.Event) (model.Event, error)
	// Delete soft-deletes the event, or removes it when hard is set.
	Delete(ctx context.Context, id string, hard bool) error
}

// clock is overridden in tests.
var clock = func() time.Time { return time.Now().UTC() }

func validate(ev model.Event) error {
	if strings.TrimSpace(ev.Title) == "" {
		return ErrMissingTitle
	}
	if ev.End.Before(ev.Start) {
		return fmt.Errorf("%w: %s > %s", ErrInvalidRange,
			ev.Start.Format(time.RFC3339), ev.End.Format(time.RFC3339))
	}
	return nil
}

func prepareNew(ev model.Event) (model.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if err := validate(ev); err != nil {
		return model.Event{}, err
	}
	now := clock()
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now
	}
	ev.UpdatedAt = now
	ev.DeletedAt = nil
	return ev, nil
}

func applyChanges(ev model.Event, changes model.Changes) (model.Event, error) {
	next := changes.Apply(ev)
	if err := validate(next); err != nil {
		return model.Event{}, err
	}
	next.UpdatedAt = clock()
	next.Edited = true
	return next, nil
}

func sortEvents(events []model.Event) []model.Event {
	events = slices.DeleteFunc(events, model.Event.Deleted)
	layout.Sort(events)
	return events
}
