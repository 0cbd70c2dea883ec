package store

import (
	"context"
	"fmt"
	"sync"

	"recall/internal/model"
)

// MemoryStore keeps events in a map. Used by tests and `serve --ephemeral`.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string]model.Event
}

func NewMemory(events ...model.Event) *MemoryStore {
	m := &MemoryStore{events: make(map[string]model.Event, len(events))}
	for _, ev := range events {
		m.events[ev.ID] = ev
	}
	return m
}

func (m *MemoryStore) List(_ context.Context) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Event, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev)
	}
	return sortEvents(out), nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return model.Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ev, nil
}

func (m *MemoryStore) Create(_ context.Context, ev model.Event) (model.Event, error) {
	ev, err := prepareNew(ev)
	if err != nil {
		return model.Event{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[ev.ID]; ok {
		return model.Event{}, fmt.Errorf("store: event %s already exists", ev.ID)
	}
	m.events[ev.ID] = ev
	return ev, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, changes model.Changes) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.events[id]
	if !ok || current.Deleted() {
		return model.Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next, err := applyChanges(current, changes)
	if err != nil {
		return model.Event{}, err
	}
	m.events[id] = next
	return next, nil
}

func (m *MemoryStore) Upsert(_ context.Context, ev model.Event) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.events[ev.ID]; ok && ev.ID != "" {
		ev.CreatedAt = existing.CreatedAt
	}
	ev, err := prepareNew(ev)
	if err != nil {
		return model.Event{}, err
	}
	m.events[ev.ID] = ev
	return ev, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string, hard bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if hard {
		delete(m.events, id)
		return nil
	}
	now := clock()
	ev.DeletedAt = &now
	ev.UpdatedAt = now
	m.events[id] = ev
	return nil
}
