package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/peterbourgon/diskv/v3"

	appLog "recall/internal/log"
	"recall/internal/model"
)

const eventsDir = "events"

// DiskStore persists events as JSON blobs, one file per event, under
// <base>/events/<id>.
type DiskStore struct {
	d        *diskv.Diskv
	basePath string

	// mu serializes read-modify-write cycles; diskv only guards single
	// operations.
	mu sync.Mutex
}

// OpenDisk opens (creating if needed) a store rooted at basePath.
func OpenDisk(basePath string) (*DiskStore, error) {
	if basePath == "" {
		return nil, errors.New("store: base path is empty")
	}
	return &DiskStore{
		d: diskv.New(diskv.Options{
			BasePath:          basePath,
			AdvancedTransform: keyToPath,
			InverseTransform:  pathToKey,
			CacheSizeMax:      1024 * 1024, // 1MB
			FilePerm:          0o600,
			PathPerm:          0o700,
		}),
		basePath: basePath,
	}, nil
}

func keyToPath(key string) *diskv.PathKey {
	return &diskv.PathKey{Path: []string{eventsDir}, FileName: key}
}

func pathToKey(pk *diskv.PathKey) string {
	return pk.FileName
}

// BasePath is the directory the store writes to.
func (s *DiskStore) BasePath() string {
	return s.basePath
}

func (s *DiskStore) read(id string) (model.Event, error) {
	data, err := s.d.Read(id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return model.Event{}, err
	}
	var ev model.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return model.Event{}, fmt.Errorf("store: decode %s: %w", id, err)
	}
	ev.ID = id
	return ev, nil
}

func (s *DiskStore) write(ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.d.Write(ev.ID, data)
}

func (s *DiskStore) List(ctx context.Context) ([]model.Event, error) {
	all := make([]model.Event, 0)
	for key := range s.d.Keys(ctx.Done()) {
		if strings.HasPrefix(key, ".") {
			continue
		}
		ev, err := s.read(key)
		if err != nil {
			// One corrupt file should not hide the rest of the calendar.
			appLog.Error("store: skipping unreadable event", err, "key", key)
			continue
		}
		all = append(all, ev)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return sortEvents(all), nil
}

func (s *DiskStore) Get(_ context.Context, id string) (model.Event, error) {
	return s.read(id)
}

func (s *DiskStore) Create(_ context.Context, ev model.Event) (model.Event, error) {
	ev, err := prepareNew(ev)
	if err != nil {
		return model.Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.d.Has(ev.ID) {
		return model.Event{}, fmt.Errorf("store: event %s already exists", ev.ID)
	}
	if err := s.write(ev); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

func (s *DiskStore) Update(_ context.Context, id string, changes model.Changes) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(id)
	if err != nil {
		return model.Event{}, err
	}
	if current.Deleted() {
		return model.Event{}, fmt.Errorf("%w: %s is deleted", ErrNotFound, id)
	}
	next, err := applyChanges(current, changes)
	if err != nil {
		return model.Event{}, err
	}
	if err := s.write(next); err != nil {
		return model.Event{}, err
	}
	return next, nil
}

func (s *DiskStore) Upsert(_ context.Context, ev model.Event) (model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID != "" {
		if existing, err := s.read(ev.ID); err == nil {
			ev.CreatedAt = existing.CreatedAt
		}
	}
	ev, err := prepareNew(ev)
	if err != nil {
		return model.Event{}, err
	}
	if err := s.write(ev); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

func (s *DiskStore) Delete(_ context.Context, id string, hard bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := s.read(id)
	if err != nil {
		return err
	}
	if hard {
		return s.d.Erase(id)
	}
	now := clock()
	ev.DeletedAt = &now
	ev.UpdatedAt = now
	return s.write(ev)
}

// Purge removes soft-deleted events older than cutoff and reports how many
// were erased.
func (s *DiskStore) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key := range s.d.Keys(ctx.Done()) {
		ev, err := s.read(key)
		if err != nil || !ev.Deleted() || ev.DeletedAt.After(cutoff) {
			continue
		}
		if err := s.d.Erase(key); err != nil {
			return n, err
		}
		n++
	}
	return n, ctx.Err()
}
