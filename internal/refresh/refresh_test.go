package refresh

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall/internal/calendar"
	"recall/internal/daycache"
	"recall/internal/ics"
	"recall/internal/layout"
	"recall/internal/model"
	"recall/internal/store"
)

const weekly = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:lecture@example
DTSTAMP:20250601T000000Z
DTSTART:20250602T090000Z
DTEND:20250602T103000Z
RRULE:FREQ=WEEKLY;COUNT=%d
SUMMARY:Lecture
END:VEVENT
BEGIN:VEVENT
UID:allday@example
DTSTAMP:20250601T000000Z
DTSTART;VALUE=DATE:20250603
DTEND;VALUE=DATE:20250604
SUMMARY:Conference
END:VEVENT
END:VCALENDAR
`

func feed(count string) []byte {
	return []byte(strings.ReplaceAll(strings.Replace(weekly, "%d", count, 1), "\n", "\r\n"))
}

func newTarget(t *testing.T) *calendar.Service {
	t.Helper()
	cache, err := daycache.New(time.UTC, 0)
	require.NoError(t, err)
	svc := calendar.NewService(store.NewMemory(), cache, nil)
	require.NoError(t, svc.Reload(context.Background()))
	return svc
}

func newScheduler(t *testing.T, cfg Config, target Target) *Scheduler {
	t.Helper()
	cfg.Location = time.UTC
	cfg.CacheDir = t.TempDir()
	s := New(cfg, target)
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestRunOnceMirrorsFeed(t *testing.T) {
	var count atomic.Value
	count.Store("4")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(feed(count.Load().(string)))
	}))
	defer srv.Close()

	target := newTarget(t)
	s := newScheduler(t, Config{
		Sources:     []ics.Source{{ID: "uni", URL: srv.URL, Category: "study"}},
		HorizonDays: 60,
	}, target)
	ctx := context.Background()

	report, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Upserted)
	assert.Equal(t, 1, report.Skipped, "all-day events are not imported")

	view, err := target.Day(ctx, model.Day{Year: 2025, Month: time.June, Day: 9}, 60, layout.FullDay)
	require.NoError(t, err)
	require.Len(t, view.Events, 1)
	assert.Equal(t, "Lecture", view.Events[0].Title)
	assert.Equal(t, "study", view.Events[0].Category)
	assert.InDelta(t, 90, view.Rects[0].Height, 1e-9)

	// Re-running does not duplicate.
	report, err = s.RunOnce(ctx)
	require.NoError(t, err)
	all, err := target.Repository().List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	// Dropping instances from the feed removes them.
	count.Store("2")
	report, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Removed)
	all, err = target.Repository().List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestImportKeepsLocalEdits(t *testing.T) {
	target := newTarget(t)
	s := newScheduler(t, Config{HorizonDays: 60}, target)
	ctx := context.Background()
	src := ics.Source{ID: "uni"}

	_, err := s.Import(ctx, src, feed("4"))
	require.NoError(t, err)
	all, err := target.Repository().List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	dropped, moved := all[0], all[1]

	later := moved.Start.Add(15 * time.Minute)
	_, err = target.Update(ctx, moved.ID, model.Changes{Start: &later})
	require.NoError(t, err)
	require.NoError(t, target.Delete(ctx, dropped.ID, false))

	report, err := s.Import(ctx, src, feed("4"))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Kept)
	assert.Equal(t, 2, report.Upserted)

	got, err := target.Repository().Get(ctx, moved.ID)
	require.NoError(t, err)
	assert.True(t, got.Start.Equal(later), "a refresh does not undo a drag")
	assert.True(t, got.Edited)

	gone, err := target.Repository().Get(ctx, dropped.ID)
	require.NoError(t, err)
	assert.True(t, gone.Deleted(), "a refresh does not bring back deleted events")

	// The edited occurrence survives even after the feed drops it.
	_, err = s.Import(ctx, src, feed("1"))
	require.NoError(t, err)
	_, err = target.Repository().Get(ctx, moved.ID)
	assert.NoError(t, err)
}

func TestRunOnceKeepsManualEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(feed("1"))
	}))
	defer srv.Close()

	target := newTarget(t)
	ctx := context.Background()
	start := time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC)
	_, err := target.Create(ctx, model.Event{Title: "lunch", Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)

	s := newScheduler(t, Config{Sources: []ics.Source{{ID: "uni", URL: srv.URL}}}, target)
	_, err = s.RunOnce(ctx)
	require.NoError(t, err)

	all, err := target.Repository().List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRunOnceCollectsSourceErrors(t *testing.T) {
	target := newTarget(t)
	s := newScheduler(t, Config{Sources: []ics.Source{{ID: "broken"}}}, target)

	report, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Len(t, report.Errors, 1)
	assert.Zero(t, report.Upserted)
}

func TestImportLocalPayload(t *testing.T) {
	target := newTarget(t)
	s := newScheduler(t, Config{}, target)

	report, err := s.Import(context.Background(), ics.Source{ID: "file"}, feed("3"))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Upserted)

	_, err = s.Import(context.Background(), ics.Source{ID: "file"}, nil)
	assert.Error(t, err)
}

func TestStartValidatesSchedule(t *testing.T) {
	target := newTarget(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newScheduler(t, Config{Schedule: "not a cron", Sources: []ics.Source{{ID: "x", URL: "http://127.0.0.1:1"}}}, target)
	assert.Error(t, s.Start(ctx))

	s = newScheduler(t, Config{Schedule: "*/15 * * * *", Sources: []ics.Source{{ID: "x", URL: "http://127.0.0.1:1"}}}, target)
	require.NoError(t, s.Start(ctx))
	s.Stop()

	assert.NoError(t, newScheduler(t, Config{}, target).Start(ctx), "no schedule disables the loop")
}

func TestRange(t *testing.T) {
	s := newScheduler(t, Config{BackfillDays: 7, HorizonDays: 14}, newTarget(t))
	from, to := s.Range()
	assert.Equal(t, time.Date(2025, 5, 25, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), to)
}
