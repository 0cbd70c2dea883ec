package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall/internal/calendar"
	"recall/internal/config"
	"recall/internal/daycache"
	"recall/internal/model"
	"recall/internal/store"
)

var day = model.Day{Year: 2025, Month: time.June, Day: 2}

func at(hour, minute int) time.Time {
	return day.Start(time.UTC).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func seed(id string, h1, m1, h2, m2 int) model.Event {
	return model.Event{ID: id, Title: id, Start: at(h1, m1), End: at(h2, m2)}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	cache, err := daycache.New(time.UTC, 0)
	require.NoError(t, err)
	metrics, err := NewMetrics(cache)
	require.NoError(t, err)
	svc := calendar.NewService(store.NewMemory(
		seed("a", 9, 0, 10, 0),
		seed("b", 9, 30, 11, 0),
		seed("c", 9, 45, 10, 15),
	), cache, metrics)
	require.NoError(t, svc.Reload(context.Background()))

	srv := httptest.NewServer(NewServer(cfg, svc, Options{Metrics: metrics}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func getLayout(t *testing.T, srv *httptest.Server, query string) layoutResponse {
	t.Helper()
	resp := do(t, http.MethodGet, srv.URL+"/api/days/2025-06-02/layout"+query, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[layoutResponse](t, resp)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	resp := do(t, http.MethodGet, srv.URL+"/health", "")
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestLayoutEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	got := getLayout(t, srv, "?scale=60")
	assert.Equal(t, "2025-06-02", got.Date)
	assert.InDelta(t, 24*60, got.Height, 1e-9)
	require.Len(t, got.Events, 3)

	columns := map[int]bool{}
	for _, ev := range got.Events {
		assert.Equal(t, 3, ev.Columns)
		assert.InDelta(t, 1.0/3, ev.Width, 1e-9)
		columns[ev.Column] = true
	}
	assert.Len(t, columns, 3, "overlapping events never share a column")
	assert.Equal(t, "b", got.Events[1].ID)
	assert.InDelta(t, 90, got.Events[1].Height, 1e-9)
	assert.InDelta(t, 570, got.Events[1].Offset, 1e-9)

	clamped := getLayout(t, srv, "?scale=1000")
	assert.Equal(t, 200.0, clamped.Scale)

	windowed := getLayout(t, srv, "?start_hour=10&end_hour=12")
	assert.Len(t, windowed.Events, 3, "events touching the window are kept")

	resp := do(t, http.MethodGet, srv.URL+"/api/days/june/layout", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInvertedWindowIsRejected(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, path := range []string{"/api/days/2025-06-02/layout", "/day/2025-06-02"} {
		resp := do(t, http.MethodGet, srv.URL+path+"?start_hour=20&end_hour=5", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)

		resp = do(t, http.MethodGet, srv.URL+path+"?start_hour=-4&end_hour=99", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode, "out of range hours are clamped: %s", path)
	}

	got := getLayout(t, srv, "?start_hour=-4&end_hour=99")
	assert.Equal(t, 0, got.Window.StartHour)
	assert.Equal(t, 24, got.Window.EndHour)
	assert.Len(t, got.Events, 3)
}

func TestEventCRUD(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := do(t, http.MethodPost, srv.URL+"/api/events",
		`{"title":"gym","category":"health","start":"2025-06-02T18:00:00Z","end":"2025-06-02T19:00:00Z"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[model.Event](t, resp)
	assert.NotEmpty(t, created.ID)

	resp = do(t, http.MethodPost, srv.URL+"/api/events", `{"start":"2025-06-02T18:00:00Z","end":"2025-06-02T19:00:00Z"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/api/events", `{"title":"x","bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPatch, srv.URL+"/api/events/"+created.ID, `{"end":"2025-06-02T17:00:00Z"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = do(t, http.MethodPatch, srv.URL+"/api/events/missing", `{"title":"y"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPatch, srv.URL+"/api/events/"+created.ID, `{"end":"2025-06-02T20:00:00Z"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[model.Event](t, resp).End.Equal(at(20, 0)))

	resp = do(t, http.MethodGet, srv.URL+"/api/events?from=2025-06-02&to=2025-06-03", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[eventsResponse](t, resp).Events, 4)

	resp = do(t, http.MethodDelete, srv.URL+"/api/events/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/events?from=2025-06-02&to=2025-06-03", "")
	assert.Len(t, decode[eventsResponse](t, resp).Events, 3)

	resp = do(t, http.MethodGet, srv.URL+"/api/events?from=2025-06-03&to=2025-06-02", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEditGesture(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := do(t, http.MethodPost, srv.URL+"/api/edit/drag", `{"dy":10}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "drag without a gesture")

	resp = do(t, http.MethodPost, srv.URL+"/api/edit/begin", `{"date":"2025-06-02","id":"b","mode":"move","scale":60}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "moving", decode[editState](t, resp).Mode)

	resp = do(t, http.MethodPost, srv.URL+"/api/edit/begin", `{"date":"2025-06-02","id":"a"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "one gesture at a time")

	resp = do(t, http.MethodPost, srv.URL+"/api/edit/drag", `{"dy":61}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decode[editState](t, resp)
	assert.InDelta(t, 630, state.Offset, 1e-9, "snapped to a whole quarter hour")
	assert.True(t, state.Start.Equal(at(10, 30)))

	resp = do(t, http.MethodPost, srv.URL+"/api/edit/end", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[editOutcome](t, resp)
	assert.True(t, out.Committed)
	assert.True(t, out.Event.End.Equal(at(12, 0)))

	got := getLayout(t, srv, "")
	for _, ev := range got.Events {
		if ev.ID == "b" {
			assert.True(t, ev.Start.Equal(at(10, 30)))
		}
	}
}

func TestEditResizeClampsAndCancel(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := do(t, http.MethodPost, srv.URL+"/api/edit/begin", `{"date":"2025-06-02","id":"a","mode":"resize_bottom"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/api/edit/drag", `{"dy":-500}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decode[editState](t, resp)
	assert.True(t, state.End.Equal(at(9, 15)), "resize stops at the minimum duration")

	resp = do(t, http.MethodPost, srv.URL+"/api/edit/cancel", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/api/edit/end", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/api/edit/begin", `{"date":"2025-06-02","id":"nope"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDayPageAndExport(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := do(t, http.MethodGet, srv.URL+"/day/2025-06-02", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `data-ready="true"`)
	assert.Contains(t, string(body), `data-id="b"`)
	assert.Contains(t, string(body), "09:30-11:00")

	resp = do(t, http.MethodGet, srv.URL+"/api/export.ics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/calendar")
	body, _ = io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "BEGIN:VCALENDAR")
	assert.Contains(t, string(body), "SUMMARY:b")
}

func TestMetricsAndRefresh(t *testing.T) {
	srv := newTestServer(t, nil)
	getLayout(t, srv, "")

	resp := do(t, http.MethodGet, srv.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "recall_layout_passes_total 1")
	assert.Contains(t, string(body), "recall_daycache_misses_total")
	assert.Contains(t, string(body), `recall_http_requests_total{code="2xx",route="layout"} 1`)

	resp = do(t, http.MethodPost, srv.URL+"/api/refresh", "")
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestBasicAuth(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "me", Password: "pw"}
	})

	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/health", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, do(t, http.MethodGet, srv.URL+"/api/events", "").StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	req.SetBasicAuth("me", "pw")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
