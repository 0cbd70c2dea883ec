package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"recall/internal/calendar"
	"recall/internal/ics"
	"recall/internal/layout"
	appLog "recall/internal/log"
	"recall/internal/model"
	"recall/internal/store"
)

// maxBody bounds JSON request bodies.
const maxBody = 1 << 20

type rectDTO struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Category string    `json:"category,omitempty"`
	Color    string    `json:"color,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`

	Column  int     `json:"column"`
	Columns int     `json:"columns"`
	X       float64 `json:"x"`
	Width   float64 `json:"width"`
	Offset  float64 `json:"offset"`
	Height  float64 `json:"height"`

	Forward          layout.Range `json:"forward"`
	Backward         layout.Range `json:"backward"`
	BackwardOverlaps []int        `json:"backward_overlaps"`
}

type layoutResponse struct {
	Date     string        `json:"date"`
	Timezone string        `json:"timezone"`
	Scale    float64       `json:"scale"`
	Window   layout.Window `json:"window"`
	Height   float64       `json:"height"`
	Events   []rectDTO     `json:"events"`
}

func newLayoutResponse(view calendar.DayView) layoutResponse {
	resp := layoutResponse{
		Date:     view.Day.String(),
		Timezone: view.Origin.Location().String(),
		Scale:    view.Scale,
		Window:   view.Window,
		Height:   dayHeight(view),
		Events:   make([]rectDTO, 0, len(view.Rects)),
	}
	for i, r := range view.Rects {
		ev, rec := view.Events[i], view.Records[i]
		resp.Events = append(resp.Events, rectDTO{
			ID:               ev.ID,
			Title:            ev.Title,
			Category:         ev.Category,
			Color:            ev.Color,
			Start:            ev.Start,
			End:              ev.End,
			Column:           r.Column,
			Columns:          r.Columns,
			X:                r.XFraction(),
			Width:            r.WidthFraction(),
			Offset:           r.Offset,
			Height:           r.Height,
			Forward:          rec.Forward,
			Backward:         rec.Backward,
			BackwardOverlaps: append([]int{}, rec.BackwardOverlaps...),
		})
	}
	return resp
}

// dayHeight is the pixel height of the whole day at the view's scale;
// 23 or 25 hours across DST changes.
func dayHeight(view calendar.DayView) float64 {
	end := view.Day.AddDays(1).Start(view.Origin.Location())
	return end.Sub(view.Origin).Hours() * view.Scale
}

// dayParam resolves {date}; "today" means the current day in the service
// zone.
func (s *Server) dayParam(r *http.Request) (model.Day, error) {
	raw := r.PathValue("date")
	if raw == "" || raw == "today" {
		return model.DayOf(time.Now(), s.svc.Location()), nil
	}
	return model.ParseDay(raw)
}

// viewParams reads scale, start_hour and end_hour, defaulting to config.
// Hours are clamped to 0..24; a window that ends before it starts is an
// error.
func (s *Server) viewParams(r *http.Request) (float64, layout.Window, error) {
	q := r.URL.Query()
	scale := s.cfg.Scale
	if v, err := strconv.ParseFloat(q.Get("scale"), 64); err == nil {
		scale = v
	}
	window := s.cfg.Window
	window.StartHour = parseIntDefault(q.Get("start_hour"), window.StartHour)
	window.EndHour = parseIntDefault(q.Get("end_hour"), window.EndHour)
	window, err := window.Clamped()
	if err != nil {
		return 0, window, err
	}
	return layout.ClampScale(scale), window, nil
}

// handleLayout returns positioned rects for one day.
//
// GET /api/days/{date}/layout?scale=60&start_hour=0&end_hour=24
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	day, err := s.dayParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	scale, window, err := s.viewParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.svc.Focus(day)

	view, err := s.svc.Day(r.Context(), day, scale, window)
	if err != nil {
		appLog.Error("api layout failed", err, "date", day.String())
		writeError(w, http.StatusInternalServerError, "failed to lay out day")
		return
	}
	writeJSON(w, http.StatusOK, newLayoutResponse(view))
}

type eventsResponse struct {
	From   time.Time     `json:"from"`
	To     time.Time     `json:"to"`
	Events []model.Event `json:"events"`
}

// handleListEvents returns events starting in [from, to).
//
// GET /api/events?from=2025-06-01&to=2025-06-08 (defaults: today, +7 days)
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	loc := s.svc.Location()
	q := r.URL.Query()

	from := model.DayOf(time.Now(), loc)
	if v := q.Get("from"); v != "" {
		d, err := model.ParseDay(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		from = d
	}
	to := from.AddDays(7)
	if v := q.Get("to"); v != "" {
		d, err := model.ParseDay(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		to = d
	}
	if to.Start(loc).Before(from.Start(loc)) {
		writeError(w, http.StatusBadRequest, "to is before from")
		return
	}

	events, err := s.svc.Range(r.Context(), from.Start(loc), to.Start(loc))
	if err != nil {
		appLog.Error("api events failed", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{From: from.Start(loc), To: to.Start(loc), Events: events})
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var ev model.Event
	if !decodeBody(w, r, &ev) {
		return
	}
	// Server-owned fields.
	ev.ID, ev.Source, ev.DeletedAt, ev.Edited = "", "", nil, false
	ev.CreatedAt, ev.UpdatedAt = time.Time{}, time.Time{}

	created, err := s.svc.Create(r.Context(), ev)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var changes model.Changes
	if !decodeBody(w, r, &changes) {
		return
	}
	if changes.Empty() {
		writeError(w, http.StatusBadRequest, "no changes")
		return
	}
	updated, err := s.svc.Update(r.Context(), r.PathValue("id"), changes)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteEvent soft-deletes; ?hard=true removes the record.
func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	hard, _ := strconv.ParseBool(r.URL.Query().Get("hard"))
	if err := s.svc.Delete(r.Context(), r.PathValue("id"), hard); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	events, err := s.svc.Repository().List(r.Context())
	if err != nil {
		appLog.Error("api export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to export")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="recall.ics"`)
	if err := ics.Export(w, events); err != nil {
		appLog.Error("api export write failed", err)
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		writeError(w, http.StatusNotImplemented, "no ICS sources configured")
		return
	}
	report, err := s.refresh.RunOnce(r.Context())
	resp := map[string]any{
		"sources":  report.Sources,
		"upserted": report.Upserted,
		"removed":  report.Removed,
		"skipped":  report.Skipped,
	}
	status := http.StatusOK
	if err != nil {
		resp["error"] = err.Error()
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidRange), errors.Is(err, store.ErrMissingTitle):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		appLog.Error("api store error", err)
		writeError(w, http.StatusInternalServerError, "storage error")
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
