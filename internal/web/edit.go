package web

import (
	"errors"
	"net/http"
	"time"

	"recall/internal/edit"
	"recall/internal/layout"
	"recall/internal/model"
)

type editBeginRequest struct {
	Date  string  `json:"date"`
	ID    string  `json:"id"`
	Mode  string  `json:"mode"` // move, resize_top, resize_bottom
	Scale float64 `json:"scale,omitempty"`
}

type editDragRequest struct {
	DY float64 `json:"dy"`
}

type editState struct {
	Mode   string    `json:"mode"`
	ID     string    `json:"id"`
	Date   string    `json:"date"`
	Offset float64   `json:"offset"`
	Height float64   `json:"height"`
	Column int       `json:"column"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

type editOutcome struct {
	Committed bool        `json:"committed"`
	Event     model.Event `json:"event"`
	Error     string      `json:"error,omitempty"`
}

func (s *Server) stateLocked() editState {
	anchor, _ := s.session.Anchor()
	preview := s.session.Preview()
	start, end := s.session.Proposed()
	return editState{
		Mode:   s.session.Mode().String(),
		ID:     anchor.ID,
		Date:   s.editDay.String(),
		Offset: preview.Offset,
		Height: preview.Height,
		Column: preview.Column,
		Start:  start,
		End:    end,
	}
}

func (s *Server) activeLocked() bool {
	return s.session != nil && s.session.Mode() != edit.Idle
}

// handleEditBegin starts a drag gesture on one event of a day.
func (s *Server) handleEditBegin(w http.ResponseWriter, r *http.Request) {
	var req editBeginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	day, err := model.ParseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	scale := req.Scale
	if scale == 0 {
		scale = s.cfg.Scale
	}

	s.editMu.Lock()
	defer s.editMu.Unlock()
	if s.activeLocked() {
		writeError(w, http.StatusConflict, edit.ErrSessionBusy.Error())
		return
	}

	view, err := s.svc.Day(r.Context(), day, scale, layout.FullDay)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to lay out day")
		return
	}
	i := -1
	for k, ev := range view.Events {
		if ev.ID == req.ID {
			i = k
			break
		}
	}
	if i < 0 {
		writeError(w, http.StatusNotFound, "event not on "+day.String())
		return
	}

	session := edit.NewSession(layout.NewProjector(view.Origin, view.Scale), s.rounding, s.svc)
	switch req.Mode {
	case "move", "":
		err = session.BeginMove(view.Events[i], view.Rects[i])
	case "resize_top":
		err = session.BeginResize(view.Events[i], view.Rects[i], edit.EdgeTop)
	case "resize_bottom":
		err = session.BeginResize(view.Events[i], view.Rects[i], edit.EdgeBottom)
	default:
		writeError(w, http.StatusBadRequest, "unknown mode "+req.Mode)
		return
	}
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.session, s.editDay = session, day
	writeJSON(w, http.StatusOK, s.stateLocked())
}

// handleEditDrag reports the translation since the gesture began.
func (s *Server) handleEditDrag(w http.ResponseWriter, r *http.Request) {
	var req editDragRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s.editMu.Lock()
	defer s.editMu.Unlock()
	if !s.activeLocked() {
		writeError(w, http.StatusConflict, edit.ErrNoSession.Error())
		return
	}
	if err := s.session.Drag(req.DY); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.stateLocked())
}

// handleEditEnd commits the gesture. A failed commit answers 422 with the
// pre-gesture event so the client can snap back.
func (s *Server) handleEditEnd(w http.ResponseWriter, r *http.Request) {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	if !s.activeLocked() {
		writeError(w, http.StatusConflict, edit.ErrNoSession.Error())
		return
	}

	out, err := s.session.End(r.Context())
	s.session = nil
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, edit.ErrCommitFailed) {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, editOutcome{Event: out.Event, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, editOutcome{Committed: out.Committed, Event: out.Event})
}

func (s *Server) handleEditCancel(w http.ResponseWriter, _ *http.Request) {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	if s.session != nil {
		s.session.Cancel()
		s.session = nil
	}
	w.WriteHeader(http.StatusNoContent)
}
