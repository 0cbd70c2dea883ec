package edit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"recall/internal/layout"
	appLog "recall/internal/log"
	"recall/internal/model"
)

var (
	ErrSessionBusy  = errors.New("edit: another gesture is in progress")
	ErrNoSession    = errors.New("edit: no gesture in progress")
	ErrCommitFailed = errors.New("edit: commit failed")
)

// Mode is the gesture a session is tracking.
type Mode int

const (
	Idle Mode = iota
	Moving
	ResizingTop
	ResizingBottom
)

func (m Mode) String() string {
	switch m {
	case Moving:
		return "moving"
	case ResizingTop:
		return "resizing_top"
	case ResizingBottom:
		return "resizing_bottom"
	default:
		return "idle"
	}
}

// Edge selects the resize handle.
type Edge int

const (
	EdgeTop Edge = iota
	EdgeBottom
)

// Updater persists an edit. nil fields in Changes are left untouched.
type Updater interface {
	Update(ctx context.Context, id string, changes model.Changes) (model.Event, error)
}

// Outcome reports how a gesture ended.
type Outcome struct {
	// Committed is false for zero-movement gestures and failed commits.
	Committed bool
	// Event is the stored event after a commit, otherwise the pre-gesture
	// snapshot the caller should redraw.
	Event   model.Event
	Changes model.Changes
}

// Session is the drag state of one event. It is owned by the single pointer
// driving the gesture and is not safe for concurrent use.
type Session struct {
	proj     layout.Projector
	rounding Rounding
	updater  Updater

	mode                Mode
	anchor              model.Event
	anchorRect          layout.LayoutRect
	pendingOffset       float64
	pendingResizeOffset float64
}

// NewSession returns an idle session that snaps to rounding using proj's
// scale and commits through u.
func NewSession(proj layout.Projector, rounding Rounding, u Updater) *Session {
	return &Session{proj: proj, rounding: rounding, updater: u}
}

func (s *Session) Mode() Mode { return s.mode }

// Anchor returns the event being edited, if any.
func (s *Session) Anchor() (model.Event, bool) {
	return s.anchor, s.mode != Idle
}

// Pending returns the snapped move and resize offsets in pixels.
func (s *Session) Pending() (offset, resize float64) {
	return s.pendingOffset, s.pendingResizeOffset
}

// BeginMove starts dragging ev, whose current geometry is rect.
func (s *Session) BeginMove(ev model.Event, rect layout.LayoutRect) error {
	return s.begin(Moving, ev, rect)
}

// BeginResize starts dragging one edge of ev.
func (s *Session) BeginResize(ev model.Event, rect layout.LayoutRect, edge Edge) error {
	mode := ResizingTop
	if edge == EdgeBottom {
		mode = ResizingBottom
	}
	return s.begin(mode, ev, rect)
}

func (s *Session) begin(mode Mode, ev model.Event, rect layout.LayoutRect) error {
	if s.mode != Idle {
		return fmt.Errorf("%w: %s", ErrSessionBusy, s.mode)
	}
	s.mode = mode
	s.anchor = ev
	s.anchorRect = rect
	s.pendingOffset = 0
	s.pendingResizeOffset = 0
	appLog.Debug("edit gesture begin", "id", ev.ID, "mode", mode)
	return nil
}

// Drag records the raw vertical translation (pixels since the gesture
// began, positive is later) and snaps it to the rounding step.
func (s *Session) Drag(dy float64) error {
	switch s.mode {
	case Moving:
		s.pendingOffset = s.snap(dy)
	case ResizingTop:
		// Moving the top edge down shortens the event.
		s.pendingResizeOffset = math.Min(s.snap(dy), s.shrinkRoom())
	case ResizingBottom:
		s.pendingResizeOffset = math.Max(s.snap(dy), -s.shrinkRoom())
	default:
		return ErrNoSession
	}
	return nil
}

func (s *Session) snap(dy float64) float64 {
	step := s.proj.DurationToPixels(s.rounding.Step())
	if step <= 0 {
		return 0
	}
	return math.Round(dy/step) * step
}

// shrinkRoom is how many pixels the event may lose before hitting
// MinDuration. Events already shorter than that may only grow.
func (s *Session) shrinkRoom() float64 {
	room := s.proj.DurationToPixels(s.anchor.Duration() - MinDuration)
	return math.Max(0, room)
}

// Preview returns the anchor geometry with the pending offsets applied. The
// column is kept from the anchor so the box does not jump sideways while it
// is dragged.
func (s *Session) Preview() layout.LayoutRect {
	r := s.anchorRect
	switch s.mode {
	case Moving:
		r.Offset += s.pendingOffset
	case ResizingTop:
		r.Offset += s.pendingResizeOffset
		r.Height -= s.pendingResizeOffset
	case ResizingBottom:
		r.Height += s.pendingResizeOffset
	}
	return r
}

// Proposed returns the start and end the gesture would commit right now.
func (s *Session) Proposed() (start, end time.Time) {
	start, end = s.anchor.Start, s.anchor.End
	switch s.mode {
	case Moving:
		delta := s.toDuration(s.pendingOffset)
		start, end = start.Add(delta), end.Add(delta)
	case ResizingTop:
		start = start.Add(s.toDuration(s.pendingResizeOffset))
		if limit := end.Add(-MinDuration); start.After(limit) && s.anchor.Duration() >= MinDuration {
			start = limit
		}
	case ResizingBottom:
		end = end.Add(s.toDuration(s.pendingResizeOffset))
		if limit := start.Add(MinDuration); end.Before(limit) && s.anchor.Duration() >= MinDuration {
			end = limit
		}
	}
	return start, end
}

func (s *Session) toDuration(px float64) time.Duration {
	return s.proj.PixelsToDuration(px).Round(time.Second)
}

// Cancel abandons the gesture without committing.
func (s *Session) Cancel() {
	if s.mode != Idle {
		appLog.Debug("edit gesture cancelled", "id", s.anchor.ID, "mode", s.mode)
	}
	s.reset()
}

func (s *Session) reset() {
	s.mode = Idle
	s.anchor = model.Event{}
	s.anchorRect = layout.LayoutRect{}
	s.pendingOffset = 0
	s.pendingResizeOffset = 0
}

// End finishes the gesture. Zero net movement commits nothing. A failed
// commit leaves the session idle and returns the pre-gesture snapshot
// together with an error wrapping ErrCommitFailed; it is not retried.
func (s *Session) End(ctx context.Context) (Outcome, error) {
	if s.mode == Idle {
		return Outcome{}, ErrNoSession
	}

	anchor := s.anchor
	mode := s.mode
	start, end := s.Proposed()

	var changes model.Changes
	switch mode {
	case Moving:
		if !start.Equal(anchor.Start) {
			changes.Start, changes.End = &start, &end
		}
	case ResizingTop:
		if !start.Equal(anchor.Start) {
			changes.Start = &start
		}
	case ResizingBottom:
		if !end.Equal(anchor.End) {
			changes.End = &end
		}
	}
	s.reset()

	if changes.Empty() {
		return Outcome{Event: anchor}, nil
	}

	updated, err := s.updater.Update(ctx, anchor.ID, changes)
	if err != nil {
		appLog.Error("edit commit failed; reverting", err, "id", anchor.ID, "mode", mode)
		return Outcome{Event: anchor}, fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}

	appLog.Info("edit committed", "id", anchor.ID, "mode", mode,
		"start", updated.Start.Format(time.RFC3339), "end", updated.End.Format(time.RFC3339))
	return Outcome{Committed: true, Event: updated, Changes: changes}, nil
}
