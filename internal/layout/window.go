package layout

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrEmptyWindow reports a window that ends at or before it starts.
var ErrEmptyWindow = errors.New("layout: window ends before it starts")

// Window limits rendering to part of a day, in whole hours from the day
// origin. The zero value and {0, 24} both mean the full day.
type Window struct {
	StartHour int `json:"start_hour" yaml:"day_start_hour"`
	EndHour   int `json:"end_hour" yaml:"day_end_hour"`
}

// FullDay is the unrestricted window.
var FullDay = Window{StartHour: 0, EndHour: 24}

// Full reports whether w covers the whole day.
func (w Window) Full() bool {
	return w == Window{} || (w.StartHour <= 0 && w.EndHour >= 24)
}

// Clamped bounds both hours to 0..24. The zero value becomes FullDay; any
// other window that ends at or before its start is an error.
func (w Window) Clamped() (Window, error) {
	if w == (Window{}) {
		return FullDay, nil
	}
	w.StartHour = min(max(w.StartHour, 0), 24)
	w.EndHour = min(max(w.EndHour, 0), 24)
	if w.EndHour <= w.StartHour {
		return w, fmt.Errorf("%w: %d..%d", ErrEmptyWindow, w.StartHour, w.EndHour)
	}
	return w, nil
}

// Includes reports whether [start, end] touches the window. Partial overlap
// is enough; clipping is left to the renderer.
func (w Window) Includes(origin, start, end time.Time) bool {
	if w.Full() {
		return true
	}
	startHour := hourIndex(origin, start)
	endHour := hourIndex(origin, end)
	return endHour >= w.StartHour && startHour <= w.EndHour
}

// Filter returns the events included by w, preserving order. The result
// shares no backing array with events.
func Filter[T Interval](events []T, origin time.Time, w Window) []T {
	out := make([]T, 0, len(events))
	for _, ev := range events {
		if w.Includes(origin, ev.Begin(), ev.Finish()) {
			out = append(out, ev)
		}
	}
	return out
}

func hourIndex(origin, t time.Time) int {
	return int(math.Floor(t.Sub(origin).Hours()))
}
