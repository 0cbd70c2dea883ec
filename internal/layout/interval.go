// Package layout arranges one day's events into side-by-side columns so that
// temporally overlapping events never cover each other, and projects the
// result into pixel geometry for a given zoom level.
package layout

import (
	"cmp"
	"slices"
	"time"
)

// Interval is the capability set the layout engine needs from an event:
// a stable identity plus start and end instants.
type Interval interface {
	Key() string
	Begin() time.Time
	Finish() time.Time
}

// Range is a half-open index range [Lo, Hi) into a sorted event slice.
type Range struct {
	Lo int `json:"lo"`
	Hi int `json:"hi"`
}

func (r Range) Len() int {
	if r.Hi < r.Lo {
		return 0
	}
	return r.Hi - r.Lo
}

func (r Range) Empty() bool { return r.Len() == 0 }

func (r Range) Contains(i int) bool { return i >= r.Lo && i < r.Hi }

// effectiveEnd gives zero-length (and inverted) intervals a 1ns extent so
// that they still occupy their start instant.
func effectiveEnd(start, end time.Time) time.Time {
	if !end.After(start) {
		return start.Add(time.Nanosecond)
	}
	return end
}

// Collides reports whether a and b must be drawn in different columns.
//
// Two intervals collide when their open interiors intersect or when they are
// exactly coincident. Touching boundaries (a ends exactly when b starts) is
// not a collision: adjacent events both keep full width.
func Collides(a, b Interval) bool {
	return collides(a.Begin(), a.Finish(), b.Begin(), b.Finish())
}

func collides(s1, e1, s2, e2 time.Time) bool {
	if s1.Equal(s2) && e1.Equal(e2) {
		return true
	}
	return s1.Before(effectiveEnd(s2, e2)) && s2.Before(effectiveEnd(s1, e1))
}

func compareIntervals[T Interval](a, b T) int {
	if c := a.Begin().Compare(b.Begin()); c != 0 {
		return c
	}
	return cmp.Compare(a.Key(), b.Key())
}

// Sort orders events in place by start, breaking ties by key so repeated
// layouts of the same day are stable.
func Sort[T Interval](events []T) {
	slices.SortStableFunc(events, compareIntervals[T])
}

// Sorted reports whether events satisfy the analyzer's precondition.
func Sorted[T Interval](events []T) bool {
	for i := 1; i < len(events); i++ {
		if events[i].Begin().Before(events[i-1].Begin()) {
			return false
		}
	}
	return true
}
