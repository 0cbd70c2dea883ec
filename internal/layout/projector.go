package layout

import (
	"math"
	"time"
)

// Scale bounds, in pixels per hour.
const (
	MinScale     = 40.0
	MaxScale     = 200.0
	DefaultScale = 60.0

	// DefaultMinHeight is the sliver height given to zero-length events.
	DefaultMinHeight = 2.0
)

// ClampScale bounds s to [MinScale, MaxScale]. Non-positive or NaN values
// fall back to DefaultScale.
func ClampScale(s float64) float64 {
	if math.IsNaN(s) || s <= 0 {
		return DefaultScale
	}
	return math.Min(MaxScale, math.Max(MinScale, s))
}

// LayoutRect is the drawn geometry of one event. Horizontal placement is
// expressed as a column within Columns equal-width columns; vertical placement
// is in pixels.
type LayoutRect struct {
	Index   int     `json:"index"`
	Key     string  `json:"key"`
	Column  int     `json:"column"`
	Columns int     `json:"columns"`
	Offset  float64 `json:"offset"`
	Height  float64 `json:"height"`
}

// WidthFraction is the share of the day column's width this rect occupies.
func (r LayoutRect) WidthFraction() float64 {
	return 1 / float64(max(1, r.Columns))
}

// XFraction is the left edge as a share of the day column's width.
func (r LayoutRect) XFraction() float64 {
	return float64(r.Column) * r.WidthFraction()
}

// Projector turns collision records into pixel geometry. It is a small value
// type; changing Scale and re-projecting is the whole cost of a zoom frame.
type Projector struct {
	// Origin is the instant drawn at offset zero, normally local midnight.
	Origin time.Time
	// Scale is pixels per hour.
	Scale float64
	// MinHeight floors every height. Zero means DefaultMinHeight.
	MinHeight float64
	// Relative measures offsets from the start of each event's forward group
	// instead of Origin.
	Relative bool
}

// NewProjector returns a projector for origin at a clamped scale.
func NewProjector(origin time.Time, scale float64) Projector {
	return Projector{Origin: origin, Scale: ClampScale(scale)}
}

// PixelsToDuration converts a vertical pixel distance to wall-clock time.
func (p Projector) PixelsToDuration(px float64) time.Duration {
	if p.Scale <= 0 {
		return 0
	}
	return time.Duration(px / p.Scale * float64(time.Hour))
}

// DurationToPixels converts a duration to a vertical pixel distance.
func (p Projector) DurationToPixels(d time.Duration) float64 {
	return d.Hours() * p.Scale
}

// OffsetOf returns the absolute vertical offset of t from Origin.
func (p Projector) OffsetOf(t time.Time) float64 {
	return p.DurationToPixels(t.Sub(p.Origin))
}

// TimeAt is the inverse of OffsetOf.
func (p Projector) TimeAt(offset float64) time.Time {
	return p.Origin.Add(p.PixelsToDuration(offset))
}

func (p Projector) minHeight() float64 {
	if p.MinHeight > 0 {
		return p.MinHeight
	}
	return DefaultMinHeight
}

func (p Projector) rect(index int, key string, rec CollisionRecord, start, end, ref time.Time) LayoutRect {
	height := p.DurationToPixels(end.Sub(start))
	if h := p.minHeight(); height < h {
		height = h
	}
	return LayoutRect{
		Index:   index,
		Key:     key,
		Column:  rec.Column,
		Columns: max(1, rec.Columns),
		Offset:  p.DurationToPixels(start.Sub(ref)),
		Height:  height,
	}
}

func (p Projector) reference(start time.Time) time.Time {
	if p.Relative {
		return start
	}
	return p.Origin
}

// Project returns the rect of events[i].
func Project[T Interval](p Projector, records []CollisionRecord, events []T, i int) LayoutRect {
	rec := records[i]
	ref := p.reference(events[rec.Forward.Lo].Begin())
	return p.rect(i, events[i].Key(), rec, events[i].Begin(), events[i].Finish(), ref)
}

// ProjectAll returns one rect per event, in the same order.
func ProjectAll[T Interval](p Projector, records []CollisionRecord, events []T) []LayoutRect {
	return ProjectInto(nil, p, records, events)
}

// ProjectInto is ProjectAll writing into dst[:0]. It allocates only when dst
// lacks capacity, so callers re-projecting every animation frame can reuse
// one buffer.
func ProjectInto[T Interval](dst []LayoutRect, p Projector, records []CollisionRecord, events []T) []LayoutRect {
	dst = dst[:0]
	if cap(dst) < len(events) {
		dst = make([]LayoutRect, 0, len(events))
	}
	for i := range events {
		dst = append(dst, Project(p, records, events, i))
	}
	return dst
}

// ProjectGroup returns one rect per index in records[i].Forward.
func ProjectGroup[T Interval](p Projector, records []CollisionRecord, events []T, i int) []LayoutRect {
	fwd := records[i].Forward
	out := make([]LayoutRect, 0, fwd.Len())
	for k := fwd.Lo; k < fwd.Hi; k++ {
		out = append(out, Project(p, records, events, k))
	}
	return out
}
