package layout

// DayLayout holds one day's sorted events and their collision records.
// Overlap relationships do not depend on the zoom level, so a DayLayout is
// built once per day snapshot and re-projected on every scale change.
type DayLayout[T Interval] struct {
	Events  []T
	Records []CollisionRecord
}

// NewDayLayout copies and sorts events, then analyzes them.
func NewDayLayout[T Interval](events []T) *DayLayout[T] {
	sorted := make([]T, len(events))
	copy(sorted, events)
	Sort(sorted)
	return &DayLayout[T]{
		Events:  sorted,
		Records: ComputeCollisionRecords(sorted),
	}
}

// Len is the number of events in the day.
func (d *DayLayout[T]) Len() int {
	return len(d.Events)
}

// Reproject projects every event with p into dst, reusing its storage.
func (d *DayLayout[T]) Reproject(p Projector, dst []LayoutRect) []LayoutRect {
	return ProjectInto(dst, p, d.Records, d.Events)
}

// IndexOf returns the position of the event with key, or -1.
func (d *DayLayout[T]) IndexOf(key string) int {
	for i, ev := range d.Events {
		if ev.Key() == key {
			return i
		}
	}
	return -1
}
