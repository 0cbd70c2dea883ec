package layout

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type span struct {
	key        string
	start, end time.Time
}

func (s span) Key() string       { return s.key }
func (s span) Begin() time.Time  { return s.start }
func (s span) Finish() time.Time { return s.end }

var day = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

// at parses "15:04" on the fixture day.
func at(hhmm string) time.Time {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		panic(err)
	}
	return day.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
}

func ev(key, from, to string) span {
	return span{key: key, start: at(from), end: at(to)}
}

func TestCollides(t *testing.T) {
	cases := []struct {
		name string
		a, b span
		want bool
	}{
		{"touching boundary", ev("a", "10:00", "11:00"), ev("b", "11:00", "12:00"), false},
		{"disjoint", ev("a", "08:00", "09:00"), ev("b", "10:00", "11:00"), false},
		{"coincident", ev("a", "10:00", "11:00"), ev("b", "10:00", "11:00"), true},
		{"partial", ev("a", "09:00", "10:00"), ev("b", "09:30", "11:00"), true},
		{"nested", ev("a", "09:00", "12:00"), ev("b", "10:00", "10:30"), true},
		{"same start different end", ev("a", "10:00", "12:00"), ev("b", "10:00", "11:00"), true},
		{"zero length coincident", ev("a", "10:00", "10:00"), ev("b", "10:00", "10:00"), true},
		{"zero length inside", ev("a", "09:00", "11:00"), ev("b", "10:00", "10:00"), true},
		{"zero length at end boundary", ev("a", "09:00", "10:00"), ev("b", "10:00", "10:00"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Collides(tc.a, tc.b))
			assert.Equal(t, tc.want, Collides(tc.b, tc.a), "collision must be symmetric")
		})
	}
}

func TestComputeCollisionRecordsEmpty(t *testing.T) {
	assert.Empty(t, ComputeCollisionRecords([]span{}))
	assert.Empty(t, ComputeCollisionRecords[span](nil))
}

func TestAdjacentEventsKeepFullWidth(t *testing.T) {
	events := []span{ev("a", "10:00", "11:00"), ev("b", "11:00", "12:00")}

	records := ComputeCollisionRecords(events)
	require.Len(t, records, 2)

	for i, rec := range records {
		assert.Equal(t, 0, rec.Column, "event %d", i)
		assert.Equal(t, 1, rec.Columns, "event %d", i)
		assert.Equal(t, Range{Lo: i, Hi: i + 1}, rec.Forward)
		assert.True(t, rec.Backward.Empty())
		assert.True(t, rec.Isolated())
	}
}

func TestCoincidentEventsStack(t *testing.T) {
	events := []span{ev("a", "10:00", "11:00"), ev("b", "10:00", "11:00")}

	records := ComputeCollisionRecords(events)

	assert.Equal(t, Range{Lo: 0, Hi: 2}, records[0].Forward)
	assert.Equal(t, Range{Lo: 0, Hi: 2}, records[1].Forward)
	assert.NotEqual(t, records[0].Column, records[1].Column)
	assert.Equal(t, 2, records[0].Columns)
	assert.Equal(t, 2, records[1].Columns)
	assert.Equal(t, []int{0}, records[1].BackwardOverlaps)
}

func TestThreeWayOverlap(t *testing.T) {
	events := []span{
		ev("a", "09:00", "10:00"),
		ev("b", "09:30", "11:00"),
		ev("c", "09:45", "10:15"),
	}

	records := ComputeCollisionRecords(events)

	seen := map[int]bool{}
	for _, rec := range records {
		assert.Equal(t, Range{Lo: 0, Hi: 3}, rec.Forward)
		assert.Equal(t, 3, rec.Columns)
		seen[rec.Column] = true
	}
	assert.Len(t, seen, 3, "each event needs its own column")

	assert.Equal(t, Range{Lo: 0, Hi: 2}, records[2].Backward)
	assert.Equal(t, []int{0, 1}, records[2].BackwardOverlaps)
}

func TestShrinkingBoundSplitsForwardGroups(t *testing.T) {
	// b ends before c starts, so no single scan line crosses a, b and c even
	// though c still overlaps a.
	events := []span{
		ev("a", "09:00", "12:00"),
		ev("b", "09:30", "10:00"),
		ev("c", "11:00", "11:30"),
	}

	records := ComputeCollisionRecords(events)

	assert.Equal(t, Range{Lo: 0, Hi: 2}, records[0].Forward)
	assert.Equal(t, Range{Lo: 0, Hi: 2}, records[1].Forward)
	assert.Equal(t, Range{Lo: 2, Hi: 3}, records[2].Forward)

	// c overlaps a but not b: it reuses b's column rather than sharing a's.
	assert.Equal(t, []int{0}, records[2].BackwardOverlaps)
	assert.Equal(t, Range{Lo: 0, Hi: 2}, records[2].Backward)
	assert.NotEqual(t, records[0].Column, records[2].Column)
	assert.Equal(t, records[1].Column, records[2].Column)
	for _, rec := range records {
		assert.Equal(t, 2, rec.Columns)
	}
}

func TestSeparateClustersAreIndependent(t *testing.T) {
	events := []span{
		ev("a", "08:00", "09:00"),
		ev("b", "08:30", "09:30"),
		ev("c", "13:00", "14:00"),
		ev("d", "15:00", "16:00"),
		ev("e", "15:00", "15:30"),
		ev("f", "15:10", "15:20"),
	}

	records := ComputeCollisionRecords(events)

	assert.Equal(t, 2, records[0].Columns)
	assert.Equal(t, 2, records[1].Columns)
	assert.Equal(t, 1, records[2].Columns)
	assert.Equal(t, Range{Lo: 3, Hi: 3}, records[3].Backward)
	for _, rec := range records[3:] {
		assert.Equal(t, 3, rec.Columns)
	}
}

func TestComputeCollisionRecordsIsIdempotent(t *testing.T) {
	events := []span{
		ev("a", "09:00", "10:00"),
		ev("b", "09:30", "11:00"),
		ev("c", "09:45", "10:15"),
		ev("d", "10:30", "12:00"),
	}
	snapshot := append([]span(nil), events...)

	first := ComputeCollisionRecords(events)
	second := ComputeCollisionRecords(events)

	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, events, "input must not be mutated")
}

func TestSortAndSorted(t *testing.T) {
	events := []span{
		ev("b", "10:00", "11:00"),
		ev("c", "09:00", "09:30"),
		ev("a", "10:00", "10:30"),
	}
	assert.False(t, Sorted(events))

	Sort(events)

	assert.True(t, Sorted(events))
	keys := make([]string, len(events))
	for i, e := range events {
		keys[i] = e.key
	}
	assert.Equal(t, []string{"c", "a", "b"}, keys)
}

func TestDayLayoutSortsAndFinds(t *testing.T) {
	input := []span{ev("late", "14:00", "15:00"), ev("early", "08:00", "09:00")}

	dl := NewDayLayout(input)

	require.Equal(t, 2, dl.Len())
	assert.Equal(t, "early", dl.Events[0].key)
	assert.Equal(t, 1, dl.IndexOf("late"))
	assert.Equal(t, -1, dl.IndexOf("missing"))
	assert.Equal(t, "late", input[0].key, "caller slice must keep its order")
}

func ExampleComputeCollisionRecords() {
	events := []span{
		ev("a", "09:00", "10:00"),
		ev("b", "09:30", "11:00"),
		ev("c", "11:00", "12:00"),
	}
	for i, rec := range ComputeCollisionRecords(events) {
		fmt.Printf("%s column %d of %d\n", events[i].key, rec.Column, rec.Columns)
	}
	// Output:
	// a column 0 of 2
	// b column 1 of 2
	// c column 0 of 1
}
