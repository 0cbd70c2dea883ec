package layout

import "time"

// CollisionRecord describes where one event sits relative to its neighbours.
// Records are computed once per day and are independent of the zoom level.
type CollisionRecord struct {
	// Forward is the run of events that a single horizontal scan line can
	// cross together with the run's first event. Every member of the run
	// carries the same Forward range.
	Forward Range `json:"forward"`

	// Backward spans the earlier events of the same overlap cluster,
	// [clusterStart, i). Empty for the first event of a cluster.
	Backward Range `json:"backward"`

	// BackwardOverlaps lists, ascending, the indices inside Backward whose
	// intervals collide with this event directly. Their columns are the ones
	// this event must avoid.
	BackwardOverlaps []int `json:"backward_overlaps,omitempty"`

	// Column is this event's zero-based column within its cluster.
	Column int `json:"column"`

	// Columns is the number of columns the whole cluster needs.
	Columns int `json:"columns"`
}

// Isolated reports whether the event overlaps nothing.
func (r CollisionRecord) Isolated() bool {
	return r.Columns <= 1
}

// ComputeCollisionRecords returns one record per event, in input order.
//
// events must be sorted ascending by start (see Sort). Unsorted input is a
// caller bug and yields meaningless columns; it is not detected here. Empty
// input yields an empty result. The function is pure: it neither retains nor
// mutates events.
//
// The cursor walks forward group by group. For each group the scan keeps a
// shrinking end bound, min(end) over the members so far, so the group only
// grows while every member still shares one instant. Within a group each
// event then scans backwards through its cluster for direct overlaps and
// takes the lowest column none of them uses. Because any two colliding
// events are in the same cluster and the later one avoids the earlier one's
// column, no two colliding events ever share a column.
func ComputeCollisionRecords[T Interval](events []T) []CollisionRecord {
	n := len(events)
	records := make([]CollisionRecord, n)
	if n == 0 {
		return records
	}

	starts := make([]time.Time, n)
	ends := make([]time.Time, n)
	for i := range events {
		starts[i] = events[i].Begin()
		ends[i] = effectiveEnd(starts[i], events[i].Finish())
	}

	clusterStart := 0
	clusterEnd := ends[0]

	i := 0
	for i < n {
		bound := ends[i]
		j := i + 1
		for j < n && starts[j].Before(bound) {
			if ends[j].Before(bound) {
				bound = ends[j]
			}
			j++
		}
		forward := Range{Lo: i, Hi: j}

		for k := i; k < j; k++ {
			if k > clusterStart && !starts[k].Before(clusterEnd) {
				finishCluster(records, clusterStart, k)
				clusterStart = k
				clusterEnd = ends[k]
			} else if ends[k].After(clusterEnd) {
				clusterEnd = ends[k]
			}

			rec := &records[k]
			rec.Forward = forward
			rec.Backward = Range{Lo: clusterStart, Hi: k}
			for b := clusterStart; b < k; b++ {
				if collides(starts[b], ends[b], starts[k], ends[k]) {
					rec.BackwardOverlaps = append(rec.BackwardOverlaps, b)
				}
			}
			rec.Column = lowestFreeColumn(records, rec.BackwardOverlaps)
		}

		// Skip past the consumed group.
		i = j
	}
	finishCluster(records, clusterStart, n)

	return records
}

// lowestFreeColumn returns the smallest column not used by any of the given
// records. With m overlaps the answer is at most m.
func lowestFreeColumn(records []CollisionRecord, overlaps []int) int {
	if len(overlaps) == 0 {
		return 0
	}
	used := make([]bool, len(overlaps)+1)
	for _, b := range overlaps {
		if c := records[b].Column; c < len(used) {
			used[c] = true
		}
	}
	for c, taken := range used {
		if !taken {
			return c
		}
	}
	return len(overlaps)
}

// finishCluster stamps the cluster's column count on records[lo:hi].
func finishCluster(records []CollisionRecord, lo, hi int) {
	columns := 1
	for k := lo; k < hi; k++ {
		if c := records[k].Column + 1; c > columns {
			columns = c
		}
	}
	for k := lo; k < hi; k++ {
		records[k].Columns = columns
	}
}
