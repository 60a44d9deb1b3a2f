// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package schedule implements the per-node timetable and the backfill
// schedule manager's multi-way merge planner. Grounded on
// qss/core/schedule.py.
package schedule

// interval is a single busy period [start, end) on one node.
type interval struct {
	start float64
	end   float64
}

// edge is a (timestamp, delta) event: +1 means a node becomes free at
// timestamp for at least the requested wall time, -1 cancels a
// previously opened free window once it is too short to use further.
type edge struct {
	timestamp float64
	delta     int
}

// Timetable holds one node's ordered, non-overlapping busy intervals.
type Timetable struct {
	intervals []interval
}

// NewTimetable returns an empty timetable.
func NewTimetable() *Timetable { return &Timetable{} }

// Reset clears all recorded busy intervals.
func (t *Timetable) Reset() { t.intervals = t.intervals[:0] }

// StartEdges enumerates every idle window, starting from currentTime,
// long enough to host wallTime of work, as a finite sequence of open
// (+1) / close (-1) edges. The final edge is always an unmatched +1
// representing the unbounded idle period after the last busy
// interval.
func (t *Timetable) StartEdges(wallTime, currentTime float64) []edge {
	var edges []edge
	idleStart := currentTime

	for _, rec := range t.intervals {
		if idleStart < rec.start && rec.start-idleStart >= wallTime {
			edges = append(edges, edge{idleStart, 1}, edge{rec.start - wallTime, -1})
		} else if rec.end < idleStart {
			continue
		}
		idleStart = rec.end
	}

	edges = append(edges, edge{idleStart, 1})
	return edges
}

// Insert records a new busy interval [start, end), merging it with an
// adjacent interval when the boundaries touch exactly. It panics if
// the new interval does not fit within an existing idle period — a
// programming error in the planner, which must only ever call Insert
// with a start/end pair it just derived from StartEdges.
func (t *Timetable) Insert(start, end float64) {
	idx := 0
	var prev interval
	hasPrev := false

	for {
		var rec interval
		hasRec := idx < len(t.intervals)
		if hasRec {
			rec = t.intervals[idx]
		}

		switch {
		case !hasPrev || prev.end < start:
			switch {
			case !hasRec || end < rec.start:
				t.intervals = append(t.intervals, interval{})
				copy(t.intervals[idx+1:], t.intervals[idx:])
				t.intervals[idx] = interval{start, end}
				return
			case hasRec && end == rec.start:
				t.intervals[idx] = interval{start, rec.end}
				return
			}
		case prev.end == start:
			switch {
			case !hasRec || end < rec.start:
				t.intervals[idx-1] = interval{prev.start, end}
				return
			case hasRec && end == rec.start:
				t.intervals[idx-1] = interval{prev.start, rec.end}
				t.intervals = append(t.intervals[:idx], t.intervals[idx+1:]...)
				return
			}
		default:
			panic("schedule: new record cannot fit into the idle period")
		}

		idx++
		prev, hasPrev = rec, hasRec
	}
}
