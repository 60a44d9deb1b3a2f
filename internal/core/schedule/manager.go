// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package schedule

import (
	"container/heap"
	"sort"

	"github.com/jontk/qss-sim/internal/core/job"
	qsserrors "github.com/jontk/qss-sim/pkg/errors"
)

// scheduledEntry is one committed backfill placement: job jobID will
// start at start on nodeIDs.
type scheduledEntry struct {
	start   float64
	jobID   job.ID
	nodeIDs []int
}

// Manager builds a per-node timetable, runs the multi-way merge sweep
// to find the earliest simultaneous free instant across enough nodes,
// and holds the resulting scheduled-start list until the simulator
// dispatches each entry.
type Manager struct {
	currentTime  float64
	timetables   []*Timetable
	scheduled    []scheduledEntry
}

// NewManager constructs a Manager over numNodes per-node timetables.
func NewManager(numNodes int) *Manager {
	m := &Manager{timetables: make([]*Timetable, numNodes)}
	for i := range m.timetables {
		m.timetables[i] = NewTimetable()
	}
	return m
}

// heapEvent is one entry in the multi-way merge priority queue: the
// next not-yet-consumed edge from node nodeID.
type heapEvent struct {
	timestamp   float64
	nodeID      int
	delta       int
}

type eventHeap []heapEvent

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].timestamp != h[j].timestamp {
		return h[i].timestamp < h[j].timestamp
	}
	if h[i].nodeID != h[j].nodeID {
		return h[i].nodeID < h[j].nodeID
	}
	return h[i].delta < h[j].delta
}
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)        { *h = append(*h, x.(heapEvent)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// scheduleParameters runs the sweep: it merges every node's StartEdges
// stream in timestamp order, tracking the set of currently-open node
// ids, until enough nodes are simultaneously open to host j.
func (m *Manager) scheduleParameters(j *job.Job) (float64, []int, error) {
	wallTime, numNodes := j.WallTime, j.NumNodes

	if wallTime <= 0 || numNodes <= 0 {
		return 0, nil, qsserrors.NewValidationError("job wall_time or num_nodes is not defined")
	}
	if numNodes > len(m.timetables) {
		return 0, nil, qsserrors.NewCapacityError("job requests more nodes than exist")
	}

	edgesPerNode := make([][]edge, len(m.timetables))
	cursor := make([]int, len(m.timetables))
	for id, tt := range m.timetables {
		edgesPerNode[id] = tt.StartEdges(wallTime, m.currentTime)
	}

	pending := &eventHeap{}
	for id, edges := range edgesPerNode {
		if len(edges) == 0 {
			continue
		}
		heap.Push(pending, heapEvent{edges[0].timestamp, id, edges[0].delta})
		cursor[id] = 1
	}

	open := make(map[int]bool, len(m.timetables))
	remaining := numNodes

	for pending.Len() > 0 {
		ev := heap.Pop(pending).(heapEvent)

		if ev.delta > 0 {
			open[ev.nodeID] = true
		} else {
			delete(open, ev.nodeID)
		}
		remaining -= ev.delta

		if remaining == 0 {
			ids := make([]int, 0, len(open))
			for id := range open {
				ids = append(ids, id)
			}
			sort.Ints(ids)
			return ev.timestamp, ids, nil
		}

		if cursor[ev.nodeID] < len(edgesPerNode[ev.nodeID]) {
			next := edgesPerNode[ev.nodeID][cursor[ev.nodeID]]
			cursor[ev.nodeID]++
			heap.Push(pending, heapEvent{next.timestamp, ev.nodeID, next.delta})
		}
	}

	return 0, nil, qsserrors.NewCapacityError("no simultaneous idle window satisfies the request")
}

// NextStartTimestamp is the earliest committed scheduled start, and
// false when nothing is scheduled.
func (m *Manager) NextStartTimestamp() (float64, bool) {
	if len(m.scheduled) == 0 {
		return 0, false
	}
	return m.scheduled[0].start, true
}

// IsBackfillJob reports whether jobID is among the entries scheduled
// to start at exactly the manager's current time.
func (m *Manager) IsBackfillJob(jobID job.ID) bool {
	for _, e := range m.scheduled {
		if m.currentTime != e.start {
			break
		}
		if e.jobID == jobID {
			return true
		}
	}
	return false
}

func (m *Manager) insertSorted(e scheduledEntry) {
	idx := sort.Search(len(m.scheduled), func(i int) bool {
		return e.start <= m.scheduled[i].start
	})
	m.scheduled = append(m.scheduled, scheduledEntry{})
	copy(m.scheduled[idx+1:], m.scheduled[idx:])
	m.scheduled[idx] = e
}

// Add plans one job: it finds the earliest simultaneous idle window
// across enough nodes and commits the placement to every affected
// node's timetable and to the scheduled-start list. A job with
// WallTime == 0 is skipped: Add returns nil without placing it, so it
// never appears in ScheduledDue.
func (m *Manager) Add(j *job.Job, currentTime *float64) error {
	if currentTime != nil {
		m.currentTime = *currentTime
	}

	if j.WallTime == 0 {
		return nil
	}

	start, nodeIDs, err := m.scheduleParameters(j)
	if err != nil {
		return err
	}
	end := start + j.WallTime

	for _, id := range nodeIDs {
		m.timetables[id].Insert(start, end)
	}

	m.insertSorted(scheduledEntry{start: start, jobID: j.ID, nodeIDs: nodeIDs})
	return nil
}

// Reset clears every node's timetable and the scheduled-start list,
// and zeros currentTime, discarding all state from a previous run.
func (m *Manager) Reset() {
	m.currentTime = 0
	for _, tt := range m.timetables {
		tt.Reset()
	}
	m.scheduled = m.scheduled[:0]
}

// SetInitialBusyTimes reseeds every node's timetable from the node
// manager's currently scheduled releases and discards the
// scheduled-start list, ahead of a full re-plan.
func (m *Manager) SetInitialBusyTimes(nodeReleaseTimestamps map[int]float64, currentTime float64) {
	m.currentTime = currentTime

	for id, tt := range m.timetables {
		tt.Reset()
		if release, ok := nodeReleaseTimestamps[id]; ok {
			tt.Insert(currentTime, release)
		}
	}

	m.scheduled = m.scheduled[:0]
}

// CreateScheduleByQueue rebuilds the full schedule from scratch by
// re-adding every job in queue order (planner order, not discipline
// order necessarily — the caller passes whatever iteration the queue
// manager currently exposes).
func (m *Manager) CreateScheduleByQueue(jobs []*job.Job) error {
	for _, j := range jobs {
		if err := m.Add(j, nil); err != nil {
			return err
		}
	}
	return nil
}

// HasScheduledElements reports whether an entry is due to start at
// exactly currentTime.
func (m *Manager) HasScheduledElements(currentTime float64) bool {
	start, ok := m.NextStartTimestamp()
	return ok && currentTime == start
}

// ScheduledDue pops and returns every entry due to start at exactly
// currentTime, advancing the manager's current time.
func (m *Manager) ScheduledDue(currentTime float64) []struct {
	JobID   job.ID
	NodeIDs []int
} {
	var out []struct {
		JobID   job.ID
		NodeIDs []int
	}

	if !m.HasScheduledElements(currentTime) {
		return out
	}

	m.currentTime = currentTime
	for m.HasScheduledElements(currentTime) {
		e := m.scheduled[0]
		m.scheduled = m.scheduled[1:]
		out = append(out, struct {
			JobID   job.ID
			NodeIDs []int
		}{e.jobID, e.nodeIDs})
	}
	return out
}
