// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package node implements the node manager: idle/busy slot tracking
// and the allocation list ordered by release timestamp. Grounded on
// qss/core/node.py.
package node

import (
	"container/heap"

	"github.com/jontk/qss-sim/internal/core/job"
	qsserrors "github.com/jontk/qss-sim/pkg/errors"
)

type state uint8

const (
	idle state = iota
	busy
)

// allocation pairs a running job with the node ids it occupies, kept
// in a min-heap ordered by the job's actual release timestamp so
// Manager.NextReleaseTimestamp and StopProcessing are O(log n).
type allocation struct {
	job     *job.Job
	nodeIDs []int
}

type allocationHeap []allocation

func (h allocationHeap) Len() int { return len(h) }
func (h allocationHeap) Less(i, j int) bool {
	ri, _ := h[i].job.ReleaseTimestamp()
	rj, _ := h[j].job.ReleaseTimestamp()
	return ri < rj
}
func (h allocationHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *allocationHeap) Push(x any)   { *h = append(*h, x.(allocation)) }
func (h *allocationHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Manager tracks node slot occupancy and the allocation list. It is
// the single owner of node slots: all assignment and release goes
// through it.
type Manager struct {
	nodes          []state
	allocations    allocationHeap
	numLabeledJobs map[string]int
}

// NewManager constructs a Manager over numNodes identical,
// single-slot nodes, all initially idle.
func NewManager(numNodes int) *Manager {
	return &Manager{
		nodes:          make([]state, numNodes),
		numLabeledJobs: make(map[string]int),
	}
}

// NumIdleNodes is the count of currently idle nodes.
func (m *Manager) NumIdleNodes() int {
	n := 0
	for _, s := range m.nodes {
		if s == idle {
			n++
		}
	}
	return n
}

// NumBusyNodes is the count of currently busy nodes.
func (m *Manager) NumBusyNodes() int { return len(m.nodes) - m.NumIdleNodes() }

// NumProcessingJobs is the number of jobs currently assigned to nodes.
func (m *Manager) NumProcessingJobs() int { return len(m.allocations) }

// NextReleaseTimestamp returns the earliest release_timestamp among
// running jobs, and false if no job is running.
func (m *Manager) NextReleaseTimestamp() (float64, bool) {
	if len(m.allocations) == 0 {
		return 0, false
	}
	return m.allocations[0].job.ReleaseTimestamp()
}

// ReadyForProcessing reports whether enough nodes are idle to start j
// immediately.
func (m *Manager) ReadyForProcessing(j *job.Job) bool {
	return m.NumIdleNodes() >= j.NumNodes
}

func (m *Manager) claimIdleNodes(n int) []int {
	ids := make([]int, 0, n)
	for id, s := range m.nodes {
		if s == idle {
			m.nodes[id] = busy
			ids = append(ids, id)
			if len(ids) == n {
				break
			}
		}
	}
	return ids
}

// StartProcessing assigns job to NumNodes idle nodes chosen by lowest
// id, stamping its submission timestamp at now. Returns a
// CapacityError if too few nodes are idle.
func (m *Manager) StartProcessing(j *job.Job, now float64) error {
	if m.NumIdleNodes() < j.NumNodes {
		return qsserrors.NewCapacityError("not enough idle nodes to start job")
	}

	nodeIDs := m.claimIdleNodes(j.NumNodes)
	j.Submit(now)
	heap.Push(&m.allocations, allocation{job: j, nodeIDs: nodeIDs})
	m.numLabeledJobs[j.Label]++
	return nil
}

// AssignProcessing assigns job to the exact nodeIDs given (used by the
// backfill planner, which has already reserved them in the timetable).
// Returns a CapacityError if the node id count is wrong or any of
// nodeIDs is already busy.
func (m *Manager) AssignProcessing(j *job.Job, nodeIDs []int, now float64) error {
	if len(nodeIDs) != j.NumNodes {
		return qsserrors.NewCapacityError("node id count does not match job num_nodes")
	}

	for i, id := range nodeIDs {
		if m.nodes[id] == busy {
			for _, claimed := range nodeIDs[:i] {
				m.nodes[claimed] = idle
			}
			return qsserrors.NewCapacityError("requested node is already busy")
		}
		m.nodes[id] = busy
	}

	j.Submit(now)
	heap.Push(&m.allocations, allocation{job: j, nodeIDs: append([]int(nil), nodeIDs...)})
	m.numLabeledJobs[j.Label]++
	return nil
}

// StopProcessing releases every allocation whose release timestamp is
// exactly now, frees their nodes, and returns the finished jobs.
func (m *Manager) StopProcessing(now float64) []*job.Job {
	var finished []*job.Job

	for len(m.allocations) > 0 {
		release, ok := m.allocations[0].job.ReleaseTimestamp()
		if !ok || release != now {
			break
		}

		a := heap.Pop(&m.allocations).(allocation)
		finished = append(finished, a.job)

		if n, ok := m.numLabeledJobs[a.job.Label]; ok && n > 0 {
			m.numLabeledJobs[a.job.Label] = n - 1
		}

		for _, id := range a.nodeIDs {
			m.nodes[id] = idle
		}
	}

	return finished
}

// ScheduledReleases returns, for every currently running job, its
// (node ids, scheduled_release_timestamp) — the instant the planner
// reserved the nodes through, even if the job finishes earlier. The
// schedule manager uses this to seed per-node timetables on re-plan.
func (m *Manager) ScheduledReleases() map[int]float64 {
	out := make(map[int]float64, len(m.nodes))
	for _, a := range m.allocations {
		scheduled, ok := a.job.ScheduledReleaseTimestamp()
		if !ok {
			continue
		}
		for _, id := range a.nodeIDs {
			out[id] = scheduled
		}
	}
	return out
}

// Reset idles every node and clears the allocation list.
func (m *Manager) Reset() {
	for i := range m.nodes {
		m.nodes[i] = idle
	}
	m.allocations = m.allocations[:0]
	m.numLabeledJobs = make(map[string]int)
}

// NumJobsWithLabels returns the number of currently processing jobs
// per label.
func (m *Manager) NumJobsWithLabels() map[string]int {
	out := make(map[string]int, len(m.numLabeledJobs))
	for k, v := range m.numLabeledJobs {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}

// NumNodes is the total number of nodes managed.
func (m *Manager) NumNodes() int { return len(m.nodes) }
