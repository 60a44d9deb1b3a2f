// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"github.com/jontk/qss-sim/internal/core/job"
	qsserrors "github.com/jontk/qss-sim/pkg/errors"
)

// perSourceKey is the limits-map key that applies to any source not
// named explicitly.
const perSourceKey = "_per_source"

// totalKey is the limits-map key for the total (across all sources)
// queue limit.
const totalKey = "_total"

// Initializer is invoked exactly once, on admission, before a job is
// inserted into the queue. Implementations set Group/Priority.
type Initializer func(j *job.Job)

// Limits holds the admission limits applied to the queue (the buffer,
// if enabled, is never limited).
type Limits struct {
	// Total, if non-nil, caps the number of jobs held in the queue
	// (excluding the buffer).
	Total *int

	// PerSource maps a source name to its own admission cap, taking
	// precedence over DefaultPerSource for that source.
	PerSource map[string]int

	// DefaultPerSource, if non-nil, caps every source without its own
	// entry in PerSource.
	DefaultPerSource *int
}

// Policy configures a Manager.
type Policy struct {
	Discipline  Discipline
	Limits      Limits
	UseBuffer   bool
	JobInit     Initializer
}

// Manager holds admitted jobs in FIFO or priority order, enforces
// admission limits, and optionally diverts rejected jobs into a
// per-source overflow buffer. Grounded on qss/core/queue.py.
type Manager struct {
	policy Policy

	queue []*job.Job

	latestQueuedTimestamp float64
	queuedBufferJob       *job.Job

	numJobsPerSource map[string]int

	buffer      map[string][]*job.Job
	numDropped  map[string]int
	usesBuffer  bool
}

// NewManager constructs a Manager from policy. An unknown Discipline
// is a programming error the caller must catch via config validation,
// not at construction time — Manager trusts its Policy.
func NewManager(policy Policy) *Manager {
	m := &Manager{
		policy:           policy,
		numJobsPerSource: make(map[string]int),
		usesBuffer:       policy.UseBuffer,
	}
	if policy.JobInit == nil {
		m.policy.JobInit = func(*job.Job) {}
	}
	if m.usesBuffer {
		m.buffer = make(map[string][]*job.Job)
	} else {
		m.numDropped = map[string]int{totalKey: 0}
	}
	return m
}

// Reset clears all queue, buffer, and counter state, preserving the
// configured policy.
func (m *Manager) Reset() {
	m.queue = m.queue[:0]
	m.latestQueuedTimestamp = 0
	m.queuedBufferJob = nil
	m.numJobsPerSource = make(map[string]int)
	if m.usesBuffer {
		m.buffer = make(map[string][]*job.Job)
	} else {
		m.numDropped = map[string]int{totalKey: 0}
	}
}

// IsEmpty reports whether the queue (excluding the buffer) is empty.
func (m *Manager) IsEmpty() bool { return len(m.queue) == 0 }

// Length is the number of jobs held in the queue, excluding the buffer.
func (m *Manager) Length() int { return len(m.queue) }

// LengthBuffer is the number of jobs held in the overflow buffer.
func (m *Manager) LengthBuffer() int {
	total := 0
	for _, jobs := range m.buffer {
		total += len(jobs)
	}
	return total
}

// LengthTotal is Length plus LengthBuffer.
func (m *Manager) LengthTotal() int { return m.Length() + m.LengthBuffer() }

// NumJobsPerSource returns the number of jobs from source currently in
// the queue (inBuffer=false) or the buffer (inBuffer=true).
func (m *Manager) NumJobsPerSource(source string, inBuffer bool) int {
	if !inBuffer {
		return m.numJobsPerSource[source]
	}
	return len(m.buffer[source])
}

// NumDropped is the total number of jobs dropped (never admitted and
// never buffered) across all sources.
func (m *Manager) NumDropped() int {
	if m.numDropped == nil {
		return 0
	}
	return m.numDropped[totalKey]
}

// NumDroppedPerSource is the number of jobs dropped for source.
func (m *Manager) NumDroppedPerSource(source string) int {
	if m.numDropped == nil {
		return 0
	}
	return m.numDropped[source]
}

// NumDroppedBySourceSnapshot returns a copy of the per-source drop
// counts, excluding the internal total-key entry.
func (m *Manager) NumDroppedBySourceSnapshot() map[string]int {
	out := make(map[string]int)
	for source, n := range m.numDropped {
		if source == totalKey || n == 0 {
			continue
		}
		out[source] = n
	}
	return out
}

func (m *Manager) increasePriorityAll(delta float64) {
	for _, j := range m.queue {
		j.IncreasePriority(delta)
	}
}

func (m *Manager) append(j *job.Job) {
	switch m.policy.Discipline {
	case Priority:
		idx := len(m.queue)
		for i := len(m.queue) - 1; i >= 0; i-- {
			if m.queue[i].Priority >= j.Priority {
				idx = i + 1
				break
			}
			if i == 0 {
				idx = 0
			}
		}
		m.queue = append(m.queue, nil)
		copy(m.queue[idx+1:], m.queue[idx:])
		m.queue[idx] = j
	default:
		m.queue = append(m.queue, j)
	}
}

func (m *Manager) processApproved(j *job.Job, now float64) {
	if m.policy.Discipline == Priority {
		delta := now - m.latestQueuedTimestamp
		m.increasePriorityAll(delta)
	}

	m.policy.JobInit(j)
	m.append(j)
	m.numJobsPerSource[j.Source]++
	m.latestQueuedTimestamp = now
}

func (m *Manager) processRejected(j *job.Job) {
	if m.usesBuffer {
		m.buffer[j.Source] = append(m.buffer[j.Source], j)
		return
	}
	m.numDropped[j.Source]++
	m.numDropped[totalKey]++
}

// Admitted/Rejected are the outcomes of Add. Rejected means the job
// was neither queued nor buffered — it was dropped (usesBuffer is
// false). A buffered job is still Admitted: it was accepted by the
// queue manager, merely deferred.
type Outcome int

const (
	Admitted Outcome = iota
	Rejected
)

// Add admits, buffers, or drops job depending on the configured
// limits. On admission, priority aging runs over the currently queued
// jobs, then JobInit runs on job, then it is inserted in discipline
// order — in that fixed sequence. The second return value reports
// whether job actually entered the live queue (as opposed to being
// buffered or dropped) — callers that feed newly-queued jobs to a
// backfill planner should gate on it, not on Outcome alone, since a
// buffered job is Admitted without being queued.
func (m *Manager) Add(j *job.Job, now float64) (Outcome, bool) {
	withLimit := false
	hasFreeSpot := true

	if m.policy.Limits.Total != nil {
		withLimit = true
		if *m.policy.Limits.Total-m.Length() < 1 {
			hasFreeSpot = false
		}
	}

	sourceLimit, sourceLimited := m.resolveSourceLimit(j.Source)
	if hasFreeSpot && sourceLimited {
		withLimit = true
		if sourceLimit-m.NumJobsPerSource(j.Source, false) < 1 {
			hasFreeSpot = false
		}
	}

	if !withLimit || hasFreeSpot {
		m.processApproved(j, now)
		return Admitted, true
	}

	m.processRejected(j)
	if m.usesBuffer {
		// Buffered jobs are still Admitted: the queue manager accepted
		// the job, merely deferring it.
		return Admitted, false
	}
	return Rejected, false
}

func (m *Manager) resolveSourceLimit(source string) (int, bool) {
	if limit, ok := m.policy.Limits.PerSource[source]; ok {
		return limit, true
	}
	if m.policy.Limits.DefaultPerSource != nil {
		return *m.policy.Limits.DefaultPerSource, true
	}
	return 0, false
}

// ShowLast returns the job at the tail of the queue without removing
// it.
func (m *Manager) ShowLast() *job.Job { return m.queue[len(m.queue)-1] }

// ShowNext returns the job at the head of the queue without removing
// it.
func (m *Manager) ShowNext() *job.Job { return m.queue[0] }

// ConsumeRecentBufferAdmission returns the job most recently promoted
// from the buffer into the queue at exactly now, or nil. It is
// consumed: a second call at the same instant returns nil.
func (m *Manager) ConsumeRecentBufferAdmission(now float64) *job.Job {
	if m.latestQueuedTimestamp != now {
		return nil
	}
	out := m.queuedBufferJob
	m.queuedBufferJob = nil
	return out
}

func (m *Manager) postPop(source string, now float64) {
	if n, ok := m.numJobsPerSource[source]; ok {
		n--
		if n <= 0 {
			delete(m.numJobsPerSource, source)
		} else {
			m.numJobsPerSource[source] = n
		}
	}

	if m.NumJobsPerSource(source, true) == 0 {
		return
	}
	bufferedJob := m.buffer[source][0]
	m.buffer[source] = m.buffer[source][1:]
	if len(m.buffer[source]) == 0 {
		delete(m.buffer, source)
	}
	if _, queued := m.Add(bufferedJob, now); queued {
		m.queuedBufferJob = bufferedJob
	}
}

// PopFront removes and returns the job at the head of the queue, then
// drains at most one buffered job of the same source into the queue.
func (m *Manager) PopFront(now float64) *job.Job {
	out := m.queue[0]
	m.queue = m.queue[1:]
	m.postPop(out.Source, now)
	return out
}

// Pull removes and returns the job identified by id, searching from
// index idx first as a fast path. It returns a ValidationError if no
// such job is queued.
func (m *Manager) Pull(idx int, id job.ID, now float64) (*job.Job, error) {
	if idx >= 0 && idx < len(m.queue) && m.queue[idx].ID == id {
		out := m.queue[idx]
		m.queue = append(m.queue[:idx], m.queue[idx+1:]...)
		m.postPop(out.Source, now)
		return out, nil
	}

	for i, j := range m.queue {
		if j.ID == id {
			out := j
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			m.postPop(out.Source, now)
			return out, nil
		}
	}

	return nil, qsserrors.NewValidationError("job not found in queue")
}

// NumJobsPerSourceSnapshot returns a copy of the per-source job counts
// in the queue (inBuffer=false) or the buffer (inBuffer=true), for
// trace reporting.
func (m *Manager) NumJobsPerSourceSnapshot(inBuffer bool) map[string]int {
	out := make(map[string]int)
	if !inBuffer {
		for k, v := range m.numJobsPerSource {
			out[k] = v
		}
		return out
	}
	for k, jobs := range m.buffer {
		out[k] = len(jobs)
	}
	return out
}

// Iterate returns an ordered snapshot of up to limit jobs (all of them
// when limit <= 0), front to back. The slice is a copy: mutating it
// does not affect the queue.
func (m *Manager) Iterate(limit int) []*job.Job {
	n := len(m.queue)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*job.Job, n)
	copy(out, m.queue[:n])
	return out
}
