// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package job defines the Job record simulated by the scheduler.
package job

// ID is a monotonically increasing identifier assigned to a Job on
// arrival. It replaces object-identity matching (id(job) in the
// original implementation) as the key used to locate a specific queued
// job from the scheduled-start list.
type ID uint64

// Job is the immutable arrival specification plus the mutable timing
// fields assigned by the simulator as the job moves through the queue,
// the node manager, and the output channel.
type Job struct {
	// ID is assigned once by the simulator when the job arrives,
	// before the queue manager sees it; zero until then.
	ID ID

	// Immutable fields, set at creation time by a Stream.
	ArrivalTimestamp float64
	NumNodes         int
	ExecutionTime    float64
	WallTime         float64
	Source           string
	Label            string

	// Mutable fields assigned post-admission.
	SubmissionTimestamp  *float64
	SubmissionTimestampOK bool
	Priority             float64
	Group                int
}

// New constructs a Job with WallTime defaulting to ExecutionTime when
// wallTime <= 0, matching the original's wall_time=execution_time
// default.
func New(executionTime float64, numNodes int, source string, arrivalTimestamp, wallTime float64, label string) *Job {
	if wallTime <= 0 {
		wallTime = executionTime
	}
	return &Job{
		ArrivalTimestamp: arrivalTimestamp,
		NumNodes:         numNodes,
		ExecutionTime:    executionTime,
		WallTime:         wallTime,
		Source:           source,
		Label:            label,
	}
}

// Submitted reports whether the job has been dispatched to a node.
func (j *Job) Submitted() bool {
	return j.SubmissionTimestampOK
}

// Submit sets the submission timestamp exactly once. Calling it a
// second time is a programming error in the caller (the simulator
// never does this) and is intentionally left unchecked here — the
// invariant is enforced by construction: only NodeManager.Start/Assign
// call it, each exactly once per job.
func (j *Job) Submit(now float64) {
	j.SubmissionTimestamp = &now
	j.SubmissionTimestampOK = true
}

// ReleaseTimestamp is SubmissionTimestamp + ExecutionTime. The second
// return value is false until the job has been submitted.
func (j *Job) ReleaseTimestamp() (float64, bool) {
	if !j.SubmissionTimestampOK {
		return 0, false
	}
	return *j.SubmissionTimestamp + j.ExecutionTime, true
}

// ScheduledReleaseTimestamp is SubmissionTimestamp + WallTime — the
// instant the planner reserved nodes through, even if the job finishes
// earlier.
func (j *Job) ScheduledReleaseTimestamp() (float64, bool) {
	if !j.SubmissionTimestampOK {
		return 0, false
	}
	return *j.SubmissionTimestamp + j.WallTime, true
}

// WaitTime is SubmissionTimestamp - ArrivalTimestamp.
func (j *Job) WaitTime() (float64, bool) {
	if !j.SubmissionTimestampOK {
		return 0, false
	}
	return *j.SubmissionTimestamp - j.ArrivalTimestamp, true
}

// Delay is WaitTime + ExecutionTime.
func (j *Job) Delay() (float64, bool) {
	wait, ok := j.WaitTime()
	if !ok {
		return 0, false
	}
	return wait + j.ExecutionTime, true
}

// IncreasePriority applies aging: adds value to Priority.
func (j *Job) IncreasePriority(value float64) {
	j.Priority += value
}
