// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package qsssim

import (
	"context"
	"fmt"
	"os"

	"github.com/jontk/qss-sim/internal/core/job"
	"github.com/jontk/qss-sim/internal/core/queue"
	qsserrors "github.com/jontk/qss-sim/pkg/errors"
	"github.com/jontk/qss-sim/pkg/stream"
)

// Run executes one full simulation over streams, resetting any state
// left by a previous Run. It returns a ConfigError if streams is
// empty, or an error surfaced by the node/schedule/queue managers —
// all such errors are fatal to the run.
func (s *Simulator) Run(ctx context.Context, streams []stream.Stream) error {
	if len(streams) == 0 {
		return qsserrors.NewConfigError("streams must not be empty")
	}

	if err := s.openOutputFiles(); err != nil {
		return err
	}
	defer s.closeOutputFiles()

	s.reset()
	s.streams = streams
	s.inputJobs = make([]*job.Job, len(streams))

	log := s.logger.With("run_id", s.runID)
	log.Info("simulation starting", "num_nodes", s.cfg.NumNodes, "num_streams", len(streams))

	for gid := range streams {
		if err := s.setNextArrivalJob(gid); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			log.Warn("simulation aborted", "reason", ctx.Err().Error())
			return ctx.Err()
		default:
		}

		stop, err := s.nextAction(ctx)
		if err != nil {
			return err
		}
		if stop {
			break
		}
		s.chooseNextTimestamp()
	}

	log.Info("simulation finished", "num_completed", len(s.output), "current_time", s.currentTime)
	return nil
}

func (s *Simulator) reset() {
	s.currentState = stateArrival
	s.currentTime = 0
	s.inputJobs = nil
	s.hasArrival = false
	s.arrivalTimestamp = 0
	s.scheduleRecreation = false
	s.newPriorityArrival = false
	s.nextJobID = 0

	s.queue.Reset()
	s.nodes.Reset()
	if s.scheduler != nil {
		s.scheduler.Reset()
	}

	s.output = s.output[:0]
	s.trace = s.trace[:0]
}

func (s *Simulator) openOutputFiles() error {
	if s.cfg.OutputFile != "" {
		f, err := os.OpenFile(s.cfg.OutputFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return qsserrors.NewIOError("cannot open output file", err)
		}
		s.outputFile = f
	}
	if s.cfg.TraceFile != "" {
		f, err := os.OpenFile(s.cfg.TraceFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return qsserrors.NewIOError("cannot open trace file", err)
		}
		s.traceFile = f
	}
	return nil
}

func (s *Simulator) closeOutputFiles() {
	if s.outputFile != nil {
		s.outputFile.Close()
		s.outputFile = nil
	}
	if s.traceFile != nil {
		s.traceFile.Close()
		s.traceFile = nil
	}
}

// setNextArrivalJob pulls the next job from stream gid into the
// input-front buffer, then recomputes which front holds the earliest
// arrival.
func (s *Simulator) setNextArrivalJob(gid int) error {
	j, ok, err := s.streams[gid].Next()
	if err != nil {
		return err
	}
	if !ok {
		s.inputJobs[gid] = nil
	} else {
		s.inputJobs[gid] = j
	}

	s.hasArrival = false
	s.arrivalGID = -1
	s.arrivalTimestamp = 0

	for idx, front := range s.inputJobs {
		if front == nil {
			continue
		}
		if !s.hasArrival || front.ArrivalTimestamp < s.arrivalTimestamp {
			s.arrivalGID, s.arrivalTimestamp, s.hasArrival = idx, front.ArrivalTimestamp, true
		}
	}
	return nil
}

// chooseNextTimestamp picks the minimum of the next arrival and the
// next release, ties going to arrival, and applies the time_limit Stop
// override.
func (s *Simulator) chooseNextTimestamp() {
	nextRelease, hasRelease := s.nodes.NextReleaseTimestamp()

	switch {
	case !s.hasArrival && !hasRelease:
		s.currentState = stateStop
		return
	case !hasRelease || (s.hasArrival && nextRelease >= s.arrivalTimestamp):
		s.currentTime = s.arrivalTimestamp
		s.currentState = stateArrival
	case hasRelease:
		s.currentTime = nextRelease
		s.currentState = stateCompletion
	}

	if s.timeLimit != nil && s.currentTime > *s.timeLimit {
		s.currentState = stateStop
	}
}

// nextAction dispatches one step of the event loop and reports
// whether the run should stop.
func (s *Simulator) nextAction(ctx context.Context) (bool, error) {
	switch s.currentState {
	case stateArrival:
		if err := s.arrival(); err != nil {
			return false, err
		}
		if err := s.submission(); err != nil {
			return false, err
		}
	case stateCompletion:
		if err := s.completion(); err != nil {
			return false, err
		}
		if err := s.submission(); err != nil {
			return false, err
		}
	case stateStop:
		return true, nil
	}
	return false, nil
}

// scheduling feeds j to the backfill planner and detects whether it
// displaced the current dispatch plan, triggering a re-plan.
func (s *Simulator) scheduling(j *job.Job) error {
	if s.scheduler == nil {
		return nil
	}

	if err := s.scheduler.Add(j, &s.currentTime); err != nil {
		return err
	}

	if s.queue.ShowLast() != j && !s.scheduler.IsBackfillJob(j.ID) {
		s.newPriorityArrival = true
		s.logger.Debug("new job with high priority arrived", "job_id", j.ID)
	}
	return nil
}

// arrival admits every job whose arrival_timestamp equals
// current_time, in stream order, then records a trace sample.
func (s *Simulator) arrival() error {
	for s.hasArrival && s.arrivalTimestamp == s.currentTime {
		gid := s.arrivalGID
		j := s.inputJobs[gid]

		s.nextJobID++
		j.ID = s.nextJobID
		s.metrics.RecordArrival(j.Source)

		outcome, queued := s.queue.Add(j, s.currentTime)
		switch {
		case queued:
			s.metrics.RecordAdmission(j.Source)
		case outcome == queue.Admitted:
			s.metrics.RecordBuffered(j.Source)
		default:
			s.metrics.RecordDropped(j.Source)
		}

		if err := s.setNextArrivalJob(gid); err != nil {
			return err
		}

		if queued {
			if err := s.scheduling(j); err != nil {
				return err
			}
		}
	}

	s.traceUpdate(ActionArrival)
	return nil
}

// submission dispatches admitted jobs to idle nodes, either directly
// (no planner) or by draining the planner's scheduled-start list.
func (s *Simulator) submission() error {
	hadSubmission := false

	if s.scheduler != nil {
		for {
			if s.newPriorityArrival {
				s.scheduleRecreation = true
				s.newPriorityArrival = false
			}

			if s.scheduleRecreation {
				s.scheduler.SetInitialBusyTimes(s.nodes.ScheduledReleases(), s.currentTime)
				if err := s.scheduler.CreateScheduleByQueue(s.queue.Iterate(0)); err != nil {
					return err
				}
				s.scheduleRecreation = false
			}

			if !s.scheduler.HasScheduledElements(s.currentTime) {
				break
			}

			due := s.scheduler.ScheduledDue(s.currentTime)
			for _, entry := range due {
				pulled, err := s.queue.Pull(0, entry.JobID, s.currentTime)
				if err != nil {
					return err
				}
				if err := s.nodes.AssignProcessing(pulled, entry.NodeIDs, s.currentTime); err != nil {
					return err
				}
				s.metrics.RecordDispatch(pulled.Source, len(entry.NodeIDs))

				if buffered := s.queue.ConsumeRecentBufferAdmission(s.currentTime); buffered != nil {
					if err := s.scheduling(buffered); err != nil {
						return err
					}
				}
			}
			if len(due) > 0 {
				hadSubmission = true
			}
		}
	} else {
		for !s.queue.IsEmpty() && s.nodes.NumIdleNodes() > 0 {
			front := s.queue.ShowNext()
			if !s.nodes.ReadyForProcessing(front) {
				break
			}
			j := s.queue.PopFront(s.currentTime)
			if err := s.nodes.StartProcessing(j, s.currentTime); err != nil {
				return err
			}
			s.metrics.RecordDispatch(j.Source, j.NumNodes)
			hadSubmission = true
		}
	}

	if hadSubmission {
		s.traceUpdate(ActionSubmission)
	}
	return nil
}

// completion releases nodes for every job whose release_timestamp is
// current_time, appends them to the output channel, and flags a
// schedule re-plan when one finished ahead of its planned reservation.
func (s *Simulator) completion() error {
	completed := s.nodes.StopProcessing(s.currentTime)

	if s.scheduler != nil && !s.queue.IsEmpty() && len(completed) > 0 {
		if s.newPriorityArrival {
			s.scheduleRecreation = true
			s.newPriorityArrival = false
		} else {
			for _, j := range completed {
				release, _ := j.ReleaseTimestamp()
				scheduledRelease, _ := j.ScheduledReleaseTimestamp()
				if scheduledRelease != release {
					s.scheduleRecreation = true
					break
				}
			}
		}
	}

	s.output = append(s.output, completed...)

	for _, j := range completed {
		if delay, ok := j.Delay(); ok {
			s.metrics.RecordCompletion(j.Source, delay)
		}
	}

	if s.outputFile != nil && len(completed) > 0 {
		for _, j := range completed {
			if _, err := s.outputFile.WriteString(formatOutputLine(j) + "\n"); err != nil {
				return qsserrors.NewIOError("cannot write output file", err)
			}
		}
	}

	s.traceUpdate(ActionCompletion)
	return nil
}

func formatOutputLine(j *job.Job) string {
	release, _ := j.ReleaseTimestamp()
	line := fmt.Sprintf("%v,%v,%v,%d", j.ArrivalTimestamp, *j.SubmissionTimestamp, release, j.NumNodes)
	if j.Source != "" {
		line += "," + j.Source
	}
	if j.Label != "" {
		line += "," + j.Label
	}
	return line
}

// traceUpdate appends one TraceSample and, when a trace file is
// configured, an additional detailed line.
func (s *Simulator) traceUpdate(action ActionCode) {
	sample := TraceSample{
		Timestamp:           s.currentTime,
		QueueLength:         s.queue.Length(),
		NumProcessing:       s.nodes.NumProcessingJobs(),
		Action:              action,
		QueueBySource:       s.queue.NumJobsPerSourceSnapshot(false),
		QueueBufferBySource: s.queue.NumJobsPerSourceSnapshot(true),
		ServiceBySource:     s.nodes.NumJobsWithLabels(),
	}
	s.trace = append(s.trace, sample)

	if s.traceFile == nil {
		return
	}

	line := fmt.Sprintf("%15f - %v - %v - %v - %s",
		s.currentTime,
		countsPerSource(s.queue, true),
		sample.QueueBySource,
		sample.ServiceBySource,
		action,
	)
	if _, err := s.traceFile.WriteString(line + "\n"); err != nil {
		s.logger.Warn("failed to write trace line", "error", err.Error())
	}
}

func countsPerSource(q *queue.Manager, includeBuffer bool) map[string]int {
	if !includeBuffer {
		return q.NumJobsPerSourceSnapshot(false)
	}
	combined := q.NumJobsPerSourceSnapshot(false)
	buffered := q.NumJobsPerSourceSnapshot(true)
	for k, v := range buffered {
		combined[k] += v
	}
	return combined
}
