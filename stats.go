// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package qsssim

import (
	"fmt"
	"sort"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jontk/qss-sim/internal/core/job"
)

// AvgNumJobs is the time-weighted average of (queue length + jobs in
// service) across the trace. It is 0 for an empty or zero-span trace.
func (s *Simulator) AvgNumJobs() float64 {
	return s.timeWeightedAverage(func(sample TraceSample) float64 {
		return float64(sample.QueueLength + sample.NumProcessing)
	})
}

// AvgQueueLength is the time-weighted average queue length across the
// trace.
func (s *Simulator) AvgQueueLength() float64 {
	return s.timeWeightedAverage(func(sample TraceSample) float64 {
		return float64(sample.QueueLength)
	})
}

func (s *Simulator) timeWeightedAverage(value func(TraceSample) float64) float64 {
	if len(s.trace) < 2 {
		return 0
	}

	span := s.trace[len(s.trace)-1].Timestamp - s.trace[0].Timestamp
	if span == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < len(s.trace)-1; i++ {
		dt := s.trace[i+1].Timestamp - s.trace[i].Timestamp
		sum += value(s.trace[i]) * dt
	}
	return sum / span
}

// AvgDelay is the mean of (wait_time + execution_time) across the
// output channel, optionally restricted to one source. It is 0 when
// the selected slice is empty.
func (s *Simulator) AvgDelay(source string) float64 {
	var sum float64
	var count int

	for _, j := range s.output {
		if source != "" && j.Source != source {
			continue
		}
		delay, ok := j.Delay()
		if !ok {
			continue
		}
		sum += delay
		count++
	}

	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// Utilization is Σ num_nodes · execution_time across the output
// channel, optionally restricted to one source.
func (s *Simulator) Utilization(source string) float64 {
	var sum float64
	for _, j := range s.output {
		if source != "" && j.Source != source {
			continue
		}
		sum += float64(j.NumNodes) * j.ExecutionTime
	}
	return sum
}

// NumDropped is the queue manager's total drop count for this run.
func (s *Simulator) NumDropped() int { return s.queue.NumDropped() }

// OutputChannel returns the append-only slice of completed jobs in
// completion order. Callers must not mutate it.
func (s *Simulator) OutputChannel() []*job.Job { return s.output }

// Trace returns the time-weighted trace samples recorded this run.
// Callers must not mutate it.
func (s *Simulator) Trace() []TraceSample { return s.trace }

// Summary renders a human-readable run report, the Go analog of
// qss.QSS.print_stats — three lines carrying the original's four figures,
// extended with the per-source drop breakdown when more than one
// source dropped jobs.
func (s *Simulator) Summary() string {
	if len(s.trace) == 0 && len(s.output) == 0 {
		return ""
	}

	out := fmt.Sprintf("AVG number of jobs: %v; AVG queue length: %v\n", s.AvgNumJobs(), s.AvgQueueLength())
	out += fmt.Sprintf("AVG delay: %v\n", s.AvgDelay(""))
	out += fmt.Sprintf("Utilization (nodes x time units): %v\n", s.Utilization(""))

	if dropped := s.NumDropped(); dropped > 0 {
		out += fmt.Sprintf("Queue drop rate: %v\n", float64(dropped)/float64(dropped+len(s.output)))
		if bySource := s.queue.NumDroppedBySourceSnapshot(); len(bySource) > 1 {
			out += "Drops by source:\n"
			for _, source := range sortedSourceKeys(bySource) {
				out += fmt.Sprintf("  %s: %d\n", titleCaser.String(source), bySource[source])
			}
		}
	}

	return out
}

var titleCaser = cases.Title(language.English)

func sortedSourceKeys(bySource map[string]int) []string {
	keys := make([]string, 0, len(bySource))
	for k := range bySource {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
