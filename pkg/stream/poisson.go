// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"math"
	"math/rand"

	"github.com/jontk/qss-sim/internal/core/job"
	qsserrors "github.com/jontk/qss-sim/pkg/errors"
)

// PoissonOptions configures a PoissonStream.
type PoissonOptions struct {
	ArrivalRate       float64
	ExecutionRate     float64
	NumNodes          int
	Source            string
	Label             string
	FirstArrival      *float64
	NumJobs           *int
	TimeLimit         *float64
	Rand              *rand.Rand
}

// PoissonStream generates jobs with exponentially distributed
// inter-arrival and service times, matching stream_generator in
// qss/stream.py.
type PoissonStream struct {
	opts            PoissonOptions
	rng             *rand.Rand
	nextArrival     float64
	remainingJobs   *int
	exhausted       bool
}

// NewPoissonStream constructs a PoissonStream. It returns a
// ConfigError if neither NumJobs nor TimeLimit is set — an unbounded
// generator the simulator could never stop draining.
func NewPoissonStream(opts PoissonOptions) (*PoissonStream, error) {
	if opts.NumJobs == nil && opts.TimeLimit == nil {
		return nil, qsserrors.NewConfigError("generator stream requires num_jobs or time_limit")
	}

	if opts.NumNodes <= 0 {
		opts.NumNodes = DefaultNumNodes
	}
	if opts.Source == "" {
		opts.Source = DefaultSourceLabel
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	s := &PoissonStream{opts: opts, rng: rng}
	if opts.FirstArrival != nil {
		s.nextArrival = *opts.FirstArrival
	} else {
		s.nextArrival = s.exponential(opts.ArrivalRate)
	}

	if opts.NumJobs != nil {
		remaining := *opts.NumJobs
		s.remainingJobs = &remaining
	}

	return s, nil
}

func (s *PoissonStream) exponential(rate float64) float64 {
	return (-1.0 / rate) * math.Log(1.0-s.rng.Float64())
}

// Next yields the next generated job, or ends the stream once NumJobs
// jobs have been produced. TimeLimit applies only when NumJobs is
// unset: the stream then ends once the next arrival reaches TimeLimit.
func (s *PoissonStream) Next() (*job.Job, bool, error) {
	if s.exhausted {
		return nil, false, nil
	}

	if s.remainingJobs != nil && *s.remainingJobs <= 0 {
		s.exhausted = true
		return nil, false, nil
	}
	if s.remainingJobs == nil && s.opts.TimeLimit != nil && s.nextArrival >= *s.opts.TimeLimit {
		s.exhausted = true
		return nil, false, nil
	}

	j := job.New(s.exponential(s.opts.ExecutionRate), s.opts.NumNodes, s.opts.Source, s.nextArrival, 0, s.opts.Label)

	s.nextArrival += s.exponential(s.opts.ArrivalRate)
	if s.remainingJobs != nil {
		*s.remainingJobs--
	}

	return j, true, nil
}
