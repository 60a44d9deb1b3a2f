// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package qsssim implements the queueing-system simulator: a
// discrete-event driver over a pluggable queue discipline, a node
// manager, and an optional backfill schedule planner.
//
// Grounded on qss/__init__.py (QSS class).
package qsssim

import (
	"os"

	"github.com/google/uuid"

	"github.com/jontk/qss-sim/internal/core/job"
	"github.com/jontk/qss-sim/internal/core/node"
	"github.com/jontk/qss-sim/internal/core/queue"
	"github.com/jontk/qss-sim/internal/core/schedule"
	"github.com/jontk/qss-sim/pkg/config"
	"github.com/jontk/qss-sim/pkg/logging"
	"github.com/jontk/qss-sim/pkg/metrics"
	"github.com/jontk/qss-sim/pkg/stream"
)

// serviceState is the event loop's current phase, chosen by
// chooseNextTimestamp on every iteration.
type serviceState int

const (
	stateArrival serviceState = iota
	stateCompletion
	stateStop
)

// ActionCode tags a trace sample with the event that produced it,
// using the same single-character codes as the trace file format.
type ActionCode string

const (
	ActionArrival    ActionCode = "a"
	ActionSubmission ActionCode = "s"
	ActionCompletion ActionCode = "c"
	ActionNone       ActionCode = "-"
)

// TraceSample is one row of the simulator's time-weighted trace.
type TraceSample struct {
	Timestamp           float64
	QueueLength         int
	NumProcessing       int
	Action              ActionCode
	QueueBySource       map[string]int
	QueueBufferBySource map[string]int
	ServiceBySource     map[string]int
}

// Simulator runs the event loop over a configured queue discipline,
// node manager, and optional backfill planner.
type Simulator struct {
	runID  string
	logger logging.Logger

	cfg     *config.Config
	jobInit queue.Initializer
	metrics metrics.Collector

	queue     *queue.Manager
	nodes     *node.Manager
	scheduler *schedule.Manager

	currentTime  float64
	currentState serviceState
	timeLimit    *float64

	streams          []stream.Stream
	inputJobs        []*job.Job
	arrivalGID       int
	hasArrival       bool
	arrivalTimestamp float64

	scheduleRecreation  bool
	newPriorityArrival  bool

	nextJobID job.ID

	output []*job.Job
	trace  []TraceSample

	outputFile *os.File
	traceFile  *os.File
}

// Option configures a Simulator at construction time.
type Option func(*Simulator)

// WithLogger overrides the default no-op logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Simulator) { s.logger = logger }
}

// WithJobInit overrides the queue manager's job_init hook (see
// internal/core/queue.Initializer and the priority-bands strategy in
// pkg/policy).
func WithJobInit(fn queue.Initializer) Option {
	return func(s *Simulator) { s.jobInit = fn }
}

// WithMetrics attaches a live metrics collector, queried by the
// monitor server's /stats endpoint while a run is in progress.
func WithMetrics(collector metrics.Collector) Option {
	return func(s *Simulator) { s.metrics = collector }
}

// New constructs a Simulator from cfg. It returns a ConfigError if cfg
// fails Validate.
func New(cfg *config.Config, opts ...Option) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulator{
		runID:   uuid.NewString(),
		logger:  logging.NoOpLogger{},
		cfg:     cfg,
		metrics: metrics.GetDefaultCollector(),
	}

	for _, opt := range opts {
		opt(s)
	}

	limits := queue.Limits{
		Total:            cfg.QueueLimit,
		PerSource:        cfg.PerSourceLimits,
		DefaultPerSource: cfg.DefaultPerSourceLimit,
	}
	s.queue = queue.NewManager(queue.Policy{
		Discipline: cfg.Discipline,
		Limits:     limits,
		UseBuffer:  cfg.UseQueueBuffer,
		JobInit:    s.jobInit,
	})

	s.nodes = node.NewManager(cfg.NumNodes)

	if cfg.UseScheduler {
		s.scheduler = schedule.NewManager(cfg.NumNodes)
	}

	s.timeLimit = cfg.TimeLimit

	return s, nil
}

// RunID is the UUID assigned to this Simulator at construction, used
// to correlate log lines and monitor server events for one run.
func (s *Simulator) RunID() string { return s.runID }
