// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package qsssim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jontk/qss-sim/internal/core/job"
	"github.com/jontk/qss-sim/internal/core/queue"
	"github.com/jontk/qss-sim/pkg/config"
	"github.com/jontk/qss-sim/pkg/stream"
)

// sliceStream replays a fixed, in-memory sequence of jobs — used in
// place of a file or generator stream so tests can assert on exact
// arrival/execution parameters without any I/O.
type sliceStream struct {
	jobs []*job.Job
	idx  int
}

func newSliceStream(jobs ...*job.Job) *sliceStream { return &sliceStream{jobs: jobs} }

func (s *sliceStream) Next() (*job.Job, bool, error) {
	if s.idx >= len(s.jobs) {
		return nil, false, nil
	}
	j := s.jobs[s.idx]
	s.idx++
	return j, true, nil
}

var _ stream.Stream = (*sliceStream)(nil)

func TestRun_RejectsEmptyStreams(t *testing.T) {
	sim, err := New(config.NewDefault())
	require.NoError(t, err)

	err = sim.Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestRun_SingleJobRunsToCompletion(t *testing.T) {
	cfg := config.NewDefault()
	cfg.NumNodes = 1
	sim, err := New(cfg)
	require.NoError(t, err)

	j := job.New(5, 1, "A", 0, 0, "")
	require.NoError(t, sim.Run(context.Background(), []stream.Stream{newSliceStream(j)}))

	require.Len(t, sim.OutputChannel(), 1)
	assert.Equal(t, 0., j.ArrivalTimestamp)
	release, ok := j.ReleaseTimestamp()
	require.True(t, ok)
	assert.Equal(t, 5., release)

	// trace[0] is the arrival sample (job still queued, not yet
	// dispatched); trace[1] is the submission sample once the node
	// picks it up.
	trace := sim.Trace()
	require.Len(t, trace, 3)
	assert.Equal(t, map[string]int{"A": 1}, trace[0].QueueBySource)
	assert.Equal(t, map[string]int{"A": 1}, trace[1].ServiceBySource)
	assert.Empty(t, trace[2].ServiceBySource)
}

func TestRun_QueuesWhenNodesBusy(t *testing.T) {
	cfg := config.NewDefault()
	cfg.NumNodes = 1
	sim, err := New(cfg)
	require.NoError(t, err)

	j1 := job.New(10, 1, "A", 0, 0, "")
	j2 := job.New(5, 1, "A", 0, 0, "")
	require.NoError(t, sim.Run(context.Background(), []stream.Stream{newSliceStream(j1, j2)}))

	require.Len(t, sim.OutputChannel(), 2)

	release2, ok := j2.ReleaseTimestamp()
	require.True(t, ok)
	assert.Equal(t, 15., release2) // j2 is submitted at 10 (once j1 frees the node), finishes at 15
}

func TestRun_TotalQueueLimitDropsOverflow(t *testing.T) {
	limit := 1
	cfg := config.NewDefault()
	cfg.NumNodes = 1
	cfg.QueueLimit = &limit

	sim, err := New(cfg)
	require.NoError(t, err)

	// j1 arrives at 0 and is dispatched immediately (the node is idle),
	// so it never occupies a queue slot. j2 arrives at 1 while the node
	// is busy and takes the one queue slot. j3 arrives at 2 while the
	// queue is already full and is dropped.
	j1 := job.New(10, 1, "A", 0, 0, "")
	j2 := job.New(5, 1, "A", 1, 0, "")
	j3 := job.New(5, 1, "A", 2, 0, "")
	require.NoError(t, sim.Run(context.Background(), []stream.Stream{newSliceStream(j1, j2, j3)}))

	assert.Equal(t, 1, sim.NumDropped())
	assert.Len(t, sim.OutputChannel(), 2)
}

func TestRun_QueueBufferAdmitsInsteadOfDropping(t *testing.T) {
	limit := 1
	cfg := config.NewDefault()
	cfg.NumNodes = 1
	cfg.QueueLimit = &limit
	cfg.UseQueueBuffer = true

	sim, err := New(cfg)
	require.NoError(t, err)

	j1 := job.New(10, 1, "A", 0, 0, "")
	j2 := job.New(5, 1, "A", 0, 0, "")
	j3 := job.New(5, 1, "A", 0, 0, "")
	require.NoError(t, sim.Run(context.Background(), []stream.Stream{newSliceStream(j1, j2, j3)}))

	assert.Equal(t, 0, sim.NumDropped())
	assert.Len(t, sim.OutputChannel(), 3)
}

func TestRun_BackfillSchedulerDispatchesByPlan(t *testing.T) {
	cfg := config.NewDefault()
	cfg.NumNodes = 2
	cfg.UseScheduler = true

	sim, err := New(cfg)
	require.NoError(t, err)

	j1 := job.New(10, 2, "A", 0, 10, "")
	j2 := job.New(5, 2, "B", 0, 5, "")
	require.NoError(t, sim.Run(context.Background(), []stream.Stream{newSliceStream(j1, j2)}))

	require.Len(t, sim.OutputChannel(), 2)
}

func TestRun_TimeLimitStopsSimulation(t *testing.T) {
	timeLimit := 3.0
	cfg := config.NewDefault()
	cfg.NumNodes = 1
	cfg.TimeLimit = &timeLimit

	sim, err := New(cfg)
	require.NoError(t, err)

	j1 := job.New(10, 1, "A", 0, 0, "")
	j2 := job.New(10, 1, "A", 20, 0, "")
	require.NoError(t, sim.Run(context.Background(), []stream.Stream{newSliceStream(j1, j2)}))

	// j2 arrives at 20, past the time_limit of 3, so the run stops
	// before it is ever admitted.
	assert.Len(t, sim.OutputChannel(), 0)
}

func TestRun_PriorityDisciplineDispatchesHigherPriorityFirst(t *testing.T) {
	cfg := config.NewDefault()
	cfg.NumNodes = 1
	cfg.Discipline = queue.Priority

	sim, err := New(cfg, WithJobInit(func(j *job.Job) {
		if j.Source == "urgent" {
			j.Priority = 100
		}
	}))
	require.NoError(t, err)

	// blocker arrives alone at 0 and is dispatched immediately, occupying
	// the only node. low and high arrive at 1, once the node is already
	// busy, so both wait in the queue together and priority decides
	// which one is dispatched first once blocker finishes.
	blocker := job.New(10, 1, "A", 0, 0, "")
	low := job.New(5, 1, "normal", 1, 0, "")
	high := job.New(5, 1, "urgent", 1, 0, "")

	require.NoError(t, sim.Run(context.Background(), []stream.Stream{newSliceStream(blocker, low, high)}))

	out := sim.OutputChannel()
	require.Len(t, out, 3)
	assert.Same(t, blocker, out[0])
	assert.Same(t, high, out[1])
	assert.Same(t, low, out[2])
}

func TestSummary_EmptyRunReturnsEmptyString(t *testing.T) {
	sim, err := New(config.NewDefault())
	require.NoError(t, err)
	assert.Empty(t, sim.Summary())
}

func TestSummary_ReportsDropRateWhenJobsAreDropped(t *testing.T) {
	limit := 0
	cfg := config.NewDefault()
	cfg.NumNodes = 1
	cfg.QueueLimit = &limit

	sim, err := New(cfg)
	require.NoError(t, err)

	j1 := job.New(5, 1, "A", 0, 0, "")
	j2 := job.New(5, 1, "A", 0, 0, "")
	require.NoError(t, sim.Run(context.Background(), []stream.Stream{newSliceStream(j1, j2)}))

	assert.Contains(t, sim.Summary(), "Queue drop rate")
}

func TestSummary_BreaksDownDropsBySourceWhenMultipleSourcesDrop(t *testing.T) {
	limit := 0
	cfg := config.NewDefault()
	cfg.NumNodes = 1
	cfg.QueueLimit = &limit

	sim, err := New(cfg)
	require.NoError(t, err)

	j1 := job.New(5, 1, "batch", 0, 0, "")
	j2 := job.New(5, 1, "interactive", 0, 0, "")
	require.NoError(t, sim.Run(context.Background(), []stream.Stream{newSliceStream(j1, j2)}))

	summary := sim.Summary()
	assert.Contains(t, summary, "Drops by source")
	assert.Contains(t, summary, "Batch: 1")
	assert.Contains(t, summary, "Interactive: 1")
}
