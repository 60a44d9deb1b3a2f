// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jontk/qss-sim/internal/core/job"
)

func TestNewManager(t *testing.T) {
	m := NewManager(4)
	assert.Equal(t, 4, m.NumNodes())
	assert.Equal(t, 4, m.NumIdleNodes())
	assert.Equal(t, 0, m.NumBusyNodes())
}

func TestReadyForProcessing(t *testing.T) {
	m := NewManager(2)
	j := job.New(1, 2, "A", 0, 0, "")
	assert.True(t, m.ReadyForProcessing(j))

	j3 := job.New(1, 3, "A", 0, 0, "")
	assert.False(t, m.ReadyForProcessing(j3))
}

func TestStartProcessing(t *testing.T) {
	m := NewManager(4)
	j := job.New(5, 2, "A", 0, 0, "label-a")

	require.NoError(t, m.StartProcessing(j, 1))

	assert.Equal(t, 2, m.NumIdleNodes())
	assert.Equal(t, 1, m.NumProcessingJobs())
	assert.True(t, j.Submitted())

	release, ok := m.NextReleaseTimestamp()
	require.True(t, ok)
	assert.Equal(t, 6., release)

	assert.Equal(t, 1, m.NumJobsWithLabels()["label-a"])
}

func TestStartProcessing_NotEnoughIdleNodes(t *testing.T) {
	m := NewManager(1)
	j := job.New(5, 2, "A", 0, 0, "")

	err := m.StartProcessing(j, 0)
	assert.Error(t, err)
}

func TestAssignProcessing_Success(t *testing.T) {
	m := NewManager(4)
	j := job.New(5, 2, "A", 0, 0, "")

	require.NoError(t, m.AssignProcessing(j, []int{0, 1}, 0))
	assert.Equal(t, 2, m.NumIdleNodes())
}

func TestAssignProcessing_WrongNodeCount(t *testing.T) {
	m := NewManager(4)
	j := job.New(5, 2, "A", 0, 0, "")

	err := m.AssignProcessing(j, []int{0}, 0)
	assert.Error(t, err)
}

func TestAssignProcessing_OverlapRollsBackClaims(t *testing.T) {
	m := NewManager(4)
	busy := job.New(5, 1, "A", 0, 0, "")
	require.NoError(t, m.AssignProcessing(busy, []int{1}, 0))

	j := job.New(5, 2, "A", 0, 0, "")
	err := m.AssignProcessing(j, []int{0, 1}, 0)
	assert.Error(t, err)

	// node 0 should have been rolled back to idle, node 1 remains busy
	assert.Equal(t, 3, m.NumIdleNodes())
}

func TestStopProcessing(t *testing.T) {
	m := NewManager(4)
	j1 := job.New(5, 1, "A", 0, 0, "")
	j2 := job.New(3, 1, "B", 0, 0, "")

	require.NoError(t, m.StartProcessing(j1, 0))
	require.NoError(t, m.StartProcessing(j2, 0))

	finished := m.StopProcessing(3)
	require.Len(t, finished, 1)
	assert.Same(t, j2, finished[0])
	assert.Equal(t, 3, m.NumIdleNodes())

	finished = m.StopProcessing(5)
	require.Len(t, finished, 1)
	assert.Same(t, j1, finished[0])
	assert.Equal(t, 4, m.NumIdleNodes())
}

func TestScheduledReleases(t *testing.T) {
	m := NewManager(4)
	j := job.New(5, 2, "A", 0, 8, "")
	require.NoError(t, m.AssignProcessing(j, []int{0, 1}, 1))

	releases := m.ScheduledReleases()
	assert.Equal(t, 9., releases[0])
	assert.Equal(t, 9., releases[1])
}

func TestReset(t *testing.T) {
	m := NewManager(4)
	j := job.New(5, 2, "A", 0, 0, "label-a")
	require.NoError(t, m.StartProcessing(j, 0))

	m.Reset()
	assert.Equal(t, 4, m.NumIdleNodes())
	assert.Equal(t, 0, m.NumProcessingJobs())
	assert.Empty(t, m.NumJobsWithLabels())
}
