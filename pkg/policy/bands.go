// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package policy provides queue.Initializer strategies beyond the
// no-op default — supplemented from qss/policy.py, which ships a
// node-count-banded priority/aging scheme tuned for a large
// homogeneous cluster.
package policy

import (
	"sort"

	"github.com/jontk/qss-sim/internal/core/job"
	qsserrors "github.com/jontk/qss-sim/pkg/errors"
)

// Band assigns a priority group and an initial aging boost to jobs
// requesting between MinNodes and MaxNodes nodes, inclusive.
type Band struct {
	Group        int
	MinNodes     int
	MaxNodes     int
	BasePriority float64
}

// PriorityBands is a queue.Initializer that assigns each admitted
// job's Group and initial Priority from the first Band whose
// [MinNodes, MaxNodes] range contains the job's NumNodes.
type PriorityBands struct {
	totalNodes int
	bands      []Band
}

// NewPriorityBandsInitializer validates bands against totalNodes (no
// band may claim more nodes than exist) and returns the Initializer.
func NewPriorityBandsInitializer(totalNodes int, bands []Band) (*PriorityBands, error) {
	for _, b := range bands {
		if b.MaxNodes > totalNodes {
			return nil, qsserrors.NewConfigError("priority band max_nodes exceeds total node count")
		}
	}

	// Sorted by descending MinNodes: when totalNodes is small enough
	// that two adjacent bands' scaled boundaries collide, Init must
	// check the higher (more node-hungry, higher-priority) band first
	// so the collision resolves in its favor instead of the lower one.
	sorted := append([]Band(nil), bands...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinNodes > sorted[j].MinNodes })

	return &PriorityBands{totalNodes: totalNodes, bands: sorted}, nil
}

// Init implements queue.Initializer: it sets Group/Priority from the
// matching band, leaving the job untouched when no band matches.
func (p *PriorityBands) Init(j *job.Job) {
	for _, b := range p.bands {
		if j.NumNodes >= b.MinNodes && j.NumNodes <= b.MaxNodes {
			j.Group = b.Group
			j.Priority = b.BasePriority
			return
		}
	}
}

// DefaultTitanBands reproduces the five node-count bands from
// qss/policy.py's TITAN_REQUESTED_PROCESSOR_COUNT, scaled to
// totalNodes instead of the original's fixed 18688-node Titan
// partition.
func DefaultTitanBands(totalNodes int) []Band {
	scale := func(frac float64) int {
		n := int(float64(totalNodes) * frac)
		if n < 1 {
			n = 1
		}
		return n
	}

	return []Band{
		{Group: 1, MinNodes: scale(11250.0 / 18688.0), MaxNodes: totalNodes, BasePriority: 1296000},
		{Group: 2, MinNodes: scale(3750.0 / 18688.0), MaxNodes: scale(11249.0 / 18688.0), BasePriority: 432000},
		{Group: 3, MinNodes: scale(313.0 / 18688.0), MaxNodes: scale(3749.0 / 18688.0), BasePriority: 0},
		{Group: 4, MinNodes: scale(126.0 / 18688.0), MaxNodes: scale(312.0 / 18688.0), BasePriority: 0},
		{Group: 5, MinNodes: 1, MaxNodes: scale(125.0 / 18688.0), BasePriority: 0},
	}
}
