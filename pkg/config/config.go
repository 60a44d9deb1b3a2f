// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package config holds the simulator's typed configuration record.
package config

import (
	"os"
	"strconv"

	"github.com/jontk/qss-sim/internal/core/queue"
)

// Config is the simulator's configuration surface: node count, queue
// policy, optional scheduler/buffer toggles, a hard time limit, and
// the two optional output files.
type Config struct {
	// NumNodes is the number of identical, single-slot nodes managed
	// by the node manager.
	NumNodes int

	// QueueLimit is the total admission limit across all sources, or
	// nil for unlimited.
	QueueLimit *int

	// PerSourceLimits maps a source name to its own admission cap.
	PerSourceLimits map[string]int

	// DefaultPerSourceLimit caps every source without its own entry in
	// PerSourceLimits, or nil for no default.
	DefaultPerSourceLimit *int

	// Discipline selects FIFO or aged-priority queue ordering.
	Discipline queue.Discipline

	// UseQueueBuffer diverts jobs rejected by a limit into a per-source
	// overflow buffer instead of dropping them.
	UseQueueBuffer bool

	// UseScheduler enables the backfill schedule manager; without it,
	// only the head of the queue is ever considered for dispatch.
	UseScheduler bool

	// TimeLimit, if set, forces the simulation to Stop once
	// current_time exceeds it.
	TimeLimit *float64

	// OutputFile, if non-empty, is the path completed jobs are
	// appended to.
	OutputFile string

	// TraceFile, if non-empty, is the path queue/service trace samples
	// are appended to.
	TraceFile string
}

// NewDefault returns a Config with the conventional defaults: a single
// FIFO queue over one node, no limits, no buffer, no scheduler, and no
// output files. NewDefault/Load consult environment variables under
// the QSS_ prefix.
func NewDefault() *Config {
	return &Config{
		NumNodes:       getEnvIntOrDefault("QSS_NUM_NODES", 1),
		Discipline:     queue.Discipline(getEnvOrDefault("QSS_DISCIPLINE", string(queue.FIFO))),
		UseQueueBuffer: getEnvBoolOrDefault("QSS_USE_QUEUE_BUFFER", false),
		UseScheduler:   getEnvBoolOrDefault("QSS_USE_SCHEDULER", false),
		OutputFile:     getEnvOrDefault("QSS_OUTPUT_FILE", ""),
		TraceFile:      getEnvOrDefault("QSS_TRACE_FILE", ""),
	}
}

// Load layers environment variables over the receiver's current
// values, leaving fields untouched when the corresponding variable is
// unset.
func (c *Config) Load() {
	if v := os.Getenv("QSS_NUM_NODES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			c.NumNodes = i
		}
	}

	if v := os.Getenv("QSS_QUEUE_LIMIT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			c.QueueLimit = &i
		}
	}

	if v := os.Getenv("QSS_DEFAULT_PER_SOURCE_LIMIT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			c.DefaultPerSourceLimit = &i
		}
	}

	if v := os.Getenv("QSS_DISCIPLINE"); v != "" {
		c.Discipline = queue.Discipline(v)
	}

	if v := os.Getenv("QSS_TIME_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.TimeLimit = &f
		}
	}

	if v := os.Getenv("QSS_OUTPUT_FILE"); v != "" {
		c.OutputFile = v
	}

	if v := os.Getenv("QSS_TRACE_FILE"); v != "" {
		c.TraceFile = v
	}

	c.UseQueueBuffer = getEnvBoolOrDefault("QSS_USE_QUEUE_BUFFER", c.UseQueueBuffer)
	c.UseScheduler = getEnvBoolOrDefault("QSS_USE_SCHEDULER", c.UseScheduler)
}

// Validate returns a ConfigError unless NumNodes is positive,
// QueueLimit is nil or non-negative, and Discipline is known.
func (c *Config) Validate() error {
	if c.NumNodes <= 0 {
		return ErrMissingNumNodes
	}

	if c.QueueLimit != nil && *c.QueueLimit < 0 {
		return ErrInvalidQueueLimit
	}

	switch c.Discipline {
	case queue.FIFO, queue.Priority:
	default:
		return ErrUnknownDiscipline
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
