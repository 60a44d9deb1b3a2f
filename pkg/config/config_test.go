// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/jontk/qss-sim/internal/core/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefault(t *testing.T) {
	config := NewDefault()

	require.NotNil(t, config)
	assert.Equal(t, 1, config.NumNodes)
	assert.Equal(t, queue.FIFO, config.Discipline)
	assert.False(t, config.UseQueueBuffer)
	assert.False(t, config.UseScheduler)
	assert.Nil(t, config.QueueLimit)
	assert.Nil(t, config.TimeLimit)
	assert.Empty(t, config.OutputFile)
	assert.Empty(t, config.TraceFile)
}

func TestConfigLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected func(*testing.T, *Config)
	}{
		{
			name: "num nodes from environment",
			envVars: map[string]string{
				"QSS_NUM_NODES": "8",
			},
			expected: func(t *testing.T, c *Config) {
				assert.Equal(t, 8, c.NumNodes)
			},
		},
		{
			name: "queue limit from environment",
			envVars: map[string]string{
				"QSS_QUEUE_LIMIT": "10",
			},
			expected: func(t *testing.T, c *Config) {
				require.NotNil(t, c.QueueLimit)
				assert.Equal(t, 10, *c.QueueLimit)
			},
		},
		{
			name: "discipline from environment",
			envVars: map[string]string{
				"QSS_DISCIPLINE": "priority",
			},
			expected: func(t *testing.T, c *Config) {
				assert.Equal(t, queue.Priority, c.Discipline)
			},
		},
		{
			name: "time limit from environment",
			envVars: map[string]string{
				"QSS_TIME_LIMIT": "3600",
			},
			expected: func(t *testing.T, c *Config) {
				require.NotNil(t, c.TimeLimit)
				assert.Equal(t, 3600.0, *c.TimeLimit)
			},
		},
		{
			name: "output and trace files from environment",
			envVars: map[string]string{
				"QSS_OUTPUT_FILE": "/tmp/out.txt",
				"QSS_TRACE_FILE":  "/tmp/trace.txt",
			},
			expected: func(t *testing.T, c *Config) {
				assert.Equal(t, "/tmp/out.txt", c.OutputFile)
				assert.Equal(t, "/tmp/trace.txt", c.TraceFile)
			},
		},
		{
			name: "buffer and scheduler toggles from environment",
			envVars: map[string]string{
				"QSS_USE_QUEUE_BUFFER": "true",
				"QSS_USE_SCHEDULER":    "true",
			},
			expected: func(t *testing.T, c *Config) {
				assert.True(t, c.UseQueueBuffer)
				assert.True(t, c.UseScheduler)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			config := NewDefault()
			config.Load()

			require.NotNil(t, config)
			tt.expected(t, config)
		})
	}
}

func TestConfigValidation(t *testing.T) {
	limit := -1
	validLimit := 5

	tests := []struct {
		name        string
		config      *Config
		expectedErr error
	}{
		{
			name: "valid config",
			config: &Config{
				NumNodes:   4,
				Discipline: queue.FIFO,
			},
		},
		{
			name: "valid config with queue limit",
			config: &Config{
				NumNodes:   4,
				Discipline: queue.Priority,
				QueueLimit: &validLimit,
			},
		},
		{
			name: "zero num nodes",
			config: &Config{
				NumNodes:   0,
				Discipline: queue.FIFO,
			},
			expectedErr: ErrMissingNumNodes,
		},
		{
			name: "negative num nodes",
			config: &Config{
				NumNodes:   -2,
				Discipline: queue.FIFO,
			},
			expectedErr: ErrMissingNumNodes,
		},
		{
			name: "negative queue limit",
			config: &Config{
				NumNodes:   1,
				Discipline: queue.FIFO,
				QueueLimit: &limit,
			},
			expectedErr: ErrInvalidQueueLimit,
		},
		{
			name: "unknown discipline",
			config: &Config{
				NumNodes:   1,
				Discipline: queue.Discipline("round-robin"),
			},
			expectedErr: ErrUnknownDiscipline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigMutation(t *testing.T) {
	config := NewDefault()

	config.NumNodes = 16
	assert.Equal(t, 16, config.NumNodes)

	config.Discipline = queue.Priority
	assert.Equal(t, queue.Priority, config.Discipline)

	config.UseQueueBuffer = true
	assert.True(t, config.UseQueueBuffer)

	config.UseScheduler = true
	assert.True(t, config.UseScheduler)

	limit := 100
	config.QueueLimit = &limit
	require.NotNil(t, config.QueueLimit)
	assert.Equal(t, 100, *config.QueueLimit)
}
