// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff_NextDelay_StopsAtMaxAttempts(t *testing.T) {
	b := NewExponentialBackoff()
	b.MaxAttempts = 2
	b.Jitter = 0

	_, ok := b.NextDelay(0)
	assert.True(t, ok)
	_, ok = b.NextDelay(1)
	assert.True(t, ok)
	_, ok = b.NextDelay(2)
	assert.False(t, ok)
}

func TestExponentialBackoff_NextDelay_CapsAtMaxDelay(t *testing.T) {
	b := &ExponentialBackoff{
		InitialDelay: time.Second,
		MaxDelay:     2 * time.Second,
		Multiplier:   10,
		MaxAttempts:  5,
	}

	delay, ok := b.NextDelay(3)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, delay)
}

func TestConstantBackoff_NextDelay(t *testing.T) {
	b := NewConstantBackoff(50*time.Millisecond, 3)

	delay, ok := b.NextDelay(0)
	require.True(t, ok)
	assert.Equal(t, 50*time.Millisecond, delay)

	_, ok = b.NextDelay(3)
	assert.False(t, ok)
}

func TestFibonacciBackoff_NextDelay_FollowsSequence(t *testing.T) {
	b := NewFibonacciBackoff()
	b.InitialDelay = time.Millisecond
	b.MaxDelay = time.Hour

	d0, _ := b.NextDelay(0)
	d1, _ := b.NextDelay(1)
	d2, _ := b.NextDelay(2)
	d3, _ := b.NextDelay(3)

	assert.Equal(t, time.Millisecond, d0)
	assert.Equal(t, time.Millisecond, d1)
	assert.Equal(t, 2*time.Millisecond, d2)
	assert.Equal(t, 3*time.Millisecond, d3)
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	backoff := NewConstantBackoff(time.Millisecond, 5)

	attempts := 0
	err := Retry(context.Background(), backoff, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ReturnsLastErrorWhenExhausted(t *testing.T) {
	backoff := NewConstantBackoff(time.Millisecond, 2)
	sentinel := errors.New("still failing")

	err := Retry(context.Background(), backoff, func() error {
		return sentinel
	})

	assert.Equal(t, sentinel, err)
}

func TestRetry_StopsOnContextCancellation(t *testing.T) {
	backoff := NewConstantBackoff(time.Hour, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, backoff, func() error {
		return errors.New("fails")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithResult_ReturnsValueOnSuccess(t *testing.T) {
	backoff := NewConstantBackoff(time.Millisecond, 3)

	attempts := 0
	result, err := RetryWithResult(context.Background(), backoff, func() (int, error) {
		attempts++
		if attempts < 2 {
			return 0, errors.New("not yet")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
}
