// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package stream implements Job producers: a synthetic
// exponential-arrival/exponential-service generator and a file-replay
// reader. Grounded on qss/stream.py and qss/core/stream.py.
package stream

import "github.com/jontk/qss-sim/internal/core/job"

// DefaultSourceLabel is the source name used when a stream is not
// given one explicitly.
const DefaultSourceLabel = "main"

// DefaultNumNodes is the node count used when a stream is not given
// one explicitly.
const DefaultNumNodes = 1

// Stream produces Job records in non-decreasing ArrivalTimestamp
// order. End of stream is signalled by Next returning (nil, false).
// A Stream is stateful and is not safe for concurrent use by more
// than one goroutine; the simulator core reads its streams from a
// single goroutine.
type Stream interface {
	// Next returns the next job in the stream. ok is false at end of
	// stream; err is non-nil only on a fatal read failure (IOError).
	Next() (j *job.Job, ok bool, err error)
}
