// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package watch provides polling-based observers over a running
// simulation, for callers (the monitor server, a CLI "watch"
// subcommand) that want a live feed without touching the simulator's
// internals directly.
package watch

import (
	"context"
	"sync"
	"time"

	qsssim "github.com/jontk/qss-sim"
)

// DefaultPollInterval is the default polling interval for watch
// operations.
const DefaultPollInterval = 250 * time.Millisecond

// Snapshot is what a PollFunc reads from a running Simulator.
type Snapshot struct {
	Trace        []qsssim.TraceSample
	NumCompleted int
	NumDropped   int
}

// PollFunc reads the current state of a running simulation. Typical
// implementations close over a *qsssim.Simulator and return
// Snapshot{s.Trace(), len(s.OutputChannel()), s.NumDropped()}.
type PollFunc func(ctx context.Context) (Snapshot, error)

// TraceEvent is emitted for every trace sample or completion the
// tailer has not already reported.
type TraceEvent struct {
	EventType     string // "trace_sample" or "job_completed"
	Timestamp     float64
	QueueLength   int
	NumProcessing int
	Action        qsssim.ActionCode
	NumCompleted  int
	NumDropped    int
	EventTime     time.Time
}

// TraceTailer implements real-time simulation monitoring through
// polling a single trace/output feed.
type TraceTailer struct {
	pollFunc     PollFunc
	pollInterval time.Duration
	bufferSize   int

	mu            sync.Mutex
	lastTraceLen  int
	lastCompleted int
}

// NewTraceTailer creates a new trace tailer.
func NewTraceTailer(pollFunc PollFunc) *TraceTailer {
	return &TraceTailer{
		pollFunc:     pollFunc,
		pollInterval: DefaultPollInterval,
		bufferSize:   256,
	}
}

// WithPollInterval sets a custom poll interval.
func (t *TraceTailer) WithPollInterval(interval time.Duration) *TraceTailer {
	t.pollInterval = interval
	return t
}

// WithBufferSize sets a custom buffer size for the event channel.
func (t *TraceTailer) WithBufferSize(size int) *TraceTailer {
	t.bufferSize = size
	return t
}

// Watch starts polling and returns a channel of TraceEvents, closed
// when ctx is cancelled.
func (t *TraceTailer) Watch(ctx context.Context) (<-chan TraceEvent, error) {
	eventChan := make(chan TraceEvent, t.bufferSize)
	go t.pollLoop(ctx, eventChan)
	return eventChan, nil
}

func (t *TraceTailer) pollLoop(ctx context.Context, eventChan chan<- TraceEvent) {
	defer close(eventChan)

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	t.performPoll(ctx, eventChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.performPoll(ctx, eventChan)
		}
	}
}

func (t *TraceTailer) performPoll(ctx context.Context, eventChan chan<- TraceEvent) {
	snap, err := t.pollFunc(ctx)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, sample := range snap.Trace[t.lastTraceLen:] {
		if !sendEvent(ctx, eventChan, TraceEvent{
			EventType:     "trace_sample",
			Timestamp:     sample.Timestamp,
			QueueLength:   sample.QueueLength,
			NumProcessing: sample.NumProcessing,
			Action:        sample.Action,
			EventTime:     time.Now(),
		}) {
			return
		}
	}
	t.lastTraceLen = len(snap.Trace)

	if snap.NumCompleted > t.lastCompleted {
		if !sendEvent(ctx, eventChan, TraceEvent{
			EventType:    "job_completed",
			NumCompleted: snap.NumCompleted,
			NumDropped:   snap.NumDropped,
			EventTime:    time.Now(),
		}) {
			return
		}
		t.lastCompleted = snap.NumCompleted
	}
}

// sendEvent delivers ev to eventChan, abandoning the send (and
// reporting false) if ctx is cancelled first, so a stalled consumer
// can never wedge performPoll while it holds t.mu.
func sendEvent(ctx context.Context, eventChan chan<- TraceEvent, ev TraceEvent) bool {
	select {
	case eventChan <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
