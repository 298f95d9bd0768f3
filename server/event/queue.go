// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

// Package event provides the bounded event queue between a streaming
// handler (producer) and the server's sequencer (consumer).
package event

import (
	"context"
	"errors"
	"sync"

	"github.com/agentwire/a2a"
)

// DefaultQueueSize is the default queue capacity.
const DefaultQueueSize = 256

// Queue errors.
var (
	// ErrQueueClosed is returned when enqueueing to a closed queue, or when
	// dequeueing after the queue was closed and drained.
	ErrQueueClosed = errors.New("event queue is closed")

	// ErrInvalidQueueSize is returned for a negative queue capacity.
	ErrInvalidQueueSize = errors.New("queue size must not be negative")
)

// Queue is a bounded queue of stream events. The producing handler blocks
// when the queue is full, which backpressures fast producers onto the
// consuming transport. Closing the queue marks the end of production;
// pending events remain readable until drained.
type Queue struct {
	events    chan a2a.StreamEvent
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewQueue creates a queue with the given capacity; 0 selects
// DefaultQueueSize.
func NewQueue(size int) (*Queue, error) {
	if size < 0 {
		return nil, ErrInvalidQueueSize
	}
	if size == 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		events: make(chan a2a.StreamEvent, size),
		done:   make(chan struct{}),
	}, nil
}

// Enqueue adds an event, blocking while the queue is full. Returns
// ErrQueueClosed once the queue is closed, or the context error when ctx
// ends first.
func (q *Queue) Enqueue(ctx context.Context, event a2a.StreamEvent) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	q.mu.RUnlock()

	select {
	case q.events <- event:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue removes the next event, blocking until one is available. Returns
// ErrQueueClosed once the queue is closed and drained.
func (q *Queue) Dequeue(ctx context.Context) (a2a.StreamEvent, error) {
	select {
	case event := <-q.events:
		return event, nil
	default:
	}

	select {
	case event := <-q.events:
		return event, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.done:
		// Drain events enqueued before the close.
		select {
		case event := <-q.events:
			return event, nil
		default:
			return nil, ErrQueueClosed
		}
	}
}

// Close marks the end of production. Safe to call more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.done)
	})
}

// IsClosed reports whether the queue has been closed.
func (q *Queue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Size returns the number of queued events.
func (q *Queue) Size() int { return len(q.events) }

// Capacity returns the queue capacity.
func (q *Queue) Capacity() int { return cap(q.events) }
