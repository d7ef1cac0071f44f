// Copyright 2024 The Gamification Engine Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"

	"go.uber.org/zap"
)

// EventQueue is a bounded FIFO handoff between ingestion and the queue
// processor. It does not survive a process crash between dequeue and
// persist; durability is the Event Store's job (spec.md §4.A).
type EventQueue struct {
	logger  *zap.Logger
	metrics Metrics

	ch chan *Event
}

// NewEventQueue creates a queue with the given bounded capacity.
func NewEventQueue(logger *zap.Logger, metrics Metrics, capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &EventQueue{
		logger:  logger,
		metrics: metrics,
		ch:      make(chan *Event, capacity),
	}
}

// Enqueue appends ev to the queue. It blocks when the queue is at capacity
// until a slot frees up or ctx is cancelled. Ordering is insertion order
// per producer (spec.md §4.A).
func (q *EventQueue) Enqueue(ctx context.Context, ev *Event) error {
	if ev == nil {
		return ErrNilEvent
	}
	select {
	case q.ch <- ev:
		q.metrics.SetQueueDepth(len(q.ch))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryEnqueue appends ev without blocking, returning ErrQueueFull immediately
// if the queue has no free slot.
func (q *EventQueue) TryEnqueue(ev *Event) error {
	if ev == nil {
		return ErrNilEvent
	}
	select {
	case q.ch <- ev:
		q.metrics.SetQueueDepth(len(q.ch))
		return nil
	default:
		q.metrics.CountDroppedEvents(1)
		return ErrQueueFull
	}
}

// Dequeue blocks until an event is available or ctx is cancelled, returning
// the oldest enqueued event.
func (q *EventQueue) Dequeue(ctx context.Context) (*Event, error) {
	select {
	case ev := <-q.ch:
		q.metrics.SetQueueDepth(len(q.ch))
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Size returns the current number of queued events.
func (q *EventQueue) Size() int {
	return len(q.ch)
}

// Empty reports whether the queue currently holds no events.
func (q *EventQueue) Empty() bool {
	return len(q.ch) == 0
}
