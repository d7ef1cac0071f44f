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
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ProcessorState is the Queue Processor's lifecycle (spec.md §4.I: "Idle →
// Running → Stopping → Stopped").
type ProcessorState int32

const (
	ProcessorIdle ProcessorState = iota
	ProcessorRunning
	ProcessorStopping
	ProcessorStopped
)

func (s ProcessorState) String() string {
	switch s {
	case ProcessorRunning:
		return "running"
	case ProcessorStopping:
		return "stopping"
	case ProcessorStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// maxProcessingRetries bounds how many times a fatal (storage/retrieval)
// error is retried for the same event before it is given up on and logged.
// Retries happen in place on the same worker after a backoff, each attempt
// re-acquiring the user's stripe; the event is not put back on the queue.
const maxProcessingRetries = 3

// Processor drains the EventQueue, persists each event to the Event
// Store, and runs it through the Evaluator in execute mode, one event at
// a time per user but with multiple users progressing concurrently
// (spec.md §4.I, §5). Grounded on RuntimeEventQueue's fixed worker pool
// and context-cancellation stop.
type Processor struct {
	logger    *zap.Logger
	metrics   Metrics
	queue     *EventQueue
	events    EventRepository
	evaluator *Evaluator
	locks     *stripedLock

	workerCount int

	state       atomic.Int32
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	stoppedChan chan struct{}

	processedEventCount atomic.Uint64
	errorCount          atomic.Uint64
}

func NewProcessor(logger *zap.Logger, metrics Metrics, queue *EventQueue, events EventRepository, evaluator *Evaluator, locks *stripedLock, workerCount int) *Processor {
	if workerCount <= 0 {
		workerCount = 1
	}
	p := &Processor{
		logger: logger, metrics: metrics, queue: queue, events: events,
		evaluator: evaluator, locks: locks, workerCount: workerCount,
	}
	p.state.Store(int32(ProcessorIdle))
	return p
}

func (p *Processor) State() ProcessorState {
	return ProcessorState(p.state.Load())
}

// Start transitions Idle->Running and spawns workerCount goroutines, each
// looping dequeue-persist-evaluate until Stop is called.
func (p *Processor) Start() {
	if !p.state.CAS(int32(ProcessorIdle), int32(ProcessorRunning)) {
		return
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.stoppedChan = make(chan struct{})

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.workerLoop()
	}

	go func() {
		p.wg.Wait()
		p.state.Store(int32(ProcessorStopped))
		close(p.stoppedChan)
	}()
}

// Stop transitions Running->Stopping, signals every worker to drain, and
// blocks until they have all exited (state becomes Stopped).
func (p *Processor) Stop() {
	if !p.state.CAS(int32(ProcessorRunning), int32(ProcessorStopping)) {
		return
	}
	p.cancel()
	<-p.stoppedChan
}

func (p *Processor) workerLoop() {
	defer p.wg.Done()
	for {
		ev, err := p.queue.Dequeue(p.ctx)
		if err != nil {
			// Context cancelled: draining to Stopped.
			return
		}
		p.processWithRetry(ev)
	}
}

func (p *Processor) processWithRetry(ev *Event) {
	var lastErr error
	for attempt := 0; attempt <= maxProcessingRetries; attempt++ {
		var err error
		p.locks.WithUser(ev.UserID, func() {
			err = p.processOnce(ev)
		})
		if err == nil {
			p.processedEventCount.Inc()
			return
		}
		lastErr = err
		if !IsFatal(err) {
			// Non-fatal: the evaluator already degraded the failing
			// rule/condition/reward to a recorded outcome, so this branch
			// is only reached for programmer errors in evaluation wiring.
			break
		}
		if attempt < maxProcessingRetries {
			p.logger.Warn("retrying event after fatal error",
				zap.String("eventId", ev.EventID), zap.Int("attempt", attempt+1), zap.Error(err))
			time.Sleep(backoffDuration(attempt))
		}
	}
	p.errorCount.Inc()
	p.metrics.CountProcessingErrors(1)
	p.logger.Error("giving up on event after exhausting retry budget",
		zap.String("eventId", ev.EventID), zap.Error(lastErr))
}

func backoffDuration(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 50 * time.Millisecond
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}

func (p *Processor) processOnce(ev *Event) error {
	start := time.Now()
	if err := p.events.Store(ev); err != nil {
		return NewStorageError("persisting event", err)
	}
	_, err := p.evaluator.Execute(ev)
	p.metrics.MeasureEvaluation(time.Since(start))
	if err != nil {
		return err
	}
	p.metrics.CountProcessedEvents(1)
	return nil
}

// ProcessedEventCount is the monotonically increasing count of
// successfully processed events (spec.md §4.I).
func (p *Processor) ProcessedEventCount() uint64 {
	return p.processedEventCount.Load()
}

// ErrorCount is the count of events given up on: after exhausting the
// retry budget on fatal errors, or after the first non-fatal error. It does
// not advance ProcessedEventCount.
func (p *Processor) ErrorCount() uint64 {
	return p.errorCount.Load()
}
