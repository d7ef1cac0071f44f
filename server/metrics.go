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
	"time"

	gometrics "github.com/armon/go-metrics"
)

// Metrics is the counters/gauges surface the core touches. Dashboards and
// exporters are out of scope; this interface only needs to be cheap to call
// on every event and reward.
type Metrics interface {
	SetQueueDepth(depth int)
	CountDroppedEvents(n int)
	CountProcessedEvents(n int)
	CountProcessingErrors(n int)
	CountRewardOutcome(rewardType string, success bool)
	CountLeaderboardCacheHit(hit bool)
	MeasureEvaluation(d time.Duration)
}

// GoMetrics adapts armon/go-metrics (the same package nakama's main.go
// wires via metrics.NewInmemSink/FanoutSink) to the Metrics interface.
type GoMetrics struct {
	sink gometrics.MetricSink
}

func NewGoMetrics(sink gometrics.MetricSink) *GoMetrics {
	return &GoMetrics{sink: sink}
}

func (m *GoMetrics) SetQueueDepth(depth int) {
	m.sink.SetGauge([]string{"engine", "queue", "depth"}, float32(depth))
}

func (m *GoMetrics) CountDroppedEvents(n int) {
	m.sink.IncrCounter([]string{"engine", "queue", "dropped"}, float32(n))
}

func (m *GoMetrics) CountProcessedEvents(n int) {
	m.sink.IncrCounter([]string{"engine", "processor", "processed"}, float32(n))
}

func (m *GoMetrics) CountProcessingErrors(n int) {
	m.sink.IncrCounter([]string{"engine", "processor", "errors"}, float32(n))
}

func (m *GoMetrics) CountRewardOutcome(rewardType string, success bool) {
	label := "success"
	if !success {
		label = "failure"
	}
	m.sink.IncrCounter([]string{"engine", "reward", rewardType, label}, 1)
}

func (m *GoMetrics) CountLeaderboardCacheHit(hit bool) {
	label := "miss"
	if hit {
		label = "hit"
	}
	m.sink.IncrCounter([]string{"engine", "leaderboard", "cache", label}, 1)
}

func (m *GoMetrics) MeasureEvaluation(d time.Duration) {
	m.sink.AddSample([]string{"engine", "evaluator", "duration_ms"}, float32(d.Milliseconds()))
}

// NopMetrics discards everything; used by default in tests.
type NopMetrics struct{}

func (NopMetrics) SetQueueDepth(int)                          {}
func (NopMetrics) CountDroppedEvents(int)                     {}
func (NopMetrics) CountProcessedEvents(int)                   {}
func (NopMetrics) CountProcessingErrors(int)                  {}
func (NopMetrics) CountRewardOutcome(string, bool)             {}
func (NopMetrics) CountLeaderboardCacheHit(bool)               {}
func (NopMetrics) MeasureEvaluation(time.Duration)             {}
