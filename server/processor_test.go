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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newProcessorHarness(t *testing.T) (*Processor, EventRepository) {
	t.Helper()
	events := NewMemoryEventRepository()
	userState := NewMemoryUserStateRepository()
	rules := NewMemoryRuleRepository()
	entityRepo := NewMemoryEntityRepository()
	walletRepo := NewMemoryWalletRepository()
	historyRepo := NewMemoryRewardHistoryRepository()

	catalog, err := NewEntityCatalog(entityRepo)
	require.NoError(t, err)
	locks := newStripedLock()
	wallet := NewWallet(zap.NewNop(), walletRepo, locks)
	registry := NewPluginRegistry(zap.NewNop())
	rewardEngine := NewRewardEngine(zap.NewNop(), wallet, catalog, historyRepo, registry)
	conditionEngine := NewConditionEngine(registry)
	evaluator := NewEvaluator(zap.NewNop(), rules, events, userState, wallet, rewardEngine, conditionEngine)

	require.NoError(t, rules.Upsert(&Rule{
		ID: "r1", Name: "login bonus", IsActive: true, Triggers: []string{"login"},
		Conditions: []Condition{{Type: ConditionAlwaysTrue}},
		Rewards:    []Reward{{Type: RewardPoints, Category: "xp", Amount: 10}},
	}))

	queue := NewEventQueue(zap.NewNop(), NopMetrics{}, 16)
	processor := NewProcessor(zap.NewNop(), NopMetrics{}, queue, events, evaluator, locks, 2)
	return processor, events
}

func TestProcessorStateTransitionsIdleRunningStopped(t *testing.T) {
	p, _ := newProcessorHarness(t)
	require.Equal(t, ProcessorIdle, p.State())

	p.Start()
	require.Equal(t, ProcessorRunning, p.State())

	p.Stop()
	require.Equal(t, ProcessorStopped, p.State())
}

func TestProcessorStartIsANoOpIfAlreadyRunning(t *testing.T) {
	p, _ := newProcessorHarness(t)
	p.Start()
	p.Start() // must not panic or spawn a second worker pool
	require.Equal(t, ProcessorRunning, p.State())
	p.Stop()
}

func TestProcessorProcessesEnqueuedEventsAndPersistsThem(t *testing.T) {
	p, events := newProcessorHarness(t)
	p.Start()
	defer p.Stop()

	ev := &Event{EventID: "e1", UserID: "alice", EventType: "login", OccurredAt: time.Now()}
	require.NoError(t, ev.Validate())
	require.NoError(t, p.queue.TryEnqueue(ev))

	require.Eventually(t, func() bool {
		return p.ProcessedEventCount() == 1
	}, time.Second, 5*time.Millisecond)

	_, ok, err := events.GetByID("e1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestProcessorStopDrainsInFlightWorkBeforeReturning(t *testing.T) {
	p, _ := newProcessorHarness(t)
	p.Start()

	for i := 0; i < 5; i++ {
		ev := &Event{EventID: itoa(i), UserID: "alice", EventType: "login", OccurredAt: time.Now()}
		require.NoError(t, ev.Validate())
		require.NoError(t, p.queue.TryEnqueue(ev))
	}

	p.Stop()
	require.Equal(t, ProcessorStopped, p.State())
}
