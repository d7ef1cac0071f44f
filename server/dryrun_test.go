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

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newDryRunHarness(t *testing.T) (*DryRunService, RuleRepository, EventRepository, *EntityCatalog) {
	t.Helper()
	rules := NewMemoryRuleRepository()
	events := NewMemoryEventRepository()
	userState := NewMemoryUserStateRepository()
	entityRepo := NewMemoryEntityRepository()
	catalog, err := NewEntityCatalog(entityRepo)
	require.NoError(t, err)
	registry := NewPluginRegistry(zap.NewNop())
	condition := NewConditionEngine(registry)
	return NewDryRunService(zap.NewNop(), rules, events, userState, catalog, condition), rules, events, catalog
}

func TestDryRunTracePredictsRewardsWithoutPersisting(t *testing.T) {
	dryRun, rules, events, _ := newDryRunHarness(t)
	require.NoError(t, rules.Upsert(&Rule{
		ID: "r1", Name: "login bonus", IsActive: true, Triggers: []string{"login"},
		Conditions: []Condition{{Type: ConditionAlwaysTrue}},
		Rewards:    []Reward{{Type: RewardPoints, Category: "xp", Amount: 10}},
	}))

	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "login"}
	require.NoError(t, trigger.Validate())

	result, err := dryRun.Trace(trigger)
	require.NoError(t, err)
	require.Len(t, result.EvaluatedRules, 1)
	require.True(t, result.EvaluatedRules[0].Matched)
	require.Equal(t, int64(10), result.EvaluatedRules[0].PredictedRewards[0].ResultingBalance)
	require.Equal(t, int64(10), result.Summary.TotalPredictedPoints["xp"])

	// The trigger event must never have been written to the event store.
	_, ok, err := events.GetByID("e1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDryRunTraceDoesNotMutateRealUserState(t *testing.T) {
	dryRun, rules, _, _ := newDryRunHarness(t)
	require.NoError(t, rules.Upsert(&Rule{
		ID: "r1", Name: "login bonus", IsActive: true, Triggers: []string{"login"},
		Conditions: []Condition{{Type: ConditionAlwaysTrue}},
		Rewards:    []Reward{{Type: RewardPoints, Category: "xp", Amount: 10}},
	}))

	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "login"}
	require.NoError(t, trigger.Validate())
	_, err := dryRun.Trace(trigger)
	require.NoError(t, err)

	// Re-tracing must predict the exact same delta, proving no state stuck
	// around from the first trace.
	trigger2 := &Event{EventID: "e2", UserID: "alice", EventType: "login"}
	require.NoError(t, trigger2.Validate())
	result2, err := dryRun.Trace(trigger2)
	require.NoError(t, err)
	require.Equal(t, int64(10), result2.EvaluatedRules[0].PredictedRewards[0].ResultingBalance)
}

func TestDryRunTraceSkipsPluginConditionsAsUnevaluated(t *testing.T) {
	dryRun, rules, _, _ := newDryRunHarness(t)
	require.NoError(t, rules.Upsert(&Rule{
		ID: "r1", Name: "plugin gated", IsActive: true, Triggers: []string{"login"},
		Conditions: []Condition{{Type: "customScript"}},
	}))

	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "login"}
	require.NoError(t, trigger.Validate())

	result, err := dryRun.Trace(trigger)
	require.NoError(t, err)
	require.False(t, result.EvaluatedRules[0].Matched)
	require.False(t, result.EvaluatedRules[0].ConditionResults[0].Result)
	require.NotEmpty(t, result.EvaluatedRules[0].ConditionResults[0].Reason)
}

func TestDryRunTraceConditionResultsRecordShortCircuitSkips(t *testing.T) {
	dryRun, rules, _, _ := newDryRunHarness(t)
	require.NoError(t, rules.Upsert(&Rule{
		ID: "r1", Name: "two conditions", IsActive: true, Triggers: []string{"purchase"},
		Conditions: []Condition{
			{Type: ConditionAttributeEquals, Parameters: map[string]interface{}{"attribute": "tier", "value": "vip"}},
			{Type: ConditionAlwaysTrue},
		},
	}))

	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "purchase", Attributes: map[string]interface{}{"tier": "regular"}}
	require.NoError(t, trigger.Validate())

	result, err := dryRun.Trace(trigger)
	require.NoError(t, err)
	require.False(t, result.EvaluatedRules[0].Matched)
	require.Len(t, result.EvaluatedRules[0].ConditionResults, 2)
	require.Equal(t, "skipped: prior condition failed", result.EvaluatedRules[0].ConditionResults[1].Reason)
}
