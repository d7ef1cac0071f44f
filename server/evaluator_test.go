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

type evaluatorHarness struct {
	evaluator *Evaluator
	events    EventRepository
	userState UserStateRepository
	wallet    *Wallet
	rules     RuleRepository
	history   RewardHistoryRepository
}

func newEvaluatorHarness(t *testing.T) *evaluatorHarness {
	t.Helper()
	events := NewMemoryEventRepository()
	userState := NewMemoryUserStateRepository()
	rules := NewMemoryRuleRepository()
	entityRepo := NewMemoryEntityRepository()
	walletRepo := NewMemoryWalletRepository()
	historyRepo := NewMemoryRewardHistoryRepository()

	catalog, err := NewEntityCatalog(entityRepo)
	require.NoError(t, err)
	wallet := NewWallet(zap.NewNop(), walletRepo, newStripedLock())
	registry := NewPluginRegistry(zap.NewNop())
	rewardEngine := NewRewardEngine(zap.NewNop(), wallet, catalog, historyRepo, registry)
	conditionEngine := NewConditionEngine(registry)
	evaluator := NewEvaluator(zap.NewNop(), rules, events, userState, wallet, rewardEngine, conditionEngine)

	return &evaluatorHarness{
		evaluator: evaluator, events: events, userState: userState,
		wallet: wallet, rules: rules, history: historyRepo,
	}
}

func TestEvaluatorExecuteSkipsInactiveRules(t *testing.T) {
	h := newEvaluatorHarness(t)
	require.NoError(t, h.rules.Upsert(&Rule{
		ID: "r1", Name: "inactive", IsActive: false, Triggers: []string{"login"},
		Conditions: []Condition{{Type: ConditionAlwaysTrue}},
		Rewards:    []Reward{{Type: RewardPoints, Category: "xp", Amount: 10}},
	}))

	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "login"}
	result, err := h.evaluator.Execute(trigger)
	require.NoError(t, err)
	require.Empty(t, result.Rules)
}

func TestEvaluatorExecuteAppliesMatchedRuleRewards(t *testing.T) {
	h := newEvaluatorHarness(t)
	require.NoError(t, h.rules.Upsert(&Rule{
		ID: "r1", Name: "login bonus", IsActive: true, Triggers: []string{"login"},
		Conditions: []Condition{{Type: ConditionAlwaysTrue}},
		Rewards:    []Reward{{Type: RewardPoints, Category: "xp", Amount: 10}},
	}))

	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "login"}
	result, err := h.evaluator.Execute(trigger)
	require.NoError(t, err)
	require.Len(t, result.Rules, 1)
	require.True(t, result.Rules[0].Matched)
	require.True(t, result.Rules[0].Rewards[0].Success)

	balance, err := h.wallet.GetBalance("alice", "xp")
	require.NoError(t, err)
	require.Equal(t, int64(10), balance)

	state, err := h.userState.GetByUser("alice")
	require.NoError(t, err)
	require.Equal(t, int64(10), state.PointsByCategory["xp"])
}

func TestEvaluatorExecutePartialCommitSpendingFailureDoesNotRollBackRewards(t *testing.T) {
	h := newEvaluatorHarness(t)
	require.NoError(t, h.rules.Upsert(&Rule{
		ID: "r1", Name: "earn then overspend", IsActive: true, Triggers: []string{"purchase"},
		Conditions: []Condition{{Type: ConditionAlwaysTrue}},
		Rewards:    []Reward{{Type: RewardPoints, Category: "xp", Amount: 5}},
		Spendings:  []Spending{{Type: SpendingSpend, Category: "xp", Amount: 1000}},
	}))

	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "purchase"}
	result, err := h.evaluator.Execute(trigger)
	require.NoError(t, err)
	require.Len(t, result.Rules, 1)
	require.True(t, result.Rules[0].Rewards[0].Success)
	require.False(t, result.Rules[0].Spendings[0].Success)

	// The reward credit must still be visible: spending failures never
	// undo rewards already granted in the same rule.
	balance, err := h.wallet.GetBalance("alice", "xp")
	require.NoError(t, err)
	require.Equal(t, int64(5), balance)
}

func TestEvaluatorExecuteUnmatchedRuleAppliesNoRewards(t *testing.T) {
	h := newEvaluatorHarness(t)
	require.NoError(t, h.rules.Upsert(&Rule{
		ID: "r1", Name: "gated", IsActive: true, Triggers: []string{"purchase"},
		Conditions: []Condition{{Type: ConditionAttributeEquals, Parameters: map[string]interface{}{"attribute": "tier", "value": "vip"}}},
		Rewards:    []Reward{{Type: RewardPoints, Category: "xp", Amount: 100}},
	}))

	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "purchase", Attributes: map[string]interface{}{"tier": "regular"}}
	result, err := h.evaluator.Execute(trigger)
	require.NoError(t, err)
	require.False(t, result.Rules[0].Matched)

	balance, err := h.wallet.GetBalance("alice", "xp")
	require.NoError(t, err)
	require.Equal(t, int64(0), balance)
}

func TestEvaluatorExecuteReEvaluatingSameEventDoesNotDoubleCredit(t *testing.T) {
	h := newEvaluatorHarness(t)
	require.NoError(t, h.rules.Upsert(&Rule{
		ID: "r1", Name: "login bonus", IsActive: true, Triggers: []string{"login"},
		Conditions: []Condition{{Type: ConditionAlwaysTrue}},
		Rewards:    []Reward{{Type: RewardPoints, Category: "xp", Amount: 10}},
	}))

	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "login"}
	_, err := h.evaluator.Execute(trigger)
	require.NoError(t, err)
	_, err = h.evaluator.Execute(trigger)
	require.NoError(t, err)

	balance, err := h.wallet.GetBalance("alice", "xp")
	require.NoError(t, err)
	require.Equal(t, int64(10), balance)
}

func TestEvaluatorExecuteTransferSpendingMovesPointsBetweenUsers(t *testing.T) {
	h := newEvaluatorHarness(t)
	_, err := h.wallet.Credit("alice", "xp", 100, TxEarn, "seed", "seed-ref", nil)
	require.NoError(t, err)
	require.NoError(t, h.rules.Upsert(&Rule{
		ID: "r1", Name: "gift", IsActive: true, Triggers: []string{"gift"},
		Conditions: []Condition{{Type: ConditionAlwaysTrue}},
		Spendings:  []Spending{{Type: SpendingTransfer, Category: "xp", Amount: 30, DestinationUserID: "bob"}},
	}))

	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "gift"}
	result, err := h.evaluator.Execute(trigger)
	require.NoError(t, err)
	require.True(t, result.Rules[0].Spendings[0].Success)

	bobBalance, err := h.wallet.GetBalance("bob", "xp")
	require.NoError(t, err)
	require.Equal(t, int64(30), bobBalance)
}
