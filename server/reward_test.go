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

func newTestRewardEngine(t *testing.T) (*RewardEngine, *EntityCatalog) {
	t.Helper()
	entityRepo := NewMemoryEntityRepository()
	catalog, err := NewEntityCatalog(entityRepo)
	require.NoError(t, err)
	wallet := NewWallet(zap.NewNop(), NewMemoryWalletRepository(), newStripedLock())
	history := NewMemoryRewardHistoryRepository()
	return NewRewardEngine(zap.NewNop(), wallet, catalog, history, NewPluginRegistry(zap.NewNop())), catalog
}

func TestApplyAllPointsRewardCreditsWallet(t *testing.T) {
	re, _ := newTestRewardEngine(t)
	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "purchase"}
	state := NewUserState("alice")
	rule := &Rule{ID: "r1", Rewards: []Reward{{Type: RewardPoints, Category: "xp", Amount: 50}}}

	outcomes, err := re.ApplyAll(rule, trigger, state)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].Success)
	require.Equal(t, int64(50), state.PointsByCategory["xp"])
}

func TestApplyAllIsIdempotentOnTriggerEventAndPosition(t *testing.T) {
	re, _ := newTestRewardEngine(t)
	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "purchase"}
	rule := &Rule{ID: "r1", Rewards: []Reward{{Type: RewardPoints, Category: "xp", Amount: 50}}}

	state1 := NewUserState("alice")
	_, err := re.ApplyAll(rule, trigger, state1)
	require.NoError(t, err)

	// Re-evaluating the same trigger event against the same rule must not
	// double-apply: the history lookup turns the second pass into a no-op.
	state2 := NewUserState("alice")
	outcomes, err := re.ApplyAll(rule, trigger, state2)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, int64(0), state2.PointsByCategory["xp"]) // apply() hit history, never touched state again
}

func TestApplyAllBadgeGrantIsIdempotentWithinState(t *testing.T) {
	re, _ := newTestRewardEngine(t)
	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "login"}
	state := NewUserState("alice")
	state.GrantBadge("first-login")
	rule := &Rule{ID: "r1", Rewards: []Reward{{Type: RewardBadge, EntityID: "first-login"}}}

	outcomes, err := re.ApplyAll(rule, trigger, state)
	require.NoError(t, err)
	require.True(t, outcomes[0].Success)
	require.Equal(t, "already held", outcomes[0].Message)
}

func TestApplyLevelRewardSetsLevelWhenThresholdMet(t *testing.T) {
	re, catalog := newTestRewardEngine(t)
	require.NoError(t, catalog.UpsertLevel(&Level{ID: "bronze", Category: "xp", MinPoints: 0}))
	require.NoError(t, catalog.UpsertLevel(&Level{ID: "silver", Category: "xp", MinPoints: 100}))

	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "purchase"}
	state := NewUserState("alice")
	state.AddPoints("xp", 150)
	rule := &Rule{ID: "r1", Rewards: []Reward{{Type: RewardLevel, LevelID: "silver"}}}

	outcomes, err := re.ApplyAll(rule, trigger, state)
	require.NoError(t, err)
	require.True(t, outcomes[0].Success)
	require.Equal(t, "silver", state.LevelByCategory["xp"])
}

func TestApplyLevelRewardFailsWhenThresholdNotMet(t *testing.T) {
	re, catalog := newTestRewardEngine(t)
	require.NoError(t, catalog.UpsertLevel(&Level{ID: "silver", Category: "xp", MinPoints: 100}))

	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "purchase"}
	state := NewUserState("alice")
	state.AddPoints("xp", 10)
	rule := &Rule{ID: "r1", Rewards: []Reward{{Type: RewardLevel, LevelID: "silver"}}}

	outcomes, err := re.ApplyAll(rule, trigger, state)
	require.NoError(t, err)
	require.False(t, outcomes[0].Success)
	require.Equal(t, "threshold not met", outcomes[0].Message)
}

func TestApplyPointsRewardChainsLevelUp(t *testing.T) {
	re, catalog := newTestRewardEngine(t)
	require.NoError(t, catalog.UpsertLevel(&Level{ID: "bronze", Category: "xp", MinPoints: 0}))
	require.NoError(t, catalog.UpsertLevel(&Level{ID: "silver", Category: "xp", MinPoints: 100}))

	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "purchase"}
	state := NewUserState("alice")
	state.SetLevel("xp", "bronze")
	rule := &Rule{ID: "r1", Rewards: []Reward{{Type: RewardPoints, Category: "xp", Amount: 150}}}

	outcomes, err := re.ApplyAll(rule, trigger, state)
	require.NoError(t, err)
	require.True(t, outcomes[0].Success)
	require.Equal(t, "silver", state.LevelByCategory["xp"])
	require.NotNil(t, outcomes[0].Details)
}

func TestApplyPenaltyPointsFailsGracefullyOnInsufficientBalance(t *testing.T) {
	re, _ := newTestRewardEngine(t)
	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "violation"}
	state := NewUserState("alice")
	rule := &Rule{ID: "r1", Rewards: []Reward{{Type: RewardPenalty, PenaltyType: PenaltyPoints, Category: "xp", Amount: 50}}}

	outcomes, err := re.ApplyAll(rule, trigger, state)
	require.NoError(t, err)
	require.False(t, outcomes[0].Success)
	require.Equal(t, "insufficient balance for penalty", outcomes[0].Message)
}

func TestApplyPenaltyBadgeRevokesHeldBadge(t *testing.T) {
	re, _ := newTestRewardEngine(t)
	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "violation"}
	state := NewUserState("alice")
	state.GrantBadge("vip")
	rule := &Rule{ID: "r1", Rewards: []Reward{{Type: RewardPenalty, PenaltyType: PenaltyBadge, TargetID: "vip"}}}

	outcomes, err := re.ApplyAll(rule, trigger, state)
	require.NoError(t, err)
	require.True(t, outcomes[0].Success)
	require.False(t, state.Badges["vip"])
}

func TestApplyAllMultipleRewardsIndependentOutcomes(t *testing.T) {
	re, catalog := newTestRewardEngine(t)
	require.NoError(t, catalog.UpsertLevel(&Level{ID: "silver", Category: "xp", MinPoints: 100}))

	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "purchase"}
	state := NewUserState("alice")
	rule := &Rule{ID: "r1", Rewards: []Reward{
		{Type: RewardPoints, Category: "xp", Amount: 10},
		{Type: RewardLevel, LevelID: "silver"}, // threshold not met, but must not abort the batch
		{Type: RewardBadge, EntityID: "first-purchase"},
	}}

	outcomes, err := re.ApplyAll(rule, trigger, state)
	require.NoError(t, err) // a failed-threshold level reward is not an error, just Success: false
	require.Len(t, outcomes, 3)
	require.True(t, outcomes[0].Success)
	require.False(t, outcomes[1].Success)
	require.True(t, outcomes[2].Success)
	require.True(t, state.Badges["first-purchase"])
}
