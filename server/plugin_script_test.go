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

func TestPluginRegistryRegisterAndEvaluateCondition(t *testing.T) {
	reg := NewPluginRegistry(zap.NewNop())
	err := reg.RegisterCondition(ScriptPlugin{
		Tag:    "isBigSpender",
		Source: `function Entrypoint(params, event) { return event.Attributes.amount >= params.minAmount; }`,
	})
	require.NoError(t, err)
	require.True(t, reg.HasCondition("isBigSpender"))

	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "purchase", Attributes: map[string]interface{}{"amount": float64(150)}}
	cc := &conditionContext{trigger: trigger, now: time.Now()}

	ok, err := reg.EvaluateCondition("isBigSpender", map[string]interface{}{"minAmount": float64(100)}, cc)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPluginRegistryEvaluateConditionFalseBranch(t *testing.T) {
	reg := NewPluginRegistry(zap.NewNop())
	require.NoError(t, reg.RegisterCondition(ScriptPlugin{
		Tag:    "isBigSpender",
		Source: `function Entrypoint(params, event) { return event.Attributes.amount >= params.minAmount; }`,
	}))

	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "purchase", Attributes: map[string]interface{}{"amount": float64(10)}}
	cc := &conditionContext{trigger: trigger, now: time.Now()}

	ok, err := reg.EvaluateCondition("isBigSpender", map[string]interface{}{"minAmount": float64(100)}, cc)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPluginRegistryUnknownConditionTagErrors(t *testing.T) {
	reg := NewPluginRegistry(zap.NewNop())
	cc := &conditionContext{trigger: &Event{}, now: time.Now()}
	_, err := reg.EvaluateCondition("doesNotExist", nil, cc)
	require.Error(t, err)
}

func TestPluginRegistryRegisterRewardRequiresEntrypointFunction(t *testing.T) {
	reg := NewPluginRegistry(zap.NewNop())
	err := reg.RegisterReward(ScriptPlugin{
		Tag:    "broken",
		Source: `var notAFunction = 42;`,
	})
	require.Error(t, err)
}

func TestPluginRegistryEvaluateRewardReturnsChangesetMap(t *testing.T) {
	reg := NewPluginRegistry(zap.NewNop())
	require.NoError(t, reg.RegisterReward(ScriptPlugin{
		Tag:    "doubleXP",
		Source: `function Entrypoint(params, event, points) { return {xp: points.xp || 0}; }`,
	}))

	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "purchase"}
	state := NewUserState("alice")
	state.AddPoints("xp", 20)

	result, err := reg.EvaluateReward("doubleXP", map[string]interface{}{}, trigger, state)
	require.NoError(t, err)
	require.Equal(t, int64(20), toInt64Helper(t, result["xp"]))
}

func toInt64Helper(t *testing.T, v interface{}) int64 {
	t.Helper()
	n, ok := toInt64(v)
	require.True(t, ok)
	return n
}

func TestRewardEngineAppliesPluginRewardChangesetAsCredits(t *testing.T) {
	entityRepo := NewMemoryEntityRepository()
	catalog, err := NewEntityCatalog(entityRepo)
	require.NoError(t, err)
	wallet := NewWallet(zap.NewNop(), NewMemoryWalletRepository(), newStripedLock())
	history := NewMemoryRewardHistoryRepository()
	registry := NewPluginRegistry(zap.NewNop())
	require.NoError(t, registry.RegisterReward(ScriptPlugin{
		Tag:    "bonusXP",
		Source: `function Entrypoint(params, event, points) { return {xp: 25}; }`,
	}))
	re := NewRewardEngine(zap.NewNop(), wallet, catalog, history, registry)

	trigger := &Event{EventID: "e1", UserID: "alice", EventType: "purchase"}
	state := NewUserState("alice")
	rule := &Rule{ID: "r1", Rewards: []Reward{{Type: "bonusXP"}}}

	outcomes, err := re.ApplyAll(rule, trigger, state)
	require.NoError(t, err)
	require.True(t, outcomes[0].Success)
	require.Equal(t, int64(25), state.PointsByCategory["xp"])

	balance, err := wallet.GetBalance("alice", "xp")
	require.NoError(t, err)
	require.Equal(t, int64(25), balance)
}
