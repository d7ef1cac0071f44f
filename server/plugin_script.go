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
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// scriptBudget bounds how long a single plugin invocation may run before
// the engine interrupts it. Per spec.md §9 plugins are untrusted
// extensions: a script condition/reward must never be able to stall rule
// evaluation for the rest of the process.
const scriptBudget = 50 * time.Millisecond

// ScriptPlugin is a user-supplied goja/JavaScript condition or reward body.
// Source must define a top-level function named Entrypoint.
type ScriptPlugin struct {
	Tag        string
	Source     string
	Entrypoint string
}

// PluginRegistry is the extension point for condition and reward types
// beyond the built-in closed set (spec.md §3, §9: "conditions/rewards may
// be extended via a plugin/script mechanism; plugins are sandboxed and
// time-bounded"). One goja.Runtime is compiled per registered script and
// reused across invocations; goja.Runtime is not goroutine-safe, so every
// call is serialized behind the plugin's own mutex.
type PluginRegistry struct {
	logger *zap.Logger

	mu         sync.RWMutex
	conditions map[string]*compiledPlugin
	rewards    map[string]*compiledPlugin
}

type compiledPlugin struct {
	mu     sync.Mutex
	plugin ScriptPlugin
	vm     *goja.Runtime
	fn     goja.Callable
}

func NewPluginRegistry(logger *zap.Logger) *PluginRegistry {
	return &PluginRegistry{
		logger:     logger,
		conditions: map[string]*compiledPlugin{},
		rewards:    map[string]*compiledPlugin{},
	}
}

func compilePlugin(p ScriptPlugin) (*compiledPlugin, error) {
	vm := goja.New()
	if _, err := vm.RunString(p.Source); err != nil {
		return nil, NewValidationError(fmt.Sprintf("plugin %q failed to compile: %v", p.Tag, err))
	}
	entrypoint := p.Entrypoint
	if entrypoint == "" {
		entrypoint = "Entrypoint"
	}
	fnVal := vm.Get(entrypoint)
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, NewValidationError(fmt.Sprintf("plugin %q does not define function %q", p.Tag, entrypoint))
	}
	return &compiledPlugin{plugin: p, vm: vm, fn: fn}, nil
}

// RegisterCondition compiles and registers a script-backed condition type.
func (r *PluginRegistry) RegisterCondition(p ScriptPlugin) error {
	cp, err := compilePlugin(p)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conditions[p.Tag] = cp
	return nil
}

// RegisterReward compiles and registers a script-backed reward type.
func (r *PluginRegistry) RegisterReward(p ScriptPlugin) error {
	cp, err := compilePlugin(p)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rewards[p.Tag] = cp
	return nil
}

func (r *PluginRegistry) HasCondition(tag string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conditions[tag]
	return ok
}

func (r *PluginRegistry) HasReward(tag string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rewards[tag]
	return ok
}

// runBounded invokes cp.fn with args under scriptBudget, interrupting the
// VM if it overruns. The interrupt timer is always stopped before
// returning so a fast call doesn't leak a pending goja.Interrupt into the
// runtime's next invocation.
func runBounded(cp *compiledPlugin, args ...goja.Value) (goja.Value, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	timer := time.AfterFunc(scriptBudget, func() {
		cp.vm.Interrupt("plugin exceeded its time budget")
	})
	defer timer.Stop()

	val, err := cp.fn(goja.Undefined(), args...)
	if err != nil {
		return nil, NewRuleEvaluationError(fmt.Sprintf("plugin %q failed: %v", cp.plugin.Tag, err), err)
	}
	return val, nil
}

// EvaluateCondition runs the registered script condition tag with params
// and the triggering event, coercing its return value to bool. A script
// condition that throws or times out counts as a RuleEvaluation error, not
// as false — the evaluator's caller decides whether that aborts the rule or
// only this condition (spec.md §9 plugin isolation).
func (r *PluginRegistry) EvaluateCondition(tag string, params map[string]interface{}, cc *conditionContext) (bool, error) {
	r.mu.RLock()
	cp, ok := r.conditions[tag]
	r.mu.RUnlock()
	if !ok {
		return false, NewRuleEvaluationError("unknown condition plugin: "+tag, nil)
	}

	val, err := runBounded(cp, cp.vm.ToValue(params), cp.vm.ToValue(scriptEventViewOf(cc.trigger)))
	if err != nil {
		return false, err
	}
	return val.ToBoolean(), nil
}

// EvaluateReward runs the registered script reward tag, returning a
// free-form result map the reward engine folds into the RewardHistory
// Details field. Script rewards may not touch the wallet or user-state
// repositories directly; they only compute values the reward engine then
// applies, keeping the sandbox boundary at "pure function of inputs".
func (r *PluginRegistry) EvaluateReward(tag string, params map[string]interface{}, trigger *Event, state *UserState) (map[string]interface{}, error) {
	r.mu.RLock()
	cp, ok := r.rewards[tag]
	r.mu.RUnlock()
	if !ok {
		return nil, NewRuleEvaluationError("unknown reward plugin: "+tag, nil)
	}

	val, err := runBounded(cp, cp.vm.ToValue(params), cp.vm.ToValue(scriptEventViewOf(trigger)), cp.vm.ToValue(state.PointsByCategory))
	if err != nil {
		return nil, err
	}
	exported, ok := val.Export().(map[string]interface{})
	if !ok {
		return map[string]interface{}{"result": val.Export()}, nil
	}
	return exported, nil
}

// scriptEventView is the read-only, JSON-shaped projection of an Event
// exposed to plugin code; plugins never see the internal *Event pointer.
type scriptEventView struct {
	EventID    string                 `json:"eventId"`
	EventType  string                 `json:"eventType"`
	UserID     string                 `json:"userId"`
	OccurredAt int64                  `json:"occurredAt"`
	Attributes map[string]interface{} `json:"attributes"`
}

func scriptEventViewOf(ev *Event) scriptEventView {
	return scriptEventView{
		EventID:    ev.EventID,
		EventType:  ev.EventType,
		UserID:     ev.UserID,
		OccurredAt: ev.OccurredAt.Unix(),
		Attributes: ev.Attributes,
	}
}
