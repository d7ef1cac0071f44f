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
	"time"
)

// conditionContext is everything a built-in condition needs to evaluate.
// history is the triggering user's event history, lazily fetched by the
// evaluator only the first time a rule actually asks for it (spec.md
// §4.H: "history is fetched lazily, at most once per evaluation").
type conditionContext struct {
	trigger *Event
	history func() ([]*Event, error)
	repo    EventRepository
	now     time.Time
}

// evaluateCondition dispatches c by its Type. Built-in conditions are total:
// they never return an error for a well-formed trigger, only for a
// malformed Parameters map, in which case they fail closed (return false,
// err) rather than silently passing (spec.md §4.F).
func (eng *ConditionEngine) evaluateCondition(c *Condition, cc *conditionContext) (bool, error) {
	if isBuiltinCondition(c.Type) {
		return evaluateBuiltinCondition(c, cc)
	}
	if eng.registry != nil && eng.registry.HasCondition(string(c.Type)) {
		return eng.registry.EvaluateCondition(string(c.Type), c.Parameters, cc)
	}
	return false, NewRuleEvaluationError(fmt.Sprintf("unknown condition type: %s", c.Type), nil)
}

// ConditionEngine evaluates a rule's condition list against an event.
type ConditionEngine struct {
	registry *PluginRegistry
}

func NewConditionEngine(registry *PluginRegistry) *ConditionEngine {
	return &ConditionEngine{registry: registry}
}

// EvaluateAll runs conditions in order and short-circuits on the first
// false or erroring result (spec.md §4.H: conditions are ANDed).
func (eng *ConditionEngine) EvaluateAll(conditions []Condition, cc *conditionContext) (bool, error) {
	for i := range conditions {
		ok, err := eng.evaluateCondition(&conditions[i], cc)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func evaluateBuiltinCondition(c *Condition, cc *conditionContext) (bool, error) {
	switch c.Type {
	case ConditionAlwaysTrue:
		return true, nil
	case ConditionAttributeEquals:
		return evalAttributeEquals(c.Parameters, cc)
	case ConditionCount:
		return evalCount(c.Parameters, cc)
	case ConditionThreshold:
		return evalThreshold(c.Parameters, cc)
	case ConditionSequence:
		return evalSequence(c.Parameters, cc)
	case ConditionTimeSinceLastEvent:
		return evalTimeSinceLastEvent(c.Parameters, cc)
	case ConditionFirstOccurrence:
		return evalFirstOccurrence(c.Parameters, cc)
	default:
		return false, NewRuleEvaluationError("not a builtin condition: "+string(c.Type), nil)
	}
}

func paramString(params map[string]interface{}, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func paramNumber(params map[string]interface{}, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// evalAttributeEquals compares trigger.Attributes[attribute] against value.
func evalAttributeEquals(params map[string]interface{}, cc *conditionContext) (bool, error) {
	attr, ok := paramString(params, "attribute")
	if !ok || attr == "" {
		return false, NewRuleEvaluationError("attributeEquals requires a string \"attribute\" parameter", nil)
	}
	expected, hasExpected := params["value"]
	if !hasExpected {
		return false, NewRuleEvaluationError("attributeEquals requires a \"value\" parameter", nil)
	}
	actual, present := cc.trigger.Attributes[attr]
	if !present {
		return false, nil
	}
	return fmt.Sprint(actual) == fmt.Sprint(expected), nil
}

// windowSince returns the lower bound of the lookback window. Per the
// DESIGN.md Open Question decision: an absent timeWindowMinutes means "no
// window" (since the dawn of time), while an explicit 0 means a
// zero-length window — only events at exactly cc.now count, which in
// practice matches just the triggering event itself.
func windowSince(params map[string]interface{}, now time.Time) time.Time {
	minutes, ok := paramNumber(params, "timeWindowMinutes")
	if !ok {
		return time.Time{}
	}
	if minutes <= 0 {
		return now
	}
	return now.Add(-time.Duration(minutes) * time.Minute)
}

// evalCount checks that the number of eventType events for this user within
// the optional time window meets or exceeds the configured count.
func evalCount(params map[string]interface{}, cc *conditionContext) (bool, error) {
	eventType, ok := paramString(params, "eventType")
	if !ok || eventType == "" {
		return false, NewRuleEvaluationError("count requires a string \"eventType\" parameter", nil)
	}
	minCount, ok := paramNumber(params, "minCount")
	if !ok {
		return false, NewRuleEvaluationError("count requires a numeric \"minCount\" parameter", nil)
	}
	since := windowSince(params, cc.now)
	n, err := cc.repo.CountSince(cc.trigger.UserID, eventType, since, cc.now)
	if err != nil {
		return false, NewRetrievalError("counting events for count condition", err)
	}
	return float64(n) >= minCount, nil
}

// evalThreshold compares a numeric trigger attribute against a target value
// using operator.
func evalThreshold(params map[string]interface{}, cc *conditionContext) (bool, error) {
	attr, ok := paramString(params, "attribute")
	if !ok || attr == "" {
		return false, NewRuleEvaluationError("threshold requires a string \"attribute\" parameter", nil)
	}
	target, ok := paramNumber(params, "value")
	if !ok {
		return false, NewRuleEvaluationError("threshold requires a numeric \"value\" parameter", nil)
	}
	opStr, ok := paramString(params, "operator")
	if !ok || opStr == "" {
		opStr = string(OpGreaterThanOrEqual)
	}
	actual, ok := cc.trigger.AttributeNumber(attr)
	if !ok {
		return false, nil
	}
	switch ThresholdOperation(opStr) {
	case OpGreaterThan:
		return actual > target, nil
	case OpGreaterThanOrEqual:
		return actual >= target, nil
	case OpLessThan:
		return actual < target, nil
	case OpLessThanOrEqual:
		return actual <= target, nil
	case OpEqual:
		return actual == target, nil
	case OpNotEqual:
		return actual != target, nil
	default:
		return false, NewRuleEvaluationError("unknown threshold operator: "+opStr, nil)
	}
}

// evalSequence checks that history contains eventTypes in order, with the
// first match no more than timeWindowMinutes before the trigger's time. The algorithm scans history forward
// keeping a pointer into the expected-types list, advancing the pointer
// whenever it sees the next expected type at or before the trigger's own
// time; success requires the pointer to reach the end of the list AND the
// first matched event to fall within the window (spec.md §4.F). The
// trigger event is itself part of history (the processor stores it before
// evaluating), so it may satisfy the final pointer position; nothing
// requires the rule's last listed type to equal the trigger's own type.
func evalSequence(params map[string]interface{}, cc *conditionContext) (bool, error) {
	raw, ok := params["eventTypes"]
	if !ok {
		return false, NewRuleEvaluationError("sequence requires an \"eventTypes\" array parameter", nil)
	}
	items, ok := raw.([]interface{})
	if !ok || len(items) == 0 {
		return false, NewRuleEvaluationError("sequence \"eventTypes\" must be a non-empty array", nil)
	}
	wanted := make([]string, len(items))
	for i, it := range items {
		s, ok := it.(string)
		if !ok {
			return false, NewRuleEvaluationError("sequence \"eventTypes\" entries must be strings", nil)
		}
		wanted[i] = s
	}

	history, err := cc.history()
	if err != nil {
		return false, NewRetrievalError("fetching history for sequence condition", err)
	}

	pointer := 0
	var firstMatch time.Time
	for _, ev := range history {
		if pointer >= len(wanted) {
			break
		}
		if ev.OccurredAt.After(cc.now) {
			continue
		}
		if ev.EventType == wanted[pointer] {
			if pointer == 0 {
				firstMatch = ev.OccurredAt
			}
			pointer++
		}
	}
	if pointer < len(wanted) {
		return false, nil
	}

	since := windowSince(params, cc.now)
	if !since.IsZero() && firstMatch.Before(since) {
		return false, nil
	}
	return true, nil
}

// evalTimeSinceLastEvent checks that at least minMinutes have elapsed since
// the user's previous occurrence of eventType (or, if none exists, passes
// vacuously).
func evalTimeSinceLastEvent(params map[string]interface{}, cc *conditionContext) (bool, error) {
	eventType, ok := paramString(params, "eventType")
	if !ok || eventType == "" {
		return false, NewRuleEvaluationError("timeSinceLastEvent requires a string \"eventType\" parameter", nil)
	}
	minMinutes, ok := paramNumber(params, "minMinutes")
	if !ok {
		return false, NewRuleEvaluationError("timeSinceLastEvent requires a numeric \"minMinutes\" parameter", nil)
	}
	history, err := cc.history()
	if err != nil {
		return false, NewRetrievalError("fetching history for timeSinceLastEvent condition", err)
	}
	var last *Event
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].EventType == eventType && history[i].EventID != cc.trigger.EventID {
			last = history[i]
			break
		}
	}
	if last == nil {
		return true, nil
	}
	elapsed := cc.trigger.OccurredAt.Sub(last.OccurredAt)
	return elapsed >= time.Duration(minMinutes)*time.Minute, nil
}

// evalFirstOccurrence checks this is the user's first-ever eventType event.
func evalFirstOccurrence(params map[string]interface{}, cc *conditionContext) (bool, error) {
	eventType, ok := paramString(params, "eventType")
	if !ok {
		eventType = cc.trigger.EventType
	}
	history, err := cc.history()
	if err != nil {
		return false, NewRetrievalError("fetching history for firstOccurrence condition", err)
	}
	for _, ev := range history {
		if ev.EventType == eventType && ev.EventID != cc.trigger.EventID {
			return false, nil
		}
	}
	return true, nil
}
