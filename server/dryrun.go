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

	"go.uber.org/zap"
)

// ConditionTrace reports one condition's evaluation within a dry run.
type ConditionTrace struct {
	ConditionType ConditionType
	Parameters    map[string]interface{}
	Result        bool
	Reason        string
}

// PredictedReward is a reward that WOULD fire, with its effect previewed
// but never persisted.
type PredictedReward struct {
	Type             RewardType
	Target           string
	Amount           int64
	ResultingBalance int64
}

// PredictedSpending previews a spending the same way.
type PredictedSpending struct {
	Type             SpendingType
	Category         string
	Amount           int64
	WouldSucceed     bool
	ResultingBalance int64
}

// EvaluatedRule is one rule's dry-run trace.
type EvaluatedRule struct {
	RuleID             string
	RuleName           string
	Matched            bool
	ConditionResults   []ConditionTrace
	PredictedRewards   []PredictedReward
	PredictedSpendings []PredictedSpending
}

// DryRunSummary aggregates the trace across every evaluated rule.
type DryRunSummary struct {
	TotalMatched         int
	TotalPredictedPoints map[string]int64
}

// DryRunResult is the Dry-Run Service's full trace (spec.md §4.J).
type DryRunResult struct {
	EventID       string
	EventType     string
	UserID        string
	OccurredAt    time.Time
	EvaluatedRules []EvaluatedRule
	Summary       DryRunSummary
}

// DryRunService evaluates a hypothetical event against every active rule,
// using the same built-in condition functions Evaluator.Execute uses and
// previewing rewards and spendings against a cloned UserState. It never
// persists anything: not the trigger event, not user state, not
// wallet balances, not reward history (spec.md §4.J: "MUST NOT mutate any
// repository, including event history").
type DryRunService struct {
	logger    *zap.Logger
	rules     RuleRepository
	events    EventRepository
	userState UserStateRepository
	catalog   *EntityCatalog
	condition *ConditionEngine

	historyLimit int
}

func NewDryRunService(logger *zap.Logger, rules RuleRepository, events EventRepository, userState UserStateRepository, catalog *EntityCatalog, condition *ConditionEngine) *DryRunService {
	return &DryRunService{
		logger: logger, rules: rules, events: events, userState: userState,
		catalog: catalog, condition: condition, historyLimit: defaultHistoryLimit,
	}
}

// Trace evaluates trigger without persisting it or any of its effects.
func (d *DryRunService) Trace(trigger *Event) (*DryRunResult, error) {
	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	rules, err := d.rules.ListActiveByTrigger(trigger.EventType)
	if err != nil {
		return nil, NewRetrievalError("listing active rules for trigger", err)
	}

	baseState, err := d.userState.GetByUser(trigger.UserID)
	if err != nil {
		return nil, NewRetrievalError("loading user state", err)
	}

	cc := &conditionContext{
		trigger: trigger,
		repo:    d.events,
		// Same rule as Evaluator.newConditionContext: windows are relative
		// to the trigger's own timestamp, so a dry run against historical
		// data reproduces exactly what Execute would have computed at the
		// time (spec.md §4.F).
		now: trigger.OccurredAt,
		history: func() ([]*Event, error) {
			return d.events.GetByUser(trigger.UserID, d.historyLimit, 0)
		},
	}

	result := &DryRunResult{
		EventID: trigger.EventID, EventType: trigger.EventType, UserID: trigger.UserID,
		OccurredAt: trigger.OccurredAt,
		Summary:    DryRunSummary{TotalPredictedPoints: map[string]int64{}},
	}

	for _, rule := range rules {
		// previewState is a scratch clone: rewards preview against it so
		// later rewards in the same rule see earlier ones' effects, exactly
		// as Execute would, without ever touching baseState or a
		// repository.
		previewState := baseState.Clone()
		er := d.traceRule(rule, trigger, cc, previewState)
		if er.Matched {
			result.Summary.TotalMatched++
			for _, pr := range er.PredictedRewards {
				if pr.Type == RewardPoints {
					result.Summary.TotalPredictedPoints[pr.Target] += pr.Amount
				}
			}
		}
		result.EvaluatedRules = append(result.EvaluatedRules, er)
	}
	return result, nil
}

func (d *DryRunService) traceRule(rule *Rule, trigger *Event, cc *conditionContext, state *UserState) EvaluatedRule {
	er := EvaluatedRule{RuleID: rule.ID, RuleName: rule.Name}

	matched := true
	for i := range rule.Conditions {
		c := &rule.Conditions[i]
		if !matched {
			er.ConditionResults = append(er.ConditionResults, ConditionTrace{
				ConditionType: c.Type, Parameters: c.Parameters, Result: false, Reason: "skipped: prior condition failed",
			})
			continue
		}
		ok, err := d.evalTraced(c, cc)
		reason := ""
		if err != nil {
			reason = err.Error()
			ok = false
		}
		er.ConditionResults = append(er.ConditionResults, ConditionTrace{
			ConditionType: c.Type, Parameters: c.Parameters, Result: ok, Reason: reason,
		})
		if !ok {
			matched = false
		}
	}
	er.Matched = matched
	if !matched {
		return er
	}

	for _, reward := range rule.Rewards {
		er.PredictedRewards = append(er.PredictedRewards, d.previewReward(&reward, state))
	}
	for _, spending := range rule.Spendings {
		er.PredictedSpendings = append(er.PredictedSpendings, d.previewSpending(&spending, state))
	}
	return er
}

func (d *DryRunService) evalTraced(c *Condition, cc *conditionContext) (bool, error) {
	if isBuiltinCondition(c.Type) {
		return evaluateBuiltinCondition(c, cc)
	}
	// Plugin conditions are not previewed in dry runs: they are opaque
	// script bodies that may have side effects on their own execution
	// budget, and spec.md §4.J only promises a trace of built-in condition
	// reasoning. A plugin condition in a dry run is reported as
	// "unevaluated" rather than silently treated as false or true.
	return false, NewRuleEvaluationError("plugin condition "+string(c.Type)+" is unevaluated in a dry run", nil)
}

func (d *DryRunService) previewReward(reward *Reward, state *UserState) PredictedReward {
	pr := PredictedReward{Type: reward.Type}
	switch reward.Type {
	case RewardPoints:
		pr.Target = reward.Category
		pr.Amount = reward.Amount
		pr.ResultingBalance = state.PointsByCategory[reward.Category] + reward.Amount
		state.AddPoints(reward.Category, reward.Amount)
	case RewardBadge:
		pr.Target = reward.EntityID
		state.GrantBadge(reward.EntityID)
	case RewardTrophy:
		pr.Target = reward.EntityID
		state.GrantTrophy(reward.EntityID)
	case RewardLevel:
		pr.Target = reward.LevelID
		if d.catalog != nil {
			if level, ok := d.catalog.GetLevel(reward.LevelID); ok && level.MinPoints <= state.PointsByCategory[level.Category] {
				state.SetLevel(level.Category, level.ID)
			}
		}
	case RewardPenalty:
		pr.Target = reward.TargetID
		pr.Amount = -reward.Amount
		if reward.PenaltyType == PenaltyPoints {
			pr.Target = reward.Category
			pr.ResultingBalance = state.PointsByCategory[reward.Category] - reward.Amount
			state.AddPoints(reward.Category, -reward.Amount)
		}
	default:
		pr.Target = string(reward.Type)
	}
	return pr
}

func (d *DryRunService) previewSpending(spending *Spending, state *UserState) PredictedSpending {
	balance := state.PointsByCategory[spending.Category]
	ps := PredictedSpending{
		Type: spending.Type, Category: spending.Category, Amount: spending.Amount,
		WouldSucceed: balance >= spending.Amount, ResultingBalance: balance,
	}
	if ps.WouldSucceed {
		ps.ResultingBalance = balance - spending.Amount
		state.AddPoints(spending.Category, -spending.Amount)
	}
	return ps
}
