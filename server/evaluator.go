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

	"go.uber.org/zap"
)

// defaultHistoryLimit bounds the lazily-fetched per-user event history a
// condition may consult (spec.md §4.H: "cap at last N events per type, N
// configurable, default 1000").
const defaultHistoryLimit = 1000

// SpendingOutcome is one applied (or rejected) spending.
type SpendingOutcome struct {
	Index    int
	Spending Spending
	Success  bool
	Message  string
}

// RuleOutcome is the execute-mode result for a single rule.
type RuleOutcome struct {
	RuleID    string
	RuleName  string
	Matched   bool
	Rewards   []RewardOutcome
	Spendings []SpendingOutcome
}

// RuleEvaluationResult is the execute-mode output of evaluating one
// trigger event against every active rule (spec.md §4.H step 5).
type RuleEvaluationResult struct {
	TriggerEventID string
	UserID         string
	Rules          []RuleOutcome
}

// Evaluator joins the Condition Engine, Reward Engine, and wallet
// spending execution into the one-pass rule pipeline (spec.md §4.H). The
// Dry-Run Service's Trace has its own per-rule loop: it shares the
// built-in condition functions with Execute, but previews rewards and
// spendings itself and does not evaluate plugin conditions.
type Evaluator struct {
	logger    *zap.Logger
	rules     RuleRepository
	events    EventRepository
	userState UserStateRepository
	wallet    *Wallet
	rewards   *RewardEngine
	condition *ConditionEngine

	historyLimit int
}

func NewEvaluator(logger *zap.Logger, rules RuleRepository, events EventRepository, userState UserStateRepository, wallet *Wallet, rewards *RewardEngine, condition *ConditionEngine) *Evaluator {
	return &Evaluator{
		logger: logger, rules: rules, events: events, userState: userState,
		wallet: wallet, rewards: rewards, condition: condition,
		historyLimit: defaultHistoryLimit,
	}
}

// Execute runs trigger through every active matching rule, applying
// rewards and spendings, and persisting the resulting UserState once per
// invocation (spec.md §4.H/§4.I). This is the only entry point the Queue
// Processor calls.
func (ev *Evaluator) Execute(trigger *Event) (*RuleEvaluationResult, error) {
	rules, err := ev.rules.ListActiveByTrigger(trigger.EventType)
	if err != nil {
		return nil, NewRetrievalError("listing active rules for trigger", err)
	}
	if len(rules) == 0 {
		return &RuleEvaluationResult{TriggerEventID: trigger.EventID, UserID: trigger.UserID}, nil
	}

	state, err := ev.userState.GetByUser(trigger.UserID)
	if err != nil {
		return nil, NewRetrievalError("loading user state", err)
	}

	cc := ev.newConditionContext(trigger)
	result := &RuleEvaluationResult{TriggerEventID: trigger.EventID, UserID: trigger.UserID}

	for _, rule := range rules {
		matched, err := ev.condition.EvaluateAll(rule.Conditions, cc)
		if err != nil {
			ev.logger.Warn("condition evaluation failed, treating rule as unmatched",
				zap.String("ruleId", rule.ID), zap.Error(err))
			matched = false
		}
		outcome := RuleOutcome{RuleID: rule.ID, RuleName: rule.Name, Matched: matched}
		if matched {
			rewardOutcomes, err := ev.rewards.ApplyAll(rule, trigger, state)
			if err != nil && IsFatal(err) {
				return nil, err
			}
			outcome.Rewards = rewardOutcomes

			spendingOutcomes, err := ev.applySpendings(rule, trigger)
			if err != nil {
				return nil, err
			}
			outcome.Spendings = spendingOutcomes
		}
		result.Rules = append(result.Rules, outcome)
	}

	if err := ev.userState.Save(state); err != nil {
		return nil, NewStorageError("saving user state after evaluation", err)
	}
	return result, nil
}

// applySpendings runs rule's spendings in order, only after rewards have
// already been applied; a spending failure aborts the remaining spendings
// in this rule but never rolls back rewards already granted (spec.md
// §4.G: "partially committed" by design).
func (ev *Evaluator) applySpendings(rule *Rule, trigger *Event) ([]SpendingOutcome, error) {
	outcomes := make([]SpendingOutcome, 0, len(rule.Spendings))
	for i := range rule.Spendings {
		s := &rule.Spendings[i]
		referenceID := fmt.Sprintf("%s:%s:spending:%d", trigger.EventID, rule.ID, i)
		var spendErr error
		if s.Type == SpendingTransfer {
			spendErr = ev.wallet.Transfer(trigger.UserID, s.DestinationUserID, s.Category, s.Amount, referenceID, nil)
		} else {
			_, spendErr = ev.wallet.Debit(trigger.UserID, s.Category, s.Amount, TxSpend, "rule spending", referenceID, nil)
		}
		if spendErr != nil {
			if IsFatal(spendErr) {
				return outcomes, spendErr
			}
			outcomes = append(outcomes, SpendingOutcome{Index: i, Spending: *s, Success: false, Message: spendErr.Error()})
			break
		}
		outcomes = append(outcomes, SpendingOutcome{Index: i, Spending: *s, Success: true, Message: "applied"})
	}
	return outcomes, nil
}

// newConditionContext builds a conditionContext whose history fetch is
// memoized and lazy: the closure is only invoked (and only hits the
// repository) the first time a condition actually calls it.
func (ev *Evaluator) newConditionContext(trigger *Event) *conditionContext {
	var cached []*Event
	var fetched bool
	var fetchErr error
	return &conditionContext{
		trigger: trigger,
		repo:    ev.events,
		// Windows are computed relative to the trigger event's own
		// timestamp, not wall clock, so replaying an old event (backfill,
		// retry) yields the same window it would have at first processing
		// (spec.md §4.F).
		now: trigger.OccurredAt,
		history: func() ([]*Event, error) {
			if !fetched {
				cached, fetchErr = ev.events.GetByUser(trigger.UserID, ev.historyLimit, 0)
				fetched = true
			}
			return cached, fetchErr
		},
	}
}
