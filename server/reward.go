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

	"github.com/gofrs/uuid/v5"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// maxLevelChainDepth bounds synthetic level-up issuance triggered by a
// points reward crossing a threshold (spec.md §4.G: "chained issuance is
// permitted but depth-bounded to 1 chain to prevent cycles").
const maxLevelChainDepth = 1

// RewardOutcome is one applied (or rejected) reward, the unit the
// evaluator collects into a RuleEvaluationResult.
type RewardOutcome struct {
	Position int
	Reward   Reward
	Success  bool
	Message  string
	Details  map[string]interface{}
}

// RewardEngine applies Reward variants to wallet + user state (spec.md
// §4.G). Every apply is recorded to RewardHistoryRepository keyed by
// (triggerEventId, ruleId, position), which also makes re-application of
// an already-processed event a pure lookup rather than a repeat effect.
type RewardEngine struct {
	logger   *zap.Logger
	wallet   *Wallet
	catalog  *EntityCatalog
	history  RewardHistoryRepository
	registry *PluginRegistry
}

func NewRewardEngine(logger *zap.Logger, wallet *Wallet, catalog *EntityCatalog, history RewardHistoryRepository, registry *PluginRegistry) *RewardEngine {
	return &RewardEngine{logger: logger, wallet: wallet, catalog: catalog, history: history, registry: registry}
}

// ApplyAll runs rewards in declared order against state (mutated in
// place) and returns one outcome per reward, in order. A per-reward
// failure (e.g. level threshold not met) does not stop later rewards in
// the same rule from applying: only a repository error aborts the whole
// batch (propagated as a fatal error to the evaluator).
func (re *RewardEngine) ApplyAll(rule *Rule, trigger *Event, state *UserState) ([]RewardOutcome, error) {
	outcomes := make([]RewardOutcome, 0, len(rule.Rewards))
	var merr *multierror.Error
	for i := range rule.Rewards {
		outcome, err := re.apply(rule.ID, trigger, &rule.Rewards[i], i, state, 0)
		if err != nil {
			if IsFatal(err) {
				return outcomes, err
			}
			merr = multierror.Append(merr, err)
			outcomes = append(outcomes, RewardOutcome{Position: i, Reward: rule.Rewards[i], Success: false, Message: err.Error()})
			continue
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, merr.ErrorOrNil()
}

func (re *RewardEngine) apply(ruleID string, trigger *Event, reward *Reward, position int, state *UserState, chainDepth int) (RewardOutcome, error) {
	if existing, ok, err := re.history.FindByKey(trigger.EventID, ruleID, position); err != nil {
		return RewardOutcome{}, NewRetrievalError("checking reward idempotency", err)
	} else if ok {
		return RewardOutcome{Position: position, Reward: *reward, Success: existing.Success, Message: existing.Message, Details: existing.Details}, nil
	}

	var outcome RewardOutcome
	var err error
	switch reward.Type {
	case RewardPoints:
		outcome, err = re.applyPoints(trigger, reward, state, chainDepth)
	case RewardBadge:
		outcome = re.applyBadge(reward, state)
	case RewardTrophy:
		outcome = re.applyTrophy(reward, state)
	case RewardLevel:
		outcome = re.applyLevel(reward, state)
	case RewardPenalty:
		outcome, err = re.applyPenalty(trigger, reward, state)
	default:
		outcome, err = re.applyPlugin(reward, trigger, state)
	}
	if err != nil {
		return RewardOutcome{}, err
	}
	outcome.Position = position
	outcome.Reward = *reward

	if recErr := re.recordHistory(trigger, ruleID, position, reward, outcome); recErr != nil {
		return RewardOutcome{}, recErr
	}
	return outcome, nil
}

func (re *RewardEngine) recordHistory(trigger *Event, ruleID string, position int, reward *Reward, outcome RewardOutcome) error {
	h := &RewardHistory{
		ID:             uuid.Must(uuid.NewV4()).String(),
		UserID:         trigger.UserID,
		RewardID:       reward.EntityID,
		RewardType:     string(reward.Type),
		TriggerEventID: trigger.EventID,
		RuleID:         ruleID,
		Position:       position,
		AwardedAt:      time.Now().UTC(),
		Success:        outcome.Success,
		Message:        outcome.Message,
		Details:        outcome.Details,
	}
	if err := re.history.Append(h); err != nil {
		return NewStorageError("recording reward history", err)
	}
	return nil
}

func (re *RewardEngine) applyPoints(trigger *Event, reward *Reward, state *UserState, chainDepth int) (RewardOutcome, error) {
	txType := TxEarn
	amount := reward.Amount
	if amount < 0 {
		txType = TxPenalty
	}
	referenceID := fmt.Sprintf("%s:%s:points", trigger.EventID, reward.Category)
	if amount >= 0 {
		if _, err := re.wallet.Credit(trigger.UserID, reward.Category, amount, txType, "rule reward", referenceID, nil); err != nil {
			return RewardOutcome{}, err
		}
	} else {
		if _, err := re.wallet.Debit(trigger.UserID, reward.Category, -amount, txType, "rule reward", referenceID, nil); err != nil {
			return RewardOutcome{}, err
		}
	}
	newBalance := state.AddPoints(reward.Category, amount)

	outcome := RewardOutcome{Success: true, Message: "points applied"}

	if re.catalog == nil || chainDepth >= maxLevelChainDepth+1 {
		return outcome, nil
	}
	if level, ok := re.catalog.HighestLevelFor(reward.Category, newBalance); ok {
		if state.LevelByCategory[reward.Category] != level.ID {
			levelReward := &Reward{Type: RewardLevel, LevelID: level.ID, Category: reward.Category}
			chained := re.applyLevel(levelReward, state)
			outcome.Details = map[string]interface{}{"chainedLevel": chained}
		}
	}
	return outcome, nil
}

func (re *RewardEngine) applyBadge(reward *Reward, state *UserState) RewardOutcome {
	granted := state.GrantBadge(reward.EntityID)
	if !granted {
		return RewardOutcome{Success: true, Message: "already held"}
	}
	return RewardOutcome{Success: true, Message: "badge granted"}
}

func (re *RewardEngine) applyTrophy(reward *Reward, state *UserState) RewardOutcome {
	granted := state.GrantTrophy(reward.EntityID)
	if !granted {
		return RewardOutcome{Success: true, Message: "already held"}
	}
	return RewardOutcome{Success: true, Message: "trophy granted"}
}

func (re *RewardEngine) applyLevel(reward *Reward, state *UserState) RewardOutcome {
	if re.catalog == nil {
		return RewardOutcome{Success: false, Message: "no catalog configured"}
	}
	level, ok := re.catalog.GetLevel(reward.LevelID)
	if !ok {
		return RewardOutcome{Success: false, Message: "unknown level"}
	}
	balance := state.PointsByCategory[level.Category]
	if level.MinPoints > balance {
		return RewardOutcome{Success: false, Message: "threshold not met"}
	}
	state.SetLevel(level.Category, level.ID)
	return RewardOutcome{Success: true, Message: "level set"}
}

// applyPenalty dispatches to the points or badge path per penaltyType
// (spec.md §9 open question: treated as two distinct normative cases).
// A bounded category's balance is never driven negative: the points path
// uses Wallet.Debit, which already fails with KindInsufficientBalance
// rather than going negative, and that failure is surfaced as a non-fatal
// outcome so the rest of the rule's rewards still apply.
func (re *RewardEngine) applyPenalty(trigger *Event, reward *Reward, state *UserState) (RewardOutcome, error) {
	switch reward.PenaltyType {
	case PenaltyPoints:
		amount := reward.Amount
		if amount < 0 {
			amount = -amount
		}
		referenceID := fmt.Sprintf("%s:%s:penalty", trigger.EventID, reward.Category)
		if _, err := re.wallet.Debit(trigger.UserID, reward.Category, amount, TxPenalty, "rule penalty", referenceID, nil); err != nil {
			if KindOf(err) == KindInsufficientBalance {
				return RewardOutcome{Success: false, Message: "insufficient balance for penalty"}, nil
			}
			return RewardOutcome{}, err
		}
		state.AddPoints(reward.Category, -amount)
		return RewardOutcome{Success: true, Message: "penalty points applied"}, nil
	case PenaltyBadge:
		revoked := state.RevokeBadge(reward.TargetID)
		if !revoked {
			return RewardOutcome{Success: true, Message: "badge not held"}, nil
		}
		return RewardOutcome{Success: true, Message: "badge revoked"}, nil
	default:
		return RewardOutcome{}, NewRuleEvaluationError("unknown penaltyType: "+string(reward.PenaltyType), nil)
	}
}

// applyPlugin runs a script-backed reward type and interprets its result
// as a category->amount points changeset: positive amounts are credited as
// earn transactions, negative ones debited as penalties, and non-numeric or
// zero values are skipped.
func (re *RewardEngine) applyPlugin(reward *Reward, trigger *Event, state *UserState) (RewardOutcome, error) {
	if re.registry == nil || !re.registry.HasReward(string(reward.Type)) {
		return RewardOutcome{}, NewRuleEvaluationError("unknown reward type: "+string(reward.Type), nil)
	}
	result, err := re.registry.EvaluateReward(string(reward.Type), reward.Parameters, trigger, state)
	if err != nil {
		return RewardOutcome{}, err
	}
	applied := map[string]interface{}{}
	for category, raw := range result {
		amount, ok := toInt64(raw)
		if !ok || amount == 0 {
			continue
		}
		referenceID := fmt.Sprintf("%s:%s:%s", trigger.EventID, reward.Type, category)
		txType := TxEarn
		if amount < 0 {
			txType = TxPenalty
		}
		if amount >= 0 {
			if _, err := re.wallet.Credit(trigger.UserID, category, amount, txType, "plugin reward", referenceID, nil); err != nil {
				return RewardOutcome{}, err
			}
		} else {
			if _, err := re.wallet.Debit(trigger.UserID, category, -amount, txType, "plugin reward", referenceID, nil); err != nil {
				return RewardOutcome{}, err
			}
		}
		state.AddPoints(category, amount)
		applied[category] = amount
	}
	return RewardOutcome{Success: true, Message: "plugin reward applied", Details: applied}, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
