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

// ConditionType tags the closed set of built-in condition variants plus
// the plugin extension point (spec.md §3, §9).
type ConditionType string

const (
	ConditionAlwaysTrue         ConditionType = "alwaysTrue"
	ConditionAttributeEquals    ConditionType = "attributeEquals"
	ConditionCount              ConditionType = "count"
	ConditionThreshold          ConditionType = "threshold"
	ConditionSequence           ConditionType = "sequence"
	ConditionTimeSinceLastEvent ConditionType = "timeSinceLastEvent"
	ConditionFirstOccurrence    ConditionType = "firstOccurrence"
)

// ThresholdOperation is the comparison operator for a threshold condition.
type ThresholdOperation string

const (
	OpGreaterThan        ThresholdOperation = ">"
	OpGreaterThanOrEqual ThresholdOperation = ">="
	OpLessThan           ThresholdOperation = "<"
	OpLessThanOrEqual    ThresholdOperation = "<="
	OpEqual              ThresholdOperation = "="
	OpNotEqual           ThresholdOperation = "!="
)

// Condition is a tagged variant over the parameters map each type
// interprets. conditionId distinguishes repeated uses of the same type tag
// inside one rule (used only for trace labeling, not for dispatch).
type Condition struct {
	ConditionID string                 `json:"conditionId"`
	Type        ConditionType          `json:"type"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// RewardType tags the closed set of built-in reward variants plus the
// plugin extension point.
type RewardType string

const (
	RewardPoints  RewardType = "points"
	RewardBadge   RewardType = "badge"
	RewardTrophy  RewardType = "trophy"
	RewardLevel   RewardType = "level"
	RewardPenalty RewardType = "penalty"
)

// PenaltyType distinguishes the two normative penalty shapes (spec.md §9
// open question: the source conflates them behind one tag, this spec
// treats them as distinct cases).
type PenaltyType string

const (
	PenaltyPoints PenaltyType = "points"
	PenaltyBadge  PenaltyType = "badge"
)

// Reward is a tagged variant; only the fields relevant to Type are read.
type Reward struct {
	Type RewardType `json:"type"`

	// points
	Category string `json:"category,omitempty"`
	Amount   int64  `json:"amount,omitempty"`

	// badge / trophy
	EntityID string `json:"entityId,omitempty"`

	// level
	LevelID string `json:"levelId,omitempty"`

	// penalty
	PenaltyType PenaltyType `json:"penaltyType,omitempty"`
	TargetID    string      `json:"targetId,omitempty"`

	// plugin
	PluginTag  string                 `json:"pluginTag,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// SpendingType distinguishes a wallet debit from an inter-user transfer.
type SpendingType string

const (
	SpendingSpend    SpendingType = "spend"
	SpendingTransfer SpendingType = "transfer"
)

// Spending debits the wallet ledger. Distinct from a negative-points
// reward: spendings go through the wallet's own consistency checks
// (insufficient balance fails the spending, not the whole rule).
type Spending struct {
	Type              SpendingType `json:"type"`
	Category          string       `json:"category"`
	Amount            int64        `json:"amount"`
	DestinationUserID string       `json:"destinationUserId,omitempty"`
}

// Rule joins a trigger set, an ordered AND of conditions, and the ordered
// rewards/spendings to execute when all conditions hold.
type Rule struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	IsActive    bool     `json:"isActive"`
	Triggers    []string `json:"triggers"`

	Conditions []Condition `json:"conditions"`
	Rewards    []Reward    `json:"rewards"`
	Spendings  []Spending  `json:"spendings"`
}

// TriggersOn reports whether the rule is wired to fire on eventType.
func (r *Rule) TriggersOn(eventType string) bool {
	for _, t := range r.Triggers {
		if t == eventType {
			return true
		}
	}
	return false
}

// Validate enforces the structural invariants a rule must hold before it
// can be stored: non-empty id/name, at least one trigger, and every
// condition/reward/penalty tag recognized (fails closed at load time rather
// than silently at evaluation time).
func (r *Rule) Validate(registry *PluginRegistry) error {
	if r.ID == "" {
		return NewValidationError("rule id must not be empty")
	}
	if r.Name == "" {
		return NewValidationError("rule name must not be empty")
	}
	if len(r.Triggers) == 0 {
		return NewValidationError("rule must declare at least one trigger")
	}
	for _, c := range r.Conditions {
		if !isBuiltinCondition(c.Type) && !registry.HasCondition(string(c.Type)) {
			return NewValidationError("unknown condition type: " + string(c.Type))
		}
	}
	for _, rw := range r.Rewards {
		switch rw.Type {
		case RewardPoints, RewardBadge, RewardTrophy, RewardLevel:
			// fine
		case RewardPenalty:
			if rw.PenaltyType != PenaltyPoints && rw.PenaltyType != PenaltyBadge {
				return NewValidationError("penalty reward must set penaltyType to points or badge")
			}
		default:
			if !registry.HasReward(string(rw.Type)) {
				return NewValidationError("unknown reward type: " + string(rw.Type))
			}
		}
		if rw.Type == RewardPoints && rw.Amount == 0 {
			return NewValidationError("points reward amount must not be zero")
		}
	}
	for _, s := range r.Spendings {
		if s.Amount <= 0 {
			return NewValidationError("spending amount must be strictly positive")
		}
		if s.Type == SpendingTransfer && s.DestinationUserID == "" {
			return NewValidationError("transfer spending requires destinationUserId")
		}
	}
	return nil
}

func isBuiltinCondition(t ConditionType) bool {
	switch t {
	case ConditionAlwaysTrue, ConditionAttributeEquals, ConditionCount,
		ConditionThreshold, ConditionSequence, ConditionTimeSinceLastEvent,
		ConditionFirstOccurrence:
		return true
	default:
		return false
	}
}
