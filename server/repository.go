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

import "time"

// The repositories below are the boundary the core never crosses itself:
// the ORM/persistence driver is an out-of-scope external collaborator
// (spec.md §1). Every read/write the core needs is expressed here as an
// interface; server/memory_repository.go is the in-memory implementation
// used for the default wiring and by every test in this package.

// EventRepository is the append-only Event Store (spec.md §4.B).
type EventRepository interface {
	// Store is idempotent on EventID: storing a duplicate id is a no-op
	// that returns success.
	Store(ev *Event) error
	GetByID(eventID string) (*Event, bool, error)
	// GetByUser returns events for userID ordered by OccurredAt ascending.
	// limit is capped at 1000 by the caller.
	GetByUser(userID string, limit, offset int) ([]*Event, error)
	// GetByType is GetByUser indexed by event type instead of user.
	GetByType(eventType string, limit, offset int) ([]*Event, error)
	// CountSince returns the number of events of eventType for userID with
	// OccurredAt in [since, until]. Used by the count condition so it can
	// count without materializing the matching rows.
	CountSince(userID, eventType string, since, until time.Time) (int, error)
}

// UserStateRepository is the per-user points/badges/trophies store
// (spec.md §4.D).
type UserStateRepository interface {
	GetByUser(userID string) (*UserState, error)
	Save(state *UserState) error
	// AllUserIDs returns every user with state, for leaderboard scans.
	AllUserIDs() ([]string, error)
}

// RuleRepository is rules CRUD (spec.md §3, §6).
type RuleRepository interface {
	Get(id string) (*Rule, bool, error)
	List() ([]*Rule, error)
	// ListActiveByTrigger returns active rules whose Triggers contains
	// eventType, ordered by id ascending (spec.md §4.H step 1).
	ListActiveByTrigger(eventType string) ([]*Rule, error)
	Upsert(rule *Rule) error
	Delete(id string) error
}

// EntityRepository is CRUD for badges/trophies/levels/point
// categories/event definitions (spec.md §4.C).
type EntityRepository interface {
	GetBadge(id string) (*Badge, bool, error)
	ListBadges() ([]*Badge, error)
	UpsertBadge(b *Badge) error
	DeleteBadge(id string) error

	GetTrophy(id string) (*Trophy, bool, error)
	ListTrophies() ([]*Trophy, error)
	UpsertTrophy(t *Trophy) error
	DeleteTrophy(id string) error

	GetLevel(id string) (*Level, bool, error)
	// ListLevelsByCategory returns levels for category sorted ascending by
	// MinPoints (spec.md §4.C).
	ListLevelsByCategory(category string) ([]*Level, error)
	UpsertLevel(l *Level) error
	DeleteLevel(id string) error

	GetPointCategory(id string) (*PointCategory, bool, error)
	ListPointCategories() ([]*PointCategory, error)
	UpsertPointCategory(c *PointCategory) error
	DeletePointCategory(id string) error

	GetEventDefinition(id string) (*EventDefinition, bool, error)
	ListEventDefinitions() ([]*EventDefinition, error)
	UpsertEventDefinition(d *EventDefinition) error
	DeleteEventDefinition(id string) error
}

// WalletTransaction is an append-only ledger entry (spec.md §3).
type WalletTransactionType string

const (
	TxEarn         WalletTransactionType = "earn"
	TxSpend        WalletTransactionType = "spend"
	TxTransferIn   WalletTransactionType = "transfer-in"
	TxTransferOut  WalletTransactionType = "transfer-out"
	TxRefund       WalletTransactionType = "refund"
	TxPenalty      WalletTransactionType = "penalty"
	TxAdjustment   WalletTransactionType = "adjustment"
)

type WalletTransaction struct {
	ID          string                `json:"id"`
	UserID      string                `json:"userId"`
	CategoryID  string                `json:"categoryId"`
	Type        WalletTransactionType `json:"type"`
	Amount      int64                 `json:"amount"`
	Description string                `json:"description"`
	ReferenceID string                `json:"referenceId,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   time.Time             `json:"timestamp"`
}

// WalletBalance is the cached materialization of a ledger; balance must
// always equal the sum of that (user, category)'s transactions.
type WalletBalance struct {
	UserID     string    `json:"userId"`
	CategoryID string    `json:"categoryId"`
	Balance    int64     `json:"balance"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// WalletRepository is the ledger's persistence boundary (spec.md §4.E).
type WalletRepository interface {
	GetBalance(userID, categoryID string) (*WalletBalance, error)
	// GetBalancesByCategory returns every category balance for userID.
	GetBalancesByCategory(userID string) (map[string]int64, error)
	// SaveBalance upserts the cached balance materialization.
	SaveBalance(b *WalletBalance) error

	// AppendTransaction writes tx, failing with KindConflict if a prior
	// write already used (userID, categoryID, referenceId, type).
	AppendTransaction(tx *WalletTransaction) error
	// AppendTransactions writes all txs atomically (used by transfer, which
	// writes a transfer-out/transfer-in pair together or not at all).
	AppendTransactions(txs []*WalletTransaction) error
	HasReference(userID, categoryID, referenceID string, txType WalletTransactionType) (bool, error)

	GetTransactions(userID, categoryID string, from, to *time.Time) ([]*WalletTransaction, error)
}

// RewardHistory is an append-only record of a reward/spending outcome
// (spec.md §3).
type RewardHistory struct {
	ID             string `json:"id"`
	UserID         string `json:"userId"`
	RewardID       string `json:"rewardId"`
	RewardType     string `json:"rewardType"`
	TriggerEventID string `json:"triggerEventId"`
	RuleID         string `json:"ruleId"`
	Position       int    `json:"position"`
	AwardedAt      time.Time `json:"awardedAt"`
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	Details        map[string]interface{} `json:"details,omitempty"`
}

// RewardHistoryRepository records reward outcomes and is the source of the
// idempotency check keyed on (triggerEventId, ruleId, position) (spec.md
// §4.G, §4.H).
type RewardHistoryRepository interface {
	Append(h *RewardHistory) error
	// FindByKey looks up a previously recorded outcome for this exact
	// (triggerEventId, ruleId, position) so re-evaluation of the same event
	// is a no-op.
	FindByKey(triggerEventID, ruleID string, position int) (*RewardHistory, bool, error)
	ListByUser(userID string, limit, offset int) ([]*RewardHistory, error)
}
