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
	"sort"
	"sync"
	"time"
)

// MemoryEventRepository is an in-process EventRepository. The real
// deployment target is an ACID database reached through this same
// interface (spec.md §5); this implementation exists so the core and its
// tests do not depend on one.
type MemoryEventRepository struct {
	mu        sync.RWMutex
	byID      map[string]*Event
	byUser    map[string][]*Event
	byType    map[string][]*Event
}

func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{
		byID:   map[string]*Event{},
		byUser: map[string][]*Event{},
		byType: map[string][]*Event{},
	}
}

func (r *MemoryEventRepository) Store(ev *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[ev.EventID]; exists {
		return nil
	}
	cp := *ev
	r.byID[ev.EventID] = &cp
	r.byUser[ev.UserID] = insertSortedByTime(r.byUser[ev.UserID], &cp)
	r.byType[ev.EventType] = insertSortedByTime(r.byType[ev.EventType], &cp)
	return nil
}

func insertSortedByTime(list []*Event, ev *Event) []*Event {
	i := sort.Search(len(list), func(i int) bool {
		return list[i].OccurredAt.After(ev.OccurredAt)
	})
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = ev
	return list
}

func (r *MemoryEventRepository) GetByID(eventID string) (*Event, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.byID[eventID]
	return ev, ok, nil
}

func paginate(list []*Event, limit, offset int) []*Event {
	if offset >= len(list) {
		return nil
	}
	end := offset + limit
	if end > len(list) {
		end = len(list)
	}
	out := make([]*Event, end-offset)
	copy(out, list[offset:end])
	return out
}

func (r *MemoryEventRepository) GetByUser(userID string, limit, offset int) ([]*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return paginate(r.byUser[userID], limit, offset), nil
}

func (r *MemoryEventRepository) GetByType(eventType string, limit, offset int) ([]*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return paginate(r.byType[eventType], limit, offset), nil
}

func (r *MemoryEventRepository) CountSince(userID, eventType string, since, until time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, ev := range r.byUser[userID] {
		if ev.EventType != eventType {
			continue
		}
		if ev.OccurredAt.Before(since) || ev.OccurredAt.After(until) {
			continue
		}
		count++
	}
	return count, nil
}

// MemoryUserStateRepository is an in-process UserStateRepository.
type MemoryUserStateRepository struct {
	mu     sync.RWMutex
	states map[string]*UserState
}

func NewMemoryUserStateRepository() *MemoryUserStateRepository {
	return &MemoryUserStateRepository{states: map[string]*UserState{}}
}

func (r *MemoryUserStateRepository) GetByUser(userID string) (*UserState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.states[userID]; ok {
		return s.Clone(), nil
	}
	return NewUserState(userID), nil
}

func (r *MemoryUserStateRepository) Save(state *UserState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.UserID] = state.Clone()
	return nil
}

func (r *MemoryUserStateRepository) AllUserIDs() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.states))
	for id := range r.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// MemoryRuleRepository is an in-process RuleRepository.
type MemoryRuleRepository struct {
	mu    sync.RWMutex
	rules map[string]*Rule
}

func NewMemoryRuleRepository() *MemoryRuleRepository {
	return &MemoryRuleRepository{rules: map[string]*Rule{}}
}

func (r *MemoryRuleRepository) Get(id string) (*Rule, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	return rule, ok, nil
}

func (r *MemoryRuleRepository) List() ([]*Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRuleRepository) ListActiveByTrigger(eventType string) ([]*Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Rule
	for _, rule := range r.rules {
		if rule.IsActive && rule.TriggersOn(eventType) {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRuleRepository) Upsert(rule *Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rule.ID] = rule
	return nil
}

func (r *MemoryRuleRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rules, id)
	return nil
}

// MemoryWalletRepository is an in-process WalletRepository.
type MemoryWalletRepository struct {
	mu           sync.RWMutex
	balances     map[string]*WalletBalance // key: userID + "|" + categoryID
	transactions map[string][]*WalletTransaction
	references   map[string]bool
}

func NewMemoryWalletRepository() *MemoryWalletRepository {
	return &MemoryWalletRepository{
		balances:     map[string]*WalletBalance{},
		transactions: map[string][]*WalletTransaction{},
		references:   map[string]bool{},
	}
}

func walletKey(userID, categoryID string) string {
	return userID + "|" + categoryID
}

func refKey(userID, categoryID, referenceID string, txType WalletTransactionType) string {
	return userID + "|" + categoryID + "|" + referenceID + "|" + string(txType)
}

func (r *MemoryWalletRepository) GetBalance(userID, categoryID string) (*WalletBalance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.balances[walletKey(userID, categoryID)]; ok {
		cp := *b
		return &cp, nil
	}
	return &WalletBalance{UserID: userID, CategoryID: categoryID}, nil
}

func (r *MemoryWalletRepository) GetBalancesByCategory(userID string) (map[string]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[string]int64{}
	prefix := userID + "|"
	for k, b := range r.balances {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out[b.CategoryID] = b.Balance
		}
	}
	return out, nil
}

func (r *MemoryWalletRepository) SaveBalance(b *WalletBalance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *b
	r.balances[walletKey(b.UserID, b.CategoryID)] = &cp
	return nil
}

func (r *MemoryWalletRepository) AppendTransaction(tx *WalletTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appendLocked(tx)
}

func (r *MemoryWalletRepository) appendLocked(tx *WalletTransaction) error {
	if tx.ReferenceID != "" {
		key := refKey(tx.UserID, tx.CategoryID, tx.ReferenceID, tx.Type)
		if r.references[key] {
			return NewConflictError("duplicate reference id for ledger write")
		}
		r.references[key] = true
	}
	k := walletKey(tx.UserID, tx.CategoryID)
	cp := *tx
	r.transactions[k] = append(r.transactions[k], &cp)
	return nil
}

func (r *MemoryWalletRepository) AppendTransactions(txs []*WalletTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Validate every reference before writing any, so the batch is
	// all-or-nothing (spec.md §4.E: transfer pair persisted together or
	// not at all).
	for _, tx := range txs {
		if tx.ReferenceID != "" {
			key := refKey(tx.UserID, tx.CategoryID, tx.ReferenceID, tx.Type)
			if r.references[key] {
				return NewConflictError("duplicate reference id for ledger write")
			}
		}
	}
	for _, tx := range txs {
		if err := r.appendLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryWalletRepository) HasReference(userID, categoryID, referenceID string, txType WalletTransactionType) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.references[refKey(userID, categoryID, referenceID, txType)], nil
}

func (r *MemoryWalletRepository) GetTransactions(userID, categoryID string, from, to *time.Time) ([]*WalletTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.transactions[walletKey(userID, categoryID)]
	out := make([]*WalletTransaction, 0, len(all))
	for _, tx := range all {
		if from != nil && tx.Timestamp.Before(*from) {
			continue
		}
		if to != nil && tx.Timestamp.After(*to) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

// MemoryRewardHistoryRepository is an in-process RewardHistoryRepository.
type MemoryRewardHistoryRepository struct {
	mu      sync.RWMutex
	byUser  map[string][]*RewardHistory
	byKey   map[string]*RewardHistory
}

func NewMemoryRewardHistoryRepository() *MemoryRewardHistoryRepository {
	return &MemoryRewardHistoryRepository{
		byUser: map[string][]*RewardHistory{},
		byKey:  map[string]*RewardHistory{},
	}
}

func historyKey(triggerEventID, ruleID string, position int) string {
	return triggerEventID + "|" + ruleID + "|" + itoa(position)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (r *MemoryRewardHistoryRepository) Append(h *RewardHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *h
	r.byUser[h.UserID] = append(r.byUser[h.UserID], &cp)
	r.byKey[historyKey(h.TriggerEventID, h.RuleID, h.Position)] = &cp
	return nil
}

func (r *MemoryRewardHistoryRepository) FindByKey(triggerEventID, ruleID string, position int) (*RewardHistory, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byKey[historyKey(triggerEventID, ruleID, position)]
	return h, ok, nil
}

func (r *MemoryRewardHistoryRepository) ListByUser(userID string, limit, offset int) ([]*RewardHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.byUser[userID]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	out := make([]*RewardHistory, end-offset)
	copy(out, all[offset:end])
	return out, nil
}

// MemoryEntityRepository is an in-process EntityRepository holding
// badges/trophies/levels/point categories/event definitions.
type MemoryEntityRepository struct {
	mu               sync.RWMutex
	badges           map[string]*Badge
	trophies         map[string]*Trophy
	levels           map[string]*Level
	pointCategories  map[string]*PointCategory
	eventDefinitions map[string]*EventDefinition
}

func NewMemoryEntityRepository() *MemoryEntityRepository {
	return &MemoryEntityRepository{
		badges:           map[string]*Badge{},
		trophies:         map[string]*Trophy{},
		levels:           map[string]*Level{},
		pointCategories:  map[string]*PointCategory{},
		eventDefinitions: map[string]*EventDefinition{},
	}
}

func (r *MemoryEntityRepository) GetBadge(id string) (*Badge, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.badges[id]
	return b, ok, nil
}

func (r *MemoryEntityRepository) ListBadges() ([]*Badge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Badge, 0, len(r.badges))
	for _, b := range r.badges {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryEntityRepository) UpsertBadge(b *Badge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *b
	r.badges[b.ID] = &cp
	return nil
}

func (r *MemoryEntityRepository) DeleteBadge(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.badges, id)
	return nil
}

func (r *MemoryEntityRepository) GetTrophy(id string) (*Trophy, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trophies[id]
	return t, ok, nil
}

func (r *MemoryEntityRepository) ListTrophies() ([]*Trophy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Trophy, 0, len(r.trophies))
	for _, t := range r.trophies {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryEntityRepository) UpsertTrophy(t *Trophy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.trophies[t.ID] = &cp
	return nil
}

func (r *MemoryEntityRepository) DeleteTrophy(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.trophies, id)
	return nil
}

func (r *MemoryEntityRepository) GetLevel(id string) (*Level, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.levels[id]
	return l, ok, nil
}

func (r *MemoryEntityRepository) ListLevelsByCategory(category string) ([]*Level, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Level
	for _, l := range r.levels {
		if l.Category == category {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MinPoints < out[j].MinPoints })
	return out, nil
}

func (r *MemoryEntityRepository) UpsertLevel(l *Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	r.levels[l.ID] = &cp
	return nil
}

func (r *MemoryEntityRepository) DeleteLevel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.levels, id)
	return nil
}

func (r *MemoryEntityRepository) GetPointCategory(id string) (*PointCategory, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.pointCategories[id]
	return c, ok, nil
}

func (r *MemoryEntityRepository) ListPointCategories() ([]*PointCategory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*PointCategory, 0, len(r.pointCategories))
	for _, c := range r.pointCategories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryEntityRepository) UpsertPointCategory(c *PointCategory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.pointCategories[c.ID] = &cp
	return nil
}

func (r *MemoryEntityRepository) DeletePointCategory(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pointCategories, id)
	return nil
}

func (r *MemoryEntityRepository) GetEventDefinition(id string) (*EventDefinition, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.eventDefinitions[id]
	return d, ok, nil
}

func (r *MemoryEntityRepository) ListEventDefinitions() ([]*EventDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*EventDefinition, 0, len(r.eventDefinitions))
	for _, d := range r.eventDefinitions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryEntityRepository) UpsertEventDefinition(d *EventDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.eventDefinitions[d.ID] = &cp
	return nil
}

func (r *MemoryEntityRepository) DeleteEventDefinition(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.eventDefinitions, id)
	return nil
}
