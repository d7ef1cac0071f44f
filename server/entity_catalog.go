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

	"go.uber.org/atomic"
)

// catalogSnapshot is an immutable view of every badge/trophy/level/point
// category/event definition. EntityCatalog swaps the whole snapshot on any
// write (spec.md §5: "Catalog / Rules: copy-on-write... atomically swap"),
// so readers never observe a partially-updated catalog and never take a
// lock on the read path.
type catalogSnapshot struct {
	badges          map[string]*Badge
	trophies        map[string]*Trophy
	levels          map[string]*Level
	levelsByCat     map[string][]*Level // sorted ascending by MinPoints
	pointCategories map[string]*PointCategory
	eventDefs       map[string]*EventDefinition
}

func emptySnapshot() *catalogSnapshot {
	return &catalogSnapshot{
		badges:          map[string]*Badge{},
		trophies:        map[string]*Trophy{},
		levels:          map[string]*Level{},
		levelsByCat:     map[string][]*Level{},
		pointCategories: map[string]*PointCategory{},
		eventDefs:       map[string]*EventDefinition{},
	}
}

func (s *catalogSnapshot) clone() *catalogSnapshot {
	n := emptySnapshot()
	for k, v := range s.badges {
		n.badges[k] = v
	}
	for k, v := range s.trophies {
		n.trophies[k] = v
	}
	for k, v := range s.levels {
		n.levels[k] = v
	}
	for k, v := range s.pointCategories {
		n.pointCategories[k] = v
	}
	for k, v := range s.eventDefs {
		n.eventDefs[k] = v
	}
	n.reindexLevels()
	return n
}

func (s *catalogSnapshot) reindexLevels() {
	byCat := map[string][]*Level{}
	for _, l := range s.levels {
		byCat[l.Category] = append(byCat[l.Category], l)
	}
	for cat, levels := range byCat {
		sort.Slice(levels, func(i, j int) bool { return levels[i].MinPoints < levels[j].MinPoints })
		byCat[cat] = levels
	}
	s.levelsByCat = byCat
}

// invalidationListener is notified after a catalog write, naming the
// category (if any) whose derived data (e.g. a leaderboard's level
// ranking) may now be stale.
type invalidationListener func(category string)

// EntityCatalog is the copy-on-write cache in front of EntityRepository
// (spec.md §4.C). Every Get reads an atomic.Pointer snapshot; every
// Upsert/Delete loads the repository's current row, builds a new snapshot
// from the prior one, and swaps it in, then fans out to any registered
// invalidation listeners (the Leaderboard Projector's rank cache).
type EntityCatalog struct {
	repo      EntityRepository
	snapshot  atomic.Pointer[catalogSnapshot]
	listeners []invalidationListener
}

func NewEntityCatalog(repo EntityRepository) (*EntityCatalog, error) {
	c := &EntityCatalog{repo: repo}
	snap, err := loadSnapshot(repo)
	if err != nil {
		return nil, err
	}
	c.snapshot.Store(snap)
	return c, nil
}

func loadSnapshot(repo EntityRepository) (*catalogSnapshot, error) {
	snap := emptySnapshot()
	badges, err := repo.ListBadges()
	if err != nil {
		return nil, NewRetrievalError("loading badges into catalog", err)
	}
	for _, b := range badges {
		snap.badges[b.ID] = b
	}
	trophies, err := repo.ListTrophies()
	if err != nil {
		return nil, NewRetrievalError("loading trophies into catalog", err)
	}
	for _, t := range trophies {
		snap.trophies[t.ID] = t
	}
	cats, err := repo.ListPointCategories()
	if err != nil {
		return nil, NewRetrievalError("loading point categories into catalog", err)
	}
	for _, c := range cats {
		snap.pointCategories[c.ID] = c
		levels, err := repo.ListLevelsByCategory(c.ID)
		if err != nil {
			return nil, NewRetrievalError("loading levels into catalog", err)
		}
		for _, l := range levels {
			snap.levels[l.ID] = l
		}
	}
	defs, err := repo.ListEventDefinitions()
	if err != nil {
		return nil, NewRetrievalError("loading event definitions into catalog", err)
	}
	for _, d := range defs {
		snap.eventDefs[d.ID] = d
	}
	snap.reindexLevels()
	return snap, nil
}

// OnInvalidate registers fn to be called with the affected category (or ""
// for a non-category-scoped change) after every catalog write.
func (c *EntityCatalog) OnInvalidate(fn invalidationListener) {
	c.listeners = append(c.listeners, fn)
}

func (c *EntityCatalog) notify(category string) {
	for _, l := range c.listeners {
		l(category)
	}
}

func (c *EntityCatalog) current() *catalogSnapshot {
	return c.snapshot.Load()
}

func (c *EntityCatalog) GetBadge(id string) (*Badge, bool) {
	b, ok := c.current().badges[id]
	return b, ok
}

func (c *EntityCatalog) GetTrophy(id string) (*Trophy, bool) {
	t, ok := c.current().trophies[id]
	return t, ok
}

func (c *EntityCatalog) GetLevel(id string) (*Level, bool) {
	l, ok := c.current().levels[id]
	return l, ok
}

// LevelsByCategory returns category's levels sorted ascending by MinPoints.
func (c *EntityCatalog) LevelsByCategory(category string) []*Level {
	return c.current().levelsByCat[category]
}

// HighestLevelFor returns the highest level in category whose MinPoints is
// <= balance, or (nil, false) if balance is below every level's threshold.
func (c *EntityCatalog) HighestLevelFor(category string, balance int64) (*Level, bool) {
	levels := c.current().levelsByCat[category]
	var best *Level
	for _, l := range levels {
		if l.MinPoints <= balance {
			best = l
		} else {
			break
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

func (c *EntityCatalog) GetPointCategory(id string) (*PointCategory, bool) {
	pc, ok := c.current().pointCategories[id]
	return pc, ok
}

func (c *EntityCatalog) GetEventDefinition(id string) (*EventDefinition, bool) {
	d, ok := c.current().eventDefs[id]
	return d, ok
}

func (c *EntityCatalog) UpsertBadge(b *Badge) error {
	if err := c.repo.UpsertBadge(b); err != nil {
		return NewStorageError("upserting badge", err)
	}
	next := c.current().clone()
	next.badges[b.ID] = b
	c.snapshot.Store(next)
	c.notify("")
	return nil
}

func (c *EntityCatalog) DeleteBadge(id string) error {
	if err := c.repo.DeleteBadge(id); err != nil {
		return NewStorageError("deleting badge", err)
	}
	next := c.current().clone()
	delete(next.badges, id)
	c.snapshot.Store(next)
	c.notify("")
	return nil
}

func (c *EntityCatalog) UpsertTrophy(t *Trophy) error {
	if err := c.repo.UpsertTrophy(t); err != nil {
		return NewStorageError("upserting trophy", err)
	}
	next := c.current().clone()
	next.trophies[t.ID] = t
	c.snapshot.Store(next)
	c.notify("")
	return nil
}

func (c *EntityCatalog) DeleteTrophy(id string) error {
	if err := c.repo.DeleteTrophy(id); err != nil {
		return NewStorageError("deleting trophy", err)
	}
	next := c.current().clone()
	delete(next.trophies, id)
	c.snapshot.Store(next)
	c.notify("")
	return nil
}

func (c *EntityCatalog) UpsertLevel(l *Level) error {
	if err := c.repo.UpsertLevel(l); err != nil {
		return NewStorageError("upserting level", err)
	}
	next := c.current().clone()
	next.levels[l.ID] = l
	next.reindexLevels()
	c.snapshot.Store(next)
	c.notify(l.Category)
	return nil
}

func (c *EntityCatalog) DeleteLevel(id string) error {
	existing, ok := c.GetLevel(id)
	if err := c.repo.DeleteLevel(id); err != nil {
		return NewStorageError("deleting level", err)
	}
	next := c.current().clone()
	delete(next.levels, id)
	next.reindexLevels()
	c.snapshot.Store(next)
	if ok {
		c.notify(existing.Category)
	}
	return nil
}

func (c *EntityCatalog) UpsertPointCategory(pc *PointCategory) error {
	if err := c.repo.UpsertPointCategory(pc); err != nil {
		return NewStorageError("upserting point category", err)
	}
	next := c.current().clone()
	next.pointCategories[pc.ID] = pc
	c.snapshot.Store(next)
	c.notify(pc.ID)
	return nil
}

func (c *EntityCatalog) DeletePointCategory(id string) error {
	if err := c.repo.DeletePointCategory(id); err != nil {
		return NewStorageError("deleting point category", err)
	}
	next := c.current().clone()
	delete(next.pointCategories, id)
	c.snapshot.Store(next)
	c.notify(id)
	return nil
}

func (c *EntityCatalog) UpsertEventDefinition(d *EventDefinition) error {
	if err := c.repo.UpsertEventDefinition(d); err != nil {
		return NewStorageError("upserting event definition", err)
	}
	next := c.current().clone()
	next.eventDefs[d.ID] = d
	c.snapshot.Store(next)
	c.notify("")
	return nil
}

func (c *EntityCatalog) DeleteEventDefinition(id string) error {
	if err := c.repo.DeleteEventDefinition(id); err != nil {
		return NewStorageError("deleting event definition", err)
	}
	next := c.current().clone()
	delete(next.eventDefs, id)
	c.snapshot.Store(next)
	c.notify("")
	return nil
}
