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

// UserState is the per-user points-by-category, badge set, and trophy set
// (spec.md §3). Mutations always go through the per-user striped lock
// (server/striped_lock.go), so UserState itself carries no locking.
type UserState struct {
	UserID          string           `json:"userId"`
	PointsByCategory map[string]int64 `json:"pointsByCategory"`
	Badges          map[string]bool  `json:"badges"`
	Trophies        map[string]bool  `json:"trophies"`
	LevelByCategory map[string]string `json:"levelByCategory"`
}

// NewUserState returns an empty state for userID.
func NewUserState(userID string) *UserState {
	return &UserState{
		UserID:           userID,
		PointsByCategory: map[string]int64{},
		Badges:           map[string]bool{},
		Trophies:         map[string]bool{},
		LevelByCategory:  map[string]string{},
	}
}

// Clone returns a deep copy so callers can safely hand state across
// goroutine boundaries (e.g. into a dry-run trace) without risking a torn
// read of a map still being mutated under the striped lock.
func (s *UserState) Clone() *UserState {
	c := NewUserState(s.UserID)
	for k, v := range s.PointsByCategory {
		c.PointsByCategory[k] = v
	}
	for k, v := range s.Badges {
		c.Badges[k] = v
	}
	for k, v := range s.Trophies {
		c.Trophies[k] = v
	}
	for k, v := range s.LevelByCategory {
		c.LevelByCategory[k] = v
	}
	return c
}

// AddPoints applies delta to category and returns the new balance.
func (s *UserState) AddPoints(category string, delta int64) int64 {
	s.PointsByCategory[category] += delta
	return s.PointsByCategory[category]
}

// GrantBadge grants b, returning false if the user already held it
// (idempotent: a re-grant is a no-op, per spec.md §4.D).
func (s *UserState) GrantBadge(id string) bool {
	if s.Badges[id] {
		return false
	}
	s.Badges[id] = true
	return true
}

// GrantTrophy is GrantBadge for trophies.
func (s *UserState) GrantTrophy(id string) bool {
	if s.Trophies[id] {
		return false
	}
	s.Trophies[id] = true
	return true
}

// RevokeBadge removes b, returning false if the user did not hold it.
func (s *UserState) RevokeBadge(id string) bool {
	if !s.Badges[id] {
		return false
	}
	delete(s.Badges, id)
	return true
}

// SetLevel records the current level for category.
func (s *UserState) SetLevel(category, levelID string) {
	s.LevelByCategory[category] = levelID
}
