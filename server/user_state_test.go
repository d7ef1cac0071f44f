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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserStateAddPointsAccumulatesAndReturnsNewBalance(t *testing.T) {
	s := NewUserState("alice")
	require.Equal(t, int64(10), s.AddPoints("xp", 10))
	require.Equal(t, int64(15), s.AddPoints("xp", 5))
	require.Equal(t, int64(5), s.AddPoints("gold", 5))
}

func TestUserStateAddPointsAllowsNegativeDelta(t *testing.T) {
	s := NewUserState("alice")
	s.AddPoints("xp", 10)
	require.Equal(t, int64(4), s.AddPoints("xp", -6))
}

func TestUserStateGrantBadgeIsIdempotent(t *testing.T) {
	s := NewUserState("alice")
	require.True(t, s.GrantBadge("first-login"))
	require.False(t, s.GrantBadge("first-login"))
	require.True(t, s.Badges["first-login"])
}

func TestUserStateGrantTrophyIsIdempotent(t *testing.T) {
	s := NewUserState("alice")
	require.True(t, s.GrantTrophy("champion"))
	require.False(t, s.GrantTrophy("champion"))
}

func TestUserStateRevokeBadgeReturnsFalseWhenNotHeld(t *testing.T) {
	s := NewUserState("alice")
	require.False(t, s.RevokeBadge("never-granted"))

	s.GrantBadge("first-login")
	require.True(t, s.RevokeBadge("first-login"))
	require.False(t, s.Badges["first-login"])
}

func TestUserStateSetLevelOverwritesPriorValue(t *testing.T) {
	s := NewUserState("alice")
	s.SetLevel("xp", "bronze")
	require.Equal(t, "bronze", s.LevelByCategory["xp"])
	s.SetLevel("xp", "silver")
	require.Equal(t, "silver", s.LevelByCategory["xp"])
}

func TestUserStateCloneIsIndependentOfOriginal(t *testing.T) {
	s := NewUserState("alice")
	s.AddPoints("xp", 10)
	s.GrantBadge("first-login")
	s.GrantTrophy("champion")
	s.SetLevel("xp", "bronze")

	c := s.Clone()
	c.AddPoints("xp", 1000)
	c.GrantBadge("second-badge")
	c.SetLevel("xp", "gold")

	require.Equal(t, int64(10), s.PointsByCategory["xp"])
	require.False(t, s.Badges["second-badge"])
	require.Equal(t, "bronze", s.LevelByCategory["xp"])

	require.Equal(t, int64(1010), c.PointsByCategory["xp"])
	require.True(t, c.Badges["second-badge"])
	require.Equal(t, "gold", c.LevelByCategory["xp"])
}
