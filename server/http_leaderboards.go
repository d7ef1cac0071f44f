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
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) registerLeaderboardRoutes() {
	s.router.HandleFunc("/api/leaderboards/{kind}", s.handleLeaderboard).Methods(http.MethodGet)
	s.router.HandleFunc("/api/leaderboards/{kind}/users/{userId}/rank", s.handleUserRank).Methods(http.MethodGet)
	s.router.HandleFunc("/api/leaderboards/{kind}/refresh", s.handleLeaderboardRefresh).Methods(http.MethodPost)
}

// handleLeaderboard answers the ranked view named by the {kind} path
// segment, filtered by ?category and ?range (spec.md §6, §4.K).
func (s *HTTPServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	kind := LeaderboardKind(mux.Vars(r)["kind"])
	category := r.URL.Query().Get("category")
	rng := leaderboardRangeParam(r)
	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			page = n
		}
	}
	pageSize := 100
	if v := r.URL.Query().Get("pageSize"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			pageSize = n
		}
	}
	entries, err := s.leaderboard.Rank(kind, category, rng, time.Now(), page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *HTTPServer) handleUserRank(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind := LeaderboardKind(vars["kind"])
	userID := vars["userId"]
	category := r.URL.Query().Get("category")
	rng := leaderboardRangeParam(r)

	rank, score, ok, err := s.leaderboard.UserRank(kind, category, rng, time.Now(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeNotFound(w, "user has no rank in this leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, RankEntry{Rank: rank, UserID: userID, Score: score})
}

// handleLeaderboardRefresh evicts the cached ranking for ?category (or
// every category, if omitted), forcing the next query to recompute
// (spec.md §6: "admin cache eviction").
func (s *HTTPServer) handleLeaderboardRefresh(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	s.leaderboard.Invalidate(category)
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func leaderboardRangeParam(r *http.Request) TimeRange {
	switch r.URL.Query().Get("range") {
	case "daily":
		return RangeDaily
	case "weekly":
		return RangeWeekly
	case "monthly":
		return RangeMonthly
	default:
		return RangeAllTime
	}
}
