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

	"github.com/gorilla/mux"
)

func (s *HTTPServer) registerUserRoutes() {
	s.router.HandleFunc("/api/users/{userId}/state", s.handleGetUserState).Methods(http.MethodGet)
	s.router.HandleFunc("/api/users/{userId}/points", s.handleGetUserPoints).Methods(http.MethodGet)
	s.router.HandleFunc("/api/users/{userId}/badges", s.handleGetUserBadges).Methods(http.MethodGet)
	s.router.HandleFunc("/api/users/{userId}/trophies", s.handleGetUserTrophies).Methods(http.MethodGet)
	s.router.HandleFunc("/api/users/{userId}/levels", s.handleGetUserLevels).Methods(http.MethodGet)
	s.router.HandleFunc("/api/users/{userId}/rewards", s.handleGetUserRewards).Methods(http.MethodGet)
}

// handleGetUserState returns the composite per-user state (spec.md §6:
// "GET /api/users/{userId}/state → composite state").
func (s *HTTPServer) handleGetUserState(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	state, err := s.userState.GetByUser(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *HTTPServer) handleGetUserPoints(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	state, err := s.userState.GetByUser(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state.PointsByCategory)
}

func (s *HTTPServer) handleGetUserBadges(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	state, err := s.userState.GetByUser(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	badges := make([]string, 0, len(state.Badges))
	for id := range state.Badges {
		badges = append(badges, id)
	}
	writeJSON(w, http.StatusOK, badges)
}

func (s *HTTPServer) handleGetUserTrophies(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	state, err := s.userState.GetByUser(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	trophies := make([]string, 0, len(state.Trophies))
	for id := range state.Trophies {
		trophies = append(trophies, id)
	}
	writeJSON(w, http.StatusOK, trophies)
}

func (s *HTTPServer) handleGetUserLevels(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	state, err := s.userState.GetByUser(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state.LevelByCategory)
}

func (s *HTTPServer) handleGetUserRewards(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	limit, offset := paginationParams(r)
	history, err := s.rewards.ListByUser(userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
