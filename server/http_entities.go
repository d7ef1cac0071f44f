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
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) registerEntityRoutes() {
	s.router.HandleFunc("/api/badges", s.handleListBadges).Methods(http.MethodGet)
	s.router.HandleFunc("/api/badges", s.handleCreateBadge).Methods(http.MethodPost)
	s.router.HandleFunc("/api/badges/{id}", s.handleGetBadge).Methods(http.MethodGet)
	s.router.HandleFunc("/api/badges/{id}", s.handleUpdateBadge).Methods(http.MethodPut)
	s.router.HandleFunc("/api/badges/{id}", s.handleDeleteBadge).Methods(http.MethodDelete)

	s.router.HandleFunc("/api/trophies", s.handleListTrophies).Methods(http.MethodGet)
	s.router.HandleFunc("/api/trophies", s.handleCreateTrophy).Methods(http.MethodPost)
	s.router.HandleFunc("/api/trophies/{id}", s.handleGetTrophy).Methods(http.MethodGet)
	s.router.HandleFunc("/api/trophies/{id}", s.handleUpdateTrophy).Methods(http.MethodPut)
	s.router.HandleFunc("/api/trophies/{id}", s.handleDeleteTrophy).Methods(http.MethodDelete)

	s.router.HandleFunc("/api/levels", s.handleListLevels).Methods(http.MethodGet)
	s.router.HandleFunc("/api/levels/category/{category}", s.handleListLevelsByCategory).Methods(http.MethodGet)
	s.router.HandleFunc("/api/levels", s.handleCreateLevel).Methods(http.MethodPost)
	s.router.HandleFunc("/api/levels/{id}", s.handleGetLevel).Methods(http.MethodGet)
	s.router.HandleFunc("/api/levels/{id}", s.handleUpdateLevel).Methods(http.MethodPut)
	s.router.HandleFunc("/api/levels/{id}", s.handleDeleteLevel).Methods(http.MethodDelete)

	s.router.HandleFunc("/api/point-categories", s.handleListPointCategories).Methods(http.MethodGet)
	s.router.HandleFunc("/api/point-categories", s.handleCreatePointCategory).Methods(http.MethodPost)
	s.router.HandleFunc("/api/point-categories/{id}", s.handleGetPointCategory).Methods(http.MethodGet)
	s.router.HandleFunc("/api/point-categories/{id}", s.handleUpdatePointCategory).Methods(http.MethodPut)
	s.router.HandleFunc("/api/point-categories/{id}", s.handleDeletePointCategory).Methods(http.MethodDelete)
}

func (s *HTTPServer) handleListBadges(w http.ResponseWriter, r *http.Request) {
	badges, err := s.entityRepo.ListBadges()
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("visible") == "true" {
		var visible []*Badge
		for _, b := range badges {
			if b.Visible {
				visible = append(visible, b)
			}
		}
		badges = visible
	}
	writeJSON(w, http.StatusOK, badges)
}

func (s *HTTPServer) handleGetBadge(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	b, ok := s.entities.GetBadge(id)
	if !ok {
		writeNotFound(w, "badge not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleCreateBadge(w http.ResponseWriter, r *http.Request) {
	var b Badge
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeBadRequest(w, "malformed badge body: "+err.Error())
		return
	}
	if b.ID == "" {
		writeBadRequest(w, "badge id must not be empty")
		return
	}
	if err := s.entities.UpsertBadge(&b); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *HTTPServer) handleUpdateBadge(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var b Badge
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeBadRequest(w, "malformed badge body: "+err.Error())
		return
	}
	b.ID = id
	if err := s.entities.UpsertBadge(&b); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleDeleteBadge(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.entities.DeleteBadge(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListTrophies(w http.ResponseWriter, r *http.Request) {
	trophies, err := s.entityRepo.ListTrophies()
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("visible") == "true" {
		var visible []*Trophy
		for _, t := range trophies {
			if t.Visible {
				visible = append(visible, t)
			}
		}
		trophies = visible
	}
	writeJSON(w, http.StatusOK, trophies)
}

func (s *HTTPServer) handleGetTrophy(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, ok := s.entities.GetTrophy(id)
	if !ok {
		writeNotFound(w, "trophy not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *HTTPServer) handleCreateTrophy(w http.ResponseWriter, r *http.Request) {
	var t Trophy
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeBadRequest(w, "malformed trophy body: "+err.Error())
		return
	}
	if t.ID == "" {
		writeBadRequest(w, "trophy id must not be empty")
		return
	}
	if err := s.entities.UpsertTrophy(&t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *HTTPServer) handleUpdateTrophy(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var t Trophy
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeBadRequest(w, "malformed trophy body: "+err.Error())
		return
	}
	t.ID = id
	if err := s.entities.UpsertTrophy(&t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *HTTPServer) handleDeleteTrophy(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.entities.DeleteTrophy(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListLevels(w http.ResponseWriter, r *http.Request) {
	cats, err := s.entityRepo.ListPointCategories()
	if err != nil {
		writeError(w, err)
		return
	}
	var out []*Level
	for _, c := range cats {
		out = append(out, s.entities.LevelsByCategory(c.ID)...)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *HTTPServer) handleListLevelsByCategory(w http.ResponseWriter, r *http.Request) {
	category := mux.Vars(r)["category"]
	writeJSON(w, http.StatusOK, s.entities.LevelsByCategory(category))
}

func (s *HTTPServer) handleGetLevel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	l, ok := s.entities.GetLevel(id)
	if !ok {
		writeNotFound(w, "level not found")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *HTTPServer) handleCreateLevel(w http.ResponseWriter, r *http.Request) {
	var l Level
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		writeBadRequest(w, "malformed level body: "+err.Error())
		return
	}
	if l.ID == "" || l.Category == "" {
		writeBadRequest(w, "level id and category must not be empty")
		return
	}
	if err := s.entities.UpsertLevel(&l); err != nil {
		writeError(w, err)
		return
	}
	s.leaderboard.Invalidate(l.Category)
	writeJSON(w, http.StatusCreated, l)
}

func (s *HTTPServer) handleUpdateLevel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var l Level
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		writeBadRequest(w, "malformed level body: "+err.Error())
		return
	}
	l.ID = id
	if err := s.entities.UpsertLevel(&l); err != nil {
		writeError(w, err)
		return
	}
	s.leaderboard.Invalidate(l.Category)
	writeJSON(w, http.StatusOK, l)
}

func (s *HTTPServer) handleDeleteLevel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.entities.DeleteLevel(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListPointCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.entityRepo.ListPointCategories()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *HTTPServer) handleGetPointCategory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	c, ok := s.entities.GetPointCategory(id)
	if !ok {
		writeNotFound(w, "point category not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *HTTPServer) handleCreatePointCategory(w http.ResponseWriter, r *http.Request) {
	var c PointCategory
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeBadRequest(w, "malformed point category body: "+err.Error())
		return
	}
	if c.ID == "" {
		writeBadRequest(w, "point category id must not be empty")
		return
	}
	if err := s.entities.UpsertPointCategory(&c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *HTTPServer) handleUpdatePointCategory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var c PointCategory
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeBadRequest(w, "malformed point category body: "+err.Error())
		return
	}
	c.ID = id
	if err := s.entities.UpsertPointCategory(&c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *HTTPServer) handleDeletePointCategory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.entities.DeletePointCategory(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
