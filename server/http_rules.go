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

func (s *HTTPServer) registerRuleRoutes() {
	s.router.HandleFunc("/api/rules", s.handleListRules).Methods(http.MethodGet)
	s.router.HandleFunc("/api/rules", s.handleCreateRule).Methods(http.MethodPost)
	s.router.HandleFunc("/api/rules/{id}", s.handleGetRule).Methods(http.MethodGet)
	s.router.HandleFunc("/api/rules/{id}", s.handleUpdateRule).Methods(http.MethodPut)
	s.router.HandleFunc("/api/rules/{id}", s.handleDeleteRule).Methods(http.MethodDelete)
	s.router.HandleFunc("/api/rules/{id}/activate", s.handleSetRuleActive(true)).Methods(http.MethodPost)
	s.router.HandleFunc("/api/rules/{id}/deactivate", s.handleSetRuleActive(false)).Methods(http.MethodPost)
}

// handleListRules lists all rules, optionally filtered by ?active and
// ?trigger={eventType} (spec.md §6).
func (s *HTTPServer) handleListRules(w http.ResponseWriter, r *http.Request) {
	trigger := r.URL.Query().Get("trigger")
	var rules []*Rule
	var err error
	if trigger != "" {
		rules, err = s.rules.ListActiveByTrigger(trigger)
	} else {
		rules, err = s.rules.List()
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if activeParam := r.URL.Query().Get("active"); activeParam != "" {
		want := activeParam == "true"
		filtered := rules[:0]
		for _, rule := range rules {
			if rule.IsActive == want {
				filtered = append(filtered, rule)
			}
		}
		rules = filtered
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *HTTPServer) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rule, ok, err := s.rules.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeNotFound(w, "rule not found")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *HTTPServer) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeBadRequest(w, "malformed rule body: "+err.Error())
		return
	}
	if err := rule.Validate(s.pluginReg); err != nil {
		writeError(w, err)
		return
	}
	if _, exists, err := s.rules.Get(rule.ID); err != nil {
		writeError(w, err)
		return
	} else if exists {
		writeError(w, NewConflictError("a rule with this id already exists"))
		return
	}
	if err := s.rules.Upsert(&rule); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *HTTPServer) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok, err := s.rules.Get(id); err != nil {
		writeError(w, err)
		return
	} else if !ok {
		writeNotFound(w, "rule not found")
		return
	}
	var rule Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeBadRequest(w, "malformed rule body: "+err.Error())
		return
	}
	rule.ID = id
	if err := rule.Validate(s.pluginReg); err != nil {
		writeError(w, err)
		return
	}
	if err := s.rules.Upsert(&rule); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *HTTPServer) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.rules.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleSetRuleActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		rule, ok, err := s.rules.Get(id)
		if err != nil {
			writeError(w, err)
			return
		}
		if !ok {
			writeNotFound(w, "rule not found")
			return
		}
		cp := *rule
		cp.IsActive = active
		if err := s.rules.Upsert(&cp); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cp)
	}
}
