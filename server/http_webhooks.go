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

func (s *HTTPServer) registerWebhookRoutes() {
	s.router.HandleFunc("/api/webhooks", s.handleListWebhooks).Methods(http.MethodGet)
	s.router.HandleFunc("/api/webhooks", s.handleCreateWebhook).Methods(http.MethodPost)
	s.router.HandleFunc("/api/webhooks/{id}", s.handleGetWebhook).Methods(http.MethodGet)
	s.router.HandleFunc("/api/webhooks/{id}", s.handleUpdateWebhook).Methods(http.MethodPut)
	s.router.HandleFunc("/api/webhooks/{id}", s.handleDeleteWebhook).Methods(http.MethodDelete)
	s.router.HandleFunc("/api/webhooks/{id}/test", s.handleTestWebhook).Methods(http.MethodPost)
}

func (s *HTTPServer) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	subs, err := s.webhooks.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *HTTPServer) handleGetWebhook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sub, ok, err := s.webhooks.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeNotFound(w, "webhook not found")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *HTTPServer) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var sub WebhookSubscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeBadRequest(w, "malformed webhook body: "+err.Error())
		return
	}
	if sub.ID == "" || sub.URL == "" {
		writeBadRequest(w, "webhook id and url must not be empty")
		return
	}
	if err := s.webhooks.Upsert(&sub); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *HTTPServer) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok, err := s.webhooks.Get(id); err != nil {
		writeError(w, err)
		return
	} else if !ok {
		writeNotFound(w, "webhook not found")
		return
	}
	var sub WebhookSubscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeBadRequest(w, "malformed webhook body: "+err.Error())
		return
	}
	sub.ID = id
	if err := s.webhooks.Upsert(&sub); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *HTTPServer) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.webhooks.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTestWebhook reports whether the subscription exists and is active;
// it never dials out, since delivery transport is out of scope (spec.md
// §1) and this package carries no HTTP client for third-party endpoints.
func (s *HTTPServer) handleTestWebhook(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sub, ok, err := s.webhooks.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeNotFound(w, "webhook not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":  sub.ID,
		"url": sub.URL,
		"registered": true,
		"active":     sub.Active,
	})
}
