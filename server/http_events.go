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
	"strconv"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) registerEventRoutes() {
	s.router.HandleFunc("/api/events", s.handleIngestEvent).Methods(http.MethodPost)
	s.router.HandleFunc("/api/events/catalog", s.handleEventCatalog).Methods(http.MethodGet)
	s.router.HandleFunc("/api/events/sandbox/dry-run", s.handleDryRun).Methods(http.MethodPost)
	s.router.HandleFunc("/api/events/user/{userId}", s.handleEventsByUser).Methods(http.MethodGet)
	s.router.HandleFunc("/api/events/type/{eventType}", s.handleEventsByType).Methods(http.MethodGet)
	s.router.HandleFunc("/api/events/{id}", s.handleGetEvent).Methods(http.MethodGet)
}

// handleIngestEvent accepts a new event and hands it to the bounded
// EventQueue for background processing (spec.md §6: "POST /api/events →
// 201 Created with stored representation"). The representation returned
// is the validated event as it will be processed, not yet the evaluation
// outcome: evaluation happens asynchronously on the Queue Processor.
func (s *HTTPServer) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var ev Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeBadRequest(w, "malformed event body: "+err.Error())
		return
	}
	if err := ev.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := s.queue.Enqueue(r.Context(), &ev); err != nil {
		writeError(w, NewStorageError("enqueuing event", err))
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *HTTPServer) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ev, ok, err := s.events.GetByID(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeNotFound(w, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *HTTPServer) handleEventsByUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	limit, offset := paginationParams(r)
	events, err := s.events.GetByUser(userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *HTTPServer) handleEventsByType(w http.ResponseWriter, r *http.Request) {
	eventType := mux.Vars(r)["eventType"]
	limit, offset := paginationParams(r)
	events, err := s.events.GetByType(eventType, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *HTTPServer) handleEventCatalog(w http.ResponseWriter, r *http.Request) {
	defs, err := s.entityRepo.ListEventDefinitions()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

// handleDryRun runs the Dry-Run Service's Trace against a hypothetical
// event, gated by simulation.enabled (spec.md §6: "404 when disabled").
func (s *HTTPServer) handleDryRun(w http.ResponseWriter, r *http.Request) {
	if s.config.Simulation == nil || !s.config.Simulation.Enabled {
		writeNotFound(w, "simulation sandbox is disabled")
		return
	}
	var ev Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeBadRequest(w, "malformed event body: "+err.Error())
		return
	}
	result, err := s.dryRun.Trace(&ev)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func paginationParams(r *http.Request) (limit, offset int) {
	limit = 100
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	if limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	return limit, offset
}
