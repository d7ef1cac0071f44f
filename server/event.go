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
	"time"

	"github.com/gofrs/uuid/v5"
)

// Event is an immutable fact ingested into the engine. Once stored it is
// never mutated; deletion is a retention-policy concern outside this core.
type Event struct {
	EventID    string                 `json:"eventId"`
	EventType  string                 `json:"eventType"`
	UserID     string                 `json:"userId"`
	OccurredAt time.Time              `json:"occurredAt"`
	Attributes map[string]interface{} `json:"attributes"`
}

// Validate enforces the non-empty-field invariant from spec.md §3 and
// assigns a generated id when the caller did not supply one.
func (e *Event) Validate() error {
	if e.EventType == "" {
		return NewValidationError("eventType must not be empty")
	}
	if e.UserID == "" {
		return NewValidationError("userId must not be empty")
	}
	if e.EventID == "" {
		e.EventID = uuid.Must(uuid.NewV4()).String()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if e.Attributes == nil {
		e.Attributes = map[string]interface{}{}
	}
	return nil
}

// AttributeNumber coerces an attribute value to float64, the common form
// numeric conditions compare against. ok is false for missing or
// non-numeric values, never an error: condition evaluation is total.
func (e *Event) AttributeNumber(name string) (float64, bool) {
	v, ok := e.Attributes[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// EventDefinition is a catalog entry describing a recognized event type.
type EventDefinition struct {
	ID            string            `json:"id"`
	Description   string            `json:"description"`
	PayloadSchema map[string]string `json:"payloadSchema"`
}
