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

// AggregationKind governs how per-event point deltas combine within a
// category.
type AggregationKind string

const (
	AggregationSum   AggregationKind = "sum"
	AggregationMax   AggregationKind = "max"
	AggregationMin   AggregationKind = "min"
	AggregationAvg   AggregationKind = "avg"
	AggregationCount AggregationKind = "count"
)

// PointCategory governs how points accumulate and are ranked.
type PointCategory struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Aggregation AggregationKind `json:"aggregation"`
}

// Badge is a visible-or-hidden achievement marker, granted idempotently.
type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Visible     bool   `json:"visible"`
}

// Trophy is structurally identical to Badge but tracked in its own set.
type Trophy struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Visible     bool   `json:"visible"`
}

// Level is a named threshold within a point category. Within a category,
// MinPoints values must form a strictly increasing sequence (spec.md §3).
type Level struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Visible     bool   `json:"visible"`
	Category    string `json:"category"`
	MinPoints   int64  `json:"minPoints"`
}
