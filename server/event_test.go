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
	"time"

	"github.com/stretchr/testify/require"
)

func TestEventValidateRejectsMissingEventType(t *testing.T) {
	e := &Event{UserID: "alice"}
	err := e.Validate()
	require.Error(t, err)
	require.Equal(t, KindValidation, KindOf(err))
}

func TestEventValidateRejectsMissingUserID(t *testing.T) {
	e := &Event{EventType: "login"}
	require.Error(t, e.Validate())
}

func TestEventValidateAssignsIDAndTimestampWhenAbsent(t *testing.T) {
	e := &Event{EventType: "login", UserID: "alice"}
	require.NoError(t, e.Validate())
	require.NotEmpty(t, e.EventID)
	require.False(t, e.OccurredAt.IsZero())
	require.NotNil(t, e.Attributes)
}

func TestEventValidatePreservesCallerSuppliedIDAndTime(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := &Event{EventID: "custom-id", EventType: "login", UserID: "alice", OccurredAt: ts}
	require.NoError(t, e.Validate())
	require.Equal(t, "custom-id", e.EventID)
	require.True(t, ts.Equal(e.OccurredAt))
}

func TestEventAttributeNumberCoercesNumericTypes(t *testing.T) {
	e := &Event{Attributes: map[string]interface{}{
		"a": float64(1.5),
		"b": float32(2),
		"c": int(3),
		"d": int32(4),
		"e": int64(5),
		"f": "not a number",
	}}

	v, ok := e.AttributeNumber("a")
	require.True(t, ok)
	require.Equal(t, 1.5, v)

	v, ok = e.AttributeNumber("c")
	require.True(t, ok)
	require.Equal(t, float64(3), v)

	_, ok = e.AttributeNumber("f")
	require.False(t, ok)

	_, ok = e.AttributeNumber("missing")
	require.False(t, ok)
}
