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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEventQueueTryEnqueueFailsWhenFull(t *testing.T) {
	q := NewEventQueue(zap.NewNop(), NopMetrics{}, 1)
	require.NoError(t, q.TryEnqueue(&Event{EventID: "e1"}))

	err := q.TryEnqueue(&Event{EventID: "e2"})
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestEventQueueDequeueReturnsInFIFOOrder(t *testing.T) {
	q := NewEventQueue(zap.NewNop(), NopMetrics{}, 4)
	require.NoError(t, q.TryEnqueue(&Event{EventID: "e1"}))
	require.NoError(t, q.TryEnqueue(&Event{EventID: "e2"}))

	ctx := context.Background()
	ev1, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "e1", ev1.EventID)

	ev2, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "e2", ev2.EventID)
}

func TestEventQueueEnqueueRejectsNilEvent(t *testing.T) {
	q := NewEventQueue(zap.NewNop(), NopMetrics{}, 1)
	err := q.Enqueue(context.Background(), nil)
	require.ErrorIs(t, err, ErrNilEvent)
}

func TestEventQueueEnqueueBlocksUntilSlotFreesOrContextCancelled(t *testing.T) {
	q := NewEventQueue(zap.NewNop(), NopMetrics{}, 1)
	require.NoError(t, q.TryEnqueue(&Event{EventID: "e1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, &Event{EventID: "e2"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEventQueueSizeAndEmpty(t *testing.T) {
	q := NewEventQueue(zap.NewNop(), NopMetrics{}, 4)
	require.True(t, q.Empty())
	require.Equal(t, 0, q.Size())

	require.NoError(t, q.TryEnqueue(&Event{EventID: "e1"}))
	require.False(t, q.Empty())
	require.Equal(t, 1, q.Size())
}
