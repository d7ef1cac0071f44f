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
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfExtractsDomainErrorKind(t *testing.T) {
	require.Equal(t, KindValidation, KindOf(NewValidationError("bad input")))
	require.Equal(t, KindNotFound, KindOf(NewNotFoundError("missing")))
	require.Equal(t, KindStorage, KindOf(NewStorageError("write failed", errors.New("disk full"))))
}

func TestKindOfDefaultsToUnexpectedForForeignErrors(t *testing.T) {
	require.Equal(t, KindUnexpected, KindOf(errors.New("plain error")))
	require.Equal(t, KindUnexpected, KindOf(nil))
}

func TestKindOfUnwrapsWrappedDomainError(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", NewConflictError("duplicate"))
	require.Equal(t, KindConflict, KindOf(wrapped))
}

func TestIsFatalOnlyForStorageAndRetrieval(t *testing.T) {
	require.True(t, IsFatal(NewStorageError("x", nil)))
	require.True(t, IsFatal(NewRetrievalError("x", nil)))
	require.False(t, IsFatal(NewValidationError("x")))
	require.False(t, IsFatal(NewConflictError("x")))
	require.False(t, IsFatal(NewInsufficientBalanceError("x")))
	require.False(t, IsFatal(NewRuleEvaluationError("x", nil)))
	require.False(t, IsFatal(errors.New("unrelated")))
}

func TestDomainErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("root cause")
	de := NewStorageError("failed to persist", cause)
	require.ErrorIs(t, de, cause)
}

func TestDomainErrorMessageIncludesCauseWhenPresent(t *testing.T) {
	de := NewStorageError("failed to persist", errors.New("disk full"))
	require.Contains(t, de.Error(), "failed to persist")
	require.Contains(t, de.Error(), "disk full")

	deNoCause := NewValidationError("missing field")
	require.NotContains(t, deNoCause.Error(), "<nil>")
}
