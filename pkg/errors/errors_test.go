package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/koopa0/system-design/route-cache/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := errors.New(errors.ErrCodeInvalidInput, "bad name")
		assert.Equal(t, "[INVALID_INPUT] bad name", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		err := errors.Wrap(fmt.Errorf("connection refused"), errors.ErrCodeStore, "hgetall failed")
		assert.Equal(t, "[STORE_ERROR] hgetall failed: connection refused", err.Error())
	})
}

func TestAppError_Unwrap(t *testing.T) {
	cause := stderrors.New("i/o timeout")
	err := errors.Wrap(cause, errors.ErrCodeStore, "scan failed")

	assert.ErrorIs(t, err, cause)
	assert.True(t, errors.IsStore(err))

	// 外層再包一次仍可辨識
	outer := fmt.Errorf("get entries: %w", err)
	assert.True(t, errors.IsStore(outer))
	assert.ErrorIs(t, outer, cause)
}

func TestAppError_IsByCode(t *testing.T) {
	err := errors.Wrap(stderrors.New("x"), errors.ErrCodeInvalidInput, "other message")
	assert.ErrorIs(t, err, errors.ErrEmptyName)
	assert.NotErrorIs(t, err, errors.ErrStoreUnavailable)
}

func TestAppError_WithDetails(t *testing.T) {
	detailed := errors.ErrEmptyName.WithDetails("add")
	require.NotSame(t, errors.ErrEmptyName, detailed)
	assert.Equal(t, "add", detailed.Details)
	assert.Empty(t, errors.ErrEmptyName.Details, "shared error must stay untouched")
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"invalid input", errors.ErrEmptyPattern, errors.IsInvalidInput, true},
		{"not found", errors.ErrEntryNotFound, errors.IsNotFound, true},
		{"expire", errors.New(errors.ErrCodeExpire, "ttl"), errors.IsExpireFailed, true},
		{"unavailable", errors.ErrStoreUnavailable, errors.IsUnavailable, true},
		{"plain error", stderrors.New("plain"), errors.IsStore, false},
		{"nil", nil, errors.IsInvalidInput, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}
