package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorFormatting(t *testing.T) {
	err := NewError(ErrCodeTypeMismatch, "operator + not defined")
	assert.Equal(t, "[TYPE_MISMATCH] operator + not defined", err.Error())

	err = NewErrorf(ErrCodeNotFound, "app %q is not loaded", "poll").WithAction("vote")
	assert.Equal(t, `[NOT_FOUND] action vote: app "poll" is not loaded`, err.Error())
}

func TestAppErrorBuilders(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewError(ErrCodeStore, "save failed").
		WithCause(cause).
		WithDetails(map[string]any{"table": "apps"})

	assert.Equal(t, ErrCodeStore, err.Code)
	assert.Equal(t, "apps", err.Details["table"])
	require.ErrorIs(t, err, cause)

	var target *AppError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &target))
	assert.Equal(t, ErrCodeStore, target.Code)
}

func TestIsSafetyLimit(t *testing.T) {
	for _, code := range []string{ErrCodeLoopLimit, ErrCodeNestingLimit, ErrCodeStateSizeLimit} {
		assert.True(t, NewError(code, "x").IsSafetyLimit(), code)
	}
	for _, code := range []string{ErrCodeTypeMismatch, ErrCodeValidationFailed, ErrCodeNotFound} {
		assert.False(t, NewError(code, "x").IsSafetyLimit(), code)
	}
}
