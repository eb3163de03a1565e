package common

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_IsMatchesByCode(t *testing.T) {
	cause := errors.New("upstream 500")
	err := fmt.Errorf("search: %w", NewError(ErrCodePlaceSearch, "provider failed", cause))

	assert.True(t, errors.Is(err, ErrPlaceSearch))
	assert.False(t, errors.Is(err, ErrNetwork))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, ErrCodePlaceSearch, CodeOf(err))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
	assert.Equal(t, ErrCodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, ErrCodeNoResults, CodeOf(ErrNoResults))
}

func TestNewError_Retryable(t *testing.T) {
	assert.True(t, NewError(ErrCodeNetwork, "x", nil).Retryable)
	assert.True(t, NewError(ErrCodeGeolocationTimeout, "x", nil).Retryable)
	assert.False(t, NewError(ErrCodeInvalidLocation, "x", nil).Retryable)
	assert.False(t, NewError(ErrCodeGeolocationDenied, "x", nil).Retryable)
}

func TestIsNetworkFailure(t *testing.T) {
	assert.False(t, IsNetworkFailure(nil))
	assert.False(t, IsNetworkFailure(errors.New("bad request")))
	assert.True(t, IsNetworkFailure(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
}
