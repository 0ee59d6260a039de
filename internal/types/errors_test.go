package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFleetError_Error(t *testing.T) {
	err := NewError(PLANNING_FAILED, "could not derive a plan")
	assert.Equal(t, "[PLANNING_FAILED] could not derive a plan", err.Error())
}

func TestFleetError_ErrorWithCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(MESSAGE_DELIVERY_FAILED, "publish failed", cause)

	assert.Equal(t, "[MESSAGE_DELIVERY_FAILED] publish failed: connection refused", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestFleetError_Is(t *testing.T) {
	err := NewError(NO_SUITABLE_AGENT, "no agent for task")
	wrapped := fmt.Errorf("step failed: %w", err)

	assert.True(t, errors.Is(wrapped, NewError(NO_SUITABLE_AGENT, "anything")))
	assert.False(t, errors.Is(wrapped, NewError(PLANNING_FAILED, "anything")))
}

func TestIsRetryable(t *testing.T) {
	retryable := NewRetryableError(MESSAGE_DELIVERY_FAILED, "transient")
	permanent := NewError(MESSAGE_VALIDATION_FAILED, "malformed")

	assert.True(t, IsRetryable(retryable))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", retryable)))
	assert.False(t, IsRetryable(permanent))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestWrapError_ChainInspection(t *testing.T) {
	root := NewError(VERSION_NOT_FOUND, "version missing")
	mid := WrapError(REPLANNING_FAILED, "replan aborted", root)

	var fleetErr *FleetError
	require.True(t, errors.As(mid, &fleetErr))
	assert.Equal(t, REPLANNING_FAILED, fleetErr.Code)
	assert.True(t, errors.Is(mid, NewError(VERSION_NOT_FOUND, "")))
}
