package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for fleet framework errors.
type ErrorCode string

// Messaging error codes
const (
	MESSAGE_VALIDATION_FAILED ErrorCode = "MESSAGE_VALIDATION_FAILED"
	MESSAGE_DELIVERY_FAILED   ErrorCode = "MESSAGE_DELIVERY_FAILED"
	UNKNOWN_RECIPIENT         ErrorCode = "UNKNOWN_RECIPIENT"
	UNHANDLED_MESSAGE_TYPE    ErrorCode = "UNHANDLED_MESSAGE_TYPE"
	PROTOCOL_ERROR            ErrorCode = "PROTOCOL_ERROR"
)

// Planning and execution error codes
const (
	PLANNING_FAILED       ErrorCode = "PLANNING_FAILED"
	REPLANNING_FAILED     ErrorCode = "REPLANNING_FAILED"
	PLAN_INVALID          ErrorCode = "PLAN_INVALID"
	VERSION_NOT_FOUND     ErrorCode = "VERSION_NOT_FOUND"
	EXECUTION_FAILED      ErrorCode = "EXECUTION_FAILED"
	EXECUTION_BLOCKED     ErrorCode = "EXECUTION_BLOCKED"
	NO_SUITABLE_AGENT     ErrorCode = "NO_SUITABLE_AGENT"
	TASK_TYPE_UNSUPPORTED ErrorCode = "TASK_TYPE_UNSUPPORTED"
	TASK_CANCELED         ErrorCode = "TASK_CANCELED"
)

// Consensus error codes
const (
	CONSENSUS_NOT_FOUND ErrorCode = "CONSENSUS_NOT_FOUND"
	CONSENSUS_CLOSED    ErrorCode = "CONSENSUS_CLOSED"
	VOTE_INVALID        ErrorCode = "VOTE_INVALID"
)

// Configuration and provider error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
	LLM_REQUEST_FAILED       ErrorCode = "LLM_REQUEST_FAILED"
	LLM_RESPONSE_INVALID     ErrorCode = "LLM_RESPONSE_INVALID"
)

// FleetError represents a structured error with error code, message, and
// optional cause. It supports error wrapping and retryability hints for
// error handling logic.
type FleetError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *FleetError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
func (e *FleetError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
// Returns true if target is a FleetError with the same Code.
func (e *FleetError) Is(target error) bool {
	var fleetErr *FleetError
	if errors.As(target, &fleetErr) {
		return e.Code == fleetErr.Code
	}
	return false
}

// NewError creates a new non-retryable FleetError with the given code and message.
func NewError(code ErrorCode, message string) *FleetError {
	return &FleetError{
		Code:    code,
		Message: message,
	}
}

// NewRetryableError creates a new retryable FleetError with the given code
// and message. Use this for transient errors that may succeed on retry.
func NewRetryableError(code ErrorCode, message string) *FleetError {
	return &FleetError{
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// WrapError creates a new non-retryable FleetError that wraps an existing error.
// The wrapped error is accessible via Unwrap() for error chain inspection.
func WrapError(code ErrorCode, message string, cause error) *FleetError {
	return &FleetError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRetryable reports whether err carries a retryable hint anywhere in its chain.
func IsRetryable(err error) bool {
	var fleetErr *FleetError
	if errors.As(err, &fleetErr) {
		return fleetErr.Retryable
	}
	return false
}
