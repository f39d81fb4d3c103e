// Package errors defines the failure taxonomy shared by the answer cascade
// and its collaborators.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
)

// ErrorCode classifies why a collaborator call did not produce a result.
type ErrorCode string

const (
	ErrCodeConfiguration    ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeTransport        ErrorCode = "TRANSPORT_ERROR"
	ErrCodeTimeout          ErrorCode = "TIMEOUT"
	ErrCodeRateLimited      ErrorCode = "RATE_LIMITED"
	ErrCodeEmptyResult      ErrorCode = "EMPTY_RESULT"
	ErrCodeBudgetExhausted  ErrorCode = "BUDGET_EXHAUSTED"
	ErrCodeMalformedRequest ErrorCode = "MALFORMED_REQUEST"
)

// AppError is the structured error returned by clients and use cases.
type AppError struct {
	Code      ErrorCode
	Message   string
	Details   string
	Retryable bool
	Err       error
}

func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewConfigurationError reports a missing or invalid setting.
func NewConfigurationError(details string) *AppError {
	return &AppError{
		Code:    ErrCodeConfiguration,
		Message: "invalid configuration",
		Details: details,
	}
}

// NewTransportError wraps a failed outbound call. Deadline errors are
// reported as timeouts so callers can tell the two apart.
func NewTransportError(op string, err error) *AppError {
	if isTimeout(err) {
		return NewTimeoutError(op, err)
	}
	return &AppError{
		Code:    ErrCodeTransport,
		Message: op + " failed",
		Err:     err,
	}
}

// NewStatusError reports a non-success HTTP status from a collaborator.
func NewStatusError(op string, status int) *AppError {
	return &AppError{
		Code:    ErrCodeTransport,
		Message: op + " failed",
		Details: fmt.Sprintf("status %d", status),
	}
}

func NewTimeoutError(op string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeTimeout,
		Message: op + " timed out",
		Err:     err,
	}
}

// NewRateLimitedError is the only retryable failure.
func NewRateLimitedError(op string) *AppError {
	return &AppError{
		Code:      ErrCodeRateLimited,
		Message:   op + " rate limited",
		Details:   "status 429",
		Retryable: true,
	}
}

func NewEmptyResultError(op string) *AppError {
	return &AppError{
		Code:    ErrCodeEmptyResult,
		Message: op + " returned no content",
	}
}

// NewBudgetExhaustedError is returned when a call is skipped because the
// remaining request budget is too small.
func NewBudgetExhaustedError(stage string) *AppError {
	return &AppError{
		Code:    ErrCodeBudgetExhausted,
		Message: stage + " skipped",
		Details: "remaining budget below minimum call budget",
	}
}

func NewMalformedRequestError(details string) *AppError {
	return &AppError{
		Code:    ErrCodeMalformedRequest,
		Message: "malformed request",
		Details: details,
	}
}

// CodeOf returns the code of the first AppError in err's chain. Unknown
// errors are treated as transport failures.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	if isTimeout(err) {
		return ErrCodeTimeout
	}
	return ErrCodeTransport
}

func IsRateLimited(err error) bool {
	return CodeOf(err) == ErrCodeRateLimited
}

func IsConfiguration(err error) bool {
	return CodeOf(err) == ErrCodeConfiguration
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}
