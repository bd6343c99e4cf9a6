// Package errors defines the service error taxonomy shared by every HTTP-facing component.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable, machine-readable error identifier.
type ErrorCode string

const (
	CodeInvalidArgument   ErrorCode = "INVALID_ARGUMENT"
	CodeInvalidFormat     ErrorCode = "INVALID_FORMAT"
	CodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	CodeInvalidToken      ErrorCode = "INVALID_TOKEN"
	CodeForbidden         ErrorCode = "FORBIDDEN"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeInternal          ErrorCode = "INTERNAL_ERROR"
)

// ServiceError carries an HTTP status and a client-safe message. The wrapped
// cause is kept for logging and is never serialized.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a detail entry and returns the same error for chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newError(code ErrorCode, status int, message string, cause error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
		Err:        cause,
	}
}

// InvalidArgument reports a malformed or missing request parameter.
func InvalidArgument(message string) *ServiceError {
	return newError(CodeInvalidArgument, http.StatusBadRequest, message, nil)
}

// InvalidFormat reports a field that does not match the expected format.
func InvalidFormat(field, expected string) *ServiceError {
	return newError(CodeInvalidFormat, http.StatusBadRequest, fmt.Sprintf("Invalid format for %s", field), nil).
		WithDetails("field", field).
		WithDetails("expected", expected)
}

// Unauthorized reports a missing or unusable credential.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "Unauthorized"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

// InvalidToken reports a credential that failed verification.
func InvalidToken(cause error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, "Invalid or expired token", cause)
}

// Forbidden reports an authenticated caller without sufficient privilege.
func Forbidden(message string) *ServiceError {
	if message == "" {
		message = "Forbidden"
	}
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

// NotFound reports that no row matched.
func NotFound(resource string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// Conflict reports a write that collided with current state.
func Conflict(message string) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, message, nil)
}

// RateLimitExceeded reports a throttled caller.
func RateLimitExceeded(limit float64, window string) *ServiceError {
	return newError(CodeRateLimitExceeded, http.StatusTooManyRequests, "Rate limit exceeded", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *ServiceError {
	if message == "" {
		message = "Internal server error"
	}
	return newError(CodeInternal, http.StatusInternalServerError, message, cause)
}

// GetServiceError returns the first ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var serviceErr *ServiceError
	if stderrors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	serviceErr := GetServiceError(err)
	return serviceErr != nil && serviceErr.Code == code
}
