// Package errors defines the service error taxonomy.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of service error.
type ErrorCode string

const (
	CodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	CodeForbidden          ErrorCode = "FORBIDDEN"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeValidation         ErrorCode = "VALIDATION_FAILED"
	CodeInsufficientPoints ErrorCode = "INSUFFICIENT_POINTS"
	CodeTransientAuth      ErrorCode = "TRANSIENT_AUTH"
	CodeConflict           ErrorCode = "CONFLICT"
	CodeRateLimited        ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeInternal           ErrorCode = "INTERNAL"
)

// ServiceError is the error type surfaced at operation boundaries.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *ServiceError) Unwrap() error {
	return e.cause
}

// WithDetails attaches a key/value pair to the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Unauthorized indicates a missing or invalid credential.
func Unauthorized(message string) *ServiceError {
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// InvalidToken indicates a token that failed validation.
func InvalidToken(cause error) *ServiceError {
	return &ServiceError{Code: CodeUnauthorized, Message: "invalid token", HTTPStatus: http.StatusUnauthorized, cause: cause}
}

// Forbidden indicates the caller lacks the required role.
func Forbidden(message string) *ServiceError {
	return &ServiceError{Code: CodeForbidden, Message: message, HTTPStatus: http.StatusForbidden}
}

// NotFound indicates a missing resource.
func NotFound(resource, id string) *ServiceError {
	return &ServiceError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s %s not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// Validation indicates a request rejected before any mutation.
func Validation(message string) *ServiceError {
	return &ServiceError{Code: CodeValidation, Message: message, HTTPStatus: http.StatusBadRequest}
}

// InsufficientPoints indicates a redemption exceeding the caller's balance.
func InsufficientPoints(balance, price int) *ServiceError {
	return &ServiceError{
		Code:       CodeInsufficientPoints,
		Message:    "insufficient point balance",
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]interface{}{"balance": balance, "price": price},
	}
}

// TransientAuth indicates an auth-propagation lag from the managed store.
// These are the only errors the fetch guard retries.
func TransientAuth(cause error) *ServiceError {
	return &ServiceError{
		Code:       CodeTransientAuth,
		Message:    "credential not yet propagated",
		HTTPStatus: http.StatusUnauthorized,
		cause:      cause,
	}
}

// Conflict indicates a state transition attempted on stale data, such as
// consuming an already-used coupon.
func Conflict(message string) *ServiceError {
	return &ServiceError{Code: CodeConflict, Message: message, HTTPStatus: http.StatusConflict}
}

// RateLimitExceeded indicates too many requests from one caller.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return &ServiceError{
		Code:       CodeRateLimited,
		Message:    "rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
		Details:    map[string]interface{}{"limit": limit, "window": window},
	}
}

// Internal wraps an unexpected failure.
func Internal(message string, cause error) *ServiceError {
	return &ServiceError{Code: CodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, cause: cause}
}

// GetServiceError extracts a *ServiceError from an error chain, or nil.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}

// IsTransientAuth reports whether err belongs to the retryable
// not-yet-authorized class.
func IsTransientAuth(err error) bool {
	svcErr := GetServiceError(err)
	return svcErr != nil && svcErr.Code == CodeTransientAuth
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	svcErr := GetServiceError(err)
	return svcErr != nil && svcErr.Code == code
}
