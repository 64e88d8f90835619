package types

import (
	"fmt"
	"net/http"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers and repositories use these instead of
// hardcoded strings so the API error envelope stays stable.
const (
	// Validation (400)
	ErrCodeValidationInvalidCron   ErrorCode = "validation_invalid_cron"
	ErrCodeValidationInvalidURL    ErrorCode = "validation_invalid_callback_url"
	ErrCodeValidationInvalidMethod ErrorCode = "validation_invalid_http_method"
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationBadPayload    ErrorCode = "validation_malformed_payload"

	// Not Found (404)
	ErrCodeNotFoundSchedule ErrorCode = "not_found_schedule"

	// Internal/Infrastructure (500/502)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeBrokerUnavailable  ErrorCode = "broker_unavailable"
	ErrCodeCacheUnavailable   ErrorCode = "cache_unavailable"
)

// AppError is the application error type carrying a stable code, a
// human-readable message, and the wrapped cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// NewAppError creates an AppError wrapping an optional cause.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error code to an HTTP response status.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeValidationInvalidCron,
		ErrCodeValidationInvalidURL,
		ErrCodeValidationInvalidMethod,
		ErrCodeValidationMissingField,
		ErrCodeValidationBadPayload:
		return http.StatusBadRequest
	case ErrCodeNotFoundSchedule:
		return http.StatusNotFound
	case ErrCodeBrokerUnavailable, ErrCodeCacheUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
