package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Handlers and services use these constants instead of
// hardcoded strings so HTTP mapping and log filtering stay consistent.
const (
	// Validation (400)
	ErrCodeValidationLimitRange   ErrorCode = "validation_limit_out_of_range"
	ErrCodeValidationInvalidID    ErrorCode = "validation_invalid_identifier"
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"

	// Not Found (404)
	ErrCodeNotFoundNote ErrorCode = "not_found_note"
	ErrCodeNotFoundUser ErrorCode = "not_found_user"

	// Conflict (409)
	// ErrCodeReferentialRace marks a write that lost a race against a
	// concurrent deletion of the referenced note. It is recovered locally by
	// the engine and never surfaced to callers.
	ErrCodeReferentialRace ErrorCode = "conflict_referential_race"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamPush       ErrorCode = "upstream_push_unavailable"
	ErrCodeUpstreamRateLimit  ErrorCode = "upstream_rate_limited"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. All domain errors are
// expressed as AppError to enable consistent formatting, HTTP status mapping,
// and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsReferentialRace reports whether the error chain contains a referential
// race (the referenced note vanished between read and write). This is the
// only error class the engine recovers from silently.
func IsReferentialRace(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeReferentialRace
	}
	return false
}

// IsNotFound reports whether the error chain contains a not-found error.
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return strings.HasPrefix(string(appErr.Code), "not_found_")
	}
	return false
}
