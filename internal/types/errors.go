package types

import (
	"fmt"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// Components MUST use these constants instead of hardcoded strings.
const (
	// Validation (fatal configuration)
	ErrCodeValidationInvalidLat    ErrorCode = "validation_invalid_latitude"
	ErrCodeValidationInvalidLon    ErrorCode = "validation_invalid_longitude"
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidField  ErrorCode = "validation_invalid_field"
	ErrCodeValidationInvalidInput  ErrorCode = "validation_invalid_input_file"
	ErrCodeValidationInvalidParams ErrorCode = "validation_invalid_request_parameters"

	// Upstream (transient fetch failures)
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamCircuitOpen ErrorCode = "upstream_circuit_open"
	ErrCodeUpstreamRejected    ErrorCode = "upstream_rejected_request"
	ErrCodeUpstreamPropagation ErrorCode = "upstream_propagation_error"

	// Response documents (malformed responses)
	ErrCodeParseMalformedJSON ErrorCode = "parse_malformed_json"
	ErrCodeParseMissingKey    ErrorCode = "parse_missing_key"
	ErrCodeParseNoReadings    ErrorCode = "parse_no_readings"
	ErrCodeParseServerName    ErrorCode = "parse_unrecognized_server_name"

	// Cache (missing or unreadable documents)
	ErrCodeCacheMissing    ErrorCode = "cache_document_missing"
	ErrCodeCacheUnreadable ErrorCode = "cache_document_unreadable"
	ErrCodeCacheWrite      ErrorCode = "cache_write_failed"

	// Internal
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalIO         ErrorCode = "internal_io_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// ErrorClass is the run-level handling policy attached to an error code.
type ErrorClass string

const (
	// ClassTransient errors are skipped for this run and retried on the next
	// run through the cache-miss path.
	ClassTransient ErrorClass = "transient"
	// ClassMalformed errors produce a sentinel error row.
	ClassMalformed ErrorClass = "malformed"
	// ClassMissing errors drop the point from the output entirely.
	ClassMissing ErrorClass = "missing"
	// ClassFatal errors abort the whole run.
	ClassFatal ErrorClass = "fatal"
)

// Class maps an ErrorCode to its handling policy.
// Returns ClassFatal for unrecognized codes.
func (c ErrorCode) Class() ErrorClass {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "upstream_"):
		return ClassTransient
	case s == string(ErrCodeCacheWrite):
		return ClassTransient
	case strings.HasPrefix(s, "parse_"):
		return ClassMalformed
	case strings.HasPrefix(s, "cache_"):
		return ClassMissing
	default:
		return ClassFatal
	}
}

// AppError is the standard error type used throughout rfcoverage. The
// batcher skips a point on a transient class and aborts the run on a fatal
// one.
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

// Class returns the handling policy for this error.
func (e *AppError) Class() ErrorClass {
	return e.Code.Class()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
