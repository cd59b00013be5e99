package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeValidationInvalidLat,
		Message: "latitude 91.000000 outside [-90, 90]",
	}

	expected := "validation_invalid_latitude: latitude 91.000000 outside [-90, 90]"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("connection reset by peer")
	appErr := NewAppError(ErrCodeUpstreamUnavailable, "best server request failed", underlying)

	if !errors.Is(appErr, underlying) {
		t.Errorf("errors.Is should find the underlying error")
	}

	wrapped := fmt.Errorf("point 1001: %w", appErr)
	var target *AppError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should find AppError in the chain")
	}
	if target.Code != ErrCodeUpstreamUnavailable {
		t.Errorf("extracted Code = %q, want %q", target.Code, ErrCodeUpstreamUnavailable)
	}
}

func TestErrorCodeClass(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want ErrorClass
	}{
		{ErrCodeUpstreamUnavailable, ClassTransient},
		{ErrCodeUpstreamRateLimited, ClassTransient},
		{ErrCodeUpstreamCircuitOpen, ClassTransient},
		{ErrCodeCacheWrite, ClassTransient},
		{ErrCodeParseMalformedJSON, ClassMalformed},
		{ErrCodeParseMissingKey, ClassMalformed},
		{ErrCodeCacheMissing, ClassMissing},
		{ErrCodeCacheUnreadable, ClassMissing},
		{ErrCodeValidationMissingField, ClassFatal},
		{ErrCodeInternalIO, ClassFatal},
		{ErrorCode("something_new"), ClassFatal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.Class(); got != tt.want {
				t.Errorf("Class() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppErrorWithDetailsDoesNotMutate(t *testing.T) {
	original := NewAppErrorWithDetails(ErrCodeParseMissingKey, "missing Transmitters", nil,
		map[string]any{"point_id": "1001"})

	enriched := original.WithDetails(map[string]any{"key": "Transmitters"})

	if len(original.Details) != 1 {
		t.Errorf("original details mutated: %v", original.Details)
	}
	if enriched.Details["point_id"] != "1001" || enriched.Details["key"] != "Transmitters" {
		t.Errorf("enriched details = %v", enriched.Details)
	}
}
