package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestConstructors_StatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantType   ErrorType
		wantStatus int
	}{
		{"validation", NewValidationError("bad", nil), ErrorTypeValidation, http.StatusBadRequest},
		{"network", NewNetworkError("down", nil), ErrorTypeNetwork, http.StatusBadGateway},
		{"timeout", NewTimeoutError("slow", nil), ErrorTypeTimeout, http.StatusGatewayTimeout},
		{"not found", NewNotFoundError("gone", nil), ErrorTypeNotFound, http.StatusNotFound},
		{"rate limited", NewRateLimitError("slow down"), ErrorTypeRateLimited, http.StatusTooManyRequests},
		{"decode", NewDecodeError("bad bytes", nil), ErrorTypeDecode, http.StatusUnprocessableEntity},
		{"no region", NewNoUsableRegionError("empty"), ErrorTypeNoUsableRegion, http.StatusUnprocessableEntity},
		{"degenerate", NewDegenerateColorError("blue"), ErrorTypeDegenerateColor, http.StatusUnprocessableEntity},
		{"stage", NewInternalStageError("classify", nil), ErrorTypeInternalStageFailure, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.wantType {
				t.Errorf("Expected type %s, got %s", tt.wantType, tt.err.Type)
			}
			if GetStatusCode(tt.err) != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, GetStatusCode(tt.err))
			}
		})
	}
}

func TestIsType_WrappedError(t *testing.T) {
	base := NewDecodeError("not an image", nil)
	wrapped := fmt.Errorf("upload: %w", base)

	if !IsType(wrapped, ErrorTypeDecode) {
		t.Error("Expected wrapped error to match decode_error")
	}
	if IsType(wrapped, ErrorTypeNetwork) {
		t.Error("Expected wrapped error not to match network")
	}
	if GetStatusCode(wrapped) != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 through wrapping, got %d", GetStatusCode(wrapped))
	}
	if TypeOf(fmt.Errorf("plain")) != ErrorTypeInternal {
		t.Error("Expected foreign errors to map to internal")
	}
}

func TestAppError_UnwrapAndDetails(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := NewInternalStageError("lighting", cause)

	if err.Unwrap() != cause {
		t.Error("Expected Unwrap to return the cause")
	}
	detailed := err.WithDetails("tile %d", 3)
	if detailed.Details != "tile 3" {
		t.Errorf("Expected details 'tile 3', got %q", detailed.Details)
	}
	if err.Details != "" {
		t.Error("Expected WithDetails not to mutate the original")
	}
}
