package dto

import (
	"errors"
	"net/http"
	"testing"
)

func TestAPIError(t *testing.T) {
	t.Run("NewAPIError", func(t *testing.T) {
		err := NewAPIError(http.StatusNotFound, ErrorCodeNotFound, "resource not found")
		if err.StatusCode() != http.StatusNotFound {
			t.Errorf("StatusCode() = %d", err.StatusCode())
		}
		if err.Code() != ErrorCodeNotFound {
			t.Errorf("Code() = %s", err.Code())
		}
		if err.Error() != "resource not found" {
			t.Errorf("Error() = %q", err.Error())
		}
		if err.Details() == nil {
			t.Error("Details() returned nil")
		}
	})
	t.Run("WithDetails", func(t *testing.T) {
		err := (&APIError{statusCode: http.StatusBadRequest, code: ErrorCodeValidationFailed}).
			WithDetails(map[string]any{"field": "file"}).
			WithDetail("reason", "missing")
		if err.Details()["field"] != "file" || err.Details()["reason"] != "missing" {
			t.Errorf("Details() = %v", err.Details())
		}
	})
	t.Run("Wrap", func(t *testing.T) {
		orig := errors.New("disk full")
		err := StorageError("failed to save", orig)
		if !errors.Is(err, orig) {
			t.Error("wrapped error not found by errors.Is")
		}
		if err.Error() != "failed to save: disk full" {
			t.Errorf("Error() = %q", err.Error())
		}
		if err.Message() != "failed to save" {
			t.Errorf("Message() = %q", err.Message())
		}
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *APIError
		status int
		code   ErrorCode
	}{
		{"NotFound", NotFound("dataset"), http.StatusNotFound, ErrorCodeNotFound},
		{"FileNotFound", FileNotFound("a.rdl"), http.StatusNotFound, ErrorCodeFileNotFound},
		{"BadRequest", BadRequest("x"), http.StatusBadRequest, ErrorCodeValidationFailed},
		{"MissingField", MissingField("file"), http.StatusBadRequest, ErrorCodeMissingField},
		{"InvalidFormat", InvalidFormat("x"), http.StatusBadRequest, ErrorCodeInvalidFormat},
		{"CorruptFile", CorruptFile("x"), http.StatusBadRequest, ErrorCodeCorruptFile},
		{"PayloadTooLarge", PayloadTooLarge(10), http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge},
		{"Unauthorized", Unauthorized(), http.StatusUnauthorized, ErrorCodeUnauthorized},
		{"RateLimitExceeded", RateLimitExceeded(3), http.StatusTooManyRequests, ErrorCodeRateLimitExceeded},
		{"StorageError", StorageError("x", nil), http.StatusInternalServerError, ErrorCodeStorageError},
		{"Internal", Internal("x"), http.StatusInternalServerError, ErrorCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.StatusCode() != tt.status {
				t.Errorf("StatusCode() = %d, want %d", tt.err.StatusCode(), tt.status)
			}
			if tt.err.Code() != tt.code {
				t.Errorf("Code() = %s, want %s", tt.err.Code(), tt.code)
			}
		})
	}
	if got := MissingField("file").Error(); got != "Missing required field: file" {
		t.Errorf("MissingField message = %q", got)
	}
	if got := RateLimitExceeded(3).Details()["retry_after"]; got != 3 {
		t.Errorf("retry_after = %v", got)
	}
}
