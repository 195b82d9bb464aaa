package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/maruel/rdlindex/internal/identity"
	"github.com/maruel/rdlindex/internal/reports"
	"github.com/maruel/rdlindex/internal/server/dto"
	"github.com/maruel/rdlindex/internal/storage"
	"github.com/maruel/rdlindex/internal/workbook"
)

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   dto.ErrorCode
	}{
		{"unsupported", fmt.Errorf("%w: a.csv", workbook.ErrUnsupported), http.StatusBadRequest, dto.ErrorCodeInvalidFormat},
		{"corrupt", fmt.Errorf("%w: zip: not a valid zip file", workbook.ErrCorrupt), http.StatusBadRequest, dto.ErrorCodeCorruptFile},
		{"io", fmt.Errorf("%w: disk full", workbook.ErrIO), http.StatusInternalServerError, dto.ErrorCodeStorageError},
		{"too large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, dto.ErrorCodePayloadTooLarge},
		{"no dataset", storage.ErrNotFound, http.StatusNotFound, dto.ErrorCodeFileNotFound},
		{"no report", reports.ErrNotFound, http.StatusNotFound, dto.ErrorCodeNotFound},
		{"bad password", identity.ErrInvalidCredentials, http.StatusUnauthorized, dto.ErrorCodeUnauthorized},
		{"no credentials", identity.ErrNoCredentials, http.StatusNotFound, dto.ErrorCodeNotFound},
		{"passthrough", dto.MissingField("file"), http.StatusBadRequest, dto.ErrorCodeMissingField},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, dto.ErrorCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ews dto.ErrorWithStatus
			if !errors.As(ToAPIError(tt.err), &ews) {
				t.Fatalf("ToAPIError(%v) has no status", tt.err)
			}
			if ews.StatusCode() != tt.status || ews.Code() != tt.code {
				t.Errorf("got %d %s, want %d %s", ews.StatusCode(), ews.Code(), tt.status, tt.code)
			}
		})
	}
	if ToAPIError(nil) != nil {
		t.Error("ToAPIError(nil) != nil")
	}
}
