// Maps domain errors to API errors.

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/maruel/rdlindex/internal/identity"
	"github.com/maruel/rdlindex/internal/reports"
	"github.com/maruel/rdlindex/internal/server/dto"
	"github.com/maruel/rdlindex/internal/storage"
	"github.com/maruel/rdlindex/internal/workbook"
)

// ToAPIError converts an error returned by the domain packages to an API
// error. Errors that already carry a status are returned unchanged.
func ToAPIError(err error) error {
	if err == nil {
		return nil
	}
	var ews dto.ErrorWithStatus
	if errors.As(err, &ews) {
		return err
	}
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return dto.PayloadTooLarge(maxBytes.Limit).Wrap(err)
	case errors.Is(err, workbook.ErrUnsupported):
		return dto.InvalidFormat("Invalid file format. Only .xls and .xlsx are allowed").Wrap(err)
	case errors.Is(err, workbook.ErrCorrupt):
		return dto.CorruptFile("The uploaded file is not a readable spreadsheet").Wrap(err)
	case errors.Is(err, workbook.ErrIO):
		return dto.StorageError("Failed to update the dataset", err)
	case errors.Is(err, storage.ErrNotFound):
		return dto.FileNotFound(storage.MasterFile).Wrap(err)
	case errors.Is(err, reports.ErrNotFound):
		return dto.NotFound("report").Wrap(err)
	case errors.Is(err, identity.ErrInvalidCredentials):
		return dto.NewAPIError(http.StatusUnauthorized, dto.ErrorCodeUnauthorized, "Invalid username or password").Wrap(err)
	case errors.Is(err, identity.ErrNoCredentials):
		return dto.NotFound("credential table").Wrap(err)
	}
	return dto.InternalWithError("Internal error", err)
}

// writeErrorResponse writes err as a JSON error response.
// Use this in raw http.HandlerFunc handlers that don't use server.Wrap.
func writeErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	err = ToAPIError(err)
	statusCode := http.StatusInternalServerError
	errorCode := dto.ErrorCodeInternal
	message := "internal error"
	var details map[string]any
	var ews dto.ErrorWithStatus
	if errors.As(err, &ews) {
		statusCode = ews.StatusCode()
		errorCode = ews.Code()
		message = ews.Error()
		details = ews.Details()
	}
	var apiErr *dto.APIError
	if errors.As(err, &apiErr) {
		message = apiErr.Message()
	}
	if statusCode >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Handler error", "err", err, "statusCode", statusCode, "code", errorCode)
	} else {
		slog.WarnContext(r.Context(), "Request rejected", "err", err, "statusCode", statusCode, "code", errorCode)
	}
	if len(details) == 0 {
		details = nil
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	resp := dto.ErrorResponse{
		Error:   dto.ErrorDetails{Code: errorCode, Message: message},
		Details: details,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "Failed to encode error response", "err", err)
	}
}

// writeJSON writes v as a 200 JSON response.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "Failed to encode response", "err", err)
	}
}
