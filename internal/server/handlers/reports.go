package handlers

import (
	"mime"
	"net/http"

	"github.com/maruel/rdlindex/internal/server/dto"
)

// ReportHandler serves report definition files.
type ReportHandler struct {
	Svc *Services
}

// NewReportHandler creates a ReportHandler.
func NewReportHandler(svc *Services) *ReportHandler {
	return &ReportHandler{Svc: svc}
}

// Download streams the report named by the "name" path value.
func (h *ReportHandler) Download(w http.ResponseWriter, r *http.Request) {
	f, name, err := h.Svc.Reports.Open(r.PathValue("name"))
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	defer func() { _ = f.Close() }()
	fi, err := f.Stat()
	if err != nil {
		writeErrorResponse(w, r, dto.StorageError("Failed to read the report", err))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, fi.ModTime(), f)
}
