// Upload, search and download of the dataset.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/maruel/rdlindex/internal/search"
	"github.com/maruel/rdlindex/internal/server/dto"
	"github.com/maruel/rdlindex/internal/server/reqctx"
	"github.com/maruel/rdlindex/internal/storage"
)

// xlsxContentType is the media type of .xlsx files.
const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// multipartMemory is how much of a multipart upload is kept in memory before
// spilling to a temporary file.
const multipartMemory = 8 << 20

// DatasetHandler serves the dataset endpoints.
type DatasetHandler struct {
	Svc *Services
	Cfg *Config
}

// NewDatasetHandler creates a DatasetHandler.
func NewDatasetHandler(svc *Services, cfg *Config) *DatasetHandler {
	return &DatasetHandler{Svc: svc, Cfg: cfg}
}

// Upload merges the spreadsheet in the multipart field "file" into the
// dataset. This is a raw http.HandlerFunc because it handles multipart forms.
func (h *DatasetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeErrorResponse(w, r, err)
			return
		}
		writeErrorResponse(w, r, dto.MissingField("file").Wrap(err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErrorResponse(w, r, dto.MissingField("file").Wrap(err))
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.ErrorContext(r.Context(), "Failed to close uploaded file", "err", err)
		}
	}()
	if header.Filename == "" {
		writeErrorResponse(w, r, dto.BadRequest("No selected file"))
		return
	}

	ctx := r.Context()
	res, err := h.Svc.Store.IngestUpload(ctx, file, storage.IngestMeta{
		User:     reqctx.User(ctx),
		Filename: header.Filename,
		Country:  reqctx.CountryCode(ctx),
	})
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	msg := "File uploaded and data merged successfully"
	if res.Bootstrap {
		msg = "File uploaded and dataset created"
	}
	writeJSON(w, r, &dto.UploadResponse{
		Message:      msg,
		RowsAppended: res.RowsAppended,
		Bootstrap:    res.Bootstrap,
		TotalRows:    res.TotalRows,
	})
}

// Search returns the rows matching the query.
func (h *DatasetHandler) Search(_ context.Context, req *dto.SearchRequest) (*dto.SearchResponse, error) {
	rows := search.Search(req.Query, h.Svc.Store.View())
	resp := &dto.SearchResponse{Results: rows}
	if n := h.Cfg.Quotas.MaxSearchResults; n > 0 && len(rows) > n {
		resp.Results = rows[:n]
		resp.Truncated = true
	}
	return resp, nil
}

// DownloadExcel streams the master workbook as an attachment.
func (h *DatasetHandler) DownloadExcel(w http.ResponseWriter, r *http.Request) {
	f, err := h.Svc.Store.Open()
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	defer func() { _ = f.Close() }()
	fi, err := f.Stat()
	if err != nil {
		writeErrorResponse(w, r, dto.StorageError("Failed to read the dataset", err))
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", storage.MasterFile))
	http.ServeContent(w, r, storage.MasterFile, fi.ModTime(), f)
}
