package handlers

import (
	"context"
	"time"

	"github.com/maruel/rdlindex/internal/server/dto"
)

// defaultHistoryLimit is used when the request does not set a limit.
const defaultHistoryLimit = 50

// HistoryHandler lists past ingestions.
type HistoryHandler struct {
	Svc *Services
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(svc *Services) *HistoryHandler {
	return &HistoryHandler{Svc: svc}
}

// History returns the most recent ingestions and dataset revisions.
func (h *HistoryHandler) History(ctx context.Context, req *dto.HistoryRequest) (*dto.HistoryResponse, error) {
	limit := req.Limit
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	resp := &dto.HistoryResponse{Ingestions: []dto.Ingestion{}}
	if h.Svc.Ingestions != nil {
		for _, rec := range h.Svc.Ingestions.List(limit) {
			resp.Ingestions = append(resp.Ingestions, dto.Ingestion{
				ID:           rec.ID.String(),
				Time:         rec.Time.Format(time.RFC3339),
				User:         rec.User,
				Filename:     rec.Filename,
				RowsAppended: rec.RowsAppended,
				Bootstrap:    rec.Bootstrap,
				Country:      rec.Country,
			})
		}
	}
	if h.Svc.History != nil {
		commits, err := h.Svc.History.Log(ctx, limit)
		if err != nil {
			return nil, dto.StorageError("Failed to read dataset history", err)
		}
		for _, c := range commits {
			resp.Commits = append(resp.Commits, dto.Commit{
				Hash:    c.Hash,
				Author:  c.Author,
				Message: c.Message,
				Time:    c.When.Format(time.RFC3339),
			})
		}
	}
	return resp, nil
}
