package handlers

import (
	"context"

	"github.com/maruel/rdlindex/internal/server/dto"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	Svc     *Services
	version string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(svc *Services, version string) *HealthHandler {
	return &HealthHandler{Svc: svc, version: version}
}

// Health reports the server version and the number of rows in the dataset.
func (h *HealthHandler) Health(_ context.Context, _ *dto.HealthRequest) (*dto.HealthResponse, error) {
	return &dto.HealthResponse{
		Status:  "ok",
		Version: h.version,
		Rows:    h.Svc.Store.View().Len(),
	}, nil
}
