// Package server implements the HTTP server and routing logic.
package server

import (
	"net/http"

	"github.com/maruel/rdlindex/internal/server/handlers"
	"github.com/maruel/rdlindex/internal/server/ipgeo"
	"github.com/maruel/rdlindex/internal/server/ratelimit"
)

// Config holds server configuration.
type Config struct {
	handlers.Config
	Limiters *ratelimit.Limiters // nil disables rate limiting
	IPGeo    *ipgeo.Checker      // nil only classifies local addresses
}

// NewRouter creates and configures the HTTP router.
func NewRouter(svc *handlers.Services, cfg *Config) http.Handler {
	mux := &http.ServeMux{}
	dh := handlers.NewDatasetHandler(svc, &cfg.Config)
	rh := handlers.NewReportHandler(svc)
	ah := handlers.NewAuthHandler(svc, &cfg.Config)
	hh := handlers.NewHistoryHandler(svc)
	health := handlers.NewHealthHandler(svc, cfg.Version)

	// Dataset
	mux.Handle("POST /upload", WrapRaw(dh.Upload, svc, cfg, true, cfg.Quotas.MaxUploadBytes))
	mux.Handle("GET /search", WrapAuth(dh.Search, svc, cfg))
	mux.Handle("GET /download-excel", WrapRaw(dh.DownloadExcel, svc, cfg, false, 0))
	mux.Handle("GET /history", WrapAuth(hh.History, svc, cfg))

	// Reports
	mux.Handle("GET /download/{name...}", WrapRaw(rh.Download, svc, cfg, false, 0))

	// Session
	mux.Handle("POST /login", Wrap(ah.Login, cfg))
	mux.Handle("POST /logout", Wrap(ah.Logout, cfg))

	mux.Handle("GET /health", Wrap(health.Health, cfg))

	return logRequests(mux, cfg.IPGeo)
}
