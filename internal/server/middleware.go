package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/maruel/rdlindex/internal/server/ipgeo"
	"github.com/maruel/rdlindex/internal/server/reqctx"
)

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += int64(n)
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// addRequestMetadataToContext adds the client IP, User-Agent and country to
// the context.
func addRequestMetadataToContext(ctx context.Context, r *http.Request, geo *ipgeo.Checker) context.Context {
	ip := reqctx.GetClientIP(r)
	ctx = reqctx.WithClientIP(ctx, ip)
	ctx = reqctx.WithUserAgent(ctx, r.Header.Get("User-Agent"))
	if cc := geo.CountryCode(ip); cc != "" {
		ctx = reqctx.WithCountryCode(ctx, cc)
	}
	return ctx
}

// logRequests adds request metadata to the context and logs every request
// once it completes.
func logRequests(next http.Handler, geo *ipgeo.Checker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := addRequestMetadataToContext(r.Context(), r, geo)
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		slog.InfoContext(ctx, "http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"dur", time.Since(start).Round(time.Millisecond),
			"ip", reqctx.ClientIP(ctx),
			"country", reqctx.CountryCode(ctx))
	})
}
