package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestResponseWriter(t *testing.T) {
	tests := []struct {
		name       string
		result     Result
		retryAfter string
	}{
		{"allowed", Result{Allowed: true, Limit: 60, Remaining: 45, ResetAt: time.Unix(1706012345, 0)}, ""},
		{"limited", Result{Limit: 60, ResetAt: time.Unix(1706012345, 0), RetryAfter: 30 * time.Second}, "30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			w := NewResponseWriter(rec, tt.result)
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte("x"))
			if rec.Code != http.StatusTeapot {
				t.Errorf("status = %d", rec.Code)
			}
			if got := rec.Header().Get("X-RateLimit-Limit"); got != "60" {
				t.Errorf("X-RateLimit-Limit = %q", got)
			}
			if got := rec.Header().Get("X-RateLimit-Reset"); got != "1706012345" {
				t.Errorf("X-RateLimit-Reset = %q", got)
			}
			if got := rec.Header().Get("Retry-After"); got != tt.retryAfter {
				t.Errorf("Retry-After = %q, want %q", got, tt.retryAfter)
			}
		})
	}
}
