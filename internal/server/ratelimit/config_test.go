package ratelimit

import (
	"net/http"
	"testing"

	"github.com/maruel/rdlindex/internal/storage"
)

func TestLimitersMatch(t *testing.T) {
	l := New(storage.DefaultRateLimits())
	defer l.Close()
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodPost, "/login", "login"},
		{http.MethodPost, "/upload", "upload"},
		{http.MethodGet, "/search", "read"},
		{http.MethodGet, "/download-excel", "read"},
		{http.MethodGet, "/health", ""},
		{http.MethodPost, "/logout", ""},
	}
	for _, tt := range tests {
		got := ""
		if tier := l.Match(tt.method, tt.path); tier != nil {
			got = tier.Name
		}
		if got != tt.want {
			t.Errorf("Match(%s %s) = %q, want %q", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestLimitersDisabled(t *testing.T) {
	l := New(storage.RateLimits{})
	defer l.Close()
	if tier := l.Match(http.MethodPost, "/login"); tier != nil {
		t.Errorf("expected no tier, got %q", tier.Name)
	}
	var nilLimiters *Limiters
	if nilLimiters.Match(http.MethodGet, "/search") != nil {
		t.Error("nil Limiters must not limit")
	}
}

func TestBuildKey(t *testing.T) {
	if got := BuildKey(ScopeIP, "1.2.3.4", "login"); got != "ip:1.2.3.4:login" {
		t.Errorf("BuildKey = %q", got)
	}
	if got := BuildKey(ScopeUser, "alice", "read"); got != "user:alice:read" {
		t.Errorf("BuildKey = %q", got)
	}
}
