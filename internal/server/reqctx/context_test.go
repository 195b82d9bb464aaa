package reqctx

import (
	"net/http"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"X-Forwarded-For single", map[string]string{"X-Forwarded-For": "203.0.113.195"}, "127.0.0.1:8080", "203.0.113.195"},
		{"X-Forwarded-For chain", map[string]string{"X-Forwarded-For": "203.0.113.195, 70.41.3.18"}, "127.0.0.1:8080", "203.0.113.195"},
		{"X-Forwarded-For spaces", map[string]string{"X-Forwarded-For": "  203.0.113.195  "}, "127.0.0.1:8080", "203.0.113.195"},
		{"X-Real-IP", map[string]string{"X-Real-IP": "203.0.113.7"}, "127.0.0.1:8080", "203.0.113.7"},
		{"X-Forwarded-For wins", map[string]string{"X-Forwarded-For": "203.0.113.195", "X-Real-IP": "10.0.0.1"}, "127.0.0.1:8080", "203.0.113.195"},
		{"RemoteAddr with port", nil, "192.168.1.1:12345", "192.168.1.1"},
		{"RemoteAddr without port", nil, "192.168.1.1", "192.168.1.1"},
		{"IPv6 RemoteAddr with port", nil, "[::1]:8080", "::1"},
		{"IPv6 RemoteAddr without port", nil, "2001:db8::1", "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, "/", http.NoBody)
			if err != nil {
				t.Fatal(err)
			}
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := GetClientIP(req); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContextValues(t *testing.T) {
	ctx := t.Context()
	if User(ctx) != "" || ClientIP(ctx) != "" || CountryCode(ctx) != "" || UserAgent(ctx) != "" {
		t.Error("expected empty values")
	}
	ctx = WithUser(ctx, "alice")
	ctx = WithClientIP(ctx, "1.2.3.4")
	ctx = WithCountryCode(ctx, "CA")
	ctx = WithUserAgent(ctx, "curl")
	if User(ctx) != "alice" || ClientIP(ctx) != "1.2.3.4" || CountryCode(ctx) != "CA" || UserAgent(ctx) != "curl" {
		t.Error("values not carried")
	}
}
