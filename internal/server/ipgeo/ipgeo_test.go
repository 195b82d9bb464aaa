package ipgeo

import (
	"path/filepath"
	"testing"
)

func TestCountryCodeWithoutDatabase(t *testing.T) {
	var nilChecker *Checker
	for _, c := range []*Checker{nilChecker, {}} {
		tests := []struct {
			ip   string
			want string
		}{
			{"127.0.0.1", Local},
			{"::1", Local},
			{"::ffff:10.0.0.1", Local},
			{"192.168.1.1", Local},
			{"172.16.0.1", Local},
			{"0.0.0.0", Local},
			{"169.254.1.1", Local},
			{"fe80::1", Local},
			{"100.64.0.1", Tailscale},
			{"100.127.255.254", Tailscale},
			{"100.128.0.0", ""},
			{"8.8.8.8", ""},
			{"not-an-ip", ""},
		}
		for _, tt := range tests {
			if got := c.CountryCode(tt.ip); got != tt.want {
				t.Errorf("CountryCode(%q) = %q, want %q", tt.ip, got, tt.want)
			}
		}
		if err := c.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.mmdb")); err == nil {
		t.Error("expected error")
	}
}
