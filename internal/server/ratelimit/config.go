// Maps routes to rate limit tiers.

package ratelimit

import (
	"net/http"
	"time"

	"github.com/maruel/rdlindex/internal/storage"
)

// Scope defines how rate limit keys are determined.
type Scope int

const (
	// ScopeIP uses the client IP address as the rate limit key.
	ScopeIP Scope = iota
	// ScopeUser uses the authenticated username as the rate limit key, and
	// falls back to the client IP when authentication is disabled.
	ScopeUser
)

// Tier defines a rate limit tier with its limiter and scope.
type Tier struct {
	Name    string
	Limiter *Limiter
	Scope   Scope
}

// Limiters holds the tiers. A nil tier is unlimited.
type Limiters struct {
	Login  *Tier
	Upload *Tier
	Read   *Tier
}

// New creates the tiers from per-minute limits. A zero limit disables the
// tier.
func New(cfg storage.RateLimits) *Limiters {
	return &Limiters{
		Login:  newTier("login", cfg.LoginRatePerMin, max(cfg.LoginRatePerMin, 1), ScopeIP),
		Upload: newTier("upload", cfg.UploadRatePerMin, max(cfg.UploadRatePerMin/6, 1), ScopeUser),
		Read:   newTier("read", cfg.ReadRatePerMin, max(cfg.ReadRatePerMin/6, 1), ScopeUser),
	}
}

func newTier(name string, perMin, burst int, scope Scope) *Tier {
	if perMin <= 0 {
		return nil
	}
	return &Tier{Name: name, Limiter: NewLimiter(perMin, time.Minute, burst), Scope: scope}
}

// Match returns the tier for a request, or nil when it is not rate limited.
func (l *Limiters) Match(method, path string) *Tier {
	if l == nil {
		return nil
	}
	switch {
	case path == "/health":
		return nil
	case method == http.MethodPost && path == "/login":
		return l.Login
	case method == http.MethodPost && path == "/upload":
		return l.Upload
	case method == http.MethodGet:
		return l.Read
	}
	return nil
}

// Close stops all limiter cleanup goroutines.
func (l *Limiters) Close() {
	for _, t := range []*Tier{l.Login, l.Upload, l.Read} {
		if t != nil {
			t.Limiter.Close()
		}
	}
}
