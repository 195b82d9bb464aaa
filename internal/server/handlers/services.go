// Package handlers implements the HTTP endpoints.
package handlers

import (
	"github.com/maruel/rdlindex/internal/identity"
	"github.com/maruel/rdlindex/internal/reports"
	"github.com/maruel/rdlindex/internal/storage"
	"github.com/maruel/rdlindex/internal/storage/git"
)

// Services holds the dependencies of the handlers.
type Services struct {
	Store       *storage.Store
	Ingestions  *storage.IngestionLog // may be nil
	History     *git.Repo             // may be nil
	Reports     *reports.Dir
	Credentials *identity.Credentials
	Tokens      *identity.Tokens
}

// Config holds configuration values needed by handlers.
type Config struct {
	Version string
	Quotas  storage.Quotas
	// SecureCookies marks the session cookie Secure. Set when served over
	// HTTPS.
	SecureCookies bool
}
