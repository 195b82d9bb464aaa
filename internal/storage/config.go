// Manages server configuration stored in server_config.json.

package storage

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ConfigFile is the name of the server configuration file in the data
// directory.
const ConfigFile = "server_config.json"

// ServerConfig stores all server-wide configuration.
// Loaded from server_config.json, created with defaults if missing.
type ServerConfig struct {
	// JWTSecret is the secret used to sign session tokens.
	// Auto-generated if empty on first load.
	JWTSecret []byte `json:"jwt_secret"`

	Quotas Quotas `json:"quotas"`

	RateLimits RateLimits `json:"rate_limits"`
}

// Quotas defines resource limits.
type Quotas struct {
	// MaxUploadBytes limits the size of an uploaded spreadsheet.
	MaxUploadBytes int64 `json:"max_upload_bytes"`

	// MaxSearchResults caps the number of rows returned by a search.
	// 0 means unlimited.
	MaxSearchResults int `json:"max_search_results"`
}

// Validate checks that quota values are usable.
func (q *Quotas) Validate() error {
	if q.MaxUploadBytes <= 0 {
		return errors.New("max_upload_bytes must be positive")
	}
	if q.MaxSearchResults < 0 {
		return errors.New("max_search_results must be non-negative")
	}
	return nil
}

// DefaultQuotas returns the default quotas.
func DefaultQuotas() Quotas {
	return Quotas{
		MaxUploadBytes: 32 * 1024 * 1024, // 32 MiB
	}
}

// RateLimits defines rate limiting configuration (requests per minute).
// 0 means unlimited.
type RateLimits struct {
	LoginRatePerMin  int `json:"login_rate_per_min"`
	UploadRatePerMin int `json:"upload_rate_per_min"`
	ReadRatePerMin   int `json:"read_rate_per_min"`
}

// Validate checks that rate limit values are non-negative.
func (r *RateLimits) Validate() error {
	if r.LoginRatePerMin < 0 {
		return errors.New("login_rate_per_min must be non-negative")
	}
	if r.UploadRatePerMin < 0 {
		return errors.New("upload_rate_per_min must be non-negative")
	}
	if r.ReadRatePerMin < 0 {
		return errors.New("read_rate_per_min must be non-negative")
	}
	return nil
}

// DefaultRateLimits returns the default rate limits.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		LoginRatePerMin:  5,
		UploadRatePerMin: 30,
		ReadRatePerMin:   6000,
	}
}

// Validate checks that the configuration is valid.
func (c *ServerConfig) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 bytes")
	}
	if err := c.Quotas.Validate(); err != nil {
		return fmt.Errorf("quotas: %w", err)
	}
	if err := c.RateLimits.Validate(); err != nil {
		return fmt.Errorf("rate_limits: %w", err)
	}
	return nil
}

// LoadServerConfig loads configuration from dataDir/server_config.json.
// Creates the file with defaults if it doesn't exist and generates a JWT
// secret if empty.
func LoadServerConfig(dataDir string) (*ServerConfig, error) {
	path := filepath.Join(dataDir, ConfigFile)
	cfg := ServerConfig{Quotas: DefaultQuotas(), RateLimits: DefaultRateLimits()}

	modified := false
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir
	switch {
	case errors.Is(err, fs.ErrNotExist):
		modified = true
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", ConfigFile, err)
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", ConfigFile, err)
		}
	}
	if len(cfg.JWTSecret) == 0 {
		cfg.JWTSecret = make([]byte, 32)
		if _, err := rand.Read(cfg.JWTSecret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		modified = true
	}
	if modified {
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ConfigFile, err)
	}
	return &cfg, nil
}

// Save saves configuration to dataDir/server_config.json.
func (c *ServerConfig) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, ConfigFile), data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", ConfigFile, err)
	}
	return nil
}
