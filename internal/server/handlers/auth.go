package handlers

import (
	"context"
	"log/slog"

	"github.com/maruel/rdlindex/internal/server/dto"
	"github.com/maruel/rdlindex/internal/server/reqctx"
)

// AuthHandler handles login and logout.
type AuthHandler struct {
	Svc *Services
	Cfg *Config
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc *Services, cfg *Config) *AuthHandler {
	return &AuthHandler{Svc: svc, Cfg: cfg}
}

// Login checks the credentials and issues a session token.
func (h *AuthHandler) Login(ctx context.Context, req *dto.LoginRequest) (*dto.LoginResponse, error) {
	if err := h.Svc.Credentials.Authenticate(req.Username, req.Password); err != nil {
		slog.WarnContext(ctx, "Login failed", "user", req.Username, "ip", reqctx.ClientIP(ctx), "err", err)
		return nil, ToAPIError(err)
	}
	token, exp, err := h.Svc.Tokens.Issue(req.Username)
	if err != nil {
		return nil, dto.InternalWithError("Failed to issue token", err)
	}
	slog.InfoContext(ctx, "Login", "user", req.Username)
	return &dto.LoginResponse{
		Username:  req.Username,
		Token:     token,
		ExpiresAt: exp,
		Secure:    h.Cfg.SecureCookies,
	}, nil
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(_ context.Context, _ *dto.LogoutRequest) (*dto.LogoutResponse, error) {
	return &dto.LogoutResponse{OkResponse: dto.OkResponse{Ok: true}}, nil
}
