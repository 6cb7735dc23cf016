package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/finlab/backend/internal/auth"
)

// AuthFlows is the slice of the auth service the handlers consume.
type AuthFlows interface {
	Login(ctx context.Context, username, password, ip, userAgent string) (*auth.LoginResult, error)
	Logout(ctx context.Context, token, ip, userAgent string) error
	Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*auth.LoginResult, error)
}

// AuthHandler serves /api/auth/*.
type AuthHandler struct {
	flows    AuthFlows
	validate *validator.Validate
	logger   *slog.Logger
}

// NewAuthHandler wires the auth endpoints.
func NewAuthHandler(flows AuthFlows, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		flows:    flows,
		validate: validator.New(),
		logger:   logger,
	}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		details := validationMessages(err, map[string]string{
			"Username": "username",
			"Password": "password",
		})
		writeFieldErrors(w, "Validation failed", details)
		return
	}

	ip, ua := ClientIP(r), UserAgent(r)
	h.logger.Info("login request", "user", req.Username, "ip", ip)

	result, err := h.flows.Login(r.Context(), req.Username, req.Password, ip, ua)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse(result))
}

// Logout handles POST /api/auth/logout. Requires a bearer token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := BearerToken(r)
	ip, ua := ClientIP(r), UserAgent(r)

	if token == "" {
		h.logger.Warn("logout without token", "ip", ip)
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status":  "error",
			"message": "Authorization header is required",
		})
		return
	}

	if err := h.flows.Logout(r.Context(), token, ip, ua); err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Logged out successfully",
	})
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeFieldErrors(w, "Validation failed", map[string]string{
			"refreshToken": "Refresh token is required",
		})
		return
	}

	ip, ua := ClientIP(r), UserAgent(r)
	h.logger.Info("token refresh request", "ip", ip)

	result, err := h.flows.Refresh(r.Context(), req.RefreshToken, ip, ua)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse(result))
}

func loginResponse(result *auth.LoginResult) LoginResponse {
	return LoginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    result.ExpiresInMs,
	}
}

func (h *AuthHandler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrAccountInactive),
		errors.Is(err, auth.ErrAccountLocked),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenRevoked):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrAuthUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("unexpected auth failure", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
