package auth

import (
	"context"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/finlab/backend/internal/store"
)

// UserStore is the slice of the durable store the auth flows need.
type UserStore interface {
	FindUserByUsername(ctx context.Context, username string) (*store.User, error)
	IncrementFailedLogins(ctx context.Context, username string) error
	UpdateLastLogin(ctx context.Context, username string) error
}

// Auditor receives security events. Emission is asynchronous; the auth flows
// never wait on it.
type Auditor interface {
	AuthEvent(username, action, ip, userAgent string, details map[string]interface{})
	AnonymousAuthEvent(action, ip, userAgent string, details map[string]interface{})
}

// LoginResult carries both tokens plus the access lifetime in milliseconds.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresInMs  int64
}

// Service implements login, logout, and refresh on top of the token service.
type Service struct {
	tokens *TokenService
	users  UserStore
	audit  Auditor
	logger *slog.Logger
}

// NewService wires the auth flows.
func NewService(tokens *TokenService, users UserStore, audit Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tokens: tokens, users: users, audit: audit, logger: logger}
}

// Login authenticates the credentials and issues an access + refresh pair.
// Every failure branch emits an audit event before returning.
func (s *Service) Login(ctx context.Context, username, password, ip, userAgent string) (*LoginResult, error) {
	user, err := s.users.FindUserByUsername(ctx, username)
	if err != nil {
		s.logger.Error("user lookup failed", "user", username, "error", err)
		return nil, ErrAuthUnavailable
	}

	if user == nil {
		s.audit.AnonymousAuthEvent("LOGIN_FAILED", ip, userAgent, map[string]interface{}{
			"username": username,
			"reason":   "user_not_found",
		})
		s.logger.Warn("login failed, user not found", "user", username)
		return nil, ErrInvalidCredentials
	}

	if !user.Active {
		s.audit.AuthEvent(username, "LOGIN_FAILED", ip, userAgent, map[string]interface{}{
			"reason": "account_inactive",
		})
		s.logger.Warn("login failed, account inactive", "user", username)
		return nil, ErrAccountInactive
	}

	if user.Locked {
		s.audit.AuthEvent(username, "LOGIN_FAILED", ip, userAgent, map[string]interface{}{
			"reason": "account_locked",
		})
		s.logger.Warn("login failed, account locked", "user", username)
		return nil, ErrAccountLocked
	}

	// bcrypt comparison is constant-time.
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if err := s.users.IncrementFailedLogins(ctx, username); err != nil {
			s.logger.Error("failed-attempt counter update failed", "user", username, "error", err)
		}
		s.audit.AuthEvent(username, "LOGIN_FAILED", ip, userAgent, map[string]interface{}{
			"reason":          "invalid_password",
			"failed_attempts": user.FailedLoginAttempts + 1,
		})
		s.logger.Warn("login failed, invalid password", "user", username)
		return nil, ErrInvalidCredentials
	}

	accessToken, err := s.tokens.Issue(ctx, username, TokenAccess)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.tokens.Issue(ctx, username, TokenRefresh)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, username); err != nil {
		s.logger.Error("last-login update failed", "user", username, "error", err)
	}

	s.audit.AuthEvent(username, "LOGIN", ip, userAgent, map[string]interface{}{
		"method":  "password",
		"success": true,
	})
	s.logger.Info("user logged in", "user", username)

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresInMs:  s.tokens.AccessTTL().Milliseconds(),
	}, nil
}

// Logout revokes the presented token and audits the event.
func (s *Service) Logout(ctx context.Context, token, ip, userAgent string) error {
	username, err := s.tokens.ExtractSubject(token)
	if err != nil {
		s.logger.Warn("logout failed, invalid token")
		return ErrTokenInvalid
	}

	if err := s.tokens.Revoke(ctx, token); err != nil {
		s.logger.Error("revocation failed", "user", username, "error", err)
		return ErrAuthUnavailable
	}

	s.audit.AuthEvent(username, "LOGOUT", ip, userAgent, map[string]interface{}{
		"method": "token_invalidation",
	})
	s.logger.Info("user logged out", "user", username)
	return nil
}

// Refresh validates the refresh token and issues a new access token. The
// refresh token is reused, not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*LoginResult, error) {
	if err := s.tokens.Validate(ctx, refreshToken); err != nil {
		s.logger.Warn("refresh failed, invalid refresh token", "error", err)
		return nil, ErrTokenInvalid
	}

	username, err := s.tokens.ExtractSubject(refreshToken)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	user, err := s.users.FindUserByUsername(ctx, username)
	if err != nil {
		s.logger.Error("user lookup failed during refresh", "user", username, "error", err)
		return nil, ErrAuthUnavailable
	}
	if user == nil || !user.Active {
		s.logger.Warn("refresh failed, user no longer valid", "user", username)
		return nil, ErrInvalidCredentials
	}

	accessToken, err := s.tokens.Issue(ctx, username, TokenAccess)
	if err != nil {
		return nil, err
	}

	s.audit.AuthEvent(username, "REFRESH_TOKEN", ip, userAgent, map[string]interface{}{
		"method": "refresh_token",
	})
	s.logger.Info("token refreshed", "user", username)

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresInMs:  s.tokens.AccessTTL().Milliseconds(),
	}, nil
}

// HashPassword produces a bcrypt verifier for the seed path.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
