// Package auth implements the stateful token subsystem and the login,
// logout, and refresh flows of the gateway service.
//
// Tokens live in two places at once: the KV store for the sub-millisecond
// read path and the durable store for survivability across restarts. A
// blacklist namespace overlays both and provides instant revocation without
// purging either store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/finlab/backend/internal/kv"
)

const (
	tokenKeyPrefix     = "jwt:token:"
	blacklistKeyPrefix = "jwt:blacklist:"
)

// TokenKind distinguishes access from refresh tokens in the type claim.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

// TokenStore is the durable side of the dual storage.
type TokenStore interface {
	SaveToken(ctx context.Context, userID, token string, expiresAt time.Time, kind string) error
	TokenExists(ctx context.Context, userID, token string) (bool, error)
	DeleteToken(ctx context.Context, userID, token string) error
}

// TokenServiceConfig configures the token service. Lifetimes default to
// 15 minutes (access) and 7 days (refresh).
type TokenServiceConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenService issues, validates, and revokes HS256-signed tokens.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	kv         kv.Store
	tokens     TokenStore
	logger     *slog.Logger

	parser *jwt.Parser
	now    func() time.Time
}

// NewTokenService validates the signing secret and wires the dual storage.
// Secrets shorter than 32 bytes are rejected (HS256 minimum).
func NewTokenService(cfg TokenServiceConfig, kvStore kv.Store, tokens TokenStore, logger *slog.Logger) (*TokenService, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 bytes, got %d", len(cfg.Secret))
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenService{
		secret:     cfg.Secret,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		kv:         kvStore,
		tokens:     tokens,
		logger:     logger,
		// Pinning the algorithm rejects downgrade attempts at parse time.
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
		now:    time.Now,
	}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (ts *TokenService) AccessTTL() time.Duration {
	return ts.accessTTL
}

// Issue signs a token for userID and records it in both stores. The KV write
// is best-effort; a durable-store failure aborts the issuance.
func (ts *TokenService) Issue(ctx context.Context, userID string, kind TokenKind) (string, error) {
	ttl := ts.accessTTL
	if kind == TokenRefresh {
		ttl = ts.refreshTTL
	}

	now := ts.now()
	expiresAt := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":    userID,
		"userId": userID,
		"type":   string(kind),
		"iat":    now.Unix(),
		"exp":    expiresAt.Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}

	if err := ts.kv.Set(ctx, tokenKeyPrefix+token, userID, ttl); err != nil {
		ts.logger.Warn("KV token write failed, durable store remains authoritative",
			"user", userID, "error", err)
	}
	if err := ts.tokens.SaveToken(ctx, userID, token, expiresAt, string(kind)); err != nil {
		ts.logger.Error("durable token write failed, aborting issuance", "user", userID, "error", err)
		return "", ErrAuthUnavailable
	}

	ts.logger.Debug("issued token", "user", userID, "kind", kind, "expires_at", expiresAt)
	return token, nil
}

// Validate runs the layered check: blacklist, signature and expiry, KV fast
// path, then the durable store with KV re-population. Any ambiguity rejects.
func (ts *TokenService) Validate(ctx context.Context, token string) error {
	blacklisted, err := ts.kv.Exists(ctx, blacklistKeyPrefix+token)
	if err != nil {
		// A blacklist read failure must never bypass revocation.
		ts.logger.Error("blacklist read failed, rejecting token", "error", err)
		return ErrTokenRevoked
	}
	if blacklisted {
		return ErrTokenRevoked
	}

	claims, err := ts.parseClaims(token)
	if err != nil {
		return err
	}

	if _, err := ts.kv.Get(ctx, tokenKeyPrefix+token); err == nil {
		return nil
	} else if !errors.Is(err, kv.ErrNotFound) {
		ts.logger.Warn("KV token read failed, falling back to durable store", "error", err)
	}

	userID, _ := claims["sub"].(string)
	exists, err := ts.tokens.TokenExists(ctx, userID, token)
	if err != nil {
		ts.logger.Error("durable token lookup failed, rejecting token", "user", userID, "error", err)
		return ErrTokenInvalid
	}
	if !exists {
		return ErrTokenInvalid
	}

	if remaining := ts.remainingTTL(claims); remaining > 0 {
		if err := ts.kv.Set(ctx, tokenKeyPrefix+token, userID, remaining); err != nil {
			ts.logger.Warn("KV token re-population failed", "user", userID, "error", err)
		}
	}
	return nil
}

// Revoke blacklists the token for its remaining lifetime and removes it from
// both stores. The blacklist write is authoritative; the deletes are
// best-effort and only logged on failure.
func (ts *TokenService) Revoke(ctx context.Context, token string) error {
	claims, err := ts.parseClaimsLenient(token)
	if err != nil {
		return ErrTokenInvalid
	}
	userID, _ := claims["sub"].(string)

	if remaining := ts.remainingTTL(claims); remaining > 0 {
		if err := ts.kv.Set(ctx, blacklistKeyPrefix+token, "true", remaining); err != nil {
			return fmt.Errorf("blacklist write: %w", err)
		}
		ts.logger.Debug("token blacklisted", "user", userID, "ttl", remaining)
	}

	if err := ts.kv.Del(ctx, tokenKeyPrefix+token); err != nil {
		ts.logger.Warn("KV token delete failed during revocation", "user", userID, "error", err)
	}
	if err := ts.tokens.DeleteToken(ctx, userID, token); err != nil {
		ts.logger.Warn("durable token delete failed during revocation", "user", userID, "error", err)
	}

	ts.logger.Info("token revoked", "user", userID)
	return nil
}

// ExtractSubject returns the subject claim after signature verification but
// without lifetime checks, so it also works on expired tokens (logout and
// logging paths).
func (ts *TokenService) ExtractSubject(token string) (string, error) {
	claims, err := ts.parseClaimsLenient(token)
	if err != nil {
		return "", ErrTokenInvalid
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", ErrTokenInvalid
	}
	return sub, nil
}

// IsExpired reports whether the token's exp claim is in the past. Unparseable
// tokens count as expired.
func (ts *TokenService) IsExpired(token string) bool {
	claims, err := ts.parseClaimsLenient(token)
	if err != nil {
		return true
	}
	return ts.remainingTTL(claims) <= 0
}

// parseClaims verifies signature, algorithm, and expiry. Zero skew tolerance.
func (ts *TokenService) parseClaims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := ts.parser.ParseWithClaims(token, claims, ts.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// parseClaimsLenient verifies the signature and algorithm but tolerates an
// expired exp claim. Needed to recover the subject and remaining TTL on the
// revocation path.
func (ts *TokenService) parseClaimsLenient(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := ts.parser.ParseWithClaims(token, claims, ts.keyFunc)
	if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		return nil, err
	}
	return claims, nil
}

func (ts *TokenService) keyFunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
	}
	return ts.secret, nil
}

func (ts *TokenService) remainingTTL(claims jwt.MapClaims) time.Duration {
	exp, ok := claims["exp"].(float64)
	if !ok {
		return 0
	}
	return time.Unix(int64(exp), 0).Sub(ts.now())
}
