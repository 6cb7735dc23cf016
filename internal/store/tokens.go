package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// SaveToken upserts a token row. The token string is unique across the table;
// re-saving refreshes the expiry and kind.
func (s *Store) SaveToken(ctx context.Context, userID, token string, expiresAt time.Time, kind string) error {
	const q = `
		INSERT INTO jwt_tokens (user_id, token, token_type, expires_at, created_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (token) DO UPDATE
		SET expires_at = EXCLUDED.expires_at, token_type = EXCLUDED.token_type`
	if _, err := s.db.ExecContext(ctx, q, userID, token, strings.ToUpper(kind), expiresAt); err != nil {
		return fmt.Errorf("save %s token for %q: %w", kind, userID, err)
	}
	return nil
}

// TokenExists reports whether (userID, token) is present and not yet expired.
func (s *Store) TokenExists(ctx context.Context, userID, token string) (bool, error) {
	const q = `
		SELECT COUNT(*) FROM jwt_tokens
		WHERE user_id = $1 AND token = $2 AND expires_at > CURRENT_TIMESTAMP`
	var n int
	if err := s.db.QueryRowContext(ctx, q, userID, token).Scan(&n); err != nil {
		return false, fmt.Errorf("token exists for %q: %w", userID, err)
	}
	return n > 0, nil
}

// DeleteToken removes a (userID, token) row. Missing rows are not an error.
func (s *Store) DeleteToken(ctx context.Context, userID, token string) error {
	const q = `DELETE FROM jwt_tokens WHERE user_id = $1 AND token = $2`
	res, err := s.db.ExecContext(ctx, q, userID, token)
	if err != nil {
		return fmt.Errorf("delete token for %q: %w", userID, err)
	}
	if n, err := res.RowsAffected(); err == nil {
		slog.Debug("deleted tokens", "user", userID, "count", n)
	}
	return nil
}
