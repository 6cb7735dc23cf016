package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// User is a row in the users table. Password material is the bcrypt hash,
// never the plaintext.
type User struct {
	ID                  int64
	Username            string
	Email               string
	PasswordHash        string
	FullName            string
	Active              bool
	Locked              bool
	FailedLoginAttempts int
	LastLoginAt         *time.Time
}

// FindUserByUsername returns nil without error when the user does not exist.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	const q = `
		SELECT id, username, email, password_hash, full_name,
		       is_active, is_locked, failed_login_attempts, last_login_at
		FROM users
		WHERE username = $1`

	var u User
	err := s.db.QueryRowContext(ctx, q, username).Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName,
		&u.Active, &u.Locked, &u.FailedLoginAttempts, &u.LastLoginAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user %q: %w", username, err)
	}
	return &u, nil
}

// IncrementFailedLogins bumps the failed-attempt counter after a bad password.
func (s *Store) IncrementFailedLogins(ctx context.Context, username string) error {
	const q = `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1
		WHERE username = $1`
	if _, err := s.db.ExecContext(ctx, q, username); err != nil {
		return fmt.Errorf("increment failed logins for %q: %w", username, err)
	}
	return nil
}

// UpdateLastLogin stamps a successful login and resets the failed counter.
func (s *Store) UpdateLastLogin(ctx context.Context, username string) error {
	const q = `
		UPDATE users
		SET last_login_at = CURRENT_TIMESTAMP, failed_login_attempts = 0
		WHERE username = $1`
	if _, err := s.db.ExecContext(ctx, q, username); err != nil {
		return fmt.Errorf("update last login for %q: %w", username, err)
	}
	return nil
}

// EnsureUser creates a user if the username is not taken. Used by the seed
// path in the gateway main; existing rows are left untouched.
func (s *Store) EnsureUser(ctx context.Context, username, email, passwordHash, fullName string) error {
	const q = `
		INSERT INTO users (username, email, password_hash, full_name, is_active, is_locked, failed_login_attempts)
		VALUES ($1, $2, $3, $4, TRUE, FALSE, 0)
		ON CONFLICT (username) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, q, username, email, passwordHash, fullName); err != nil {
		return fmt.Errorf("ensure user %q: %w", username, err)
	}
	return nil
}
