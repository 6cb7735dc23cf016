package auth

import "errors"

// Authentication failure kinds. Handlers map these onto HTTP statuses; the
// auth layer itself never writes responses.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrAccountLocked      = errors.New("account is locked")
	ErrTokenInvalid       = errors.New("token is invalid")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenRevoked       = errors.New("token has been revoked")

	// ErrAuthUnavailable signals an infrastructure failure on a path where
	// auth must fail closed (durable store down during issuance).
	ErrAuthUnavailable = errors.New("authentication temporarily unavailable")
)
