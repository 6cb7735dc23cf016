// Package kv defines the key-value store contract shared by the gateway and
// accounts services, plus a go-redis adapter and an in-memory implementation.
//
// Every namespace the services use (jwt:*, fraud:*, iban:*) goes through this
// interface so the callers never touch a Redis client directly.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("kv: key not found")

// Store is the minimal command set the services rely on. Single-operation
// atomicity (SetNX, ZAdd) is part of the contract; callers must not
// read-then-write where a conditional write suffices.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX writes key only if absent and reports whether the write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	// ZAdd adds member to the sorted set at key with the given score.
	ZAdd(ctx context.Context, key, member string, score float64) error

	// ZCount counts members with score in [min, max].
	ZCount(ctx context.Context, key string, min, max float64) (int64, error)

	Expire(ctx context.Context, key string, ttl time.Duration) error
}
