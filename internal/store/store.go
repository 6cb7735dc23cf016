// Package store is the durable record store shared by the gateway and
// accounts services. It speaks plain database/sql over the lib/pq driver;
// the schema constraints live in scripts/schema.sql.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Store wraps a bounded PostgreSQL connection pool.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL and verifies the connection with a ping.
// maxConns bounds the pool; zero keeps the driver default.
func Open(dsn string, maxConns int) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	slog.Info("PostgreSQL connected", "max_conns", maxConns)
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
