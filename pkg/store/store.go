// Package store provides typed access to the relational tables the three
// processes coordinate through. There are no in-process queues: every
// hand-off between dispatcher, executor, and ingress is a row with a
// status column, and the only mutual-exclusion primitive is a conditional
// UPDATE.
package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates a required field was missing or malformed.
	// No row is created when it is returned.
	ErrValidation = errors.New("validation failed")

	// ErrClaimLost indicates a conditional update matched zero rows —
	// another worker owns the row. Callers skip silently.
	ErrClaimLost = errors.New("claim lost")

	// ErrNamePoolExhausted indicates no unassigned display name remains.
	ErrNamePoolExhausted = errors.New("name pool exhausted")
)

// Store wraps the shared connection pool with typed table access.
type Store struct {
	db *sql.DB
}

// New creates a Store over an existing connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying pool for health pings and snapshots.
func (s *Store) DB() *sql.DB {
	return s.db
}

func newID() string {
	return uuid.New().String()
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// nullStr converts a nullable column to *string.
func nullStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// nullTime converts a nullable column to *time.Time.
func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}
