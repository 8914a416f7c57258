// Package store is the SQLite persistence layer: projects, scrape results,
// the per-project chat log and the retrieval index chunks.
//
// Every row id is a UUIDv7. Timestamps are stored as Unix milliseconds.
// Deleting a project cascades to its scrapes, chat messages and chunks;
// deleting a scrape cascades to its chunks.
package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps the scrapeall database.
type Store struct {
	DB  *sql.DB
	now func() time.Time
}

// NewStore creates a Store from an already-opened database connection.
// The schema must have been applied (Open does it).
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db, now: time.Now}
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.DB.Close() }

func newID() string { return uuid.Must(uuid.NewV7()).String() }

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
