// Package store implements the SQLite session persistence backend.
package store

import (
	"database/sql"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// Store implements session.Persistence on SQLite.
type Store struct {
	db *sql.DB
}

// New store.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	// Create sessions table if it doesn't exist
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT,
			creation_timestamp INTEGER NOT NULL,
			update_timestamp INTEGER NOT NULL,
			context TEXT NOT NULL,
			messages TEXT NOT NULL,
			evidence TEXT NOT NULL,
			telemetry TEXT NOT NULL
		)
	`)
	if err != nil {
		return nil, errors.Wrap(err, "creating sessions table")
	}

	return &Store{
		db: db,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
