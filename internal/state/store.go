// Package state holds the account state of a chain during one replay.
//
// A Store is a SQLite database with two tables, accounts and storage. Stores
// are normally opened in memory (":memory:") and closed when the replay ends;
// nothing outlives the test that created it. Zero-valued storage slots are
// never stored, so two stores holding the same logical state dump to equal
// Allocs.
package state

import (
	"database/sql"
	_ "embed"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store is an account/storage store owned by a single replay.
type Store struct {
	db *sql.DB
}

// Open creates or opens a state database at path. Use MemoryPath for a
// throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open state database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connect to state database")
	}

	// Every connection to ":memory:" is a different database, so the pool
	// must never hold more than one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "apply state schema")
	}
	log.WithField("path", path).Debug("Opened state store")
	return &Store{db: db}, nil
}

// Close releases the database. Closing a closed store is a no-op.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	return s.db == nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA synchronous = OFF",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Wrapf(err, "execute %q", pragma)
		}
	}
	return nil
}

func (s *Store) conn() (*sql.DB, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	return s.db, nil
}

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("state store closed")
