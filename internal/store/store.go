package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/iksnae/copilot-archive/internal"
)

// ErrLocked is returned when another process holds the archive write
// lock.
var ErrLocked = errors.New("archive is locked by another writer")

// ErrNotFound is returned when a requested session id is not archived.
var ErrNotFound = errors.New("session not found")

// Store is a handle on one archive database. Reads never take the
// write lock; mutating operations require Lock first so that only one
// scan, import, or rebuild touches the archive at a time.
type Store struct {
	db   *sql.DB
	path string
	flk  *flock.Flock
}

// Open opens the archive at path, creating the file, its parent
// directory, and the schema when missing.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &internal.StoreError{Op: "open", Err: err}
		}
	}

	// The pragmas ride on the DSN so every pooled connection gets them.
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &internal.StoreError{Op: "open", Err: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &internal.StoreError{Op: "open", Err: err}
	}

	s := &Store{db: db, path: path, flk: flock.New(path + ".lock")}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	log.Debug().Str("path", path).Msg("archive opened")
	return s, nil
}

// Close releases the write lock if held and closes the database.
func (s *Store) Close() error {
	if s.flk.Locked() {
		if err := s.flk.Unlock(); err != nil {
			s.db.Close()
			return err
		}
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Lock takes the single-writer file lock without blocking. ErrLocked
// means another process is writing to the same archive.
func (s *Store) Lock() error {
	ok, err := s.flk.TryLock()
	if err != nil {
		return &internal.StoreError{Op: "open", Err: err}
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

// Unlock releases the write lock.
func (s *Store) Unlock() error {
	return s.flk.Unlock()
}

func (s *Store) ensureSchema() error {
	for _, stmts := range [][]string{rawSchema, derivedSchema} {
		for _, stmt := range stmts {
			if _, err := s.db.Exec(stmt); err != nil {
				return &internal.StoreError{Op: "open", Err: err}
			}
		}
	}
	return nil
}

// nullable maps empty strings to NULL so absent metadata stays absent
// instead of becoming an empty-string value.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
