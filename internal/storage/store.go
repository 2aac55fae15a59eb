// Package storage persists extraction results in SQLite so unchanged modules
// are not re-parsed across builds.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mvp-joe/loadmap/internal/loadable"
)

// Store is a SQLite-backed extraction result store, keyed by module ID and
// content hash. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the store at path. Use ":memory:" for a private
// in-memory store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; one connection also keeps ":memory:" stores
	// from splitting into several databases.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	version, err := GetSchemaVersion(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to check schema version: %w", err)
	}
	if version != SchemaVersion {
		if version != "0" {
			if err := DropSchema(db); err != nil {
				db.Close()
				return nil, err
			}
		}
		if err := CreateSchema(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the stored result for a module whose source hashes to
// contentHash. A stored absent result is reported as (nil, true, nil).
func (s *Store) Lookup(ctx context.Context, moduleID, contentHash string) (*loadable.ActionMap, bool, error) {
	var (
		present bool
		entries string
	)
	err := sq.Select("present", "entries").
		From("extractions").
		Where(sq.Eq{"module_id": moduleID, "content_hash": contentHash}).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&present, &entries)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up %s: %w", moduleID, err)
	}

	if !present {
		return nil, true, nil
	}
	am := new(loadable.ActionMap)
	if err := am.UnmarshalJSON([]byte(entries)); err != nil {
		return nil, false, fmt.Errorf("corrupt entry for %s: %w", moduleID, err)
	}
	return am, true, nil
}

// Save records the result for a module, replacing any earlier result.
// A nil ActionMap records an absent result.
func (s *Store) Save(ctx context.Context, moduleID, contentHash string, am *loadable.ActionMap) error {
	entries := []byte("{}")
	if am != nil {
		data, err := am.MarshalJSON()
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", moduleID, err)
		}
		entries = data
	}

	_, err := sq.Insert("extractions").
		Columns("module_id", "content_hash", "present", "entries", "updated_at").
		Values(moduleID, contentHash, am != nil, string(entries), time.Now().UTC().Format(time.RFC3339)).
		Options("OR REPLACE").
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", moduleID, err)
	}
	return nil
}

// Prune deletes results for modules not in keep and returns the number of
// rows removed.
func (s *Store) Prune(ctx context.Context, keep []string) (int64, error) {
	result, err := sq.Delete("extractions").
		Where(sq.NotEq{"module_id": keep}).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to prune store: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the number of stored results.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := sq.Select("COUNT(*)").
		From("extractions").
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return n, nil
}
