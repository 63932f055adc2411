package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const defaultTable = "codepad_kv"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// isValidIdentifier checks a table name before it is interpolated into SQL.
func isValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// SQLiteStore persists values in a single SQLite table.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLiteStore opens (and creates if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path, table string) (*SQLiteStore, error) {
	if path == "" {
		path = "codepad.db"
	}
	if table == "" {
		table = defaultTable
	}
	if !isValidIdentifier(table) {
		return nil, fmt.Errorf("sqlite store: invalid table name %q", table)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: failed to open database: %w", err)
	}
	// One writer at a time; SQLite serialises writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: failed to connect: %w", err)
	}

	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`, table)
	if _, err := db.ExecContext(ctx, query); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: failed to create table: %w", err)
	}

	return &SQLiteStore{db: db, table: table}, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, key string) (string, error) {
	var value string
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = ?", s.table)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite store: load %q: %w", key, err)
	}
	return value, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, key, value string) error {
	query := fmt.Sprintf(`INSERT INTO %s (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`, s.table)
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("sqlite store: save %q: %w", key, err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
