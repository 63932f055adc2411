// Package store persists buffer texts in a durable key-value store.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by Load when a key has never been saved.
var ErrNotFound = errors.New("store: key not found")

// Store is a durable string key-value store.
type Store interface {
	// Load returns the value saved under key, or ErrNotFound.
	Load(ctx context.Context, key string) (string, error)

	// Save writes value under key, replacing any previous value.
	Save(ctx context.Context, key, value string) error

	// Close releases the underlying connection or file handles.
	Close() error
}

// Options selects and configures a store driver.
type Options struct {
	Driver string // memory, sqlite, redis, postgres or dir
	Path   string // sqlite database file or workspace directory
	URL    string // redis or postgres connection URL
	Table  string // sqlite/postgres table name (default: codepad_kv)
	Prefix string // redis key prefix (default: codepad:)
}

// Open creates the store selected by opts.Driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(ctx, opts.Path, opts.Table)
	case "redis":
		return NewRedisStore(ctx, opts.URL, opts.Prefix)
	case "postgres", "pg":
		return NewPostgresStore(ctx, opts.URL, opts.Table)
	case "dir":
		return NewDirStore(opts.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

// MemoryStore keeps values in process memory. It is the default when no
// durable store is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, key, value string) error {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
