package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/livetemplate/codepad"
)

// metaDir holds keys that are not buffer files. The file watcher skips
// hidden directories, so writes there never look like edits.
const metaDir = ".codepad"

// DirStore mirrors buffers to plain files in a workspace directory
// (index.html, style.css, script.js) so they can be edited with any tool.
type DirStore struct {
	root string

	mu      sync.Mutex
	written map[string]string // last text saved per key
}

// NewDirStore uses root as the workspace directory, creating it if needed.
func NewDirStore(root string) (*DirStore, error) {
	if root == "" {
		return nil, errors.New("dir store: directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("dir store: %w", err)
	}
	return &DirStore{root: root, written: make(map[string]string)}, nil
}

// Root returns the workspace directory.
func (s *DirStore) Root() string {
	return s.root
}

// path maps a storage key to its file.
func (s *DirStore) path(key string) string {
	for _, kind := range codepad.Kinds {
		if kind.StorageKey() == key {
			return filepath.Join(s.root, kind.FileName())
		}
	}
	return filepath.Join(s.root, metaDir, filepath.Base(key))
}

// Load implements Store.
func (s *DirStore) Load(_ context.Context, key string) (string, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("dir store: load %q: %w", key, err)
	}
	return string(data), nil
}

// Save implements Store. The file is replaced atomically.
func (s *DirStore) Save(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("dir store: save %q: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("dir store: save %q: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		return fmt.Errorf("dir store: save %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("dir store: save %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("dir store: save %q: %w", key, err)
	}
	s.written[key] = value
	return nil
}

// ReadExternal reads the file behind key and reports whether its content
// came from somewhere other than this store's last Save. Saves are blocked
// while the file is read, so a save racing with the read cannot make the
// store's own text look like an outside edit.
func (s *DirStore) ReadExternal(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, ErrNotFound
	}
	if err != nil {
		return "", false, fmt.Errorf("dir store: read %q: %w", key, err)
	}

	text := string(data)
	last, saved := s.written[key]
	return text, !saved || last != text, nil
}

// Close implements Store.
func (s *DirStore) Close() error {
	return nil
}
