package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/livetemplate/codepad"
	"go.uber.org/zap"
)

// BufferStore persists the three source buffers. Persistence is best effort:
// a failing save is logged and never blocks composition or rendering.
type BufferStore struct {
	store  Store
	logger *zap.Logger
}

// NewBufferStore wraps s.
func NewBufferStore(s Store, logger *zap.Logger) *BufferStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BufferStore{store: s, logger: logger}
}

// Store returns the underlying key-value store.
func (b *BufferStore) Store() Store {
	return b.store
}

// Load returns the persisted text for kind and whether one was present.
// Read errors are logged and reported as absent.
func (b *BufferStore) Load(ctx context.Context, kind codepad.Kind) (string, bool) {
	text, err := b.store.Load(ctx, kind.StorageKey())
	if errors.Is(err, ErrNotFound) {
		return "", false
	}
	if err != nil {
		b.logger.Warn("failed to load buffer", zap.Stringer("kind", kind), zap.Error(err))
		return "", false
	}
	return text, true
}

// Save persists text for kind.
func (b *BufferStore) Save(ctx context.Context, kind codepad.Kind, text string) error {
	return b.store.Save(ctx, kind.StorageKey(), text)
}

// Restore initialises every buffer that has persisted text. Buffers without
// one keep their compiled-in default. It returns the number restored.
func (b *BufferStore) Restore(ctx context.Context, ws *codepad.Workspace) int {
	restored := 0
	for _, kind := range codepad.Kinds {
		if text, ok := b.Load(ctx, kind); ok {
			ws.Buffer(kind).SetValue(text)
			restored++
		}
	}
	b.logger.Debug("restored buffers", zap.Int("count", restored))
	return restored
}

// SaveAll writes all three texts, one key per kind, without batching or
// retrying. Failures are logged and swallowed.
func (b *BufferStore) SaveAll(ctx context.Context, src codepad.Sources) {
	for _, kind := range codepad.Kinds {
		if err := b.Save(ctx, kind, src.Get(kind)); err != nil {
			b.logger.Warn("failed to persist buffer", zap.Stringer("kind", kind), zap.Error(err))
		}
	}
}

// LoadJSON decodes the JSON value stored under key into v. It reports
// whether a value was present.
func (b *BufferStore) LoadJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := b.store.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// SaveJSON stores v as JSON under key.
func (b *BufferStore) SaveJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return b.store.Save(ctx, key, string(data))
}
