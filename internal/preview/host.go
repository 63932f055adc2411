// Package preview owns the isolated execution contexts a composed document
// is rendered into. Every render replaces the whole document on every
// attached surface; nothing from the previous revision survives.
package preview

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/livetemplate/codepad/internal/cache"
	"github.com/livetemplate/codepad/internal/compose"
	"go.uber.org/zap"
)

// DefaultDocumentTTL is how long rendered documents stay retrievable by
// revision.
const DefaultDocumentTTL = 10 * time.Minute

// Revision is one rebuild cycle's rendered document.
type Revision struct {
	ID        uint64           `json:"revision"`
	Document  compose.Document `json:"document"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Surface is an isolated rendering target. Replace must discard the previous
// document entirely (open/write/close or navigation), never patch it.
type Surface interface {
	Replace(rev Revision) error
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(rev Revision) error

// Replace implements Surface.
func (f SurfaceFunc) Replace(rev Revision) error {
	return f(rev)
}

// Host renders revisions into its attached surfaces.
type Host struct {
	logger *zap.Logger
	docs   cache.Cache
	ttl    time.Duration

	mu         sync.Mutex
	current    Revision
	hasCurrent bool
	surfaces   map[string]Surface
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithDocumentCache keeps rendered documents in c for ttl.
func WithDocumentCache(c cache.Cache, ttl time.Duration) HostOption {
	return func(h *Host) {
		h.docs = c
		if ttl > 0 {
			h.ttl = ttl
		}
	}
}

// NewHost creates a host without surfaces.
func NewHost(logger *zap.Logger, opts ...HostOption) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Host{
		logger:   logger,
		ttl:      DefaultDocumentTTL,
		surfaces: make(map[string]Surface),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Render makes rev the current revision and replaces the document of every
// surface. Surface failures are logged; rendering never fails as a whole.
func (h *Host) Render(rev Revision) {
	if rev.CreatedAt.IsZero() {
		rev.CreatedAt = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.current = rev
	h.hasCurrent = true
	if h.docs != nil {
		h.docs.Set(cacheKey(rev.ID), string(rev.Document), h.ttl)
	}

	for _, name := range h.surfaceNames() {
		if err := h.surfaces[name].Replace(rev); err != nil {
			h.logger.Warn("surface replace failed",
				zap.String("surface", name),
				zap.Uint64("revision", rev.ID),
				zap.Error(err))
		}
	}
	h.logger.Debug("rendered revision",
		zap.Uint64("revision", rev.ID),
		zap.Int("surfaces", len(h.surfaces)),
		zap.Int("bytes", len(rev.Document)))
}

// Attach adds a surface under name, replacing any surface with the same
// name. If a revision has been rendered already the surface receives it
// immediately.
func (h *Host) Attach(name string, s Surface) (detach func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.surfaces[name] = s
	if h.hasCurrent {
		if err := s.Replace(h.current); err != nil {
			h.logger.Warn("surface replace failed",
				zap.String("surface", name),
				zap.Uint64("revision", h.current.ID),
				zap.Error(err))
		}
	}

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.surfaces[name] == s {
			delete(h.surfaces, name)
		}
	}
}

// Current returns the last rendered revision.
func (h *Host) Current() (Revision, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current, h.hasCurrent
}

// Lookup returns the document rendered for revision id if it is still
// retained.
func (h *Host) Lookup(id uint64) (compose.Document, bool) {
	h.mu.Lock()
	if h.hasCurrent && h.current.ID == id {
		doc := h.current.Document
		h.mu.Unlock()
		return doc, true
	}
	h.mu.Unlock()

	if h.docs == nil {
		return "", false
	}
	doc, ok := h.docs.Get(cacheKey(id))
	return compose.Document(doc), ok
}

// Surfaces returns the number of attached surfaces.
func (h *Host) Surfaces() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.surfaces)
}

// surfaceNames returns attached surface names in a stable order.
func (h *Host) surfaceNames() []string {
	names := make([]string, 0, len(h.surfaces))
	for name := range h.surfaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func cacheKey(id uint64) string {
	return fmt.Sprintf("rev:%d", id)
}
