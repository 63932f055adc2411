// Package rebuild turns buffer changes into preview revisions:
// clear console, snapshot buffers, persist, compose and render.
package rebuild

import (
	"context"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/livetemplate/codepad"
	"github.com/livetemplate/codepad/internal/compose"
	"github.com/livetemplate/codepad/internal/preview"
	"github.com/livetemplate/codepad/internal/relay"
	"github.com/livetemplate/codepad/internal/store"
	"go.uber.org/zap"
)

// Trigger runs the rebuild pipeline. It is the only writer to the buffer
// store and the only caller of Host.Render, and it runs one rebuild at a time.
type Trigger struct {
	workspace *codepad.Workspace
	buffers   *store.BufferStore
	relay     *relay.Relay
	host      *preview.Host
	logger    *zap.Logger
	debounce  time.Duration

	mu       sync.Mutex
	revision uint64
	cancel   func()
}

// Option configures a Trigger.
type Option func(*Trigger)

// WithDebounce coalesces change notifications arriving within d into one
// rebuild. Zero (the default) rebuilds on every change.
func WithDebounce(d time.Duration) Option {
	return func(t *Trigger) {
		t.debounce = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Trigger) {
		t.logger = l
	}
}

// New creates a trigger. Call Start to subscribe it to buffer changes.
func New(ws *codepad.Workspace, buffers *store.BufferStore, r *relay.Relay, host *preview.Host, opts ...Option) *Trigger {
	t := &Trigger{
		workspace: ws,
		buffers:   buffers,
		relay:     r,
		host:      host,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start renders the first revision unconditionally and then rebuilds on
// every buffer change until ctx is done or Stop is called. Buffers should be
// restored before Start so restoration does not count as edits.
func (t *Trigger) Start(ctx context.Context) preview.Revision {
	first := t.Rebuild(ctx)

	onChange := func() { t.Rebuild(ctx) }
	if t.debounce > 0 {
		debounced := debounce.New(t.debounce)
		onChange = func() { debounced(func() { t.Rebuild(ctx) }) }
	}

	cancel := t.workspace.OnChange(func(kind codepad.Kind, _ string) {
		if ctx.Err() != nil {
			return
		}
		t.logger.Debug("buffer changed", zap.Stringer("kind", kind))
		onChange()
	})

	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	return first
}

// Stop unsubscribes from buffer changes.
func (t *Trigger) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Rebuild runs one full cycle synchronously and returns the rendered
// revision. Order: new revision, clear console, read buffers, persist each,
// compose, render.
func (t *Trigger) Rebuild(ctx context.Context) preview.Revision {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.revision++
	id := t.revision

	t.relay.Begin(id)

	src := t.workspace.Snapshot()
	t.buffers.SaveAll(ctx, src)

	rev := preview.Revision{
		ID:        id,
		Document:  compose.Sources(src),
		CreatedAt: time.Now(),
	}
	t.host.Render(rev)

	t.logger.Debug("rebuilt preview", zap.Uint64("revision", id))
	return rev
}

// Revision returns the id of the last rebuild.
func (t *Trigger) Revision() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.revision
}
