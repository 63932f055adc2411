package server

import (
	"context"
	"fmt"

	"github.com/livetemplate/codepad"
	"github.com/livetemplate/codepad/internal/cache"
	"github.com/livetemplate/codepad/internal/config"
	"github.com/livetemplate/codepad/internal/layout"
	"github.com/livetemplate/codepad/internal/preview"
	"github.com/livetemplate/codepad/internal/rebuild"
	"github.com/livetemplate/codepad/internal/relay"
	"github.com/livetemplate/codepad/internal/store"
	"go.uber.org/zap"
)

// Pipeline is the live-preview pipeline assembled from configuration:
// workspace, buffer store, relay, preview host and rebuild trigger.
type Pipeline struct {
	Workspace *codepad.Workspace
	Buffers   *store.BufferStore
	Relay     *relay.Relay
	Host      *preview.Host
	Trigger   *rebuild.Trigger

	// Layout is the pane geometry restored from the store, if any.
	Layout *layout.Layout

	docs *cache.MemoryCache
}

// NewPipeline opens the configured store, restores the workspace from it and
// wires the rebuild trigger. Nothing is rendered until Start.
func NewPipeline(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	kv, err := store.Open(ctx, store.Options{
		Driver: cfg.Store.Driver,
		Path:   storePath(cfg),
		URL:    cfg.Store.GetURL(),
		Table:  cfg.Store.Table,
		Prefix: cfg.Store.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
	}
	return NewPipelineWithStore(ctx, cfg, kv, logger), nil
}

// NewPipelineWithStore is NewPipeline with an already opened store.
func NewPipelineWithStore(ctx context.Context, cfg *config.Config, kv store.Store, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}

	ws := codepad.NewWorkspace()
	buffers := store.NewBufferStore(kv, logger.Named("store"))
	restored := buffers.Restore(ctx, ws)
	logger.Debug("restored buffers", zap.Int("count", restored))

	var saved layout.Layout
	var restoredLayout *layout.Layout
	if ok, err := buffers.LoadJSON(ctx, layout.StorageKey, &saved); err != nil {
		logger.Warn("failed to restore layout", zap.Error(err))
	} else if ok {
		clamped := saved.Clamped()
		restoredLayout = &clamped
	}

	panel := relay.NewPanel(cfg.Console.GetMaxEntries())
	r := relay.New(panel, logger.Named("relay"), relay.WithKeepStale(cfg.Console.KeepStale))

	docs := cache.NewMemoryCache()
	host := preview.NewHost(logger.Named("preview"), preview.WithDocumentCache(docs, cfg.Preview.GetCacheTTL()))

	trigger := rebuild.New(ws, buffers, r, host,
		rebuild.WithDebounce(cfg.Rebuild.GetDebounce()),
		rebuild.WithLogger(logger.Named("rebuild")))

	return &Pipeline{
		Workspace: ws,
		Buffers:   buffers,
		Relay:     r,
		Host:      host,
		Trigger:   trigger,
		Layout:    restoredLayout,
		docs:      docs,
	}
}

// Start renders the first revision and begins rebuilding on every change.
func (p *Pipeline) Start(ctx context.Context) preview.Revision {
	return p.Trigger.Start(ctx)
}

// Close stops the trigger and releases the store and document cache.
func (p *Pipeline) Close() error {
	p.Trigger.Stop()
	p.docs.Stop()
	return p.Buffers.Store().Close()
}

// storePath picks the directory for the dir driver when only
// workspace.dir is configured.
func storePath(cfg *config.Config) string {
	if cfg.Store.Driver == "dir" && cfg.Store.Path == "" {
		return cfg.Workspace.Dir
	}
	return cfg.Store.Path
}
