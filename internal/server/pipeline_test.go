package server

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/livetemplate/codepad"
	"github.com/livetemplate/codepad/internal/config"
	"github.com/livetemplate/codepad/internal/layout"
	"github.com/livetemplate/codepad/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPipelineRestoresFromStore(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	require.NoError(t, kv.Save(ctx, codepad.Style.StorageKey(), "body { margin: 0; }"))
	require.NoError(t, kv.Save(ctx, codepad.Behavior.StorageKey(), ""))
	require.NoError(t, kv.Save(ctx, layout.StorageKey, `{"containerWidth":800,"editorWidth":90}`))

	cfg := config.DefaultConfig()
	p := NewPipelineWithStore(ctx, cfg, kv, zap.NewNop())
	defer p.Close()

	src := p.Workspace.Snapshot()
	assert.Equal(t, codepad.DefaultSources().Structure, src.Structure, "missing kinds keep their default")
	assert.Equal(t, "body { margin: 0; }", src.Style)
	assert.Equal(t, "", src.Behavior, "an empty saved text is still restored")

	require.NotNil(t, p.Layout)
	assert.Equal(t, float64(layout.MinHorizontal), p.Layout.EditorWidth)
}

func TestPipelineStartRendersFirstRevision(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPipelineWithStore(ctx, config.DefaultConfig(), store.NewMemoryStore(), zap.NewNop())
	defer p.Close()

	rev := p.Start(ctx)
	assert.Equal(t, uint64(1), rev.ID)

	current, ok := p.Host.Current()
	require.True(t, ok)
	assert.Equal(t, rev.ID, current.ID)
}

func TestNewPipelineOpensConfiguredStore(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Store = config.StoreConfig{Driver: "sqlite", Path: filepath.Join(dir, "codepad.db")}

	ctx := context.Background()
	p, err := NewPipeline(ctx, cfg, nil)
	require.NoError(t, err)
	p.Start(ctx)
	require.NoError(t, p.Close())

	// A second pipeline over the same file sees the texts saved by the first.
	cfg.Store.Path = filepath.Join(dir, "codepad.db")
	p2, err := NewPipeline(ctx, cfg, nil)
	require.NoError(t, err)
	defer p2.Close()
	assert.Equal(t, codepad.DefaultSources(), p2.Workspace.Snapshot())
	text, ok := p2.Buffers.Load(ctx, codepad.Structure)
	assert.True(t, ok)
	assert.Equal(t, codepad.DefaultSources().Structure, text)
}

func TestNewPipelineDirDriverUsesWorkspaceDir(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Store = config.StoreConfig{Driver: "dir"}
	cfg.Workspace.Dir = dir

	ctx := context.Background()
	p, err := NewPipeline(ctx, cfg, nil)
	require.NoError(t, err)
	defer p.Close()

	ds, ok := p.Buffers.Store().(*store.DirStore)
	require.True(t, ok)
	assert.Equal(t, dir, ds.Root())
}

func TestNewPipelineUnknownDriver(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Driver = "tape"
	_, err := NewPipeline(context.Background(), cfg, nil)
	assert.Error(t, err)
}
