package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/livetemplate/codepad"
	"github.com/livetemplate/codepad/internal/config"
	"github.com/livetemplate/codepad/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKindForFile(t *testing.T) {
	tests := []struct {
		name string
		kind codepad.Kind
		ok   bool
	}{
		{"/work/index.html", codepad.Structure, true},
		{"/work/style.css", codepad.Style, true},
		{"script.js", codepad.Behavior, true},
		{"/work/index.css", 0, false},
		{"/work/.style.css.123.tmp", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := kindForFile(tt.name)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.kind, kind)
			}
		})
	}
}

type fileChange struct {
	kind codepad.Kind
	text string
}

func TestWatcherReportsBufferFiles(t *testing.T) {
	dir := t.TempDir()
	changes := make(chan fileChange, 16)

	w, err := NewWatcher(dir, func(kind codepad.Kind, text string) {
		changes <- fileChange{kind, text}
	}, zap.NewNop())
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "style.css"), []byte("p { margin: 0; }"), 0644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			require.Equal(t, codepad.Style, c.kind)
			if c.text == "p { margin: 0; }" {
				return
			}
			// A write can be observed before the whole text lands.
		case <-deadline:
			t.Fatal("no change reported for style.css")
		}
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), func(codepad.Kind, string) {}, nil)
	require.NoError(t, err)

	assert.NoError(t, w.Stop(), "stopping a watcher that never started")
	assert.NoError(t, w.Stop())
}

func TestNewWatcherMissingDir(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing"), func(codepad.Kind, string) {}, nil)
	assert.Error(t, err)
}

func TestEnableWatchUpdatesBuffers(t *testing.T) {
	dir := t.TempDir()
	ts := newTestServer(t, func(cfg *config.Config) { cfg.Workspace.Dir = dir })
	require.NoError(t, ts.EnableWatch(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "script.js"), []byte(`console.log("disk")`), 0644))

	require.Eventually(t, func() bool {
		return ts.pipeline.Workspace.Buffer(codepad.Behavior).Value() == `console.log("disk")`
	}, 5*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool {
		return ts.trigger.Revision() >= 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatchKeepsNewerEditOverOwnSave(t *testing.T) {
	dir := t.TempDir()
	ds, err := store.NewDirStore(dir)
	require.NoError(t, err)
	ts := newTestServerWithStore(t, ds, func(cfg *config.Config) {
		cfg.Workspace.Dir = dir
		cfg.Rebuild.Debounce = "150ms"
	})
	require.NoError(t, ts.EnableWatch(dir))

	script := filepath.Join(dir, "script.js")
	fileText := func() string {
		data, _ := os.ReadFile(script)
		return string(data)
	}
	buf := ts.pipeline.Workspace.Buffer(codepad.Behavior)

	ts.SetBuffer("page", codepad.Behavior, "A")
	require.Eventually(t, func() bool { return fileText() == "A" }, 5*time.Second, 10*time.Millisecond)

	// The page has typed on while the event for the save of "A" is handled.
	ts.SetBuffer("page", codepad.Behavior, "AB")
	ts.watcher.reload(codepad.Behavior, script)
	assert.Equal(t, "AB", buf.Value())

	require.Eventually(t, func() bool { return fileText() == "AB" }, 5*time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return buf.Value() != "AB" }, 300*time.Millisecond, 20*time.Millisecond)

	// Edits made by another tool still come through. Write it the way
	// editors do, so the watcher never sees a half written file.
	tmp := filepath.Join(dir, "script.js.swp")
	require.NoError(t, os.WriteFile(tmp, []byte("external"), 0644))
	require.NoError(t, os.Rename(tmp, script))
	require.Eventually(t, func() bool { return buf.Value() == "external" }, 5*time.Second, 20*time.Millisecond)
}
