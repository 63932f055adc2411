package server

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/livetemplate/codepad"
	"github.com/livetemplate/codepad/internal/store"
	"go.uber.org/zap"
)

// Watcher turns edits of the workspace directory files (index.html,
// style.css, script.js) into buffer changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	rootDir  string
	onChange func(kind codepad.Kind, text string)
	done     chan struct{}
	stopped  chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
	logger   *zap.Logger

	// own is set when the buffers are persisted into the watched directory.
	own *store.DirStore
}

// NewWatcher creates a watcher for the buffer files in rootDir. Only the
// directory itself is watched; subdirectories such as .codepad are not.
func NewWatcher(rootDir string, onChange func(codepad.Kind, string), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Editors often replace files by rename, so the directory is watched
	// rather than the files themselves.
	if err := fsWatcher.Add(rootDir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return &Watcher{
		watcher:  fsWatcher,
		rootDir:  rootDir,
		onChange: onChange,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		logger:   logger,
	}, nil
}

// kindForFile maps a watched file name to its buffer kind.
func kindForFile(name string) (codepad.Kind, bool) {
	base := filepath.Base(name)
	for _, kind := range codepad.Kinds {
		if kind.FileName() == base {
			return kind, true
		}
	}
	return 0, false
}

// SkipOwnWrites makes the watcher ignore files whose content is the last
// text ds saved for them. Without it, a late event for an earlier save would
// put stale text back into a buffer that has moved on. Call before Start.
func (w *Watcher) SkipOwnWrites(ds *store.DirStore) {
	w.own = ds
}

// Start begins watching for file changes.
func (w *Watcher) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(w.stopped)
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				kind, ok := kindForFile(event.Name)
				if !ok {
					continue
				}
				w.reload(kind, event.Name)

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watch error", zap.Error(err))

			case <-w.done:
				return
			}
		}
	}()
}

func (w *Watcher) reload(kind codepad.Kind, path string) {
	text, external, err := w.read(kind, path)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		w.logger.Warn("reload failed", zap.String("file", path), zap.Error(err))
		return
	}
	if !external {
		w.logger.Debug("skipping own write", zap.String("file", filepath.Base(path)))
		return
	}

	w.logger.Debug("file changed", zap.String("file", filepath.Base(path)))
	w.onChange(kind, text)
}

func (w *Watcher) read(kind codepad.Kind, path string) (string, bool, error) {
	if w.own != nil {
		return w.own.ReadExternal(kind.StorageKey())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		if w.started.Load() {
			<-w.stopped
		}
	})
	return err
}
