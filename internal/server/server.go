// Package server serves the host page and connects it to the live-preview
// pipeline over WebSocket.
package server

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/livetemplate/codepad"
	"github.com/livetemplate/codepad/internal/assets"
	"github.com/livetemplate/codepad/internal/config"
	"github.com/livetemplate/codepad/internal/layout"
	"github.com/livetemplate/codepad/internal/preview"
	"github.com/livetemplate/codepad/internal/rebuild"
	"github.com/livetemplate/codepad/internal/relay"
	"github.com/livetemplate/codepad/internal/store"
	"go.uber.org/zap"
)

// Origins used for buffer changes that do not come from a host page.
const (
	OriginAPI   = "api"
	OriginWatch = "watch"
)

// Server is the codepad development server.
type Server struct {
	config    *config.Config
	workspace *codepad.Workspace
	buffers   *store.BufferStore
	relay     *relay.Relay
	host      *preview.Host
	trigger   *rebuild.Trigger

	logger    *zap.Logger
	wsLogger  *zap.Logger
	apiLogger *zap.Logger

	connMu      sync.RWMutex
	connections []*connection // in connect order; the first is primary

	// originMu serialises buffer writes so the change listener knows which
	// connection an edit came from.
	originMu sync.Mutex
	origin   atomic.Value // string

	layoutMu sync.RWMutex
	layout   *layout.Layout

	watcher *Watcher

	// browserDiagnostics is false when a headless surface owns diagnostics.
	browserDiagnostics bool
}

// New creates a server for an assembled pipeline.
func New(cfg *config.Config, p *Pipeline, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:             cfg,
		workspace:          p.Workspace,
		buffers:            p.Buffers,
		relay:              p.Relay,
		host:               p.Host,
		trigger:            p.Trigger,
		logger:             logger.Named("server"),
		wsLogger:           logger.Named("ws"),
		apiLogger:          logger.Named("api"),
		layout:             p.Layout,
		browserDiagnostics: !cfg.Preview.IsHeadless(),
	}

	s.workspace.OnChange(s.broadcastBuffer)
	return s
}

// Handler builds the HTTP routes. ctx bounds background work started by
// middleware.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware())

	r.Get("/ws", s.serveWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(compressionMiddleware)
		r.Get("/", s.serveIndex)
		r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServer(http.FS(assets.HostFS()))))
		r.Get("/preview/current", s.handlePreviewCurrent)
		r.Get("/preview/{revision}", s.handlePreview)
	})

	r.Route("/api", func(r chi.Router) {
		api := s.config.API
		var authHeader string
		if api.IsAuthEnabled() {
			authHeader = api.Auth.GetHeaderName()
		}
		rateLimit, _ := RateLimitMiddleware(ctx, api.GetRateLimitRPS(), api.GetRateLimitBurst(), api.GetMaxTrackedIPs(), s.apiLogger)

		r.Use(CORSMiddleware(api.GetCORSOrigins(), authHeader))
		r.Use(rateLimit)
		if api.IsAuthEnabled() {
			r.Use(AuthMiddleware(api.Auth))
		}
		s.mountAPI(r)
	})

	return r
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	page, err := assets.HostPage(s.config.Title)
	if err != nil {
		s.logger.Error("failed to render host page", zap.Error(err))
		http.Error(w, "host page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(page)
}

// SetBuffer applies an edit to the buffer of kind. origin identifies the
// writer so the edit is not echoed back to it.
func (s *Server) SetBuffer(origin string, kind codepad.Kind, text string) bool {
	s.originMu.Lock()
	defer s.originMu.Unlock()

	s.origin.Store(origin)
	defer s.origin.Store("")
	return s.workspace.Buffer(kind).SetValue(text)
}

// broadcastBuffer runs inside SetValue, so it sees the origin set by
// SetBuffer. Changes made directly on the workspace have no origin and go
// to every host page.
func (s *Server) broadcastBuffer(kind codepad.Kind, text string) {
	origin, _ := s.origin.Load().(string)
	s.connMu.RLock()
	defer s.connMu.RUnlock()

	for _, c := range s.connections {
		if c.id == origin {
			continue
		}
		c.enqueue(ActionBuffer, ChangeData{Kind: kind.String(), Text: text})
	}
}

// Layout returns the last reported pane layout, or nil.
func (s *Server) Layout() *layout.Layout {
	s.layoutMu.RLock()
	defer s.layoutMu.RUnlock()
	if s.layout == nil {
		return nil
	}
	l := *s.layout
	return &l
}

// SetLayout clamps and persists a layout reported by a host page and
// forwards it to the other pages.
func (s *Server) SetLayout(origin string, l layout.Layout) {
	clamped := l.Clamped()

	s.layoutMu.Lock()
	s.layout = &clamped
	s.layoutMu.Unlock()

	if err := s.buffers.SaveJSON(context.Background(), layout.StorageKey, clamped); err != nil {
		s.logger.Warn("failed to persist layout", zap.Error(err))
	}

	s.connMu.RLock()
	defer s.connMu.RUnlock()
	for _, c := range s.connections {
		if c.id != origin {
			c.enqueue(ActionLayout, clamped)
		}
	}
}

// RegisterConnection adds a host page connection.
func (s *Server) RegisterConnection(c *connection) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.connections = append(s.connections, c)
	s.logger.Info("host page connected",
		zap.String("conn", c.id),
		zap.Int("connections", len(s.connections)))
}

// UnregisterConnection removes a host page connection.
func (s *Server) UnregisterConnection(c *connection) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	for i, existing := range s.connections {
		if existing == c {
			s.connections = append(s.connections[:i], s.connections[i+1:]...)
			break
		}
	}
	s.logger.Info("host page disconnected",
		zap.String("conn", c.id),
		zap.Int("connections", len(s.connections)))
}

// ConnectionCount returns the number of connected host pages.
func (s *Server) ConnectionCount() int {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return len(s.connections)
}

// acceptsDiagnosticsFrom reports whether diagnostics posted by connection id
// reach the relay. Every connected page runs the same document, so only the
// earliest one still connected is listened to.
func (s *Server) acceptsDiagnosticsFrom(id string) bool {
	if !s.browserDiagnostics {
		return false
	}
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return len(s.connections) > 0 && s.connections[0].id == id
}

// EnableWatch mirrors external edits of the workspace directory files into
// the buffers.
func (s *Server) EnableWatch(dir string) error {
	w, err := NewWatcher(dir, func(kind codepad.Kind, text string) {
		if s.SetBuffer(OriginWatch, kind, text) {
			s.logger.Info("buffer reloaded from disk", zap.Stringer("kind", kind))
		}
	}, s.logger.Named("watch"))
	if err != nil {
		return err
	}
	if ds, ok := s.buffers.Store().(*store.DirStore); ok && filepath.Clean(ds.Root()) == filepath.Clean(dir) {
		w.SkipOwnWrites(ds)
	}

	s.watcher = w
	s.watcher.Start()
	s.logger.Info("file watcher started", zap.String("dir", dir))
	return nil
}

// StopWatch stops the file watcher if it's running.
func (s *Server) StopWatch() error {
	if s.watcher != nil {
		return s.watcher.Stop()
	}
	return nil
}

// Close disconnects every host page and stops the watcher.
func (s *Server) Close() error {
	s.connMu.RLock()
	conns := append([]*connection(nil), s.connections...)
	s.connMu.RUnlock()
	for _, c := range conns {
		c.close()
	}
	return s.StopWatch()
}
