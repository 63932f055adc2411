package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/livetemplate/codepad"
	"github.com/livetemplate/codepad/internal/layout"
	"github.com/livetemplate/codepad/internal/preview"
	"github.com/livetemplate/codepad/internal/relay"
	"go.uber.org/zap"
)

const (
	// sendQueueSize bounds the messages buffered for one host page.
	sendQueueSize = 256
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxMessage    = 2 << 20
)

// Actions exchanged with the host page.
const (
	// host page -> server
	ActionChange     = "change"
	ActionDiagnostic = "diagnostic"
	ActionLayout     = "layout"

	// server -> host page
	ActionInit    = "init"
	ActionBuffer  = "buffer"
	ActionClear   = "clear"
	ActionRender  = "render"
	ActionConsole = "console"
)

// MessageEnvelope is one WebSocket message in either direction.
type MessageEnvelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ChangeData is an edit made in one of the host page editors.
type ChangeData struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// InitData is sent once when a host page connects, before any render.
type InitData struct {
	ConnectionID string          `json:"connectionID"`
	Title        string          `json:"title"`
	Sources      codepad.Sources `json:"sources"`
	Layout       *layout.Layout  `json:"layout,omitempty"`
}

// ClearData tells the host page to empty its console panel.
type ClearData struct {
	Revision uint64 `json:"revision"`
}

// connection is one connected host page. Everything sent to it goes
// through a single queue so clear, render and console messages keep the
// order they were produced in.
type connection struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

func newConnection(conn *websocket.Conn, logger *zap.Logger) *connection {
	id := uuid.NewString()
	return &connection{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("conn", id)),
	}
}

// enqueue marshals and queues a message. A host page that cannot keep up
// is disconnected rather than allowed to block rebuilds.
func (c *connection) enqueue(action string, data any) {
	env := MessageEnvelope{Action: action}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			c.logger.Error("failed to marshal message", zap.String("action", action), zap.Error(err))
			return
		}
		env.Data = raw
	}
	payload, err := json.Marshal(env)
	if err != nil {
		c.logger.Error("failed to marshal envelope", zap.String("action", action), zap.Error(err))
		return
	}

	select {
	case <-c.done:
	case c.send <- payload:
	default:
		c.logger.Warn("send queue full, dropping connection")
		c.close()
	}
}

// Replace implements preview.Surface by asking the host page to rewrite
// its preview frame.
func (c *connection) Replace(rev preview.Revision) error {
	c.enqueue(ActionRender, rev)
	return nil
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writePump is the only goroutine writing to the socket.
func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// serveWebSocket upgrades a host page connection and runs it until the
// page goes away.
// upgrader accepts handshakes from pages this server served and from the
// configured CORS origins. Clients that send no Origin are not browsers.
func (s *Server) upgrader() *websocket.Upgrader {
	origins := s.config.API.GetCORSOrigins()
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return sameOrigin(r, origins)
		},
	}
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	// A connected page can read and rewrite every buffer, so the socket
	// takes the same key as the REST API.
	if api := s.config.API; api.IsAuthEnabled() {
		if err := checkAPIKey(r, api.Auth.GetAPIKey(), api.Auth.GetHeaderName(), true); err != nil {
			s.wsLogger.Warn("websocket rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
			writeJSONError(w, http.StatusUnauthorized, err.Error())
			return
		}
	}

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.wsLogger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newConnection(conn, s.wsLogger)
	go c.writePump()

	c.enqueue(ActionInit, InitData{
		ConnectionID: c.id,
		Title:        s.config.Title,
		Sources:      s.workspace.Snapshot(),
		Layout:       s.Layout(),
	})

	s.RegisterConnection(c)
	detach := s.host.Attach(c.id, c)
	cancelConsole := s.relay.Panel().SubscribeReplay(func(ev relay.PanelEvent) {
		switch ev.Type {
		case relay.PanelCleared:
			c.enqueue(ActionClear, ClearData{Revision: ev.Revision})
		case relay.PanelEntry:
			c.enqueue(ActionConsole, ev.Message)
		}
	})

	defer func() {
		cancelConsole()
		detach()
		s.UnregisterConnection(c)
		c.close()
	}()

	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read failed", zap.Error(err))
			}
			return
		}
		s.handleMessage(c, message)
	}
}

func (s *Server) handleMessage(c *connection, message []byte) {
	var env MessageEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.logger.Warn("invalid message", zap.Error(err))
		return
	}

	switch env.Action {
	case ActionChange:
		var change ChangeData
		if err := json.Unmarshal(env.Data, &change); err != nil {
			c.logger.Warn("invalid change", zap.Error(err))
			return
		}
		kind, err := codepad.ParseKind(change.Kind)
		if err != nil {
			c.logger.Warn("invalid change", zap.Error(err))
			return
		}
		s.SetBuffer(c.id, kind, change.Text)

	case ActionDiagnostic:
		if !s.acceptsDiagnosticsFrom(c.id) {
			return
		}
		var ev relay.Event
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			c.logger.Warn("invalid diagnostic", zap.Error(err))
			return
		}
		s.relay.Accept(ev)

	case ActionLayout:
		var l layout.Layout
		if err := json.Unmarshal(env.Data, &l); err != nil {
			c.logger.Warn("invalid layout", zap.Error(err))
			return
		}
		s.SetLayout(c.id, l)

	default:
		c.logger.Debug("unknown action", zap.String("action", env.Action))
	}
}
