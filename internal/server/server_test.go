package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/livetemplate/codepad/internal/config"
	"github.com/livetemplate/codepad/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testServer is a running server over a test store.
type testServer struct {
	*Server
	pipeline *Pipeline
	kv       store.Store
	http     *httptest.Server
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	return newTestServerWithStore(t, store.NewMemoryStore(), mutate...)
}

func newTestServerWithStore(t *testing.T, kv store.Store, mutate ...func(*config.Config)) *testServer {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Store = config.StoreConfig{Driver: "memory"}
	for _, m := range mutate {
		m(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPipelineWithStore(ctx, cfg, kv, zap.NewNop())
	srv := New(cfg, p, zap.NewNop())
	p.Start(ctx)

	ts := httptest.NewServer(srv.Handler(ctx))
	t.Cleanup(func() {
		_ = srv.Close()
		ts.Close()
		cancel()
		_ = p.Close()
	})

	return &testServer{Server: srv, pipeline: p, kv: kv, http: ts}
}

// hostPage is a WebSocket client standing in for a browser tab.
type hostPage struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

// connect opens a host page and waits until it is fully registered: the
// init, render and console replay messages have all arrived.
func (ts *testServer) connect(t *testing.T) *hostPage {
	t.Helper()

	conn, _, err := dialer().Dial(ts.wsURL(""), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	page := &hostPage{t: t, conn: conn}
	var init InitData
	page.expect(ActionInit, &init)
	page.id = init.ConnectionID
	page.expect(ActionRender, nil)
	page.expect(ActionClear, nil)
	return page
}

// next reads one envelope.
func (p *hostPage) next() MessageEnvelope {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env MessageEnvelope
	_, data, err := p.conn.ReadMessage()
	require.NoError(p.t, err)
	require.NoError(p.t, json.Unmarshal(data, &env))
	return env
}

// expect reads the next envelope, requires its action and decodes its data
// into v when v is non-nil.
func (p *hostPage) expect(action string, v any) {
	p.t.Helper()
	env := p.next()
	require.Equal(p.t, action, env.Action, "unexpected message: %s", env.Data)
	if v != nil {
		require.NoError(p.t, json.Unmarshal(env.Data, v))
	}
}

// skipUntil reads envelopes until one with action arrives.
func (p *hostPage) skipUntil(action string, v any) {
	p.t.Helper()
	for {
		env := p.next()
		if env.Action != action {
			continue
		}
		if v != nil {
			require.NoError(p.t, json.Unmarshal(env.Data, v))
		}
		return
	}
}

func (p *hostPage) send(action string, data any) {
	p.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(p.t, err)
	require.NoError(p.t, p.conn.WriteJSON(MessageEnvelope{Action: action, Data: raw}))
}

func dialer() *websocket.Dialer {
	return websocket.DefaultDialer
}
