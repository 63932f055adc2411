package relay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func raw(t *testing.T, values ...any) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		out = append(out, data)
	}
	return out
}

func newTestRelay(opts ...Option) (*Relay, *Panel) {
	panel := NewPanel(0)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time { return fixed })}, opts...)
	return New(panel, zap.NewNop(), opts...), panel
}

func TestFormatRaw(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want string
	}{
		{"single string", []any{"hi"}, "hi"},
		{"strings joined", []any{"a", "b", "c"}, "a b c"},
		{"numbers and bools", []any{1, 2.5, true, nil}, "1 2.5 true null"},
		{"object", []any{"value:", map[string]any{"a": 1, "b": []int{1, 2}}}, `value: {"a":1,"b":[1,2]}`},
		{"array", []any{[]string{"x", "y"}}, `["x","y"]`},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRaw(raw(t, tt.args...)))
		})
	}
}

func TestFormatRawCompactsWhitespace(t *testing.T) {
	args := []json.RawMessage{json.RawMessage(`{ "a" : 1 }`), json.RawMessage(` "s" `)}
	assert.Equal(t, `{"a":1} s`, FormatRaw(args))
}

func TestFormatGoValues(t *testing.T) {
	assert.Equal(t, `hi 3 {"k":"v"} null`, Format("hi", 3, map[string]string{"k": "v"}, nil))
}

func TestFormatUncaught(t *testing.T) {
	got := FormatUncaught("Uncaught Error: boom", "about:srcdoc", 3, 7)
	assert.Equal(t, "Error: Uncaught Error: boom at about:srcdoc:3:7", got)
}

func TestEventSeverity(t *testing.T) {
	assert.Equal(t, SeverityLog, Event{Kind: "log"}.Severity())
	assert.Equal(t, SeverityWarn, Event{Kind: "warn"}.Severity())
	assert.Equal(t, SeverityError, Event{Kind: "error"}.Severity())
	assert.Equal(t, SeverityError, Event{Kind: "uncaught"}.Severity())
	assert.Equal(t, SeverityLog, Event{Kind: "info"}.Severity())
}

func TestRelayPreservesOrderAndSeverity(t *testing.T) {
	r, panel := newTestRelay()
	r.Begin(1)

	kinds := []string{"log", "warn", "error", "log", "uncaught", "warn"}
	for i, kind := range kinds {
		ev := Event{Revision: 1, Kind: kind, Args: raw(t, "msg", i)}
		if kind == "uncaught" {
			ev = Event{Revision: 1, Kind: kind, Message: "boom", Source: "preview", Line: 1, Column: 2}
		}
		_, ok := r.Accept(ev)
		require.True(t, ok)
	}

	entries := panel.Entries()
	require.Len(t, entries, len(kinds))
	for i, msg := range entries {
		assert.Equal(t, Event{Kind: kinds[i]}.Severity(), msg.Severity, "entry %d", i)
		assert.Equal(t, uint64(1), msg.Revision)
		if i > 0 {
			assert.Greater(t, msg.Seq, entries[i-1].Seq)
		}
	}
	assert.Equal(t, "msg 0", entries[0].Text)
	assert.Equal(t, "Error: boom at preview:1:2", entries[4].Text)
}

func TestRelayDropsStaleRevisions(t *testing.T) {
	r, panel := newTestRelay()
	r.Begin(1)
	r.Begin(2)

	_, ok := r.Accept(Event{Revision: 1, Kind: "log", Args: raw(t, "late timer")})
	assert.False(t, ok)

	msg, ok := r.Accept(Event{Revision: 2, Kind: "log", Args: raw(t, "current")})
	assert.True(t, ok)
	assert.Equal(t, uint64(2), msg.Revision)

	entries := panel.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "current", entries[0].Text)
}

func TestRelayKeepStale(t *testing.T) {
	r, panel := newTestRelay(WithKeepStale(true))
	r.Begin(5)

	msg, ok := r.Accept(Event{Revision: 4, Kind: "warn", Args: raw(t, "late")})
	assert.True(t, ok)
	assert.Equal(t, uint64(4), msg.Revision)
	assert.Equal(t, 1, panel.Len())
}

func TestRelayUntaggedEventsUseCurrentRevision(t *testing.T) {
	r, _ := newTestRelay()
	r.Begin(9)

	msg, ok := r.Accept(Event{Kind: "log", Args: raw(t, "headless")})
	require.True(t, ok)
	assert.Equal(t, uint64(9), msg.Revision)
}

func TestBeginClearsPanel(t *testing.T) {
	r, panel := newTestRelay()
	r.Begin(1)
	r.Log("hi")
	r.Warn("careful")
	require.Equal(t, 2, panel.Len())

	r.Begin(2)
	assert.Equal(t, 0, panel.Len())
	assert.Equal(t, uint64(2), panel.Revision())
	assert.Equal(t, uint64(2), r.Revision())
}

func TestSequenceKeepsIncreasingAcrossRevisions(t *testing.T) {
	r, _ := newTestRelay()
	r.Begin(1)
	first := r.Log("a")
	r.Begin(2)
	second := r.Error("b")

	assert.Greater(t, second.Seq, first.Seq)
	assert.Equal(t, SeverityError, second.Severity)
}

func TestHostEntryPoints(t *testing.T) {
	r, panel := newTestRelay()
	r.Begin(1)
	r.Log("hi", 1)
	r.Warn(map[string]int{"n": 2})
	r.Error("failed:", assert.AnError)

	entries := panel.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "hi 1", entries[0].Text)
	assert.Equal(t, `{"n":2}`, entries[1].Text)
	assert.Equal(t, "failed: "+assert.AnError.Error(), entries[2].Text)
}

func TestPanelSubscribersSeeClearBeforeEntries(t *testing.T) {
	r, panel := newTestRelay()

	var events []PanelEvent
	cancel := panel.Subscribe(func(ev PanelEvent) { events = append(events, ev) })
	defer cancel()

	r.Begin(1)
	r.Log("hi")
	r.Begin(2)
	r.Log("hi")
	r.Log("bye")

	require.Len(t, events, 5)
	assert.Equal(t, PanelCleared, events[0].Type)
	assert.Equal(t, PanelEntry, events[1].Type)
	assert.Equal(t, PanelCleared, events[2].Type)
	assert.Equal(t, uint64(2), events[2].Revision)
	assert.Equal(t, "hi", events[3].Message.Text)
	assert.Equal(t, "bye", events[4].Message.Text)
}

func TestPanelIsBounded(t *testing.T) {
	panel := NewPanel(3)
	for i := 1; i <= 5; i++ {
		panel.Append(Message{Seq: uint64(i)})
	}

	entries := panel.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(3), entries[0].Seq)
	assert.Equal(t, uint64(5), entries[2].Seq)
}

func TestPanelUnbounded(t *testing.T) {
	panel := NewPanel(0)
	for i := 1; i <= 5000; i++ {
		panel.Append(Message{Seq: uint64(i)})
	}

	entries := panel.Entries()
	require.Len(t, entries, 5000)
	assert.Equal(t, uint64(1), entries[0].Seq)
}

func TestPanelSubscribeReplay(t *testing.T) {
	r, panel := newTestRelay()
	r.Begin(4)
	r.Log("first")
	r.Warn("second")

	var events []PanelEvent
	cancel := panel.SubscribeReplay(func(ev PanelEvent) { events = append(events, ev) })
	defer cancel()

	r.Error("third")

	require.Len(t, events, 4)
	assert.Equal(t, PanelEvent{Type: PanelCleared, Revision: 4}, events[0])
	assert.Equal(t, "first", events[1].Message.Text)
	assert.Equal(t, "second", events[2].Message.Text)
	assert.Equal(t, "third", events[3].Message.Text)

	cancel()
	r.Log("after cancel")
	assert.Len(t, events, 4)
}
