package preview

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/livetemplate/codepad/internal/compose"
	"github.com/livetemplate/codepad/internal/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests drive a real Chrome and only run when CODEPAD_E2E is set.
// CODEPAD_CHROME_URL points them at a remote Chrome instead of a local one.
func newTestHeadless(t *testing.T) (*Headless, *relay.Relay) {
	t.Helper()
	if os.Getenv("CODEPAD_E2E") == "" {
		t.Skip("CODEPAD_E2E not set")
	}

	r := relay.New(relay.NewPanel(0), nil)
	h, err := NewHeadless(context.Background(), HeadlessOptions{
		ChromeURL: os.Getenv("CODEPAD_CHROME_URL"),
		Timeout:   20 * time.Second,
	}, r, nil)
	require.NoError(t, err)
	t.Cleanup(h.Close)
	return h, r
}

func waitForEntries(t *testing.T, p *relay.Panel, n int) []relay.Message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if p.Len() >= n {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	return p.Entries()
}

func TestHeadlessRelaysConsoleInOrder(t *testing.T) {
	h, r := newTestHeadless(t)

	r.Begin(1)
	doc := compose.Compose(`<p id="x"></p>`, `p{color:red}`, `console.log("hi"); console.warn("w", {a: 1}); console.error("bye")`)
	require.NoError(t, h.Replace(Revision{ID: 1, Document: doc}))

	entries := waitForEntries(t, r.Panel(), 3)
	require.Len(t, entries, 3)
	assert.Equal(t, relay.SeverityLog, entries[0].Severity)
	assert.Equal(t, "hi", entries[0].Text)
	assert.Equal(t, relay.SeverityWarn, entries[1].Severity)
	assert.Equal(t, `w {"a":1}`, entries[1].Text)
	assert.Equal(t, relay.SeverityError, entries[2].Severity)
}

func TestHeadlessReportsUncaughtErrors(t *testing.T) {
	h, r := newTestHeadless(t)

	r.Begin(1)
	require.NoError(t, h.Replace(Revision{ID: 1, Document: compose.Compose("", "", `throw new Error("boom")`)}))

	entries := waitForEntries(t, r.Panel(), 1)
	require.Len(t, entries, 1)
	assert.Equal(t, relay.SeverityError, entries[0].Severity)
	assert.True(t, strings.HasPrefix(entries[0].Text, "Error: "))
	assert.Contains(t, entries[0].Text, "boom")
}

func TestHeadlessDiscardsPreviousRevisionTimers(t *testing.T) {
	h, r := newTestHeadless(t)

	r.Begin(1)
	require.NoError(t, h.Replace(Revision{ID: 1, Document: compose.Compose("", "", `setInterval(function () { console.log("tick") }, 20)`)}))
	waitForEntries(t, r.Panel(), 1)

	r.Begin(2)
	require.NoError(t, h.Replace(Revision{ID: 2, Document: compose.Compose("", "", ``)}))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, r.Panel().Len(), "timers from the previous revision must not fire")
}
