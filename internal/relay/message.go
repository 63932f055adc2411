// Package relay forwards diagnostics emitted inside an isolated preview
// context to the host-visible console panel, in emission order.
package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Severity classifies a diagnostic message.
type Severity string

const (
	SeverityLog   Severity = "log"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Message is one console panel entry.
type Message struct {
	Seq      uint64    `json:"seq"`
	Revision uint64    `json:"revision"`
	Severity Severity  `json:"severity"`
	Text     string    `json:"text"`
	Time     time.Time `json:"time"`
}

// Event is the structured diagnostic posted by the bridge script of a
// preview document.
type Event struct {
	Revision uint64            `json:"revision"`
	Kind     string            `json:"kind"` // log, warn, error or uncaught
	Args     []json.RawMessage `json:"args,omitempty"`

	// Uncaught error details.
	Message string `json:"message,omitempty"`
	Source  string `json:"source,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// Severity maps the event kind to a console severity. Unknown kinds are
// treated as plain logs.
func (e Event) Severity() Severity {
	switch e.Kind {
	case "warn":
		return SeverityWarn
	case "error", "uncaught":
		return SeverityError
	default:
		return SeverityLog
	}
}

// Text formats the event as a single console line.
func (e Event) Text() string {
	if e.Kind == "uncaught" {
		return FormatUncaught(e.Message, e.Source, e.Line, e.Column)
	}
	return FormatRaw(e.Args)
}

// FormatUncaught formats an uncaught error reported by the preview's global
// error handler.
func FormatUncaught(message, source string, line, column int) string {
	return "Error: " + message + " at " + source + ":" + strconv.Itoa(line) + ":" + strconv.Itoa(column)
}

// FormatRaw joins JSON-encoded arguments with single spaces. Strings are
// written verbatim and every other value as compact JSON.
func FormatRaw(args []json.RawMessage) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, formatRawArg(arg))
	}
	return strings.Join(parts, " ")
}

func formatRawArg(arg json.RawMessage) string {
	trimmed := bytes.TrimSpace(arg)
	if len(trimmed) == 0 {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}

// Format joins Go values the same way FormatRaw joins bridge arguments.
func Format(args ...any) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, formatValue(arg))
	}
	return strings.Join(parts, " ")
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	case json.RawMessage:
		return formatRawArg(x)
	case nil:
		return "null"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
