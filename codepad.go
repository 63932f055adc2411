// Package codepad provides the source buffers of a live-coding sandbox: one
// buffer each for structure (HTML), style (CSS) and behavior (JavaScript).
package codepad

import (
	"fmt"
	"strings"
	"sync"
)

// Kind identifies one of the three source buffers.
type Kind int

const (
	Structure Kind = iota
	Style
	Behavior
)

// Kinds lists every buffer kind in composition order.
var Kinds = []Kind{Structure, Style, Behavior}

// String returns the lowercase kind name used in URLs and messages.
func (k Kind) String() string {
	switch k {
	case Structure:
		return "structure"
	case Style:
		return "style"
	case Behavior:
		return "behavior"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// StorageKey returns the fixed key under which the buffer text is persisted.
func (k Kind) StorageKey() string {
	switch k {
	case Structure:
		return "htmlCode"
	case Style:
		return "cssCode"
	case Behavior:
		return "jsCode"
	default:
		return ""
	}
}

// FileName returns the workspace file that mirrors the buffer in directory mode.
func (k Kind) FileName() string {
	switch k {
	case Structure:
		return "index.html"
	case Style:
		return "style.css"
	case Behavior:
		return "script.js"
	default:
		return ""
	}
}

// ParseKind resolves a kind from its name, storage key, file name or
// editor language alias ("html", "css", "js").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "structure", "html", "htmlcode", "index.html":
		return Structure, nil
	case "style", "css", "csscode", "style.css":
		return Style, nil
	case "behavior", "behaviour", "js", "javascript", "jscode", "script.js":
		return Behavior, nil
	}
	return 0, fmt.Errorf("unknown buffer kind %q", s)
}

// Sources is a snapshot of all three buffer texts.
type Sources struct {
	Structure string `json:"structure"`
	Style     string `json:"style"`
	Behavior  string `json:"behavior"`
}

// Get returns the text for kind.
func (s Sources) Get(kind Kind) string {
	switch kind {
	case Structure:
		return s.Structure
	case Style:
		return s.Style
	case Behavior:
		return s.Behavior
	}
	return ""
}

// ChangeFunc is called after a buffer's text changed.
type ChangeFunc func(kind Kind, text string)

// SourceBuffer is an editable text buffer with change notification.
type SourceBuffer struct {
	kind Kind

	mu        sync.RWMutex
	text      string
	listeners map[int]ChangeFunc
	nextID    int
}

// NewSourceBuffer creates a buffer holding the given initial text.
func NewSourceBuffer(kind Kind, text string) *SourceBuffer {
	return &SourceBuffer{
		kind:      kind,
		text:      text,
		listeners: make(map[int]ChangeFunc),
	}
}

// Kind returns the buffer kind.
func (b *SourceBuffer) Kind() Kind {
	return b.kind
}

// Value returns the current text.
func (b *SourceBuffer) Value() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text
}

// SetValue replaces the text and notifies listeners. Setting the text the
// buffer already holds is not an edit and notifies nobody. It reports whether
// the text changed.
func (b *SourceBuffer) SetValue(text string) bool {
	b.mu.Lock()
	if b.text == text {
		b.mu.Unlock()
		return false
	}
	b.text = text
	listeners := make([]ChangeFunc, 0, len(b.listeners))
	for id := 0; id < b.nextID; id++ {
		if fn, ok := b.listeners[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	b.mu.Unlock()

	// Listeners run outside the lock so they may read the buffer.
	for _, fn := range listeners {
		fn(b.kind, text)
	}
	return true
}

// OnChange registers fn for change notifications and returns a function that
// removes it again. Listeners are called in registration order.
func (b *SourceBuffer) OnChange(fn ChangeFunc) (cancel func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Workspace holds the three buffers of one page session.
type Workspace struct {
	buffers [3]*SourceBuffer
}

// NewWorkspace creates a workspace with the compiled-in default texts.
func NewWorkspace() *Workspace {
	return NewWorkspaceFrom(DefaultSources())
}

// NewWorkspaceFrom creates a workspace initialised with src.
func NewWorkspaceFrom(src Sources) *Workspace {
	w := &Workspace{}
	for _, kind := range Kinds {
		w.buffers[kind] = NewSourceBuffer(kind, src.Get(kind))
	}
	return w
}

// Buffer returns the buffer for kind. It panics on an unknown kind.
func (w *Workspace) Buffer(kind Kind) *SourceBuffer {
	return w.buffers[kind]
}

// Snapshot reads the current text of all three buffers.
func (w *Workspace) Snapshot() Sources {
	return Sources{
		Structure: w.buffers[Structure].Value(),
		Style:     w.buffers[Style].Value(),
		Behavior:  w.buffers[Behavior].Value(),
	}
}

// OnChange subscribes fn to all three buffers.
func (w *Workspace) OnChange(fn ChangeFunc) (cancel func()) {
	cancels := make([]func(), 0, len(w.buffers))
	for _, b := range w.buffers {
		cancels = append(cancels, b.OnChange(fn))
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

// DefaultSources returns the texts a fresh workspace starts with.
func DefaultSources() Sources {
	return Sources{
		Structure: defaultStructure,
		Style:     defaultStyle,
		Behavior:  defaultBehavior,
	}
}

const defaultStructure = `<h1 id="title">Hello, codepad</h1>
<p>Edit the HTML, CSS and JavaScript panes to see the preview update.</p>
<button id="greet">Say hi</button>
`

const defaultStyle = `body {
    font-family: system-ui, sans-serif;
    margin: 2rem;
}

h1 {
    color: #bd93f9;
}
`

const defaultBehavior = `document.getElementById("greet").addEventListener("click", function () {
    console.log("hi from the preview");
});
`
