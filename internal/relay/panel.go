package relay

import "sync"

// PanelEventType distinguishes panel notifications.
type PanelEventType string

const (
	PanelCleared PanelEventType = "clear"
	PanelEntry   PanelEventType = "entry"
)

// PanelEvent is delivered to panel subscribers.
type PanelEvent struct {
	Type     PanelEventType
	Revision uint64
	Message  Message
}

// Panel is the host-visible console. Entries are kept in sequence order.
// A bounded panel drops its oldest entries once full.
type Panel struct {
	mu          sync.Mutex
	entries     []Message
	revision    uint64
	maxEntries  int
	subscribers map[int]func(PanelEvent)
	nextID      int
}

// NewPanel creates a panel holding at most maxEntries messages, or every
// message when maxEntries is zero or less.
func NewPanel(maxEntries int) *Panel {
	return &Panel{
		maxEntries:  maxEntries,
		subscribers: make(map[int]func(PanelEvent)),
	}
}

// Clear empties the panel at the start of a revision.
func (p *Panel) Clear(revision uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = nil
	p.revision = revision
	p.publish(PanelEvent{Type: PanelCleared, Revision: revision})
}

// Append adds a message.
func (p *Panel) Append(msg Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.maxEntries > 0 && len(p.entries) >= p.maxEntries {
		// Drop the oldest entry
		copy(p.entries, p.entries[1:])
		p.entries = p.entries[:len(p.entries)-1]
	}
	p.entries = append(p.entries, msg)
	p.publish(PanelEvent{Type: PanelEntry, Revision: msg.Revision, Message: msg})
}

// Entries returns a copy of the current messages.
func (p *Panel) Entries() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Message, len(p.entries))
	copy(out, p.entries)
	return out
}

// Revision returns the revision the panel was last cleared for.
func (p *Panel) Revision() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.revision
}

// Len returns the number of messages.
func (p *Panel) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Subscribe registers fn for panel events. fn is called with the panel lock
// held, so events arrive in exactly the order they happened; fn must not call
// back into the panel and should hand work off quickly.
func (p *Panel) Subscribe(fn func(PanelEvent)) (cancel func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subscribers[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subscribers, id)
		p.mu.Unlock()
	}
}

// SubscribeReplay is Subscribe, except fn first receives a clear event for
// the current revision followed by every retained entry. Replay and
// registration happen under one lock, so no event is missed or repeated.
func (p *Panel) SubscribeReplay(fn func(PanelEvent)) (cancel func()) {
	p.mu.Lock()
	fn(PanelEvent{Type: PanelCleared, Revision: p.revision})
	for _, msg := range p.entries {
		fn(PanelEvent{Type: PanelEntry, Revision: msg.Revision, Message: msg})
	}
	id := p.nextID
	p.nextID++
	p.subscribers[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subscribers, id)
		p.mu.Unlock()
	}
}

func (p *Panel) publish(ev PanelEvent) {
	for id := 0; id < p.nextID; id++ {
		if fn, ok := p.subscribers[id]; ok {
			fn(ev)
		}
	}
}
