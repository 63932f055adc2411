package relay

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Relay is the single diagnostic relay of a page session. It assigns
// sequence numbers, tags messages with their revision and appends them to the
// console panel.
type Relay struct {
	panel     *Panel
	logger    *zap.Logger
	keepStale bool
	now       func() time.Time

	mu       sync.Mutex
	seq      uint64
	revision uint64
}

// Option configures a Relay.
type Option func(*Relay)

// WithKeepStale keeps diagnostics whose revision is no longer current instead
// of dropping them.
func WithKeepStale(keep bool) Option {
	return func(r *Relay) {
		r.keepStale = keep
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

// New creates a relay writing to panel.
func New(panel *Panel, logger *zap.Logger, opts ...Option) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Relay{
		panel:  panel,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Panel returns the console panel the relay writes to.
func (r *Relay) Panel() *Panel {
	return r.panel
}

// Begin starts a new revision: the panel is cleared and from now on only
// diagnostics tagged with revision (or untagged ones) are accepted.
func (r *Relay) Begin(revision uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.revision = revision
	r.panel.Clear(revision)
}

// Revision returns the current revision.
func (r *Relay) Revision() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revision
}

// Log emits a log-severity diagnostic from the host process.
func (r *Relay) Log(args ...any) Message {
	return r.emitCurrent(SeverityLog, Format(args...))
}

// Warn emits a warn-severity diagnostic from the host process.
func (r *Relay) Warn(args ...any) Message {
	return r.emitCurrent(SeverityWarn, Format(args...))
}

// Error emits an error-severity diagnostic from the host process.
func (r *Relay) Error(args ...any) Message {
	return r.emitCurrent(SeverityError, Format(args...))
}

// Accept relays an event posted by a preview document. Events tagged with a
// revision other than the current one come from a discarded document and are
// dropped unless the relay keeps stale events. Untagged events are
// attributed to the current revision.
func (r *Relay) Accept(ev Event) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	revision := ev.Revision
	if revision == 0 {
		revision = r.revision
	}
	if revision != r.revision && !r.keepStale {
		r.logger.Debug("dropped stale diagnostic",
			zap.Uint64("revision", revision),
			zap.Uint64("current", r.revision),
			zap.String("kind", ev.Kind))
		return Message{}, false
	}
	return r.emit(revision, ev.Severity(), ev.Text()), true
}

func (r *Relay) emitCurrent(severity Severity, text string) Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.emit(r.revision, severity, text)
}

// emit must be called with r.mu held so sequence order and panel order agree.
func (r *Relay) emit(revision uint64, severity Severity, text string) Message {
	r.seq++
	msg := Message{
		Seq:      r.seq,
		Revision: revision,
		Severity: severity,
		Text:     text,
		Time:     r.now(),
	}

	r.logger.Debug("console",
		zap.Uint64("seq", msg.Seq),
		zap.Uint64("revision", revision),
		zap.String("severity", string(severity)),
		zap.String("text", text))

	r.panel.Append(msg)
	return msg
}
