package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/livetemplate/codepad/internal/relay"
	"go.uber.org/zap"
)

// BindingName is the CDP binding the bridge script posts events through when
// it runs in a headless surface.
const BindingName = "__codepadRelay"

// HeadlessOptions configures the headless Chrome surface.
type HeadlessOptions struct {
	// ChromeURL connects to an already running Chrome
	// (e.g. http://localhost:9222). Empty launches a local headless Chrome.
	ChromeURL string

	// Timeout bounds a single document replacement (default: 10s).
	Timeout time.Duration
}

// Headless renders revisions into a headless Chrome tab and relays the
// diagnostics its bridge posts through a CDP binding.
type Headless struct {
	ctx     context.Context
	cancel  context.CancelFunc
	relay   *relay.Relay
	logger  *zap.Logger
	timeout time.Duration
}

// NewHeadless starts (or connects to) Chrome and prepares a blank tab.
func NewHeadless(parent context.Context, opts HeadlessOptions, r *relay.Relay, logger *zap.Logger) (*Headless, error) {
	if r == nil {
		return nil, errors.New("headless: relay is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if opts.ChromeURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(parent, opts.ChromeURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(parent, chromedp.DefaultExecAllocatorOptions[:]...)
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))

	h := &Headless{
		ctx: tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
		relay:   r,
		logger:  logger,
		timeout: opts.Timeout,
	}

	chromedp.ListenTarget(tabCtx, h.onEvent)

	if err := chromedp.Run(tabCtx, runtime.Enable(), runtime.AddBinding(BindingName)); err != nil {
		h.cancel()
		return nil, fmt.Errorf("headless: failed to start chrome: %w", err)
	}
	return h, nil
}

// onEvent runs on chromedp's event loop and must not block.
func (h *Headless) onEvent(ev interface{}) {
	called, ok := ev.(*runtime.EventBindingCalled)
	if !ok || called.Name != BindingName {
		return
	}

	var event relay.Event
	if err := json.Unmarshal([]byte(called.Payload), &event); err != nil {
		h.logger.Warn("malformed bridge event", zap.Error(err))
		return
	}
	h.relay.Accept(event)
}

// Replace navigates the tab to a blank page, which discards the previous
// document together with its timers and listeners, then writes the new
// document into it.
func (h *Headless) Replace(rev Revision) error {
	ctx, cancel := context.WithTimeout(h.ctx, h.timeout)
	defer cancel()

	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, string(rev.Document)).Do(ctx)
		}),
	)
	if err != nil {
		return fmt.Errorf("headless: render revision %d: %w", rev.ID, err)
	}
	return nil
}

// Close shuts the tab and, for a locally launched browser, Chrome itself.
func (h *Headless) Close() {
	h.cancel()
}
