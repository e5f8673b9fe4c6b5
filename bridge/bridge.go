package bridge

import (
	"context"
	"log/slog"
	"sync"
)

// Handler is the broker side of the bridge: one request in, one response
// out. Errors are transport-level failures; domain failures travel inside
// the Response.
type Handler func(ctx context.Context, req Request) (*Response, error)

// PageHandler receives requests directed at a page rather than the broker.
type PageHandler func(ctx context.Context, req StartFormDetection) error

// Bridge connects page-side logic to the broker. Page code calls Send and
// treats a nil response as "broker gone": it degrades to passive observation
// instead of erroring, so a page keeps working while the broker restarts
// out from under it.
type Bridge struct {
	mu     sync.RWMutex
	broker Handler
	pages  map[string]PageHandler

	logger     *slog.Logger
	notifyOnce sync.Once
}

// New creates a Bridge with no broker attached.
func New(logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		pages:  make(map[string]PageHandler),
		logger: logger,
	}
}

// AttachBroker wires the broker's dispatch into the bridge.
func (b *Bridge) AttachBroker(h Handler) {
	b.mu.Lock()
	b.broker = h
	b.mu.Unlock()
}

// RegisterPage installs the handler for page-directed requests. The watcher
// registers each page it instruments and removes it when the page closes.
func (b *Bridge) RegisterPage(pageID string, h PageHandler) {
	b.mu.Lock()
	b.pages[pageID] = h
	b.mu.Unlock()
}

// UnregisterPage removes a page handler.
func (b *Bridge) UnregisterPage(pageID string) {
	b.mu.Lock()
	delete(b.pages, pageID)
	b.mu.Unlock()
}

// Send delivers a request to the broker and returns its response.
//
// When no broker is attached, Send returns nil. It logs that condition once
// per bridge lifetime; callers hit this path on every subsequent operation
// and must not flood the log. A nil receiver behaves the same, so page code
// constructed without a bridge degrades identically.
//
// A handler error is also a transport failure and also surfaces as nil:
// only the broker itself produces application responses, and it reports
// domain failures inside the Response.
func (b *Bridge) Send(ctx context.Context, req Request) *Response {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	h := b.broker
	b.mu.RUnlock()

	if h == nil {
		b.notifyOnce.Do(func() {
			b.logger.Warn("bridge: broker unavailable, page logic degrading to passive mode",
				"kind", req.Kind())
		})
		return nil
	}

	resp, err := h(ctx, req)
	if err != nil {
		b.logger.Error("bridge: request failed", "kind", req.Kind(), "error", err)
		return nil
	}
	return resp
}

// SendToPage delivers a page-directed request to the handler registered for
// its page.
func (b *Bridge) SendToPage(ctx context.Context, req StartFormDetection) error {
	b.mu.RLock()
	h, ok := b.pages[req.PageID]
	b.mu.RUnlock()

	if !ok {
		return &ErrNoPageHandler{PageID: req.PageID}
	}
	return h(ctx, req)
}
