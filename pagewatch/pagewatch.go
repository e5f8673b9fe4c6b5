// Package pagewatch drives credential detection on live pages: it owns the
// browser, opens a tab per watched URL, observes DOM mutations, wires the
// forms the scanner recognises, and routes interaction events to the fill
// and save layers.
package pagewatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/credkeeper/autofill"
	"github.com/hazyhaar/credkeeper/bridge"
	"github.com/hazyhaar/credkeeper/credsave"
	"github.com/hazyhaar/credkeeper/formscan"
	"github.com/hazyhaar/credkeeper/idgen"
	"github.com/hazyhaar/credkeeper/overlay"
	"github.com/hazyhaar/credkeeper/pagewatch/internal/browser"
	"github.com/hazyhaar/credkeeper/pagewatch/internal/observer"
	"github.com/hazyhaar/credkeeper/pagewatch/mutation"
	"github.com/hazyhaar/credkeeper/platform"
)

// Config configures the Watcher.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome.
	RemoteURL string
	// Headless controls a locally launched Chrome.
	Headless bool
	// MemoryLimit in bytes before Chrome is recycled.
	MemoryLimit int64
	// RecycleInterval is the maximum Chrome process lifetime.
	RecycleInterval time.Duration

	// DebounceWindow and DebounceMax tune mutation batching per page.
	DebounceWindow time.Duration
	DebounceMax    int

	Logger *slog.Logger
}

// Watcher owns the browser and the per-page pipelines.
type Watcher struct {
	cfg    Config
	mgr    *browser.Manager
	bridge *bridge.Bridge
	logger *slog.Logger
	newID  idgen.Generator

	overlay  *overlay.Overlay
	autofill *autofill.Orchestrator
	saver    *credsave.Saver

	mu    sync.Mutex
	pages map[string]*pipeline

	ctx context.Context
}

// pipeline is everything attached to one watched page.
type pipeline struct {
	tab     *browser.Tab
	obs     *observer.Observer
	reactor *reactor

	// started flips when instrumentation begins; detection requests after
	// the first are no-ops.
	started atomic.Bool

	// mu serialises reactor access and effect application. Batches and
	// events arrive on the observer goroutine, detection requests on the
	// bridge's caller.
	mu sync.Mutex
}

// New creates a Watcher wired to the bridge. The overlay, fill, and save
// layers are constructed here so a picked credential flows back into the
// fill path without the caller assembling anything.
func New(cfg Config, br *bridge.Bridge) *Watcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	w := &Watcher{
		cfg: cfg,
		mgr: browser.NewManager(browser.Config{
			RemoteURL:       cfg.RemoteURL,
			Headless:        cfg.Headless,
			MemoryLimit:     cfg.MemoryLimit,
			RecycleInterval: cfg.RecycleInterval,
			Logger:          cfg.Logger,
		}),
		bridge: br,
		logger: cfg.Logger,
		newID:  idgen.Prefixed("pg", idgen.Default),
		pages:  make(map[string]*pipeline),
	}

	d := &driver{w: w}
	w.overlay = overlay.New(d, cfg.Logger)
	w.autofill = autofill.New(br, d, w.overlay, cfg.Logger)
	w.saver = credsave.New(br, w.overlay, cfg.Logger)
	w.overlay.SetPickHandler(w.autofill.Fill)

	return w
}

// Start launches the browser.
func (w *Watcher) Start(ctx context.Context) error {
	w.ctx = ctx
	if _, err := w.mgr.Start(ctx); err != nil {
		return err
	}
	return nil
}

// Close tears down all pages and the browser.
func (w *Watcher) Close() error {
	w.mu.Lock()
	pages := make([]string, 0, len(w.pages))
	for id := range w.pages {
		pages = append(pages, id)
	}
	w.mu.Unlock()

	for _, id := range pages {
		w.Unwatch(id)
	}
	return w.mgr.Close()
}

// Watch opens a tab on the URL and returns its page ID. Detection starts
// immediately unless the site is excluded; an excluded page stays open and
// passive until a detection request arrives over the bridge.
func (w *Watcher) Watch(ctx context.Context, pageURL string) (string, error) {
	pageID := w.newID()

	tab, err := browser.OpenTab(ctx, w.mgr, pageURL, pageID)
	if err != nil {
		return "", err
	}

	p := &pipeline{
		tab:     tab,
		reactor: newReactor(pageURL),
	}
	p.obs = observer.New(observer.Config{
		Tab:            tab,
		DebounceWindow: w.cfg.DebounceWindow,
		DebounceMax:    w.cfg.DebounceMax,
		OnBatch:        func(b *mutation.Batch) { w.handleBatch(p, b) },
		OnEvent:        func(ev mutation.Event) { w.handleEvent(p, ev) },
		Logger:         w.logger,
	})
	if w.ctx != nil {
		p.obs.SetContext(w.ctx)
	}

	w.mu.Lock()
	w.pages[pageID] = p
	w.mu.Unlock()

	w.bridge.RegisterPage(pageID, func(ctx context.Context, _ bridge.StartFormDetection) error {
		return w.startDetection(ctx, p)
	})

	if w.hostExcluded(ctx, pageURL) {
		w.logger.Info("pagewatch: site excluded, page passive", "url", pageURL, "page_id", pageID)
		return pageID, nil
	}

	if err := w.startDetection(ctx, p); err != nil {
		w.Unwatch(pageID)
		return "", err
	}
	return pageID, nil
}

// Unwatch stops observation and closes the tab.
func (w *Watcher) Unwatch(pageID string) {
	w.mu.Lock()
	p, ok := w.pages[pageID]
	delete(w.pages, pageID)
	w.mu.Unlock()
	if !ok {
		return
	}

	w.bridge.UnregisterPage(pageID)
	if p.started.Load() {
		p.obs.Stop()
	}
	if err := p.tab.Close(); err != nil {
		w.logger.Warn("pagewatch: close tab", "page_id", pageID, "error", err)
	}
}

// Pages returns the IDs of all watched pages.
func (w *Watcher) Pages() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.pages))
	for id := range w.pages {
		ids = append(ids, id)
	}
	return ids
}

func (w *Watcher) pipeline(pageID string) (*pipeline, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pages[pageID]
	if !ok {
		return nil, fmt.Errorf("pagewatch: unknown page %s", pageID)
	}
	return p, nil
}

// startDetection instruments a page: observer, overlay surface, and an
// initial full scan. Idempotent per page.
func (w *Watcher) startDetection(ctx context.Context, p *pipeline) error {
	if !p.started.CompareAndSwap(false, true) {
		return nil
	}

	if err := p.obs.Start(); err != nil {
		p.started.Store(false)
		return err
	}
	if err := w.overlay.Install(ctx, p.tab.PageID); err != nil {
		w.logger.Warn("pagewatch: install overlay", "page_id", p.tab.PageID, "error", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return w.rescan(ctx, p)
}

// rescan snapshots the DOM and reconciles the wired form set. Caller holds p.mu.
func (w *Watcher) rescan(ctx context.Context, p *pipeline) error {
	snap, err := p.obs.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("pagewatch: snapshot %s: %w", p.tab.PageURL, err)
	}
	effects, err := p.reactor.OnSnapshot(snap.HTML)
	if err != nil {
		return err
	}
	return w.apply(ctx, p, effects)
}

// apply executes reactor effects against the live page. Caller holds p.mu.
func (w *Watcher) apply(ctx context.Context, p *pipeline, effects []Effect) error {
	for _, eff := range effects {
		switch e := eff.(type) {
		case WireForm:
			if err := p.obs.WireForm(e.Form.XPath); err != nil {
				w.logger.Warn("pagewatch: wire form", "xpath", e.Form.XPath, "error", err)
				continue
			}
			w.logger.Info("pagewatch: form wired",
				"url", p.tab.PageURL, "xpath", e.Form.XPath, "kind", e.Form.Kind)

		case UnwireForm:
			if err := p.obs.UnwireForm(e.FormXPath); err != nil {
				w.logger.Debug("pagewatch: unwire form", "xpath", e.FormXPath, "error", err)
			}

		case RequestSnapshot:
			// The overlay host died with the old document.
			if err := w.overlay.Install(ctx, p.tab.PageID); err != nil {
				w.logger.Warn("pagewatch: reinstall overlay", "page_id", p.tab.PageID, "error", err)
			}
			if err := w.rescan(ctx, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Watcher) handleBatch(p *pipeline, batch *mutation.Batch) {
	ctx := w.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	effects, err := p.reactor.OnMutations(batch)
	if err != nil {
		w.logger.Warn("pagewatch: react to mutations", "page_id", batch.PageID, "error", err)
	}
	if err := w.apply(ctx, p, effects); err != nil {
		w.logger.Error("pagewatch: apply effects", "page_id", batch.PageID, "error", err)
	}
}

func (w *Watcher) handleEvent(p *pipeline, ev mutation.Event) {
	ctx := w.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	switch e := ev.(type) {
	case mutation.FieldFocused:
		form, ok := w.formFor(p, e.FormXPath)
		if !ok {
			return
		}
		if err := w.autofill.OnFieldFocused(ctx, e.PageID, e.PageURL, form, e.FieldXPath, e.Value, e.X, e.Y); err != nil {
			w.logger.Warn("pagewatch: field focus", "xpath", e.FieldXPath, "error", err)
		}

	case mutation.FormSubmitted:
		form, ok := w.formFor(p, e.FormXPath)
		if !ok {
			return
		}
		if err := w.saver.OnFormSubmitted(ctx, e.PageID, e.PageURL, form, e.Values); err != nil {
			w.logger.Warn("pagewatch: form submit", "xpath", e.FormXPath, "error", err)
		}

	case mutation.OverlayChoice:
		if err := w.overlay.HandleChoice(ctx, e); err != nil {
			w.logger.Warn("pagewatch: overlay choice", "overlay_id", e.OverlayID, "error", err)
		}

	case mutation.OverlayDismissed:
		w.overlay.HandleDismissed(ctx, e)
	}
}

func (w *Watcher) formFor(p *pipeline, xpath string) (formscan.FormDescriptor, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reactor.Form(xpath)
}

// hostExcluded checks the broker's excluded-site list. No broker or no
// config means nothing is excluded.
func (w *Watcher) hostExcluded(ctx context.Context, pageURL string) bool {
	resp := w.bridge.Send(ctx, bridge.GetConfig{})
	if resp == nil || !resp.Success {
		return false
	}
	var settings bridge.Settings
	if err := resp.Decode(&settings); err != nil {
		return false
	}
	host, err := platform.Host(pageURL)
	if err != nil {
		return false
	}
	return platform.HostExcluded(host, settings.ExcludedSites)
}
