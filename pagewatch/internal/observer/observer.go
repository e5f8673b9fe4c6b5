// Package observer runs the per-page observation loop: it injects the
// in-page watcher script, receives its mutation records and interaction
// events over a CDP binding, debounces mutations into batches, and hands
// everything to the caller through callbacks.
package observer

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/hazyhaar/credkeeper/idgen"
	"github.com/hazyhaar/credkeeper/pagewatch/internal/browser"
	"github.com/hazyhaar/credkeeper/pagewatch/mutation"
)

//go:embed credwatch.js
var credwatchJS []byte

const bindingName = "__credkeeper_binding"

// Config for creating an Observer.
type Config struct {
	Tab            *browser.Tab
	DebounceWindow time.Duration
	DebounceMax    int

	// OnBatch receives debounced mutation batches.
	OnBatch func(*mutation.Batch)
	// OnEvent receives interaction events from the page, with PageID and
	// PageURL already stamped.
	OnEvent func(mutation.Event)

	Logger *slog.Logger
}

// Observer manages observation for a single page.
type Observer struct {
	tab     *browser.Tab
	onBatch func(*mutation.Batch)
	onEvent func(mutation.Event)
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	rawCh   chan mutation.Record
	eventCh chan mutation.Event

	debouncer *debouncer
	newID     idgen.Generator

	// Sequence counter, monotonically increasing per page.
	seq atomic.Uint64
}

// New creates an Observer for the given tab.
func New(cfg Config) *Observer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	o := &Observer{
		tab:     cfg.Tab,
		onBatch: cfg.OnBatch,
		onEvent: cfg.OnEvent,
		logger:  cfg.Logger,
		ctx:     ctx,
		cancel:  cancel,
		rawCh:   make(chan mutation.Record, 4096),
		eventCh: make(chan mutation.Event, 256),
		newID:   idgen.Default,
	}

	o.debouncer = newDebouncer(debounceConfig{
		Window:    cfg.DebounceWindow,
		MaxBuffer: cfg.DebounceMax,
	}, o.onFlush)

	return o
}

// SetContext lets the parent watcher pass its context before Start.
func (o *Observer) SetContext(ctx context.Context) {
	o.cancel()
	o.ctx, o.cancel = context.WithCancel(ctx)
}

// Start injects the watcher script and begins the processing loop. On every
// page load (including the initial one already completed by OpenTab) the
// script is re-injected and a doc_reset record emitted, so the reactor
// rescans after in-tab navigation.
func (o *Observer) Start() error {
	err := proto.RuntimeAddBinding{Name: bindingName}.Call(o.tab.Page)
	if err != nil {
		o.logger.Warn("observer: addBinding failed (may already exist)", "error", err)
	}

	go o.listenBinding()
	go o.listenLoads()

	if err := o.Inject(); err != nil {
		return err
	}

	go o.loop()

	return nil
}

// Stop flushes pending mutations and stops the observer.
func (o *Observer) Stop() {
	o.debouncer.flush()
	o.cancel()
}

// Inject evaluates the watcher script in the page. Safe to call repeatedly.
func (o *Observer) Inject() error {
	if _, err := o.tab.Page.Eval(string(credwatchJS)); err != nil {
		return fmt.Errorf("observer: inject credwatch.js: %w", err)
	}
	o.logger.Debug("observer: watcher injected", "url", o.tab.PageURL)
	return nil
}

// Snapshot captures the full DOM for an initial or post-reset scan.
func (o *Observer) Snapshot(ctx context.Context) (*mutation.Snapshot, error) {
	html, err := o.tab.GetFullDOM(ctx)
	if err != nil {
		return nil, err
	}
	return &mutation.Snapshot{
		ID:        o.newID(),
		PageURL:   o.tab.PageURL,
		PageID:    o.tab.PageID,
		HTML:      html,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// WireForm attaches the in-page focus and submit listeners to a form.
func (o *Observer) WireForm(formXPath string) error {
	return o.callWatch("wire", formXPath)
}

// UnwireForm detaches the in-page listeners from a form.
func (o *Observer) UnwireForm(formXPath string) error {
	return o.callWatch("unwire", formXPath)
}

func (o *Observer) callWatch(method, xpath string) error {
	arg, err := json.Marshal(xpath)
	if err != nil {
		return err
	}
	js := fmt.Sprintf("window.__credkeeper_watch && window.__credkeeper_watch.%s(%s);", method, arg)
	if _, err := o.tab.Page.Eval(js); err != nil {
		return fmt.Errorf("observer: %s %s: %w", method, xpath, err)
	}
	return nil
}

// listenBinding receives calls from the in-page script. Mutation records
// arrive as JSON arrays, interaction events as {kind, payload} envelopes.
func (o *Observer) listenBinding() {
	page := o.tab.Page
	page.Context(o.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}

		payload := strings.TrimSpace(e.Payload)
		if strings.HasPrefix(payload, "[") {
			o.handleRecords(payload)
			return
		}

		ev, err := mutation.UnmarshalEvent([]byte(payload))
		if err != nil {
			o.logger.Warn("observer: parse binding event", "error", err)
			return
		}
		select {
		case o.eventCh <- o.stamp(ev):
		case <-o.ctx.Done():
		}
	})()
}

func (o *Observer) handleRecords(payload string) {
	var records []mutation.Record
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		o.logger.Warn("observer: parse binding records", "error", err)
		return
	}
	for _, rec := range records {
		select {
		case o.rawCh <- rec:
		case <-o.ctx.Done():
			return
		}
	}
}

// stamp fills in the page identity the in-page script does not know.
func (o *Observer) stamp(ev mutation.Event) mutation.Event {
	switch e := ev.(type) {
	case mutation.FieldFocused:
		e.PageID, e.PageURL = o.tab.PageID, o.tab.PageURL
		return e
	case mutation.FormSubmitted:
		e.PageID, e.PageURL = o.tab.PageID, o.tab.PageURL
		return e
	case mutation.OverlayChoice:
		e.PageID = o.tab.PageID
		return e
	case mutation.OverlayDismissed:
		e.PageID = o.tab.PageID
		return e
	}
	return ev
}

// listenLoads re-injects the watcher after in-tab navigation and tells the
// reactor the document was replaced. The injected script dies with the old
// execution context; the binding survives.
func (o *Observer) listenLoads() {
	page := o.tab.Page
	page.Context(o.ctx).EachEvent(func(e *proto.PageLoadEventFired) {
		if err := o.Inject(); err != nil {
			o.logger.Error("observer: re-inject after load", "error", err)
			return
		}
		select {
		case o.rawCh <- mutation.Record{Op: mutation.OpDocReset}:
		case <-o.ctx.Done():
		}
	})()
}

func (o *Observer) loop() {
	for {
		select {
		case <-o.ctx.Done():
			return

		case rec := <-o.rawCh:
			o.debouncer.add(rec)

		case <-o.debouncer.timerC():
			o.debouncer.flush()

		case ev := <-o.eventCh:
			if o.onEvent != nil {
				o.onEvent(ev)
			}
		}
	}
}

func (o *Observer) onFlush(records []mutation.Record) {
	if len(records) == 0 || o.onBatch == nil {
		return
	}
	o.onBatch(&mutation.Batch{
		ID:        o.newID(),
		PageURL:   o.tab.PageURL,
		PageID:    o.tab.PageID,
		Seq:       o.seq.Add(1),
		Records:   records,
		Timestamp: time.Now().UnixMilli(),
	})
}
