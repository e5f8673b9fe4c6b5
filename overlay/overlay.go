// Package overlay renders the in-page surfaces: the credential picker, the
// save and update prompts, and toasts. Rendering happens in injected JS;
// this package builds the calls, tracks which overlay is waiting for what,
// and turns the page's choice events back into callbacks.
//
// Prompts expire on their own: a save or update question left unanswered
// disappears after a few seconds and its confirm callback never runs.
package overlay

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/credkeeper/bridge"
	"github.com/hazyhaar/credkeeper/formscan"
	"github.com/hazyhaar/credkeeper/idgen"
	"github.com/hazyhaar/credkeeper/pagewatch/mutation"
)

//go:embed overlay.js
var overlayJS string

// PromptExpiry is how long a save or update prompt stays on screen.
const PromptExpiry = 5 * time.Second

// Scripter evaluates JavaScript in an instrumented page. pagewatch
// implements it over the live tab.
type Scripter interface {
	Eval(ctx context.Context, pageID, js string) error
}

// PickFunc runs when the user picks an entry in the credential selector.
type PickFunc func(ctx context.Context, pageID string, form formscan.FormDescriptor, reg bridge.Registration) error

type pending struct {
	pageID  string
	form    formscan.FormDescriptor
	regs    []bridge.Registration
	onPick  PickFunc
	confirm func(context.Context) error
	timer   *time.Timer
}

// Overlay drives the page-side surfaces for all pages sharing one bridge.
type Overlay struct {
	scripter Scripter
	logger   *slog.Logger
	newID    idgen.Generator

	mu      sync.Mutex
	pending map[string]*pending
	onPick  PickFunc
}

// New builds an Overlay.
func New(scripter Scripter, logger *slog.Logger) *Overlay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Overlay{
		scripter: scripter,
		logger:   logger,
		newID:    idgen.Prefixed("ov", idgen.Default),
		pending:  make(map[string]*pending),
	}
}

// Install evaluates the overlay script in a page. Run once per page after
// instrumentation; re-running replaces the previous installation.
func (o *Overlay) Install(ctx context.Context, pageID string) error {
	return o.scripter.Eval(ctx, pageID, overlayJS)
}

// SetPickHandler installs the callback ShowSelector uses when the user
// picks an entry. Wiring sets this to the autofill fill path.
func (o *Overlay) SetPickHandler(fn PickFunc) {
	o.mu.Lock()
	o.onPick = fn
	o.mu.Unlock()
}

// ShowSelector renders the credential picker at the given viewport position
// using the installed pick handler.
func (o *Overlay) ShowSelector(ctx context.Context, pageID string, x, y int, form formscan.FormDescriptor, regs []bridge.Registration) error {
	o.mu.Lock()
	onPick := o.onPick
	o.mu.Unlock()
	return o.ShowSelectorWith(ctx, pageID, x, y, form, regs, onPick)
}

// ShowSelectorWith renders the picker with an explicit pick callback. Each
// entry shows the platform name and the identity string; a fixed add-new
// entry at the bottom closes the picker through the dismissal path, which
// runs nothing.
func (o *Overlay) ShowSelectorWith(ctx context.Context, pageID string, x, y int, form formscan.FormDescriptor, regs []bridge.Registration, onPick PickFunc) error {
	id := o.newID()

	type entry struct {
		CredID   string `json:"cred_id"`
		Platform string `json:"platform"`
		Identity string `json:"identity"`
	}
	payload := struct {
		OverlayID string  `json:"overlay_id"`
		X         int     `json:"x"`
		Y         int     `json:"y"`
		Entries   []entry `json:"entries"`
	}{OverlayID: id, X: x, Y: y}
	for _, reg := range regs {
		identity := reg.EmailAddress
		if identity == "" {
			identity = reg.LoginUsername
		}
		payload.Entries = append(payload.Entries, entry{
			CredID:   reg.ID,
			Platform: reg.PlatformName,
			Identity: identity,
		})
	}

	js, err := callJS("showSelector", payload)
	if err != nil {
		return err
	}
	o.track(id, &pending{pageID: pageID, form: form, regs: regs, onPick: onPick})
	if err := o.scripter.Eval(ctx, pageID, js); err != nil {
		o.drop(id)
		return fmt.Errorf("overlay: show selector: %w", err)
	}
	return nil
}

// PromptSave shows the "save this credential?" question.
func (o *Overlay) PromptSave(ctx context.Context, pageID string, draft bridge.RegistrationDraft, confirm func(context.Context) error) error {
	identity := draft.EmailAddress
	if identity == "" {
		identity = draft.LoginUsername
	}
	return o.prompt(ctx, pageID,
		"Save credential?",
		fmt.Sprintf("%s on %s", identity, draft.PlatformName),
		"Save", confirm)
}

// PromptUpdate shows the "update the stored password?" question.
func (o *Overlay) PromptUpdate(ctx context.Context, pageID string, existing bridge.Registration, confirm func(context.Context) error) error {
	return o.prompt(ctx, pageID,
		"Update stored password?",
		fmt.Sprintf("%s on %s", existing.DisplayName(), existing.PlatformName),
		"Update", confirm)
}

func (o *Overlay) prompt(ctx context.Context, pageID, title, body, confirmLabel string, confirm func(context.Context) error) error {
	id := o.newID()
	payload := struct {
		OverlayID    string `json:"overlay_id"`
		Title        string `json:"title"`
		Body         string `json:"body"`
		ConfirmLabel string `json:"confirm_label"`
	}{id, title, body, confirmLabel}

	js, err := callJS("showPrompt", payload)
	if err != nil {
		return err
	}

	p := &pending{pageID: pageID, confirm: confirm}
	p.timer = time.AfterFunc(PromptExpiry, func() { o.expire(id) })
	o.track(id, p)

	if err := o.scripter.Eval(ctx, pageID, js); err != nil {
		o.drop(id)
		return fmt.Errorf("overlay: show prompt: %w", err)
	}
	return nil
}

// Toast shows a transient notice; the page removes it by itself.
func (o *Overlay) Toast(ctx context.Context, pageID, message string) error {
	js, err := callJS("toast", map[string]string{"message": message})
	if err != nil {
		return err
	}
	if err := o.scripter.Eval(ctx, pageID, js); err != nil {
		return fmt.Errorf("overlay: toast: %w", err)
	}
	return nil
}

// HandleChoice resolves a pick/confirm/decline event from the page.
// Unknown overlay IDs (already expired, stale page) are ignored.
func (o *Overlay) HandleChoice(ctx context.Context, ev mutation.OverlayChoice) error {
	p := o.drop(ev.OverlayID)
	if p == nil {
		return nil
	}

	switch ev.Action {
	case mutation.ChoicePick:
		if p.onPick == nil {
			return nil
		}
		for _, reg := range p.regs {
			if reg.ID == ev.CredID {
				return p.onPick(ctx, p.pageID, p.form, reg)
			}
		}
		o.logger.Warn("overlay: pick for unknown credential", "overlay", ev.OverlayID, "cred", ev.CredID)
		return nil
	case mutation.ChoiceConfirm:
		if p.confirm == nil {
			return nil
		}
		return p.confirm(ctx)
	case mutation.ChoiceDecline:
		return nil
	}
	return nil
}

// HandleDismissed clears the pending state of a closed overlay.
func (o *Overlay) HandleDismissed(_ context.Context, ev mutation.OverlayDismissed) {
	o.drop(ev.OverlayID)
}

// Pending reports how many overlays are awaiting an answer.
func (o *Overlay) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

func (o *Overlay) track(id string, p *pending) {
	o.mu.Lock()
	o.pending[id] = p
	o.mu.Unlock()
}

// drop removes and returns a pending entry, stopping its expiry timer.
func (o *Overlay) drop(id string) *pending {
	o.mu.Lock()
	p := o.pending[id]
	delete(o.pending, id)
	o.mu.Unlock()
	if p != nil && p.timer != nil {
		p.timer.Stop()
	}
	return p
}

// expire removes an unanswered prompt from the page and forgets it.
func (o *Overlay) expire(id string) {
	p := o.drop(id)
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	js, err := callJS("dismiss", id)
	if err == nil {
		err = o.scripter.Eval(ctx, p.pageID, js)
	}
	if err != nil {
		o.logger.Debug("overlay: expire cleanup failed", "overlay", id, "error", err)
	}
}

// callJS builds a call into the installed overlay object with a JSON-encoded
// argument. Encoding through JSON is what keeps page-controlled strings
// (labels, platform names) from escaping into script context.
func callJS(method string, arg any) (string, error) {
	data, err := json.Marshal(arg)
	if err != nil {
		return "", fmt.Errorf("overlay: encode %s payload: %w", method, err)
	}
	return fmt.Sprintf("window.__credkeeper_overlay && window.__credkeeper_overlay.%s(%s);", method, data), nil
}
