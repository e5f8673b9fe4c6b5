// Package autofill fills credential forms from vault matches. The decision
// of what to do is a pure function; the doing goes through the Filler
// interface so the package never touches a live page directly and the logic
// tests without a browser.
package autofill

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/credkeeper/bridge"
	"github.com/hazyhaar/credkeeper/formscan"
	"github.com/hazyhaar/credkeeper/platform"
)

// Action is what a field focus leads to.
type Action int

const (
	// ActionNone: leave the field alone.
	ActionNone Action = iota
	// ActionFill: exactly one match, fill directly.
	ActionFill
	// ActionSelect: several matches, let the user pick.
	ActionSelect
)

// Decide maps the match count and the focused field's current content to an
// action. A field the user already typed into is never touched, whatever
// the matches say.
func Decide(matchCount int, currentValue string) Action {
	if currentValue != "" {
		return ActionNone
	}
	switch {
	case matchCount == 0:
		return ActionNone
	case matchCount == 1:
		return ActionFill
	default:
		return ActionSelect
	}
}

// Filler is the page-side effect surface the orchestrator needs. pagewatch
// implements it over the instrumented tab.
type Filler interface {
	// FieldValue reads the current content of a field.
	FieldValue(ctx context.Context, pageID, xpath string) (string, error)
	// SetFieldValue replaces a field's content. It does not fire events.
	SetFieldValue(ctx context.Context, pageID, xpath, value string) error
	// NotifyFieldChanged dispatches the input and change events a page's
	// own scripts listen for. Kept separate from SetFieldValue so every
	// synthetic write is followed by an explicit, visible notification.
	NotifyFieldChanged(ctx context.Context, pageID, xpath string) error
}

// Selector shows the credential picker overlay. The overlay package
// implements it.
type Selector interface {
	ShowSelector(ctx context.Context, pageID string, x, y int, form formscan.FormDescriptor, regs []bridge.Registration) error
}

// Orchestrator reacts to field focus with vault lookups and fills.
type Orchestrator struct {
	bridge   *bridge.Bridge
	filler   Filler
	selector Selector
	logger   *slog.Logger
}

// New builds an Orchestrator. selector may be nil; multiple matches then
// fall back to filling nothing.
func New(br *bridge.Bridge, filler Filler, selector Selector, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{bridge: br, filler: filler, selector: selector, logger: logger}
}

// OnFieldFocused handles a focus report for a wired form. Only the identity
// field of a login form triggers anything: register forms are wired for
// submit capture, never for filling, and focus on a password or other field
// is ignored. With no broker the page degrades to passive observation; that
// is not an error.
func (o *Orchestrator) OnFieldFocused(ctx context.Context, pageID, pageURL string, form formscan.FormDescriptor, fieldXPath, fieldValue string, x, y int) error {
	if form.Kind != formscan.KindLogin {
		return nil
	}
	id := form.IdentityField()
	if id == nil || id.XPath != fieldXPath {
		return nil
	}

	host, err := platform.Host(pageURL)
	if err != nil {
		return fmt.Errorf("autofill: %w", err)
	}

	resp := o.bridge.Send(ctx, bridge.GetRegistrationsByDomain{Host: host})
	if resp == nil {
		return nil
	}
	if !resp.Success {
		o.logger.Warn("autofill: match lookup failed", "host", host, "error", resp.Error)
		return nil
	}
	var regs []bridge.Registration
	if err := resp.Decode(&regs); err != nil {
		return fmt.Errorf("autofill: decode matches: %w", err)
	}

	switch Decide(len(regs), fieldValue) {
	case ActionNone:
		return nil
	case ActionFill:
		return o.Fill(ctx, pageID, form, regs[0])
	case ActionSelect:
		if o.selector == nil {
			return nil
		}
		return o.selector.ShowSelector(ctx, pageID, x, y, form, regs)
	}
	return nil
}

// Fill writes a registration into a form. Only empty fields are written;
// anything the user typed stays. The password is fetched from the vault at
// the last moment and only when the form has a password slot to put it in.
func (o *Orchestrator) Fill(ctx context.Context, pageID string, form formscan.FormDescriptor, reg bridge.Registration) error {
	if f := form.Email; f != nil {
		value := reg.EmailAddress
		if value == "" {
			value = reg.LoginUsername
		}
		if err := o.fillField(ctx, pageID, f.XPath, value); err != nil {
			return err
		}
	}
	// A separate username input gets its own write; when the email control
	// doubles as the username slot the write above already covered it.
	if f := form.Username; f != nil && (form.Email == nil || f.XPath != form.Email.XPath) {
		value := reg.LoginUsername
		if value == "" {
			value = reg.EmailAddress
		}
		if err := o.fillField(ctx, pageID, f.XPath, value); err != nil {
			return err
		}
	}

	if form.Password == nil || !reg.HasPassword {
		return nil
	}
	resp := o.bridge.Send(ctx, bridge.GetRegistrationPassword{ID: reg.ID})
	if resp == nil {
		return nil
	}
	if !resp.Success {
		o.logger.Warn("autofill: password fetch failed", "registration", reg.ID, "error", resp.Error)
		return nil
	}
	var out struct {
		Password string `json:"password"`
	}
	if err := resp.Decode(&out); err != nil {
		return fmt.Errorf("autofill: decode password: %w", err)
	}
	return o.fillField(ctx, pageID, form.Password.XPath, out.Password)
}

// fillField writes value into the field at xpath unless the field already
// has content, then fires the change notification.
func (o *Orchestrator) fillField(ctx context.Context, pageID, xpath, value string) error {
	if value == "" {
		return nil
	}
	cur, err := o.filler.FieldValue(ctx, pageID, xpath)
	if err != nil {
		return fmt.Errorf("autofill: read field %s: %w", xpath, err)
	}
	if cur != "" {
		return nil
	}
	if err := o.filler.SetFieldValue(ctx, pageID, xpath, value); err != nil {
		return fmt.Errorf("autofill: fill field %s: %w", xpath, err)
	}
	if err := o.filler.NotifyFieldChanged(ctx, pageID, xpath); err != nil {
		return fmt.Errorf("autofill: notify field %s: %w", xpath, err)
	}
	return nil
}
