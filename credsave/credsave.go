// Package credsave turns form submissions into vault registrations and
// reconciles them against what the vault already holds. Matching and
// conflict decisions are pure functions; prompts and toasts go through the
// Prompter interface.
package credsave

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/credkeeper/bridge"
	"github.com/hazyhaar/credkeeper/formscan"
	"github.com/hazyhaar/credkeeper/platform"
)

// BuildDraft assembles a registration draft from a submitted form's values.
// Returns false when the submission is not worth saving: unrecognized form,
// unresolvable platform, or no identity value at all. A password alone is
// never saved; there would be nothing to match it to later.
func BuildDraft(form formscan.FormDescriptor, values map[string]string, pageURL string) (bridge.RegistrationDraft, bool) {
	if !form.Instrumentable() {
		return bridge.RegistrationDraft{}, false
	}
	name := platform.FromPageURL(pageURL)
	if name == "" {
		return bridge.RegistrationDraft{}, false
	}

	d := bridge.RegistrationDraft{PlatformName: name}
	if form.Email != nil {
		d.EmailAddress = strings.TrimSpace(values[form.Email.XPath])
	}
	if form.Username != nil && (form.Email == nil || form.Username.XPath != form.Email.XPath) {
		d.LoginUsername = strings.TrimSpace(values[form.Username.XPath])
	}
	if form.Password != nil {
		d.Password = values[form.Password.XPath]
	}
	if d.EmailAddress == "" && d.LoginUsername == "" {
		return bridge.RegistrationDraft{}, false
	}
	d.Notes = fmt.Sprintf("Auto-captured %s from %s", time.Now().Format("2006-01-02 15:04"), pageURL)
	return d, true
}

// Decision is the outcome of comparing a submission against a stored
// registration.
type Decision int

const (
	// DecisionKeep: the vault already holds this exact credential (or the
	// submission carried no password). Nothing to do, nothing to ask.
	DecisionKeep Decision = iota
	// DecisionUpdate: the stored password differs or was never set. The
	// user is asked before anything is overwritten.
	DecisionUpdate
)

// Resolve compares a stored credential with a submitted password. Pure:
// same inputs, same decision.
func Resolve(storedPassword string, storedHasPassword bool, submittedPassword string) Decision {
	if submittedPassword == "" {
		return DecisionKeep
	}
	if !storedHasPassword {
		return DecisionUpdate // first time we can attach a password
	}
	if storedPassword == submittedPassword {
		return DecisionKeep
	}
	return DecisionUpdate
}

// MatchRegistration finds the stored registration a draft refers to: same
// email first, same username second. Registrations are assumed pre-filtered
// to the draft's platform.
func MatchRegistration(regs []bridge.Registration, d bridge.RegistrationDraft) *bridge.Registration {
	if d.EmailAddress != "" {
		for i := range regs {
			if strings.EqualFold(regs[i].EmailAddress, d.EmailAddress) {
				return &regs[i]
			}
		}
	}
	if d.LoginUsername != "" {
		for i := range regs {
			if regs[i].LoginUsername == d.LoginUsername {
				return &regs[i]
			}
		}
	}
	return nil
}

// Prompter is the overlay surface credsave drives. Prompts are fire and
// forget: the confirm callback runs later if and when the user accepts, and
// never runs when the prompt expires or is dismissed.
type Prompter interface {
	PromptSave(ctx context.Context, pageID string, draft bridge.RegistrationDraft, confirm func(context.Context) error) error
	PromptUpdate(ctx context.Context, pageID string, existing bridge.Registration, confirm func(context.Context) error) error
	Toast(ctx context.Context, pageID, message string) error
}

// Saver reacts to form submissions.
type Saver struct {
	bridge   *bridge.Bridge
	prompter Prompter
	logger   *slog.Logger
}

// New builds a Saver.
func New(br *bridge.Bridge, prompter Prompter, logger *slog.Logger) *Saver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Saver{bridge: br, prompter: prompter, logger: logger}
}

// OnFormSubmitted handles a submission report for a wired form. With no
// broker attached the submission is observed and dropped.
func (s *Saver) OnFormSubmitted(ctx context.Context, pageID, pageURL string, form formscan.FormDescriptor, values map[string]string) error {
	draft, ok := BuildDraft(form, values, pageURL)
	if !ok {
		return nil
	}

	resp := s.bridge.Send(ctx, bridge.GetAutoSaveSetting{})
	if resp == nil {
		return nil
	}
	autoSave := true
	if resp.Success {
		var out struct {
			AutoSave bool `json:"auto_save"`
		}
		if err := resp.Decode(&out); err == nil {
			autoSave = out.AutoSave
		}
	}

	if autoSave {
		return s.autoCapture(ctx, pageID, draft)
	}
	return s.manualCapture(ctx, pageID, pageURL, draft)
}

// autoCapture saves immediately and reconciles on conflict: an identical
// stored password stays silent, a differing one asks before overwriting.
func (s *Saver) autoCapture(ctx context.Context, pageID string, draft bridge.RegistrationDraft) error {
	resp := s.bridge.Send(ctx, bridge.SaveRegistration{Draft: draft})
	if resp == nil {
		return nil
	}
	if resp.Success {
		return s.prompter.Toast(ctx, pageID, "Credential saved for "+draft.PlatformName)
	}
	if resp.Conflict && resp.ConflictData != nil && resp.ConflictData.ExistingID != "" {
		return s.reconcile(ctx, pageID, resp.ConflictData.ExistingID, draft)
	}
	s.logger.Warn("credsave: save failed", "platform", draft.PlatformName, "error", resp.Error)
	return nil
}

// manualCapture never writes without asking. It looks up the stored match
// first so the prompt can say "save new" or "update existing" truthfully.
func (s *Saver) manualCapture(ctx context.Context, pageID, pageURL string, draft bridge.RegistrationDraft) error {
	host, err := platform.Host(pageURL)
	if err != nil {
		return fmt.Errorf("credsave: %w", err)
	}
	resp := s.bridge.Send(ctx, bridge.GetRegistrationsByDomain{Host: host})
	if resp == nil {
		return nil
	}
	var regs []bridge.Registration
	if resp.Success {
		if err := resp.Decode(&regs); err != nil {
			return fmt.Errorf("credsave: decode matches: %w", err)
		}
	}

	existing := MatchRegistration(regs, draft)
	if existing == nil {
		return s.prompter.PromptSave(ctx, pageID, draft, func(ctx context.Context) error {
			return s.saveOrOverwrite(ctx, pageID, draft)
		})
	}
	return s.reconcile(ctx, pageID, existing.ID, draft)
}

// reconcile compares the submitted password with the stored one and asks
// before updating. Identical or absent passwords end the flow silently.
func (s *Saver) reconcile(ctx context.Context, pageID, existingID string, draft bridge.RegistrationDraft) error {
	existing, stored, hasStored, ok := s.fetchStored(ctx, existingID)
	if !ok {
		return nil
	}

	if Resolve(stored, hasStored, draft.Password) == DecisionKeep {
		return nil
	}
	return s.prompter.PromptUpdate(ctx, pageID, existing, func(ctx context.Context) error {
		return s.updatePassword(ctx, pageID, existing, draft.Password)
	})
}

// fetchStored loads the registration and, when it has one, its password.
func (s *Saver) fetchStored(ctx context.Context, id string) (existing bridge.Registration, password string, hasPassword, ok bool) {
	resp := s.bridge.Send(ctx, bridge.GetRegistrationByID{ID: id})
	if resp == nil || !resp.Success {
		return bridge.Registration{}, "", false, false
	}
	if err := resp.Decode(&existing); err != nil {
		s.logger.Warn("credsave: decode registration", "error", err)
		return bridge.Registration{}, "", false, false
	}

	if !existing.HasPassword {
		return existing, "", false, true
	}
	resp = s.bridge.Send(ctx, bridge.GetRegistrationPassword{ID: id})
	if resp == nil || !resp.Success {
		return bridge.Registration{}, "", false, false
	}
	var out struct {
		Password string `json:"password"`
	}
	if err := resp.Decode(&out); err != nil {
		s.logger.Warn("credsave: decode password", "error", err)
		return bridge.Registration{}, "", false, false
	}
	return existing, out.Password, true, true
}

// saveOrOverwrite is the confirmed manual save: a conflict at this point
// means the user already said yes, so the existing password is replaced
// without a second prompt.
func (s *Saver) saveOrOverwrite(ctx context.Context, pageID string, draft bridge.RegistrationDraft) error {
	resp := s.bridge.Send(ctx, bridge.SaveRegistration{Draft: draft})
	if resp == nil {
		return nil
	}
	if resp.Success {
		return s.prompter.Toast(ctx, pageID, "Credential saved for "+draft.PlatformName)
	}
	if resp.Conflict && resp.ConflictData != nil && resp.ConflictData.ExistingID != "" {
		up := s.bridge.Send(ctx, bridge.UpdateRegistrationPassword{
			ID: resp.ConflictData.ExistingID, Password: draft.Password,
		})
		if up != nil && up.Success {
			return s.prompter.Toast(ctx, pageID, "Credential updated for "+draft.PlatformName)
		}
		return nil
	}
	s.logger.Warn("credsave: confirmed save failed", "platform", draft.PlatformName, "error", resp.Error)
	return s.prompter.Toast(ctx, pageID, "Saving credential failed")
}

func (s *Saver) updatePassword(ctx context.Context, pageID string, existing bridge.Registration, password string) error {
	resp := s.bridge.Send(ctx, bridge.UpdateRegistrationPassword{ID: existing.ID, Password: password})
	if resp == nil {
		return nil
	}
	if !resp.Success {
		s.logger.Warn("credsave: password update failed", "registration", existing.ID, "error", resp.Error)
		return s.prompter.Toast(ctx, pageID, "Updating credential failed")
	}
	return s.prompter.Toast(ctx, pageID, "Credential updated for "+existing.PlatformName)
}
