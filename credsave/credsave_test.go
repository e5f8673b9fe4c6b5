package credsave

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/hazyhaar/credkeeper/bridge"
	"github.com/hazyhaar/credkeeper/formscan"
)

func registerForm() formscan.FormDescriptor {
	controls := []formscan.Control{
		formscan.NewControl("email", "email", "", "", "/f/input[1]"),
		formscan.NewControl("password", "password", "", "", "/f/input[2]"),
		formscan.NewControl("password", "confirm_password", "", "", "/f/input[3]"),
	}
	return formscan.ClassifyForm("/f", controls, "")
}

func TestBuildDraft(t *testing.T) {
	form := registerForm()
	values := map[string]string{
		"/f/input[1]": " a@b.c ",
		"/f/input[2]": "hunter22",
		"/f/input[3]": "hunter22",
	}

	d, ok := BuildDraft(form, values, "https://www.example.com/signup")
	if !ok {
		t.Fatal("draft expected")
	}
	if d.PlatformName != "example.com" {
		t.Errorf("platform = %q", d.PlatformName)
	}
	if d.EmailAddress != "a@b.c" {
		t.Errorf("email = %q, want trimmed", d.EmailAddress)
	}
	if d.Password != "hunter22" {
		t.Errorf("password = %q", d.Password)
	}
	if !strings.HasPrefix(d.Notes, "Auto-captured ") {
		t.Errorf("notes = %q", d.Notes)
	}
}

func TestBuildDraftRequiresIdentity(t *testing.T) {
	form := registerForm()
	values := map[string]string{"/f/input[2]": "hunter22"}

	if _, ok := BuildDraft(form, values, "https://example.com/signup"); ok {
		t.Error("a password with no identity must not produce a draft")
	}
}

func TestBuildDraftSkipsUnrecognizedForms(t *testing.T) {
	form := formscan.ClassifyForm("/f", []formscan.Control{
		formscan.NewControl("text", "q", "", "", "/f/input[1]"),
	}, "search")
	if _, ok := BuildDraft(form, map[string]string{"/f/input[1]": "kittens"}, "https://example.com"); ok {
		t.Error("unrecognized form must not produce a draft")
	}
}

func TestBuildDraftEmailDoublingDoesNotDuplicateUsername(t *testing.T) {
	controls := []formscan.Control{
		formscan.NewControl("email", "user_email", "", "", "/f/input[1]"),
		formscan.NewControl("password", "password", "", "", "/f/input[2]"),
	}
	form := formscan.ClassifyForm("/f", controls, "log in")
	d, ok := BuildDraft(form, map[string]string{
		"/f/input[1]": "a@b.c", "/f/input[2]": "pw-123",
	}, "https://example.com/login")
	if !ok {
		t.Fatal("draft expected")
	}
	if d.EmailAddress != "a@b.c" || d.LoginUsername != "" {
		t.Errorf("draft = %+v, email field must not also become the username", d)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		stored    string
		hasStored bool
		submitted string
		want      Decision
	}{
		{"", false, "", DecisionKeep},
		{"old", true, "", DecisionKeep},
		{"", false, "new", DecisionUpdate},
		{"same", true, "same", DecisionKeep},
		{"old", true, "new", DecisionUpdate},
	}
	for _, tt := range tests {
		if got := Resolve(tt.stored, tt.hasStored, tt.submitted); got != tt.want {
			t.Errorf("Resolve(%q, %v, %q) = %v, want %v",
				tt.stored, tt.hasStored, tt.submitted, got, tt.want)
		}
	}
}

func TestMatchRegistrationPrefersEmail(t *testing.T) {
	regs := []bridge.Registration{
		{ID: "1", LoginUsername: "alice"},
		{ID: "2", EmailAddress: "A@B.C"},
	}
	got := MatchRegistration(regs, bridge.RegistrationDraft{EmailAddress: "a@b.c", LoginUsername: "alice"})
	if got == nil || got.ID != "2" {
		t.Errorf("match = %+v, want email match (id 2)", got)
	}

	got = MatchRegistration(regs, bridge.RegistrationDraft{LoginUsername: "alice"})
	if got == nil || got.ID != "1" {
		t.Errorf("match = %+v, want username match (id 1)", got)
	}

	if got := MatchRegistration(regs, bridge.RegistrationDraft{EmailAddress: "x@y.z"}); got != nil {
		t.Errorf("match = %+v, want nil", got)
	}
}

// fakePrompter records prompts; tests trigger the confirm callbacks.
type fakePrompter struct {
	savePrompts   []func(context.Context) error
	updatePrompts []func(context.Context) error
	toasts        []string
}

func (p *fakePrompter) PromptSave(ctx context.Context, pageID string, draft bridge.RegistrationDraft, confirm func(context.Context) error) error {
	p.savePrompts = append(p.savePrompts, confirm)
	return nil
}

func (p *fakePrompter) PromptUpdate(ctx context.Context, pageID string, existing bridge.Registration, confirm func(context.Context) error) error {
	p.updatePrompts = append(p.updatePrompts, confirm)
	return nil
}

func (p *fakePrompter) Toast(ctx context.Context, pageID, message string) error {
	p.toasts = append(p.toasts, message)
	return nil
}

// fakeBroker serves the requests credsave issues from canned state.
type fakeBroker struct {
	autoSave        bool
	regs            []bridge.Registration
	passwords       map[string]string
	conflictWith    string // existing ID returned as a save conflict, "" = saves succeed
	savedDrafts     []bridge.RegistrationDraft
	passwordUpdates map[string]string
}

func (f *fakeBroker) handle(ctx context.Context, req bridge.Request) (*bridge.Response, error) {
	switch r := req.(type) {
	case bridge.GetAutoSaveSetting:
		return bridge.OK(map[string]bool{"auto_save": f.autoSave}), nil
	case bridge.GetRegistrationsByDomain:
		return bridge.OK(f.regs), nil
	case bridge.GetRegistrationByID:
		for _, reg := range f.regs {
			if reg.ID == r.ID {
				return bridge.OK(reg), nil
			}
		}
		return bridge.Fail("not found"), nil
	case bridge.GetRegistrationPassword:
		return bridge.OK(map[string]string{"password": f.passwords[r.ID]}), nil
	case bridge.SaveRegistration:
		if f.conflictWith != "" {
			return &bridge.Response{Conflict: true, Error: "already registered",
				ConflictData: &bridge.ConflictData{ExistingID: f.conflictWith, ConflictType: "duplicate_registration"}}, nil
		}
		f.savedDrafts = append(f.savedDrafts, r.Draft)
		return bridge.OK(bridge.Registration{ID: "new"}), nil
	case bridge.UpdateRegistrationPassword:
		if f.passwordUpdates == nil {
			f.passwordUpdates = map[string]string{}
		}
		f.passwordUpdates[r.ID] = r.Password
		return bridge.OK(bridge.Registration{ID: r.ID}), nil
	}
	return bridge.Fail("unexpected request " + req.Kind()), nil
}

func newSaver(f *fakeBroker) (*Saver, *fakePrompter) {
	br := bridge.New(slog.New(slog.DiscardHandler))
	br.AttachBroker(f.handle)
	p := &fakePrompter{}
	return New(br, p, slog.New(slog.DiscardHandler)), p
}

func submit(t *testing.T, s *Saver) {
	t.Helper()
	form := registerForm()
	err := s.OnFormSubmitted(context.Background(), "p1", "https://www.example.com/signup",
		form, map[string]string{"/f/input[1]": "a@b.c", "/f/input[2]": "hunter22"})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAutoCaptureSaves(t *testing.T) {
	f := &fakeBroker{autoSave: true}
	s, p := newSaver(f)
	submit(t, s)

	if len(f.savedDrafts) != 1 {
		t.Fatalf("saved %d drafts, want 1", len(f.savedDrafts))
	}
	if len(p.toasts) != 1 || !strings.Contains(p.toasts[0], "example.com") {
		t.Errorf("toasts = %v", p.toasts)
	}
	if len(p.savePrompts)+len(p.updatePrompts) != 0 {
		t.Error("auto mode must not prompt on a clean save")
	}
}

func TestAutoCaptureConflictIdenticalStaysSilent(t *testing.T) {
	f := &fakeBroker{
		autoSave:     true,
		conflictWith: "42",
		regs:         []bridge.Registration{{ID: "42", EmailAddress: "a@b.c", HasPassword: true}},
		passwords:    map[string]string{"42": "hunter22"},
	}
	s, p := newSaver(f)
	submit(t, s)

	if len(p.updatePrompts) != 0 || len(p.toasts) != 0 {
		t.Errorf("identical stored password must stay silent: prompts=%d toasts=%v",
			len(p.updatePrompts), p.toasts)
	}
}

func TestAutoCaptureConflictChangedPromptsThenUpdates(t *testing.T) {
	f := &fakeBroker{
		autoSave:     true,
		conflictWith: "42",
		regs:         []bridge.Registration{{ID: "42", EmailAddress: "a@b.c", PlatformName: "example.com", HasPassword: true}},
		passwords:    map[string]string{"42": "old-password"},
	}
	s, p := newSaver(f)
	submit(t, s)

	if len(p.updatePrompts) != 1 {
		t.Fatalf("update prompts = %d, want 1", len(p.updatePrompts))
	}
	if len(f.passwordUpdates) != 0 {
		t.Fatal("nothing may be written before the user confirms")
	}

	if err := p.updatePrompts[0](context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.passwordUpdates["42"] != "hunter22" {
		t.Errorf("password updates = %v", f.passwordUpdates)
	}
}

func TestManualCaptureNewPromptsSave(t *testing.T) {
	f := &fakeBroker{autoSave: false}
	s, p := newSaver(f)
	submit(t, s)

	if len(f.savedDrafts) != 0 {
		t.Fatal("manual mode must not save before confirmation")
	}
	if len(p.savePrompts) != 1 {
		t.Fatalf("save prompts = %d, want 1", len(p.savePrompts))
	}

	if err := p.savePrompts[0](context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.savedDrafts) != 1 {
		t.Errorf("saved %d drafts after confirm, want 1", len(f.savedDrafts))
	}
}

func TestManualConfirmOverwritesOnLateConflict(t *testing.T) {
	f := &fakeBroker{autoSave: false, conflictWith: "42"}
	s, p := newSaver(f)
	submit(t, s)

	if len(p.savePrompts) != 1 {
		t.Fatalf("save prompts = %d, want 1", len(p.savePrompts))
	}
	if err := p.savePrompts[0](context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.passwordUpdates["42"] != "hunter22" {
		t.Errorf("confirmed save hitting a conflict must overwrite: %v", f.passwordUpdates)
	}
}

func TestManualCaptureFirstTimeSetPrompts(t *testing.T) {
	f := &fakeBroker{
		autoSave: false,
		regs:     []bridge.Registration{{ID: "9", EmailAddress: "a@b.c", PlatformName: "example.com", HasPassword: false}},
	}
	s, p := newSaver(f)
	submit(t, s)

	if len(p.updatePrompts) != 1 {
		t.Fatalf("update prompts = %d, want 1 (first-time password set)", len(p.updatePrompts))
	}
	if err := p.updatePrompts[0](context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.passwordUpdates["9"] != "hunter22" {
		t.Errorf("password updates = %v", f.passwordUpdates)
	}
}
