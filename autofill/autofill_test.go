package autofill

import (
	"context"
	"log/slog"
	"testing"

	"github.com/hazyhaar/credkeeper/bridge"
	"github.com/hazyhaar/credkeeper/formscan"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		matches int
		value   string
		want    Action
	}{
		{0, "", ActionNone},
		{1, "", ActionFill},
		{2, "", ActionSelect},
		{5, "", ActionSelect},
		{1, "typed", ActionNone},
		{3, "typed", ActionNone},
	}
	for _, tt := range tests {
		if got := Decide(tt.matches, tt.value); got != tt.want {
			t.Errorf("Decide(%d, %q) = %v, want %v", tt.matches, tt.value, got, tt.want)
		}
	}
}

// fakeFiller records effect calls and serves canned field contents.
type fakeFiller struct {
	values   map[string]string // xpath -> current content
	set      map[string]string
	notified []string
}

func newFakeFiller() *fakeFiller {
	return &fakeFiller{values: map[string]string{}, set: map[string]string{}}
}

func (f *fakeFiller) FieldValue(ctx context.Context, pageID, xpath string) (string, error) {
	return f.values[xpath], nil
}

func (f *fakeFiller) SetFieldValue(ctx context.Context, pageID, xpath, value string) error {
	f.set[xpath] = value
	return nil
}

func (f *fakeFiller) NotifyFieldChanged(ctx context.Context, pageID, xpath string) error {
	f.notified = append(f.notified, xpath)
	return nil
}

type fakeSelector struct {
	shown int
	regs  []bridge.Registration
}

func (s *fakeSelector) ShowSelector(ctx context.Context, pageID string, x, y int, form formscan.FormDescriptor, regs []bridge.Registration) error {
	s.shown++
	s.regs = regs
	return nil
}

func loginForm() formscan.FormDescriptor {
	controls := []formscan.Control{
		formscan.NewControl("email", "email", "", "", "/f/input[1]"),
		formscan.NewControl("password", "password", "", "", "/f/input[2]"),
	}
	return formscan.ClassifyForm("/f", controls, "sign in")
}

func brokerWith(t *testing.T, regs []bridge.Registration, passwords map[string]string) *bridge.Bridge {
	t.Helper()
	br := bridge.New(slog.New(slog.DiscardHandler))
	br.AttachBroker(func(ctx context.Context, req bridge.Request) (*bridge.Response, error) {
		switch r := req.(type) {
		case bridge.GetRegistrationsByDomain:
			return bridge.OK(regs), nil
		case bridge.GetRegistrationPassword:
			return bridge.OK(map[string]string{"password": passwords[r.ID]}), nil
		}
		t.Fatalf("unexpected request %T", req)
		return nil, nil
	})
	return br
}

func TestSingleMatchFillsIdentityAndPassword(t *testing.T) {
	regs := []bridge.Registration{{ID: "7", PlatformName: "example.com", EmailAddress: "a@b.c", HasPassword: true}}
	br := brokerWith(t, regs, map[string]string{"7": "hunter22"})
	filler := newFakeFiller()
	o := New(br, filler, nil, slog.New(slog.DiscardHandler))

	err := o.OnFieldFocused(context.Background(), "p1", "https://www.example.com/login",
		loginForm(), "/f/input[1]", "", 10, 20)
	if err != nil {
		t.Fatal(err)
	}
	if filler.set["/f/input[1]"] != "a@b.c" {
		t.Errorf("identity fill = %q", filler.set["/f/input[1]"])
	}
	if filler.set["/f/input[2]"] != "hunter22" {
		t.Errorf("password fill = %q", filler.set["/f/input[2]"])
	}
	if len(filler.notified) != 2 {
		t.Errorf("notified %d fields, want 2", len(filler.notified))
	}
}

func TestNeverClobbersTypedContent(t *testing.T) {
	regs := []bridge.Registration{{ID: "7", EmailAddress: "a@b.c", HasPassword: true}}
	br := brokerWith(t, regs, map[string]string{"7": "hunter22"})
	filler := newFakeFiller()
	filler.values["/f/input[1]"] = "someone@else.example" // user already typed here
	o := New(br, filler, nil, slog.New(slog.DiscardHandler))

	// A pick from the selector lands here; the typed field must survive it.
	if err := o.Fill(context.Background(), "p1", loginForm(), regs[0]); err != nil {
		t.Fatal(err)
	}
	if _, wrote := filler.set["/f/input[1]"]; wrote {
		t.Error("typed identity field was overwritten")
	}
	if filler.set["/f/input[2]"] != "hunter22" {
		t.Error("empty password field should still be filled")
	}
}

func TestRegisterFormIsNeverFilled(t *testing.T) {
	br := bridge.New(slog.New(slog.DiscardHandler))
	br.AttachBroker(func(ctx context.Context, req bridge.Request) (*bridge.Response, error) {
		t.Errorf("broker queried for a register form: %T", req)
		return bridge.OK(nil), nil
	})
	filler := newFakeFiller()
	o := New(br, filler, nil, slog.New(slog.DiscardHandler))

	controls := []formscan.Control{
		formscan.NewControl("email", "email", "", "", "/f/input[1]"),
		formscan.NewControl("password", "password", "", "", "/f/input[2]"),
		formscan.NewControl("password", "confirm_password", "", "", "/f/input[3]"),
	}
	form := formscan.ClassifyForm("/f", controls, "create your account")
	if form.Kind != formscan.KindRegister {
		t.Fatalf("form kind = %q, want register", form.Kind)
	}

	err := o.OnFieldFocused(context.Background(), "p1", "https://example.com/signup",
		form, "/f/input[1]", "", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(filler.set) != 0 {
		t.Errorf("register form was filled: %v", filler.set)
	}
}

func TestNonIdentityFocusDoesNotTrigger(t *testing.T) {
	br := bridge.New(slog.New(slog.DiscardHandler))
	br.AttachBroker(func(ctx context.Context, req bridge.Request) (*bridge.Response, error) {
		t.Errorf("broker queried on password focus: %T", req)
		return bridge.OK(nil), nil
	})
	filler := newFakeFiller()
	o := New(br, filler, nil, slog.New(slog.DiscardHandler))

	err := o.OnFieldFocused(context.Background(), "p1", "https://example.com/login",
		loginForm(), "/f/input[2]", "", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(filler.set) != 0 {
		t.Errorf("password focus caused fills: %v", filler.set)
	}
}

func TestFillWritesBothIdentitySlots(t *testing.T) {
	regs := []bridge.Registration{{
		ID: "7", EmailAddress: "a@b.c", LoginUsername: "alice", HasPassword: true,
	}}
	br := brokerWith(t, regs, map[string]string{"7": "hunter22"})
	filler := newFakeFiller()
	o := New(br, filler, nil, slog.New(slog.DiscardHandler))

	controls := []formscan.Control{
		formscan.NewControl("email", "email", "", "", "/f/input[1]"),
		formscan.NewControl("text", "username", "", "", "/f/input[2]"),
		formscan.NewControl("password", "password", "", "", "/f/input[3]"),
	}
	form := formscan.ClassifyForm("/f", controls, "sign in")

	err := o.OnFieldFocused(context.Background(), "p1", "https://example.com/login",
		form, "/f/input[1]", "", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if filler.set["/f/input[1]"] != "a@b.c" {
		t.Errorf("email fill = %q", filler.set["/f/input[1]"])
	}
	if filler.set["/f/input[2]"] != "alice" {
		t.Errorf("username fill = %q", filler.set["/f/input[2]"])
	}
	if filler.set["/f/input[3]"] != "hunter22" {
		t.Errorf("password fill = %q", filler.set["/f/input[3]"])
	}
}

func TestFocusedFieldWithContentDoesNothing(t *testing.T) {
	regs := []bridge.Registration{{ID: "7", EmailAddress: "a@b.c"}}
	br := brokerWith(t, regs, nil)
	filler := newFakeFiller()
	o := New(br, filler, nil, slog.New(slog.DiscardHandler))

	err := o.OnFieldFocused(context.Background(), "p1", "https://example.com/login",
		loginForm(), "/f/input[1]", "already typing", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(filler.set) != 0 {
		t.Errorf("fills = %v, want none", filler.set)
	}
}

func TestMultipleMatchesShowSelector(t *testing.T) {
	regs := []bridge.Registration{
		{ID: "1", EmailAddress: "a@b.c"},
		{ID: "2", EmailAddress: "d@e.f"},
	}
	br := brokerWith(t, regs, nil)
	filler := newFakeFiller()
	sel := &fakeSelector{}
	o := New(br, filler, sel, slog.New(slog.DiscardHandler))

	err := o.OnFieldFocused(context.Background(), "p1", "https://example.com/login",
		loginForm(), "/f/input[1]", "", 30, 40)
	if err != nil {
		t.Fatal(err)
	}
	if sel.shown != 1 || len(sel.regs) != 2 {
		t.Errorf("selector shown=%d regs=%d", sel.shown, len(sel.regs))
	}
	if len(filler.set) != 0 {
		t.Error("nothing should be filled before a pick")
	}
}

func TestNoBrokerDegradesQuietly(t *testing.T) {
	br := bridge.New(slog.New(slog.DiscardHandler)) // nothing attached
	filler := newFakeFiller()
	o := New(br, filler, nil, slog.New(slog.DiscardHandler))

	err := o.OnFieldFocused(context.Background(), "p1", "https://example.com/login",
		loginForm(), "/f/input[1]", "", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(filler.set) != 0 {
		t.Error("no fills expected without a broker")
	}
}
