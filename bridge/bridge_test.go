package bridge

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestSendWithoutBroker(t *testing.T) {
	b := New(discardLogger())
	if resp := b.Send(context.Background(), GetRegistrations{}); resp != nil {
		t.Fatalf("expected nil response without broker, got %+v", resp)
	}
}

func TestSendNilBridge(t *testing.T) {
	var b *Bridge
	if resp := b.Send(context.Background(), GetConfig{}); resp != nil {
		t.Fatalf("expected nil response from nil bridge, got %+v", resp)
	}
}

func TestSendDispatchesToBroker(t *testing.T) {
	b := New(discardLogger())
	var seen Request
	b.AttachBroker(func(ctx context.Context, req Request) (*Response, error) {
		seen = req
		return OK([]Registration{{ID: "reg-1", PlatformName: "example.com"}}), nil
	})

	resp := b.Send(context.Background(), GetRegistrationsByDomain{Host: "www.example.com"})
	if resp == nil || !resp.Success {
		t.Fatalf("resp = %+v", resp)
	}
	req, ok := seen.(GetRegistrationsByDomain)
	if !ok {
		t.Fatalf("broker saw %T, want GetRegistrationsByDomain", seen)
	}
	if req.Host != "www.example.com" {
		t.Errorf("host = %q", req.Host)
	}

	var regs []Registration
	if err := resp.Decode(&regs); err != nil {
		t.Fatal(err)
	}
	if len(regs) != 1 || regs[0].ID != "reg-1" {
		t.Errorf("regs = %+v", regs)
	}
}

func TestSendTransportErrorYieldsNil(t *testing.T) {
	b := New(discardLogger())
	b.AttachBroker(func(ctx context.Context, req Request) (*Response, error) {
		return nil, errors.New("pipe broken")
	})

	// A handler error means the operation never completed; callers must see
	// the same nil they get when no broker is attached, not an application
	// failure they would report to the user.
	if resp := b.Send(context.Background(), GetAutoSaveSetting{}); resp != nil {
		t.Fatalf("transport error surfaced as application response: %+v", resp)
	}
}

func TestSendToPage(t *testing.T) {
	b := New(discardLogger())

	err := b.SendToPage(context.Background(), StartFormDetection{PageID: "p1"})
	var missing *ErrNoPageHandler
	if !errors.As(err, &missing) || missing.PageID != "p1" {
		t.Fatalf("err = %v, want ErrNoPageHandler for p1", err)
	}

	called := false
	b.RegisterPage("p1", func(ctx context.Context, req StartFormDetection) error {
		called = true
		return nil
	})
	if err := b.SendToPage(context.Background(), StartFormDetection{PageID: "p1"}); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("page handler not invoked")
	}

	b.UnregisterPage("p1")
	if err := b.SendToPage(context.Background(), StartFormDetection{PageID: "p1"}); err == nil {
		t.Error("expected error after UnregisterPage")
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		reg  Registration
		want string
	}{
		{Registration{EmailAddress: "a@b.c", LoginUsername: "alice", PlatformName: "example.com"}, "a@b.c"},
		{Registration{LoginUsername: "alice", PlatformName: "example.com"}, "alice"},
		{Registration{PlatformName: "example.com"}, "example.com"},
	}
	for _, tt := range tests {
		if got := tt.reg.DisplayName(); got != tt.want {
			t.Errorf("DisplayName(%+v) = %q, want %q", tt.reg, got, tt.want)
		}
	}
}
