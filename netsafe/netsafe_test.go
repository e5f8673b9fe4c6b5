package netsafe

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestValidateSecret(t *testing.T) {
	if err := ValidateSecret(make([]byte, 31)); !errors.Is(err, ErrSecretTooShort) {
		t.Errorf("31 bytes: got %v, want ErrSecretTooShort", err)
	}
	if err := ValidateSecret(make([]byte, 32)); err != nil {
		t.Errorf("32 bytes: got %v, want nil", err)
	}
}

func TestValidateServerURL(t *testing.T) {
	cases := []struct {
		url string
		ok  bool
	}{
		{"https://vault.example.com", true},
		{"http://192.168.1.10:8080", true}, // LAN vaults are fine
		{"ftp://example.com", false},
		{"file:///etc/passwd", false},
		{"https://", false},
		{"not a url at all ::", false},
	}
	for _, c := range cases {
		err := ValidateServerURL(c.url)
		if c.ok && err != nil {
			t.Errorf("ValidateServerURL(%q): unexpected error %v", c.url, err)
		}
		if !c.ok && err == nil {
			t.Errorf("ValidateServerURL(%q): expected error", c.url)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("hello"), 10)
	if err != nil {
		t.Fatalf("under limit: %v", err)
	}
	if !bytes.Equal(data, []byte("hello")) {
		t.Errorf("got %q", data)
	}

	if _, err := LimitedReadAll(strings.NewReader("0123456789abc"), 10); err == nil {
		t.Error("over limit: expected error")
	}
}
