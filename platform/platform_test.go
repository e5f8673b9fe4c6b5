package platform

import "testing"

func TestDerive(t *testing.T) {
	cases := []struct {
		host, want string
	}{
		{"www.example.com", "example.com"},
		{"m.example.com", "example.com"},
		{"mobile.example.com", "example.com"},
		{"shop.example.com", "shop.example.com"},
		{"example.com", "example.com"},
		{"EXAMPLE.COM", "example.com"},
		{"www.example.com:8443", "example.com"},
		{"www.m.example.com", "m.example.com"},
		{"www.", "www."}, // nothing left to strip to
		{"::1", "::1"},   // url.Hostname() strips the brackets
		{"[::1]:8080", "::1"},
		{"2001:db8::7", "2001:db8::7"},
	}
	for _, c := range cases {
		if got := Derive(c.host); got != c.want {
			t.Errorf("Derive(%q): got %q, want %q", c.host, got, c.want)
		}
	}
}

func TestFromPageURL(t *testing.T) {
	if got := FromPageURL("https://www.example.com/login?next=/"); got != "example.com" {
		t.Errorf("got %q", got)
	}
	if got := FromPageURL("::not a url"); got != "" {
		t.Errorf("bad URL: got %q, want empty", got)
	}
}

func TestMatches(t *testing.T) {
	if !Matches("shop.example.com", "shop.example.com") {
		t.Error("exact match failed")
	}
	if !Matches("www.shop.example.com", "shop.example.com") {
		t.Error("prefix-stripped match failed")
	}
	if Matches("example.com", "shop.example.com") {
		t.Error("parent domain must not match subdomain page")
	}
	if Matches("", "example.com") {
		t.Error("empty platform name must not match")
	}
}

func TestHostExcluded(t *testing.T) {
	excluded := []string{"bank.example.com", "www.private.org"}

	if !HostExcluded("bank.example.com", excluded) {
		t.Error("exact exclusion failed")
	}
	if !HostExcluded("login.bank.example.com", excluded) {
		t.Error("subdomain exclusion failed")
	}
	if !HostExcluded("private.org", excluded) {
		t.Error("www-prefixed exclusion entry should cover bare host")
	}
	if HostExcluded("example.com", excluded) {
		t.Error("parent of excluded host must not be excluded")
	}
	if HostExcluded("example.com", nil) {
		t.Error("empty list must exclude nothing")
	}
}
