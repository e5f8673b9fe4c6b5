// Package platform derives the platform name used as the matching key
// between web pages and stored registrations.
package platform

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// prefixes stripped from hostnames before matching. These are presentation
// subdomains, not identity.
var prefixes = []string{"www.", "m.", "mobile."}

// Derive returns the platform name for a hostname: lowercased, port removed,
// with common presentation prefixes stripped. Only the first matching prefix
// is removed ("www.m.example.com" becomes "m.example.com").
func Derive(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	// SplitHostPort fails on portless input, including bare IPv6 literals
	// like "::1"; the input is then already a plain host.
	if hp, _, err := net.SplitHostPort(h); err == nil {
		h = hp
	}
	h = strings.Trim(h, "[]")
	for _, p := range prefixes {
		if strings.HasPrefix(h, p) && len(h) > len(p) {
			return h[len(p):]
		}
	}
	return h
}

// Host extracts the hostname from a page URL, for callers that need the
// undigested host (exclusion checks, broker lookups).
func Host(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("platform: parse page url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("platform: page url %q has no host", pageURL)
	}
	return u.Hostname(), nil
}

// FromPageURL derives the platform name from a full page URL.
// Returns "" when the URL has no parseable host.
func FromPageURL(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return Derive(u.Hostname())
}

// Matches reports whether a stored platform name refers to the given page
// host. Both sides are derived before comparison, so "www.shop.example.com"
// and "shop.example.com" match.
func Matches(platformName, host string) bool {
	pn := Derive(platformName)
	return pn != "" && pn == Derive(host)
}

// HostExcluded reports whether host matches any entry in the excluded-sites
// list. An entry matches its own host and all subdomains.
func HostExcluded(host string, excluded []string) bool {
	h := Derive(host)
	for _, e := range excluded {
		ex := Derive(e)
		if ex == "" {
			continue
		}
		if h == ex || strings.HasSuffix(h, "."+ex) {
			return true
		}
	}
	return false
}
