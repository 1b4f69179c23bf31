package linkurl

import (
	"fmt"
	"net/url"
	"strings"
)

// Parse validates an untrusted link. It accepts only absolute http(s) URLs
// with a host; everything else is an error carrying a human-readable cause.
func Parse(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("invalid URL: empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("invalid URL: unsupported scheme %q", u.Scheme)
	}

	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid URL: no host found")
	}

	return u, nil
}

// Domain returns the canonical domain of a parsed URL: the hostname without
// port, lower-cased, with a leading "www." removed.
func Domain(u *url.URL) string {
	return NormalizeHost(u.Hostname())
}

// NormalizeHost applies the domain canonicalization to a bare hostname
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")
	return strings.TrimPrefix(host, "www.")
}
