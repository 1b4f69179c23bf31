package worker

import (
	"strings"

	"fitfeed/internal/pkg/linkurl"
)

// Blacklist flags untrusted domains. An entry matches any domain that
// contains it as a substring, so "scam.com" also blocks "evil.scam.com".
type Blacklist struct {
	entries []string
}

// NewBlacklist creates a blacklist from configured entries. Entries are
// lower-cased and blank ones are dropped.
func NewBlacklist(entries []string) *Blacklist {
	cleaned := make([]string, 0, len(entries))
	for _, entry := range entries {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry != "" {
			cleaned = append(cleaned, entry)
		}
	}
	return &Blacklist{entries: cleaned}
}

// IsBlacklisted reports whether the domain matches a blacklist entry.
// The input is normalized here since callers may pass a raw hostname.
func (b *Blacklist) IsBlacklisted(domain string) bool {
	domain = linkurl.NormalizeHost(domain)
	if domain == "" {
		return false
	}
	for _, entry := range b.entries {
		if strings.Contains(domain, entry) {
			return true
		}
	}
	return false
}
