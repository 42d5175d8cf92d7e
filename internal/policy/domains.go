package policy

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/eliteGoblin/focusd/xgate/internal/domain"
)

var domainRe = regexp.MustCompile(`^[a-z0-9.-]+$`)

// NormalizeDomain reduces a blocklist entry to a bare lowercase hostname.
// "https://X.com/path" becomes "x.com".
func NormalizeDomain(value string) (string, error) {
	raw := strings.ToLower(strings.TrimSpace(value))
	if raw == "" {
		return "", &domain.DomainError{Value: value, Reason: "empty domain"}
	}

	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
			raw = u.Hostname()
		}
	}

	raw = strings.SplitN(raw, "/", 2)[0]
	raw = strings.SplitN(raw, ":", 2)[0]
	raw = strings.Trim(raw, ".")

	switch {
	case raw == "":
		return "", &domain.DomainError{Value: value, Reason: "empty domain"}
	case !domainRe.MatchString(raw):
		return "", &domain.DomainError{Value: value, Reason: "unexpected characters"}
	case strings.Contains(raw, ".."):
		return "", &domain.DomainError{Value: value, Reason: "empty label"}
	case strings.HasPrefix(raw, "-"), strings.HasSuffix(raw, "-"):
		return "", &domain.DomainError{Value: value, Reason: "leading or trailing hyphen"}
	}
	return raw, nil
}

// ExpandDomains normalizes and deduplicates entries in order, adding a www.
// variant after each domain when includeWWW is set. Entries that fail
// normalization are skipped and returned as errors for the caller to log.
func ExpandDomains(entries []string, includeWWW bool) ([]string, []error) {
	seen := make(map[string]bool, len(entries)*2)
	out := make([]string, 0, len(entries)*2)
	var invalid []error

	add := func(d string) {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}

	for _, entry := range entries {
		d, err := NormalizeDomain(entry)
		if err != nil {
			invalid = append(invalid, err)
			continue
		}
		add(d)
		if includeWWW && !strings.HasPrefix(d, "www.") {
			add("www." + d)
		}
	}
	return out, invalid
}
