// Package security holds the request-side heuristics used to flag abusive form submissions.
// They are advisory pattern checks, not a sanitizer: output escaping still happens at render time.
package security

import (
	"net"
	"net/http"
	"regexp"
	"strings"
)

// MaxLinksPerField is the number of URLs a single free-text field may carry before it looks like spam.
const MaxLinksPerField = 3

type rule struct {
	name    string
	pattern *regexp.Regexp
}

var rules = []rule{
	{"script_tag", regexp.MustCompile(`(?i)<\s*/?\s*script`)},
	{"event_handler", regexp.MustCompile(`(?i)<[^>]+\son[a-z]+\s*=`)},
	{"javascript_uri", regexp.MustCompile(`(?i)javascript\s*:`)},
	{"iframe", regexp.MustCompile(`(?i)<\s*iframe`)},
	{"sql_injection", regexp.MustCompile(`(?i)(\bunion\s+(all\s+)?select\b|\bdrop\s+table\b|\bor\s+1\s*=\s*1\b|'\s*;\s*--)`)},
}

var linkPattern = regexp.MustCompile(`(?i)https?://`)

// Finding names the first rule a field tripped.
type Finding struct {
	Rule  string
	Field int
}

// CheckContent runs every rule over the given field values and returns the first hit.
func CheckContent(fields ...string) (Finding, bool) {
	for i, f := range fields {
		if f == "" {
			continue
		}
		for _, r := range rules {
			if r.pattern.MatchString(f) {
				return Finding{Rule: r.name, Field: i}, true
			}
		}
		if len(linkPattern.FindAllStringIndex(f, MaxLinksPerField+1)) > MaxLinksPerField {
			return Finding{Rule: "excessive_links", Field: i}, true
		}
	}
	return Finding{}, false
}

// ClientIP returns the address rate limits are keyed on. Forwarding headers are only honoured on
// requests relayed by the gateway, which overwrites them with the peer it saw. Only the right-most
// X-Forwarded-For hop is read.
func ClientIP(r *http.Request) string {
	if r.Header.Get("X-Gateway-Forwarded") == "true" {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.LastIndex(xff, ","); idx != -1 {
				xff = xff[idx+1:]
			}
			if ip := strings.TrimSpace(xff); ip != "" {
				return ip
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
