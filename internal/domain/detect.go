package domain

import (
	"net/netip"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var (
	hashRe   = regexp.MustCompile(`^[a-fA-F0-9]{32}$|^[a-fA-F0-9]{40}$|^[a-fA-F0-9]{64}$`)
	cveRe    = regexp.MustCompile(`^(?i)CVE-\d{4}-\d{4,}$`)
	emailRe  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*\.[a-zA-Z]{2,}$`)
	domainRe = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*\.[a-zA-Z]{2,}$`)
)

// DetectIOCType classifies an indicator value by shape: hash (MD5/SHA1/SHA256),
// CVE id, URL, IP (v4 or v6), email, then domain. Anything else is unknown.
func DetectIOCType(value string) IOCType {
	value = strings.TrimSpace(value)
	if value == "" {
		return IOCTypeUnknown
	}
	if hashRe.MatchString(value) {
		return IOCTypeHash
	}
	if cveRe.MatchString(value) {
		return IOCTypeCVE
	}
	for _, p := range []string{"http://", "https://", "ftp://"} {
		if strings.HasPrefix(value, p) {
			return IOCTypeURL
		}
	}
	if _, err := netip.ParseAddr(value); err == nil {
		return IOCTypeIP
	}
	if emailRe.MatchString(value) {
		return IOCTypeEmail
	}
	if domainRe.MatchString(value) {
		return IOCTypeDomain
	}
	return IOCTypeUnknown
}

// NormalizeIOC canonicalizes an indicator for cache keys and persistence:
// trimmed and lowercased, and for domains reduced to the registrable domain
// (eTLD+1) so www.example.co.uk and example.co.uk share one identity. URLs are
// kept whole; the full URL is the indicator.
func NormalizeIOC(t IOCType, value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if t == IOCTypeDomain {
		if registrable, err := publicsuffix.EffectiveTLDPlusOne(value); err == nil {
			return registrable
		}
	}
	return value
}
