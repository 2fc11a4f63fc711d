package utils

import (
	"net/url"
	"strings"
)

// IsAbsoluteURI reports whether candidate parses as a URI carrying an
// explicit scheme. Scheme-less references and unparsable input are false.
func IsAbsoluteURI(candidate string) bool {
	if candidate == "" || strings.ContainsAny(candidate, " \t\r\n") {
		return false
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	return u.Scheme != ""
}

// OriginOf returns scheme://host of an absolute URI, or "" when raw has no
// scheme or host.
func OriginOf(raw string) string {
	if !IsAbsoluteURI(raw) {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}
