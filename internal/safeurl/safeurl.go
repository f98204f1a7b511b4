// Package safeurl validates and sanitizes the upstream stream URLs
// configured on HTTP source modules before they hit the network or a
// log line.
package safeurl

import "net/url"

// IsHTTPOrHTTPS reports whether u is a valid URL with scheme http or
// https. Rejects file://, ftp:// and other schemes a pipeline document
// must not be able to point a source at.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := parsed.Scheme
	return s == "http" || s == "https"
}

// Redact returns u with any userinfo replaced, so stream URLs carrying
// provider credentials can appear in logs and node names.
func Redact(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.User == nil {
		return u
	}
	parsed.User = url.User("xxx")
	return parsed.String()
}
