// Package secret keeps credentials out of log lines.
package secret

import (
	"net/url"
	"strings"
)

// Mask returns a redacted form of an opaque secret. Short secrets are
// hidden entirely; longer ones keep just enough of the ends to be
// recognizable in a log line.
func Mask(s string) string {
	n := len(s)
	switch {
	case n == 0:
		return ""
	case n <= 5:
		return strings.Repeat("*", n)
	case n <= 20:
		return s[:1] + strings.Repeat("*", n-2) + s[n-1:]
	default:
		return s[:3] + strings.Repeat("*", n-4) + s[n-1:]
	}
}

// MaskURL redacts the password of a connection URL and leaves the rest
// readable. Addresses without credentials pass through untouched.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	pw, has := u.User.Password()
	if !has {
		return raw
	}
	u.User = url.UserPassword(u.User.Username(), Mask(pw))
	return u.String()
}
