package ingest

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// visitorCookiePrefix matches the "sess_" convention the identity
// service already uses for session cookies (internal/service/identity).
const visitorCookiePrefix = "vis_"

// GenerateVisitorCookie creates a fresh visitor cookie: the fixed
// prefix followed by 32 hex characters of randomness.
func GenerateVisitorCookie() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return visitorCookiePrefix + hex.EncodeToString(b)
}

// ValidVisitorCookie checks the format spec §4.4 step 7 requires:
// expected prefix followed by a non-empty hex body.
func ValidVisitorCookie(cookie string) bool {
	body, ok := strings.CutPrefix(cookie, visitorCookiePrefix)
	if !ok || body == "" {
		return false
	}
	for _, r := range body {
		if !isHexDigit(r) {
			return false
		}
	}
	return true
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
