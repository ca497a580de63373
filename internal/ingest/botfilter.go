package ingest

import "strings"

// botSignatures lists substrings of known crawler and headless-browser
// user-agents, matched case-insensitively. Expressed as a data table
// rather than inlined conditionals, the same style attribution.go uses
// for its recognized-parameter set.
var botSignatures = []string{
	"bot", "crawl", "spider", "slurp", "curl/", "wget/", "python-requests",
	"headlesschrome", "phantomjs", "puppeteer", "playwright",
	"facebookexternalhit", "pingdom", "uptimerobot", "ahrefsbot",
	"semrushbot", "mj12bot", "dotbot", "bingpreview",
}

// IsBot reports whether userAgent matches a known crawler or
// headless-automation signature (spec §4.4 step 2). An empty
// user-agent is treated as suspicious and rejected.
func IsBot(userAgent string) bool {
	if strings.TrimSpace(userAgent) == "" {
		return true
	}
	lower := strings.ToLower(userAgent)
	for _, sig := range botSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}
