package crm

import (
	"testing"
	"time"

	"github.com/ignite/pixeltrack/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestBuildPayload_ExclusionRule(t *testing.T) {
	payload := domain.DeferredSyncPayload{
		UTMSource:   "null",
		UTMMedium:   "undefined",
		UTMCampaign: "  ",
		UTMContent:  "direct",
		UTMTerm:     "none",
		GCLID:       "unknown",
		City:        "Austin",
	}

	out := BuildPayload(payload)

	assert.NotContains(t, out, "utm_source")
	assert.NotContains(t, out, "utm_medium")
	assert.NotContains(t, out, "utm_campaign")
	assert.Equal(t, "direct", out["utm_content"], "direct is a valid attribution value, must be retained")
	assert.Equal(t, "none", out["utm_term"], "none is a valid attribution value, must be retained")
	assert.Equal(t, "unknown", out["gclid"], "unknown is a valid attribution value, must be retained")
}

func TestBuildPayload_NeverIncludesIdentityFields(t *testing.T) {
	payload := domain.DeferredSyncPayload{Email: "a@b.com", FirstName: "Ada", LastName: "Lovelace"}
	out := BuildPayload(payload)

	assert.NotContains(t, out, "email")
	assert.NotContains(t, out, "first_name")
	assert.NotContains(t, out, "last_name")
	assert.NotContains(t, out, "name")
}

func TestBuildPayload_Location(t *testing.T) {
	tests := []struct {
		name     string
		city     string
		region   string
		country  string
		expected string
	}{
		{"all present", "Austin", "Texas", "US", "Austin, Texas, US"},
		{"missing region", "Austin", "", "US", "Austin, US"},
		{"only country", "", "", "US", "US"},
		{"none present", "", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := domain.DeferredSyncPayload{City: tt.city, Region: tt.region, Country: tt.country}
			out := BuildPayload(payload)
			if tt.expected == "" {
				assert.NotContains(t, out, "location")
			} else {
				assert.Equal(t, tt.expected, out["location"])
			}
		})
	}
}

func TestBuildPayload_VisitedPagesCappedAt50(t *testing.T) {
	pages := make([]string, 60)
	for i := range pages {
		pages[i] = "page"
	}
	payload := domain.DeferredSyncPayload{VisitedPages: pages}
	out := BuildPayload(payload)

	joined := out["visited_pages"]
	assert.Len(t, splitComma(joined), 50)
}

func splitComma(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == ',' {
			out = append(out, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

func TestBuildPayload_SessionDuration(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		end      time.Time
		expected string
	}{
		{"under an hour", start.Add(12 * time.Minute), "12 minutes"},
		{"over an hour", start.Add(90 * time.Minute), "1h 30m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := domain.DeferredSyncPayload{SessionStartedAt: start, SessionLastSeen: tt.end}
			out := BuildPayload(payload)
			assert.Equal(t, tt.expected, out["session_duration"])
		})
	}
}
