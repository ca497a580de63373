package domain

import (
	"strconv"
	"time"
)

// SessionWindow is the inactivity gap that ends a session.
const SessionWindow = 30 * time.Minute

// Session is an activity window for a Visitor on a Pixel.
type Session struct {
	ID             string    `json:"id" db:"id"`
	VisitorID      string    `json:"visitor_id" db:"visitor_id"`
	PixelID        string    `json:"pixel_id" db:"pixel_id"`
	SessionCookie  string    `json:"session_cookie" db:"session_cookie"`
	StartedAt      time.Time `json:"started_at" db:"started_at"`
	LastActivity   time.Time `json:"last_activity" db:"last_activity"`
	PageViews      int       `json:"page_views" db:"page_views"`

	UTMSource   string `json:"utm_source" db:"utm_source"`
	UTMMedium   string `json:"utm_medium" db:"utm_medium"`
	UTMCampaign string `json:"utm_campaign" db:"utm_campaign"`
	UTMContent  string `json:"utm_content" db:"utm_content"`
	UTMTerm     string `json:"utm_term" db:"utm_term"`

	CampaignRegion string `json:"campaign_region" db:"campaign_region"`
	AdGroup        string `json:"ad_group" db:"ad_group"`
	AdID           string `json:"ad_id" db:"ad_id"`
	SearchQuery    string `json:"search_query" db:"search_query"`
}

// Active reports whether the session is still within its inactivity
// window as of `now`.
func (s Session) Active(now time.Time) bool {
	return now.Sub(s.LastActivity) < SessionWindow
}

// HasUTM reports whether the session carries any non-empty UTM source,
// the trigger condition for first-visit attribution propagation.
func (s Session) HasUTM() bool {
	return s.UTMSource != ""
}

// DurationLabel renders the session length in the "N minutes" / "Hh Mm" shape
// the CRM aggregate field requires.
func (s Session) DurationLabel() string {
	return DurationLabel(s.StartedAt, s.LastActivity)
}

// DurationLabel renders the span from start to end in the "N minutes" /
// "Hh Mm" shape the CRM aggregate field requires — shared by Session and
// DeferredSyncPayload, which carries the same two timestamps without a
// full Session row.
func DurationLabel(start, end time.Time) string {
	d := end.Sub(start)
	if d < time.Hour {
		return formatMinutes(d)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) - h*60
	return formatHoursMinutes(h, m)
}

func formatMinutes(d time.Duration) string {
	n := int(d.Minutes())
	if n < 1 {
		n = 0
	}
	return strconv.Itoa(n) + " minutes"
}

func formatHoursMinutes(h, m int) string {
	return strconv.Itoa(h) + "h " + strconv.Itoa(m) + "m"
}
