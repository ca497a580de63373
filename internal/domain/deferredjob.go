package domain

import "time"

// DeferredSyncDelay is how long after a form submission the CRM sync
// job becomes eligible for processing.
const DeferredSyncDelay = 7 * time.Minute

// DeferredJobTTLBuffer is added on top of the delay when computing the
// KV store TTL, so an unprocessed job outlives its own scheduled time
// long enough for the scheduler to catch it before expiry.
const DeferredJobTTLBuffer = 30 * time.Minute

// IdempotencyMarkerTTL is how long a processed/scheduled idempotency
// marker is retained before a resubmission is treated as new.
const IdempotencyMarkerTTL = 24 * time.Hour

// StalledEventThreshold is how long a form_submit event may sit with a
// null sync status before the scheduler treats it as stalled.
const StalledEventThreshold = 15 * time.Minute

// StalledRetryDelay and StalledRetryTTL govern the re-enqueue of a
// stalled event: a short delay and a short TTL, since a stalled event
// has already missed its original window.
const (
	StalledRetryDelay = 1 * time.Minute
	StalledRetryTTL   = 10 * time.Minute
)

// DeferredSyncPayload is the value stored under a deferred-job key. It
// carries everything the CRM adapter needs to run FindAndUpdate without
// touching the relational store again.
type DeferredSyncPayload struct {
	EventID        string `json:"event_id"`
	VisitorID      string `json:"visitor_id"`
	SessionID      string `json:"session_id"`
	PixelID        string `json:"pixel_id"`
	ProjectID      string `json:"project_id"`

	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	PageURL     string `json:"page_url"`
	PageTitle   string `json:"page_title"`
	ReferrerURL string `json:"referrer_url"`

	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	UTMContent  string `json:"utm_content"`
	UTMTerm     string `json:"utm_term"`

	GCLID     string `json:"gclid"`
	FBCLID    string `json:"fbclid"`
	MSCLKID   string `json:"msclkid"`
	TTCLID    string `json:"ttclid"`
	TWCLID    string `json:"twclid"`
	LiFatID   string `json:"li_fat_id"`
	ScClickID string `json:"sc_click_id"`

	CampaignRegion string `json:"campaign_region"`
	AdGroup        string `json:"ad_group"`
	AdID           string `json:"ad_id"`
	SearchQuery    string `json:"search_query"`

	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
	IP      string `json:"ip_address"`

	UserAgent         string `json:"user_agent"`
	ScreenResolution  string `json:"screen_resolution"`
	DeviceType        string `json:"device_type"`
	OperatingSystem   string `json:"operating_system"`
	EventType         string `json:"event_type"`

	VisitorLastSeen  time.Time `json:"visitor_last_seen"`
	VisitedPages     []string  `json:"visited_pages"`
	SessionStartedAt time.Time `json:"session_started_at"`
	SessionLastSeen  time.Time `json:"session_last_activity"`

	ScheduledAt     time.Time `json:"scheduled_at"`
	CreatedAt       time.Time `json:"created_at"`
	IdempotencyKey  string    `json:"idempotency_key"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
}
