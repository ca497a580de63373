package domain

import "time"

// EventType enumerates the kinds of tracking observations the ingest
// handler can record.
type EventType string

const (
	EventPageview    EventType = "pageview"
	EventFormSubmit  EventType = "form_submit"
)

// SyncStatus is the CRM reconciliation status of a form_submit event.
// Transitions are monotonic: null -> {Synced, NotFound, Error}.
type SyncStatus string

const (
	SyncStatusNone      SyncStatus = ""
	SyncStatusSynced    SyncStatus = "synced"
	SyncStatusNotFound  SyncStatus = "not_found"
	SyncStatusError     SyncStatus = "error"
)

// Event is one tracking observation, inserted exactly once per ingest
// request.
type Event struct {
	ID        string    `json:"id" db:"id"`
	ProjectID string    `json:"project_id" db:"project_id"`
	PixelID   string    `json:"pixel_id" db:"pixel_id"`
	VisitorID string    `json:"visitor_id" db:"visitor_id"`
	SessionID string    `json:"session_id" db:"session_id"`
	EventType EventType `json:"event_type" db:"event_type"`

	PageURL     string `json:"page_url" db:"page_url"`
	ReferrerURL string `json:"referrer_url" db:"referrer_url"`
	PageTitle   string `json:"page_title" db:"page_title"`
	UserAgent   string `json:"user_agent" db:"user_agent"`
	IP          string `json:"ip" db:"ip"`

	Country string `json:"country" db:"country"`
	Region  string `json:"region" db:"region"`
	City    string `json:"city" db:"city"`

	UTMSource   string `json:"utm_source" db:"utm_source"`
	UTMMedium   string `json:"utm_medium" db:"utm_medium"`
	UTMCampaign string `json:"utm_campaign" db:"utm_campaign"`
	UTMContent  string `json:"utm_content" db:"utm_content"`
	UTMTerm     string `json:"utm_term" db:"utm_term"`

	GCLID   string `json:"gclid" db:"gclid"`
	FBCLID  string `json:"fbclid" db:"fbclid"`
	MSCLKID string `json:"msclkid" db:"msclkid"`
	TTCLID  string `json:"ttclid" db:"ttclid"`
	TWCLID  string `json:"twclid" db:"twclid"`
	LiFatID string `json:"li_fat_id" db:"li_fat_id"`
	ScClickID string `json:"sc_click_id" db:"sc_click_id"`

	CampaignRegion string `json:"campaign_region" db:"campaign_region"`
	AdGroup        string `json:"ad_group" db:"ad_group"`
	AdID           string `json:"ad_id" db:"ad_id"`
	SearchQuery    string `json:"search_query" db:"search_query"`

	FormData string `json:"form_data,omitempty" db:"form_data"`

	PipedriveSyncStatus SyncStatus `json:"pipedrive_sync_status" db:"pipedrive_sync_status"`
	PipedriveSyncAt     *time.Time `json:"pipedrive_sync_at,omitempty" db:"pipedrive_sync_at"`
	PipedrivePersonID   string     `json:"pipedrive_person_id,omitempty" db:"pipedrive_person_id"`
	PipedriveRetryCount int        `json:"pipedrive_retry_count" db:"pipedrive_retry_count"`
	LastRetryAt         *time.Time `json:"last_retry_at,omitempty" db:"last_retry_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Archived  bool      `json:"archived" db:"archived"`
}

// MaxRetryCount bounds stalled-event auto-retry (spec invariant 6).
const MaxRetryCount = 3

// EligibleForStalledRetry reports whether this event should be picked
// up by the scheduler's stalled-event scan.
func (e Event) EligibleForStalledRetry(now time.Time, staleAfter time.Duration) bool {
	return e.EventType == EventFormSubmit &&
		e.PipedriveSyncStatus == SyncStatusNone &&
		e.PipedriveRetryCount < MaxRetryCount &&
		now.Sub(e.CreatedAt) >= staleAfter
}
