package crm

import (
	"strings"
	"time"

	"github.com/ignite/pixeltrack/internal/domain"
)

// category groups a CRM field for documentation purposes only; it plays
// no role in BuildPayload's behavior.
type category string

const (
	categoryAttribution category = "attribution"
	categoryTrackingIDs category = "tracking_ids"
	categoryContext     category = "context"
	categoryGeo         category = "geo"
	categoryAd          category = "ad"
	categoryDevice      category = "device"
	categoryAggregate   category = "aggregate"
)

// fieldMapping is one row of the logical-to-CRM-key mapping table.
type fieldMapping struct {
	logicalName string
	crmKey      string
	category    category
	value       func(p domain.DeferredSyncPayload) string
}

// FieldMap is the stable logical-to-CRM-key mapping (spec §4.5.1),
// expressed as data per the source's §9 design note rather than inlined
// in BuildPayload.
var FieldMap = []fieldMapping{
	{"utm_source", "utm_source", categoryAttribution, func(p domain.DeferredSyncPayload) string { return p.UTMSource }},
	{"utm_medium", "utm_medium", categoryAttribution, func(p domain.DeferredSyncPayload) string { return p.UTMMedium }},
	{"utm_campaign", "utm_campaign", categoryAttribution, func(p domain.DeferredSyncPayload) string { return p.UTMCampaign }},
	{"utm_content", "utm_content", categoryAttribution, func(p domain.DeferredSyncPayload) string { return p.UTMContent }},
	{"utm_term", "utm_term", categoryAttribution, func(p domain.DeferredSyncPayload) string { return p.UTMTerm }},

	{"gclid", "gclid", categoryAttribution, func(p domain.DeferredSyncPayload) string { return p.GCLID }},
	{"fbclid", "fbclid", categoryAttribution, func(p domain.DeferredSyncPayload) string { return p.FBCLID }},
	{"msclkid", "msclkid", categoryAttribution, func(p domain.DeferredSyncPayload) string { return p.MSCLKID }},
	{"ttclid", "ttclid", categoryAttribution, func(p domain.DeferredSyncPayload) string { return p.TTCLID }},
	{"twclid", "twclid", categoryAttribution, func(p domain.DeferredSyncPayload) string { return p.TWCLID }},
	{"li_fat_id", "li_fat_id", categoryAttribution, func(p domain.DeferredSyncPayload) string { return p.LiFatID }},
	{"sc_click_id", "sc_click_id", categoryAttribution, func(p domain.DeferredSyncPayload) string { return p.ScClickID }},

	{"event_id", "event_id", categoryTrackingIDs, func(p domain.DeferredSyncPayload) string { return p.EventID }},
	{"visitor_id", "visitor_id", categoryTrackingIDs, func(p domain.DeferredSyncPayload) string { return p.VisitorID }},
	{"session_id", "session_id", categoryTrackingIDs, func(p domain.DeferredSyncPayload) string { return p.SessionID }},
	{"pixel_id", "pixel_id", categoryTrackingIDs, func(p domain.DeferredSyncPayload) string { return p.PixelID }},
	{"project_id", "project_id", categoryTrackingIDs, func(p domain.DeferredSyncPayload) string { return p.ProjectID }},

	{"page_url", "page_url", categoryContext, func(p domain.DeferredSyncPayload) string { return p.PageURL }},
	{"page_title", "page_title", categoryContext, func(p domain.DeferredSyncPayload) string { return p.PageTitle }},
	{"referrer_url", "referrer_url", categoryContext, func(p domain.DeferredSyncPayload) string { return p.ReferrerURL }},
	{"ip_address", "ip_address", categoryContext, func(p domain.DeferredSyncPayload) string { return p.IP }},

	{"country", "country", categoryGeo, func(p domain.DeferredSyncPayload) string { return p.Country }},
	{"region", "region", categoryGeo, func(p domain.DeferredSyncPayload) string { return p.Region }},
	{"city", "city", categoryGeo, func(p domain.DeferredSyncPayload) string { return p.City }},
	{"location", "location", categoryGeo, func(p domain.DeferredSyncPayload) string { return joinNonEmpty(", ", p.City, p.Region, p.Country) }},

	{"campaign_region", "campaign_region", categoryAd, func(p domain.DeferredSyncPayload) string { return p.CampaignRegion }},
	{"ad_group", "ad_group", categoryAd, func(p domain.DeferredSyncPayload) string { return p.AdGroup }},
	{"ad_id", "ad_id", categoryAd, func(p domain.DeferredSyncPayload) string { return p.AdID }},
	{"search_query", "search_query", categoryAd, func(p domain.DeferredSyncPayload) string { return p.SearchQuery }},

	{"user_agent", "user_agent", categoryDevice, func(p domain.DeferredSyncPayload) string { return p.UserAgent }},
	{"screen_resolution", "screen_resolution", categoryDevice, func(p domain.DeferredSyncPayload) string { return p.ScreenResolution }},
	{"device_type", "device_type", categoryDevice, func(p domain.DeferredSyncPayload) string { return p.DeviceType }},
	{"operating_system", "operating_system", categoryDevice, func(p domain.DeferredSyncPayload) string { return p.OperatingSystem }},
	{"event_type", "event_type", categoryDevice, func(p domain.DeferredSyncPayload) string { return p.EventType }},

	{"last_visited_on", "last_visited_on", categoryAggregate, func(p domain.DeferredSyncPayload) string {
		if p.VisitorLastSeen.IsZero() {
			return ""
		}
		return formatVisitedOn(p.VisitorLastSeen)
	}},
	{"visited_pages", "visited_pages", categoryAggregate, func(p domain.DeferredSyncPayload) string {
		return strings.Join(capVisitedPages(p.VisitedPages, 50), ", ")
	}},
	{"session_duration", "session_duration", categoryAggregate, func(p domain.DeferredSyncPayload) string {
		if p.SessionStartedAt.IsZero() || p.SessionLastSeen.IsZero() {
			return ""
		}
		return domain.DurationLabel(p.SessionStartedAt, p.SessionLastSeen)
	}},
}

// excluded values are dropped even though non-empty; "none"/"unknown"/
// "direct" are deliberately NOT here — they're valid attribution values.
var excludedValues = map[string]bool{
	"null":      true,
	"undefined": true,
}

// BuildPayload applies the field map and the exclusion rule once,
// producing the opaque-keyed custom-field body for a CRM update. It
// never includes identity fields (name/email/first/last) — those are
// search-only per spec §4.5.
func BuildPayload(p domain.DeferredSyncPayload) map[string]string {
	out := make(map[string]string, len(FieldMap))
	for _, f := range FieldMap {
		v := strings.TrimSpace(f.value(p))
		if v == "" || excludedValues[strings.ToLower(v)] {
			continue
		}
		out[f.crmKey] = v
	}
	return out
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func capVisitedPages(pages []string, max int) []string {
	if len(pages) <= max {
		return pages
	}
	return pages[:max]
}

// formatVisitedOn renders t as "Month D, YYYY at h:MM AM/PM".
func formatVisitedOn(t time.Time) string {
	return t.Format("January 2, 2006 at 3:04 PM")
}
