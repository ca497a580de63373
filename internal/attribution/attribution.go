// Package attribution extracts and summarizes marketing-attribution
// parameters from an inbound tracking request. It is pure: no I/O, no
// store dependency, callable from both the ingest handler and tests
// with nothing but string inputs.
package attribution

import (
	"net/url"
	"strings"
)

// UTMData is the recognized parameter set from spec §4.1. Any other
// request parameter is treated as form data, not attribution.
type UTMData struct {
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	UTMContent  string
	UTMTerm     string

	GCLID     string
	FBCLID    string
	MSCLKID   string
	TTCLID    string
	TWCLID    string
	LiFatID   string
	ScClickID string

	CampaignRegion string
	AdGroup        string
	AdID           string
	SearchQuery    string
}

// RecognizedKeys is the full recognized parameter set, used by the
// form-data extractor (internal/service/eventwriter) to tell attribution
// parameters apart from form fields.
var RecognizedKeys = map[string]bool{
	"utm_source": true, "utm_medium": true, "utm_campaign": true,
	"utm_content": true, "utm_term": true,
	"gclid": true, "fbclid": true, "msclkid": true, "ttclid": true, "twclid": true,
	"li_fat_id": true, "sc_click_id": true,
	"campaign_region": true, "ad_group": true, "ad_id": true, "search_query": true,
}

var fieldSetters = map[string]func(*UTMData, string){
	"utm_source":      func(u *UTMData, v string) { u.UTMSource = v },
	"utm_medium":      func(u *UTMData, v string) { u.UTMMedium = v },
	"utm_campaign":    func(u *UTMData, v string) { u.UTMCampaign = v },
	"utm_content":     func(u *UTMData, v string) { u.UTMContent = v },
	"utm_term":        func(u *UTMData, v string) { u.UTMTerm = v },
	"gclid":           func(u *UTMData, v string) { u.GCLID = v },
	"fbclid":          func(u *UTMData, v string) { u.FBCLID = v },
	"msclkid":         func(u *UTMData, v string) { u.MSCLKID = v },
	"ttclid":          func(u *UTMData, v string) { u.TTCLID = v },
	"twclid":          func(u *UTMData, v string) { u.TWCLID = v },
	"li_fat_id":       func(u *UTMData, v string) { u.LiFatID = v },
	"sc_click_id":     func(u *UTMData, v string) { u.ScClickID = v },
	"campaign_region": func(u *UTMData, v string) { u.CampaignRegion = v },
	"ad_group":        func(u *UTMData, v string) { u.AdGroup = v },
	"ad_id":           func(u *UTMData, v string) { u.AdID = v },
	"search_query":    func(u *UTMData, v string) { u.SearchQuery = v },
}

func fieldGetter(name string) func(UTMData) string {
	switch name {
	case "utm_source":
		return func(u UTMData) string { return u.UTMSource }
	case "utm_medium":
		return func(u UTMData) string { return u.UTMMedium }
	case "utm_campaign":
		return func(u UTMData) string { return u.UTMCampaign }
	case "utm_content":
		return func(u UTMData) string { return u.UTMContent }
	case "utm_term":
		return func(u UTMData) string { return u.UTMTerm }
	case "gclid":
		return func(u UTMData) string { return u.GCLID }
	case "fbclid":
		return func(u UTMData) string { return u.FBCLID }
	case "msclkid":
		return func(u UTMData) string { return u.MSCLKID }
	case "ttclid":
		return func(u UTMData) string { return u.TTCLID }
	case "twclid":
		return func(u UTMData) string { return u.TWCLID }
	case "li_fat_id":
		return func(u UTMData) string { return u.LiFatID }
	case "sc_click_id":
		return func(u UTMData) string { return u.ScClickID }
	case "campaign_region":
		return func(u UTMData) string { return u.CampaignRegion }
	case "ad_group":
		return func(u UTMData) string { return u.AdGroup }
	case "ad_id":
		return func(u UTMData) string { return u.AdID }
	case "search_query":
		return func(u UTMData) string { return u.SearchQuery }
	}
	return nil
}

// ExtractFromRequest reads click-IDs and UTMs from the request body
// (already-parsed key/value map), filling missing fields from the
// page-URL query, then the referrer-URL query. Keys are matched
// case-insensitively; values are percent-decoded; empty strings are
// treated as missing.
func ExtractFromRequest(body map[string]string, pageURL, referrerURL string) UTMData {
	var data UTMData

	sources := []map[string]string{
		lowerKeys(body),
		queryParams(pageURL),
		queryParams(referrerURL),
	}

	for key, setter := range fieldSetters {
		getter := fieldGetter(key)
		for _, src := range sources {
			if getter(data) != "" {
				break
			}
			if v, ok := src[key]; ok && strings.TrimSpace(v) != "" {
				setter(&data, v)
			}
		}
	}

	return data
}

func lowerKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

func queryParams(rawURL string) map[string]string {
	out := map[string]string{}
	if rawURL == "" {
		return out
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return out
	}
	for k, vs := range u.Query() {
		if len(vs) == 0 {
			continue
		}
		out[strings.ToLower(k)] = vs[0]
	}
	return out
}

// Summary is the derived {source, medium, campaign} triple attached to
// an event's attribution field.
type Summary struct {
	Source   string
	Medium   string
	Campaign string
}

// clickIDPlatforms maps the first non-null click-ID, in priority order,
// to its implied platform.
var clickIDPlatforms = []struct {
	get func(UTMData) string
	platform string
	medium   string
}{
	{func(u UTMData) string { return u.GCLID }, "google", "cpc"},
	{func(u UTMData) string { return u.FBCLID }, "facebook", "social"},
	{func(u UTMData) string { return u.MSCLKID }, "microsoft", "unknown"},
	{func(u UTMData) string { return u.TTCLID }, "tiktok", "unknown"},
	{func(u UTMData) string { return u.TWCLID }, "twitter", "unknown"},
}

// Summarize derives {source, medium, campaign} from the recognized UTM
// set. It is a pure function of its input: equal inputs yield equal
// outputs.
func Summarize(u UTMData) Summary {
	source := u.UTMSource
	medium := u.UTMMedium
	campaign := u.UTMCampaign

	if source == "" {
		for _, p := range clickIDPlatforms {
			if p.get(u) != "" {
				source = p.platform
				if medium == "" {
					medium = p.medium
				}
				break
			}
		}
	}
	if source == "" {
		source = "direct"
	}
	if medium == "" {
		medium = "unknown"
	}
	if campaign == "" {
		campaign = u.AdGroup
	}
	if campaign == "" {
		campaign = "none"
	}

	return Summary{Source: source, Medium: medium, Campaign: campaign}
}
