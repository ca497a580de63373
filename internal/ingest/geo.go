package ingest

import (
	"net/http"
	"strings"
)

// GeoHints is the country/region/city triple edge metadata can supply
// ahead of a full IP-geolocation lookup (spec §4.4 step 6).
type GeoHints struct {
	Country string
	Region  string
	City    string
}

// ExtractGeoHints reads CDN edge-injected geo headers. CloudFront's
// viewer-location headers are checked first (the teacher's stack
// already carries an AWS SDK dependency for this edge), falling back
// to Cloudflare's single-value country header when present.
func ExtractGeoHints(r *http.Request) GeoHints {
	if country := r.Header.Get("CloudFront-Viewer-Country"); country != "" {
		return GeoHints{
			Country: country,
			Region:  r.Header.Get("CloudFront-Viewer-Country-Region"),
			City:    r.Header.Get("CloudFront-Viewer-City"),
		}
	}
	if country := r.Header.Get("CF-IPCountry"); country != "" {
		return GeoHints{Country: country}
	}
	return GeoHints{}
}

// RealIP extracts the client IP, preferring a forwarded-for chain's
// first hop over the raw remote address, the same precedence the
// teacher's internal/tracking/handler.go realIP applies.
func RealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
