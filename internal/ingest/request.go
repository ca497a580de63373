package ingest

import (
	"encoding/json"
	"net/url"
	"strings"
)

// DecodeFormData normalizes the `form_data` field of a `POST /track`
// body into a flat string map. It accepts either a JSON object or a
// JSON-string-encoded object, since browser pixel scripts commonly
// serialize form fields before posting (spec §6.1).
func DecodeFormData(raw json.RawMessage) (map[string]string, bool) {
	if len(raw) == 0 {
		return nil, false
	}

	var obj map[string]string
	if err := json.Unmarshal(raw, &obj); err == nil {
		return normalizeNonEmpty(obj)
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil && asString != "" {
		var nested map[string]string
		if err := json.Unmarshal([]byte(asString), &nested); err == nil {
			return normalizeNonEmpty(nested)
		}
	}
	return nil, false
}

func normalizeNonEmpty(m map[string]string) (map[string]string, bool) {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// bodyFields flattens every string-valued top-level field of the
// decoded JSON body into a map, keys unchanged; non-string values are
// skipped. attribution.ExtractFromRequest lower-cases the keys itself.
func bodyFields(raw map[string]json.RawMessage) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
		}
	}
	return out
}

// queryToBody converts a pixel.gif request's query string into the
// same flattened field map the JSON body path produces, so both entry
// points share one attribution/form-data code path.
func queryToBody(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
