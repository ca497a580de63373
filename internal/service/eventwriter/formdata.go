package eventwriter

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/ignite/pixeltrack/internal/attribution"
)

// FieldAliases maps a canonical form-field name to the raw names that
// should normalize to it, expressed as data per spec §9's design note
// rather than inlined at call sites.
var FieldAliases = map[string][]string{
	"email": {"email", "e-mail", "email_address", "emailaddress", "mail"},
}

var aliasToCanonical = buildAliasIndex(FieldAliases)

func buildAliasIndex(aliases map[string][]string) map[string]string {
	idx := make(map[string]string)
	for canonical, names := range aliases {
		for _, n := range names {
			idx[normalizeKey(n)] = canonical
		}
	}
	return idx
}

// normalizeKey lowercases and maps hyphens to underscores, the
// case/dash-insensitive comparison spec §9 requires.
func normalizeKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
}

// normalizeFieldName resolves a raw form-field name to its canonical
// name via the alias table, falling back to the normalized raw name
// when there's no known alias.
func normalizeFieldName(raw string) string {
	key := normalizeKey(raw)
	if canonical, ok := aliasToCanonical[key]; ok {
		return canonical
	}
	return key
}

// DeriveFormDataFromURL extracts form fields from page-URL query
// parameters when the request carries no explicit form body: every
// parameter not in the recognized tracking set, after name
// normalization. The result must contain an "email" field to be
// retained (spec §4.3); otherwise ok is false.
func DeriveFormDataFromURL(pageURL string) (data map[string]string, ok bool) {
	if pageURL == "" {
		return nil, false
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, false
	}

	data = make(map[string]string)
	for key, values := range u.Query() {
		if attribution.RecognizedKeys[strings.ToLower(key)] {
			continue
		}
		if len(values) == 0 {
			continue
		}
		canonical := normalizeFieldName(key)
		if v := strings.TrimSpace(values[0]); v != "" {
			data[canonical] = v
		}
	}

	if data["email"] == "" {
		return nil, false
	}
	return data, true
}

// EncodeFormData serializes form_data to the JSON-string column format
// spec §4.3 requires.
func EncodeFormData(data map[string]string) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeFormData parses the form_data column back into a field map, for
// CRM payload construction and stalled-event recovery. An empty string
// decodes to an empty map.
func DecodeFormData(encoded string) (map[string]string, error) {
	if encoded == "" {
		return map[string]string{}, nil
	}
	var data map[string]string
	if err := json.Unmarshal([]byte(encoded), &data); err != nil {
		return nil, err
	}
	return data, nil
}

// ExtractIdentity pulls the email/first-name/last-name fields a CRM
// search needs out of a normalized form-data map.
func ExtractIdentity(data map[string]string) (email, firstName, lastName string) {
	return data["email"], data[normalizeFieldName("first_name")], data[normalizeFieldName("last_name")]
}
