package crm

import "encoding/json"

// person is a CRM contact as it comes back from a search call. The CRM
// API stores email under any of three shapes — a bare string, an array
// of label/value pairs, or a "primary_email" field — so every
// email-bearing attribute is captured as raw JSON and decoded lazily by
// emailCandidates.
type person struct {
	ID           int             `json:"id"`
	Name         string          `json:"name"`
	Email        json.RawMessage `json:"email,omitempty"`
	PrimaryEmail json.RawMessage `json:"primary_email,omitempty"`
	Emails       json.RawMessage `json:"emails,omitempty"`
}

type labeledValue struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// emailCandidates returns every email-like string found on p, across
// whichever of its three possible shapes is populated.
func emailCandidates(p person) []string {
	var out []string
	out = append(out, decodeEmailField(p.Email)...)
	out = append(out, decodeEmailField(p.PrimaryEmail)...)
	out = append(out, decodeEmailField(p.Emails)...)
	return out
}

func decodeEmailField(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil
		}
		return []string{s}
	}

	var pairs []labeledValue
	if err := json.Unmarshal(raw, &pairs); err == nil {
		out := make([]string, 0, len(pairs))
		for _, p := range pairs {
			if p.Value != "" {
				out = append(out, p.Value)
			}
		}
		return out
	}

	var strs []string
	if err := json.Unmarshal(raw, &strs); err == nil {
		return strs
	}

	return nil
}

type searchResponse struct {
	Data struct {
		Items []struct {
			Item person `json:"item"`
		} `json:"items"`
	} `json:"data"`
}
