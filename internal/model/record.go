package model

import "strings"

// BibRecord is a single bibliographic record as produced by the upload
// parser: a record type, a citation key, and a free-form field map.
type BibRecord struct {
	Type   string            `json:"type"`
	Key    string            `json:"key"`
	Fields map[string]string `json:"fields"`
	Raw    string            `json:"raw,omitempty"`
}

// Field returns the named field, or "" when absent.
func (r BibRecord) Field(name string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

// Keywords splits the record's keywords field on commas, trimming and
// lower-casing each entry.
func (r BibRecord) Keywords() []string {
	raw := r.Field("keywords")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		kw := strings.ToLower(strings.TrimSpace(p))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
