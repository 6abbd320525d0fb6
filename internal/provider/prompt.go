package provider

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/hubeiqiao/Literature-screening/internal/criteria"
	"github.com/hubeiqiao/Literature-screening/internal/model"
	"github.com/hubeiqiao/Literature-screening/internal/triage"
)

// recordFields is the record projection sent to models. Only the fields a
// screening decision can rest on; never the raw source entry.
type recordFields struct {
	Key      string   `json:"key"`
	Type     string   `json:"type"`
	Title    string   `json:"title"`
	Abstract string   `json:"abstract"`
	Keywords []string `json:"keywords"`
	Year     string   `json:"year"`
	Notes    string   `json:"notes"`
	Venue    string   `json:"venue"`
}

type expectedJSON struct {
	Status       string `json:"status"`
	Confidence   string `json:"confidence"`
	Rationale    string `json:"rationale"`
	CriteriaRefs string `json:"criteria_refs"`
}

type userPrompt struct {
	Record        recordFields       `json:"record"`
	Instructions  criteria.TextInput `json:"instructions"`
	Deterministic triage.Result      `json:"deterministic"`
	ExpectedJSON  expectedJSON       `json:"expected_json"`
}

// BuildUserPrompt assembles the JSON user message shared by all adapters.
// Criteria text is truncated to the model's prompt budget; the record
// fields are sent whole.
func BuildUserPrompt(record model.BibRecord, instructions criteria.TextInput, deterministic triage.Result, charLimit int) (string, error) {
	keywords := record.Keywords()
	if keywords == nil {
		keywords = []string{}
	}

	notes := record.Field("note")
	if notes == "" {
		notes = record.Field("notes")
	}
	venue := record.Field("journal")
	if venue == "" {
		venue = record.Field("booktitle")
	}

	prompt := userPrompt{
		Record: recordFields{
			Key:      record.Key,
			Type:     record.Type,
			Title:    record.Field("title"),
			Abstract: record.Field("abstract"),
			Keywords: keywords,
			Year:     record.Field("year"),
			Notes:    notes,
			Venue:    venue,
		},
		Instructions: criteria.TextInput{
			Inclusion: truncate(instructions.Inclusion, charLimit),
			Exclusion: truncate(instructions.Exclusion, charLimit),
		},
		Deterministic: deterministic,
		ExpectedJSON: expectedJSON{
			Status:       "Include | Exclude | Maybe",
			Confidence:   "0-1 number",
			Rationale:    "50-150 word explanation citing criteria IDs",
			CriteriaRefs: "array of criteria IDs referenced",
		},
	}

	data, err := json.Marshal(prompt)
	if err != nil {
		return "", eris.Wrap(err, "provider: marshal prompt")
	}
	return string(data), nil
}

func truncate(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	if limit <= 3 {
		return text[:limit]
	}
	return text[:limit-3] + "..."
}
