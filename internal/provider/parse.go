package provider

import (
	"encoding/json"
	"strings"

	"github.com/hubeiqiao/Literature-screening/internal/model"
	"github.com/hubeiqiao/Literature-screening/internal/triage"
)

// llmVerdict is the JSON shape models are instructed to return.
type llmVerdict struct {
	Status       string   `json:"status"`
	Confidence   *float64 `json:"confidence"`
	Rationale    string   `json:"rationale"`
	CriteriaRefs []string `json:"criteria_refs"`
}

// ParseDecision interprets model output text against the deterministic
// anchor. The anchor supplies every field the model omits or garbles:
// an unrecognized status keeps the anchor's status, a missing confidence
// keeps the anchor's confidence. Returns false when no JSON object can be
// recovered from the content at all.
func ParseDecision(content string, record model.BibRecord, anchor triage.Result, modelLabel string) (model.TriageDecision, bool) {
	verdict, ok := parseVerdict(content)
	if !ok {
		return model.TriageDecision{}, false
	}

	decision := anchor.Decision(record)
	decision.Source = model.SourceLLM
	decision.ModelLabel = modelLabel
	decision.Rationale = strings.TrimSpace(verdict.Rationale)

	if status, ok := normalizeStatus(verdict.Status); ok {
		decision.Status = status
	}
	if verdict.Confidence != nil {
		decision.Confidence = clamp01(*verdict.Confidence)
	}

	return decision, true
}

func parseVerdict(content string) (llmVerdict, bool) {
	text := stripCodeFences(strings.TrimSpace(content))

	var verdict llmVerdict
	if err := json.Unmarshal([]byte(text), &verdict); err == nil {
		return verdict, true
	}

	// Fall back to the first balanced object in the text. Models wrap
	// their JSON in prose often enough that this pays for itself.
	if block, ok := firstJSONObject(text); ok {
		if err := json.Unmarshal([]byte(block), &verdict); err == nil {
			return verdict, true
		}
	}
	return llmVerdict{}, false
}

func stripCodeFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 {
		text = text[idx+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func firstJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func normalizeStatus(raw string) (model.TriageStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "include":
		return model.StatusInclude, true
	case "exclude":
		return model.StatusExclude, true
	case "maybe":
		return model.StatusMaybe, true
	}
	return "", false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
