package triage

import (
	"strings"

	"github.com/hubeiqiao/Literature-screening/internal/criteria"
	"github.com/hubeiqiao/Literature-screening/internal/model"
)

// Result is the deterministic core decision for a single record: the anchor
// for any model call and the fallback when one fails.
type Result struct {
	Status           model.TriageStatus `json:"status"`
	Confidence       float64            `json:"confidence"`
	InclusionMatches []model.RuleMatch  `json:"inclusionMatches"`
	ExclusionMatches []model.RuleMatch  `json:"exclusionMatches"`
}

const (
	inclusionMinTerms = 1
	exclusionMinTerms = 2
	scoreCapPerRule   = 3
)

// Classify matches a record against the compiled criteria and produces the
// deterministic decision. Pure function of its inputs.
func Classify(record model.BibRecord, crit criteria.Criteria) Result {
	index := buildTextIndex(record)
	inclusionMatches := matchRules(crit.Inclusion, index, inclusionMinTerms)
	exclusionMatches := matchRules(crit.Exclusion, index, exclusionMinTerms)

	inclusionScore := scoreMatches(inclusionMatches)
	exclusionScore := scoreMatches(exclusionMatches)

	status := model.StatusMaybe
	switch {
	case shouldExclude(inclusionScore, exclusionScore, len(exclusionMatches)):
		status = model.StatusExclude
	case shouldInclude(inclusionScore, exclusionScore):
		status = model.StatusInclude
	}

	return Result{
		Status:           status,
		Confidence:       computeConfidence(status, inclusionScore, exclusionScore),
		InclusionMatches: inclusionMatches,
		ExclusionMatches: exclusionMatches,
	}
}

// Decision expands a classification result into a full TriageDecision for
// the given record, tagged as deterministic.
func (r Result) Decision(record model.BibRecord) model.TriageDecision {
	return model.TriageDecision{
		Key:              record.Key,
		Type:             record.Type,
		Title:            record.Field("title"),
		Year:             record.Field("year"),
		Status:           r.Status,
		Confidence:       r.Confidence,
		InclusionMatches: r.InclusionMatches,
		ExclusionMatches: r.ExclusionMatches,
		Source:           model.SourceDeterministic,
	}
}

// Summarize tallies decisions by status.
func Summarize(decisions []model.TriageDecision) model.TriageSummary {
	summary := model.TriageSummary{ByStatus: make(map[string]int)}
	for _, d := range decisions {
		summary.Total++
		summary.ByStatus[string(d.Status)]++
	}
	return summary
}

type textIndex struct {
	combined string
	keywords map[string]struct{}
}

func buildTextIndex(record model.BibRecord) textIndex {
	fields := []string{"title", "abstract", "keywords", "note", "notes"}
	var parts []string
	for _, field := range fields {
		if v := record.Field(field); v != "" {
			parts = append(parts, v)
		}
	}

	keywords := make(map[string]struct{})
	for _, kw := range record.Keywords() {
		keywords[kw] = struct{}{}
	}

	return textIndex{
		combined: strings.ToLower(strings.Join(parts, " \n ")),
		keywords: keywords,
	}
}

func matchRules(rules []criteria.Rule, index textIndex, minTerms int) []model.RuleMatch {
	var matches []model.RuleMatch
	for _, rule := range rules {
		var matched []string
		for _, term := range rule.Terms {
			if rule.Scope == criteria.ScopeKeywords {
				if _, ok := index.keywords[term]; ok {
					matched = append(matched, term)
				}
				continue
			}
			if strings.Contains(index.combined, term) {
				matched = append(matched, term)
			}
		}
		if len(matched) >= minTerms || hasStrongTerm(matched) {
			matches = append(matches, model.RuleMatch{RuleID: rule.ID, MatchedTerms: matched})
		}
	}
	return matches
}

// A strong term is specific enough to count on its own: long, numeric, or
// hyphenated.
func hasStrongTerm(terms []string) bool {
	for _, term := range terms {
		if len(term) >= 6 || strings.ContainsAny(term, "0123456789") || strings.Contains(term, "-") {
			return true
		}
	}
	return false
}

func scoreMatches(matches []model.RuleMatch) int {
	total := 0
	for _, m := range matches {
		n := len(m.MatchedTerms)
		if n > scoreCapPerRule {
			n = scoreCapPerRule
		}
		total += n
	}
	return total
}

func shouldExclude(inclusionScore, exclusionScore, exclusionHits int) bool {
	if exclusionHits == 0 {
		return false
	}
	if inclusionScore == 0 {
		return exclusionScore >= 2 || exclusionHits >= 2
	}
	return exclusionScore >= inclusionScore && exclusionScore >= 2
}

func shouldInclude(inclusionScore, exclusionScore int) bool {
	if inclusionScore < 2 {
		return false
	}
	if exclusionScore > 0 {
		return inclusionScore >= exclusionScore+2
	}
	return true
}

func computeConfidence(status model.TriageStatus, inclusionScore, exclusionScore int) float64 {
	var confidence float64
	ceiling := 0.92

	switch status {
	case model.StatusInclude:
		confidence = 0.55 + float64(minInt(inclusionScore, 6))*0.08 - float64(minInt(exclusionScore, 3))*0.05
	case model.StatusExclude:
		confidence = 0.5 + float64(minInt(exclusionScore, 6))*0.09 - float64(minInt(inclusionScore, 2))*0.04
	default:
		confidence = 0.35 + float64(minInt(inclusionScore+exclusionScore, 6))*0.05
		ceiling = 0.65
	}

	return clamp(confidence, 0.2, ceiling)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
