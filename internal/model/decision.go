package model

// TriageStatus is the screening outcome for a record.
type TriageStatus string

const (
	StatusInclude TriageStatus = "Include"
	StatusExclude TriageStatus = "Exclude"
	StatusMaybe   TriageStatus = "Maybe"
)

// DecisionSource records whether a decision came from the rule engine or
// from a model call.
type DecisionSource string

const (
	SourceDeterministic DecisionSource = "deterministic"
	SourceLLM           DecisionSource = "llm"
)

// RuleMatch reports which terms of a criteria rule matched a record.
type RuleMatch struct {
	RuleID       string   `json:"id"`
	MatchedTerms []string `json:"matchedTerms"`
}

// TriageDecision is the per-record screening verdict. It is created once
// per record per run and never mutated afterwards.
type TriageDecision struct {
	Key              string         `json:"key"`
	Type             string         `json:"type"`
	Title            string         `json:"title"`
	Year             string         `json:"year"`
	Status           TriageStatus   `json:"status"`
	Confidence       float64        `json:"confidence"`
	InclusionMatches []RuleMatch    `json:"inclusionMatches"`
	ExclusionMatches []RuleMatch    `json:"exclusionMatches"`
	Rationale        string         `json:"rationale,omitempty"`
	ModelLabel       string         `json:"model,omitempty"`
	Source           DecisionSource `json:"source,omitempty"`
}

// TriageSummary tallies decisions by status.
type TriageSummary struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
}
