package model

import "time"

// CostSummary is the audit record of what a metered call was expected to
// cost and what it actually cost, attached to a run entry.
type CostSummary struct {
	Currency           string `json:"currency"`
	EstimatedCents     int64  `json:"estimatedCents"`
	ActualCents        int64  `json:"actualCents"`
	BalanceBeforeCents int64  `json:"balanceBeforeCents"`
	BalanceAfterCents  int64  `json:"balanceAfterCents"`
}

// TokenUsage reports token consumption as observed from a provider response.
type TokenUsage struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	TotalTokens      int64 `json:"totalTokens"`
}

// TriageRun is one append-style run-history entry: one per record per
// triage call, owned by the caller, never updated after write.
type TriageRun struct {
	ID        string         `json:"id"`
	CallerID  string         `json:"callerId"`
	Provider  string         `json:"provider"`
	UsageMode string         `json:"usageMode"`
	Model     string         `json:"model,omitempty"`
	RecordKey string         `json:"recordKey"`
	Decision  TriageDecision `json:"decision"`
	Warning   string         `json:"warning,omitempty"`
	Usage     *TokenUsage    `json:"usage,omitempty"`
	Cost      *CostSummary   `json:"cost,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
