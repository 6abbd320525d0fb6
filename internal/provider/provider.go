// Package provider adapts the external model APIs to a single call shape
// the pipeline can drive. Each adapter performs exactly one attempt; retry
// policy lives with the caller.
package provider

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/hubeiqiao/Literature-screening/internal/criteria"
	"github.com/hubeiqiao/Literature-screening/internal/model"
	"github.com/hubeiqiao/Literature-screening/internal/registry"
	"github.com/hubeiqiao/Literature-screening/internal/triage"
	"github.com/hubeiqiao/Literature-screening/pkg/gemini"
	"github.com/hubeiqiao/Literature-screening/pkg/openrouter"
)

// Provider names as they appear on run records and in request payloads.
const (
	NameOpenRouter = "openrouter"
	NameGemini     = "gemini"
	NameAnthropic  = "anthropic"
)

// CallInput carries everything an adapter needs for one attempt.
type CallInput struct {
	Record        model.BibRecord
	Instructions  criteria.TextInput
	Deterministic triage.Result
	Model         registry.ModelConfig

	// APIKey is the key used for this call, managed or caller-supplied.
	APIKey string

	// ReasoningEffort is one of none, low, medium, high. Ignored by models
	// that do not support reasoning.
	ReasoningEffort string

	// Attempt is 1-based. Adapters may degrade their payload on later
	// attempts after a bad-request class failure.
	Attempt        int
	PrevBadRequest bool
}

// CallResult is the raw outcome of one successful provider attempt, before
// decision parsing.
type CallResult struct {
	Content    string
	ModelLabel string
	Usage      *model.TokenUsage

	// RawUsage preserves the provider's loosely-typed usage block for cost
	// reconciliation, including upstream-reported costs.
	RawUsage map[string]any
}

// Adapter performs a single model call attempt.
type Adapter interface {
	Name() string

	// Label is the human-readable provider/model tag used on decisions
	// and warnings.
	Label(model registry.ModelConfig) string

	// PromptChars sizes the first-attempt request for cost projection.
	PromptChars(in CallInput) (int, error)

	Call(ctx context.Context, in CallInput) (*CallResult, error)
}

// HTTPStatus extracts the HTTP status code from a provider API error, if
// the error carries one.
func HTTPStatus(err error) (int, bool) {
	var orErr *openrouter.APIError
	if eris.As(err, &orErr) {
		return orErr.StatusCode, true
	}
	var gemErr *gemini.APIError
	if eris.As(err, &gemErr) {
		return gemErr.StatusCode, true
	}
	return 0, false
}
