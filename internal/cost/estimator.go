// Package cost projects metered charges before a model call and settles
// them against provider-reported usage afterwards. All charges are integer
// cents; rounding always lands on whole cents.
package cost

import (
	"math"
	"strconv"
	"strings"

	"github.com/hubeiqiao/Literature-screening/internal/model"
	"github.com/hubeiqiao/Literature-screening/internal/registry"
)

const (
	// CharsPerToken is the prompt sizing heuristic. English scientific
	// abstracts average just under four characters per token.
	CharsPerToken = 3.8

	MinPromptTokens     = 400
	MinCompletionTokens = 512

	// Completion projections assume reasoning-enabled calls consume a
	// larger share of the token budget.
	ReasoningCompletionRatio = 0.65
	DefaultCompletionRatio   = 0.5

	// EstimateBuffer pads projections so authorization errs on the side
	// of holding too much rather than too little.
	EstimateBuffer = 1.35
)

// Estimate is a pre-call cost projection.
type Estimate struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
	Cents            int64 `json:"cents"`
}

// Project computes the buffered worst-case charge for a call before it is
// made. Models without pricing project to zero cents.
func Project(promptChars int, maxTokens int64, reasoningEnabled bool, pricing *registry.Pricing) Estimate {
	promptTokens := int64(math.Ceil(float64(promptChars) / CharsPerToken))
	if promptTokens < MinPromptTokens {
		promptTokens = MinPromptTokens
	}

	ratio := DefaultCompletionRatio
	if reasoningEnabled {
		ratio = ReasoningCompletionRatio
	}
	completionTokens := int64(math.Round(float64(maxTokens) * ratio))
	if completionTokens > maxTokens {
		completionTokens = maxTokens
	}
	if completionTokens < MinCompletionTokens {
		completionTokens = MinCompletionTokens
	}

	est := Estimate{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	}
	if pricing == nil {
		return est
	}

	usd := float64(promptTokens)/1000*pricing.PromptCostPer1K +
		float64(completionTokens)/1000*pricing.CompletionCostPer1K
	cents := int64(math.Round(EstimateBuffer * usd * 100))
	if cents < pricing.MinimumChargeCents {
		cents = pricing.MinimumChargeCents
	}
	est.Cents = cents
	return est
}

// ReconcileActualCents settles the charge after a call. Precedence: a cost
// the provider reported directly, then a prompt/completion cost split, then
// token counts priced locally without the estimate buffer, then the
// estimate itself. Never negative.
func ReconcileActualCents(rawUsage map[string]any, reported *model.TokenUsage, pricing *registry.Pricing, estimate Estimate) int64 {
	if cents, ok := directCostCents(rawUsage); ok {
		return clampCents(cents)
	}
	if cents, ok := splitCostCents(rawUsage); ok {
		return clampCents(cents)
	}
	if cents, ok := tokensToCentsUnbuffered(rawUsage, reported, pricing); ok {
		return clampCents(cents)
	}
	return clampCents(estimate.Cents)
}

func directCostCents(raw map[string]any) (int64, bool) {
	for _, key := range []string{"total_cost", "cost"} {
		if usd, ok := usdValue(raw[key]); ok {
			return int64(math.Round(usd * 100)), true
		}
	}
	return 0, false
}

func splitCostCents(raw map[string]any) (int64, bool) {
	pairs := [][2]string{
		{"prompt_cost", "completion_cost"},
		{"input_cost", "output_cost"},
	}
	for _, pair := range pairs {
		promptUSD, promptOK := usdValue(raw[pair[0]])
		completionUSD, completionOK := usdValue(raw[pair[1]])
		if promptOK || completionOK {
			return int64(math.Round((promptUSD + completionUSD) * 100)), true
		}
	}
	return 0, false
}

func tokensToCentsUnbuffered(raw map[string]any, reported *model.TokenUsage, pricing *registry.Pricing) (int64, bool) {
	if pricing == nil {
		return 0, false
	}

	var promptTokens, completionTokens float64
	switch {
	case reported != nil && (reported.PromptTokens > 0 || reported.CompletionTokens > 0):
		promptTokens = float64(reported.PromptTokens)
		completionTokens = float64(reported.CompletionTokens)
	default:
		pt, ptOK := usdValue(raw["prompt_tokens"])
		ct, ctOK := usdValue(raw["completion_tokens"])
		if !ptOK && !ctOK {
			return 0, false
		}
		promptTokens = pt
		completionTokens = ct
	}

	usd := promptTokens/1000*pricing.PromptCostPer1K + completionTokens/1000*pricing.CompletionCostPer1K
	return int64(math.Round(usd * 100)), true
}

// usdValue coerces the loosely-typed cost shapes providers emit: plain
// numbers, numeric strings, and objects keyed usd, amount, or value.
func usdValue(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	case map[string]any:
		for _, key := range []string{"usd", "amount", "value"} {
			if nested, ok := usdValue(val[key]); ok {
				return nested, true
			}
		}
	}
	return 0, false
}

func clampCents(cents int64) int64 {
	if cents < 0 {
		return 0
	}
	return cents
}
