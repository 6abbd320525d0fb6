package provider

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/hubeiqiao/Literature-screening/internal/model"
	"github.com/hubeiqiao/Literature-screening/internal/registry"
	"github.com/hubeiqiao/Literature-screening/pkg/openrouter"
)

const openRouterSystemPrompt = "You are a rigorous systematic review screening assistant. " +
	"Always return valid JSON with keys: status, confidence, rationale, criteria_refs, model."

// OpenRouterAdapter drives structured-reasoning screening calls through the
// OpenRouter chat-completions API.
type OpenRouterAdapter struct {
	client openrouter.Client
}

// NewOpenRouter wraps an OpenRouter client as a pipeline adapter.
func NewOpenRouter(client openrouter.Client) *OpenRouterAdapter {
	return &OpenRouterAdapter{client: client}
}

func (a *OpenRouterAdapter) Name() string { return NameOpenRouter }

func (a *OpenRouterAdapter) Label(model registry.ModelConfig) string {
	return "OpenRouter - " + model.Label
}

func (a *OpenRouterAdapter) PromptChars(in CallInput) (int, error) {
	prompt, err := BuildUserPrompt(in.Record, in.Instructions, in.Deterministic, in.Model.PromptCharacterLimit)
	if err != nil {
		return 0, err
	}
	return len(openRouterSystemPrompt) + len(prompt), nil
}

func (a *OpenRouterAdapter) Call(ctx context.Context, in CallInput) (*CallResult, error) {
	prompt, err := BuildUserPrompt(in.Record, in.Instructions, in.Deterministic, in.Model.PromptCharacterLimit)
	if err != nil {
		return nil, err
	}

	req := openrouter.ChatCompletionRequest{
		Model: in.Model.ID,
		Messages: []openrouter.Message{
			{Role: "system", Content: openRouterSystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   in.Model.MaxTokens,
		Temperature: 0,
	}

	if in.Model.SupportsReasoning && in.ReasoningEffort != "" && in.ReasoningEffort != "none" {
		req.Reasoning = &openrouter.Reasoning{Enabled: true, Effort: in.ReasoningEffort}
	}

	resp, err := a.client.ChatCompletion(ctx, in.APIKey, req)
	if err != nil {
		return nil, err
	}

	content := resp.Content()
	if content == "" {
		return nil, eris.New("openrouter: response missing content")
	}

	rawUsage := resp.UsageMap()
	return &CallResult{
		Content:    content,
		ModelLabel: a.Label(in.Model),
		Usage:      usageFromRaw(rawUsage),
		RawUsage:   rawUsage,
	}, nil
}

// usageFromRaw lifts the standard token counters out of the loose usage
// block, leaving nil when none are present.
func usageFromRaw(raw map[string]any) *model.TokenUsage {
	if raw == nil {
		return nil
	}
	usage := &model.TokenUsage{
		PromptTokens:     intField(raw, "prompt_tokens"),
		CompletionTokens: intField(raw, "completion_tokens"),
		TotalTokens:      intField(raw, "total_tokens"),
	}
	if usage.PromptTokens == 0 && usage.CompletionTokens == 0 && usage.TotalTokens == 0 {
		return nil
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}

func intField(raw map[string]any, key string) int64 {
	switch v := raw[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
