package provider

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/hubeiqiao/Literature-screening/internal/model"
	"github.com/hubeiqiao/Literature-screening/internal/registry"
	"github.com/hubeiqiao/Literature-screening/pkg/anthropic"
)

const (
	anthropicSystemPrompt = "You are a rigorous systematic review screening assistant. " +
		"Respond with a single JSON object with keys: status, confidence, rationale, criteria_refs."

	anthropicPromptLimit = 8000
	anthropicMaxTokens   = 1024
)

// AnthropicAdapter drives screening calls through the Anthropic Messages
// API. Always caller-keyed, so the client is rebuilt per call.
type AnthropicAdapter struct {
	model string

	// newClient is replaced in tests.
	newClient func(apiKey string) anthropic.Client
}

// NewAnthropic creates an Anthropic adapter. An empty model falls back to
// the package default.
func NewAnthropic(model string) *AnthropicAdapter {
	if model == "" {
		model = anthropic.DefaultModel
	}
	return &AnthropicAdapter{
		model: model,
		newClient: func(apiKey string) anthropic.Client {
			return anthropic.NewClient(apiKey)
		},
	}
}

func (a *AnthropicAdapter) Name() string { return NameAnthropic }

func (a *AnthropicAdapter) Label(registry.ModelConfig) string {
	return "Anthropic - " + a.model
}

func (a *AnthropicAdapter) PromptChars(in CallInput) (int, error) {
	prompt, err := BuildUserPrompt(in.Record, in.Instructions, in.Deterministic, anthropicPromptLimit)
	if err != nil {
		return 0, err
	}
	return len(anthropicSystemPrompt) + len(prompt), nil
}

func (a *AnthropicAdapter) Call(ctx context.Context, in CallInput) (*CallResult, error) {
	prompt, err := BuildUserPrompt(in.Record, in.Instructions, in.Deterministic, anthropicPromptLimit)
	if err != nil {
		return nil, err
	}

	temperature := 0.0
	resp, err := a.newClient(in.APIKey).CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   anthropicMaxTokens,
		System:      anthropicSystemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temperature,
	})
	if err != nil {
		return nil, err
	}

	content := resp.Text()
	if content == "" {
		return nil, eris.New("anthropic: response missing content")
	}

	return &CallResult{
		Content:    content,
		ModelLabel: "Anthropic - " + a.model,
		Usage: &model.TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}
