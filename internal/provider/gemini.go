package provider

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/hubeiqiao/Literature-screening/internal/model"
	"github.com/hubeiqiao/Literature-screening/internal/registry"
	"github.com/hubeiqiao/Literature-screening/pkg/gemini"
)

const (
	geminiSystemPrompt = "You are a systematic review screening assistant. Respond with strict JSON only."

	geminiThinkingBudget = 4096

	geminiFullPromptLimit    = 4000
	geminiSimplePromptLimit  = 2500
	geminiFullOutputTokens   = 2048
	geminiSimpleOutputTokens = 1024
)

// GeminiAdapter drives generative screening calls through the Gemini
// generateContent API. After a bad-request class failure it retries with a
// simplified payload: shorter prompt, no system instruction, no forced JSON
// mime type, no thinking budget.
type GeminiAdapter struct {
	client gemini.Client
	model  string
}

// NewGemini wraps a Gemini client as a pipeline adapter. An empty model
// falls back to the client default.
func NewGemini(client gemini.Client, model string) *GeminiAdapter {
	if model == "" {
		model = gemini.DefaultModel
	}
	return &GeminiAdapter{client: client, model: model}
}

func (a *GeminiAdapter) Name() string { return NameGemini }

func (a *GeminiAdapter) Label(registry.ModelConfig) string {
	return "Gemini - " + a.model
}

func (a *GeminiAdapter) PromptChars(in CallInput) (int, error) {
	prompt, err := BuildUserPrompt(in.Record, in.Instructions, in.Deterministic, geminiFullPromptLimit)
	if err != nil {
		return 0, err
	}
	return len(geminiSystemPrompt) + len(prompt), nil
}

func (a *GeminiAdapter) Call(ctx context.Context, in CallInput) (*CallResult, error) {
	simple := in.Attempt > 1 && in.PrevBadRequest

	limit := geminiFullPromptLimit
	if simple {
		limit = geminiSimplePromptLimit
	}
	prompt, err := BuildUserPrompt(in.Record, in.Instructions, in.Deterministic, limit)
	if err != nil {
		return nil, err
	}

	req := gemini.GenerateContentRequest{
		Contents: []gemini.Content{
			{Role: "user", Parts: []gemini.Part{{Text: prompt}}},
		},
		GenerationConfig: &gemini.GenerationConfig{
			Temperature:     0,
			MaxOutputTokens: geminiFullOutputTokens,
		},
	}

	if simple {
		req.GenerationConfig.MaxOutputTokens = geminiSimpleOutputTokens
	} else {
		req.SystemInstruction = &gemini.Content{
			Parts: []gemini.Part{{Text: geminiSystemPrompt}},
		}
		req.GenerationConfig.ResponseMimeType = "application/json"
		budget := int64(geminiThinkingBudget)
		if budget > geminiFullOutputTokens {
			budget = geminiFullOutputTokens
		}
		req.GenerationConfig.ThinkingConfig = &gemini.ThinkingConfig{ThinkingBudget: budget}
	}

	resp, err := a.client.GenerateContent(ctx, in.APIKey, a.model, req)
	if err != nil {
		return nil, err
	}

	content := resp.Text()
	if content == "" {
		return nil, eris.New("gemini: response missing content")
	}

	return &CallResult{
		Content:    content,
		ModelLabel: "Gemini - " + a.model,
		Usage:      usageFromMetadata(resp.UsageMetadata),
	}, nil
}

func usageFromMetadata(meta *gemini.UsageMetadata) *model.TokenUsage {
	if meta == nil {
		return nil
	}
	return &model.TokenUsage{
		PromptTokens:     meta.PromptTokenCount,
		CompletionTokens: meta.CandidatesTokenCount + meta.ThoughtsTokenCount,
		TotalTokens:      meta.TotalTokenCount,
	}
}
