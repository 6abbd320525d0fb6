// Package registry describes the callable model identities: pricing, token
// limits, and capability flags. The registry is read-only at runtime.
package registry

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Pricing holds per-model charge parameters. Models without pricing are
// free to call and estimate to zero.
type Pricing struct {
	PromptCostPer1K     float64 `yaml:"prompt_cost_per_1k" json:"promptCostPer1K"`
	CompletionCostPer1K float64 `yaml:"completion_cost_per_1k" json:"completionCostPer1K"`
	MinimumChargeCents  int64   `yaml:"minimum_charge_cents" json:"minimumChargeCents"`
}

// ModelConfig describes one callable model.
type ModelConfig struct {
	ID                   string   `yaml:"id" json:"id"`
	Label                string   `yaml:"label" json:"label"`
	SupportsReasoning    bool     `yaml:"supports_reasoning" json:"supportsReasoning"`
	PromptCharacterLimit int      `yaml:"prompt_character_limit" json:"promptCharacterLimit"`
	MaxTokens            int64    `yaml:"max_tokens" json:"maxTokens"`
	Pricing              *Pricing `yaml:"pricing,omitempty" json:"pricing,omitempty"`
}

// Registry is a static ordered model catalog. The first entry is the
// default model.
type Registry struct {
	models []ModelConfig
}

// Default returns the built-in catalog.
func Default() *Registry {
	return New([]ModelConfig{
		{
			ID:                   "openai/gpt-oss-120b",
			Label:                "OpenAI GPT-OSS-120B",
			SupportsReasoning:    true,
			PromptCharacterLimit: 12000,
			MaxTokens:            4096,
			Pricing: &Pricing{
				PromptCostPer1K:     0.20,
				CompletionCostPer1K: 0.35,
				MinimumChargeCents:  3,
			},
		},
		{
			ID:                   "x-ai/grok-4-fast:free",
			Label:                "xAI Grok-4 (fast, free)",
			SupportsReasoning:    false,
			PromptCharacterLimit: 8000,
			MaxTokens:            2048,
		},
	})
}

// New builds a registry from an ordered model list. Panics on an empty
// list: a registry without a default model cannot satisfy Resolve.
func New(models []ModelConfig) *Registry {
	if len(models) == 0 {
		panic("registry: empty model list")
	}
	return &Registry{models: models}
}

// LoadFile reads an operator-supplied YAML model catalog, replacing the
// built-in list.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read models file %s", path)
	}

	var wrapper struct {
		Models []ModelConfig `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "registry: parse models file")
	}
	if len(wrapper.Models) == 0 {
		return nil, eris.New("registry: models file lists no models")
	}
	return New(wrapper.Models), nil
}

// DefaultModel returns the catalog's first entry.
func (r *Registry) DefaultModel() ModelConfig {
	return r.models[0]
}

// Resolve returns the model for id, falling back to the default model when
// id is unknown. Never fails.
func (r *Registry) Resolve(id string) ModelConfig {
	for _, m := range r.models {
		if m.ID == id {
			return m
		}
	}
	return r.models[0]
}

// SupportsID reports whether id names a model in the catalog.
func (r *Registry) SupportsID(id string) bool {
	for _, m := range r.models {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Models returns a copy of the catalog.
func (r *Registry) Models() []ModelConfig {
	out := make([]ModelConfig, len(r.models))
	copy(out, r.models)
	return out
}
