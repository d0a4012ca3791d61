package config

import (
	"fmt"

	"github.com/loomwork/loom/internal/llmclient"
)

// BuildLLMClient constructs the concrete llmclient.Client LLMConfig
// selects. An empty Provider is valid and returns (nil, nil): callers
// that never configure an LLM-backed Invoker or decomposition strategy
// (the Placeholder/MCP invokers, the rule-based decomposer) don't need
// one, matching spec.md §6's framing of the LLM transport as optional
// external wiring rather than a required core dependency.
func BuildLLMClient(cfg LLMConfig) (llmclient.Client, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "anthropic":
		return llmclient.NewAnthropicClient(llmclient.AnthropicConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			BaseURL:     cfg.BaseURL,
		})
	case "openai":
		return llmclient.NewOpenAIClient(llmclient.OpenAIConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			BaseURL:     cfg.BaseURL,
		})
	default:
		return nil, fmt.Errorf("config: unknown llm provider %q", cfg.Provider)
	}
}
