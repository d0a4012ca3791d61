package llmclient

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures an AnthropicClient. Grounded on
// providers.BaseConfig, trimmed to what a single-shot completion client
// needs (no retry/backoff knobs — the caller's invoker owns timeout
// enforcement per spec.md §4.D).
type AnthropicConfig struct {
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	MaxTokens   int    `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	BaseURL     string `yaml:"base_url,omitempty"`
}

// AnthropicClient adapts anthropic-sdk-go to the llmclient.Client contract.
type AnthropicClient struct {
	client *anthropic.Client
	cfg    AnthropicConfig
}

// NewAnthropicClient builds a Client backed by Anthropic's Messages API.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llmclient: anthropic api_key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5-20250901"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &AnthropicClient{client: &client, cfg: cfg}, nil
}

func (c *AnthropicClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	params := c.buildParams(prompt, opts)
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llmclient: anthropic complete: %w", err)
	}

	var out string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			out += tb.Text
		}
	}
	return out, nil
}

func (c *AnthropicClient) Stream(ctx context.Context, prompt string, opts Options) (<-chan string, error) {
	params := c.buildParams(prompt, opts)
	stream := c.client.Messages.NewStreaming(ctx, params)

	ch := make(chan string, 16)
	go func() {
		defer close(ch)
		for stream.Next() {
			event := stream.Current()
			if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if td, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok {
					select {
					case ch <- td.Text:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return ch, nil
}

func (c *AnthropicClient) buildParams(prompt string, opts Options) anthropic.MessageNewParams {
	model := c.cfg.Model
	if opts.Model != "" {
		model = opts.Model
	}
	maxTokens := c.cfg.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	return params
}
