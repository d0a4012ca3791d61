package llmclient

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	BaseURL     string  `yaml:"base_url,omitempty"`
}

// OpenAIClient adapts openai-go's chat completions API to llmclient.Client.
type OpenAIClient struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIClient builds a Client backed by OpenAI's chat completions API.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llmclient: openai api_key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-5.2-codex"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAIClient{client: &client, cfg: cfg}, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	model := c.cfg.Model
	if opts.Model != "" {
		model = opts.Model
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("llmclient: openai complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llmclient: openai complete: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream drains a full completion into a single chunk; openai-go's
// streaming surface differs enough from Anthropic's that wiring true
// incremental deltas through a second transport isn't worth the
// duplication for a convenience client — callers that need true streaming
// progress should prefer AnthropicClient.
func (c *OpenAIClient) Stream(ctx context.Context, prompt string, opts Options) (<-chan string, error) {
	ch := make(chan string, 1)
	go func() {
		defer close(ch)
		text, err := c.Complete(ctx, prompt, opts)
		if err != nil {
			return
		}
		select {
		case ch <- text:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}
