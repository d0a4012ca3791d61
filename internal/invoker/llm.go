package invoker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/loomwork/loom/internal/llmclient"
	"github.com/loomwork/loom/internal/registry"
	"github.com/tidwall/gjson"
)

// ProgressSink receives streaming-progress events while an LLM invoker is
// running (spec.md §6's passive event sink). Invoker only needs to emit,
// never subscribe, so the dependency runs one way.
type ProgressSink interface {
	Emit(event string, data map[string]any)
}

type noopSink struct{}

func (noopSink) Emit(string, map[string]any) {}

// LLM serializes (skill.description, input, context) into a prompt,
// delegates to an external llmclient.Client, and parses the response
// against output_schema (spec.md §4.D). Streaming responses emit
// per-chunk progress events on Sink when set.
type LLM struct {
	Client    llmclient.Client
	MaxTokens int
	Sink      ProgressSink
}

// NewLLM creates an LLM invoker. sink may be nil, in which case progress
// events are discarded.
func NewLLM(client llmclient.Client, maxTokens int, sink ProgressSink) *LLM {
	if sink == nil {
		sink = noopSink{}
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &LLM{Client: client, MaxTokens: maxTokens, Sink: sink}
}

// Supports reports true for skills whose metadata names the llm invoker
// type, or that carry no explicit invoker_type and no mcp config (the
// default assignment a Composite falls back to).
func (l *LLM) Supports(skill *registry.Skill) bool {
	if skill.Metadata.InvokerType != "" {
		return skill.Metadata.InvokerType == "llm"
	}
	return skill.Metadata.MCP == nil
}

func (l *LLM) Invoke(ctx context.Context, skill *registry.Skill, input map[string]any, execContext map[string]any) (Result, error) {
	if l.Client == nil {
		return Result{}, newError(ErrorKindInsufficientContext, "no llm client configured for skill %s", skill.ID)
	}
	if err := validateInput(skill, input); err != nil {
		return Result{}, err
	}

	ctx, cancel := withTimeout(ctx, skill)
	defer cancel()

	prompt := buildPrompt(skill, input, execContext)

	l.Sink.Emit("skill.llm.started", map[string]any{"skill_id": skill.ID})

	text, err := l.streamOrComplete(ctx, prompt)
	if err != nil {
		if classifyTimeout(err) {
			return Result{}, newError(ErrorKindTimeout, "llm invoke of %s timed out: %w", skill.ID, err)
		}
		return Result{}, newError(ErrorKindExecution, "llm invoke of %s: %w", skill.ID, err)
	}

	l.Sink.Emit("skill.llm.completed", map[string]any{"skill_id": skill.ID})

	output, err := parseOutput(text, skill)
	if err != nil {
		return Result{}, newError(ErrorKindExecution, "parsing llm response for %s: %w", skill.ID, err)
	}
	if err := validateOutput(skill, output); err != nil {
		return Result{}, err
	}

	return Result{
		Output:       output,
		InputDigest:  digest(input),
		OutputDigest: digest(output),
	}, nil
}

func (l *LLM) streamOrComplete(ctx context.Context, prompt string) (string, error) {
	chunks, err := l.Client.Stream(ctx, prompt, llmclient.Options{MaxTokens: l.MaxTokens})
	if err != nil {
		return l.Client.Complete(ctx, prompt, llmclient.Options{MaxTokens: l.MaxTokens})
	}

	var sb strings.Builder
	for chunk := range chunks {
		sb.WriteString(chunk)
		l.Sink.Emit("skill.llm.chunk", map[string]any{"text": chunk})
	}
	if sb.Len() == 0 {
		return l.Client.Complete(ctx, prompt, llmclient.Options{MaxTokens: l.MaxTokens})
	}
	return sb.String(), nil
}

func buildPrompt(skill *registry.Skill, input map[string]any, execContext map[string]any) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Task: Execute Skill %q\n\n", skill.Name)
	fmt.Fprintf(&sb, "## Description\n%s\n", skill.Description)

	if len(skill.Dimensions) > 0 {
		fmt.Fprintf(&sb, "\n## Dimensions\n- %s\n", strings.Join(skill.Dimensions, "\n- "))
	}
	if len(skill.Constraints) > 0 {
		fmt.Fprintf(&sb, "\n## Constraints\n- %s\n", strings.Join(skill.Constraints, "\n- "))
	}

	inputJSON, _ := json.MarshalIndent(input, "", "  ")
	fmt.Fprintf(&sb, "\n## Input\n```json\n%s\n```\n", inputJSON)

	if len(execContext) > 0 {
		ctxJSON, _ := json.MarshalIndent(execContext, "", "  ")
		fmt.Fprintf(&sb, "\n## Context\n```json\n%s\n```\n", ctxJSON)
	}

	if skill.OutputSchema != nil {
		schemaJSON, _ := json.MarshalIndent(skill.OutputSchema, "", "  ")
		fmt.Fprintf(&sb, "\n## Required Output Shape\nRespond with a single JSON object matching:\n```json\n%s\n```\n", schemaJSON)
	}

	return sb.String()
}

// parseOutput extracts a JSON object from an LLM response. Models
// frequently wrap JSON in prose or code fences; this takes the first
// balanced {...} span rather than requiring the whole response to parse.
func parseOutput(text string, skill *registry.Skill) (map[string]any, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return map[string]any{"result": strings.TrimSpace(text)}, nil
	}

	depth := 0
	end := -1
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return map[string]any{"result": strings.TrimSpace(text)}, nil
	}

	candidate := text[start : end+1]
	if !gjson.Valid(candidate) {
		return map[string]any{"result": strings.TrimSpace(text)}, nil
	}

	out := make(map[string]any)
	gjson.Parse(candidate).ForEach(func(key, value gjson.Result) bool {
		out[key.String()] = value.Value()
		return true
	})
	return out, nil
}
