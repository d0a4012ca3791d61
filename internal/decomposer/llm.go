package decomposer

import (
	"context"
	"fmt"
	"strings"

	"github.com/loomwork/loom/internal/llmclient"
	"github.com/loomwork/loom/internal/registry"
	"github.com/tidwall/gjson"
)

// LLMStrategy queries an LLM with (goal, available_roles,
// role_capabilities) and parses the response into tasks (spec.md §4.H).
// Any parse or transport failure is returned to the caller, which falls
// back to RuleBased — never panics, never silently drops the goal.
type LLMStrategy struct {
	Client    llmclient.Client
	MaxTokens int
}

// NewLLMStrategy creates an LLMStrategy. client must not be nil; callers
// that have no LLM client configured should pass nil as Decomposer's llm
// argument instead of constructing this with a nil client.
func NewLLMStrategy(client llmclient.Client, maxTokens int) *LLMStrategy {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &LLMStrategy{Client: client, MaxTokens: maxTokens}
}

func (l *LLMStrategy) Decompose(ctx context.Context, goal string, roles []*registry.Role, hints map[string]any) ([]Task, error) {
	prompt := l.buildPrompt(goal, roles, hints)
	text, err := l.Client.Complete(ctx, prompt, llmclient.Options{MaxTokens: l.MaxTokens})
	if err != nil {
		return nil, fmt.Errorf("llm decomposition: %w", err)
	}
	return parseTasks(text)
}

func (l *LLMStrategy) buildPrompt(goal string, roles []*registry.Role, hints map[string]any) string {
	var sb strings.Builder
	sb.WriteString("# Task: Decompose a goal into a dependency-graphed task list\n\n")
	fmt.Fprintf(&sb, "## Goal\n%s\n\n", goal)

	sb.WriteString("## Available Roles\n")
	for _, role := range roles {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", role.ID, role.Name, role.Description)
		for _, req := range role.RequiredSkills {
			fmt.Fprintf(&sb, "  - requires skill %s (level %d)\n", req.SkillID, req.MinLevel)
		}
	}

	sb.WriteString("\n## Required Output\nRespond with a JSON array of objects, each with " +
		"\"id\", \"description\", \"role_id\", and \"depends_on\" (an array of prior " +
		"\"id\" values) fields. Use only role_id values from the list above.\n")

	return sb.String()
}

// parseTasks extracts a JSON array of task objects from an LLM response,
// tolerating surrounding prose the way internal/invoker's LLM variant
// does for single objects.
func parseTasks(text string) ([]Task, error) {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end < 0 || end < start {
		return nil, fmt.Errorf("llm decomposition: no JSON array found in response")
	}
	candidate := text[start : end+1]
	if !gjson.Valid(candidate) {
		return nil, fmt.Errorf("llm decomposition: invalid JSON array in response")
	}

	var tasks []Task
	for _, item := range gjson.Parse(candidate).Array() {
		id := item.Get("id").String()
		if id == "" {
			id = newTaskID()
		}
		var deps []string
		for _, d := range item.Get("depends_on").Array() {
			deps = append(deps, d.String())
		}
		tasks = append(tasks, Task{
			ID:          id,
			Description: item.Get("description").String(),
			RoleID:      item.Get("role_id").String(),
			DependsOn:   deps,
			Status:      StatusPending,
			Inputs:      map[string]any{},
			Outputs:     map[string]any{},
		})
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("llm decomposition: response contained no tasks")
	}
	return tasks, nil
}
