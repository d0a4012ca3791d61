package invoker

import (
	"context"

	"github.com/loomwork/loom/internal/mcpclient"
	"github.com/loomwork/loom/internal/registry"
)

// MCP honors skill.metadata.mcp by issuing the corresponding request to
// an injected mcpclient.Client (spec.md §4.D). Grounded on
// mcp_skill_invoker.py's action dispatch (list_resources / fetch_resource
// / call_tool).
type MCP struct {
	Client mcpclient.Client
}

// NewMCP creates an MCP invoker bound to client.
func NewMCP(client mcpclient.Client) *MCP {
	return &MCP{Client: client}
}

// Supports reports true only for skills that declare MCP metadata.
func (m *MCP) Supports(skill *registry.Skill) bool {
	return skill.Metadata.MCP != nil
}

func (m *MCP) Invoke(ctx context.Context, skill *registry.Skill, input map[string]any, execContext map[string]any) (Result, error) {
	cfg := skill.Metadata.MCP
	if cfg == nil {
		return Result{}, newError(ErrorKindInsufficientContext, "skill %s has no mcp configuration", skill.ID)
	}
	if m.Client == nil {
		return Result{}, newError(ErrorKindInsufficientContext, "no mcp client configured for skill %s", skill.ID)
	}
	if err := validateInput(skill, input); err != nil {
		return Result{}, err
	}

	ctx, cancel := withTimeout(ctx, skill)
	defer cancel()

	var (
		raw any
		err error
	)
	switch cfg.Action {
	case "list_resources":
		raw, err = m.Client.ListResources(ctx, cfg.Server)
	case "fetch_resource":
		if cfg.ResourceURI == "" {
			return Result{}, newError(ErrorKindInsufficientContext, "resource_uri required for fetch_resource on skill %s", skill.ID)
		}
		raw, err = m.Client.FetchResource(ctx, cfg.Server, cfg.ResourceURI, input)
	case "call_tool":
		if cfg.Tool == "" {
			return Result{}, newError(ErrorKindInsufficientContext, "tool required for call_tool on skill %s", skill.ID)
		}
		raw, err = m.Client.CallTool(ctx, cfg.Server, cfg.Tool, input)
	default:
		return Result{}, newError(ErrorKindValidation, "unknown mcp action %q on skill %s", cfg.Action, skill.ID)
	}

	if err != nil {
		if classifyTimeout(err) {
			return Result{}, newError(ErrorKindTimeout, "mcp invoke of %s timed out: %w", skill.ID, err)
		}
		return Result{}, newError(ErrorKindExecution, "mcp invoke of %s: %w", skill.ID, err)
	}

	output := asOutputMap(raw)
	if err := validateOutput(skill, output); err != nil {
		return Result{}, err
	}

	return Result{
		Output:       output,
		InputDigest:  digest(input),
		OutputDigest: digest(output),
	}, nil
}

func asOutputMap(raw any) map[string]any {
	if m, ok := raw.(map[string]any); ok {
		return m
	}
	return map[string]any{"result": raw}
}
