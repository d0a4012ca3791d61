// Package mcpclient is the opaque MCP transport boundary the MCP-backed
// Invoker variant talks to. Grounded on
// _examples/original_source/.../mcp_skill_invoker.py's three-action
// surface (list_resources, fetch_resource, call_tool); no MCP client
// exists anywhere in the example pack, so this interface is new, sized
// to exactly what a Skill's Metadata.MCP config can request.
package mcpclient

import "context"

// Resource is a single MCP resource descriptor.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// Client is an MCP server connection, scoped to one server identifier per
// Skill.Metadata.MCP.Server.
type Client interface {
	// ListResources returns the resources a server currently exposes.
	ListResources(ctx context.Context, server string) ([]Resource, error)

	// FetchResource retrieves a resource's content, optionally
	// parameterized by input (e.g. a query string or path template).
	FetchResource(ctx context.Context, server, uri string, input map[string]any) (any, error)

	// CallTool invokes a named tool on server with input as arguments.
	CallTool(ctx context.Context, server, tool string, input map[string]any) (any, error)
}
