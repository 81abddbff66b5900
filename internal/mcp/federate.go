package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/conductorhq/conductor/internal/chatmodel"
	"github.com/conductorhq/conductor/internal/toolcatalog"
	"github.com/mark3labs/mcp-go/mcp"
)

// federatedTool adapts one connected server's tool into the catalog's Tool
// contract. Execute routes back through the Hub by name rather than holding
// the connection directly, so a reconnect under the same name keeps working
// without the catalog entry needing to change.
type federatedTool struct {
	hub    *Hub
	server string
	name   string
	desc   string
	schema json.RawMessage
}

func newFederatedTool(hub *Hub, server string, tool mcp.Tool) *federatedTool {
	schema, err := json.Marshal(tool.InputSchema)
	if err != nil || len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	return &federatedTool{hub: hub, server: server, name: tool.Name, desc: tool.Description, schema: schema}
}

func (t *federatedTool) Name() string                    { return t.name }
func (t *federatedTool) Description() string              { return t.desc }
func (t *federatedTool) ParameterSchema() json.RawMessage { return t.schema }
func (t *federatedTool) Category() toolcatalog.Category   { return toolcatalog.Meta }

// RequiresApproval is always true: an MCP server is arbitrary external code
// with no built-in auto-approve precedent, unlike the bundled tools.
func (t *federatedTool) RequiresApproval() bool { return true }

func (t *federatedTool) Execute(ctx context.Context, params json.RawMessage, _ toolcatalog.ExecContext) (chatmodel.ToolResult, *toolcatalog.ToolError) {
	var args map[string]interface{}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, &toolcatalog.ToolError{Kind: toolcatalog.ErrInvalidParameters, ToolName: t.name, Message: err.Error()}
		}
	}

	result, err := t.hub.CallTool(ctx, t.name, args)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &toolcatalog.ToolError{Kind: toolcatalog.ErrCancelled, ToolName: t.name, Message: "cancelled"}
		}
		return nil, &toolcatalog.ToolError{Kind: toolcatalog.ErrExecution, ToolName: t.name, Message: err.Error()}
	}

	text := flattenContent(result)
	if result.IsError {
		return nil, &toolcatalog.ToolError{Kind: toolcatalog.ErrExecution, ToolName: t.name, Message: text}
	}
	return chatmodel.McpToolResult{Server: t.server, Tool: t.name, Text: text}, nil
}

// flattenContent collapses an MCP call result's content blocks into one
// string for the chat transcript; a server can return content kinds this
// module has no dedicated rendering for, so anything that isn't text falls
// back to its JSON form.
func flattenContent(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	parts := make([]string, 0, len(result.Content))
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
			continue
		}
		if b, err := json.Marshal(c); err == nil {
			parts = append(parts, string(b))
		}
	}
	return strings.Join(parts, "\n")
}
