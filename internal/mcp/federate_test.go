package mcp

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

func TestNewFederatedToolCarriesNameAndSchema(t *testing.T) {
	tool := mcp.Tool{
		Name:        "search_docs",
		Description: "search project documentation",
	}
	ft := newFederatedTool(nil, "docs-server", tool)

	require.Equal(t, "search_docs", ft.Name())
	require.Equal(t, "search project documentation", ft.Description())
	require.JSONEq(t, `{"type":"object"}`, string(ft.ParameterSchema()))
	require.True(t, ft.RequiresApproval())
}

func TestFlattenContentJoinsTextBlocks(t *testing.T) {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "first"},
			mcp.TextContent{Type: "text", Text: "second"},
		},
	}
	require.Equal(t, "first\nsecond", flattenContent(result))
}

func TestFlattenContentNilResult(t *testing.T) {
	require.Equal(t, "", flattenContent(nil))
}
