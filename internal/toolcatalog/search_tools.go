package toolcatalog

import (
	"context"
	"encoding/json"

	"github.com/conductorhq/conductor/internal/chatmodel"
)

// --- grep --------------------------------------------------------------

type GrepParams struct {
	Pattern string `json:"pattern" jsonschema:"required,description=Regular expression to search for"`
	Path    string `json:"path,omitempty" jsonschema:"description=Subpath to search under; defaults to the workspace root"`
}

type GrepTool struct{ schema json.RawMessage }

func NewGrepTool() *GrepTool { return &GrepTool{schema: GenerateSchema(GrepParams{})} }

func (t *GrepTool) Name() string                     { return "grep" }
func (t *GrepTool) Description() string              { return "Line-regex search respecting ignore files." }
func (t *GrepTool) ParameterSchema() json.RawMessage { return t.schema }
func (t *GrepTool) RequiresApproval() bool           { return false }
func (t *GrepTool) Category() Category               { return Search }

func (t *GrepTool) Execute(ctx context.Context, params json.RawMessage, ectx ExecContext) (chatmodel.ToolResult, *ToolError) {
	var p GrepParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &ToolError{Kind: ErrInvalidParameters, ToolName: t.Name(), Message: err.Error()}
	}
	result, err := ectx.Workspace.Grep(opContext(ctx, ectx), p.Pattern, p.Path)
	if err != nil {
		return nil, classifyFSError(t.Name(), err)
	}
	matches := make([]chatmodel.GrepMatch, 0, len(result.Matches))
	for _, m := range result.Matches {
		matches = append(matches, chatmodel.GrepMatch{Path: m.Path, Line: m.Line, Text: m.Text})
	}
	return chatmodel.GrepResult{Pattern: p.Pattern, Matches: matches, Truncated: !result.SearchCompleted}, nil
}

// --- ast_grep --------------------------------------------------------------

type AstGrepParams struct {
	Pattern string `json:"pattern" jsonschema:"required,description=Structural pattern with $METAVAR placeholders"`
	Path    string `json:"path,omitempty" jsonschema:"description=Subpath to search under; defaults to the workspace root"`
	Lang    string `json:"lang,omitempty" jsonschema:"description=Language override; auto-detected from extension when omitted"`
}

type AstGrepTool struct{ schema json.RawMessage }

func NewAstGrepTool() *AstGrepTool { return &AstGrepTool{schema: GenerateSchema(AstGrepParams{})} }

func (t *AstGrepTool) Name() string        { return "ast_grep" }
func (t *AstGrepTool) Description() string { return "Structural code search with metavariable placeholders." }
func (t *AstGrepTool) ParameterSchema() json.RawMessage { return t.schema }
func (t *AstGrepTool) RequiresApproval() bool           { return false }
func (t *AstGrepTool) Category() Category               { return Search }

func (t *AstGrepTool) Execute(ctx context.Context, params json.RawMessage, ectx ExecContext) (chatmodel.ToolResult, *ToolError) {
	var p AstGrepParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &ToolError{Kind: ErrInvalidParameters, ToolName: t.Name(), Message: err.Error()}
	}
	result, err := ectx.Workspace.AstGrep(opContext(ctx, ectx), p.Pattern, p.Path, p.Lang)
	if err != nil {
		return nil, classifyFSError(t.Name(), err)
	}
	matches := make([]chatmodel.AstGrepMatch, 0, len(result.Matches))
	for _, m := range result.Matches {
		matches = append(matches, chatmodel.AstGrepMatch{
			Path:      m.Path,
			LineStart: m.Line,
			LineEnd:   m.Line,
			Text:      m.MatchedCode,
		})
	}
	return chatmodel.AstGrepResult{Pattern: p.Pattern, Matches: matches, Truncated: !result.SearchCompleted}, nil
}
