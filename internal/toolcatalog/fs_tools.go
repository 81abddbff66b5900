package toolcatalog

import (
	"context"
	"encoding/json"

	"github.com/conductorhq/conductor/internal/chatmodel"
	"github.com/conductorhq/conductor/internal/workspace"
)

func opContext(ctx context.Context, ectx ExecContext) workspace.OpContext {
	return workspace.OpContext{OpID: ectx.OpID, Ctx: ctx}
}

func execErr(name string, kind ErrorKind, err error) *ToolError {
	return &ToolError{Kind: kind, ToolName: name, Message: err.Error()}
}

// --- view --------------------------------------------------------------

type ViewParams struct {
	FilePath  string `json:"file_path" jsonschema:"required,description=Path to the file to read, relative to the workspace root"`
	StartLine int    `json:"start_line,omitempty" jsonschema:"description=1-indexed line to start reading from; 0 means the beginning of the file"`
	NumLines  int    `json:"num_lines,omitempty" jsonschema:"description=Number of lines to read; 0 means until the read cap"`
}

type ViewTool struct{ schema json.RawMessage }

func NewViewTool() *ViewTool { return &ViewTool{schema: GenerateSchema(ViewParams{})} }

func (t *ViewTool) Name() string                     { return "view" }
func (t *ViewTool) Description() string              { return "Read a file, optionally from a start line for N lines." }
func (t *ViewTool) ParameterSchema() json.RawMessage { return t.schema }
func (t *ViewTool) RequiresApproval() bool           { return false }
func (t *ViewTool) Category() Category               { return Read }

func (t *ViewTool) Execute(ctx context.Context, params json.RawMessage, ectx ExecContext) (chatmodel.ToolResult, *ToolError) {
	var p ViewParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &ToolError{Kind: ErrInvalidParameters, ToolName: t.Name(), Message: err.Error()}
	}
	content, lineCount, truncated, err := ectx.Workspace.ReadFile(opContext(ctx, ectx), p.FilePath, p.StartLine, p.NumLines)
	if err != nil {
		return nil, classifyFSError(t.Name(), err)
	}
	return chatmodel.FileContentResult{
		Path:      p.FilePath,
		Content:   content,
		LineStart: max(p.StartLine, 1),
		LineEnd:   max(p.StartLine, 1) + lineCount - 1,
		Truncated: truncated,
	}, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// --- ls ------------------------------------------------------------------

type LsParams struct {
	Path string `json:"path,omitempty" jsonschema:"description=Directory to list, relative to the workspace root; defaults to the root"`
}

type LsTool struct{ schema json.RawMessage }

func NewLsTool() *LsTool { return &LsTool{schema: GenerateSchema(LsParams{})} }

func (t *LsTool) Name() string                     { return "ls" }
func (t *LsTool) Description() string              { return "List a directory's immediate contents." }
func (t *LsTool) ParameterSchema() json.RawMessage { return t.schema }
func (t *LsTool) RequiresApproval() bool           { return false }
func (t *LsTool) Category() Category               { return Read }

func (t *LsTool) Execute(ctx context.Context, params json.RawMessage, ectx ExecContext) (chatmodel.ToolResult, *ToolError) {
	var p LsParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &ToolError{Kind: ErrInvalidParameters, ToolName: t.Name(), Message: err.Error()}
		}
	}
	entries, err := ectx.Workspace.ListDirectory(opContext(ctx, ectx), p.Path)
	if err != nil {
		return nil, classifyFSError(t.Name(), err)
	}
	out := make([]chatmodel.DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, chatmodel.DirEntry{Name: e.Name, IsDir: e.IsDir, Size: e.Size})
	}
	return chatmodel.ListingResult{Path: p.Path, Entries: out}, nil
}

// --- glob ------------------------------------------------------------------

type GlobParams struct {
	Pattern string `json:"pattern" jsonschema:"required,description=filepath.Match pattern relative to the workspace root (e.g. src/*.go); ** matches a single directory level only"`
}

type GlobTool struct{ schema json.RawMessage }

func NewGlobTool() *GlobTool { return &GlobTool{schema: GenerateSchema(GlobParams{})} }

func (t *GlobTool) Name() string                     { return "glob" }
func (t *GlobTool) Description() string              { return "Match a path glob pattern rooted at the workspace root. There is no subpath parameter, and matching is not recursive." }
func (t *GlobTool) ParameterSchema() json.RawMessage { return t.schema }
func (t *GlobTool) RequiresApproval() bool           { return false }
func (t *GlobTool) Category() Category               { return Search }

func (t *GlobTool) Execute(ctx context.Context, params json.RawMessage, ectx ExecContext) (chatmodel.ToolResult, *ToolError) {
	var p GlobParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &ToolError{Kind: ErrInvalidParameters, ToolName: t.Name(), Message: err.Error()}
	}
	paths, err := ectx.Workspace.Glob(opContext(ctx, ectx), p.Pattern)
	if err != nil {
		return nil, classifyFSError(t.Name(), err)
	}
	return chatmodel.GlobResult{Pattern: p.Pattern, Paths: paths}, nil
}

// --- edit ------------------------------------------------------------------

type EditOpParams struct {
	OldString string `json:"old_string" jsonschema:"description=Exact text to replace; empty only on the first op of a single-op creation"`
	NewString string `json:"new_string" jsonschema:"description=Replacement text"`
}

type EditParams struct {
	FilePath string         `json:"file_path" jsonschema:"required,description=Path of the file to edit"`
	Edits    []EditOpParams `json:"edits" jsonschema:"required,description=Ordered list of old_string/new_string operations applied atomically"`
}

type EditTool struct{ schema json.RawMessage }

func NewEditTool() *EditTool { return &EditTool{schema: GenerateSchema(EditParams{})} }

func (t *EditTool) Name() string                     { return "edit" }
func (t *EditTool) Description() string              { return "Apply one or more exact-match replacements to a single file atomically." }
func (t *EditTool) ParameterSchema() json.RawMessage { return t.schema }
func (t *EditTool) RequiresApproval() bool           { return true }
func (t *EditTool) Category() Category               { return Write }

func (t *EditTool) Execute(ctx context.Context, params json.RawMessage, ectx ExecContext) (chatmodel.ToolResult, *ToolError) {
	var p EditParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &ToolError{Kind: ErrInvalidParameters, ToolName: t.Name(), Message: err.Error()}
	}
	ops := make([]workspace.EditOp, 0, len(p.Edits))
	for _, e := range p.Edits {
		ops = append(ops, workspace.EditOp{OldString: e.OldString, NewString: e.NewString})
	}
	diff, n, err := ectx.Workspace.ApplyEdits(opContext(ctx, ectx), p.FilePath, ops)
	if err != nil {
		return nil, classifyFSError(t.Name(), err)
	}
	return chatmodel.EditResult{Path: p.FilePath, Diff: diff, BytesWritten: n}, nil
}

// --- write ------------------------------------------------------------------

type WriteParams struct {
	FilePath string `json:"file_path" jsonschema:"required,description=Path of the file to create or overwrite"`
	Content  string `json:"content" jsonschema:"required,description=Full file content"`
}

type WriteTool struct{ schema json.RawMessage }

func NewWriteTool() *WriteTool { return &WriteTool{schema: GenerateSchema(WriteParams{})} }

func (t *WriteTool) Name() string                     { return "write" }
func (t *WriteTool) Description() string              { return "Overwrite or create a file with the given content." }
func (t *WriteTool) ParameterSchema() json.RawMessage { return t.schema }
func (t *WriteTool) RequiresApproval() bool           { return true }
func (t *WriteTool) Category() Category               { return Write }

func (t *WriteTool) Execute(ctx context.Context, params json.RawMessage, ectx ExecContext) (chatmodel.ToolResult, *ToolError) {
	var p WriteParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &ToolError{Kind: ErrInvalidParameters, ToolName: t.Name(), Message: err.Error()}
	}
	created, n, err := ectx.Workspace.WriteFile(opContext(ctx, ectx), p.FilePath, p.Content)
	if err != nil {
		return nil, classifyFSError(t.Name(), err)
	}
	return chatmodel.WriteResult{Path: p.FilePath, Created: created, BytesWritten: n}, nil
}

func classifyFSError(toolName string, err error) *ToolError {
	if err == workspace.ErrCancelled {
		return &ToolError{Kind: ErrCancelled, ToolName: toolName, Message: "cancelled"}
	}
	return &ToolError{Kind: ErrExecution, ToolName: toolName, Message: err.Error()}
}
