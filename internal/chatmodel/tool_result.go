package chatmodel

import (
	"encoding/json"
	"fmt"
)

// ToolResult is the outcome of one tool call: exactly one success payload
// variant, or Error.
type ToolResult interface {
	isToolResult()
	Kind() string
}

const (
	ResultKindFileContent = "file_content"
	ResultKindListing     = "listing"
	ResultKindGlob        = "glob"
	ResultKindGrep        = "grep"
	ResultKindAstGrep     = "ast_grep"
	ResultKindEdit        = "edit"
	ResultKindWrite       = "write"
	ResultKindBash        = "bash"
	ResultKindFetch       = "fetch"
	ResultKindTodoList    = "todo_list"
	ResultKindMcp         = "mcp_tool"
	ResultKindError       = "error"
)

// FileContentResult is the payload of a successful view call.
type FileContentResult struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
	Truncated bool   `json:"truncated"`
}

func (FileContentResult) isToolResult() {}
func (FileContentResult) Kind() string  { return ResultKindFileContent }

// DirEntry is one entry returned by a ls call.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// ListingResult is the payload of a successful ls call.
type ListingResult struct {
	Path    string     `json:"path"`
	Entries []DirEntry `json:"entries"`
}

func (ListingResult) isToolResult() {}
func (ListingResult) Kind() string  { return ResultKindListing }

// GlobResult is the payload of a successful glob call.
type GlobResult struct {
	Pattern   string   `json:"pattern"`
	Paths     []string `json:"paths"`
	Truncated bool     `json:"truncated"`
}

func (GlobResult) isToolResult() {}
func (GlobResult) Kind() string  { return ResultKindGlob }

// GrepMatch is one line match returned by a grep call.
type GrepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// GrepResult is the payload of a successful grep call.
type GrepResult struct {
	Pattern   string      `json:"pattern"`
	Matches   []GrepMatch `json:"matches"`
	Truncated bool        `json:"truncated"`
}

func (GrepResult) isToolResult() {}
func (GrepResult) Kind() string  { return ResultKindGrep }

// AstGrepMatch is one structural match returned by an ast_grep call.
type AstGrepMatch struct {
	Path      string            `json:"path"`
	LineStart int               `json:"line_start"`
	LineEnd   int               `json:"line_end"`
	Text      string            `json:"text"`
	Captures  map[string]string `json:"captures,omitempty"`
}

// AstGrepResult is the payload of a successful ast_grep call.
type AstGrepResult struct {
	Pattern   string         `json:"pattern"`
	Matches   []AstGrepMatch `json:"matches"`
	Truncated bool           `json:"truncated"`
}

func (AstGrepResult) isToolResult() {}
func (AstGrepResult) Kind() string  { return ResultKindAstGrep }

// EditResult is the payload of a successful edit call.
type EditResult struct {
	Path         string `json:"path"`
	Diff         string `json:"diff"`
	BytesWritten int    `json:"bytes_written"`
}

func (EditResult) isToolResult() {}
func (EditResult) Kind() string  { return ResultKindEdit }

// WriteResult is the payload of a successful write call.
type WriteResult struct {
	Path         string `json:"path"`
	Created      bool   `json:"created"`
	BytesWritten int    `json:"bytes_written"`
}

func (WriteResult) isToolResult() {}
func (WriteResult) Kind() string  { return ResultKindWrite }

// BashResult is the payload of a successful (or non-zero-exit but
// completed) bash call.
type BashResult struct {
	Command  string `json:"command"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	TimedOut bool   `json:"timed_out"`
}

func (BashResult) isToolResult() {}
func (BashResult) Kind() string  { return ResultKindBash }

// FetchResult is the payload of a successful fetch call.
type FetchResult struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
	Truncated  bool   `json:"truncated"`
}

func (FetchResult) isToolResult() {}
func (FetchResult) Kind() string  { return ResultKindFetch }

// McpToolResult is the payload of a tool call federated from an external MCP
// server; unlike the other result kinds it carries free-form text because
// the server, not this module, defines the tool's output shape.
type McpToolResult struct {
	Server  string `json:"server"`
	Tool    string `json:"tool"`
	Text    string `json:"text"`
	IsError bool   `json:"is_error"`
}

func (McpToolResult) isToolResult() {}
func (McpToolResult) Kind() string  { return ResultKindMcp }

// TodoItem is one entry in a todo list snapshot.
type TodoItem struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Status string `json:"status"`
}

// TodoListResult is the payload of a successful todo_read/todo_write call.
type TodoListResult struct {
	Items []TodoItem `json:"items"`
}

func (TodoListResult) isToolResult() {}
func (TodoListResult) Kind() string  { return ResultKindTodoList }

// ErrorResult is returned when a tool call fails; Retryable is passed on to
// the model as a hint only, and the executor never reattempts a tool call.
type ErrorResult struct {
	Message   string `json:"message"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

func (ErrorResult) isToolResult() {}
func (ErrorResult) Kind() string  { return ResultKindError }

// DecodeToolResult reconstructs the concrete ToolResult variant from a
// kind-tagged JSON envelope.
func DecodeToolResult(raw json.RawMessage) (ToolResult, error) {
	var env kindEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode tool result kind: %w", err)
	}
	switch env.Kind {
	case ResultKindFileContent:
		var v FileContentResult
		return v, json.Unmarshal(raw, &v)
	case ResultKindListing:
		var v ListingResult
		return v, json.Unmarshal(raw, &v)
	case ResultKindGlob:
		var v GlobResult
		return v, json.Unmarshal(raw, &v)
	case ResultKindGrep:
		var v GrepResult
		return v, json.Unmarshal(raw, &v)
	case ResultKindAstGrep:
		var v AstGrepResult
		return v, json.Unmarshal(raw, &v)
	case ResultKindEdit:
		var v EditResult
		return v, json.Unmarshal(raw, &v)
	case ResultKindWrite:
		var v WriteResult
		return v, json.Unmarshal(raw, &v)
	case ResultKindBash:
		var v BashResult
		return v, json.Unmarshal(raw, &v)
	case ResultKindFetch:
		var v FetchResult
		return v, json.Unmarshal(raw, &v)
	case ResultKindTodoList:
		var v TodoListResult
		return v, json.Unmarshal(raw, &v)
	case ResultKindMcp:
		var v McpToolResult
		return v, json.Unmarshal(raw, &v)
	case ResultKindError:
		var v ErrorResult
		return v, json.Unmarshal(raw, &v)
	default:
		return nil, fmt.Errorf("unknown tool result kind %q", env.Kind)
	}
}

// MarshalToolResult wraps a ToolResult in its kind-tagged envelope. Exported
// so packages that embed a ToolResult inside a larger struct (chatstore,
// registry) can reuse the same envelope convention.
func MarshalToolResult(result ToolResult) (json.RawMessage, error) {
	if result == nil {
		return json.RawMessage("null"), nil
	}
	body, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["kind"] = mustMarshal(result.Kind())
	return json.Marshal(fields)
}
