package toolcatalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/conductorhq/conductor/internal/chatmodel"
)

const (
	fetchTimeout  = 20 * time.Second
	maxFetchBytes = 512 * 1024
)

// FetchParams is the fetch tool's parameter shape.
type FetchParams struct {
	URL string `json:"url" jsonschema:"required,description=URL to retrieve"`
}

// FetchTool retrieves a URL over net/http. No HTTP client library appears
// anywhere in the retrieved example pack beyond what transport SDKs embed
// internally, so this stays on the standard library (documented in
// DESIGN.md).
type FetchTool struct{ schema json.RawMessage }

func NewFetchTool() *FetchTool { return &FetchTool{schema: GenerateSchema(FetchParams{})} }

func (t *FetchTool) Name() string                     { return "fetch" }
func (t *FetchTool) Description() string              { return "Retrieve a URL and return its body." }
func (t *FetchTool) ParameterSchema() json.RawMessage { return t.schema }
func (t *FetchTool) RequiresApproval() bool           { return true }
func (t *FetchTool) Category() Category               { return Execute }

func (t *FetchTool) Execute(ctx context.Context, params json.RawMessage, ectx ExecContext) (chatmodel.ToolResult, *ToolError) {
	var p FetchParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &ToolError{Kind: ErrInvalidParameters, ToolName: t.Name(), Message: err.Error()}
	}

	reqCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, &ToolError{Kind: ErrInvalidParameters, ToolName: t.Name(), Message: err.Error()}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &ToolError{Kind: ErrCancelled, ToolName: t.Name(), Message: "cancelled"}
		}
		return nil, &ToolError{Kind: ErrExecution, ToolName: t.Name(), Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil {
		return nil, &ToolError{Kind: ErrExecution, ToolName: t.Name(), Message: err.Error()}
	}
	truncated := false
	if len(body) > maxFetchBytes {
		body = body[:maxFetchBytes]
		truncated = true
	}

	return chatmodel.FetchResult{URL: p.URL, StatusCode: resp.StatusCode, Body: string(body), Truncated: truncated}, nil
}
