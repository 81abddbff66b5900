package executor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/conductorhq/conductor/internal/approval"
	"github.com/conductorhq/conductor/internal/chatmodel"
	"github.com/conductorhq/conductor/internal/chatstore"
	"github.com/conductorhq/conductor/internal/events"
	"github.com/conductorhq/conductor/internal/llmprovider"
	"github.com/conductorhq/conductor/internal/registry"
	"github.com/conductorhq/conductor/internal/toolcatalog"
	"github.com/stretchr/testify/require"
)

// fakeProvider replays a fixed sequence of chunk batches, one batch per
// ChatStream call, so a test can script multi-round turns.
type fakeProvider struct {
	batches [][]llmprovider.StreamChunk
	call    int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) ChatStream(ctx context.Context, req llmprovider.Request) (<-chan llmprovider.StreamChunk, error) {
	if p.call >= len(p.batches) {
		p.call++
		ch := make(chan llmprovider.StreamChunk)
		close(ch)
		return ch, nil
	}
	batch := p.batches[p.call]
	p.call++
	ch := make(chan llmprovider.StreamChunk, len(batch))
	for _, c := range batch {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func textBatch(text string) []llmprovider.StreamChunk {
	return []llmprovider.StreamChunk{
		{Kind: llmprovider.ChunkTextDelta, TextDelta: text},
		{Kind: llmprovider.ChunkCompletion, StopReason: "end_turn"},
	}
}

func toolCallBatch(id, name, params string) []llmprovider.StreamChunk {
	return []llmprovider.StreamChunk{
		{Kind: llmprovider.ChunkToolCallDelta, ToolCallID: id, ToolCallName: name},
		{Kind: llmprovider.ChunkToolCallDelta, ToolCallID: id, ToolCallFrag: params},
		{Kind: llmprovider.ChunkCompletion, StopReason: "tool_use"},
	}
}

// fakeTool is a minimal toolcatalog.Tool whose Execute is scripted by the
// caller, letting tests simulate success, failure, or cancellation.
type fakeTool struct {
	name             string
	requiresApproval bool
	execute          func(ctx context.Context, params json.RawMessage) (chatmodel.ToolResult, *toolcatalog.ToolError)
}

func (t *fakeTool) Name() string                     { return t.name }
func (t *fakeTool) Description() string              { return "fake tool" }
func (t *fakeTool) ParameterSchema() json.RawMessage { return json.RawMessage(`{}`) }
func (t *fakeTool) RequiresApproval() bool           { return t.requiresApproval }
func (t *fakeTool) Category() toolcatalog.Category   { return toolcatalog.Execute }
func (t *fakeTool) Execute(ctx context.Context, params json.RawMessage, ectx toolcatalog.ExecContext) (chatmodel.ToolResult, *toolcatalog.ToolError) {
	return t.execute(ctx, params)
}

func newTestExecutor(t *testing.T, provider llmprovider.Provider, policyMode approval.Mode, tools ...*fakeTool) *Executor {
	t.Helper()

	catalog := toolcatalog.NewCatalog()
	for _, tool := range tools {
		catalog.Register(tool)
	}

	reg := registry.New()
	store := chatstore.New()
	flags := events.NewUIFlags()
	pctx := &events.PipelineContext{ChatStore: store, Registry: reg, Flags: flags}
	pipeline := events.New(pctx, events.ProcessingStateProcessor{}, events.MessageProcessor{}, events.ToolProcessor{}, events.SystemProcessor{})

	policy := approval.NewPolicy(policyMode)
	arbiter := approval.New(policy, func(ctx context.Context, req approval.Request) {
		// No interactive test routes through here; Automatic/DenyAll never emit.
	})

	return New(provider, catalog, reg, store, arbiter, pipeline, nil)
}

func userMsg(text string) chatmodel.Message {
	return chatmodel.Message{
		ID:        "u-" + text,
		Timestamp: time.Now().UTC(),
		Data:      chatmodel.UserMessage{Content: []chatmodel.UserContent{chatmodel.UserText{Text: text}}},
	}
}

func TestRunTurnEchoWithNoToolCalls(t *testing.T) {
	provider := &fakeProvider{batches: [][]llmprovider.StreamChunk{textBatch("hello there")}}
	ex := newTestExecutor(t, provider, approval.Automatic)

	agentErr := ex.RunTurn(context.Background(), "claude-x", nil, userMsg("hi"))
	require.Nil(t, agentErr)
	require.Equal(t, 1, provider.call)
}

func TestRunTurnAutoApprovesAndAttachesResult(t *testing.T) {
	tool := &fakeTool{
		name:             "view",
		requiresApproval: true,
		execute: func(ctx context.Context, params json.RawMessage) (chatmodel.ToolResult, *toolcatalog.ToolError) {
			return chatmodel.FileContentResult{Path: "a.txt", Content: "x"}, nil
		},
	}
	provider := &fakeProvider{batches: [][]llmprovider.StreamChunk{
		toolCallBatch("tc1", "view", `{"path":"a.txt"}`),
		textBatch("done"),
	}}
	ex := newTestExecutor(t, provider, approval.Automatic, tool)

	agentErr := ex.RunTurn(context.Background(), "claude-x", nil, userMsg("read a.txt"))
	require.Nil(t, agentErr)
	require.Equal(t, 2, provider.call)

	rec, ok := ex.Registry.Get("tc1")
	require.True(t, ok)
	require.Equal(t, registry.Completed, rec.State)
}

func TestRunTurnDenyAllStillAttachesDeniedResultAndContinues(t *testing.T) {
	called := false
	tool := &fakeTool{
		name:             "bash",
		requiresApproval: true,
		execute: func(ctx context.Context, params json.RawMessage) (chatmodel.ToolResult, *toolcatalog.ToolError) {
			called = true
			return chatmodel.BashResult{Command: "ls", Stdout: "should not run"}, nil
		},
	}
	provider := &fakeProvider{batches: [][]llmprovider.StreamChunk{
		toolCallBatch("tc1", "bash", `{"command":"ls"}`),
		textBatch("acknowledged the denial"),
	}}
	ex := newTestExecutor(t, provider, approval.DenyAll, tool)

	agentErr := ex.RunTurn(context.Background(), "claude-x", nil, userMsg("run ls"))
	require.Nil(t, agentErr)
	require.False(t, called)
	require.Equal(t, 2, provider.call)

	rec, ok := ex.Registry.Get("tc1")
	require.True(t, ok)
	require.Equal(t, registry.Denied, rec.State)
}

func TestRunTurnCancelledDuringToolExecutionEndsWithCancelled(t *testing.T) {
	started := make(chan struct{})
	tool := &fakeTool{
		name:             "slow",
		requiresApproval: false,
		execute: func(ctx context.Context, params json.RawMessage) (chatmodel.ToolResult, *toolcatalog.ToolError) {
			close(started)
			<-ctx.Done()
			return nil, &toolcatalog.ToolError{Kind: toolcatalog.ErrCancelled, ToolName: "slow", Message: "cancelled"}
		},
	}
	provider := &fakeProvider{batches: [][]llmprovider.StreamChunk{
		toolCallBatch("tc1", "slow", `{}`),
	}}
	ex := newTestExecutor(t, provider, approval.Automatic, tool)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *AgentError, 1)
	go func() {
		done <- ex.RunTurn(ctx, "claude-x", nil, userMsg("go slow"))
	}()

	<-started
	cancel()

	agentErr := <-done
	require.NotNil(t, agentErr)
	require.Equal(t, ErrCancelled, agentErr.Kind)
}

func TestRunTurnTooManyRounds(t *testing.T) {
	batches := make([][]llmprovider.StreamChunk, 0, 20)
	for i := 0; i < 20; i++ {
		batches = append(batches, toolCallBatch("tc", "view", `{}`))
	}
	tool := &fakeTool{
		name: "view",
		execute: func(ctx context.Context, params json.RawMessage) (chatmodel.ToolResult, *toolcatalog.ToolError) {
			return chatmodel.FileContentResult{Path: "a.txt", Content: "x"}, nil
		},
	}
	provider := &fakeProvider{batches: batches}
	ex := newTestExecutor(t, provider, approval.Automatic, tool)
	ex.MaxRounds = 2

	agentErr := ex.RunTurn(context.Background(), "claude-x", nil, userMsg("loop"))
	require.NotNil(t, agentErr)
	require.Equal(t, ErrTooManyRounds, agentErr.Kind)
}
