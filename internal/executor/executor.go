// Package executor implements one turn of the agent loop: stream the
// model's response, dispatch and approve tool calls concurrently, attach
// results, and repeat until the model stops calling tools or a limit is
// reached.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/conductorhq/conductor/internal/approval"
	"github.com/conductorhq/conductor/internal/chatmodel"
	"github.com/conductorhq/conductor/internal/chatstore"
	"github.com/conductorhq/conductor/internal/events"
	"github.com/conductorhq/conductor/internal/llmprovider"
	"github.com/conductorhq/conductor/internal/registry"
	"github.com/conductorhq/conductor/internal/toolcatalog"
	"github.com/conductorhq/conductor/internal/workspace"
	"github.com/google/uuid"
)

// ErrorKind classifies how a turn ended abnormally.
type ErrorKind string

const (
	ErrCancelled             ErrorKind = "cancelled"
	ErrProviderTransport     ErrorKind = "provider_transport"
	ErrProviderProtocol      ErrorKind = "provider_protocol"
	ErrApprovalChannelClosed ErrorKind = "approval_channel_closed"
	ErrRegistryInvariant     ErrorKind = "registry_invariant"
	ErrTooManyRounds         ErrorKind = "too_many_rounds"
)

// AgentError is the terminal error a turn reports when it does not end in
// Completed.
type AgentError struct {
	Kind ErrorKind
	Err  error
}

func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *AgentError) Unwrap() error { return e.Err }

const (
	defaultMaxRounds   = 16
	defaultMaxParallel = 4
)

// Executor runs one turn at a time over a fixed set of session-scoped
// collaborators. A Session Controller owns its lifetime and only ever calls
// RunTurn sequentially.
type Executor struct {
	Provider    llmprovider.Provider
	Catalog     *toolcatalog.Catalog
	Registry    *registry.Registry
	ChatStore   *chatstore.ChatStore
	Arbiter     *approval.Arbiter
	Pipeline    *events.Pipeline
	Workspace   workspace.Workspace
	WorkingDir  string

	SystemPrompt string
	MaxTokens    int
	MaxRounds    int
	MaxParallel  int
	RetryPolicy  llmprovider.RetryPolicy
}

// New returns an Executor with default round/parallelism/retry settings.
func New(provider llmprovider.Provider, catalog *toolcatalog.Catalog, reg *registry.Registry, store *chatstore.ChatStore, arbiter *approval.Arbiter, pipeline *events.Pipeline, ws workspace.Workspace) *Executor {
	return &Executor{
		Provider:    provider,
		Catalog:     catalog,
		Registry:    reg,
		ChatStore:   store,
		Arbiter:     arbiter,
		Pipeline:    pipeline,
		Workspace:   ws,
		MaxTokens:   4096,
		MaxRounds:   defaultMaxRounds,
		MaxParallel: defaultMaxParallel,
		RetryPolicy: llmprovider.DefaultRetryPolicy(),
	}
}

// RunTurn ingests userMessage, then drives Requesting/Streaming/Dispatching/
// Approving/Executing/AttachResults rounds until the model stops calling
// tools, the turn token in ctx is cancelled, or MaxRounds is exceeded.
// history is the prior visible conversation (not including userMessage);
// RunTurn appends to it locally and never mutates the slice it was given.
func (e *Executor) RunTurn(ctx context.Context, model string, history []chatmodel.Message, userMessage chatmodel.Message) *AgentError {
	e.Pipeline.Emit(events.ProcessingStarted{})
	defer e.Pipeline.Emit(events.ProcessingFinished{})

	if err := e.emitMessageAdded(userMessage); err != nil {
		return e.abort(ErrRegistryInvariant, err)
	}

	conversation := make([]chatmodel.Message, 0, len(history)+1)
	conversation = append(conversation, history...)
	conversation = append(conversation, userMessage)

	maxRounds := e.MaxRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}

	for round := 1; ; round++ {
		if round > maxRounds {
			e.Pipeline.Emit(events.Error{Message: "too many tool-call rounds"})
			return &AgentError{Kind: ErrTooManyRounds}
		}

		assistantMsg, agentErr := e.requestAndStream(ctx, model, conversation)
		if agentErr != nil {
			return agentErr
		}
		conversation = append(conversation, assistantMsg)

		toolCalls := extractToolCalls(assistantMsg)
		if len(toolCalls) == 0 {
			return nil
		}

		if agentErr := e.registerPending(toolCalls); agentErr != nil {
			return agentErr
		}

		decisions := e.approveAll(ctx, toolCalls)
		results, agentErr := e.dispatch(ctx, toolCalls, decisions)
		if agentErr != nil {
			return agentErr
		}

		for _, tc := range toolCalls {
			toolMsg := chatmodel.Message{
				ID:        tc.ID,
				Timestamp: time.Now().UTC(),
				Data:      chatmodel.ToolMessage{ToolUseID: tc.ID, Result: results[tc.ID]},
			}
			conversation = append(conversation, toolMsg)
		}
	}
}

func (e *Executor) abort(kind ErrorKind, err error) *AgentError {
	msg := string(kind)
	if err != nil {
		msg = err.Error()
	}
	e.Pipeline.Emit(events.Error{Message: msg})
	return &AgentError{Kind: kind, Err: err}
}

// requestAndStream opens (with retry) and drains one provider stream,
// applying chunks to a streamBuilder and committing the resulting
// AssistantMessage to the ChatStore.
func (e *Executor) requestAndStream(ctx context.Context, model string, conversation []chatmodel.Message) (chatmodel.Message, *AgentError) {
	req := llmprovider.Request{
		Model:        model,
		SystemPrompt: e.SystemPrompt,
		Messages:     conversation,
		MaxTokens:    e.MaxTokens,
	}

	var stream <-chan llmprovider.StreamChunk
	openErr := llmprovider.Do(ctx, e.RetryPolicy, func(err error) llmprovider.TransientKind {
		return llmprovider.ClassifyTransportError(err, 0)
	}, func() error {
		s, err := e.Provider.ChatStream(ctx, req)
		if err != nil {
			return err
		}
		stream = s
		return nil
	})
	if openErr != nil {
		if ctx.Err() != nil {
			return chatmodel.Message{}, &AgentError{Kind: ErrCancelled}
		}
		return chatmodel.Message{}, e.abort(ErrProviderTransport, openErr)
	}

	assistantID := uuid.NewString()
	builder := newStreamBuilder()
	committed := false
	var streamErr error

drain:
	for {
		select {
		case chunk, ok := <-stream:
			if !ok {
				break drain
			}
			switch chunk.Kind {
			case llmprovider.ChunkTextDelta:
				builder.applyText(chunk.TextDelta)
				e.Pipeline.Emit(events.MessagePart{MessageID: assistantID, Delta: chunk.TextDelta})
			case llmprovider.ChunkThoughtDelta:
				builder.applyThought(chunk.ThoughtDelta, chunk.ThoughtSig)
			case llmprovider.ChunkToolCallDelta:
				builder.applyToolCallDelta(chunk)
			case llmprovider.ChunkCompletion:
				committed = true
			case llmprovider.ChunkError:
				streamErr = chunk.Err
			}
		case <-ctx.Done():
			return chatmodel.Message{}, &AgentError{Kind: ErrCancelled}
		}
	}

	if streamErr != nil {
		return chatmodel.Message{}, e.abort(ErrProviderProtocol, streamErr)
	}
	if !committed {
		return chatmodel.Message{}, e.abort(ErrProviderProtocol, errors.New("stream ended without a completion chunk"))
	}

	assistantData := builder.commit()
	assistantMsg := chatmodel.Message{ID: assistantID, Timestamp: time.Now().UTC(), Data: assistantData}
	if err := e.emitMessageAdded(assistantMsg); err != nil {
		return chatmodel.Message{}, e.abort(ErrRegistryInvariant, err)
	}
	return assistantMsg, nil
}

// emitMessageAdded emits events.MessageAdded for msg. The pipeline's
// MessageProcessor ingests it into the ChatStore synchronously before Emit
// returns, so this is the only path that inserts msg; a direct
// ChatStore.IngestMessages call alongside this one would insert it twice.
func (e *Executor) emitMessageAdded(msg chatmodel.Message) error {
	for _, res := range e.Pipeline.Emit(events.MessageAdded{Message: msg}) {
		if res.Outcome == events.ProcessFailed {
			return res.Err
		}
	}
	return nil
}

func extractToolCalls(assistantMsg chatmodel.Message) []chatmodel.ToolCall {
	am, ok := assistantMsg.Data.(chatmodel.AssistantMessage)
	if !ok {
		return nil
	}
	var calls []chatmodel.ToolCall
	for _, c := range am.Content {
		if tc, ok := c.(chatmodel.AssistantToolCall); ok {
			calls = append(calls, tc.ToolCall)
		}
	}
	return calls
}

func (e *Executor) registerPending(calls []chatmodel.ToolCall) *AgentError {
	for _, tc := range calls {
		if _, _, err := e.Registry.RegisterCall(tc.ID, tc.Name, tc.Parameters); err != nil {
			return e.abort(ErrRegistryInvariant, err)
		}
		if _, err := e.ChatStore.Push(chatstore.PendingToolCall{ToolCall: tc, Timestamp: time.Now().UTC()}, nil); err != nil {
			return e.abort(ErrRegistryInvariant, err)
		}
	}
	return nil
}

// approveAll runs the Arbiter over every call, recording Denied and
// Cancelled outcomes in the registry in place, and returns the decision for
// every call keyed by call id.
func (e *Executor) approveAll(ctx context.Context, calls []chatmodel.ToolCall) map[string]approval.Decision {
	decisions := make(map[string]approval.Decision, len(calls))
	for _, tc := range calls {
		requiresApproval := true
		if tool, ok := e.Catalog.Get(tc.Name); ok {
			requiresApproval = tool.RequiresApproval()
		}
		if requiresApproval {
			_ = e.Registry.RequireApproval(tc.ID)
		}
		decision := e.Arbiter.Decide(ctx, tc.ID, tc.Name, tc.Parameters, requiresApproval)
		decisions[tc.ID] = decision

		switch decision.Outcome {
		case approval.Denied:
			_ = e.Registry.Deny(tc.ID)
		case approval.Cancelled:
			_ = e.Registry.CancelAwaitingApproval(tc.ID)
			e.Pipeline.Emit(events.ToolCallCancelled{ID: tc.ID})
		}
	}
	return decisions
}

// dispatch executes every Approved call concurrently (bounded by
// MaxParallel) and synthesizes results for every call, approved or not, so
// the turn can always attach one ToolResult per call.
func (e *Executor) dispatch(ctx context.Context, calls []chatmodel.ToolCall, decisions map[string]approval.Decision) (map[string]chatmodel.ToolResult, *AgentError) {
	results := make(map[string]chatmodel.ToolResult, len(calls))
	approved := make(map[string]bool, len(calls))
	var mu sync.Mutex

	for _, tc := range calls {
		decision := decisions[tc.ID]
		switch decision.Outcome {
		case approval.Denied:
			results[tc.ID] = chatmodel.ErrorResult{Message: "Tool execution denied by user.", Code: "denied", Retryable: false}
		case approval.Cancelled:
			results[tc.ID] = chatmodel.ErrorResult{Message: "cancelled", Code: "cancelled", Retryable: false}
		case approval.Approved:
			scope := registry.OneShot
			if decision.Scope == approval.SessionPersistent {
				scope = registry.SessionPersistent
			}
			if err := e.Registry.Approve(tc.ID, scope); err != nil {
				mu.Lock()
				results[tc.ID] = chatmodel.ErrorResult{Message: err.Error(), Code: "registry", Retryable: false}
				mu.Unlock()
			} else {
				approved[tc.ID] = true
			}
		}
	}

	maxParallel := e.MaxParallel
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup

	for _, tc := range calls {
		if !approved[tc.ID] {
			continue
		}
		tc := tc
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			e.runOne(ctx, tc, results, &mu)
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, &AgentError{Kind: ErrCancelled}
	}
	return results, nil
}

// runOne executes a single approved call, transitioning its registry record
// and emitting the matching lifecycle events.
func (e *Executor) runOne(ctx context.Context, tc chatmodel.ToolCall, results map[string]chatmodel.ToolResult, mu *sync.Mutex) {
	e.Pipeline.Emit(events.ToolCallStarted{ID: tc.ID, Name: tc.Name})

	result, toolErr := e.Catalog.Invoke(ctx, tc.Name, tc.Parameters, toolcatalog.ExecContext{
		Workspace:  e.Workspace,
		WorkingDir: e.WorkingDir,
		OpID:       tc.ID,
	})

	mu.Lock()
	defer mu.Unlock()

	if toolErr != nil {
		if toolErr.Kind == toolcatalog.ErrCancelled {
			_ = e.Registry.CancelExecution(tc.ID)
			e.Pipeline.Emit(events.ToolCallCancelled{ID: tc.ID})
		} else {
			_ = e.Registry.FailExecution(tc.ID, toolErr)
			e.Pipeline.Emit(events.ToolCallFailed{ID: tc.ID, Error: toolErr.Message})
		}
		results[tc.ID] = toolErr.ToResult()
		return
	}

	_ = e.Registry.CompleteExecution(tc.ID, result)
	e.Pipeline.Emit(events.ToolCallCompleted{ID: tc.ID, Result: result})
	results[tc.ID] = result
}
