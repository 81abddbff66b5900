// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to the
// core's abstract llmprovider.Provider interface. It is the only package in
// the module that imports the SDK directly, so the core stays swappable to
// a different backend.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/conductorhq/conductor/internal/chatmodel"
	"github.com/conductorhq/conductor/internal/llmprovider"
)

// messagesClient captures the subset of *sdk.MessageService this adapter
// calls, so tests can substitute a fake without a live API key.
type messagesClient interface {
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) streamer
}

// streamer is the subset of *ssestream.Stream[sdk.MessageStreamEventUnion]
// the adapter drives.
type streamer interface {
	Next() bool
	Current() sdk.MessageStreamEventUnion
	Err() error
	Close() error
}

// Provider implements llmprovider.Provider over Anthropic's Messages API.
type Provider struct {
	msg          messagesClient
	defaultModel string
	maxTokens    int
	retry        llmprovider.RetryPolicy
}

// New builds a Provider from a live SDK client.
func New(apiKey, defaultModel string, maxTokens int) *Provider {
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return &Provider{
		msg:          sdkMessagesAdapter{&client.Messages},
		defaultModel: defaultModel,
		maxTokens:    maxTokens,
		retry:        llmprovider.DefaultRetryPolicy(),
	}
}

func (p *Provider) Name() string { return "anthropic" }

// sdkMessagesAdapter narrows *sdk.MessageService to the messagesClient
// interface, wrapping its stream return value in the streamer interface.
type sdkMessagesAdapter struct {
	svc *sdk.MessageService
}

func (a sdkMessagesAdapter) NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) streamer {
	return a.svc.NewStreaming(ctx, body, opts...)
}

// ChatStream translates req into Anthropic wire messages, opens a streaming
// request (retried per the transport's classifier on connection setup
// failures), and relays content block deltas onto the returned channel as
// llmprovider.StreamChunk values until the stream ends or ctx is done.
func (p *Provider) ChatStream(ctx context.Context, req llmprovider.Request) (<-chan llmprovider.StreamChunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	out := make(chan llmprovider.StreamChunk, 32)
	var stream streamer
	openErr := llmprovider.Do(ctx, p.retry, func(err error) llmprovider.TransientKind {
		return llmprovider.ClassifyTransportError(err, 0)
	}, func() error {
		s := p.msg.NewStreaming(ctx, *params)
		if err := s.Err(); err != nil {
			return err
		}
		stream = s
		return nil
	})
	if openErr != nil {
		return nil, fmt.Errorf("anthropic: open stream: %w", openErr)
	}

	go p.relay(ctx, stream, out)
	return out, nil
}

func (p *Provider) relay(ctx context.Context, stream streamer, out chan<- llmprovider.StreamChunk) {
	defer close(out)
	defer stream.Close()

	toolNames := make(map[int]string)
	toolIDs := make(map[int]string)

	send := func(c llmprovider.StreamChunk) bool {
		select {
		case out <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockStartEvent:
			if toolUse, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
				idx := int(ev.Index)
				toolNames[idx] = toolUse.Name
				toolIDs[idx] = toolUse.ID
				if !send(llmprovider.StreamChunk{Kind: llmprovider.ChunkToolCallDelta, ToolCallID: toolUse.ID, ToolCallName: toolUse.Name}) {
					return
				}
			}
		case sdk.ContentBlockDeltaEvent:
			idx := int(ev.Index)
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text == "" {
					continue
				}
				if !send(llmprovider.StreamChunk{Kind: llmprovider.ChunkTextDelta, TextDelta: delta.Text}) {
					return
				}
			case sdk.ThinkingDelta:
				if delta.Thinking == "" {
					continue
				}
				if !send(llmprovider.StreamChunk{Kind: llmprovider.ChunkThoughtDelta, ThoughtDelta: delta.Thinking}) {
					return
				}
			case sdk.SignatureDelta:
				if delta.Signature == "" {
					continue
				}
				if !send(llmprovider.StreamChunk{Kind: llmprovider.ChunkThoughtDelta, ThoughtSig: delta.Signature}) {
					return
				}
			case sdk.InputJSONDelta:
				if delta.PartialJSON == "" {
					continue
				}
				if !send(llmprovider.StreamChunk{Kind: llmprovider.ChunkToolCallDelta, ToolCallID: toolIDs[idx], ToolCallFrag: delta.PartialJSON}) {
					return
				}
			}
		case sdk.MessageStopEvent:
			if !send(llmprovider.StreamChunk{Kind: llmprovider.ChunkCompletion, StopReason: "end_turn"}) {
				return
			}
		}
	}
	if err := stream.Err(); err != nil {
		send(llmprovider.StreamChunk{Kind: llmprovider.ChunkError, Err: err})
	}
}

// buildParams translates the core's chatmodel history into Anthropic wire
// messages. Tool results are sent as their kind-tagged JSON envelope so the
// adapter never special-cases a ToolResult variant; tool calls are sent as
// tool_use blocks built from their raw parameters.
func (p *Provider) buildParams(req llmprovider.Request) (*sdk.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	if model == "" {
		return nil, errors.New("anthropic: model is required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}
	if maxTokens <= 0 {
		return nil, errors.New("anthropic: max_tokens must be positive")
	}

	msgs := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch data := m.Data.(type) {
		case chatmodel.UserMessage:
			blocks := make([]sdk.ContentBlockParamUnion, 0, len(data.Content))
			for _, c := range data.Content {
				if t, ok := c.(chatmodel.UserText); ok && t.Text != "" {
					blocks = append(blocks, sdk.NewTextBlock(t.Text))
				}
			}
			if len(blocks) > 0 {
				msgs = append(msgs, sdk.NewUserMessage(blocks...))
			}
		case chatmodel.AssistantMessage:
			blocks := make([]sdk.ContentBlockParamUnion, 0, len(data.Content))
			for _, c := range data.Content {
				switch v := c.(type) {
				case chatmodel.AssistantText:
					if v.Text != "" {
						blocks = append(blocks, sdk.NewTextBlock(v.Text))
					}
				case chatmodel.AssistantToolCall:
					var input any
					_ = json.Unmarshal(v.ToolCall.Parameters, &input)
					blocks = append(blocks, sdk.NewToolUseBlock(v.ToolCall.ID, input, v.ToolCall.Name))
				}
			}
			if len(blocks) > 0 {
				msgs = append(msgs, sdk.NewAssistantMessage(blocks...))
			}
		case chatmodel.ToolMessage:
			resultJSON, err := chatmodel.MarshalToolResult(data.Result)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewToolResultBlock(data.ToolUseID, string(resultJSON), false)))
		}
	}
	if len(msgs) == 0 {
		return nil, errors.New("anthropic: at least one message is required")
	}

	params := &sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if req.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if len(req.Tools) > 0 {
		tools := make([]sdk.ToolUnionParam, 0, len(req.Tools))
		for _, spec := range req.Tools {
			var schema sdk.ToolInputSchemaParam
			if len(spec.Schema) > 0 {
				var fields map[string]any
				if err := json.Unmarshal(spec.Schema, &fields); err == nil {
					schema = sdk.ToolInputSchemaParam{ExtraFields: fields}
				}
			}
			u := sdk.ToolUnionParamOfTool(schema, spec.Name)
			if u.OfTool != nil {
				u.OfTool.Description = sdk.String(spec.Description)
			}
			tools = append(tools, u)
		}
		params.Tools = tools
	}
	return params, nil
}
