package executor

import (
	"encoding/json"
	"strings"

	"github.com/conductorhq/conductor/internal/chatmodel"
	"github.com/conductorhq/conductor/internal/llmprovider"
)

// streamBuilder owns the in-progress Assistant message for one round,
// applying provider stream chunks in order. Per the never-merge-across-a-
// boundary design note, a Text or Thought run only extends the trailing
// block of the same kind; any intervening chunk of a different kind starts
// a fresh block.
type streamBuilder struct {
	content     []chatmodel.AssistantContent
	lastKind    string // "", "text", "thought", or "tool:<id>"
	toolIndex   map[string]int
	toolParams  map[string]*strings.Builder
	toolOrder   []string
}

func newStreamBuilder() *streamBuilder {
	return &streamBuilder{
		toolIndex:  make(map[string]int),
		toolParams: make(map[string]*strings.Builder),
	}
}

func (b *streamBuilder) applyText(delta string) {
	if delta == "" {
		return
	}
	if b.lastKind == "text" {
		last := b.content[len(b.content)-1].(chatmodel.AssistantText)
		b.content[len(b.content)-1] = chatmodel.AssistantText{Text: last.Text + delta}
		return
	}
	b.content = append(b.content, chatmodel.AssistantText{Text: delta})
	b.lastKind = "text"
}

func (b *streamBuilder) applyThought(delta, signature string) {
	if delta == "" && signature == "" {
		return
	}
	if b.lastKind == "thought" {
		last := b.content[len(b.content)-1].(chatmodel.AssistantThought)
		sig := last.Signature
		if signature != "" {
			sig = signature
		}
		b.content[len(b.content)-1] = chatmodel.AssistantThought{Text: last.Text + delta, Signature: sig}
		return
	}
	b.content = append(b.content, chatmodel.AssistantThought{Text: delta, Signature: signature})
	b.lastKind = "thought"
}

// applyToolCallDelta handles both a block start (Name set, Frag empty) and
// subsequent parameter fragments (Frag set) for the same call id.
func (b *streamBuilder) applyToolCallDelta(chunk llmprovider.StreamChunk) {
	if chunk.ToolCallName != "" {
		idx := len(b.content)
		b.content = append(b.content, chatmodel.AssistantToolCall{
			ToolCall: chatmodel.ToolCall{ID: chunk.ToolCallID, Name: chunk.ToolCallName},
		})
		b.toolIndex[chunk.ToolCallID] = idx
		b.toolParams[chunk.ToolCallID] = &strings.Builder{}
		b.toolOrder = append(b.toolOrder, chunk.ToolCallID)
		b.lastKind = "tool:" + chunk.ToolCallID
		return
	}
	if chunk.ToolCallFrag == "" {
		return
	}
	if sb, ok := b.toolParams[chunk.ToolCallID]; ok {
		sb.WriteString(chunk.ToolCallFrag)
	}
	b.lastKind = "tool:" + chunk.ToolCallID
}

// commit finalizes accumulated tool-call parameter fragments into JSON and
// returns the completed AssistantMessage.
func (b *streamBuilder) commit() chatmodel.AssistantMessage {
	for _, toolID := range b.toolOrder {
		idx := b.toolIndex[toolID]
		call := b.content[idx].(chatmodel.AssistantToolCall)
		raw := b.toolParams[toolID].String()
		if strings.TrimSpace(raw) == "" {
			raw = "{}"
		}
		var probe json.RawMessage
		if err := json.Unmarshal([]byte(raw), &probe); err != nil {
			probe = json.RawMessage("{}")
		}
		call.ToolCall.Parameters = probe
		b.content[idx] = call
	}
	return chatmodel.AssistantMessage{Content: append([]chatmodel.AssistantContent{}, b.content...)}
}

// toolCalls returns the finalized tool calls in emission order.
func (b *streamBuilder) toolCalls() []chatmodel.ToolCall {
	calls := make([]chatmodel.ToolCall, 0, len(b.toolOrder))
	for _, id := range b.toolOrder {
		ac := b.content[b.toolIndex[id]].(chatmodel.AssistantToolCall)
		calls = append(calls, ac.ToolCall)
	}
	return calls
}
