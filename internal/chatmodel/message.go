// Package chatmodel defines the immutable conversation record types shared
// by every other core package: Message, its content variants, ToolCall, and
// ToolResult. Variants are modeled as sealed interfaces (a private marker
// method) rather than a single flat struct, so a switch over a variant is
// exhaustive at review time even though Go has no native sum type.
package chatmodel

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is an immutable record of one turn's contribution to the
// conversation. Messages are never mutated in place once appended to a
// ChatStore — streaming deltas operate on a separate in-progress builder
// (see the executor package) and only produce a Message at commit time.
type Message struct {
	ID              string      `json:"id"`
	ParentMessageID *string     `json:"parent_message_id,omitempty"`
	Timestamp       time.Time   `json:"timestamp"`
	Data            MessageData `json:"data"`
}

// MessageData is the role-discriminated payload of a Message: exactly one
// of UserMessage, AssistantMessage, or ToolMessage.
type MessageData interface {
	isMessageData()
	Kind() string
}

const (
	KindUser      = "user"
	KindAssistant = "assistant"
	KindTool      = "tool"
)

// UserMessage carries ordered UserContent blocks authored by the human.
type UserMessage struct {
	Content []UserContent `json:"content"`
}

func (UserMessage) isMessageData() {}
func (UserMessage) Kind() string   { return KindUser }

// AssistantMessage carries ordered AssistantContent blocks authored by the
// model for a single round.
type AssistantMessage struct {
	Content []AssistantContent `json:"content"`
}

func (AssistantMessage) isMessageData() {}
func (AssistantMessage) Kind() string   { return KindAssistant }

// ToolMessage attaches a tool's result to the conversation, correlated to
// the assistant's ToolCall by ToolUseID.
type ToolMessage struct {
	ToolUseID string     `json:"tool_use_id"`
	Result    ToolResult `json:"result"`
}

func (ToolMessage) isMessageData() {}
func (ToolMessage) Kind() string   { return KindTool }

// MarshalJSON tags the embedded ToolResult with its own kind so
// DecodeToolResult can dispatch it on the way back in.
func (t ToolMessage) MarshalJSON() ([]byte, error) {
	resultRaw, err := MarshalToolResult(t.Result)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		ToolUseID string          `json:"tool_use_id"`
		Result    json.RawMessage `json:"result"`
	}{ToolUseID: t.ToolUseID, Result: resultRaw})
}

// UserContent is one block of a UserMessage: Text, CommandExecution, or
// AppCommand.
type UserContent interface {
	isUserContent()
	Kind() string
}

const (
	UserKindText             = "text"
	UserKindCommandExecution = "command_execution"
	UserKindAppCommand       = "app_command"
)

type UserText struct {
	Text string `json:"text"`
}

func (UserText) isUserContent() {}
func (UserText) Kind() string   { return UserKindText }

// UserCommandExecution records a shell command the user ran directly
// (outside tool dispatch, e.g. a `!`-prefixed input) and its outcome.
type UserCommandExecution struct {
	Command  string `json:"command"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

func (UserCommandExecution) isUserContent() {}
func (UserCommandExecution) Kind() string   { return UserKindCommandExecution }

// UserAppCommand records a slash/meta command the user issued to the
// surrounding application (e.g. /compact) and, once resolved, its response.
type UserAppCommand struct {
	Command  string  `json:"command"`
	Response *string `json:"response,omitempty"`
}

func (UserAppCommand) isUserContent() {}
func (UserAppCommand) Kind() string   { return UserKindAppCommand }

// AssistantContent is one block of an AssistantMessage: Text, Thought, or
// ToolCall.
type AssistantContent interface {
	isAssistantContent()
	Kind() string
}

const (
	AssistantKindText     = "text"
	AssistantKindThought  = "thought"
	AssistantKindToolCall = "tool_call"
)

type AssistantText struct {
	Text string `json:"text"`
}

func (AssistantText) isAssistantContent() {}
func (AssistantText) Kind() string        { return AssistantKindText }

// AssistantThought carries provider reasoning/thinking content. Per §9's
// design note, one Thought block is appended per provider reasoning
// boundary during streaming and blocks are never merged across boundaries.
type AssistantThought struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
}

func (AssistantThought) isAssistantContent() {}
func (AssistantThought) Kind() string        { return AssistantKindThought }

type AssistantToolCall struct {
	ToolCall ToolCall `json:"tool_call"`
}

func (AssistantToolCall) isAssistantContent() {}
func (AssistantToolCall) Kind() string        { return AssistantKindToolCall }

// ToolCall is a single invocation the assistant asked the runtime to
// perform: a provider-issued id, the tool name, and JSON parameters.
type ToolCall struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Parameters json.RawMessage `json:"parameters"`
}

// --- JSON envelope plumbing -------------------------------------------------

type kindEnvelope struct {
	Kind string `json:"kind"`
}

// MarshalJSON writes Data as a JSON object that carries a "kind" field next
// to its own fields (each content block is tagged the same way), so the
// variant survives a round trip through UnmarshalJSON.
func (m Message) MarshalJSON() ([]byte, error) {
	type alias Message
	dataBytes, err := marshalMessageData(m.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		alias
		Data json.RawMessage `json:"data"`
	}{alias: alias(m), Data: dataBytes})
}

func marshalMessageData(data MessageData) (json.RawMessage, error) {
	if data == nil {
		return json.RawMessage("null"), nil
	}
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if raw, ok := fields["content"]; ok {
		var blocks []map[string]json.RawMessage
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return nil, err
		}
		for i := range blocks {
			switch d := data.(type) {
			case UserMessage:
				blocks[i]["kind"] = mustMarshal(d.Content[i].Kind())
			case AssistantMessage:
				blocks[i]["kind"] = mustMarshal(d.Content[i].Kind())
			}
		}
		fields["content"], _ = json.Marshal(blocks)
	}
	fields["kind"] = mustMarshal(data.Kind())
	return json.Marshal(fields)
}

func mustMarshal(v string) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// UnmarshalJSON reconstructs the concrete MessageData variant from its kind
// discriminant.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias struct {
		ID              string          `json:"id"`
		ParentMessageID *string         `json:"parent_message_id,omitempty"`
		Timestamp       time.Time       `json:"timestamp"`
		Data            json.RawMessage `json:"data"`
	}
	var tmp alias
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	m.ID = tmp.ID
	m.ParentMessageID = tmp.ParentMessageID
	m.Timestamp = tmp.Timestamp

	var env kindEnvelope
	if err := json.Unmarshal(tmp.Data, &env); err != nil {
		return fmt.Errorf("decode message data kind: %w", err)
	}
	switch env.Kind {
	case KindUser:
		var um struct {
			Content []json.RawMessage `json:"content"`
		}
		if err := json.Unmarshal(tmp.Data, &um); err != nil {
			return err
		}
		content, err := decodeUserContents(um.Content)
		if err != nil {
			return err
		}
		m.Data = UserMessage{Content: content}
	case KindAssistant:
		var am struct {
			Content []json.RawMessage `json:"content"`
		}
		if err := json.Unmarshal(tmp.Data, &am); err != nil {
			return err
		}
		content, err := decodeAssistantContents(am.Content)
		if err != nil {
			return err
		}
		m.Data = AssistantMessage{Content: content}
	case KindTool:
		var tm struct {
			ToolUseID string          `json:"tool_use_id"`
			Result    json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(tmp.Data, &tm); err != nil {
			return err
		}
		result, err := DecodeToolResult(tm.Result)
		if err != nil {
			return err
		}
		m.Data = ToolMessage{ToolUseID: tm.ToolUseID, Result: result}
	default:
		return fmt.Errorf("unknown message data kind %q", env.Kind)
	}
	return nil
}

func decodeUserContents(raws []json.RawMessage) ([]UserContent, error) {
	out := make([]UserContent, 0, len(raws))
	for i, raw := range raws {
		var env kindEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("user content[%d]: %w", i, err)
		}
		switch env.Kind {
		case UserKindText:
			var v UserText
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			out = append(out, v)
		case UserKindCommandExecution:
			var v UserCommandExecution
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			out = append(out, v)
		case UserKindAppCommand:
			var v UserAppCommand
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			out = append(out, v)
		default:
			return nil, fmt.Errorf("unknown user content kind %q", env.Kind)
		}
	}
	return out, nil
}

func decodeAssistantContents(raws []json.RawMessage) ([]AssistantContent, error) {
	out := make([]AssistantContent, 0, len(raws))
	for i, raw := range raws {
		var env kindEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("assistant content[%d]: %w", i, err)
		}
		switch env.Kind {
		case AssistantKindText:
			var v AssistantText
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			out = append(out, v)
		case AssistantKindThought:
			var v AssistantThought
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			out = append(out, v)
		case AssistantKindToolCall:
			var v AssistantToolCall
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			out = append(out, v)
		default:
			return nil, fmt.Errorf("unknown assistant content kind %q", env.Kind)
		}
	}
	return out, nil
}

// LastText returns the trailing AssistantText block of an AssistantMessage,
// if any, and whether one was found. Used by the streaming builder to
// extend the current text run instead of starting a new block.
func (a AssistantMessage) LastText() (int, AssistantText, bool) {
	for i := len(a.Content) - 1; i >= 0; i-- {
		if t, ok := a.Content[i].(AssistantText); ok {
			return i, t, true
		}
		// Only the trailing block counts as "last" for coalescing purposes;
		// a tool call or thought in between starts a fresh text run.
		break
	}
	return -1, AssistantText{}, false
}
