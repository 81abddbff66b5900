// Package events implements the Event Pipeline: an ordered, synchronous
// in-process fan-out from the executor/registry to a set of processors
// that mutate the Chat Store, Tool Registry, and UI flags.
package events

import (
	"github.com/conductorhq/conductor/internal/chatmodel"
)

// Event is one item in the ordered per-turn event stream.
type Event interface {
	isEvent()
	Kind() string
}

const (
	KindProcessingStarted   = "processing_started"
	KindMessagePart         = "message_part"
	KindMessageAdded        = "message_added"
	KindMessageUpdated      = "message_updated"
	KindRestoredMessage     = "restored_message"
	KindToolCallStarted     = "tool_call_started"
	KindRequestToolApproval = "request_tool_approval"
	KindToolCallCompleted   = "tool_call_completed"
	KindToolCallFailed      = "tool_call_failed"
	KindToolCallCancelled   = "tool_call_cancelled"
	KindModelChanged        = "model_changed"
	KindError               = "error"
	KindProcessingFinished  = "processing_finished"
)

type ProcessingStarted struct{}

func (ProcessingStarted) isEvent()    {}
func (ProcessingStarted) Kind() string { return KindProcessingStarted }

// MessagePart is a streamed delta for the in-progress assistant message.
type MessagePart struct {
	MessageID string
	Delta     string
}

func (MessagePart) isEvent()    {}
func (MessagePart) Kind() string { return KindMessagePart }

// MessageAdded announces a newly committed message (user, assistant, or
// tool).
type MessageAdded struct {
	Message chatmodel.Message
}

func (MessageAdded) isEvent()    {}
func (MessageAdded) Kind() string { return KindMessageAdded }

// MessageUpdated announces a message's content changed in place (streaming
// finalization).
type MessageUpdated struct {
	MessageID string
	Message   chatmodel.Message
}

func (MessageUpdated) isEvent()    {}
func (MessageUpdated) Kind() string { return KindMessageUpdated }

// RestoredMessage announces a message rehydrated from persistence rather
// than produced by a live turn.
type RestoredMessage struct {
	Message chatmodel.Message
}

func (RestoredMessage) isEvent()    {}
func (RestoredMessage) Kind() string { return KindRestoredMessage }

// ToolCallStarted announces a tool call entered Executing.
type ToolCallStarted struct {
	ID   string
	Name string
}

func (ToolCallStarted) isEvent()    {}
func (ToolCallStarted) Kind() string { return KindToolCallStarted }

// RequestToolApproval announces a call awaiting an interactive decision.
type RequestToolApproval struct {
	ID         string
	ToolName   string
	Parameters []byte
}

func (RequestToolApproval) isEvent()    {}
func (RequestToolApproval) Kind() string { return KindRequestToolApproval }

// ToolCallCompleted announces a successful tool execution.
type ToolCallCompleted struct {
	ID     string
	Result chatmodel.ToolResult
}

func (ToolCallCompleted) isEvent()    {}
func (ToolCallCompleted) Kind() string { return KindToolCallCompleted }

// ToolCallFailed announces a failed tool execution.
type ToolCallFailed struct {
	ID    string
	Error string
}

func (ToolCallFailed) isEvent()    {}
func (ToolCallFailed) Kind() string { return KindToolCallFailed }

// ToolCallCancelled announces a tool call cut short by cancellation.
type ToolCallCancelled struct {
	ID string
}

func (ToolCallCancelled) isEvent()    {}
func (ToolCallCancelled) Kind() string { return KindToolCallCancelled }

// ModelChanged announces the active model switched mid-session.
type ModelChanged struct {
	Model string
}

func (ModelChanged) isEvent()    {}
func (ModelChanged) Kind() string { return KindModelChanged }

// Error announces a turn-level error to surface as a SystemNotice.
type Error struct {
	Message string
}

func (Error) isEvent()    {}
func (Error) Kind() string { return KindError }

type ProcessingFinished struct{}

func (ProcessingFinished) isEvent()    {}
func (ProcessingFinished) Kind() string { return KindProcessingFinished }
