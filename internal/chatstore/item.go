// Package chatstore holds the append-mostly, revision-numbered graph of
// chat items: messages, tool interactions, system notices, and in-flight
// markers. It supports branching via parent-pointer edits and filters
// visibility by lineage.
package chatstore

import (
	"time"

	"github.com/conductorhq/conductor/internal/chatmodel"
)

// ChatItem is a persistent node in the chat graph.
type ChatItem struct {
	ID               string
	ParentChatItemID *string
	Data             ChatItemData
}

// ChatItemData is the payload of a ChatItem: exactly one of MessageItem,
// SystemNotice, CoreCmdResponse, TuiCommandResponse, InFlightOperation,
// SlashInput, or PendingToolCall.
type ChatItemData interface {
	isChatItemData()
	Kind() string
}

const (
	ItemKindMessage           = "message"
	ItemKindSystemNotice      = "system_notice"
	ItemKindCoreCmdResponse   = "core_cmd_response"
	ItemKindTuiCommandResp    = "tui_command_response"
	ItemKindInFlightOperation = "in_flight_operation"
	ItemKindSlashInput        = "slash_input"
	ItemKindPendingToolCall   = "pending_tool_call"
)

// MessageItem wraps a chat Message as a ChatItem.
type MessageItem struct {
	Message chatmodel.Message
}

func (MessageItem) isChatItemData() {}
func (MessageItem) Kind() string    { return ItemKindMessage }

// SystemNoticeLevel classifies a SystemNotice's severity.
type SystemNoticeLevel string

const (
	NoticeInfo    SystemNoticeLevel = "info"
	NoticeWarning SystemNoticeLevel = "warning"
	NoticeError   SystemNoticeLevel = "error"
)

// SystemNotice is an out-of-band notice injected by the runtime (errors,
// model switches) rather than authored by the user or model.
type SystemNotice struct {
	Level     SystemNoticeLevel
	Text      string
	Timestamp time.Time
}

func (SystemNotice) isChatItemData() {}
func (SystemNotice) Kind() string    { return ItemKindSystemNotice }

// CoreCmdResponse records a core-level command and its textual response.
type CoreCmdResponse struct {
	Cmd       string
	Resp      string
	Timestamp time.Time
}

func (CoreCmdResponse) isChatItemData() {}
func (CoreCmdResponse) Kind() string    { return ItemKindCoreCmdResponse }

// TuiCommandResponse records a UI-originated command and its response.
type TuiCommandResponse struct {
	Command   string
	Response  string
	Timestamp time.Time
}

func (TuiCommandResponse) isChatItemData() {}
func (TuiCommandResponse) Kind() string    { return ItemKindTuiCommandResp }

// InFlightOperation marks a long-running operation attached to a parent
// message; removed when the operation completes.
type InFlightOperation struct {
	Label     string
	Timestamp time.Time
}

func (InFlightOperation) isChatItemData() {}
func (InFlightOperation) Kind() string    { return ItemKindInFlightOperation }

// SlashInput records a raw slash command as entered by the user.
type SlashInput struct {
	Raw       string
	Timestamp time.Time
}

func (SlashInput) isChatItemData() {}
func (SlashInput) Kind() string    { return ItemKindSlashInput }

// PendingToolCall is a marker placed when the model has issued a tool call
// but results have not yet been attached; replaced by a MessageItem
// wrapping a ToolMessage upon completion.
type PendingToolCall struct {
	ToolCall  chatmodel.ToolCall
	Timestamp time.Time
}

func (PendingToolCall) isChatItemData() {}
func (PendingToolCall) Kind() string    { return ItemKindPendingToolCall }
