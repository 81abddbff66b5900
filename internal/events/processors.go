package events

import (
	"time"

	"github.com/conductorhq/conductor/internal/chatmodel"
	"github.com/conductorhq/conductor/internal/chatstore"
)

// ProcessingStateProcessor sets IsProcessing on start/finish events.
type ProcessingStateProcessor struct{}

func (ProcessingStateProcessor) Name() string  { return "processing_state" }
func (ProcessingStateProcessor) Priority() int { return 10 }

func (ProcessingStateProcessor) CanHandle(e Event) bool {
	switch e.Kind() {
	case KindProcessingStarted, KindProcessingFinished:
		return true
	default:
		return false
	}
}

func (ProcessingStateProcessor) Process(pctx *PipelineContext, e Event) ProcessResult {
	switch e.(type) {
	case ProcessingStarted:
		pctx.Flags.set(func(f *UIFlags) { f.IsProcessing = true; f.SpinnerState = "spinning" })
	case ProcessingFinished:
		pctx.Flags.set(func(f *UIFlags) { f.IsProcessing = false; f.SpinnerState = "idle"; f.ProgressMessage = "" })
	}
	return ProcessResult{Outcome: Handled}
}

// MessageProcessor handles streaming/committed message events, coalescing
// deltas into the existing assistant message by id.
type MessageProcessor struct{}

func (MessageProcessor) Name() string  { return "message" }
func (MessageProcessor) Priority() int { return 50 }

func (MessageProcessor) CanHandle(e Event) bool {
	switch e.Kind() {
	case KindMessageAdded, KindMessageUpdated, KindMessagePart, KindRestoredMessage:
		return true
	default:
		return false
	}
}

func (MessageProcessor) Process(pctx *PipelineContext, e Event) ProcessResult {
	switch ev := e.(type) {
	case MessageAdded:
		if _, err := pctx.ChatStore.IngestMessages([]chatmodel.Message{ev.Message}); err != nil {
			return ProcessResult{Outcome: ProcessFailed, Err: err}
		}
		pctx.Flags.set(func(f *UIFlags) { f.MessagesUpdated = true })
	case RestoredMessage:
		if _, err := pctx.ChatStore.IngestMessages([]chatmodel.Message{ev.Message}); err != nil {
			return ProcessResult{Outcome: ProcessFailed, Err: err}
		}
	case MessagePart:
		err := pctx.ChatStore.UpdateMessage(ev.MessageID, func(am *chatmodel.AssistantMessage) {
			idx, last, ok := am.LastText()
			if ok {
				am.Content[idx] = chatmodel.AssistantText{Text: last.Text + ev.Delta}
			} else {
				am.Content = append(am.Content, chatmodel.AssistantText{Text: ev.Delta})
			}
		})
		if err != nil {
			return ProcessResult{Outcome: ProcessFailed, Err: err}
		}
		pctx.Flags.set(func(f *UIFlags) { f.ProgressMessage = ev.Delta })
	case MessageUpdated:
		pctx.Flags.set(func(f *UIFlags) { f.MessagesUpdated = true })
	}
	return ProcessResult{Outcome: Handled}
}

// ToolProcessor handles tool lifecycle events, replacing PendingToolCall
// markers with Tool messages on completion.
type ToolProcessor struct{}

func (ToolProcessor) Name() string  { return "tool" }
func (ToolProcessor) Priority() int { return 75 }

func (ToolProcessor) CanHandle(e Event) bool {
	switch e.Kind() {
	case KindToolCallStarted, KindToolCallCompleted, KindToolCallFailed, KindToolCallCancelled, KindRequestToolApproval:
		return true
	default:
		return false
	}
}

func (ToolProcessor) Process(pctx *PipelineContext, e Event) ProcessResult {
	switch ev := e.(type) {
	case ToolCallStarted:
		pctx.Flags.set(func(f *UIFlags) { f.ProgressMessage = "running " + ev.Name })
	case RequestToolApproval:
		id := ev.ID
		pctx.Flags.set(func(f *UIFlags) { f.CurrentToolApproval = &id })
	case ToolCallCompleted:
		pctx.Flags.set(func(f *UIFlags) { f.CurrentToolApproval = nil })
		if err := attachToolResult(pctx.ChatStore, ev.ID, ev.Result); err != nil {
			return ProcessResult{Outcome: ProcessFailed, Err: err}
		}
	case ToolCallFailed:
		pctx.Flags.set(func(f *UIFlags) { f.CurrentToolApproval = nil })
		if err := attachToolResult(pctx.ChatStore, ev.ID, chatmodel.ErrorResult{Message: ev.Error, Code: "execution", Retryable: false}); err != nil {
			return ProcessResult{Outcome: ProcessFailed, Err: err}
		}
	case ToolCallCancelled:
		pctx.Flags.set(func(f *UIFlags) { f.CurrentToolApproval = nil })
		if err := attachToolResult(pctx.ChatStore, ev.ID, chatmodel.ErrorResult{Message: "cancelled", Code: "cancelled", Retryable: false}); err != nil {
			return ProcessResult{Outcome: ProcessFailed, Err: err}
		}
	}
	return ProcessResult{Outcome: Handled}
}

func attachToolResult(store *chatstore.ChatStore, toolCallID string, result chatmodel.ToolResult) error {
	toolMsg := chatmodel.Message{
		Timestamp: time.Now().UTC(),
		Data:      chatmodel.ToolMessage{ToolUseID: toolCallID, Result: result},
	}
	if _, ok := store.ResolvePendingToolCall(toolCallID); ok {
		toolMsg.ID = toolCallID
		return store.ReplacePendingToolCall(toolCallID, toolMsg)
	}
	toolMsg.ID = toolCallID
	_, err := store.IngestMessages([]chatmodel.Message{toolMsg})
	return err
}

// SystemProcessor turns model-change and error events into SystemNotice
// chat items.
type SystemProcessor struct{}

func (SystemProcessor) Name() string  { return "system" }
func (SystemProcessor) Priority() int { return 90 }

func (SystemProcessor) CanHandle(e Event) bool {
	switch e.Kind() {
	case KindModelChanged, KindError:
		return true
	default:
		return false
	}
}

func (SystemProcessor) Process(pctx *PipelineContext, e Event) ProcessResult {
	switch ev := e.(type) {
	case ModelChanged:
		pctx.Flags.set(func(f *UIFlags) { f.CurrentModel = ev.Model })
		_, err := pctx.ChatStore.Push(chatstore.SystemNotice{
			Level: chatstore.NoticeInfo,
			Text:  "model changed to " + ev.Model,
		}, nil)
		if err != nil {
			return ProcessResult{Outcome: ProcessFailed, Err: err}
		}
	case Error:
		_, err := pctx.ChatStore.Push(chatstore.SystemNotice{
			Level: chatstore.NoticeError,
			Text:  ev.Message,
		}, nil)
		if err != nil {
			return ProcessResult{Outcome: ProcessFailed, Err: err}
		}
	}
	return ProcessResult{Outcome: Handled}
}
