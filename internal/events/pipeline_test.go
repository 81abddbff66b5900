package events

import (
	"testing"
	"time"

	"github.com/conductorhq/conductor/internal/chatmodel"
	"github.com/conductorhq/conductor/internal/chatstore"
	"github.com/conductorhq/conductor/internal/registry"
	"github.com/stretchr/testify/require"
)

func newTestPipeline() (*Pipeline, *PipelineContext) {
	pctx := &PipelineContext{
		ChatStore: chatstore.New(),
		Registry:  registry.New(),
		Flags:     NewUIFlags(),
	}
	p := New(pctx, ProcessingStateProcessor{}, MessageProcessor{}, ToolProcessor{}, SystemProcessor{})
	return p, pctx
}

func TestProcessingStateToggles(t *testing.T) {
	p, pctx := newTestPipeline()
	p.Emit(ProcessingStarted{})
	require.True(t, pctx.Flags.Snapshot().IsProcessing)
	p.Emit(ProcessingFinished{})
	require.False(t, pctx.Flags.Snapshot().IsProcessing)
}

func TestMessageAddedThenStreamedDelta(t *testing.T) {
	p, pctx := newTestPipeline()

	assistantMsg := chatmodel.Message{
		ID:        "m1",
		Timestamp: time.Now().UTC(),
		Data:      chatmodel.AssistantMessage{Content: []chatmodel.AssistantContent{chatmodel.AssistantText{Text: "hel"}}},
	}
	results := p.Emit(MessageAdded{Message: assistantMsg})
	require.Len(t, results, 1)
	require.Equal(t, Handled, results[0].Outcome)

	p.Emit(MessagePart{MessageID: "m1", Delta: "lo"})

	item, ok := pctx.ChatStore.GetByID("m1")
	require.True(t, ok)
	mi := item.Data.(chatstore.MessageItem)
	am := mi.Message.Data.(chatmodel.AssistantMessage)
	_, text, found := am.LastText()
	require.True(t, found)
	require.Equal(t, "hello", text.Text)
}

func TestToolCallCompletedReplacesPendingMarker(t *testing.T) {
	p, pctx := newTestPipeline()

	itemID, err := pctx.ChatStore.Push(chatstore.PendingToolCall{
		ToolCall:  chatmodel.ToolCall{ID: "tc1", Name: "view"},
		Timestamp: time.Now().UTC(),
	}, nil)
	require.NoError(t, err)

	p.Emit(ToolCallCompleted{ID: "tc1", Result: chatmodel.FileContentResult{Path: "a.txt", Content: "x"}})

	item, ok := pctx.ChatStore.GetByID(itemID)
	require.True(t, ok)
	mi, ok := item.Data.(chatstore.MessageItem)
	require.True(t, ok)
	tm := mi.Message.Data.(chatmodel.ToolMessage)
	require.Equal(t, "tc1", tm.ToolUseID)
	fc, ok := tm.Result.(chatmodel.FileContentResult)
	require.True(t, ok)
	require.Equal(t, "x", fc.Content)
}

func TestToolCallFailedWithoutPendingMarkerStillIngests(t *testing.T) {
	p, pctx := newTestPipeline()
	p.Emit(ToolCallFailed{ID: "tc2", Error: "boom"})

	items := pctx.ChatStore.Items()
	require.Len(t, items, 1)
	mi := items[0].Data.(chatstore.MessageItem)
	tm := mi.Message.Data.(chatmodel.ToolMessage)
	er := tm.Result.(chatmodel.ErrorResult)
	require.Equal(t, "boom", er.Message)
}

func TestModelChangedEmitsSystemNotice(t *testing.T) {
	p, pctx := newTestPipeline()
	p.Emit(ModelChanged{Model: "claude-x"})

	require.Equal(t, "claude-x", pctx.Flags.Snapshot().CurrentModel)
	items := pctx.ChatStore.Items()
	require.Len(t, items, 1)
	notice := items[0].Data.(chatstore.SystemNotice)
	require.Equal(t, chatstore.NoticeInfo, notice.Level)
}

func TestEmitStopsAtHandledAndComplete(t *testing.T) {
	pctx := &PipelineContext{ChatStore: chatstore.New(), Registry: registry.New(), Flags: NewUIFlags()}
	stopper := stoppingProcessor{}
	p := New(pctx, stopper, ProcessingStateProcessor{})
	results := p.Emit(ProcessingStarted{})
	require.Len(t, results, 1)
	require.False(t, pctx.Flags.Snapshot().IsProcessing)
}

type stoppingProcessor struct{}

func (stoppingProcessor) Name() string                { return "stopper" }
func (stoppingProcessor) Priority() int                { return 0 }
func (stoppingProcessor) CanHandle(e Event) bool       { return e.Kind() == KindProcessingStarted }
func (stoppingProcessor) Process(*PipelineContext, Event) ProcessResult {
	return ProcessResult{Outcome: HandledAndComplete}
}
