package chatstore

import (
	"testing"
	"time"

	"github.com/conductorhq/conductor/internal/chatmodel"
	"github.com/stretchr/testify/require"
)

func userMessage(id string, parent *string, text string) chatmodel.Message {
	return chatmodel.Message{
		ID:              id,
		ParentMessageID: parent,
		Timestamp:       time.Now().UTC(),
		Data:            chatmodel.UserMessage{Content: []chatmodel.UserContent{chatmodel.UserText{Text: text}}},
	}
}

func assistantMessage(id string, parent *string, text string) chatmodel.Message {
	return chatmodel.Message{
		ID:              id,
		ParentMessageID: parent,
		Timestamp:       time.Now().UTC(),
		Data:            chatmodel.AssistantMessage{Content: []chatmodel.AssistantContent{chatmodel.AssistantText{Text: text}}},
	}
}

func TestIngestMessagesAndRevisionMonotonic(t *testing.T) {
	store := New()
	u1 := userMessage("u1", nil, "2+2?")
	a1 := assistantMessage("a1", strPtr("u1"), "4")

	rev0 := store.Revision()
	ids, err := store.IngestMessages([]chatmodel.Message{u1, a1})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Greater(t, store.Revision(), rev0)

	item, ok := store.GetByID(ids[1])
	require.True(t, ok)
	require.Equal(t, ids[0], *item.ParentChatItemID)
}

func TestPushDanglingParentRejected(t *testing.T) {
	store := New()
	bogus := "does-not-exist"
	_, err := store.Push(SystemNotice{Level: NoticeInfo, Text: "hi", Timestamp: time.Now()}, &bogus)
	require.Error(t, err)
	var target *ErrDanglingParent
	require.ErrorAs(t, err, &target)
}

func TestDuplicateInFlightOperationRejected(t *testing.T) {
	store := New()
	id1, err := store.Push(SystemNotice{Level: NoticeInfo, Text: "root"}, nil)
	require.NoError(t, err)

	_, err = store.Push(InFlightOperation{Label: "compacting"}, &id1)
	require.NoError(t, err)

	_, err = store.Push(InFlightOperation{Label: "compacting"}, &id1)
	require.Error(t, err)
	var target *ErrDuplicateInFlight
	require.ErrorAs(t, err, &target)
}

func TestDuplicatePendingToolCallRejected(t *testing.T) {
	store := New()
	call := chatmodel.ToolCall{ID: "call-1", Name: "grep"}
	_, err := store.Push(PendingToolCall{ToolCall: call}, nil)
	require.NoError(t, err)

	_, err = store.Push(PendingToolCall{ToolCall: call}, nil)
	require.Error(t, err)
	var target *ErrDuplicatePendingToolCall
	require.ErrorAs(t, err, &target)
}

func TestLineageAndVisibility(t *testing.T) {
	store := New()
	u1 := userMessage("u1", nil, "hello")
	a1 := assistantMessage("a1", strPtr("u1"), "hi there")
	u2 := userMessage("u2", strPtr("a1"), "and now?")
	a2 := assistantMessage("a2", strPtr("u2"), "sure")

	_, err := store.IngestMessages([]chatmodel.Message{u1, a1, u2, a2})
	require.NoError(t, err)

	lineage, err := store.Lineage("a2")
	require.NoError(t, err)
	require.True(t, lineage["a2"])
	require.True(t, lineage["u2"])
	require.True(t, lineage["a1"])
	require.True(t, lineage["u1"])

	lineage, err = store.Lineage("a1")
	require.NoError(t, err)
	require.True(t, lineage["a1"])
	require.True(t, lineage["u1"])
	require.False(t, lineage["a2"])
	require.False(t, lineage["u2"])
}

func TestBranchingViaPruneTo(t *testing.T) {
	store := New()
	u1 := userMessage("u1", nil, "hello")
	a1 := assistantMessage("a1", strPtr("u1"), "hi")
	u2 := userMessage("u2", strPtr("a1"), "next")
	a2 := assistantMessage("a2", strPtr("u2"), "sure")
	_, err := store.IngestMessages([]chatmodel.Message{u1, a1, u2, a2})
	require.NoError(t, err)

	// Edit u1: create a sibling u1' with the same (nil) parent.
	u1b := userMessage("u1b", nil, "hello, edited")
	ids, err := store.IngestMessages([]chatmodel.Message{u1b})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	err = store.PruneTo("u1b")
	require.NoError(t, err)

	items := store.Items()
	require.Len(t, items, 1)
	mi := items[0].Data.(MessageItem)
	require.Equal(t, "u1b", mi.Message.ID)
}

func TestUpdateMessageAppendsText(t *testing.T) {
	store := New()
	a1 := assistantMessage("a1", nil, "Hel")
	ids, err := store.IngestMessages([]chatmodel.Message{a1})
	require.NoError(t, err)

	err = store.UpdateMessage(ids[0], func(am *chatmodel.AssistantMessage) {
		idx, last, ok := am.LastText()
		require.True(t, ok)
		am.Content[idx] = chatmodel.AssistantText{Text: last.Text + "lo"}
	})
	require.NoError(t, err)

	item, _ := store.GetByID(ids[0])
	mi := item.Data.(MessageItem)
	am := mi.Message.Data.(chatmodel.AssistantMessage)
	text := am.Content[0].(chatmodel.AssistantText)
	require.Equal(t, "Hello", text.Text)
}

func TestReplacePendingToolCall(t *testing.T) {
	store := New()
	call := chatmodel.ToolCall{ID: "call-1", Name: "view"}
	itemID, err := store.Push(PendingToolCall{ToolCall: call}, nil)
	require.NoError(t, err)

	resolved, ok := store.ResolvePendingToolCall("call-1")
	require.True(t, ok)
	require.Equal(t, itemID, resolved)

	toolMsg := chatmodel.Message{
		ID:        "tm-1",
		Timestamp: time.Now().UTC(),
		Data: chatmodel.ToolMessage{
			ToolUseID: "call-1",
			Result:    chatmodel.FileContentResult{Path: "a.txt", Content: "a"},
		},
	}
	err = store.ReplacePendingToolCall("call-1", toolMsg)
	require.NoError(t, err)

	_, ok = store.ResolvePendingToolCall("call-1")
	require.False(t, ok)

	item, ok := store.GetByID(itemID)
	require.True(t, ok)
	mi := item.Data.(MessageItem)
	require.Equal(t, "tm-1", mi.Message.ID)
}

func strPtr(s string) *string { return &s }
