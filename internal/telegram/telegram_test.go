package telegram

import (
	"context"
	"testing"
	"time"

	"github.com/conductorhq/conductor/internal/chatmodel"
	"github.com/conductorhq/conductor/internal/events"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	ch chan events.Event
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan events.Event, 16)}
}

func (f *fakeSource) SubscribeEvents() (<-chan events.Event, func()) {
	return f.ch, func() { close(f.ch) }
}

func newTestNotifier() (*Notifier, *[]string) {
	var sent []string
	n := &Notifier{chatID: 42}
	n.post = func(chatID int64, text string) error {
		sent = append(sent, text)
		return nil
	}
	return n, &sent
}

func TestMirrorPostsAssistantText(t *testing.T) {
	n, sent := newTestNotifier()
	src := newFakeSource()
	require.NoError(t, n.Start(src))

	src.ch <- events.MessageAdded{Message: chatmodel.Message{
		Data: chatmodel.AssistantMessage{Content: []chatmodel.AssistantContent{
			chatmodel.AssistantText{Text: "turn complete"},
		}},
	}}

	require.NoError(t, n.Close(context.Background()))
	require.Equal(t, []string{"turn complete"}, *sent)
}

func TestMirrorPostsApprovalRequestAndError(t *testing.T) {
	n, sent := newTestNotifier()
	src := newFakeSource()
	require.NoError(t, n.Start(src))

	src.ch <- events.RequestToolApproval{ID: "c1", ToolName: "bash", Parameters: []byte(`{"command":"ls"}`)}
	src.ch <- events.Error{Message: "provider unavailable"}

	require.NoError(t, n.Close(context.Background()))
	require.Len(t, *sent, 2)
	require.Contains(t, (*sent)[0], "bash")
	require.Contains(t, (*sent)[1], "provider unavailable")
}

func TestMirrorIgnoresUserMessages(t *testing.T) {
	n, sent := newTestNotifier()
	src := newFakeSource()
	require.NoError(t, n.Start(src))

	src.ch <- events.MessageAdded{Message: chatmodel.Message{
		Data: chatmodel.UserMessage{Content: []chatmodel.UserContent{chatmodel.UserText{Text: "hi"}}},
	}}

	require.NoError(t, n.Close(context.Background()))
	require.Empty(t, *sent)
}

func TestCloseTimesOutIfMirrorGoroutineNeverExits(t *testing.T) {
	n, _ := newTestNotifier()
	n.unsub = func() {}
	n.done = make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.Error(t, n.Close(ctx))
}
