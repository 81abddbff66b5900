package session

import (
	"context"
	"testing"
	"time"

	"github.com/conductorhq/conductor/internal/approval"
	"github.com/conductorhq/conductor/internal/chatmodel"
	"github.com/conductorhq/conductor/internal/chatstore"
	"github.com/conductorhq/conductor/internal/llmprovider"
	"github.com/conductorhq/conductor/internal/toolcatalog"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	texts []string
	call  int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) ChatStream(ctx context.Context, req llmprovider.Request) (<-chan llmprovider.StreamChunk, error) {
	text := "ok"
	if p.call < len(p.texts) {
		text = p.texts[p.call]
	}
	p.call++
	ch := make(chan llmprovider.StreamChunk, 2)
	ch <- llmprovider.StreamChunk{Kind: llmprovider.ChunkTextDelta, TextDelta: text}
	ch <- llmprovider.StreamChunk{Kind: llmprovider.ChunkCompletion, StopReason: "end_turn"}
	close(ch)
	return ch, nil
}

func newTestController(provider llmprovider.Provider) *Controller {
	return New(Config{
		Provider:  provider,
		Catalog:   toolcatalog.NewCatalog(),
		Workspace: nil,
		Policy:    approval.NewPolicy(approval.Automatic),
		Model:     "claude-x",
		MaxTokens: 1024,
	})
}

func waitForIdle(t *testing.T, c *Controller) {
	t.Helper()
	for i := 0; i < 200; i++ {
		c.mu.Lock()
		running := c.running
		c.mu.Unlock()
		if !running {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for turn to finish")
}

func TestSendMessageProducesAssistantReply(t *testing.T) {
	c := newTestController(&scriptedProvider{texts: []string{"hi there"}})
	c.SendMessage("hello", "")
	waitForIdle(t, c)

	var sawAssistant bool
	for _, item := range c.ChatStore().Items() {
		if mi, ok := item.Data.(chatstore.MessageItem); ok {
			if _, ok := mi.Message.Data.(chatmodel.AssistantMessage); ok {
				sawAssistant = true
			}
		}
	}
	require.True(t, sawAssistant)
}

func TestSendMessageWhileRunningQueuesSingleSlot(t *testing.T) {
	c := newTestController(&scriptedProvider{texts: []string{"first", "second", "third"}})
	c.SendMessage("one", "")
	c.SendMessage("two", "")
	c.SendMessage("three", "")
	waitForIdle(t, c)
	waitForIdle(t, c)

	var userTexts []string
	for _, item := range c.ChatStore().Items() {
		if mi, ok := item.Data.(chatstore.MessageItem); ok {
			if um, ok := mi.Message.Data.(chatmodel.UserMessage); ok {
				if txt, ok := um.Content[0].(chatmodel.UserText); ok {
					userTexts = append(userTexts, txt.Text)
				}
			}
		}
	}
	require.Equal(t, []string{"one", "three"}, userTexts)
}

func TestNewSessionClearsHistory(t *testing.T) {
	c := newTestController(&scriptedProvider{texts: []string{"hi"}})
	c.SendMessage("hello", "")
	waitForIdle(t, c)
	require.NotEmpty(t, c.ChatStore().Items())

	c.NewSession(Config{
		Provider:  &scriptedProvider{texts: []string{"fresh"}},
		Catalog:   toolcatalog.NewCatalog(),
		Policy:    approval.NewPolicy(approval.Automatic),
		Model:     "claude-x",
		MaxTokens: 1024,
	})
	require.Empty(t, c.ChatStore().Items())
}
