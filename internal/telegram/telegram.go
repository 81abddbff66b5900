// Package telegram mirrors a session's events into a Telegram chat. It is a
// passive subscriber of the Event Bus, never a second writer: it cannot
// send messages, resolve approvals, or otherwise drive the session it
// watches. This is the same role internal/notifier plays for Discord,
// adapted to the other chat-bot dependency the pack carries.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	tgbot "github.com/go-telegram/bot"

	"github.com/conductorhq/conductor/internal/chatmodel"
	"github.com/conductorhq/conductor/internal/events"
)

// EventSource is the subset of session.Controller a Notifier depends on,
// kept narrow so tests can supply a fake bus without a live session.
type EventSource interface {
	SubscribeEvents() (<-chan events.Event, func())
}

// Notifier posts a subset of an event stream to one Telegram chat.
type Notifier struct {
	bot    *tgbot.Bot
	chatID int64
	unsub  func()
	done   chan struct{}

	// post defaults to bot.SendMessage; overridden in tests so mirroring
	// logic can be exercised without a live Telegram connection.
	post func(chatID int64, text string) error
}

// New builds a Notifier for chatID without connecting to Telegram yet; call
// Start to begin mirroring.
func New(token string, chatID int64) (*Notifier, error) {
	b, err := tgbot.New(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	n := &Notifier{bot: b, chatID: chatID}
	n.post = func(chatID int64, text string) error {
		_, err := n.bot.SendMessage(context.Background(), &tgbot.SendMessageParams{
			ChatID: chatID,
			Text:   text,
		})
		return err
	}
	return n, nil
}

// Start begins mirroring src's events into the chat, polling Telegram
// updates in the background so SendMessage errors (e.g. token revoked)
// surface through the bot's own error handling rather than blocking here.
func (n *Notifier) Start(src EventSource) error {
	if n.bot != nil {
		go n.bot.Start(context.Background())
	}
	n.mirrorFrom(src)
	return nil
}

// mirrorFrom subscribes to src and runs the mirror loop, without touching
// the Telegram connection; split out of Start so tests can exercise mirror
// logic without a live bot.
func (n *Notifier) mirrorFrom(src EventSource) {
	ch, unsub := src.SubscribeEvents()
	n.unsub = unsub
	n.done = make(chan struct{})
	go n.run(ch)
}

func (n *Notifier) run(ch <-chan events.Event) {
	defer close(n.done)
	for ev := range ch {
		n.mirror(ev)
	}
}

// mirror posts only the events a chat observer would want to see:
// completed assistant replies, approval requests, and turn-level errors.
// Streaming deltas, tool lifecycle, and bookkeeping events stay local.
func (n *Notifier) mirror(ev events.Event) {
	switch e := ev.(type) {
	case events.MessageAdded:
		n.mirrorMessage(e.Message)
	case events.RequestToolApproval:
		n.send(fmt.Sprintf("approval requested for %s (call %s)\n%s", e.ToolName, e.ID, prettyParams(e.Parameters)))
	case events.Error:
		n.send(fmt.Sprintf("error: %s", e.Message))
	}
}

func (n *Notifier) mirrorMessage(msg chatmodel.Message) {
	am, ok := msg.Data.(chatmodel.AssistantMessage)
	if !ok {
		return
	}
	if _, text, ok := am.LastText(); ok && text.Text != "" {
		n.send(text.Text)
	}
}

func prettyParams(raw []byte) string {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(pretty)
}

func (n *Notifier) send(text string) {
	if err := n.post(n.chatID, truncate(text, 4000)); err != nil {
		log.Printf("telegram: failed to post to chat %d: %v", n.chatID, err)
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}

// Close unsubscribes from the event source, waiting for the mirror
// goroutine to drain.
func (n *Notifier) Close(ctx context.Context) error {
	n.unsub()
	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
