// Package notifier mirrors a session's events into a Discord channel. It is
// a passive subscriber of the Event Bus, never a second writer: it cannot
// send messages, resolve approvals, or otherwise drive the session it
// watches.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
	"github.com/conductorhq/conductor/internal/chatmodel"
	"github.com/conductorhq/conductor/internal/events"
)

// EventSource is the subset of session.Controller a Notifier depends on,
// kept narrow so tests can supply a fake bus without a live session.
type EventSource interface {
	SubscribeEvents() (<-chan events.Event, func())
}

// Notifier posts a subset of an event stream to one Discord channel.
type Notifier struct {
	session   *discordgo.Session
	channelID string
	unsub     func()
	done      chan struct{}

	// post defaults to session.ChannelMessageSend; overridden in tests so
	// mirroring logic can be exercised without a live Discord connection.
	post func(channelID, text string) error
}

// New builds a Notifier for channelID without connecting to Discord yet;
// call Start to open the connection and begin mirroring.
func New(token, channelID string) (*Notifier, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("notifier: create discord session: %w", err)
	}
	n := &Notifier{session: session, channelID: channelID}
	n.post = func(channelID, text string) error {
		_, err := n.session.ChannelMessageSend(channelID, text)
		return err
	}
	return n, nil
}

// Start opens the Discord connection and begins mirroring src's events into
// the channel. Call Close to stop and disconnect.
func (n *Notifier) Start(src EventSource) error {
	if n.session != nil {
		if err := n.session.Open(); err != nil {
			return fmt.Errorf("notifier: open discord session: %w", err)
		}
	}
	n.mirrorFrom(src)
	return nil
}

// mirrorFrom subscribes to src and runs the mirror loop, without touching
// the Discord connection; split out of Start so tests can exercise mirror
// logic without a live session.
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

// mirror posts only the events a channel observer would want to see:
// completed assistant replies, approval requests, and turn-level errors.
// Streaming deltas, tool lifecycle, and bookkeeping events stay local.
func (n *Notifier) mirror(ev events.Event) {
	switch e := ev.(type) {
	case events.MessageAdded:
		n.mirrorMessage(e.Message)
	case events.RequestToolApproval:
		n.send(fmt.Sprintf("⏸️ approval requested for `%s` (call `%s`)\n```json\n%s\n```", e.ToolName, e.ID, prettyParams(e.Parameters)))
	case events.Error:
		n.send(fmt.Sprintf("⚠️ %s", e.Message))
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
	if err := n.post(n.channelID, truncate(text, 1900)); err != nil {
		log.Printf("notifier: failed to post to channel %s: %v", n.channelID, err)
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}

// Close unsubscribes from the event source and disconnects from Discord,
// waiting for the mirror goroutine to drain.
func (n *Notifier) Close(ctx context.Context) error {
	n.unsub()
	select {
	case <-n.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if n.session == nil {
		return nil
	}
	return n.session.Close()
}
