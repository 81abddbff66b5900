// Package session owns the single active turn of a conversation: the
// public send_message/edit_message/cancel_current_operation/
// compact_session/new_session/subscribe_events surface a UI drives.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/conductorhq/conductor/internal/approval"
	"github.com/conductorhq/conductor/internal/chatmodel"
	"github.com/conductorhq/conductor/internal/chatstore"
	"github.com/conductorhq/conductor/internal/contextutil"
	"github.com/conductorhq/conductor/internal/events"
	"github.com/conductorhq/conductor/internal/executor"
	"github.com/conductorhq/conductor/internal/llmprovider"
	"github.com/conductorhq/conductor/internal/registry"
	"github.com/conductorhq/conductor/internal/toolcatalog"
	"github.com/conductorhq/conductor/internal/workspace"
	"github.com/google/uuid"
)

// compactionBudgetTokens is the approximate size, in estimated tokens, above
// which compact_session is worth calling; it is advisory only — the
// controller never auto-compacts, a UI decides when to call it.
const compactionBudgetTokens = 100_000

// queuedMessage is the single pending send_message retained while a turn is
// running; a second call to send_message overwrites it.
type queuedMessage struct {
	content string
	model   string
}

// Config seeds a fresh session: the pieces a Controller cannot construct
// for itself because they come from outside the core (credentials, working
// directory, starting approval policy).
type Config struct {
	Provider     llmprovider.Provider
	Catalog      *toolcatalog.Catalog
	Workspace    workspace.Workspace
	WorkingDir   string
	Policy       *approval.Policy
	SystemPrompt string
	Model        string
	MaxTokens    int
}

// Controller serializes turns for one conversation: at most one Executor
// round-loop runs at a time, and a second send_message while one is running
// enqueues rather than interleaves.
type Controller struct {
	mu sync.Mutex

	provider     llmprovider.Provider
	catalog      *toolcatalog.Catalog
	workspace    workspace.Workspace
	workingDir   string
	policy       *approval.Policy
	systemPrompt string
	maxTokens    int

	store    *chatstore.ChatStore
	registry *registry.Registry
	flags    *events.UIFlags
	pipeline *events.Pipeline
	bus      *events.Bus
	arbiter  *approval.Arbiter
	ex       *executor.Executor

	model           string
	activeMessageID string
	running         bool
	cancel          context.CancelFunc
	queued          *queuedMessage

	// approvalRequests lets a UI answer a RequestToolApproval event by
	// call id; the arbiter's emit callback records the Reply channel here.
	approvalRequests map[string]chan approval.Decision
}

// New builds a Controller and its first session from cfg.
func New(cfg Config) *Controller {
	c := &Controller{
		provider:     cfg.Provider,
		catalog:      cfg.Catalog,
		workspace:    cfg.Workspace,
		workingDir:   cfg.WorkingDir,
		policy:       cfg.Policy,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxTokens,
		model:        cfg.Model,
		bus:          events.NewBus(),
	}
	c.rebuild()
	return c
}

// rebuild constructs a fresh store/registry/pipeline/arbiter/executor stack
// and wires it together; callers must hold mu.
func (c *Controller) rebuild() {
	c.store = chatstore.New()
	c.registry = registry.New()
	c.flags = events.NewUIFlags()
	pctx := &events.PipelineContext{ChatStore: c.store, Registry: c.registry, Flags: c.flags}
	c.pipeline = events.New(pctx,
		events.ProcessingStateProcessor{},
		events.MessageProcessor{},
		events.ToolProcessor{},
		events.SystemProcessor{},
	)
	c.pipeline.SetBus(c.bus)

	c.approvalRequests = make(map[string]chan approval.Decision)
	c.arbiter = approval.New(c.policy, func(ctx context.Context, req approval.Request) {
		c.mu.Lock()
		c.approvalRequests[req.CallID] = req.Reply
		c.mu.Unlock()
		c.pipeline.Emit(events.RequestToolApproval{ID: req.CallID, ToolName: req.ToolName, Parameters: req.Parameters})
	})

	ex := executor.New(c.provider, c.catalog, c.registry, c.store, c.arbiter, c.pipeline, c.workspace)
	ex.WorkingDir = c.workingDir
	ex.SystemPrompt = c.systemPrompt
	if c.maxTokens > 0 {
		ex.MaxTokens = c.maxTokens
	}
	c.ex = ex
	c.activeMessageID = ""
}

// SubscribeEvents returns a channel receiving every event emitted from this
// point on, and an unsubscribe function.
func (c *Controller) SubscribeEvents() (<-chan events.Event, func()) {
	return c.bus.Subscribe()
}

// ResolveApproval answers an outstanding RequestToolApproval by call id; it
// is a no-op if no approval is awaiting that id (already cancelled, or
// answered by a duplicate reply).
func (c *Controller) ResolveApproval(callID string, decision approval.Decision) {
	c.mu.Lock()
	reply, ok := c.approvalRequests[callID]
	if ok {
		delete(c.approvalRequests, callID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case reply <- decision:
	default:
	}
}

// ChatStore returns the current session's store, for a UI's as_items/
// revision polling.
func (c *Controller) ChatStore() *chatstore.ChatStore {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

// VisibleItems returns the chat items on the path from the session root to
// its current active message, for a UI that wants the exact transcript the
// next turn will see rather than every item ever stored.
func (c *Controller) VisibleItems() ([]chatstore.ChatItem, error) {
	c.mu.Lock()
	store := c.store
	active := c.activeMessageID
	c.mu.Unlock()
	if active == "" {
		return nil, nil
	}
	return store.VisibleItems(active)
}

// SendMessage appends a user message and starts a turn. If a turn is
// already running, content/model replace whatever was previously queued
// (only one queued message is retained) and the call returns immediately.
func (c *Controller) SendMessage(content, model string) {
	c.mu.Lock()
	if c.running {
		c.queued = &queuedMessage{content: content, model: model}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.startTurn(content, model)
}

// EditMessage discards messageID and everything descended from it, then
// starts a new turn with newContent as a sibling of the edited message.
// Editing a message with no parent (the session's first message) resets
// the whole session, matching new_session's "start fresh" semantics for
// the degenerate single-message case.
func (c *Controller) EditMessage(messageID, newContent, model string) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("session: cannot edit while a turn is running")
	}

	var parentID *string
	found := false
	for _, item := range c.store.Items() {
		mi, ok := item.Data.(chatstore.MessageItem)
		if !ok || mi.Message.ID != messageID {
			continue
		}
		found = true
		parentID = mi.Message.ParentMessageID
		break
	}
	if !found {
		c.mu.Unlock()
		return fmt.Errorf("session: message %q not found", messageID)
	}

	if parentID == nil {
		c.store.Reset()
		c.registry.Reset()
	} else if err := c.store.PruneTo(*parentID); err != nil {
		c.mu.Unlock()
		return err
	}
	c.activeMessageID = ""
	if parentID != nil {
		c.activeMessageID = *parentID
	}
	c.mu.Unlock()

	c.startTurn(newContent, model)
	return nil
}

// CancelCurrentOperation cancels the running turn's token, if any. In-flight
// tool tasks receive their derived cancellation; the executor reports
// Cancelled with no trailing assistant message, per its contract.
func (c *Controller) CancelCurrentOperation() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// CompactSession replaces the visible history with a single summary message
// plus the last user message, using summarize to produce the summary text
// (a dedicated prompt run through the same provider, supplied by the
// caller so this package stays provider-agnostic).
func (c *Controller) CompactSession(ctx context.Context, summarize func(ctx context.Context, history []chatmodel.Message) (string, error)) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("session: cannot compact while a turn is running")
	}
	active := c.activeMessageID
	c.mu.Unlock()

	if active == "" {
		return nil
	}

	visible, err := c.store.VisibleItems(active)
	if err != nil {
		return err
	}
	var history []chatmodel.Message
	var lastUser *chatmodel.Message
	for _, item := range visible {
		mi, ok := item.Data.(chatstore.MessageItem)
		if !ok {
			continue
		}
		history = append(history, mi.Message)
		if _, ok := mi.Message.Data.(chatmodel.UserMessage); ok {
			m := mi.Message
			lastUser = &m
		}
	}
	if lastUser == nil {
		return nil
	}

	summary, err := summarize(ctx, history)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Reset()
	c.registry.Reset()

	summaryMsg := chatmodel.Message{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Data: chatmodel.AssistantMessage{Content: []chatmodel.AssistantContent{
			chatmodel.AssistantText{Text: summary},
		}},
	}
	if _, err := c.store.IngestMessages([]chatmodel.Message{summaryMsg}); err != nil {
		return err
	}
	parentID := summaryMsg.ID
	carriedUser := *lastUser
	carriedUser.ParentMessageID = &parentID
	if _, err := c.store.IngestMessages([]chatmodel.Message{carriedUser}); err != nil {
		return err
	}
	c.activeMessageID = carriedUser.ID
	return nil
}

// NewSession discards all history, in-flight state, and queued messages,
// and adopts cfg for the session that follows.
func (c *Controller) NewSession(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.running = false
	c.queued = nil

	c.provider = cfg.Provider
	c.catalog = cfg.Catalog
	c.workspace = cfg.Workspace
	c.workingDir = cfg.WorkingDir
	c.policy = cfg.Policy
	c.systemPrompt = cfg.SystemPrompt
	c.maxTokens = cfg.MaxTokens
	c.model = cfg.Model

	c.rebuild()
}

// EstimatedTokens reports the current visible history's estimated token
// count, for a UI deciding when to call CompactSession.
func (c *Controller) EstimatedTokens() int {
	c.mu.Lock()
	active := c.activeMessageID
	store := c.store
	c.mu.Unlock()
	if active == "" {
		return 0
	}
	visible, err := store.VisibleItems(active)
	if err != nil {
		return 0
	}
	var msgs []chatmodel.Message
	for _, item := range visible {
		if mi, ok := item.Data.(chatstore.MessageItem); ok {
			msgs = append(msgs, mi.Message)
		}
	}
	return contextutil.EstimateTotalTokens(msgs)
}

// startTurn runs one turn on a background goroutine, auto-starting any
// queued message once the turn completes successfully.
func (c *Controller) startTurn(content, model string) {
	c.mu.Lock()
	if model == "" {
		model = c.model
	}
	store := c.store
	ex := c.ex
	active := c.activeMessageID

	var history []chatmodel.Message
	if active != "" {
		if visible, err := store.VisibleItems(active); err == nil {
			for _, item := range visible {
				if mi, ok := item.Data.(chatstore.MessageItem); ok {
					history = append(history, mi.Message)
				}
			}
		}
	}

	userMsg := chatmodel.Message{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Data:      chatmodel.UserMessage{Content: []chatmodel.UserContent{chatmodel.UserText{Text: content}}},
	}
	if active != "" {
		parent := active
		userMsg.ParentMessageID = &parent
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.running = true
	c.cancel = cancel
	c.mu.Unlock()

	go func() {
		agentErr := ex.RunTurn(ctx, model, history, userMsg)

		c.mu.Lock()
		c.running = false
		c.cancel = nil
		if agentErr == nil {
			c.activeMessageID = c.lastAssistantID(userMsg.ID)
		}
		next := c.queued
		c.queued = nil
		c.mu.Unlock()

		if next != nil {
			c.startTurn(next.content, next.model)
		}
	}()
}

// lastAssistantID returns the message id of the last MessageItem in the
// store's insertion order, whatever its role or lineage; it falls back to
// seedID when the store holds no MessageItem, which keeps the active pointer
// valid regardless.
func (c *Controller) lastAssistantID(seedID string) string {
	items := c.store.Items()
	last := seedID
	for _, item := range items {
		mi, ok := item.Data.(chatstore.MessageItem)
		if !ok {
			continue
		}
		last = mi.Message.ID
	}
	return last
}
