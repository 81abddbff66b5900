package chatstore

import (
	"fmt"
	"sync"

	"github.com/conductorhq/conductor/internal/chatmodel"
	"github.com/google/uuid"
)

// ErrNotFound is returned by operations addressing an item or message id
// that does not exist in the store.
type ErrNotFound struct {
	ID string
}

func (e *ErrNotFound) Error() string { return fmt.Sprintf("chatstore: id %q not found", e.ID) }

// ErrDanglingParent is returned when a parent pointer does not resolve to a
// present item.
type ErrDanglingParent struct {
	ParentID string
}

func (e *ErrDanglingParent) Error() string {
	return fmt.Sprintf("chatstore: parent_chat_item_id %q does not resolve", e.ParentID)
}

// ErrDuplicateInFlight is returned when pushing a second InFlightOperation
// for the same (label, parent) pair.
type ErrDuplicateInFlight struct {
	Label    string
	ParentID string
}

func (e *ErrDuplicateInFlight) Error() string {
	return fmt.Sprintf("chatstore: in-flight operation %q already active for parent %q", e.Label, e.ParentID)
}

// ErrDuplicatePendingToolCall is returned when pushing a second
// PendingToolCall for a tool_call id that already has one outstanding.
type ErrDuplicatePendingToolCall struct {
	ToolCallID string
}

func (e *ErrDuplicatePendingToolCall) Error() string {
	return fmt.Sprintf("chatstore: pending tool call %q already exists", e.ToolCallID)
}

// ChatStore is the append-mostly chat item graph: an insertion-ordered
// mapping id -> ChatItem plus a monotonic revision counter. All exported
// methods are safe for concurrent use.
type ChatStore struct {
	mu       sync.Mutex
	items    map[string]ChatItem
	order    []string
	revision uint64

	// messageToItem maps a Message.ID to the ChatItem id that wraps it, so
	// IngestMessages can resolve parent_message_id links to
	// parent_chat_item_id links.
	messageToItem map[string]string

	// pendingToolCalls tracks outstanding PendingToolCall item ids by
	// tool_call id, enforcing the at-most-one-outstanding invariant and
	// letting the Tool processor find and replace the marker on completion.
	pendingToolCalls map[string]string

	// inFlightKeys tracks active (label, parentID) pairs for the
	// at-most-one-per-pair invariant.
	inFlightKeys map[string]string // key -> item id
}

// New returns an empty ChatStore.
func New() *ChatStore {
	return &ChatStore{
		items:            make(map[string]ChatItem),
		messageToItem:    make(map[string]string),
		pendingToolCalls: make(map[string]string),
		inFlightKeys:     make(map[string]string),
	}
}

// Reset discards every item and bumps the revision, used by new_session to
// clear history without discarding the ChatStore instance other components
// already hold a pointer to.
func (s *ChatStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]ChatItem)
	s.order = nil
	s.messageToItem = make(map[string]string)
	s.pendingToolCalls = make(map[string]string)
	s.inFlightKeys = make(map[string]string)
	s.revision++
}

func inFlightKey(label string, parentID *string) string {
	p := ""
	if parentID != nil {
		p = *parentID
	}
	return label + "\x00" + p
}

// Push appends a new ChatItem with the given data and optional parent,
// bumps the revision, and returns the new item's id.
func (s *ChatStore) Push(data ChatItemData, parentChatItemID *string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushLocked(uuid.NewString(), data, parentChatItemID)
}

func (s *ChatStore) pushLocked(id string, data ChatItemData, parentChatItemID *string) (string, error) {
	if parentChatItemID != nil {
		if _, ok := s.items[*parentChatItemID]; !ok {
			return "", &ErrDanglingParent{ParentID: *parentChatItemID}
		}
	}
	if ifo, ok := data.(InFlightOperation); ok {
		key := inFlightKey(ifo.Label, parentChatItemID)
		if _, exists := s.inFlightKeys[key]; exists {
			return "", &ErrDuplicateInFlight{Label: ifo.Label, ParentID: derefOrEmpty(parentChatItemID)}
		}
	}
	if ptc, ok := data.(PendingToolCall); ok {
		if _, exists := s.pendingToolCalls[ptc.ToolCall.ID]; exists {
			return "", &ErrDuplicatePendingToolCall{ToolCallID: ptc.ToolCall.ID}
		}
	}

	item := ChatItem{ID: id, ParentChatItemID: parentChatItemID, Data: data}
	s.items[id] = item
	s.order = append(s.order, id)
	s.revision++

	switch v := data.(type) {
	case MessageItem:
		s.messageToItem[v.Message.ID] = id
	case InFlightOperation:
		s.inFlightKeys[inFlightKey(v.Label, parentChatItemID)] = id
	case PendingToolCall:
		s.pendingToolCalls[v.ToolCall.ID] = id
	}
	return id, nil
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// IngestMessages bulk-inserts messages as MessageItems, preserving parent
// links: a message's ParentMessageID is resolved to the ChatItem id of the
// message it names, if already present in the store. Messages are ingested
// in order so a batch may reference ids ingested earlier in the same call.
// Each MessageItem takes its message's id as its ChatItem id, unless that id
// is empty or already taken by another item, in which case a fresh uuid is
// used.
func (s *ChatStore) IngestMessages(messages []chatmodel.Message) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		var parentItemID *string
		if msg.ParentMessageID != nil {
			if itemID, ok := s.messageToItem[*msg.ParentMessageID]; ok {
				parentItemID = &itemID
			}
		}
		itemID := msg.ID
		if _, taken := s.items[itemID]; itemID == "" || taken {
			itemID = uuid.NewString()
		}
		id, err := s.pushLocked(itemID, MessageItem{Message: msg}, parentItemID)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetByID returns a copy of the item with the given id.
func (s *ChatStore) GetByID(id string) (ChatItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	return item, ok
}

// Items returns a snapshot of all items in insertion order.
func (s *ChatStore) Items() []ChatItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatItem, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// AsItems is the UI-facing immutable snapshot; identical to Items but named
// separately to mark the read-only external contract a UI relies on instead
// of mutating the store directly.
func (s *ChatStore) AsItems() []ChatItem {
	return s.Items()
}

// Revision returns the current monotonically increasing revision counter.
func (s *ChatStore) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// UpdateMessage applies mutator to the AssistantMessage wrapped by the
// MessageItem with the given id, for streaming deltas. It is an error if
// the item is missing or is not an AssistantMessage.
func (s *ChatStore) UpdateMessage(id string, mutator func(*chatmodel.AssistantMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return &ErrNotFound{ID: id}
	}
	mi, ok := item.Data.(MessageItem)
	if !ok {
		return fmt.Errorf("chatstore: item %q is not a message", id)
	}
	am, ok := mi.Message.Data.(chatmodel.AssistantMessage)
	if !ok {
		return fmt.Errorf("chatstore: message %q is not an assistant message", id)
	}
	mutator(&am)
	mi.Message.Data = am
	item.Data = mi
	s.items[id] = item
	s.revision++
	return nil
}

// Lineage returns the transitive closure of ParentMessageID links starting
// from activeMessageID, following backward, including activeMessageID.
func (s *ChatStore) Lineage(activeMessageID string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lineageLocked(activeMessageID)
}

func (s *ChatStore) lineageLocked(activeMessageID string) (map[string]bool, error) {
	itemID, ok := s.messageToItem[activeMessageID]
	if !ok {
		return nil, &ErrNotFound{ID: activeMessageID}
	}
	lineage := make(map[string]bool)
	cur := activeMessageID
	curItemID := itemID
	for {
		lineage[cur] = true
		item := s.items[curItemID]
		mi := item.Data.(MessageItem)
		if mi.Message.ParentMessageID == nil {
			break
		}
		parentMsgID := *mi.Message.ParentMessageID
		parentItemID, ok := s.messageToItem[parentMsgID]
		if !ok {
			break
		}
		cur = parentMsgID
		curItemID = parentItemID
	}
	return lineage, nil
}

// VisibleItems returns, in insertion order, every ChatItem visible for the
// given active message: Message items in its lineage, and non-message items
// whose parent_chat_item_id chain reaches a lineage message or a root.
func (s *ChatStore) VisibleItems(activeMessageID string) ([]ChatItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lineage, err := s.lineageLocked(activeMessageID)
	if err != nil {
		return nil, err
	}

	visible := make(map[string]bool)
	var resolves func(id string) bool
	resolves = func(id string) bool {
		if v, ok := visible[id]; ok {
			return v
		}
		item := s.items[id]
		if mi, ok := item.Data.(MessageItem); ok {
			v := lineage[mi.Message.ID]
			visible[id] = v
			return v
		}
		if item.ParentChatItemID == nil {
			visible[id] = true
			return true
		}
		v := resolves(*item.ParentChatItemID)
		visible[id] = v
		return v
	}

	out := make([]ChatItem, 0, len(s.order))
	for _, id := range s.order {
		if resolves(id) {
			out = append(out, s.items[id])
		}
	}
	return out, nil
}

// PruneTo removes every item not in the lineage of messageID, used by
// edit_message to discard items orphaned by a branch. It rebuilds the
// order slice and bumps the revision once.
func (s *ChatStore) PruneTo(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lineage, err := s.lineageLocked(messageID)
	if err != nil {
		return err
	}

	keep := make(map[string]bool)
	var resolves func(id string) bool
	resolves = func(id string) bool {
		if v, ok := keep[id]; ok {
			return v
		}
		item := s.items[id]
		if mi, ok := item.Data.(MessageItem); ok {
			v := lineage[mi.Message.ID]
			keep[id] = v
			return v
		}
		if item.ParentChatItemID == nil {
			keep[id] = true
			return true
		}
		v := resolves(*item.ParentChatItemID)
		keep[id] = v
		return v
	}

	newOrder := make([]string, 0, len(s.order))
	for _, id := range s.order {
		if resolves(id) {
			newOrder = append(newOrder, id)
			continue
		}
		item := s.items[id]
		delete(s.items, id)
		switch v := item.Data.(type) {
		case MessageItem:
			delete(s.messageToItem, v.Message.ID)
		case InFlightOperation:
			delete(s.inFlightKeys, inFlightKey(v.Label, item.ParentChatItemID))
		case PendingToolCall:
			delete(s.pendingToolCalls, v.ToolCall.ID)
		}
	}
	s.order = newOrder
	s.revision++
	return nil
}

// ResolvePendingToolCall looks up the PendingToolCall item id for a given
// tool_call id, if one is outstanding.
func (s *ChatStore) ResolvePendingToolCall(toolCallID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.pendingToolCalls[toolCallID]
	return id, ok
}

// ReplacePendingToolCall replaces the PendingToolCall item for toolCallID
// with a MessageItem wrapping the given ToolMessage, preserving its id and
// parent. Returns ErrNotFound if no PendingToolCall is outstanding for that
// tool_call id.
func (s *ChatStore) ReplacePendingToolCall(toolCallID string, toolMessage chatmodel.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	itemID, ok := s.pendingToolCalls[toolCallID]
	if !ok {
		return &ErrNotFound{ID: toolCallID}
	}
	item := s.items[itemID]
	item.Data = MessageItem{Message: toolMessage}
	s.items[itemID] = item
	s.messageToItem[toolMessage.ID] = itemID
	delete(s.pendingToolCalls, toolCallID)
	s.revision++
	return nil
}

// RemoveInFlightOperation removes the InFlightOperation item with the given
// id once its operation completes.
func (s *ChatStore) RemoveInFlightOperation(itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[itemID]
	if !ok {
		return &ErrNotFound{ID: itemID}
	}
	ifo, ok := item.Data.(InFlightOperation)
	if !ok {
		return fmt.Errorf("chatstore: item %q is not an in-flight operation", itemID)
	}
	delete(s.inFlightKeys, inFlightKey(ifo.Label, item.ParentChatItemID))
	delete(s.items, itemID)
	newOrder := make([]string, 0, len(s.order)-1)
	for _, id := range s.order {
		if id != itemID {
			newOrder = append(newOrder, id)
		}
	}
	s.order = newOrder
	s.revision++
	return nil
}
