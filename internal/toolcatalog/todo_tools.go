package toolcatalog

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/conductorhq/conductor/internal/chatmodel"
)

// TodoStore is the session-scoped ordered todo list backing
// todo_read/todo_write. RegisterBuiltins creates one instance and shares it
// between the todo_read and todo_write tools it registers.
type TodoStore struct {
	mu    sync.Mutex
	items []chatmodel.TodoItem
}

// NewTodoStore returns an empty TodoStore.
func NewTodoStore() *TodoStore { return &TodoStore{} }

// Read returns a copy of the current list.
func (s *TodoStore) Read() []chatmodel.TodoItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chatmodel.TodoItem, len(s.items))
	copy(out, s.items)
	return out
}

// Replace overwrites the list.
func (s *TodoStore) Replace(items []chatmodel.TodoItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
}

type TodoReadParams struct{}

type TodoReadTool struct {
	schema json.RawMessage
	Store  *TodoStore
}

func NewTodoReadTool(store *TodoStore) *TodoReadTool {
	return &TodoReadTool{schema: GenerateSchema(TodoReadParams{}), Store: store}
}

func (t *TodoReadTool) Name() string                     { return "todo_read" }
func (t *TodoReadTool) Description() string              { return "Read the session's current todo list." }
func (t *TodoReadTool) ParameterSchema() json.RawMessage { return t.schema }
func (t *TodoReadTool) RequiresApproval() bool           { return false }
func (t *TodoReadTool) Category() Category               { return Meta }

func (t *TodoReadTool) Execute(ctx context.Context, params json.RawMessage, ectx ExecContext) (chatmodel.ToolResult, *ToolError) {
	return chatmodel.TodoListResult{Items: t.Store.Read()}, nil
}

type TodoWriteParams struct {
	Items []chatmodel.TodoItem `json:"items" jsonschema:"required,description=Full replacement todo list, in order"`
}

type TodoWriteTool struct {
	schema json.RawMessage
	Store  *TodoStore
}

func NewTodoWriteTool(store *TodoStore) *TodoWriteTool {
	return &TodoWriteTool{schema: GenerateSchema(TodoWriteParams{}), Store: store}
}

func (t *TodoWriteTool) Name() string                     { return "todo_write" }
func (t *TodoWriteTool) Description() string              { return "Replace the session's todo list." }
func (t *TodoWriteTool) ParameterSchema() json.RawMessage { return t.schema }
func (t *TodoWriteTool) RequiresApproval() bool           { return false }
func (t *TodoWriteTool) Category() Category               { return Meta }

func (t *TodoWriteTool) Execute(ctx context.Context, params json.RawMessage, ectx ExecContext) (chatmodel.ToolResult, *ToolError) {
	var p TodoWriteParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &ToolError{Kind: ErrInvalidParameters, ToolName: t.Name(), Message: err.Error()}
	}
	t.Store.Replace(p.Items)
	return chatmodel.TodoListResult{Items: p.Items}, nil
}
