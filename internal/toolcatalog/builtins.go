package toolcatalog

// RegisterBuiltins registers the eleven required built-in tools plus a fresh
// TodoStore, returning the store so the session layer can seed or inspect
// it independently of tool dispatch.
func RegisterBuiltins(catalog *Catalog, workingDir string) *TodoStore {
	todos := NewTodoStore()
	catalog.Register(NewViewTool())
	catalog.Register(NewLsTool())
	catalog.Register(NewGlobTool())
	catalog.Register(NewGrepTool())
	catalog.Register(NewAstGrepTool())
	catalog.Register(NewEditTool())
	catalog.Register(NewWriteTool())
	catalog.Register(NewBashTool(workingDir))
	catalog.Register(NewFetchTool())
	catalog.Register(NewTodoReadTool(todos))
	catalog.Register(NewTodoWriteTool(todos))
	return todos
}
