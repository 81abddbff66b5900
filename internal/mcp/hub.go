package mcp

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/conductorhq/conductor/internal/toolcatalog"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// Hub manages connections to multiple MCP servers and, once AttachCatalog
// has been called, keeps a toolcatalog.Catalog in sync with whichever tools
// those servers currently advertise.
type Hub struct {
	connections map[string]*McpConnection
	mu          sync.RWMutex
	configDir   string
	lastModTime time.Time
	catalog     *toolcatalog.Catalog
}

// McpConnection represents an active connection to an MCP server
type McpConnection struct {
	Name   string
	Client *client.Client
	Cmd    *exec.Cmd
	Tools  []mcp.Tool
}

// NewHub creates a new MCP Hub and starts watching configDir/mcp_settings.json
// for changes.
func NewHub(configDir string) *Hub {
	h := &Hub{
		connections: make(map[string]*McpConnection),
		configDir:   configDir,
	}
	h.StartWatcher()
	return h
}

// AttachCatalog registers every currently-connected server's tools into
// catalog and keeps it current as servers connect, reconnect, or are
// removed. Call once, before or after servers start connecting.
func (h *Hub) AttachCatalog(catalog *toolcatalog.Catalog) {
	h.mu.Lock()
	h.catalog = catalog
	conns := make([]*McpConnection, 0, len(h.connections))
	for _, conn := range h.connections {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		h.registerTools(conn)
	}
}

func (h *Hub) StartWatcher() {
	go func() {
		ticker := time.NewTicker(3 * time.Second)
		defer ticker.Stop()

		settingsPath := filepath.Join(h.configDir, "mcp_settings.json")

		if _, err := os.Stat(settingsPath); err == nil {
			h.LoadFromSettings(settingsPath)
		}

		for range ticker.C {
			info, err := os.Stat(settingsPath)
			if err != nil {
				continue
			}

			if info.ModTime().After(h.lastModTime) {
				h.LoadFromSettings(settingsPath)
			}
		}
	}()
}

func (h *Hub) LoadFromSettings(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("mcp: failed to read %s: %v", path, err)
		return
	}

	var settings McpSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		log.Printf("mcp: failed to parse %s: %v", path, err)
		return
	}

	// Update lastModTime immediately to avoid double loading.
	if info, statErr := os.Stat(path); statErr == nil {
		h.lastModTime = info.ModTime()
	}

	h.mu.Lock()
	var removed []*McpConnection
	for name, conn := range h.connections {
		if _, exists := settings.McpServers[name]; !exists {
			log.Printf("mcp: removing server %s", name)
			conn.Client.Close()
			delete(h.connections, name)
			removed = append(removed, conn)
		}
	}

	for name, config := range settings.McpServers {
		if config.Disabled {
			if conn, exists := h.connections[name]; exists {
				log.Printf("mcp: disabling server %s", name)
				conn.Client.Close()
				delete(h.connections, name)
				removed = append(removed, conn)
			}
			continue
		}

		if _, exists := h.connections[name]; !exists {
			go h.connectAsync(name, config)
		}
	}
	h.mu.Unlock()

	for _, conn := range removed {
		h.unregisterTools(conn)
	}
}

func (h *Hub) connectAsync(name string, config McpServerConfig) {
	log.Printf("mcp: connecting to server %s", name)
	if err := h.connectInternal(context.Background(), name, config); err != nil {
		log.Printf("mcp: failed to connect %s: %v", name, err)
	} else {
		log.Printf("mcp: connected to server %s", name)
	}
}

// Connect establishes a connection to an MCP server via stdio.
func (h *Hub) Connect(ctx context.Context, name string, config McpServerConfig) error {
	return h.connectInternal(ctx, name, config)
}

func (h *Hub) connectInternal(ctx context.Context, name string, config McpServerConfig) error {
	mcpClient, err := client.NewStdioMCPClient(config.Command, config.Args)
	if err != nil {
		return err
	}

	if err := mcpClient.Start(ctx); err != nil {
		return err
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = "2024-11-05"
	initReq.Params.Capabilities = mcp.ClientCapabilities{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "conductor",
		Version: "1.0.0",
	}

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		return err
	}

	ctxTools, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	listToolsResult, err := mcpClient.ListTools(ctxTools, mcp.ListToolsRequest{})

	tools := []mcp.Tool{}
	if listToolsResult != nil {
		tools = listToolsResult.Tools
	}

	conn := &McpConnection{
		Name:   name,
		Client: mcpClient,
		Tools:  tools,
	}

	h.mu.Lock()
	h.connections[name] = conn
	h.mu.Unlock()

	h.registerTools(conn)
	return nil
}

// registerTools wraps every tool conn advertises as a toolcatalog.Tool and
// registers it, if a catalog has been attached.
func (h *Hub) registerTools(conn *McpConnection) {
	h.mu.RLock()
	catalog := h.catalog
	h.mu.RUnlock()
	if catalog == nil {
		return
	}
	for _, tool := range conn.Tools {
		catalog.Register(newFederatedTool(h, conn.Name, tool))
	}
}

// unregisterTools removes every tool conn advertised from the attached
// catalog, if any.
func (h *Hub) unregisterTools(conn *McpConnection) {
	h.mu.RLock()
	catalog := h.catalog
	h.mu.RUnlock()
	if catalog == nil {
		return
	}
	for _, tool := range conn.Tools {
		catalog.Unregister(tool.Name)
	}
}

// GetTools returns a flat list of all tools from all servers
func (h *Hub) GetTools() []mcp.Tool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var allTools []mcp.Tool
	for _, conn := range h.connections {
		allTools = append(allTools, conn.Tools...)
	}
	return allTools
}

// CallTool executes a tool on whichever connected server advertises it.
func (h *Hub) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	h.mu.RLock()
	var targetConn *McpConnection
	for _, conn := range h.connections {
		for _, tool := range conn.Tools {
			if tool.Name == name {
				targetConn = conn
				break
			}
		}
		if targetConn != nil {
			break
		}
	}
	h.mu.RUnlock()

	if targetConn == nil {
		return nil, &notFoundError{name: name}
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	return targetConn.Client.CallTool(ctxWithTimeout, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
}

type notFoundError struct{ name string }

func (e *notFoundError) Error() string { return "mcp: no connected server advertises tool " + e.name }

// Close closes all connections and unregisters their tools from the
// attached catalog.
func (h *Hub) Close() error {
	h.mu.Lock()
	conns := make([]*McpConnection, 0, len(h.connections))
	for _, conn := range h.connections {
		conn.Client.Close()
		conns = append(conns, conn)
	}
	h.connections = make(map[string]*McpConnection)
	h.mu.Unlock()

	for _, conn := range conns {
		h.unregisterTools(conn)
	}
	return nil
}
