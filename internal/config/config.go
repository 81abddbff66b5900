// Package config loads and persists the YAML settings file a Session
// Controller is built from: provider credentials and model selection,
// approval policy defaults, tool timeouts, and workspace roots.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderSettings selects the backend model and how to authenticate to it.
type ProviderSettings struct {
	Name      string `yaml:"name"`       // "anthropic" for now; kept open for future adapters
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key,omitempty"`
	APIKeyEnv string `yaml:"api_key_env,omitempty"` // read by ResolveAPIKey if APIKey is empty
	MaxTokens int    `yaml:"max_tokens"`
}

// ApprovalSettings seeds the approval.Policy a fresh session starts with.
type ApprovalSettings struct {
	Mode                string   `yaml:"mode"` // "automatic" | "interactive" | "deny_all"
	SessionAutoApproved  []string `yaml:"session_auto_approved,omitempty"`
}

// ToolSettings holds a per-invocation tool timeout (resolved by ToolTimeout)
// and a parallel-dispatch bound. Neither value is applied to the executor or
// to tool invocations anywhere in this module.
type ToolSettings struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	MaxParallel    int `yaml:"max_parallel"`
}

// CheckpointSettings controls the opt-in shadow-git snapshot package.
type CheckpointSettings struct {
	Enabled          bool   `yaml:"enabled"`
	OnWrites         bool   `yaml:"on_writes"`
	StorageDir       string `yaml:"storage_dir,omitempty"`
}

// Settings is the full on-disk configuration shape.
type Settings struct {
	Provider   ProviderSettings   `yaml:"provider"`
	Approval   ApprovalSettings   `yaml:"approval"`
	Tools      ToolSettings       `yaml:"tools"`
	Checkpoint CheckpointSettings `yaml:"checkpoint"`
	WorkspaceRoots []string       `yaml:"workspace_roots,omitempty"`
	SystemPrompt   string         `yaml:"system_prompt,omitempty"`
}

// ToolTimeout resolves Tools.TimeoutSeconds as a time.Duration, defaulting
// to 2 minutes when unset.
func (s Settings) ToolTimeout() time.Duration {
	if s.Tools.TimeoutSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(s.Tools.TimeoutSeconds) * time.Second
}

func defaultSettings() Settings {
	return Settings{
		Provider: ProviderSettings{
			Name:      "anthropic",
			Model:     "claude-sonnet-4-5",
			APIKeyEnv: "ANTHROPIC_API_KEY",
			MaxTokens: 4096,
		},
		Approval: ApprovalSettings{Mode: "interactive"},
		Tools:    ToolSettings{TimeoutSeconds: 120, MaxParallel: 4},
		Checkpoint: CheckpointSettings{
			Enabled:  true,
			OnWrites: true,
		},
	}
}

// Store guards the on-disk settings file and an in-memory copy.
type Store struct {
	mu       sync.RWMutex
	path     string
	settings Settings
}

// NewStore returns a Store rooted at $HOME/.conductor/settings.yaml,
// loading existing settings or writing out defaults if none exist yet.
func NewStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("config: resolve home dir: %w", err)
	}
	dir := filepath.Join(home, ".conductor")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("config: create config dir: %w", err)
	}
	return NewStoreAt(filepath.Join(dir, "settings.yaml"))
}

// NewStoreAt returns a Store backed by an explicit path, used by tests and
// by NewStore.
func NewStoreAt(path string) (*Store, error) {
	s := &Store{path: path, settings: defaultSettings()}
	if err := s.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
		if err := s.Save(); err != nil {
			return nil, fmt.Errorf("config: write default settings: %w", err)
		}
	}
	return s, nil
}

func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("config: parse %s: %w", s.path, err)
	}
	s.settings = settings
	return nil
}

func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := yaml.Marshal(s.settings)
	if err != nil {
		return fmt.Errorf("config: marshal settings: %w", err)
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update applies fn to the settings and persists the result.
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	fn(&s.settings)
	s.mu.Unlock()
	return s.Save()
}

// ResolveAPIKey returns the configured API key, falling back to the
// environment variable named by APIKeyEnv.
func (p ProviderSettings) ResolveAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		return os.Getenv(p.APIKeyEnv)
	}
	return ""
}
