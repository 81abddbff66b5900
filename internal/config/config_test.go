package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStoreAtWritesDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	store, err := NewStoreAt(path)
	require.NoError(t, err)
	require.FileExists(t, path)

	settings := store.Get()
	require.Equal(t, "anthropic", settings.Provider.Name)
	require.Equal(t, "interactive", settings.Approval.Mode)
	require.Equal(t, 4, settings.Tools.MaxParallel)
}

func TestUpdatePersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	store, err := NewStoreAt(path)
	require.NoError(t, err)

	require.NoError(t, store.Update(func(s *Settings) {
		s.Provider.Model = "claude-opus-4"
		s.Approval.Mode = "automatic"
	}))

	reloaded, err := NewStoreAt(path)
	require.NoError(t, err)
	settings := reloaded.Get()
	require.Equal(t, "claude-opus-4", settings.Provider.Model)
	require.Equal(t, "automatic", settings.Approval.Mode)
}

func TestResolveAPIKeyFallsBackToEnv(t *testing.T) {
	t.Setenv("CONDUCTOR_TEST_KEY", "secret-value")
	p := ProviderSettings{APIKeyEnv: "CONDUCTOR_TEST_KEY"}
	require.Equal(t, "secret-value", p.ResolveAPIKey())

	p2 := ProviderSettings{APIKey: "explicit", APIKeyEnv: "CONDUCTOR_TEST_KEY"}
	require.Equal(t, "explicit", p2.ResolveAPIKey())
}

func TestNewStoreAtLoadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider:\n  name: anthropic\n  model: claude-x\napproval:\n  mode: deny_all\ntools:\n  timeout_seconds: 30\n  max_parallel: 2\ncheckpoint:\n  enabled: false\n"), 0o644))

	store, err := NewStoreAt(path)
	require.NoError(t, err)
	settings := store.Get()
	require.Equal(t, "claude-x", settings.Provider.Model)
	require.Equal(t, "deny_all", settings.Approval.Mode)
}
