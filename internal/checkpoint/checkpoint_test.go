package checkpoint

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func TestSnapshotAndRestoreRoundTrip(t *testing.T) {
	requireGit(t)

	workDir := t.TempDir()
	storageDir := t.TempDir()
	filePath := filepath.Join(workDir, "a.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("v1"), 0o644))

	store := New(workDir, storageDir)
	require.NoError(t, store.Init())

	hashV1, err := store.Snapshot("before edit")
	require.NoError(t, err)
	require.NotEmpty(t, hashV1)

	require.NoError(t, os.WriteFile(filePath, []byte("v2"), 0o644))
	_, err = store.Snapshot("after edit")
	require.NoError(t, err)

	require.NoError(t, store.Restore(hashV1))
	content, err := os.ReadFile(filePath)
	require.NoError(t, err)
	require.Equal(t, "v1", string(content))

	// Init's base snapshot plus the two labelled snapshots.
	require.Len(t, store.History(), 3)
}

func TestRestoreRemovesFilesWrittenAfterCheckpoint(t *testing.T) {
	requireGit(t)

	workDir := t.TempDir()
	storageDir := t.TempDir()
	store := New(workDir, storageDir)
	require.NoError(t, store.Init())

	hash, err := store.Snapshot("initial")
	require.NoError(t, err)

	newFile := filepath.Join(workDir, "new.txt")
	require.NoError(t, os.WriteFile(newFile, []byte("untracked after checkpoint"), 0o644))

	require.NoError(t, store.Restore(hash))
	_, statErr := os.Stat(newFile)
	require.True(t, os.IsNotExist(statErr))
}
