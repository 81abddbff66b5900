package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestWorkspace(t *testing.T) (*LocalWorkspace, string) {
	t.Helper()
	dir := t.TempDir()
	return NewLocalWorkspace(dir, "CONDUCTOR.md"), dir
}

func opCtx() OpContext {
	return OpContext{OpID: "test", Ctx: context.Background()}
}

func TestReadFileHonorsLineWindow(t *testing.T) {
	ws, dir := newTestWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a\nb\nc\n"), 0644))

	content, lineCount, truncated, err := ws.ReadFile(opCtx(), "a.txt", 2, 1)
	require.NoError(t, err)
	require.Equal(t, "b", content)
	require.Equal(t, 1, lineCount)
	require.False(t, truncated)
}

func TestWriteFileCreatesParentDirs(t *testing.T) {
	ws, dir := newTestWorkspace(t)
	created, n, err := ws.WriteFile(opCtx(), "nested/dir/file.txt", "hello")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, 5, n)

	data, err := os.ReadFile(filepath.Join(dir, "nested/dir/file.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestApplyEditsRequiresUniqueMatch(t *testing.T) {
	ws, dir := newTestWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "m.go"), []byte("foo\nfoo\n"), 0644))

	_, _, err := ws.ApplyEdits(opCtx(), "m.go", []EditOp{{OldString: "foo", NewString: "bar"}})
	require.Error(t, err)
}

func TestApplyEditsAppliesUniqueMatch(t *testing.T) {
	ws, dir := newTestWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "m.go"), []byte("foo\nbaz\n"), 0644))

	_, n, err := ws.ApplyEdits(opCtx(), "m.go", []EditOp{{OldString: "foo", NewString: "bar"}})
	require.NoError(t, err)
	require.Greater(t, n, 0)

	data, _ := os.ReadFile(filepath.Join(dir, "m.go"))
	require.Equal(t, "bar\nbaz\n", string(data))
}

func TestApplyEditsEmptyOldStringOnlyForCreation(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	_, _, err := ws.ApplyEdits(opCtx(), "new.go", []EditOp{{OldString: "", NewString: "package main\n"}})
	require.NoError(t, err)
}

func TestGlobSortsDeterministically(t *testing.T) {
	ws, dir := newTestWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.go"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte(""), 0644))

	matches, err := ws.Glob(opCtx(), "*.go")
	require.NoError(t, err)
	require.Equal(t, []string{"a.go", "b.go"}, matches)
}

func TestGrepFindsMatches(t *testing.T) {
	ws, dir := newTestWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("// TODO: fix\npackage a\n"), 0644))

	result, err := ws.Grep(opCtx(), "TODO", ".")
	require.NoError(t, err)
	require.True(t, result.SearchCompleted)
	require.Len(t, result.Matches, 1)
	require.Equal(t, "a.go", result.Matches[0].Path)
}

func TestGrepCancellation(t *testing.T) {
	ws, dir := newTestWorkspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("TODO\n"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := ws.Grep(OpContext{OpID: "x", Ctx: ctx}, "TODO", ".")
	require.NoError(t, err)
	require.False(t, result.SearchCompleted)
}

func TestListFilesIncludesDotfilesAndSuffixesDirs(t *testing.T) {
	ws, dir := newTestWorkspace(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(""), 0644))

	files, err := ws.ListFiles(opCtx(), ".")
	require.NoError(t, err)
	require.Contains(t, files, ".env")
	require.Contains(t, files, "sub/")
}

func TestEnvironmentCacheTTL(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	env1, err := ws.Environment(opCtx())
	require.NoError(t, err)
	env2, err := ws.Environment(opCtx())
	require.NoError(t, err)
	require.Equal(t, env1.CurrentDate, env2.CurrentDate)

	ws.InvalidateEnvironmentCache()
	env3, err := ws.Environment(opCtx())
	require.NoError(t, err)
	require.Equal(t, env1.WorkingDirectory, env3.WorkingDirectory)
}
