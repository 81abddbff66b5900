package workspace

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	maxReadBytes   = 256 * 1024
	maxLineLength  = 2000
	environmentTTL = 5 * time.Minute
)

// LocalWorkspace is a Workspace rooted at a directory on the local
// filesystem.
type LocalWorkspace struct {
	root  string
	locks *pathLocks

	envMu      sync.Mutex
	envCached  *Environment
	envAt      time.Time
	memoryFile string
}

// NewLocalWorkspace returns a LocalWorkspace rooted at root. memoryFile, if
// non-empty, is reported in Environment.MemoryFile when present on disk.
func NewLocalWorkspace(root, memoryFile string) *LocalWorkspace {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	return &LocalWorkspace{root: abs, locks: newPathLocks(), memoryFile: memoryFile}
}

func (w *LocalWorkspace) resolve(path string) (string, error) {
	if path == "" || path == "." {
		return w.root, nil
	}
	joined := filepath.Join(w.root, path)
	rel, err := filepath.Rel(w.root, joined)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("workspace: path %q escapes workspace root", path)
	}
	return joined, nil
}

// Environment returns the cached environment description, refreshing it if
// the TTL has elapsed.
func (w *LocalWorkspace) Environment(ctx OpContext) (Environment, error) {
	if ctx.cancelled() {
		return Environment{}, ErrCancelled
	}
	w.envMu.Lock()
	defer w.envMu.Unlock()

	if w.envCached != nil && time.Since(w.envAt) < environmentTTL {
		return *w.envCached, nil
	}

	env := Environment{
		WorkingDirectory: w.root,
		Platform:         runtime.GOOS,
		CurrentDate:      time.Now().Format("2006-01-02"),
	}
	if _, err := os.Stat(filepath.Join(w.root, ".git")); err == nil {
		vcs := "git"
		env.VCS = &vcs
	}
	if w.memoryFile != "" {
		if _, err := os.Stat(filepath.Join(w.root, w.memoryFile)); err == nil {
			mf := w.memoryFile
			env.MemoryFile = &mf
		}
	}
	env.DirectoryStructure = w.directoryStructure(3)

	w.envCached = &env
	w.envAt = time.Now()
	return env, nil
}

// InvalidateEnvironmentCache forces the next Environment call to refresh.
func (w *LocalWorkspace) InvalidateEnvironmentCache() {
	w.envMu.Lock()
	defer w.envMu.Unlock()
	w.envCached = nil
}

func (w *LocalWorkspace) directoryStructure(maxDepth int) string {
	ignore := loadIgnoreSet(w.root)
	var b strings.Builder
	var walk func(dir string, depth int)
	walk = func(dir string, depth int) {
		if depth > maxDepth {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			rel, _ := filepath.Rel(w.root, filepath.Join(dir, e.Name()))
			if ignore.matches(filepath.ToSlash(rel)) {
				continue
			}
			b.WriteString(strings.Repeat("  ", depth))
			b.WriteString(e.Name())
			if e.IsDir() {
				b.WriteString("/")
			}
			b.WriteString("\n")
			if e.IsDir() {
				walk(filepath.Join(dir, e.Name()), depth+1)
			}
		}
	}
	walk(w.root, 0)
	return b.String()
}

// ListFiles walks root ignore-aware, including dotfiles; directories are
// suffixed with "/".
func (w *LocalWorkspace) ListFiles(ctx OpContext, root string) ([]string, error) {
	start, err := w.resolve(root)
	if err != nil {
		return nil, err
	}
	ignore := loadIgnoreSet(w.root)

	var out []string
	var walk func(dir string) error
	walk = func(dir string) error {
		if ctx.cancelled() {
			return ErrCancelled
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil
		}
		for _, e := range entries {
			if ctx.cancelled() {
				return ErrCancelled
			}
			full := filepath.Join(dir, e.Name())
			rel, _ := filepath.Rel(w.root, full)
			rel = filepath.ToSlash(rel)
			if ignore.matches(rel) {
				continue
			}
			if e.IsDir() {
				out = append(out, rel+"/")
				if err := walk(full); err != nil {
					return err
				}
				continue
			}
			out = append(out, rel)
		}
		return nil
	}
	if err := walk(start); err != nil {
		return out, err
	}
	sort.Strings(out)
	return out, nil
}

// ReadFile reads path starting at startLine (1-indexed; 0 means from the
// top) for numLines lines (0 means until cap). Enforces a byte cap and
// per-line length cap, and refuses binary content past the cap.
func (w *LocalWorkspace) ReadFile(ctx OpContext, path string, startLine, numLines int) (string, int, bool, error) {
	if ctx.cancelled() {
		return "", 0, false, ErrCancelled
	}
	abs, err := w.resolve(path)
	if err != nil {
		return "", 0, false, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", 0, false, err
	}
	if len(data) > maxReadBytes && !utf8.Valid(data[:maxReadBytes]) {
		return "", 0, false, fmt.Errorf("workspace: %s appears to be binary and exceeds the read cap", path)
	}
	truncated := false
	if len(data) > maxReadBytes {
		data = data[:maxReadBytes]
		truncated = true
	}

	lines := strings.Split(string(data), "\n")
	total := len(lines)
	from := 0
	if startLine > 0 {
		from = startLine - 1
	}
	if from > total {
		from = total
	}
	to := total
	if numLines > 0 && from+numLines < total {
		to = from + numLines
	}
	selected := lines[from:to]
	for i, l := range selected {
		if len(l) > maxLineLength {
			selected[i] = l[:maxLineLength]
			truncated = true
		}
	}
	return strings.Join(selected, "\n"), len(selected), truncated, nil
}

// ListDirectory lists path at depth 1, directories before files.
func (w *LocalWorkspace) ListDirectory(ctx OpContext, path string) ([]DirEntry, error) {
	if ctx.cancelled() {
		return nil, ErrCancelled
	}
	abs, err := w.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}
	var dirs, files []DirEntry
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		de := DirEntry{Name: e.Name(), IsDir: e.IsDir(), Size: info.Size(), MTime: info.ModTime()}
		if e.IsDir() {
			dirs = append(dirs, de)
		} else {
			files = append(files, de)
		}
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return append(dirs, files...), nil
}

// Glob matches pattern rooted at the workspace root, returning
// deterministically sorted matches.
func (w *LocalWorkspace) Glob(ctx OpContext, pattern string) ([]string, error) {
	if ctx.cancelled() {
		return nil, ErrCancelled
	}
	matches, err := filepath.Glob(filepath.Join(w.root, pattern))
	if err != nil {
		return nil, err
	}
	ignore := loadIgnoreSet(w.root)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(w.root, m)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		if ignore.matches(rel) {
			continue
		}
		out = append(out, rel)
	}
	sort.Strings(out)
	return out, nil
}

// Metadata stats path.
func (w *LocalWorkspace) Metadata(ctx OpContext, path string) (FileMetadata, error) {
	if ctx.cancelled() {
		return FileMetadata{}, ErrCancelled
	}
	abs, err := w.resolve(path)
	if err != nil {
		return FileMetadata{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return FileMetadata{}, err
	}
	return FileMetadata{
		Path:  path,
		IsDir: info.IsDir(),
		Size:  info.Size(),
		MTime: info.ModTime(),
		Mode:  info.Mode().String(),
	}, nil
}

// WriteFile overwrites or creates path, creating parent directories as
// needed, serialized per absolute path.
func (w *LocalWorkspace) WriteFile(ctx OpContext, path string, content string) (bool, int, error) {
	if ctx.cancelled() {
		return false, 0, ErrCancelled
	}
	abs, err := w.resolve(path)
	if err != nil {
		return false, 0, err
	}

	release := w.locks.acquire(abs)
	defer release()

	if ctx.cancelled() {
		return false, 0, ErrCancelled
	}

	created := false
	if _, err := os.Stat(abs); os.IsNotExist(err) {
		created = true
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return false, 0, err
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return false, 0, err
	}
	w.InvalidateEnvironmentCache()
	return created, len(content), nil
}

// ApplyEdits applies edits to path atomically: each old_string must match
// uniquely after preceding edits are applied in order; an empty old_string
// is only valid as the first and only op when the file does not yet exist.
func (w *LocalWorkspace) ApplyEdits(ctx OpContext, path string, edits []EditOp) (string, int, error) {
	if ctx.cancelled() {
		return "", 0, ErrCancelled
	}
	abs, err := w.resolve(path)
	if err != nil {
		return "", 0, err
	}

	release := w.locks.acquire(abs)
	defer release()

	if ctx.cancelled() {
		return "", 0, ErrCancelled
	}

	var original string
	data, err := os.ReadFile(abs)
	switch {
	case err == nil:
		original = string(data)
	case os.IsNotExist(err):
		original = ""
	default:
		return "", 0, err
	}

	if len(edits) == 1 && edits[0].OldString == "" {
		if original != "" {
			return "", 0, fmt.Errorf("workspace: empty old_string only allowed when creating a new file")
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
			return "", 0, err
		}
		if err := os.WriteFile(abs, []byte(edits[0].NewString), 0644); err != nil {
			return "", 0, err
		}
		w.InvalidateEnvironmentCache()
		return unifiedDiff(original, edits[0].NewString), len(edits[0].NewString), nil
	}

	result := original
	for _, op := range edits {
		if ctx.cancelled() {
			return "", 0, ErrCancelled
		}
		if op.OldString == "" {
			return "", 0, fmt.Errorf("workspace: empty old_string is only allowed on the first op of a single-op creation")
		}
		count := strings.Count(result, op.OldString)
		if count == 0 {
			return "", 0, fmt.Errorf("workspace: old_string not found in %s", path)
		}
		if count > 1 {
			return "", 0, fmt.Errorf("workspace: found %d occurrences of old_string in %s, please provide more context", count, path)
		}
		result = strings.Replace(result, op.OldString, op.NewString, 1)
	}

	if err := os.WriteFile(abs, []byte(result), 0644); err != nil {
		return "", 0, err
	}
	w.InvalidateEnvironmentCache()
	return unifiedDiff(original, result), len(result), nil
}

func unifiedDiff(before, after string) string {
	if before == after {
		return ""
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "--- before\n+++ after\n")
	beforeLines := strings.Split(before, "\n")
	afterLines := strings.Split(after, "\n")
	for _, l := range beforeLines {
		fmt.Fprintf(&b, "-%s\n", l)
	}
	for _, l := range afterLines {
		fmt.Fprintf(&b, "+%s\n", l)
	}
	return b.String()
}
