package workspace

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// ignoreSet is a minimal gitignore-style pattern set: no third-party
// gitignore parser exists anywhere in the retrieved example pack, so this
// stays on stdlib filepath.Match (documented in DESIGN.md).
type ignoreSet struct {
	patterns []string
}

var defaultIgnored = []string{".git", "node_modules", ".conductor"}

func loadIgnoreSet(root string) *ignoreSet {
	set := &ignoreSet{patterns: append([]string{}, defaultIgnored...)}
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return set
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set.patterns = append(set.patterns, strings.TrimPrefix(line, "/"))
	}
	return set
}

// matches reports whether relPath (slash-separated, relative to root)
// should be ignored.
func (s *ignoreSet) matches(relPath string) bool {
	base := filepath.Base(relPath)
	for _, pat := range s.patterns {
		pat = strings.TrimSuffix(pat, "/")
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, relPath); ok {
			return true
		}
		if strings.HasPrefix(relPath, pat+"/") {
			return true
		}
	}
	return false
}
