package workspace

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// Grep scans root for lines matching pattern, respecting ignore files.
// Matches are ordered by file mtime descending, then path ascending. On
// cancellation it returns whatever was found so far with SearchCompleted
// false.
func (w *LocalWorkspace) Grep(ctx OpContext, pattern, root string) (GrepResult, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return GrepResult{}, err
	}
	start, err := w.resolve(root)
	if err != nil {
		return GrepResult{}, err
	}
	ignore := loadIgnoreSet(w.root)

	type candidate struct {
		abs   string
		rel   string
		mtime int64
	}
	var candidates []candidate

	walkErr := filepath.Walk(start, func(p string, info os.FileInfo, err error) error {
		if ctx.cancelled() {
			return ErrCancelled
		}
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(w.root, p)
		rel = filepath.ToSlash(rel)
		if ignore.matches(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		candidates = append(candidates, candidate{abs: p, rel: rel, mtime: info.ModTime().UnixNano()})
		return nil
	})

	cancelledDuringWalk := walkErr == ErrCancelled

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].mtime != candidates[j].mtime {
			return candidates[i].mtime > candidates[j].mtime
		}
		return candidates[i].rel < candidates[j].rel
	})

	result := GrepResult{SearchCompleted: !cancelledDuringWalk}
	for _, c := range candidates {
		if ctx.cancelled() {
			result.SearchCompleted = false
			break
		}
		result.TotalFilesSearched++
		matches, err := grepFile(c.abs, c.rel, re, ctx)
		if err == ErrCancelled {
			result.SearchCompleted = false
			break
		}
		result.Matches = append(result.Matches, matches...)
	}
	return result, nil
}

func grepFile(abs, rel string, re *regexp.Regexp, ctx OpContext) ([]GrepMatch, error) {
	f, err := os.Open(abs)
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	var matches []GrepMatch
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		if ctx.cancelled() {
			return matches, ErrCancelled
		}
		lineNum++
		line := scanner.Text()
		if re.MatchString(line) {
			matches = append(matches, GrepMatch{Path: rel, Line: lineNum, Text: line})
		}
	}
	return matches, nil
}
