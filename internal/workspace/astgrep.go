package workspace

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// metavarPattern finds $UPPER_SNAKE placeholders in an ast_grep pattern.
var metavarPattern = regexp.MustCompile(`\$([A-Z][A-Z0-9_]*)`)

// compilePattern turns a structural pattern like "func $NAME()" into a
// regex over a declaration node's source text, with one named capture
// group per metavariable. Non-metavariable runs of whitespace match any
// amount of whitespace, matching how tree-sitter node text normalizes
// formatting differences.
func compilePattern(pattern string) (*regexp.Regexp, []string, error) {
	var names []string
	var b strings.Builder
	last := 0
	for _, loc := range metavarPattern.FindAllStringSubmatchIndex(pattern, -1) {
		literal := pattern[last:loc[0]]
		b.WriteString(literalToRegex(literal))
		name := pattern[loc[2]:loc[3]]
		names = append(names, name)
		b.WriteString(`(?P<` + sanitizeGroupName(name) + `>\w+)`)
		last = loc[1]
	}
	b.WriteString(literalToRegex(pattern[last:]))

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, nil, err
	}
	return re, names, nil
}

func sanitizeGroupName(name string) string {
	return "mv_" + strings.ToLower(name)
}

func literalToRegex(literal string) string {
	fields := strings.Fields(literal)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = regexp.QuoteMeta(f)
	}
	joined := strings.Join(parts, `\s+`)
	if strings.HasSuffix(literal, " ") || strings.HasSuffix(literal, "\n") || strings.HasSuffix(literal, "\t") {
		joined += `\s*`
	}
	return joined
}

// AstGrep performs a structural search with $METAVAR placeholders, scanning
// declaration-level nodes (functions, methods, classes) for a match.
func (w *LocalWorkspace) AstGrep(ctx OpContext, pattern, root, lang string) (AstGrepResult, error) {
	re, names, err := compilePattern(pattern)
	if err != nil {
		return AstGrepResult{}, err
	}
	start, err := w.resolve(root)
	if err != nil {
		return AstGrepResult{}, err
	}
	ignore := loadIgnoreSet(w.root)

	lp := newLanguageParser()
	defer lp.close()

	result := AstGrepResult{SearchCompleted: true}
	walkErr := filepath.Walk(start, func(p string, info os.FileInfo, err error) error {
		if ctx.cancelled() {
			return ErrCancelled
		}
		if err != nil || info.IsDir() {
			if info != nil && info.IsDir() {
				rel, _ := filepath.Rel(w.root, p)
				if ignore.matches(filepath.ToSlash(rel)) {
					return filepath.SkipDir
				}
			}
			return nil
		}
		rel, _ := filepath.Rel(w.root, p)
		rel = filepath.ToSlash(rel)
		if ignore.matches(rel) {
			return nil
		}
		if _, langErr := languageForFile(p, lang); langErr != nil {
			return nil
		}
		source, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		decls, err := lp.parseDeclarations(ctx.Ctx, p, source, lang)
		if err == ErrCancelled {
			return ErrCancelled
		}
		if err != nil {
			return nil
		}
		for _, d := range decls {
			loc := re.FindStringSubmatchIndex(d.source)
			if loc == nil {
				continue
			}
			context := contextSnippet(d.source)
			result.Matches = append(result.Matches, AstGrepMatch{
				Path:        rel,
				Line:        d.startLine,
				Column:      d.startCol,
				MatchedCode: d.source[loc[0]:loc[1]],
				Context:     context,
			})
		}
		return nil
	})
	if walkErr == ErrCancelled {
		result.SearchCompleted = false
	}
	_ = names
	return result, nil
}

func contextSnippet(source string) string {
	lines := strings.Split(source, "\n")
	if len(lines) <= 3 {
		return source
	}
	return strings.Join(lines[:3], "\n") + "\n..."
}
