package workspace

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
)

// languageParser wraps a tree-sitter parser for the structural search
// tool. Grammars beyond Go and JavaScript/JSX are not vendored in the
// retrieved go-tree-sitter bindings used here, so ast_grep skips files whose
// extension maps to no grammar rather than guessing; a search whose language
// has no grammar matches nothing and returns no error.
type languageParser struct {
	parser *sitter.Parser
}

func newLanguageParser() *languageParser {
	return &languageParser{parser: sitter.NewParser()}
}

func (lp *languageParser) close() {
	lp.parser.Close()
}

func languageForFile(path, lang string) (*sitter.Language, error) {
	if lang != "" {
		return languageByName(lang)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".jsx", ".mjs":
		return javascript.GetLanguage(), nil
	case ".go":
		return golang.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("ast_grep: no grammar available for %s", path)
	}
}

func languageByName(name string) (*sitter.Language, error) {
	switch strings.ToLower(name) {
	case "javascript", "js", "jsx":
		return javascript.GetLanguage(), nil
	case "go", "golang":
		return golang.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("ast_grep: unsupported lang %q", name)
	}
}

// candidateNode is one declaration-level node (function, method) that
// ast_grep tests a compiled pattern against.
type candidateNode struct {
	startLine, startCol int
	endLine             int
	source              string
}

// declarationNodeTypes are the node kinds considered "top-level enough" to
// test a structural pattern against, per supported grammar.
var declarationNodeTypes = map[string]bool{
	"function_declaration": true,
	"method_declaration":   true,
	"func_literal":         true,
	"function":             true,
	"function_expression":  true,
	"arrow_function":       true,
	"class_declaration":    true,
}

func (lp *languageParser) parseDeclarations(ctx context.Context, path string, source []byte, lang string) ([]candidateNode, error) {
	language, err := languageForFile(path, lang)
	if err != nil {
		return nil, err
	}
	lp.parser.SetLanguage(language)
	tree, err := lp.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var out []candidateNode
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if declarationNodeTypes[n.Type()] {
			out = append(out, candidateNode{
				startLine: int(n.StartPoint().Row) + 1,
				startCol:  int(n.StartPoint().Column) + 1,
				endLine:   int(n.EndPoint().Row) + 1,
				source:    n.Content(source),
			})
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())
	return out, nil
}
