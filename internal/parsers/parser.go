package parsers

import (
	"context"
	"fmt"
	"path"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
	typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/mvp-joe/loadmap/internal/modgraph"
)

const (
	LanguageTypeScript = "typescript"
	LanguageTSX        = "tsx"
)

// ParseError reports a script module whose source could not be parsed.
type ParseError struct {
	Module string
	Line   int // 1-indexed, 0 if unknown
	Column int // 1-indexed, 0 if unknown
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("failed to parse module %s at %d:%d: %v", e.Module, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("failed to parse module %s: %v", e.Module, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Service produces parsed programs for script modules.
// Callers must Release every returned Program.
type Service interface {
	Parse(ctx context.Context, m modgraph.SourceModule) (*Program, error)
}

// TreeSitterParser parses JavaScript and TypeScript modules with tree-sitter.
// It is safe for concurrent use; each call creates its own parser instance.
type TreeSitterParser struct {
	typescript *sitter.Language
	tsx        *sitter.Language
}

// NewTreeSitterParser creates a new tree-sitter backed parse service.
func NewTreeSitterParser() *TreeSitterParser {
	return &TreeSitterParser{
		typescript: sitter.NewLanguage(typescript.LanguageTypescript()),
		tsx:        sitter.NewLanguage(typescript.LanguageTSX()),
	}
}

// LanguageFor picks the grammar for a module path. Plain TypeScript files use
// the TypeScript grammar, where `<T>expr` casts are legal; everything else
// (including JavaScript) uses the TSX grammar so JSX parses.
func LanguageFor(modulePath string) string {
	switch strings.ToLower(path.Ext(modulePath)) {
	case ".ts", ".mts", ".cts":
		return LanguageTypeScript
	default:
		return LanguageTSX
	}
}

// Parse reads and parses the module source. A tree containing syntax errors
// is reported as a *ParseError.
func (p *TreeSitterParser) Parse(ctx context.Context, m modgraph.SourceModule) (*Program, error) {
	source, err := m.Source(ctx)
	if err != nil {
		return nil, &ParseError{Module: m.ID(), Err: fmt.Errorf("failed to read source: %w", err)}
	}
	return p.ParseSource(ctx, m.ID(), source)
}

// ParseSource parses source as the module identified by moduleID.
func (p *TreeSitterParser) ParseSource(ctx context.Context, moduleID string, source []byte) (*Program, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lang := LanguageFor(moduleID)
	language := p.tsx
	if lang == LanguageTypeScript {
		language = p.typescript
	}

	parser := sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(language); err != nil {
		return nil, &ParseError{Module: moduleID, Err: fmt.Errorf("failed to set %s language: %w", lang, err)}
	}

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, &ParseError{Module: moduleID, Err: fmt.Errorf("%s parser returned no tree", lang)}
	}

	root := tree.RootNode()
	if root.HasError() {
		perr := &ParseError{Module: moduleID, Err: fmt.Errorf("invalid %s syntax", lang)}
		if bad := firstError(root); bad != nil {
			pos := bad.StartPosition()
			perr.Line = int(pos.Row) + 1
			perr.Column = int(pos.Column) + 1
			if bad.IsMissing() {
				perr.Err = fmt.Errorf("invalid %s syntax: missing %s", lang, bad.Kind())
			}
		}
		tree.Close()
		return nil, perr
	}

	return newProgram(moduleID, lang, source, tree), nil
}
