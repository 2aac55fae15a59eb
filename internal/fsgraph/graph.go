// Package fsgraph builds a module graph from JavaScript and TypeScript files
// on disk. Edges are the string-literal specifiers of static imports,
// re-exports, dynamic import() calls and require() calls, resolved the way a
// bundler resolves relative paths.
package fsgraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/mvp-joe/loadmap/internal/modgraph"
	"github.com/mvp-joe/loadmap/internal/parsers"
)

var (
	// ErrOutsideRoot is returned for paths that escape the graph root.
	ErrOutsideRoot = errors.New("path is outside the project root")

	// ErrIgnored is returned when an entry matches an ignore pattern.
	ErrIgnored = errors.New("path is ignored")
)

// DefaultExtensions is the probing order used to resolve extensionless
// specifiers.
var DefaultExtensions = []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx", ".mts", ".cts", ".json"}

// UnresolvedError reports a relative specifier that matched no file.
type UnresolvedError struct {
	Importer  string
	Specifier string
	Line      int
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("%s:%d: cannot resolve %q", e.Importer, e.Line, e.Specifier)
}

// FSGraph is a modgraph.Graph over the files below a root directory.
// Script modules are parsed through the shared parse service, so a parse
// cache lets edge discovery and extraction share one parse per module.
type FSGraph struct {
	root       string
	parser     parsers.Service
	extensions []string
	ignore     patternSet
	strict     bool
	logger     *log.Logger

	mu    sync.Mutex
	files map[string]*File
}

// Option configures an FSGraph.
type Option func(*graphOptions)

type graphOptions struct {
	extensions []string
	ignore     []string
	strict     bool
	logger     *log.Logger
}

// WithExtensions sets the probing order for extensionless specifiers.
func WithExtensions(extensions []string) Option {
	return func(o *graphOptions) {
		if len(extensions) > 0 {
			o.extensions = extensions
		}
	}
}

// WithIgnore drops modules whose IDs match any of the glob patterns.
func WithIgnore(patterns []string) Option {
	return func(o *graphOptions) {
		o.ignore = patterns
	}
}

// WithStrict makes unresolved relative specifiers fail the traversal.
func WithStrict(strict bool) Option {
	return func(o *graphOptions) {
		o.strict = strict
	}
}

// WithLogger sets the logger used for resolution warnings.
func WithLogger(logger *log.Logger) Option {
	return func(o *graphOptions) {
		o.logger = logger
	}
}

// New creates a graph rooted at root.
func New(root string, parser parsers.Service, opts ...Option) (*FSGraph, error) {
	o := graphOptions{extensions: DefaultExtensions}
	for _, opt := range opts {
		opt(&o)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", absRoot)
	}

	ignore, err := compilePatterns(o.ignore)
	if err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &FSGraph{
		root:       absRoot,
		parser:     parser,
		extensions: o.extensions,
		ignore:     ignore,
		strict:     o.strict,
		logger:     logger,
		files:      make(map[string]*File),
	}, nil
}

// Root returns the absolute root directory.
func (g *FSGraph) Root() string {
	return g.root
}

// ModuleID converts a file path (absolute or relative to the working
// directory) to a module ID.
func (g *FSGraph) ModuleID(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(g.root, abs)
	if err != nil {
		return "", err
	}
	id := filepath.ToSlash(rel)
	if id == ".." || strings.HasPrefix(id, "../") {
		return "", fmt.Errorf("%s: %w", p, ErrOutsideRoot)
	}
	return id, nil
}

// Module returns the module for an entry, given as an ID relative to the root.
func (g *FSGraph) Module(id string) (*File, error) {
	id = path.Clean(filepath.ToSlash(id))
	if id == ".." || strings.HasPrefix(id, "../") || path.IsAbs(id) {
		return nil, fmt.Errorf("%s: %w", id, ErrOutsideRoot)
	}
	if g.isIgnored(id) {
		return nil, fmt.Errorf("%s: %w", id, ErrIgnored)
	}

	info, err := os.Stat(g.abs(id))
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", id, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("entry %s is a directory", id)
	}
	return g.file(id), nil
}

// Entries resolves entry IDs to modules.
func (g *FSGraph) Entries(ids []string) ([]modgraph.Module, error) {
	modules := make([]modgraph.Module, 0, len(ids))
	for _, id := range ids {
		m, err := g.Module(id)
		if err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, nil
}

// Edges returns the modules referenced by m. Non-script modules have no
// edges. Bare specifiers (packages) are external and skipped.
func (g *FSGraph) Edges(ctx context.Context, m modgraph.Module) ([]modgraph.Module, error) {
	if m.Kind() != modgraph.KindScript {
		return nil, nil
	}

	src, ok := m.(modgraph.SourceModule)
	if !ok {
		return nil, fmt.Errorf("module %s does not expose its source", m.ID())
	}

	prog, err := g.parser.Parse(ctx, src)
	if err != nil {
		return nil, err
	}
	imports := parsers.Imports(prog)
	prog.Release()

	var (
		edges []modgraph.Module
		seen  = make(map[string]bool)
	)
	for _, imp := range imports {
		id, ok := g.resolve(m.ID(), imp.Specifier)
		if !ok {
			if !isRelative(imp.Specifier) {
				continue
			}
			unresolved := &UnresolvedError{Importer: m.ID(), Specifier: imp.Specifier, Line: imp.Line}
			if g.strict {
				return nil, unresolved
			}
			g.logger.Warn("unresolved import", "module", m.ID(), "specifier", imp.Specifier, "line", imp.Line)
			continue
		}

		if seen[id] {
			continue
		}
		seen[id] = true

		if g.isIgnored(id) {
			g.logger.Debug("skipping ignored module", "module", id, "importer", m.ID())
			continue
		}
		edges = append(edges, g.file(id))
	}
	return edges, nil
}

// file interns File values so every reference to an ID shares one module.
func (g *FSGraph) file(id string) *File {
	g.mu.Lock()
	defer g.mu.Unlock()

	if f, ok := g.files[id]; ok {
		return f
	}
	f := newFile(id, g.abs(id))
	g.files[id] = f
	return f
}

func (g *FSGraph) abs(id string) string {
	return filepath.Join(g.root, filepath.FromSlash(id))
}
