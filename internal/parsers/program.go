package parsers

import (
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Program is the parsed syntax tree of one script module.
//
// A Program is reference counted: every holder obtained from a Service must
// call Release when done. The underlying tree is closed once the last holder
// releases it and no cache retains it.
type Program struct {
	ModuleID string
	Language string
	Source   []byte

	mu       sync.Mutex
	tree     *sitter.Tree
	refs     int
	retained bool // held by the bounded cache
	pinned   bool // held by the current build
	closed   bool
}

func newProgram(moduleID, language string, source []byte, tree *sitter.Tree) *Program {
	return &Program{
		ModuleID: moduleID,
		Language: language,
		Source:   source,
		tree:     tree,
		refs:     1,
	}
}

// Root returns the root node of the syntax tree.
func (p *Program) Root() *sitter.Node {
	return p.tree.RootNode()
}

// Text returns the source text covered by node.
func (p *Program) Text(node *sitter.Node) string {
	return extractNodeText(node, p.Source)
}

// Release drops one reference to the program.
func (p *Program) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refs > 0 {
		p.refs--
	}
	p.closeIfUnusedLocked()
}

// acquire adds a reference. Returns false if the tree is already closed.
func (p *Program) acquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.refs++
	return true
}

// retain marks the program as held by a cache.
func (p *Program) retain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retained = true
}

// pin marks the program as held until the current build ends.
func (p *Program) pin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pinned = true
}

// unpin drops the build's hold on the program.
func (p *Program) unpin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pinned = false
	p.closeIfUnusedLocked()
}

// evict drops the cache's hold on the program.
func (p *Program) evict() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retained = false
	p.closeIfUnusedLocked()
}

func (p *Program) closeIfUnusedLocked() {
	if p.closed || p.retained || p.pinned || p.refs > 0 {
		return
	}
	p.closed = true
	if p.tree != nil {
		p.tree.Close()
	}
}
