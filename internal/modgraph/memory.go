package modgraph

import (
	"context"
	"fmt"
	"sync"
)

// StaticModule is an in-memory module with fixed source.
type StaticModule struct {
	Name    string
	Type    Kind
	Content []byte
}

// NewScript creates an in-memory script module.
func NewScript(id, source string) *StaticModule {
	return &StaticModule{Name: id, Type: KindScript, Content: []byte(source)}
}

// NewAsset creates an in-memory non-script module.
func NewAsset(id string) *StaticModule {
	return &StaticModule{Name: id, Type: KindOther}
}

func (m *StaticModule) ID() string { return m.Name }

func (m *StaticModule) Kind() Kind { return m.Type }

func (m *StaticModule) Source(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.Content, nil
}

// MemoryGraph is a Graph backed by an adjacency list held in memory.
// It is safe for concurrent use.
type MemoryGraph struct {
	mu      sync.RWMutex
	modules map[string]Module
	edges   map[string][]string
}

// NewMemoryGraph creates an empty in-memory graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		modules: make(map[string]Module),
		edges:   make(map[string][]string),
	}
}

// Add registers modules. Re-adding an ID replaces the module.
func (g *MemoryGraph) Add(modules ...Module) *MemoryGraph {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range modules {
		g.modules[m.ID()] = m
	}
	return g
}

// Link adds ordered references from one module ID to others.
func (g *MemoryGraph) Link(from string, to ...string) *MemoryGraph {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges[from] = append(g.edges[from], to...)
	return g
}

// Module returns a registered module by ID.
func (g *MemoryGraph) Module(id string) (Module, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.modules[id]
	return m, ok
}

// Edges returns the modules referenced by m, in link order.
func (g *MemoryGraph) Edges(ctx context.Context, m Module) ([]Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := g.edges[m.ID()]
	out := make([]Module, 0, len(ids))
	for _, id := range ids {
		ref, ok := g.modules[id]
		if !ok {
			return nil, fmt.Errorf("module %s references unknown module %s", m.ID(), id)
		}
		out = append(out, ref)
	}
	return out, nil
}
