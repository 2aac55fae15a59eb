package traverse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dominikbraun/graph"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/mvp-joe/loadmap/internal/modgraph"
)

// DefaultConcurrency bounds concurrent edge resolution when no option is given.
const DefaultConcurrency = 8

// ErrNoEntries is returned when Walk is called without entry modules.
var ErrNoEntries = errors.New("no entry modules")

// GraphError reports a failed edge resolution for one module.
type GraphError struct {
	Module string
	Err    error
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("resolve references of module %s: %v", e.Module, e.Err)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// Result is the reachable module set discovered by Walk.
type Result struct {
	// Modules holds every reachable module exactly once, sorted by ID.
	Modules []modgraph.Module

	// Graph records the discovered reference edges keyed by module ID.
	Graph graph.Graph[string, string]
}

// Len returns the number of reachable modules.
func (r *Result) Len() int {
	return len(r.Modules)
}

type options struct {
	concurrency int
	logger      *log.Logger
}

// Option configures Walk.
type Option func(*options)

// WithConcurrency bounds the number of in-flight edge resolutions.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// walker holds the shared state of one traversal.
type walker struct {
	edges  modgraph.Graph
	sem    *semaphore.Weighted
	group  *errgroup.Group
	ctx    context.Context
	logger *log.Logger

	mu      sync.Mutex // Protects visited and graph
	visited map[string]modgraph.Module
	graph   graph.Graph[string, string]
}

// Walk visits every module reachable from entries, expanding each distinct
// module ID exactly once. Edge resolution for sibling modules runs concurrently.
// The first edge resolution failure cancels the walk and is returned as a
// *GraphError; no partial result is returned.
func Walk(ctx context.Context, entries []modgraph.Module, edges modgraph.Graph, opts ...Option) (*Result, error) {
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}

	o := options{
		concurrency: DefaultConcurrency,
		logger:      log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(&o)
	}

	group, gctx := errgroup.WithContext(ctx)
	w := &walker{
		edges:   edges,
		sem:     semaphore.NewWeighted(int64(o.concurrency)),
		group:   group,
		ctx:     gctx,
		logger:  o.logger,
		visited: make(map[string]modgraph.Module),
		graph:   graph.New(graph.StringHash, graph.Directed()),
	}

	for _, entry := range entries {
		w.visit(entry)
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	modules := make([]modgraph.Module, 0, len(w.visited))
	for _, m := range w.visited {
		modules = append(modules, m)
	}
	sort.Slice(modules, func(i, j int) bool {
		return modules[i].ID() < modules[j].ID()
	})

	w.logger.Debug("traversal complete", "entries", len(entries), "modules", len(modules))

	return &Result{Modules: modules, Graph: w.graph}, nil
}

// visit marks m as visited and schedules its expansion.
// Returns without scheduling if m was already visited.
func (w *walker) visit(m modgraph.Module) {
	id := m.ID()

	w.mu.Lock()
	if _, seen := w.visited[id]; seen {
		w.mu.Unlock()
		return
	}
	w.visited[id] = m
	_ = w.graph.AddVertex(id)
	w.mu.Unlock()

	w.group.Go(func() error {
		return w.expand(m)
	})
}

// expand resolves the outgoing references of m and visits each of them.
func (w *walker) expand(m modgraph.Module) error {
	if err := w.sem.Acquire(w.ctx, 1); err != nil {
		return err
	}
	refs, err := w.edges.Edges(w.ctx, m)
	w.sem.Release(1)

	if err != nil {
		// Cancellation caused by a sibling failure is not this module's fault.
		if w.ctx.Err() != nil {
			return w.ctx.Err()
		}
		return &GraphError{Module: m.ID(), Err: err}
	}

	for _, ref := range refs {
		if ref == nil {
			continue
		}
		w.visit(ref)
		w.addEdge(m.ID(), ref.ID())
	}
	return nil
}

func (w *walker) addEdge(from, to string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.graph.AddEdge(from, to); err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
		w.logger.Debug("skipping edge", "from", from, "to", to, "err", err)
	}
}
