package manifest

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/loadmap/internal/loadable"
	"github.com/mvp-joe/loadmap/internal/modgraph"
	"github.com/mvp-joe/loadmap/internal/traverse"
)

// Extractor yields the loadable metadata of one module, or nil when absent.
type Extractor interface {
	Extract(ctx context.Context, m modgraph.Module) (*loadable.ActionMap, error)
}

// ExtractFunc adapts a plain function to the Extractor interface.
type ExtractFunc func(ctx context.Context, m modgraph.Module) (*loadable.ActionMap, error)

// Extract calls f(ctx, m).
func (f ExtractFunc) Extract(ctx context.Context, m modgraph.Module) (*loadable.ActionMap, error) {
	return f(ctx, m)
}

// ProgressReporter receives progress events during aggregation.
type ProgressReporter interface {
	OnTraversalComplete(modules, edges int)
	OnExtractionStart(total int)
	OnModuleExtracted(moduleID string)
	OnAggregationComplete(entries int, duration time.Duration)
	// OnAggregationFailed is called instead of OnAggregationComplete when
	// extraction fails after it started.
	OnAggregationFailed(err error)
}

// Result is a manifest together with the traversal that produced it.
type Result struct {
	Manifest  *Manifest
	Traversal *traverse.Result
}

// Aggregator builds manifests from entry modules.
type Aggregator struct {
	graph       modgraph.Graph
	extractor   Extractor
	concurrency int
	progress    ProgressReporter
	logger      *log.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithConcurrency bounds concurrent edge resolution and extraction.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithProgress configures progress reporting.
func WithProgress(progress ProgressReporter) Option {
	return func(a *Aggregator) {
		a.progress = progress
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *log.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAggregator creates an aggregator over a module graph.
func NewAggregator(graph modgraph.Graph, extractor Extractor, opts ...Option) *Aggregator {
	a := &Aggregator{
		graph:       graph,
		extractor:   extractor,
		concurrency: traverse.DefaultConcurrency,
		logger:      log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate builds the manifest of every module reachable from entries.
func (a *Aggregator) Aggregate(ctx context.Context, entries []modgraph.Module) (*Manifest, error) {
	result, err := a.Run(ctx, entries)
	if err != nil {
		return nil, err
	}
	return result.Manifest, nil
}

// Run traverses the graph from entries, extracts every reachable module
// concurrently and keeps the modules with present metadata, sorted by ID.
// Any traversal or extraction failure aborts the run; no partial manifest is
// returned.
func (a *Aggregator) Run(ctx context.Context, entries []modgraph.Module) (*Result, error) {
	startTime := time.Now()

	traversal, err := traverse.Walk(ctx, entries, a.graph,
		traverse.WithConcurrency(a.concurrency),
		traverse.WithLogger(a.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to traverse module graph: %w", err)
	}

	if a.progress != nil {
		a.progress.OnTraversalComplete(traversal.Len(), traversal.EdgeCount())
		a.progress.OnExtractionStart(traversal.Len())
	}

	var (
		mu        sync.Mutex
		collected []Entry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for _, m := range traversal.Modules {
		g.Go(func() error {
			am, err := a.extractor.Extract(gctx, m)
			if err != nil {
				return err
			}
			if a.progress != nil {
				a.progress.OnModuleExtracted(m.ID())
			}
			if am == nil {
				return nil
			}

			mu.Lock()
			collected = append(collected, Entry{Module: m.ID(), Actions: am})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if a.progress != nil {
			a.progress.OnAggregationFailed(err)
		}
		return nil, fmt.Errorf("failed to extract loadable metadata: %w", err)
	}

	manifest := newManifest(collected)

	duration := time.Since(startTime)
	a.logger.Debug("manifest built",
		"modules", traversal.Len(),
		"entries", manifest.Len(),
		"duration", duration,
	)
	if a.progress != nil {
		a.progress.OnAggregationComplete(manifest.Len(), duration)
	}

	return &Result{Manifest: manifest, Traversal: traversal}, nil
}
