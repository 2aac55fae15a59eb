package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/mvp-joe/loadmap/internal/config"
	"github.com/mvp-joe/loadmap/internal/extract"
	"github.com/mvp-joe/loadmap/internal/fsgraph"
	"github.com/mvp-joe/loadmap/internal/manifest"
	"github.com/mvp-joe/loadmap/internal/modgraph"
	"github.com/mvp-joe/loadmap/internal/parsers"
	"github.com/mvp-joe/loadmap/internal/storage"
)

// ErrNoEntries is returned when neither arguments nor config name an entry.
var ErrNoEntries = errors.New("no entry modules: pass entry files or set entries in .loadmap/config.yml")

// project wires the configured services for one project root.
type project struct {
	root      string
	cfg       *config.Config
	logger    *log.Logger
	cache     *parsers.Cache
	store     *storage.Store
	graph     *fsgraph.FSGraph
	extractor *extract.Extractor
}

// openProject loads configuration and builds the parse cache, module graph
// and extractor. useStore enables the persistent result store when the config
// allows it.
func openProject(root string, logger *log.Logger, useStore bool) (*project, error) {
	cfg, err := config.LoadConfigFromDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	cache, err := parsers.NewCache(parsers.NewTreeSitterParser(),
		parsers.WithCacheSize(cfg.Build.ParseCacheSize),
		parsers.WithCacheLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create parse cache: %w", err)
	}

	graph, err := fsgraph.New(root, cache,
		fsgraph.WithExtensions(cfg.Resolve.Extensions),
		fsgraph.WithIgnore(cfg.Resolve.Ignore),
		fsgraph.WithStrict(cfg.Resolve.Strict),
		fsgraph.WithLogger(logger),
	)
	if err != nil {
		cache.Close()
		return nil, err
	}

	p := &project{
		root:   root,
		cfg:    cfg,
		logger: logger,
		cache:  cache,
		graph:  graph,
	}

	opts := []extract.Option{extract.WithLogger(logger)}
	if useStore && cfg.Cache.Enabled {
		store, err := storage.Open(cfg.CachePath(root))
		if err != nil {
			// The store only saves work; builds still succeed without it.
			logger.Warn("result cache unavailable", "err", err)
		} else {
			p.store = store
			opts = append(opts, extract.WithStore(store))
		}
	}
	p.extractor = extract.New(cache, opts...)

	return p, nil
}

// Close releases the parse cache and result store.
func (p *project) Close() error {
	p.cache.Close()
	if p.store != nil {
		return p.store.Close()
	}
	return nil
}

// entries resolves entry arguments, falling back to configured entries.
// Arguments containing glob syntax are expanded against the project tree.
func (p *project) entries(args []string) ([]modgraph.Module, error) {
	specs := args
	if len(specs) == 0 {
		specs = p.cfg.Entries
	}
	if len(specs) == 0 {
		return nil, ErrNoEntries
	}

	var ids []string
	seen := make(map[string]bool)
	for _, spec := range specs {
		var matched []string
		if strings.ContainsAny(spec, "*?[{") {
			found, err := p.graph.Discover([]string{spec})
			if err != nil {
				return nil, err
			}
			if len(found) == 0 {
				p.logger.Warn("entry pattern matched no files", "pattern", spec)
			}
			matched = found
		} else {
			// Relative entries are relative to the project root.
			id := spec
			if filepath.IsAbs(spec) {
				var err error
				if id, err = p.graph.ModuleID(spec); err != nil {
					return nil, err
				}
			}
			matched = []string{filepath.ToSlash(id)}
		}
		for _, id := range matched {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil, ErrNoEntries
	}

	return p.graph.Entries(ids)
}

// aggregator creates an aggregator reporting to progress.
func (p *project) aggregator(progress manifest.ProgressReporter) *manifest.Aggregator {
	opts := []manifest.Option{
		manifest.WithConcurrency(p.cfg.Build.Concurrency),
		manifest.WithLogger(p.logger),
	}
	if progress != nil {
		opts = append(opts, manifest.WithProgress(progress))
	}
	return manifest.NewAggregator(p.graph, p.extractor, opts...)
}

// invalidate drops cached parses for changed files. Files outside the root
// or excluded from the graph were never parsed and are skipped.
func (p *project) invalidate(files []string) {
	for _, f := range files {
		id, err := p.graph.ModuleID(f)
		if err != nil || p.graph.Ignored(id) {
			continue
		}
		p.cache.Invalidate(id)
		p.logger.Debug("invalidated module", "module", id)
	}
}

// writeDOT writes the traversal graph to path.
func writeDOT(path string, result *manifest.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create DOT file: %w", err)
	}
	if err := result.Traversal.WriteDOT(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// build runs one aggregation and writes its artifacts.
func (p *project) build(ctx context.Context, args []string, progress manifest.ProgressReporter, dotPath string) (*manifest.Result, error) {
	entries, err := p.entries(args)
	if err != nil {
		return nil, err
	}
	defer p.cache.EndBuild()

	result, err := p.aggregator(progress).Run(ctx, entries)
	if err != nil {
		return nil, err
	}

	outPath := p.cfg.OutputPath(p.root)
	if err := manifest.Write(outPath, result.Manifest); err != nil {
		return nil, err
	}
	p.logger.Debug("manifest written", "path", outPath, "entries", result.Manifest.Len())

	if dotPath != "" {
		if err := writeDOT(dotPath, result); err != nil {
			return nil, err
		}
	}

	if p.store != nil {
		keep := make([]string, len(result.Traversal.Modules))
		for i, m := range result.Traversal.Modules {
			keep[i] = m.ID()
		}
		if removed, err := p.store.Prune(ctx, keep); err != nil {
			p.logger.Warn("failed to prune result cache", "err", err)
		} else if removed > 0 {
			p.logger.Debug("pruned result cache", "removed", removed)
		}
	}

	return result, nil
}
