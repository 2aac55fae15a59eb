package parsers

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/maypok86/otter"
	"golang.org/x/sync/singleflight"

	"github.com/mvp-joe/loadmap/internal/modgraph"
)

// DefaultCacheSize is the number of parsed programs kept between builds by
// default.
const DefaultCacheSize = 4096

// CacheStats counts parse cache activity.
type CacheStats struct {
	Hits   int64
	Parses int64
}

// Cache memoizes a parse Service by module ID.
//
// Within one build every program is kept until EndBuild, however many there
// are, so each module ID is parsed at most once per build. The bounded otter
// cache decides which programs carry over to the next build. Concurrent
// callers for the same ID share one in-flight parse. Only successful parses
// are cached, so a failed parse never poisons later calls.
type Cache struct {
	parser Service
	cache  otter.Cache[string, *Program]
	flight singleflight.Group
	logger *log.Logger

	mu     sync.Mutex
	pinned map[string]*Program

	hits   atomic.Int64
	parses atomic.Int64
}

// CacheOption configures a Cache.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	size   int
	logger *log.Logger
}

// WithCacheSize sets the maximum number of programs kept between builds.
func WithCacheSize(size int) CacheOption {
	return func(o *cacheOptions) {
		if size > 0 {
			o.size = size
		}
	}
}

// WithCacheLogger sets the logger used for debug output.
func WithCacheLogger(logger *log.Logger) CacheOption {
	return func(o *cacheOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewCache wraps parser with a bounded, concurrency-safe memo.
func NewCache(parser Service, opts ...CacheOption) (*Cache, error) {
	o := cacheOptions{
		size:   DefaultCacheSize,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(&o)
	}

	cache, err := otter.MustBuilder[string, *Program](o.size).
		DeletionListener(func(key string, value *Program, cause otter.DeletionCause) {
			value.evict()
		}).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build parse cache: %w", err)
	}

	return &Cache{
		parser: parser,
		cache:  cache,
		logger: o.logger,
		pinned: make(map[string]*Program),
	}, nil
}

// Parse returns the program for m, parsing it at most once per module ID
// within a build. The caller must Release the returned program.
//
// A caller whose ctx ends stops waiting, but a parse other callers are
// waiting on runs to completion.
func (c *Cache) Parse(ctx context.Context, m modgraph.SourceModule) (*Program, error) {
	id := m.ID()

	for {
		if prog, ok := c.lookup(id); ok {
			c.hits.Add(1)
			return prog, nil
		}

		ch := c.flight.DoChan(id, func() (interface{}, error) {
			// A concurrent flight may have finished between lookup and DoChan.
			if prog, ok := c.lookup(id); ok {
				prog.Release()
				return prog, nil
			}

			prog, err := c.parser.Parse(context.WithoutCancel(ctx), m)
			if err != nil {
				return nil, err
			}
			c.parses.Add(1)
			c.logger.Debug("parsed module", "module", id, "language", prog.Language)

			c.store(id, prog)
			return prog, nil
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res = <-ch:
		}
		if res.Err != nil {
			return nil, res.Err
		}

		prog := res.Val.(*Program)
		if prog.acquire() {
			return prog, nil
		}
		// Invalidated and closed before we could take a reference; parse again.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// Invalidate drops the cached program for a module ID.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	prog, ok := c.pinned[id]
	delete(c.pinned, id)
	c.mu.Unlock()

	if ok {
		prog.unpin()
	}
	c.cache.Delete(id)
}

// EndBuild releases the current build's hold on every program it used.
// Programs stay available afterwards only while the bounded cache retains
// them.
func (c *Cache) EndBuild() {
	c.mu.Lock()
	pinned := c.pinned
	c.pinned = make(map[string]*Program)
	c.mu.Unlock()

	for _, prog := range pinned {
		prog.unpin()
	}
}

// Stats returns cache hit and parse counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Parses: c.parses.Load()}
}

// Close drops every cached program and stops the cache.
func (c *Cache) Close() {
	c.EndBuild()
	c.cache.Clear()
	c.cache.Close()
}

// store hands a freshly parsed program to the build and the bounded cache.
func (c *Cache) store(id string, prog *Program) {
	prog.retain()
	prog.pin()

	c.mu.Lock()
	old, replaced := c.pinned[id]
	c.pinned[id] = prog
	c.mu.Unlock()
	if replaced && old != prog {
		old.unpin()
	}

	prog.Release() // The cache and the build now hold the only references.
	if !c.cache.Set(id, prog) {
		// Rejected by the bounded cache; the build still holds it.
		prog.evict()
	}
}

// lookup returns a referenced program held by the current build or the
// bounded cache, pinning it to the build.
func (c *Cache) lookup(id string) (*Program, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prog, ok := c.pinned[id]; ok {
		if prog.acquire() {
			return prog, true
		}
		delete(c.pinned, id)
	}

	prog, ok := c.cache.Get(id)
	if !ok || !prog.acquire() {
		return nil, false
	}
	prog.pin()
	c.pinned[id] = prog
	return prog, true
}
