package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/mvp-joe/loadmap/internal/loadable"
	"github.com/mvp-joe/loadmap/internal/modgraph"
	"github.com/mvp-joe/loadmap/internal/parsers"
)

// ResultStore persists extraction results across runs, keyed by module ID and
// a hash of the module source. A nil ActionMap records an absent result.
type ResultStore interface {
	Lookup(ctx context.Context, moduleID, contentHash string) (am *loadable.ActionMap, found bool, err error)
	Save(ctx context.Context, moduleID, contentHash string, am *loadable.ActionMap) error
}

// Extractor runs the loadable matcher over single modules.
// It is safe for concurrent use when its parse service and store are.
type Extractor struct {
	parser parsers.Service
	store  ResultStore
	logger *log.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithStore enables the persistent result store.
func WithStore(store ResultStore) Option {
	return func(e *Extractor) {
		e.store = store
	}
}

// WithLogger sets the logger used for debug output and store warnings.
func WithLogger(logger *log.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Extractor. The parse service should be memoized by module ID
// (see parsers.Cache) so that repeated extraction never re-parses a module.
func New(parser parsers.Service, opts ...Option) *Extractor {
	e := &Extractor{
		parser: parser,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the loadable metadata of m, or nil if m is not a script
// module or contains no wrapper call. A script module that cannot be parsed
// fails with a *parsers.ParseError naming the module.
func (e *Extractor) Extract(ctx context.Context, m modgraph.Module) (*loadable.ActionMap, error) {
	if m.Kind() != modgraph.KindScript {
		return nil, nil
	}

	src, ok := m.(modgraph.SourceModule)
	if !ok {
		return nil, &parsers.ParseError{Module: m.ID(), Err: fmt.Errorf("script module does not expose its source")}
	}

	var hash string
	if e.store != nil {
		source, err := src.Source(ctx)
		if err != nil {
			return nil, &parsers.ParseError{Module: m.ID(), Err: fmt.Errorf("failed to read source: %w", err)}
		}
		hash = ContentHash(source)

		am, found, err := e.store.Lookup(ctx, m.ID(), hash)
		switch {
		case err != nil:
			e.logger.Warn("result store lookup failed", "module", m.ID(), "err", err)
		case found:
			e.logger.Debug("reusing stored result", "module", m.ID())
			return am, nil
		}
	}

	prog, err := e.parser.Parse(ctx, src)
	if err != nil {
		return nil, err
	}
	defer prog.Release()

	// Match builds the ActionMap with its keys already sorted.
	am := loadable.Match(prog)

	if e.store != nil {
		if err := e.store.Save(ctx, m.ID(), hash, am); err != nil {
			e.logger.Warn("result store save failed", "module", m.ID(), "err", err)
		}
	}

	if am != nil {
		e.logger.Debug("extracted loadable metadata", "module", m.ID(), "keys", am.Len())
	}
	return am, nil
}

// ContentHash identifies module source together with the extraction rules
// that were applied to it.
func ContentHash(source []byte) string {
	h := sha256.New()
	h.Write([]byte(loadable.Version))
	h.Write([]byte{0})
	h.Write(source)
	return hex.EncodeToString(h.Sum(nil))
}
