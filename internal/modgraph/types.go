package modgraph

import (
	"context"
	"path"
	"strings"
)

// Kind reports whether a module carries parseable script source.
type Kind int

const (
	KindOther  Kind = iota // Static assets, style sheets, JSON, etc.
	KindScript             // JavaScript / TypeScript source
)

func (k Kind) String() string {
	if k == KindScript {
		return "script"
	}
	return "other"
}

// Module is a node in the build's dependency graph.
// Implementations must return a stable, unique ID for the lifetime of a build.
type Module interface {
	ID() string
	Kind() Kind
}

// SourceModule is a script module whose source can be read for parsing.
type SourceModule interface {
	Module

	// Source returns the raw module source.
	Source(ctx context.Context) ([]byte, error)
}

// Graph resolves the outgoing references of a module.
// Edges may perform I/O and must be safe for concurrent use.
type Graph interface {
	Edges(ctx context.Context, m Module) ([]Module, error)
}

// EdgesFunc adapts a plain function to the Graph interface.
type EdgesFunc func(ctx context.Context, m Module) ([]Module, error)

// Edges calls f(ctx, m).
func (f EdgesFunc) Edges(ctx context.Context, m Module) ([]Module, error) {
	return f(ctx, m)
}

// scriptExtensions lists the file extensions treated as script modules.
var scriptExtensions = map[string]bool{
	".js":  true,
	".jsx": true,
	".mjs": true,
	".cjs": true,
	".ts":  true,
	".tsx": true,
	".mts": true,
	".cts": true,
}

// KindForPath classifies a module by its file extension.
// Declaration files (.d.ts) carry no runtime code and are classified as other.
func KindForPath(p string) Kind {
	lower := strings.ToLower(p)
	if strings.HasSuffix(lower, ".d.ts") {
		return KindOther
	}
	if scriptExtensions[path.Ext(lower)] {
		return KindScript
	}
	return KindOther
}
