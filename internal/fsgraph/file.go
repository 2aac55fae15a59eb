package fsgraph

import (
	"context"
	"fmt"
	"os"

	"github.com/mvp-joe/loadmap/internal/modgraph"
)

// File is a module backed by a file on disk.
type File struct {
	id   string
	path string
	kind modgraph.Kind
}

func newFile(id, path string) *File {
	return &File{id: id, path: path, kind: modgraph.KindForPath(id)}
}

// ID returns the slash-separated path relative to the graph root.
func (f *File) ID() string { return f.id }

// Kind reports whether the file is a script module.
func (f *File) Kind() modgraph.Kind { return f.kind }

// Source reads the file contents.
func (f *File) Source(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.id, err)
	}
	return data, nil
}
