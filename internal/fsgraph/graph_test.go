package fsgraph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/loadmap/internal/modgraph"
	"github.com/mvp-joe/loadmap/internal/parsers"
	"github.com/mvp-joe/loadmap/internal/traverse"
)

// Test Plan for FSGraph:
// - Relative specifiers resolve with extension, index and TypeScript probing
// - Bare specifiers are skipped
// - Non-script modules have no edges
// - Ignore patterns drop modules from edges and reject ignored entries
// - Unresolved relative specifiers warn by default and fail in strict mode
// - Entries outside the root are rejected
// - Discover finds script entries by glob
// - A full walk over a fixture tree reaches every referenced file once

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return root
}

func newGraph(t *testing.T, root string, opts ...Option) *FSGraph {
	t.Helper()
	g, err := New(root, parsers.NewTreeSitterParser(), opts...)
	require.NoError(t, err)
	return g
}

func edgeIDs(t *testing.T, g *FSGraph, id string) []string {
	t.Helper()
	m, err := g.Module(id)
	require.NoError(t, err)
	edges, err := g.Edges(context.Background(), m)
	require.NoError(t, err)
	out := make([]string, len(edges))
	for i, e := range edges {
		out[i] = e.ID()
	}
	return out
}

func TestEdges_Resolution(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"src/index.js": `
import a from "./a";
import { b } from "./b.js";
export * from "./lib";
const c = require("./c.json");
const Page = () => import("../pages/home");
import React from "react";
import "./styles.css?inline";
`,
		"src/a.jsx":        `export default 1;`,
		"src/b.ts":         `export const b = 2;`,
		"src/lib/index.ts": `export const lib = 3;`,
		"src/c.json":       `{}`,
		"src/styles.css":   `body {}`,
		"pages/home.tsx":   `export default () => <div />;`,
	})

	g := newGraph(t, root)
	assert.Equal(t, []string{
		"src/a.jsx",
		"src/b.ts",
		"src/lib/index.ts",
		"src/c.json",
		"pages/home.tsx",
		"src/styles.css",
	}, edgeIDs(t, g, "src/index.js"))
}

func TestEdges_DuplicatesCollapse(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"a.js": `import "./b"; import("./b"); require("./b.js");`,
		"b.js": ``,
	})
	assert.Equal(t, []string{"b.js"}, edgeIDs(t, newGraph(t, root), "a.js"))
}

func TestEdges_NonScriptHasNoEdges(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{"logo.svg": `<svg/>`})
	g := newGraph(t, root)
	m, err := g.Module("logo.svg")
	require.NoError(t, err)
	assert.Equal(t, modgraph.KindOther, m.Kind())

	edges, err := g.Edges(context.Background(), m)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestEdges_IgnorePatterns(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"a.js":             `import "./b.test.js"; import "./vendor/x"; import "./c";`,
		"b.test.js":        ``,
		"vendor/x.js":      ``,
		"c.js":             ``,
		"src/skip.test.js": ``,
	})
	g := newGraph(t, root, WithIgnore([]string{"**/*.test.js", "vendor/**"}))
	assert.Equal(t, []string{"c.js"}, edgeIDs(t, g, "a.js"))

	_, err := g.Module("src/skip.test.js")
	assert.ErrorIs(t, err, ErrIgnored)
}

func TestEdges_UnresolvedSpecifiers(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"a.js": "import \"./b\";\nimport \"./missing\";",
		"b.js": ``,
	})

	t.Run("lenient", func(t *testing.T) {
		assert.Equal(t, []string{"b.js"}, edgeIDs(t, newGraph(t, root), "a.js"))
	})

	t.Run("strict", func(t *testing.T) {
		g := newGraph(t, root, WithStrict(true))
		m, err := g.Module("a.js")
		require.NoError(t, err)

		_, err = g.Edges(context.Background(), m)
		var unresolved *UnresolvedError
		require.True(t, errors.As(err, &unresolved))
		assert.Equal(t, "a.js", unresolved.Importer)
		assert.Equal(t, "./missing", unresolved.Specifier)
		assert.Equal(t, 2, unresolved.Line)
	})
}

func TestModule_RejectsEscapes(t *testing.T) {
	t.Parallel()

	g := newGraph(t, writeTree(t, map[string]string{"a.js": ``}))

	_, err := g.Module("../a.js")
	assert.ErrorIs(t, err, ErrOutsideRoot)

	_, err = g.Module("nope.js")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = g.ModuleID(filepath.Join(g.Root(), "..", "x.js"))
	assert.ErrorIs(t, err, ErrOutsideRoot)

	id, err := g.ModuleID(filepath.Join(g.Root(), "a.js"))
	require.NoError(t, err)
	assert.Equal(t, "a.js", id)
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"pages/index.js":           ``,
		"pages/about.tsx":          ``,
		"pages/types.d.ts":         ``,
		"pages/logo.png":           ``,
		"pages/node_modules/x.js":  ``,
		".loadmap/cache.js":        ``,
		"lib/util.js":              ``,
		"pages/admin/settings.jsx": ``,
	})
	g := newGraph(t, root)

	ids, err := g.Discover([]string{"pages/**"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pages/about.tsx", "pages/admin/settings.jsx", "pages/index.js"}, ids)
}

func TestDiscover_DoubleStarMatchesZeroDirectories(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"pages/index.tsx":         ``,
		"pages/blog/post.tsx":     ``,
		"pages/blog/2024/old.tsx": ``,
		"pages/blog/helpers.js":   ``,
		"components/Button.tsx":   ``,
	})
	g := newGraph(t, root)

	ids, err := g.Discover([]string{"pages/**/*.tsx"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pages/blog/2024/old.tsx", "pages/blog/post.tsx", "pages/index.tsx"}, ids)
}

func TestIgnored_DoubleStarPatterns(t *testing.T) {
	t.Parallel()

	g := newGraph(t, writeTree(t, map[string]string{"a.js": ``}),
		WithIgnore([]string{"src/**/*.test.js", "**/fixtures/**"}))

	tests := []struct {
		id   string
		want bool
	}{
		{"src/a.test.js", true},
		{"src/x/a.test.js", true},
		{"src/x/y/a.test.js", true},
		{"a.test.js", false},
		{"lib/a.test.js", false},
		{"src/a.js", false},
		{"fixtures/data.js", true},
		{"src/fixtures/data.js", true},
		{".git/hooks/x.js", true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Ignored(tt.id))
		})
	}
}

func TestExpandDoubleStar(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"pages/**/*.tsx", "pages/*.tsx"}, expandDoubleStar("pages/**/*.tsx"))
	assert.Equal(t, []string{"**/*.test.js", "*.test.js"}, expandDoubleStar("**/*.test.js"))
	assert.Equal(t, []string{"a/**/b/**/c", "a/b/**/c", "a/**/b/c", "a/b/c"}, expandDoubleStar("a/**/b/**/c"))
	assert.Equal(t, []string{"vendor/**"}, expandDoubleStar("vendor/**"))
	assert.Equal(t, []string{"x**/y"}, expandDoubleStar("x**/y"))
}

func TestWalk_FixtureTree(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"index.js":  `import "./a"; import "./b";`,
		"a.js":      `import "./b"; import "./shared";`,
		"b.js":      `import "./a"; import "./shared";`,
		"shared.js": `import logo from "./logo.png";`,
		"logo.png":  ``,
		"orphan.js": ``,
	})

	cache, err := parsers.NewCache(parsers.NewTreeSitterParser())
	require.NoError(t, err)
	defer cache.Close()

	g, err := New(root, cache)
	require.NoError(t, err)
	entries, err := g.Entries([]string{"index.js"})
	require.NoError(t, err)

	result, err := traverse.Walk(context.Background(), entries, g)
	require.NoError(t, err)

	ids := make([]string, len(result.Modules))
	for i, m := range result.Modules {
		ids[i] = m.ID()
	}
	assert.Equal(t, []string{"a.js", "b.js", "index.js", "logo.png", "shared.js"}, ids)
	assert.Equal(t, int64(4), cache.Stats().Parses)
}
