package fsgraph

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/mvp-joe/loadmap/internal/modgraph"
)

// compiledPattern holds the pattern string and its compiled variants. A "**"
// segment also matches zero directories, which gobwas does not do on its own,
// so "pages/**/*.tsx" compiles to both "pages/**/*.tsx" and "pages/*.tsx".
type compiledPattern struct {
	pattern  string
	variants []glob.Glob
}

// patternSet matches module IDs against glob patterns.
type patternSet []compiledPattern

func compilePatterns(patterns []string) (patternSet, error) {
	set := make(patternSet, 0, len(patterns))
	for _, pattern := range patterns {
		cp := compiledPattern{pattern: pattern}
		for _, variant := range expandDoubleStar(pattern) {
			g, err := glob.Compile(variant, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
			}
			cp.variants = append(cp.variants, g)
		}
		set = append(set, cp)
	}
	return set, nil
}

// expandDoubleStar returns pattern plus every variant with one or more "**/"
// segments collapsed away.
func expandDoubleStar(pattern string) []string {
	variants := []string{pattern}
	seen := map[string]bool{pattern: true}
	for i := 0; i < len(variants); i++ {
		p := variants[i]
		for start := 0; ; {
			idx := strings.Index(p[start:], "**/")
			if idx < 0 {
				break
			}
			idx += start
			start = idx + 3
			// Only whole segments: "**/" at the start or right after a '/'.
			if idx > 0 && p[idx-1] != '/' {
				continue
			}
			collapsed := p[:idx] + p[idx+3:]
			if !seen[collapsed] {
				seen[collapsed] = true
				variants = append(variants, collapsed)
			}
		}
	}
	return variants
}

// Match checks if a module ID matches any pattern.
func (ps patternSet) Match(id string) bool {
	for _, cp := range ps {
		for _, g := range cp.variants {
			if g.Match(id) {
				return true
			}
		}
	}
	return false
}

// matchDir checks whether a directory is covered by a "dir/**" pattern.
func (ps patternSet) matchDir(id string) bool {
	return ps.Match(id) || ps.Match(id+"/**")
}

// isIgnored applies the ignore patterns plus the always-ignored directories.
func (g *FSGraph) isIgnored(id string) bool {
	for _, dir := range alwaysIgnored {
		if id == dir || strings.HasPrefix(id, dir+"/") {
			return true
		}
	}
	return g.ignore.Match(id)
}

var alwaysIgnored = []string{".loadmap", ".git"}

// Ignored reports whether a module ID is excluded from the graph.
func (g *FSGraph) Ignored(id string) bool {
	return g.isIgnored(id)
}

// IgnoredDir reports whether nothing below the directory id can be part of
// the graph. Package directories are always skipped.
func (g *FSGraph) IgnoredDir(id string) bool {
	if path.Base(id) == "node_modules" {
		return true
	}
	return g.isIgnored(id) || g.ignore.matchDir(id)
}

// Discover walks the root and returns the IDs of script modules matching any
// of the patterns, sorted. Ignored files and directories are skipped.
func (g *FSGraph) Discover(patterns []string) ([]string, error) {
	include, err := compilePatterns(patterns)
	if err != nil {
		return nil, err
	}

	var ids []string
	err = filepath.WalkDir(g.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(g.root, path)
		if err != nil {
			return err
		}
		id := filepath.ToSlash(relPath)
		if id == "." {
			return nil
		}

		if d.IsDir() {
			if g.IgnoredDir(id) {
				return filepath.SkipDir
			}
			return nil
		}

		if g.isIgnored(id) || modgraph.KindForPath(id) != modgraph.KindScript || !include.Match(id) {
			return nil
		}
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover entries: %w", err)
	}

	sort.Strings(ids)
	return ids, nil
}
