package fsgraph

import (
	"os"
	"path"
	"strings"
)

// isRelative reports whether a specifier names a file relative to its
// importer. Everything else is a package and resolved by the runtime.
func isRelative(spec string) bool {
	return spec == "." || spec == ".." || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}

// resolve maps a specifier imported by the module importer to a module ID.
//
// Resolution order for "./x":
//   - x as written
//   - x + each configured extension
//   - x/index + each configured extension
//
// A ".js" style specifier that names a missing file also tries its TypeScript
// counterparts, matching how TypeScript projects import compiled output paths.
func (g *FSGraph) resolve(importer, spec string) (string, bool) {
	if !isRelative(spec) {
		return "", false
	}

	// Loader queries and fragments ("./a.svg?url") do not name files.
	if i := strings.IndexAny(spec, "?#"); i >= 0 {
		spec = spec[:i]
	}

	base := path.Join(path.Dir(importer), spec)
	if base == ".." || strings.HasPrefix(base, "../") {
		return "", false
	}

	if g.isFile(base) {
		return base, true
	}
	for _, ext := range g.extensions {
		if g.isFile(base + ext) {
			return base + ext, true
		}
	}
	for _, alt := range typescriptAlternates(base) {
		if g.isFile(alt) {
			return alt, true
		}
	}
	for _, ext := range g.extensions {
		index := path.Join(base, "index"+ext)
		if g.isFile(index) {
			return index, true
		}
	}
	return "", false
}

var jsToTS = map[string][]string{
	".js":  {".ts", ".tsx"},
	".jsx": {".tsx"},
	".mjs": {".mts"},
	".cjs": {".cts"},
}

func typescriptAlternates(base string) []string {
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	var out []string
	for _, alt := range jsToTS[ext] {
		out = append(out, stem+alt)
	}
	return out
}

func (g *FSGraph) isFile(id string) bool {
	if id == "." || id == "" {
		return false
	}
	info, err := os.Stat(g.abs(id))
	return err == nil && !info.IsDir()
}
