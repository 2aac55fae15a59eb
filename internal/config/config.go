package config

import (
	"path/filepath"

	"github.com/mvp-joe/loadmap/internal/fsgraph"
	"github.com/mvp-joe/loadmap/internal/parsers"
	"github.com/mvp-joe/loadmap/internal/traverse"
)

// Dir is the per-project directory holding config, output and cache files.
const Dir = ".loadmap"

// Config represents the complete loadmap configuration.
// It can be loaded from .loadmap/config.yml with environment variable overrides.
type Config struct {
	Entries []string      `yaml:"entries" mapstructure:"entries"` // entry files or glob patterns, relative to the root
	Resolve ResolveConfig `yaml:"resolve" mapstructure:"resolve"`
	Build   BuildConfig   `yaml:"build" mapstructure:"build"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
}

// ResolveConfig controls how import specifiers become graph edges.
type ResolveConfig struct {
	Extensions []string `yaml:"extensions" mapstructure:"extensions"` // probing order for extensionless specifiers
	Ignore     []string `yaml:"ignore" mapstructure:"ignore"`         // glob patterns of modules to leave out
	Strict     bool     `yaml:"strict" mapstructure:"strict"`         // fail on unresolved relative imports
}

// BuildConfig tunes the traversal and extraction workers.
type BuildConfig struct {
	Concurrency    int `yaml:"concurrency" mapstructure:"concurrency"`
	ParseCacheSize int `yaml:"parse_cache_size" mapstructure:"parse_cache_size"`
}

// OutputConfig defines where build artifacts are written.
type OutputConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // manifest JSON
	DOT  string `yaml:"dot" mapstructure:"dot"`   // optional Graphviz dump of the module graph
}

// CacheConfig configures the persistent extraction result store.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Location string `yaml:"location" mapstructure:"location"` // empty means .loadmap/cache/results.db
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Entries: []string{},
		Resolve: ResolveConfig{
			Extensions: append([]string(nil), fsgraph.DefaultExtensions...),
			Ignore: []string{
				"node_modules/**",
				"dist/**",
				"build/**",
				".next/**",
				"coverage/**",
			},
			Strict: false,
		},
		Build: BuildConfig{
			Concurrency:    traverse.DefaultConcurrency,
			ParseCacheSize: parsers.DefaultCacheSize,
		},
		Output: OutputConfig{
			Path: filepath.Join(Dir, "react-loadable-manifest.json"),
		},
		Cache: CacheConfig{
			Enabled: true,
		},
	}
}

// OutputPath returns the manifest path, resolved against root when relative.
func (c *Config) OutputPath(root string) string {
	return resolvePath(root, c.Output.Path)
}

// DOTPath returns the DOT output path, or "" when disabled.
func (c *Config) DOTPath(root string) string {
	if c.Output.DOT == "" {
		return ""
	}
	return resolvePath(root, c.Output.DOT)
}

// CachePath returns the result store path.
func (c *Config) CachePath(root string) string {
	if c.Cache.Location == "" {
		return filepath.Join(root, Dir, "cache", "results.db")
	}
	return resolvePath(root, c.Cache.Location)
}

func resolvePath(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
