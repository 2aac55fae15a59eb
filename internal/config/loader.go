package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string) Loader {
	return &loader{
		rootDir: rootDir,
	}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (LOADMAP_*)
// 2. Config file (.loadmap/config.yml or .loadmap/config.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(l.rootDir, Dir))

	// LOADMAP_BUILD_CONCURRENCY overrides build.concurrency, and so on.
	v.SetEnvPrefix("LOADMAP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, key := range []string{
		"resolve.strict",
		"build.concurrency",
		"build.parse_cache_size",
		"output.path",
		"output.dot",
		"cache.enabled",
		"cache.location",
	} {
		v.BindEnv(key)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine: defaults and env vars still apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("entries", defaults.Entries)

	v.SetDefault("resolve.extensions", defaults.Resolve.Extensions)
	v.SetDefault("resolve.ignore", defaults.Resolve.Ignore)
	v.SetDefault("resolve.strict", defaults.Resolve.Strict)

	v.SetDefault("build.concurrency", defaults.Build.Concurrency)
	v.SetDefault("build.parse_cache_size", defaults.Build.ParseCacheSize)

	v.SetDefault("output.path", defaults.Output.Path)
	v.SetDefault("output.dot", defaults.Output.DOT)

	v.SetDefault("cache.enabled", defaults.Cache.Enabled)
	v.SetDefault("cache.location", defaults.Cache.Location)
}

// LoadConfigFromDir loads configuration from a specific directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
