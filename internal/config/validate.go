package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

var (
	// ErrInvalidConcurrency indicates a non-positive worker count
	ErrInvalidConcurrency = errors.New("invalid concurrency")

	// ErrInvalidCacheSize indicates a non-positive parse cache size
	ErrInvalidCacheSize = errors.New("invalid parse cache size")

	// ErrEmptyOutputPath indicates a missing manifest path
	ErrEmptyOutputPath = errors.New("empty output path")

	// ErrInvalidExtension indicates a probing extension without a leading dot
	ErrInvalidExtension = errors.New("invalid extension")

	// ErrInvalidPattern indicates a glob pattern that does not compile
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validatePatterns("entries", cfg.Entries); err != nil {
		errs = append(errs, err)
	}
	if err := validateResolve(&cfg.Resolve); err != nil {
		errs = append(errs, err)
	}
	if err := validateBuild(&cfg.Build); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(cfg.Output.Path) == "" {
		errs = append(errs, fmt.Errorf("%w: output.path is required", ErrEmptyOutputPath))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateResolve(cfg *ResolveConfig) error {
	var errs []error

	for _, ext := range cfg.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			errs = append(errs, fmt.Errorf("%w: %q must start with '.'", ErrInvalidExtension, ext))
		}
	}
	if err := validatePatterns("resolve.ignore", cfg.Ignore); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateBuild(cfg *BuildConfig) error {
	var errs []error

	if cfg.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("%w: concurrency must be positive, got %d", ErrInvalidConcurrency, cfg.Concurrency))
	}
	if cfg.ParseCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: parse_cache_size must be positive, got %d", ErrInvalidCacheSize, cfg.ParseCacheSize))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validatePatterns(field string, patterns []string) error {
	var errs []error
	for _, pattern := range patterns {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errs = append(errs, fmt.Errorf("%w in %s: %q: %v", ErrInvalidPattern, field, pattern, err))
		}
	}
	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

// joinErrors combines multiple errors into a single error with clear formatting.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	var msgs []string
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}

	return fmt.Errorf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
