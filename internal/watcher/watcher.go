// Package watcher turns filesystem notifications under a project tree into
// debounced batches of changed source files for rebuilds.
package watcher

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a batch of changes is delivered.
const DefaultDebounce = 300 * time.Millisecond

// ErrClosed is returned by Run when the underlying notifier shuts down.
var ErrClosed = errors.New("file watcher closed")

// HandlerFunc rebuilds after a batch of changed files. Calls never overlap.
type HandlerFunc func(ctx context.Context, files []string)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a batch fires.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger used for watch errors.
func WithLogger(logger *log.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithSkipDir excludes directories (and everything below them) for which
// skip returns true. The path passed to skip is absolute.
func WithSkipDir(skip func(dir string) bool) Option {
	return func(w *Watcher) {
		w.skipDir = skip
	}
}

// Watcher reports changes to source files below a set of directories.
//
// Changes that arrive while the handler runs are held and delivered as the
// next batch once it returns, so a rebuild always sees every edit made
// during the previous one.
type Watcher struct {
	notifier   *fsnotify.Watcher
	extensions map[string]bool
	debounce   time.Duration
	skipDir    func(dir string) bool
	logger     *log.Logger

	closeOnce sync.Once
	closeErr  error
}

// New creates a watcher over the directory trees rooted at dirs, reporting
// changes to files with the given extensions (e.g. ".js", ".tsx").
func New(dirs []string, extensions []string, opts ...Option) (*Watcher, error) {
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		notifier:   notifier,
		extensions: make(map[string]bool, len(extensions)),
		debounce:   DefaultDebounce,
		logger:     log.New(io.Discard),
	}
	for _, ext := range extensions {
		w.extensions[ext] = true
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, dir := range dirs {
		if err := w.watchTree(dir); err != nil {
			notifier.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run delivers batches of changed files to handle until ctx is cancelled.
// It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context, handle HandlerFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	batches := make(chan []string)
	collectErr := make(chan error, 1)
	go func() {
		collectErr <- w.collect(ctx, batches)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-collectErr:
			return err
		case files := <-batches:
			handle(ctx, files)
		}
	}
}

// Close releases the notifier. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.notifier.Close()
	})
	return w.closeErr
}

// collect accumulates relevant events and offers them on out once the tree
// has been quiet for the debounce period. The pending set keeps growing
// while nobody receives.
func (w *Watcher) collect(ctx context.Context, out chan<- []string) error {
	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()
	quiet := false

	for {
		var (
			send  chan<- []string
			batch []string
		)
		if quiet && len(pending) > 0 {
			send, batch = out, sortedKeys(pending)
		}

		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.notifier.Events:
			if !ok {
				return ErrClosed
			}
			w.followNewDirectory(event)
			if !w.relevant(event) {
				continue
			}
			pending[event.Name] = true
			quiet = false
			timer.Reset(w.debounce)

		case <-timer.C:
			quiet = true

		case send <- batch:
			pending = make(map[string]bool)
			quiet = false

		case err, ok := <-w.notifier.Errors:
			if !ok {
				return ErrClosed
			}
			w.logger.Warn("file watcher error", "err", err)
		}
	}
}

// relevant reports whether an event changes a watched source file. Renames
// count because the old path no longer names a module.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	return w.extensions[filepath.Ext(event.Name)]
}

// followNewDirectory starts watching a directory created after New.
func (w *Watcher) followNewDirectory(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.watchTree(event.Name); err != nil {
		w.logger.Warn("failed to watch new directory", "dir", event.Name, "err", err)
	}
}

// watchTree adds root and every directory below it that is not skipped.
func (w *Watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			w.logger.Warn("error accessing path", "path", path, "err", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.skipDir != nil {
			if abs, err := filepath.Abs(path); err == nil && w.skipDir(abs) {
				return filepath.SkipDir
			}
		}

		if err := w.notifier.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "dir", path, "err", err)
		}
		return nil
	})
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
