package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Watcher:
// - New fails for a missing directory
// - Rapid changes to several files arrive as one sorted batch
// - Extension filtering ignores unrelated files
// - Changes made while the handler runs arrive as the next batch
// - New subdirectories are watched; skipped directories are not
// - Run returns when its context ends; Close is idempotent

const testDebounce = 100 * time.Millisecond

type batches struct {
	mu  sync.Mutex
	all [][]string
	ch  chan struct{}
}

func newBatches() *batches {
	return &batches{ch: make(chan struct{}, 16)}
}

func (b *batches) handle(ctx context.Context, files []string) {
	b.mu.Lock()
	b.all = append(b.all, files)
	b.mu.Unlock()
	b.ch <- struct{}{}
}

func (b *batches) wait(t *testing.T) []string {
	t.Helper()
	select {
	case <-b.ch:
	case <-time.After(3 * time.Second):
		t.Fatal("handler not called before timeout")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.all[len(b.all)-1]
}

func (b *batches) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.all)
}

// runWatcher starts Run in the background and stops it when the test ends.
func runWatcher(t *testing.T, dir string, handle HandlerFunc, opts ...Option) *Watcher {
	t.Helper()
	opts = append([]Option{WithDebounce(testDebounce)}, opts...)
	w, err := New([]string{dir}, []string{".js", ".tsx"}, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, handle) }()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})

	time.Sleep(50 * time.Millisecond)
	return w
}

func TestNew_InvalidDirectory(t *testing.T) {
	t.Parallel()

	w, err := New([]string{filepath.Join(t.TempDir(), "missing")}, []string{".js"})
	assert.Error(t, err)
	assert.Nil(t, w)
}

func TestWatcher_BatchesChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	b := newBatches()
	runWatcher(t, dir, b.handle)

	a := filepath.Join(dir, "a.js")
	c := filepath.Join(dir, "c.tsx")
	require.NoError(t, os.WriteFile(c, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(a, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(a, []byte("y"), 0644))

	assert.Equal(t, []string{a, c}, b.wait(t))

	time.Sleep(3 * testDebounce)
	assert.Equal(t, 1, b.count(), "changes coalesce into one batch")
}

func TestWatcher_FiltersExtensions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	b := newBatches()
	runWatcher(t, dir, b.handle)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0644))
	js := filepath.Join(dir, "a.js")
	require.NoError(t, os.WriteFile(js, []byte("x"), 0644))

	assert.Equal(t, []string{js}, b.wait(t))
}

func TestWatcher_ChangesDuringHandlerArriveNext(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := filepath.Join(dir, "first.js")
	during := filepath.Join(dir, "during.js")

	b := newBatches()
	release := make(chan struct{})
	var calls sync.WaitGroup
	calls.Add(1)
	runWatcher(t, dir, func(ctx context.Context, files []string) {
		b.handle(ctx, files)
		if b.count() == 1 {
			calls.Done()
			<-release
		}
	})
	var releaseOnce sync.Once
	unblock := func() { releaseOnce.Do(func() { close(release) }) }
	t.Cleanup(unblock)

	require.NoError(t, os.WriteFile(first, []byte("x"), 0644))
	assert.Equal(t, []string{first}, b.wait(t))
	calls.Wait()

	// The handler is still busy; these edits must not be lost or overlap.
	require.NoError(t, os.WriteFile(during, []byte("x"), 0644))
	time.Sleep(3 * testDebounce)
	assert.Equal(t, 1, b.count(), "handler calls never overlap")

	unblock()
	assert.Equal(t, []string{during}, b.wait(t))
}

func TestWatcher_NewAndSkippedDirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	skipped := filepath.Join(dir, "node_modules")
	require.NoError(t, os.MkdirAll(skipped, 0755))

	b := newBatches()
	runWatcher(t, dir, b.handle, WithSkipDir(func(d string) bool {
		return filepath.Base(d) == "node_modules"
	}))

	require.NoError(t, os.WriteFile(filepath.Join(skipped, "dep.js"), []byte("x"), 0644))

	sub := filepath.Join(dir, "pages")
	require.NoError(t, os.MkdirAll(sub, 0755))
	time.Sleep(50 * time.Millisecond)
	page := filepath.Join(sub, "index.js")
	require.NoError(t, os.WriteFile(page, []byte("x"), 0644))

	assert.Equal(t, []string{page}, b.wait(t))
}

func TestWatcher_RunStopsWithContext(t *testing.T) {
	t.Parallel()

	w, err := New([]string{t.TempDir()}, []string{".js"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, func(context.Context, []string) {}) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
