package extract

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/loadmap/internal/loadable"
	"github.com/mvp-joe/loadmap/internal/modgraph"
	"github.com/mvp-joe/loadmap/internal/parsers"
)

// Test Plan for Extractor:
// - Non-script modules return absent without invoking the parser
// - Modules without a wrapper call return absent
// - Wrapper calls yield a sorted ActionMap
// - Parse failures surface as ParseError naming the module
// - Repeated extraction reuses one parse and yields identical results
// - Stored results short-circuit parsing; store failures are not fatal
// - Failed parses are never stored

type countingParser struct {
	inner parsers.Service
	calls atomic.Int32
}

func (p *countingParser) Parse(ctx context.Context, m modgraph.SourceModule) (*parsers.Program, error) {
	p.calls.Add(1)
	return p.inner.Parse(ctx, m)
}

func newCountingParser() *countingParser {
	return &countingParser{inner: parsers.NewTreeSitterParser()}
}

type memoryStore struct {
	mu      sync.Mutex
	results map[string]*loadable.ActionMap
	saves   int
	failing bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{results: make(map[string]*loadable.ActionMap)}
}

func (s *memoryStore) Lookup(ctx context.Context, moduleID, hash string) (*loadable.ActionMap, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, false, errors.New("disk I/O error")
	}
	am, ok := s.results[moduleID+"@"+hash]
	return am, ok, nil
}

func (s *memoryStore) Save(ctx context.Context, moduleID, hash string, am *loadable.ActionMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("disk I/O error")
	}
	s.saves++
	s.results[moduleID+"@"+hash] = am
	return nil
}

const wrapperSource = `loadable(() => import("./X"), {loadableGenerated: {modules: ["./X"], chunk: "x"}})`

func TestExtract_NonScriptSkipsParser(t *testing.T) {
	t.Parallel()

	parser := newCountingParser()
	am, err := New(parser).Extract(context.Background(), modgraph.NewAsset("E.png"))
	require.NoError(t, err)
	assert.Nil(t, am)
	assert.Equal(t, int32(0), parser.calls.Load(), "parser must not run for assets")
}

func TestExtract_NoWrapperIsAbsent(t *testing.T) {
	t.Parallel()

	am, err := New(newCountingParser()).Extract(context.Background(), modgraph.NewScript("A.js", `import "./B";`))
	require.NoError(t, err)
	assert.Nil(t, am)
}

func TestExtract_WrapperCall(t *testing.T) {
	t.Parallel()

	am, err := New(newCountingParser()).Extract(context.Background(), modgraph.NewScript("B.js", wrapperSource))
	require.NoError(t, err)
	require.NotNil(t, am)
	assert.Equal(t, []string{"chunk", "modules"}, am.Keys())
	assert.Equal(t, map[string]string{"chunk": "x", "modules": `["./X"]`}, am.Map())
}

func TestExtract_ParseErrorNamesModule(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	e := New(newCountingParser(), WithStore(store))

	am, err := e.Extract(context.Background(), modgraph.NewScript("D.js", `function (`))
	require.Error(t, err)
	assert.Nil(t, am)

	var parseErr *parsers.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "D.js", parseErr.Module)
	assert.Equal(t, 0, store.saves, "failed parses are never stored")
}

func TestExtract_IdempotentWithSingleParse(t *testing.T) {
	t.Parallel()

	parser := newCountingParser()
	cache, err := parsers.NewCache(parser)
	require.NoError(t, err)
	defer cache.Close()

	e := New(cache)
	m := modgraph.NewScript("B.js", wrapperSource)

	first, err := e.Extract(context.Background(), m)
	require.NoError(t, err)
	second, err := e.Extract(context.Background(), m)
	require.NoError(t, err)

	assert.True(t, first.Equal(second))
	assert.Equal(t, int32(1), parser.calls.Load())
}

func TestExtract_StoreHitSkipsParse(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	m := modgraph.NewScript("B.js", wrapperSource)

	_, err := New(newCountingParser(), WithStore(store)).Extract(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, 1, store.saves)

	parser := newCountingParser()
	am, err := New(parser, WithStore(store)).Extract(context.Background(), m)
	require.NoError(t, err)
	require.NotNil(t, am)
	assert.Equal(t, `["./X"]`, am.Map()["modules"])
	assert.Equal(t, int32(0), parser.calls.Load())
}

func TestExtract_StoreRemembersAbsent(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	m := modgraph.NewScript("A.js", `export const a = 1;`)

	_, err := New(newCountingParser(), WithStore(store)).Extract(context.Background(), m)
	require.NoError(t, err)

	parser := newCountingParser()
	am, err := New(parser, WithStore(store)).Extract(context.Background(), m)
	require.NoError(t, err)
	assert.Nil(t, am)
	assert.Equal(t, int32(0), parser.calls.Load())
}

func TestExtract_StoreFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.failing = true

	am, err := New(newCountingParser(), WithStore(store)).Extract(context.Background(), modgraph.NewScript("B.js", wrapperSource))
	require.NoError(t, err)
	require.NotNil(t, am)
}

func TestContentHash_DependsOnSource(t *testing.T) {
	t.Parallel()

	a := ContentHash([]byte("a"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, ContentHash([]byte("a")))
	assert.NotEqual(t, a, ContentHash([]byte("b")))
}
