package loadable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/loadmap/internal/parsers"
)

// Test Plan for Match:
// - Programs without a wrapper call yield nil, never an empty map
// - The canonical wrapper call yields its generated properties
// - Compiler output with string concatenation is evaluated
// - Non-static values, computed keys, spreads and shorthands are skipped per property
// - A wrapper with no usable properties is present-but-empty
// - Wrapper calls nested in functions, conditionals and JSX are found
// - Multiple wrapper calls are merged without dropping any
// - Keys come out sorted regardless of source order
// - Matching is idempotent
// - Escapes in keys and values are decoded

func program(t *testing.T, id, source string) *parsers.Program {
	t.Helper()
	prog, err := parsers.NewTreeSitterParser().ParseSource(context.Background(), id, []byte(source))
	require.NoError(t, err)
	t.Cleanup(prog.Release)
	return prog
}

func TestMatch_NoWrapper(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source string
	}{
		{"plain module", `import React from "react"; export default () => null;`},
		{"bare dynamic import", `const Lazy = React.lazy(() => import("./Lazy"));`},
		{"options without generated key", `loadable(() => import("./X"), { ssr: false });`},
		{"generated key without dynamic import", `loadable(() => require("./X"), { loadableGenerated: { modules: ["./X"] } });`},
		{"generated key on first argument", `loadable({ loadableGenerated: { modules: ["./X"] } }, () => import("./X"));`},
		{"empty file", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, Match(program(t, "a.js", tt.source)))
		})
	}
}

func TestMatch_CanonicalWrapper(t *testing.T) {
	t.Parallel()

	prog := program(t, "B.js", `loadable(() => import("./X"), {loadableGenerated: {modules: ["./X"]}})`)

	am := Match(prog)
	require.NotNil(t, am)
	assert.Equal(t, map[string]string{"modules": `["./X"]`}, am.Map())
}

func TestMatch_CompilerOutput(t *testing.T) {
	t.Parallel()

	source := `import dynamic from 'next/dynamic'
const DynamicComponent = dynamic(() => import('../components/hello'), {
    loadableGenerated: {
        modules: [
            "some-file.js -> " + "../components/hello"
        ]
    }
});
`
	am := Match(program(t, "pages/index.js", source))
	require.NotNil(t, am)

	modules, ok := am.Get("modules")
	require.True(t, ok)
	assert.Equal(t, `["some-file.js -> ../components/hello"]`, modules)
}

func TestMatch_SkipsNonStaticProperties(t *testing.T) {
	t.Parallel()

	source := "const id = 'x';\n" +
		"dynamic(() => import('./Hello'), {\n" +
		"  loadableGenerated: {\n" +
		"    webpack: () => [require.resolveWeak('./Hello')],\n" +
		"    [id]: 'computed',\n" +
		"    id,\n" +
		"    ...extra,\n" +
		"    mixed: ['./a', id],\n" +
		"    count: 3,\n" +
		"    template: `chunk-${id}`,\n" +
		"    'quoted-key': 'kept',\n" +
		"    plain: `static`,\n" +
		"    42: 'numeric key',\n" +
		"  },\n" +
		"})\n"

	am := Match(program(t, "a.js", source))
	require.NotNil(t, am)
	assert.Equal(t, map[string]string{
		"42":         "numeric key",
		"plain":      "static",
		"quoted-key": "kept",
	}, am.Map())
}

func TestMatch_PresentButEmpty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		source string
	}{
		{"function-only metadata", `dynamic(() => import("./H"), { loadableGenerated: { webpack: () => [require.resolveWeak("./H")] } })`},
		{"empty object", `dynamic(() => import("./H"), { loadableGenerated: {} })`},
		{"non-object metadata", `dynamic(() => import("./H"), { loadableGenerated: generated })`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			am := Match(program(t, "a.js", tt.source))
			require.NotNil(t, am, "wrapper call must not be reported as absent")
			assert.Equal(t, 0, am.Len())
		})
	}
}

func TestMatch_NestedCalls(t *testing.T) {
	t.Parallel()

	source := `export function Page({ admin }) {
  if (admin) {
    const Admin = dynamic(async () => {
      const mod = await import("./Admin");
      return mod.Admin;
    }, { loadableGenerated: { modules: ["page.js -> ./Admin"] } });
    return <Admin />;
  }
  return <div>{cond ? dynamic(() => import("./Other"), { loadableGenerated: { id: "other" } }) : null}</div>;
}
`
	am := Match(program(t, "page.jsx", source))
	require.NotNil(t, am)
	assert.Equal(t, map[string]string{
		"id":      "other",
		"modules": `["page.js -> ./Admin"]`,
	}, am.Map())
}

func TestMatch_MultipleWrappersMerge(t *testing.T) {
	t.Parallel()

	source := `const A = dynamic(() => import("./A"), { loadableGenerated: { modules: ["p.js -> ./A"], ssr: "false" } });
const B = dynamic(() => import("./B"), { loadableGenerated: { modules: ["p.js -> ./B", "p.js -> ./A"] } });
const C = dynamic(() => import("./C"), { loadableGenerated: { ssr: "true", chunk: "c" } });
`
	am := Match(program(t, "p.js", source))
	require.NotNil(t, am)
	assert.Equal(t, map[string]string{
		"chunk":   "c",
		"modules": `["p.js -> ./A","p.js -> ./B"]`,
		"ssr":     `["false","true"]`,
	}, am.Map())
}

func TestMatch_SortedKeysAndIdempotence(t *testing.T) {
	t.Parallel()

	prog := program(t, "a.ts", `loadable(() => import("./X") as Promise<unknown>, {
  loadableGenerated: { zeta: "z", alpha: "a", mid: ("m") } as const,
});`)

	first := Match(prog)
	require.NotNil(t, first)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, first.Keys())

	second := Match(prog)
	assert.True(t, first.Equal(second))
}

func TestMatch_DirectImportArgument(t *testing.T) {
	t.Parallel()

	am := Match(program(t, "a.js", `preload(import("./X"), { loadableGenerated: { modules: ["./X"] } })`))
	require.NotNil(t, am)
	assert.Equal(t, `["./X"]`, am.Map()["modules"])
}

func TestMatch_DecodesEscapes(t *testing.T) {
	t.Parallel()

	src := "loadable(() => import(\"./X\"), { loadableGenerated: { b: \"\\u{41}z\", c: 'q\\\nr', \"d\\x2Dkey\": \"\\u2192\" } });"
	am := Match(program(t, "a.js", src))
	require.NotNil(t, am)
	assert.Equal(t, map[string]string{"b": "Az", "c": "qr", "d-key": "→"}, am.Map())
}
