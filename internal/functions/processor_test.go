package functions

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"git.home.luguber.info/inful/edgebundle/internal/chunks"
	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
	"git.home.luguber.info/inful/edgebundle/internal/model"
	edgetest "git.home.luguber.info/inful/edgebundle/internal/testing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func process(t *testing.T, root string) (*Result, *chunks.Registry, error) {
	t.Helper()
	reg := chunks.NewRegistry()
	res, err := Process(context.Background(), filepath.Join(root, "functions"), reg, Options{Concurrency: 2})
	return res, reg, err
}

func TestProcess_ClassifiesAndSorts(t *testing.T) {
	root := edgetest.NewOutputBuilder(t).
		WithEdgeFunction("zeta", "export default {}").
		WithEdgeFunction("api/hello", "export default {}").
		WithFunction("legacy", edgetest.FunctionSpec{Runtime: "nodejs20.x", Files: map[string]string{"index.js": "module.exports = {}"}}).
		WithFunction("blog/index", edgetest.FunctionSpec{Runtime: "nodejs20.x", Files: map[string]string{"index.js": "x"}}).
		WithPrerender("blog/index", edgetest.PrerenderSpec{Fallback: "index.prerender-fallback.html", Content: "<h1>blog</h1>", Expiration: 60}).
		Build()

	res, _, err := process(t, root)
	require.NoError(t, err)

	var names []string
	for _, fn := range res.Functions {
		names = append(names, fn.Name)
	}
	assert.Equal(t, []string{"api/hello", "blog/index", "zeta"}, names)
	assert.Equal(t, 2, res.Count(model.RuntimeEdge))
	assert.Equal(t, 1, res.Count(model.RuntimePrerendered))
	assert.Equal(t, 1, res.Count(model.RuntimeUnsupported))

	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "legacy", res.Skipped[0].Name)
	assert.Equal(t, "nodejs20.x", res.Skipped[0].Runtime)
	assert.Equal(t, errors.CategoryFunction, res.Skipped[0].Err.Category())
	assert.False(t, res.Skipped[0].Err.IsFatal())

	blog := res.Functions[1]
	assert.Equal(t, "/blog", blog.Route)
	assert.Nil(t, blog.Entry, "non-edge prerendered functions carry no code")
	require.NotNil(t, blog.Prerender)
	assert.Equal(t, 60, blog.Prerender.Expiration)
	fallback := blog.Prerender.Fallback
	require.NotNil(t, fallback)
	assert.Equal(t, "/blog", fallback.Path)
	assert.Equal(t, "__prerender/blog/index/index.prerender-fallback.html", fallback.File)
	assert.True(t, fallback.Prerendered)
	assert.Equal(t, []string{"/blog"}, []string{res.Fallbacks()[0].Path})
}

func TestProcess_ImportGraph(t *testing.T) {
	root := edgetest.NewOutputBuilder(t).
		WithFunction("api", edgetest.FunctionSpec{
			Runtime: "edge",
			Files: map[string]string{
				"index.js":         `import { a } from "./lib/a.js"; import React from "react"; import "../../outside.js";`,
				"lib/a.js":         `export * from "./b.mjs"; const w = await import("../wasm/m.wasm?module");`,
				"lib/b.mjs":        `export const b = 1;`,
				"wasm/m.wasm":      "\x00asm",
				"lib/unreached.js": `export const never = 1;`,
			},
		}).
		Build()

	res, reg, err := process(t, root)
	require.NoError(t, err)
	require.Len(t, res.Functions, 1)
	fn := res.Functions[0]

	require.NotNil(t, fn.Entry)
	assert.Equal(t, "index.js", fn.Entry.Path)
	assert.Equal(t, []model.Import{{Specifier: "./lib/a.js", Target: "lib/a.js"}}, fn.Entry.Imports)

	var paths []string
	for _, u := range fn.Units {
		paths = append(paths, u.Path)
	}
	assert.Equal(t, []string{"lib/a.js", "lib/b.mjs", "wasm/m.wasm"}, paths)

	wasm, ok := fn.Unit("wasm/m.wasm")
	require.True(t, ok)
	assert.True(t, wasm.Binary)
	assert.Empty(t, wasm.Imports)

	a, _ := fn.Unit("lib/a.js")
	assert.Equal(t, []model.Import{
		{Specifier: "./b.mjs", Target: "lib/b.mjs"},
		{Specifier: "../wasm/m.wasm?module", Target: "wasm/m.wasm"},
	}, a.Imports)

	assert.Equal(t, 3, reg.Len(), "only dependency units are registered")
}

func TestProcess_MissingImportIsFilesystemError(t *testing.T) {
	root := edgetest.NewOutputBuilder(t).
		WithEdgeFunction("api", `import "./gone.js";`).
		Build()

	_, _, err := process(t, root)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryFileSystem))
}

func TestProcess_CustomEntrypoint(t *testing.T) {
	root := edgetest.NewOutputBuilder(t).
		WithFunction("api", edgetest.FunctionSpec{
			Runtime:    "edge",
			Entrypoint: "dist/main.mjs",
			Files:      map[string]string{"dist/main.mjs": "export default {}"},
			Regions:    []string{"fra1"},
		}).
		Build()

	res, _, err := process(t, root)
	require.NoError(t, err)
	assert.Equal(t, "dist/main.mjs", res.Functions[0].Entry.Path)
	assert.Equal(t, []string{"fra1"}, res.Functions[0].Regions)
}

func TestProcess_PrerenderWithoutFallbackFile(t *testing.T) {
	root := edgetest.NewOutputBuilder(t).
		WithEdgeFunction("page", "export default {}").
		WithPrerender("page", edgetest.PrerenderSpec{Fallback: "page.html"}).
		Build()

	_, _, err := process(t, root)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestProcess_DuplicateRouteRejected(t *testing.T) {
	root := edgetest.NewOutputBuilder(t).
		WithEdgeFunction("blog", "export default {}").
		WithEdgeFunction("blog/index", "export default {}").
		Build()

	_, _, err := process(t, root)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
	ce, ok := errors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, "blog/index", ce.Function())
}

func TestProcess_PrerenderedEdgeKeepsCode(t *testing.T) {
	root := edgetest.NewOutputBuilder(t).
		WithEdgeFunction("page", "export default {}").
		WithPrerender("page", edgetest.PrerenderSpec{Fallback: "page.html", Content: "<p>hi</p>", Expiration: false}).
		Build()

	res, _, err := process(t, root)
	require.NoError(t, err)
	fn := res.Functions[0]
	assert.Equal(t, model.RuntimePrerendered, fn.Kind)
	assert.NotNil(t, fn.Entry)
	assert.Zero(t, fn.Prerender.Expiration)
}

func TestProcess_MissingManifest(t *testing.T) {
	b := edgetest.NewOutputBuilder(t)
	edgetest.WriteFile(t, filepath.Join(b.Root(), "functions", "bare.func", "index.js"), "x")
	_, _, err := process(t, b.Build())
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestProcess_FollowsSymlinkedFunctions(t *testing.T) {
	root := edgetest.NewOutputBuilder(t).
		WithFunction("a", edgetest.FunctionSpec{
			Runtime: "edge",
			Files:   map[string]string{"index.js": `import "./shared.js";`, "shared.js": "export {}"},
		}).
		WithFunctionLink("b", "a").
		Build()

	res, reg, err := process(t, root)
	require.NoError(t, err)
	require.Len(t, res.Functions, 2)
	assert.Equal(t, "/b", res.Functions[1].Route)

	groups := reg.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"a", "b"}, groups[0].Functions())
}

func TestProcess_MissingRoot(t *testing.T) {
	res, err := Process(context.Background(), filepath.Join(t.TempDir(), "nope"), chunks.NewRegistry(), Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Functions)
	assert.Empty(t, res.Skipped)
}

func TestProcess_Canceled(t *testing.T) {
	root := edgetest.NewOutputBuilder(t).WithEdgeFunction("a", "x").Build()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Process(ctx, filepath.Join(root, "functions"), chunks.NewRegistry(), Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestImplicitRoute(t *testing.T) {
	cases := map[string]string{
		"index":         "/",
		"blog/index":    "/blog",
		"api/hello":     "/api/hello",
		"indexer":       "/indexer",
		"docs/my-index": "/docs/my-index",
	}
	for name, want := range cases {
		assert.Equal(t, want, ImplicitRoute(name), name)
	}
}
