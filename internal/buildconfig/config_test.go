package buildconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
)

func TestParse_RouteVariantsInOrder(t *testing.T) {
	cfg, err := Parse([]byte(`{
		// comments are allowed
		"version": 3,
		"routes": [
			{"src": "^/(.*)$", "headers": {"x-powered-by": "edge"}, "continue": true},
			{"src": "^/old$", "status": 308, "headers": {"Location": "/new"}},
			{"src": "^/blog/(?<slug>[^/]+?)$", "dest": "/blog/[slug]?slug=$slug"},
			{"handle": "filesystem"},
			{"kind": "rewrite", "src": "/docs", "dest": "/docs/index"},
			{"handle": "miss"},
			{"kind": "miss", "src": "/.*", "dest": "/404", "status": 404},
		],
	}`))
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Version)

	kinds := make([]Kind, 0, len(cfg.Routes))
	for _, r := range cfg.Routes {
		kinds = append(kinds, r.Kind())
	}
	assert.Equal(t, []Kind{KindHeader, KindRedirect, KindRewrite, KindFilesystem, KindRewrite, KindMiss, KindMiss}, kinds)

	redirect, ok := cfg.Routes[1].(Redirect)
	require.True(t, ok)
	assert.Equal(t, "/new", redirect.Location)
	assert.Equal(t, 308, redirect.Status)

	assert.True(t, cfg.Routes[0].Continues())
	assert.True(t, IsMarker(cfg.Routes[3]))
	assert.True(t, IsMarker(cfg.Routes[5]))
	assert.False(t, IsMarker(cfg.Routes[6]))
}

func TestParse_NamedCaptures(t *testing.T) {
	cfg, err := Parse([]byte(`{"version":3,"routes":[{"src":"^/blog/(?<slug>[^/]+?)$","dest":"/blog/[slug]"}]}`))
	require.NoError(t, err)

	m, ok := cfg.Routes[0].Matches("/blog/hello")
	require.True(t, ok)
	assert.Equal(t, "hello", m.Named["slug"])
	assert.Equal(t, "/blog/hello", m.Groups[0])

	_, ok = cfg.Routes[0].Matches("/blog/a/b")
	assert.False(t, ok)
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"missing version":     `{"routes": []}`,
		"version too old":     `{"version": 2, "routes": []}`,
		"version too new":     `{"version": 4, "routes": []}`,
		"unknown kind":        `{"version": 3, "routes": [{"kind": "proxy", "src": "/a", "dest": "/b"}]}`,
		"unknown handle":      `{"version": 3, "routes": [{"handle": "hit"}]}`,
		"shapeless route":     `{"version": 3, "routes": [{"src": "/a"}]}`,
		"bad pattern":         `{"version": 3, "routes": [{"src": "/a(", "dest": "/b"}]}`,
		"redirect non 3xx":    `{"version": 3, "routes": [{"kind": "redirect", "src": "/a", "dest": "/b", "status": 200}]}`,
		"not json":            `version: 3`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			require.Error(t, err)
			assert.True(t, errors.HasCategory(err, errors.CategoryConfig), "got %v", err)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("missing file is a config error", func(t *testing.T) {
		_, err := Load(t.TempDir())
		require.Error(t, err)
		assert.True(t, errors.HasCategory(err, errors.CategoryConfig))
	})

	t.Run("reads overrides", func(t *testing.T) {
		root := t.TempDir()
		body := `{"version":3,"routes":[],"overrides":{"about.html":{"path":"about","contentType":"text/html"}}}`
		require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(body), 0o600))

		cfg, err := Load(root)
		require.NoError(t, err)
		assert.Equal(t, Override{Path: "about", ContentType: "text/html"}, cfg.Overrides["about.html"])
		assert.Empty(t, cfg.Routes)
	})
}

type kindCounter map[Kind]int

func (c kindCounter) VisitRewrite(Rewrite)               { c[KindRewrite]++ }
func (c kindCounter) VisitRedirect(Redirect)             { c[KindRedirect]++ }
func (c kindCounter) VisitHeader(HeaderInjection)        { c[KindHeader]++ }
func (c kindCounter) VisitFilesystem(FilesystemFallback) { c[KindFilesystem]++ }
func (c kindCounter) VisitMiss(Miss)                     { c[KindMiss]++ }

func TestVisitorDispatch(t *testing.T) {
	cfg, err := Parse([]byte(`{"version":3,"routes":[
		{"src":"/a","dest":"/b"},{"src":"/c","dest":"/d","status":301},{"handle":"filesystem"},{"handle":"miss"}
	]}`))
	require.NoError(t, err)

	counts := kindCounter{}
	for _, r := range cfg.Routes {
		r.Accept(counts)
	}
	assert.Equal(t, kindCounter{KindRewrite: 1, KindRedirect: 1, KindFilesystem: 1, KindMiss: 1}, counts)
}

func TestParse_PatternsUseJavaScriptClasses(t *testing.T) {
	cfg, err := Parse([]byte(`{"version": 3, "routes": [{"src": "^/item/\\d+$", "dest": "/item"}]}`))
	require.NoError(t, err)

	_, ok := cfg.Routes[0].Matches("/item/42")
	assert.True(t, ok)
	_, ok = cfg.Routes[0].Matches("/item/٤٢")
	assert.False(t, ok, `\d must only match ASCII digits`)
}
