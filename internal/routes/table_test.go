package routes

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"git.home.luguber.info/inful/edgebundle/internal/assets"
	"git.home.luguber.info/inful/edgebundle/internal/buildconfig"
	"git.home.luguber.info/inful/edgebundle/internal/model"
)

func config(t *testing.T, routes ...map[string]any) *buildconfig.BuildConfig {
	t.Helper()
	if routes == nil {
		routes = []map[string]any{}
	}
	data, err := json.Marshal(map[string]any{"version": 3, "routes": routes})
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	cfg, err := buildconfig.Parse(data)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	return cfg
}

func manifest(t *testing.T, list ...*assets.Asset) *assets.Manifest {
	t.Helper()
	m, err := assets.NewManifest(list...)
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	return m
}

func static(path string) *assets.Asset {
	return assets.New(path, path[1:], "/nonexistent"+path, 1)
}

func edge(name, route string) *model.FunctionDescriptor {
	return &model.FunctionDescriptor{
		Name:  name,
		Kind:  model.RuntimeEdge,
		Route: route,
		Entry: &model.CodeUnit{Path: "index.js"},
	}
}

func prerendered(name, route string) (*model.FunctionDescriptor, *assets.Asset) {
	a := assets.New(route, "__prerender/"+name+"/fallback.html", "/nonexistent", 1)
	a.Prerendered = true
	fn := edge(name, route)
	fn.Kind = model.RuntimePrerendered
	fn.Prerender = &model.Prerender{Fallback: a}
	return fn, a
}

func ruleAt(t *testing.T, tbl *Table, idx int) Entry {
	t.Helper()
	for _, e := range tbl.Entries {
		if e.Kind == EntryRule && e.RuleIndex == idx {
			return e
		}
	}
	t.Fatalf("no entry for rule %d", idx)
	return Entry{}
}

func kinds(tbl *Table) []EntryKind {
	var out []EntryKind
	for _, e := range tbl.Entries {
		out = append(out, e.Kind)
	}
	return out
}

func TestBuild_StaticAssetWinsOverSameLiteralRewrite(t *testing.T) {
	cfg := config(t,
		map[string]any{"src": "^/about$", "dest": "/api/about"},
	)
	tbl := Build(cfg, manifest(t, static("/about")), []*model.FunctionDescriptor{edge("api/about", "/api/about")})

	want := []EntryKind{EntryAsset, EntryRule, EntryFunction}
	if diff := cmp.Diff(want, kinds(tbl)); diff != "" {
		t.Fatalf("entry kinds (-want +got):\n%s", diff)
	}
	res := tbl.Resolve("/about")
	if res.Outcome != OutcomeAsset || res.Asset != "/about" || res.Entry != 0 {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestBuild_StaticAssetWinsOverMatchingRules(t *testing.T) {
	cases := []struct {
		name string
		rule map[string]any
	}{
		{"pattern rewrite", map[string]any{"src": `^/(.*)\.txt$`, "dest": "/api"}},
		{"literal redirect", map[string]any{"src": `^/a\.txt$`, "status": 308, "headers": map[string]string{"Location": "/b.txt"}}},
		{"catch-all rewrite", map[string]any{"src": "^/.*$", "dest": "/api", "continue": true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tbl := Build(config(t, tc.rule),
				manifest(t, static("/a.txt"), static("/b.html")),
				[]*model.FunctionDescriptor{edge("api", "/api")})

			res := tbl.Resolve("/a.txt")
			if res.Outcome != OutcomeAsset || res.Asset != "/a.txt" {
				t.Fatalf("asset must win: %+v", res)
			}
			if first := tbl.Entries[0]; first.Kind != EntryAsset || first.Path != "/a.txt" {
				t.Fatalf("asset entry should precede the rule: %+v", first)
			}
		})
	}
}

func TestBuild_UnmatchedAssetsStayAfterRules(t *testing.T) {
	cfg := config(t, map[string]any{"src": `^/(.*)\.txt$`, "dest": "/api"})
	tbl := Build(cfg, manifest(t, static("/a.txt"), static("/b.html")), []*model.FunctionDescriptor{edge("api", "/api")})

	var paths []string
	for _, e := range tbl.Entries {
		switch e.Kind {
		case EntryRule:
			paths = append(paths, "rule")
		default:
			paths = append(paths, e.Path)
		}
	}
	if diff := cmp.Diff([]string{"/a.txt", "rule", "/b.html", "/api"}, paths); diff != "" {
		t.Fatalf("entry order (-want +got):\n%s", diff)
	}
	if res := tbl.Resolve("/b.txt"); res.Outcome != OutcomeFunction || res.Function != "api" {
		t.Fatalf("rewrite should still serve unmatched paths: %+v", res)
	}
}

func TestBuild_PreservesRuleOrder(t *testing.T) {
	cfg := config(t,
		map[string]any{"src": "/a", "headers": map[string]string{"x-a": "1"}, "continue": true},
		map[string]any{"src": "^/b$", "dest": "/c"},
		map[string]any{"handle": "filesystem"},
		map[string]any{"src": "^/d$", "dest": "https://example.com", "status": 308},
		map[string]any{"handle": "miss"},
		map[string]any{"src": "/.*", "dest": "/404.html", "status": 404},
	)
	tbl := Build(cfg, manifest(t, static("/404.html")), nil)

	var order []int
	for _, e := range tbl.Entries {
		if e.Kind == EntryRule {
			order = append(order, e.RuleIndex)
		}
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4, 5}, order); diff != "" {
		t.Fatalf("rule order (-want +got):\n%s", diff)
	}
	last := tbl.Entries[len(tbl.Entries)-1]
	if last.Phase != PhaseMiss {
		t.Fatalf("expected miss phase last, got %s", last.Phase)
	}
}

func TestBuild_FlagsShadowedRule(t *testing.T) {
	cfg := config(t,
		map[string]any{"src": "^/old$", "dest": "/new", "status": 301},
		map[string]any{"src": "^/old$", "dest": "/other", "status": 302},
		map[string]any{"src": "^/h$", "headers": map[string]string{"x": "1"}},
		map[string]any{"src": "^/h$", "headers": map[string]string{"y": "2"}},
	)
	tbl := Build(cfg, manifest(t), nil)

	if got := tbl.Unreachable(); got != 2 {
		t.Fatalf("expected 2 unreachable entries, got %d", got)
	}
	second := tbl.Entries[1]
	if !second.Unreachable || second.ShadowedBy != 0 {
		t.Fatalf("second redirect should be shadowed by entry 0: %+v", second)
	}
	if fourth := tbl.Entries[3]; !fourth.Unreachable || fourth.ShadowedBy != 2 {
		t.Fatalf("a non-continue header rule shadows its pattern: %+v", fourth)
	}
	if len(tbl.Wire()) != len(tbl.Entries)-2 {
		t.Fatal("unreachable entries must not be emitted")
	}

	res := tbl.Resolve("/old")
	if res.Outcome != OutcomeRedirect || res.Location != "/new" || res.Status != 301 {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestBuild_ContinueRuleDoesNotShadow(t *testing.T) {
	cfg := config(t,
		map[string]any{"src": "^/x$", "dest": "/y", "continue": true},
		map[string]any{"src": "^/x$", "dest": "/z"},
	)
	tbl := Build(cfg, manifest(t), nil)
	if tbl.Unreachable() != 0 {
		t.Fatal("a continue rule must not shadow later rules")
	}
}

func TestBuild_FunctionFallbackEntries(t *testing.T) {
	cfg := config(t,
		map[string]any{"src": "^/claimed$", "dest": "/hello"},
	)
	fns := []*model.FunctionDescriptor{
		edge("claimed", "/claimed"),
		edge("hello", "/hello"),
		edge("shadowed", "/robots.txt"),
	}
	tbl := Build(cfg, manifest(t, static("/robots.txt")), fns)

	var fallbacks []string
	for _, e := range tbl.Entries {
		if e.Kind == EntryFunction {
			fallbacks = append(fallbacks, e.Function)
		}
	}
	if diff := cmp.Diff([]string{"hello"}, fallbacks); diff != "" {
		t.Fatalf("fallback functions (-want +got):\n%s", diff)
	}

	res := tbl.Resolve("/claimed")
	if res.Outcome != OutcomeFunction || res.Function != "hello" || res.Path != "/hello" {
		t.Fatalf("rewrite to function: %+v", res)
	}
	if res := tbl.Resolve("/robots.txt"); res.Outcome != OutcomeAsset {
		t.Fatalf("static asset must win: %+v", res)
	}
}

func TestResolve_UnknownPathNotFound(t *testing.T) {
	tbl := Build(config(t), manifest(t), []*model.FunctionDescriptor{edge("api", "/api")})
	res := tbl.Resolve("/legacy")
	if res.Outcome != OutcomeNotFound || res.Status != 404 || res.Entry != -1 {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolve_ContinueRewriteAndHeaders(t *testing.T) {
	cfg := config(t,
		map[string]any{"src": "^/(?<lang>en|de)/(.*)$", "headers": map[string]string{"content-language": "$lang"}, "continue": true},
		map[string]any{"src": "^/(en|de)/(.*)$", "dest": "/docs/$2", "continue": true},
		map[string]any{"handle": "filesystem"},
	)
	tbl := Build(cfg, manifest(t, static("/docs/intro.html")), nil)

	res := tbl.Resolve("/de/intro.html")
	if res.Outcome != OutcomeAsset || res.Asset != "/docs/intro.html" {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	if diff := cmp.Diff(map[string]string{"content-language": "de"}, res.Headers); diff != "" {
		t.Fatalf("headers (-want +got):\n%s", diff)
	}
}

func TestResolve_UnresolvableRewriteStops(t *testing.T) {
	cfg := config(t,
		map[string]any{"src": "^/page$", "dest": "/missing"},
		map[string]any{"src": "^/pa(ge)$", "dest": "/present"},
	)
	tbl := Build(cfg, manifest(t, static("/present")), nil)

	if tbl.Entries[0].Target == nil || tbl.Entries[0].Target.Kind != TargetNone {
		t.Fatalf("literal destination should bind to none: %+v", tbl.Entries[0].Target)
	}
	res := tbl.Resolve("/page")
	if res.Outcome != OutcomeNotFound || res.Status != 404 || res.Entry != 0 {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolve_NonContinueRuleStopsEvaluation(t *testing.T) {
	cases := []struct {
		name  string
		first map[string]any
		want  Outcome
	}{
		{"header", map[string]any{"src": "^/x$", "headers": map[string]string{"x-a": "1"}}, OutcomeNotFound},
		{"patterned miss", map[string]any{"kind": "miss", "src": "^/x$", "headers": map[string]string{"x-a": "1"}}, OutcomeNotFound},
		{"redirect", map[string]any{"src": "^/x$", "status": 301, "dest": "/z"}, OutcomeRedirect},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config(t,
				tc.first,
				map[string]any{"src": "^/(x|y)$", "status": 308, "headers": map[string]string{"Location": "/y"}},
				map[string]any{"src": "^/x$", "dest": "/api"},
			)
			tbl := Build(cfg, manifest(t), []*model.FunctionDescriptor{edge("api", "/api")})

			res := tbl.Resolve("/x")
			if res.Outcome != tc.want || tbl.Entries[res.Entry].RuleIndex != 0 {
				t.Fatalf("no later rule may decide /x: %+v", res)
			}
			if res.Location == "/y" {
				t.Fatalf("later redirect was evaluated: %+v", res)
			}
			third := ruleAt(t, tbl, 2)
			if !third.Unreachable || tbl.Entries[third.ShadowedBy].RuleIndex != 0 {
				t.Fatalf("same-pattern rule should be unreachable: %+v", third)
			}
		})
	}
}

func TestResolve_NonContinueHeaderServesFilesystem(t *testing.T) {
	cfg := config(t,
		map[string]any{"src": "^/(.*)$", "headers": map[string]string{"cache-control": "no-store"}},
		map[string]any{"src": "^/(.*)$", "dest": "/api"},
	)
	tbl := Build(cfg, manifest(t, static("/index.html")), []*model.FunctionDescriptor{edge("api", "/api")})

	res := tbl.Resolve("/index.html")
	if res.Outcome != OutcomeAsset || res.Headers["cache-control"] != "no-store" {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	if res := tbl.Resolve("/nowhere"); res.Outcome != OutcomeNotFound || res.Headers["cache-control"] != "no-store" {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestBuild_PrerenderRevalidation(t *testing.T) {
	fn, fallback := prerendered("blog/index", "/blog")
	fn.Prerender.BypassToken = "secret"
	fn.Prerender.Expiration = 60
	tbl := Build(config(t), manifest(t, fallback), []*model.FunctionDescriptor{fn})

	res := tbl.Resolve("/blog")
	if res.Outcome != OutcomePrerender || res.Function != "blog/index" {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	if !tbl.Revalidates(res, "secret") {
		t.Fatal("bypass token should reach the function")
	}
	if tbl.Revalidates(res, "wrong") || tbl.Revalidates(res, "") {
		t.Fatal("only the bypass token revalidates")
	}

	var wire WireEntry
	for _, w := range tbl.Wire() {
		if w.Type == EntryPrerender {
			wire = w
		}
	}
	if wire.BypassToken != "secret" || wire.Expiration != 60 || wire.Function != "blog/index" {
		t.Fatalf("prerender entry not wired for revalidation: %+v", wire)
	}
	if fs := tbl.FilesystemIndex()["/blog"]; fs.BypassToken != "secret" || fs.Function != "blog/index" {
		t.Fatalf("filesystem index misses the binding: %+v", fs)
	}
}

func TestBuild_PrerenderWithoutCodeNeverRevalidates(t *testing.T) {
	fn, fallback := prerendered("static-page", "/page")
	fn.Entry = nil
	fn.Prerender.BypassToken = "secret"
	tbl := Build(config(t), manifest(t, fallback), []*model.FunctionDescriptor{fn})

	res := tbl.Resolve("/page")
	if res.Outcome != OutcomePrerender || res.Function != "" || tbl.Revalidates(res, "secret") {
		t.Fatalf("unexpected resolution: %+v", res)
	}
	for _, w := range tbl.Wire() {
		if w.BypassToken != "" {
			t.Fatalf("token emitted without a function: %+v", w)
		}
	}
}

func TestResolve_PendingRedirect(t *testing.T) {
	cfg := config(t,
		map[string]any{"src": "^/go$", "dest": "/gone", "status": 308, "continue": true},
	)
	tbl := Build(cfg, manifest(t), nil)
	res := tbl.Resolve("/go")
	if res.Outcome != OutcomeRedirect || res.Status != 308 {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolve_MissPhase(t *testing.T) {
	cfg := config(t,
		map[string]any{"handle": "filesystem"},
		map[string]any{"handle": "miss"},
		map[string]any{"src": "/.*", "dest": "/404.html", "status": 404},
	)
	tbl := Build(cfg, manifest(t, static("/404.html"), static("/index.html")), nil)

	if res := tbl.Resolve("/index.html"); res.Outcome != OutcomeAsset {
		t.Fatalf("filesystem hit: %+v", res)
	}
	res := tbl.Resolve("/nowhere")
	if res.Outcome != OutcomeAsset || res.Asset != "/404.html" || res.Status != 404 {
		t.Fatalf("miss rule: %+v", res)
	}
}

func TestBuild_PrerenderFallbackWinsOverRewrite(t *testing.T) {
	fn, fallback := prerendered("blog/index", "/blog")
	cfg := config(t,
		map[string]any{"src": "^/blog$", "dest": "/blog-app"},
	)
	tbl := Build(cfg, manifest(t, fallback), []*model.FunctionDescriptor{fn, edge("blog-app", "/blog-app")})

	if tbl.Entries[0].Kind != EntryPrerender || tbl.Entries[0].Function != "blog/index" {
		t.Fatalf("prerender entry should precede the rewrite: %+v", tbl.Entries[0])
	}
	res := tbl.Resolve("/blog")
	if res.Outcome != OutcomePrerender || res.Function != "blog/index" {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	build := func() []WireEntry {
		cfg := config(t,
			map[string]any{"src": "^/a/(.*)$", "dest": "/b/$1"},
			map[string]any{"handle": "filesystem"},
		)
		fnB, fb := prerendered("p", "/p")
		return Build(cfg,
			manifest(t, static("/z.txt"), static("/a.txt"), fb),
			[]*model.FunctionDescriptor{edge("x", "/x"), fnB, edge("y", "/y")},
		).Wire()
	}
	if diff := cmp.Diff(build(), build()); diff != "" {
		t.Fatalf("table differs between builds:\n%s", diff)
	}
}
