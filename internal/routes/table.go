// Package routes lays out the ordered routing table of the bundle and
// simulates how the router evaluates it.
package routes

import (
	"log/slog"

	"git.home.luguber.info/inful/edgebundle/internal/assets"
	"git.home.luguber.info/inful/edgebundle/internal/buildconfig"
	"git.home.luguber.info/inful/edgebundle/internal/logfields"
	"git.home.luguber.info/inful/edgebundle/internal/model"
)

// EntryKind tags a table entry.
type EntryKind string

const (
	// EntryRule is a configuration rule.
	EntryRule EntryKind = "rule"
	// EntryAsset serves a static asset at its exact path.
	EntryAsset EntryKind = "asset"
	// EntryPrerender serves a prerender fallback, with the function bound for revalidation.
	EntryPrerender EntryKind = "prerender"
	// EntryFunction invokes an edge function at its implicit route.
	EntryFunction EntryKind = "function"
)

// Phase separates entries evaluated before and after the miss marker.
type Phase string

const (
	PhaseMain Phase = "main"
	PhaseMiss Phase = "miss"
)

// TargetKind classifies what a literal destination resolves to.
type TargetKind string

const (
	TargetAsset     TargetKind = "asset"
	TargetPrerender TargetKind = "prerender"
	TargetFunction  TargetKind = "function"
	TargetExternal  TargetKind = "external"
	TargetNone      TargetKind = "none"
)

// Target is a destination bound at build time.
type Target struct {
	Kind       TargetKind
	Path       string
	Asset      *assets.Asset
	Function   string
	Revalidate *Revalidation
}

// Revalidation binds a prerender fallback to the function that regenerates it.
// Function is empty when the function has no code in the bundle.
type Revalidation struct {
	Function    string
	BypassToken string
	Expiration  int // seconds, 0 for never
}

// Entry is one row of the routing table.
type Entry struct {
	Kind  EntryKind
	Phase Phase

	// Rule entries.
	Route     buildconfig.Route
	RuleIndex int     // position in the configuration, -1 for synthesized entries
	Target    *Target // nil unless the rule has a literal destination

	// Asset, prerender and function entries.
	Path       string
	Asset      *assets.Asset
	Function   string
	Revalidate *Revalidation // prerender entries only

	Unreachable bool
	ShadowedBy  int // entry index, -1 when reachable
}

// Table is the immutable routing table.
type Table struct {
	Entries []Entry

	static    map[string]*assets.Asset
	prerender map[string]*assets.Asset
	functions map[string]string // implicit route -> function name
	bindings  map[string]*Revalidation // prerender path -> function binding
}

// Unreachable counts entries that can never be evaluated.
func (t *Table) Unreachable() int {
	n := 0
	for _, e := range t.Entries {
		if e.Unreachable {
			n++
		}
	}
	return n
}

// Build lays out the routing table from configuration rules, the asset
// manifest (static files and prerender fallbacks) and function descriptors.
func Build(cfg *buildconfig.BuildConfig, manifest *assets.Manifest, fns []*model.FunctionDescriptor) *Table {
	t := &Table{
		static:    map[string]*assets.Asset{},
		prerender: map[string]*assets.Asset{},
		functions: map[string]string{},
		bindings:  map[string]*Revalidation{},
	}
	for _, a := range manifest.All() {
		if a.Prerendered {
			t.prerender[a.Path] = a
		} else {
			t.static[a.Path] = a
		}
	}
	for _, fn := range fns {
		if p := fn.Prerender; p != nil && p.Fallback != nil {
			rv := &Revalidation{BypassToken: p.BypassToken, Expiration: p.Expiration}
			if fn.HasCode() {
				rv.Function = fn.Name
			}
			t.bindings[p.Fallback.Path] = rv
		}
		if fn.HasCode() {
			t.functions[fn.Route] = fn.Name
		}
	}

	rules := cfg.Routes
	missAt := len(rules)
	for i, r := range rules {
		if r.Kind() == buildconfig.KindMiss {
			missAt = i
			break
		}
	}

	// static assets precede every rewrite or redirect that matches them
	all := manifest.All()
	placed := map[string]bool{}
	for i, r := range rules[:missAt] {
		if k := r.Kind(); k == buildconfig.KindRewrite || k == buildconfig.KindRedirect {
			for _, a := range all {
				if placed[a.Path] {
					continue
				}
				if _, ok := r.Matches(a.Path); !ok {
					continue
				}
				e, _ := t.staticEntry(a.Path)
				t.Entries = append(t.Entries, e)
				placed[a.Path] = true
			}
		}
		t.Entries = append(t.Entries, t.ruleEntry(r, i, PhaseMain))
	}

	// remaining static assets, then prerender fallbacks
	for _, prerendered := range []bool{false, true} {
		for _, a := range all {
			if a.Prerendered != prerendered || placed[a.Path] {
				continue
			}
			e, _ := t.staticEntry(a.Path)
			t.Entries = append(t.Entries, e)
		}
	}

	for _, fn := range fns {
		if fn.Kind != model.RuntimeEdge || !fn.HasCode() {
			continue
		}
		if _, ok := t.static[fn.Route]; ok {
			continue
		}
		if _, ok := t.prerender[fn.Route]; ok {
			continue
		}
		if claimed := terminatingMatch(rules[:missAt], fn.Route); claimed >= 0 {
			slog.Debug("Function route claimed by explicit rule",
				logfields.Function(fn.Name), logfields.Route(fn.Route), slog.Int("rule", claimed))
			continue
		}
		t.Entries = append(t.Entries, Entry{
			Kind: EntryFunction, Phase: PhaseMain, RuleIndex: -1, ShadowedBy: -1,
			Path: fn.Route, Function: fn.Name,
		})
	}

	for i, r := range rules[missAt:] {
		t.Entries = append(t.Entries, t.ruleEntry(r, missAt+i, PhaseMiss))
	}

	t.markUnreachable()
	slog.Debug("Route table built", logfields.Count(len(t.Entries)), slog.Int("unreachable", t.Unreachable()))
	return t
}

// staticEntry creates the asset or prerender entry for path, static files first.
func (t *Table) staticEntry(path string) (Entry, bool) {
	if a, ok := t.static[path]; ok {
		return Entry{Kind: EntryAsset, Phase: PhaseMain, RuleIndex: -1, ShadowedBy: -1, Path: path, Asset: a}, true
	}
	if a, ok := t.prerender[path]; ok {
		rv := t.revalidation(path)
		return Entry{
			Kind: EntryPrerender, Phase: PhaseMain, RuleIndex: -1, ShadowedBy: -1,
			Path: path, Asset: a, Function: rv.Function, Revalidate: rv,
		}, true
	}
	return Entry{}, false
}

func (t *Table) ruleEntry(r buildconfig.Route, idx int, phase Phase) Entry {
	e := Entry{Kind: EntryRule, Phase: phase, Route: r, RuleIndex: idx, ShadowedBy: -1}
	var dest string
	switch rr := r.(type) {
	case buildconfig.Rewrite:
		dest = rr.Dest
	case buildconfig.Miss:
		dest = rr.Dest
	case buildconfig.Redirect:
		// redirects answer with their location and never bind a target
		return e
	}
	if dest != "" && isLiteralDest(dest) {
		target := t.bind(dest)
		e.Target = &target
	}
	return e
}

// bind resolves a literal destination against assets and functions.
func (t *Table) bind(dest string) Target {
	if isExternal(dest) {
		return Target{Kind: TargetExternal, Path: dest}
	}
	p := pathOnly(dest)
	if a, ok := t.static[p]; ok {
		return Target{Kind: TargetAsset, Path: p, Asset: a}
	}
	if a, ok := t.prerender[p]; ok {
		rv := t.revalidation(p)
		return Target{Kind: TargetPrerender, Path: p, Asset: a, Function: rv.Function, Revalidate: rv}
	}
	if fn, ok := t.functions[p]; ok {
		return Target{Kind: TargetFunction, Path: p, Function: fn}
	}
	return Target{Kind: TargetNone, Path: p}
}

func (t *Table) revalidation(path string) *Revalidation {
	if rv, ok := t.bindings[path]; ok {
		return rv
	}
	return &Revalidation{}
}

// terminating reports whether a rule stops evaluation when it matches. Every
// pattern-bearing rule without continue does, whatever its kind.
func terminating(e Entry) bool {
	return e.Kind == EntryRule && !e.Route.Continues() && e.Route.Source() != ""
}

// terminatingMatch returns the index of the first non-continue rewrite or
// redirect matching path, or -1.
func terminatingMatch(rules []buildconfig.Route, path string) int {
	for i, r := range rules {
		if r.Continues() {
			continue
		}
		if k := r.Kind(); k != buildconfig.KindRewrite && k != buildconfig.KindRedirect {
			continue
		}
		if _, ok := r.Matches(path); ok {
			return i
		}
	}
	return -1
}

// markUnreachable flags rules whose pattern text equals an earlier terminating rule's.
func (t *Table) markUnreachable() {
	first := map[string]int{}
	for i := range t.Entries {
		e := &t.Entries[i]
		if e.Kind != EntryRule || e.Route.Source() == "" {
			continue
		}
		if j, ok := first[e.Route.Source()]; ok {
			e.Unreachable = true
			e.ShadowedBy = j
			slog.Warn("Unreachable route",
				slog.Int("rule", e.RuleIndex),
				logfields.Route(e.Route.Source()),
				slog.Int("shadowed_by", t.Entries[j].RuleIndex))
			continue
		}
		if terminating(*e) {
			first[e.Route.Source()] = i
		}
	}
}
