package routes

import (
	"git.home.luguber.info/inful/edgebundle/internal/assets"
	"git.home.luguber.info/inful/edgebundle/internal/buildconfig"
)

// WireTarget is a bound destination as the router driver sees it.
type WireTarget struct {
	Type        TargetKind `json:"type"`
	Path        string     `json:"path,omitempty"`
	File        string     `json:"file,omitempty"`
	Function    string     `json:"function,omitempty"`
	BypassToken string     `json:"bypass_token,omitempty"`
	Expiration  int        `json:"expiration,omitempty"`
}

// WireEntry is the JSON form of a table entry embedded in the router driver.
type WireEntry struct {
	Type     EntryKind         `json:"type"`
	Phase    Phase             `json:"phase"`
	Kind     buildconfig.Kind  `json:"kind,omitempty"`
	Src      string            `json:"src,omitempty"`
	Dest     string            `json:"dest,omitempty"`
	Status   int               `json:"status,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Continue bool              `json:"continue,omitempty"`
	Target   *WireTarget       `json:"target,omitempty"`
	Path     string            `json:"path,omitempty"`
	File     string            `json:"file,omitempty"`
	Function string            `json:"function,omitempty"`

	BypassToken string `json:"bypass_token,omitempty"`
	Expiration  int    `json:"expiration,omitempty"`
}

// Wire returns the evaluable entries in table order. Unreachable entries are omitted.
func (t *Table) Wire() []WireEntry {
	out := make([]WireEntry, 0, len(t.Entries))
	for _, e := range t.Entries {
		if e.Unreachable {
			continue
		}
		w := WireEntry{Type: e.Kind, Phase: e.Phase, Path: e.Path, Function: e.Function}
		if e.Asset != nil {
			w.File = e.Asset.File
		}
		w.BypassToken, w.Expiration = e.Revalidate.wire()
		if e.Kind == EntryRule {
			e.Route.Accept(&wireVisitor{w: &w})
			if e.Target != nil {
				w.Target = wireTarget(e.Target.Kind, e.Target.Path, e.Target.Asset, e.Target.Function, e.Target.Revalidate)
			}
		}
		out = append(out, w)
	}
	return out
}

func wireTarget(kind TargetKind, p string, a *assets.Asset, fn string, rv *Revalidation) *WireTarget {
	w := &WireTarget{Type: kind, Path: p, Function: fn}
	if a != nil {
		w.File = a.File
	}
	w.BypassToken, w.Expiration = rv.wire()
	return w
}

// wire omits the bypass token when no function can serve the revalidation.
func (rv *Revalidation) wire() (token string, expiration int) {
	if rv == nil {
		return "", 0
	}
	if rv.Function != "" {
		token = rv.BypassToken
	}
	return token, rv.Expiration
}

type wireVisitor struct {
	w *WireEntry
}

func (v *wireVisitor) rule(r buildconfig.Route, headers map[string]string) {
	v.w.Kind = r.Kind()
	v.w.Src = r.Source()
	v.w.Headers = headers
	v.w.Continue = r.Continues()
}

func (v *wireVisitor) VisitRewrite(r buildconfig.Rewrite) {
	v.rule(r, r.Headers)
	v.w.Dest = r.Dest
	v.w.Status = r.Status
}

func (v *wireVisitor) VisitRedirect(r buildconfig.Redirect) {
	v.rule(r, r.Headers)
	v.w.Dest = r.Location
	v.w.Status = r.Status
}

func (v *wireVisitor) VisitHeader(r buildconfig.HeaderInjection) {
	v.rule(r, r.Headers)
}

func (v *wireVisitor) VisitFilesystem(r buildconfig.FilesystemFallback) {
	v.rule(r, r.Headers)
}

func (v *wireVisitor) VisitMiss(r buildconfig.Miss) {
	v.rule(r, r.Headers)
	v.w.Dest = r.Dest
	v.w.Status = r.Status
}

// FilesystemIndex maps every servable path to its target, as consulted by
// filesystem markers and non-literal rewrites at request time.
func (t *Table) FilesystemIndex() map[string]WireTarget {
	out := make(map[string]WireTarget, len(t.static)+len(t.prerender)+len(t.functions))
	for route, fn := range t.functions {
		out[route] = WireTarget{Type: TargetFunction, Path: route, Function: fn}
	}
	for p, a := range t.prerender {
		rv := t.revalidation(p)
		out[p] = *wireTarget(TargetPrerender, p, a, rv.Function, rv)
	}
	for p, a := range t.static {
		out[p] = WireTarget{Type: TargetAsset, Path: p, File: a.File}
	}
	return out
}
