package routes

import (
	"maps"

	"git.home.luguber.info/inful/edgebundle/internal/buildconfig"
)

// Outcome classifies a resolution.
type Outcome string

const (
	OutcomeAsset     Outcome = "asset"
	OutcomePrerender Outcome = "prerender"
	OutcomeFunction  Outcome = "function"
	OutcomeRedirect  Outcome = "redirect"
	OutcomeExternal  Outcome = "external"
	OutcomeStatus    Outcome = "status"
	OutcomeNotFound  Outcome = "not_found"
)

// Resolution is what the router does for one request path.
type Resolution struct {
	Outcome  Outcome
	Path     string // request path after rewrites
	Asset    string // asset routing path
	Function string
	Location string
	Status   int
	Headers  map[string]string
	Entry    int // index of the deciding entry, -1 if none
}

// Revalidates reports whether a request carrying the bypass token reaches the
// function bound to a prerender resolution instead of its fallback.
func (t *Table) Revalidates(res Resolution, token string) bool {
	if res.Outcome != OutcomePrerender || res.Function == "" || token == "" {
		return false
	}
	return t.revalidation(res.Asset).BypassToken == token
}

// Resolve evaluates the table for path with first-match semantics.
func (t *Table) Resolve(path string) Resolution {
	st := &evalState{path: path, headers: map[string]string{}}

	for _, phase := range []Phase{PhaseMain, PhaseMiss} {
		for i, e := range t.Entries {
			if e.Phase != phase || e.Unreachable {
				continue
			}
			if res, done := t.evaluate(st, i, e); done {
				return st.finish(res)
			}
		}
		if phase == PhaseMain && st.redirect != nil {
			return st.finish(*st.redirect)
		}
	}
	return st.finish(Resolution{Outcome: OutcomeNotFound, Status: 404, Entry: -1})
}

type evalState struct {
	path     string
	headers  map[string]string
	status   int
	redirect *Resolution
}

func (st *evalState) finish(r Resolution) Resolution {
	r.Path = st.path
	if len(st.headers) > 0 {
		r.Headers = maps.Clone(st.headers)
	}
	if r.Status == 0 {
		r.Status = st.status
	}
	return r
}

func (t *Table) evaluate(st *evalState, i int, e Entry) (Resolution, bool) {
	switch e.Kind {
	case EntryAsset:
		if st.path == e.Path {
			return Resolution{Outcome: OutcomeAsset, Asset: e.Path, Entry: i}, true
		}
		return Resolution{}, false
	case EntryPrerender:
		if st.path == e.Path {
			return Resolution{Outcome: OutcomePrerender, Asset: e.Path, Function: e.Function, Entry: i}, true
		}
		return Resolution{}, false
	case EntryFunction:
		if st.path == e.Path {
			return Resolution{Outcome: OutcomeFunction, Function: e.Function, Entry: i}, true
		}
		return Resolution{}, false
	}

	if buildconfig.IsMarker(e.Route) {
		if e.Route.Kind() == buildconfig.KindFilesystem {
			if res, ok := t.lookup(st.path); ok {
				res.Entry = i
				return res, true
			}
		}
		return Resolution{}, false
	}

	m, ok := e.Route.Matches(st.path)
	if !ok {
		return Resolution{}, false
	}
	switch r := e.Route.(type) {
	case buildconfig.HeaderInjection:
		st.inject(r.Headers, m)
		if r.Continue {
			return Resolution{}, false
		}
		return t.stop(st, i, true), true

	case buildconfig.Redirect:
		st.inject(r.Headers, m)
		res := Resolution{
			Outcome:  OutcomeRedirect,
			Location: substitute(r.Location, m.Groups, m.Named),
			Status:   r.Status,
			Entry:    i,
		}
		if r.Continue {
			st.redirect = &res
			return Resolution{}, false
		}
		return res, true

	case buildconfig.Rewrite:
		st.inject(r.Headers, m)
		return t.rewrite(st, i, r.Continue, r.Dest, r.Status, m)

	case buildconfig.Miss:
		st.inject(r.Headers, m)
		if r.Dest != "" {
			return t.rewrite(st, i, r.Continue, r.Dest, r.Status, m)
		}
		if r.Status != 0 {
			return Resolution{Outcome: OutcomeStatus, Status: r.Status, Entry: i}, true
		}
		if r.Continue {
			return Resolution{}, false
		}
		return t.stop(st, i, true), true
	}
	return Resolution{}, false
}

func (st *evalState) inject(headers map[string]string, m buildconfig.Match) {
	for k, v := range headers {
		st.headers[k] = substitute(v, m.Groups, m.Named)
	}
}

// stop ends evaluation at a matched rule that produced no response of its
// own: the current path is looked up when filesystem is set, then a pending
// redirect applies, otherwise the path is not found.
func (t *Table) stop(st *evalState, i int, filesystem bool) Resolution {
	if filesystem {
		if res, ok := t.lookup(st.path); ok {
			res.Entry = i
			return res
		}
	}
	if st.redirect != nil {
		return *st.redirect
	}
	return Resolution{Outcome: OutcomeNotFound, Status: 404, Entry: i}
}

func (t *Table) rewrite(st *evalState, i int, cont bool, dest string, status int, m buildconfig.Match) (Resolution, bool) {
	target := substitute(dest, m.Groups, m.Named)
	if cont {
		if !isExternal(target) {
			st.path = pathOnly(target)
		}
		if status != 0 {
			st.status = status
		}
		return Resolution{}, false
	}
	if isExternal(target) {
		return Resolution{Outcome: OutcomeExternal, Location: target, Status: status, Entry: i}, true
	}
	res, ok := t.lookup(pathOnly(target))
	if !ok {
		return t.stop(st, i, false), true
	}
	st.path = pathOnly(target)
	res.Status = status
	res.Entry = i
	return res, true
}

// lookup checks the filesystem: static assets, prerender fallbacks, then function routes.
func (t *Table) lookup(path string) (Resolution, bool) {
	if _, ok := t.static[path]; ok {
		return Resolution{Outcome: OutcomeAsset, Asset: path}, true
	}
	if _, ok := t.prerender[path]; ok {
		return Resolution{Outcome: OutcomePrerender, Asset: path, Function: t.revalidation(path).Function}, true
	}
	if fn, ok := t.functions[path]; ok {
		return Resolution{Outcome: OutcomeFunction, Function: fn}, true
	}
	return Resolution{}, false
}
