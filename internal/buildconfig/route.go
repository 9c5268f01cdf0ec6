package buildconfig

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
)

// Kind tags a route variant.
type Kind string

const (
	KindRewrite    Kind = "rewrite"
	KindRedirect   Kind = "redirect"
	KindHeader     Kind = "header"
	KindFilesystem Kind = "filesystem"
	KindMiss       Kind = "miss"
)

// matchTimeout bounds a single pattern evaluation; route patterns come from user config.
const matchTimeout = 100 * time.Millisecond

// Route is a closed union over the five route variants. The variants share an
// unexported base, so only this package can construct them; switch on it
// through Visitor so a new variant fails to compile until every consumer
// handles it.
type Route interface {
	Kind() Kind
	// Source is the raw pattern text; empty for phase markers.
	Source() string
	// Continues reports whether evaluation proceeds after this rule fires.
	Continues() bool
	// Matches evaluates the source pattern against a request path.
	Matches(path string) (Match, bool)
	Accept(v Visitor)
	sealed()
}

// Visitor dispatches on the concrete route variant.
type Visitor interface {
	VisitRewrite(Rewrite)
	VisitRedirect(Redirect)
	VisitHeader(HeaderInjection)
	VisitFilesystem(FilesystemFallback)
	VisitMiss(Miss)
}

// Match carries the capture groups of a successful pattern evaluation.
type Match struct {
	Groups []string          // positional, index 0 is the whole match
	Named  map[string]string // named groups
}

// rule holds the fields common to every pattern-bearing variant.
type rule struct {
	Src      string
	Continue bool
	Headers  map[string]string
	re       *regexp2.Regexp
}

func (r rule) Source() string  { return r.Src }
func (r rule) Continues() bool { return r.Continue }

// Matches evaluates the compiled pattern. Rules without a pattern never match.
func (r rule) Matches(path string) (Match, bool) {
	if r.re == nil {
		return Match{}, false
	}
	m, err := r.re.FindStringMatch(path)
	if err != nil || m == nil {
		return Match{}, false
	}
	out := Match{Named: map[string]string{}}
	for _, g := range m.Groups() {
		out.Groups = append(out.Groups, g.String())
		if g.Name != "" && !isDigits(g.Name) {
			out.Named[g.Name] = g.String()
		}
	}
	return out, true
}

func (rule) sealed() {}

// Rewrite replaces the request path with Dest and serves the result.
type Rewrite struct {
	rule
	Dest   string
	Status int
}

func (Rewrite) Kind() Kind         { return KindRewrite }
func (r Rewrite) Accept(v Visitor) { v.VisitRewrite(r) }

// Redirect answers with a Location header and a 3xx status.
type Redirect struct {
	rule
	Location string
	Status   int
}

func (Redirect) Kind() Kind         { return KindRedirect }
func (r Redirect) Accept(v Visitor) { v.VisitRedirect(r) }

// HeaderInjection adds response headers for matching paths.
type HeaderInjection struct {
	rule
}

func (HeaderInjection) Kind() Kind         { return KindHeader }
func (r HeaderInjection) Accept(v Visitor) { v.VisitHeader(r) }

// FilesystemFallback marks the point where static assets and function routes are checked.
type FilesystemFallback struct {
	rule
}

func (FilesystemFallback) Kind() Kind         { return KindFilesystem }
func (r FilesystemFallback) Accept(v Visitor) { v.VisitFilesystem(r) }

// Miss opens the miss phase. With a source pattern it is a catch-all that
// serves Dest with Status when nothing earlier matched.
type Miss struct {
	rule
	Dest   string
	Status int
}

func (Miss) Kind() Kind         { return KindMiss }
func (r Miss) Accept(v Visitor) { v.VisitMiss(r) }

// IsMarker reports whether a filesystem or miss route carries no pattern.
func IsMarker(r Route) bool {
	switch r.Kind() {
	case KindFilesystem, KindMiss:
		return r.Source() == ""
	default:
		return false
	}
}

func compilePattern(src string) (*regexp2.Regexp, error) {
	if src == "" {
		return nil, nil
	}
	// the router evaluates patterns with JavaScript RegExp
	re, err := regexp2.Compile(src, regexp2.ECMAScript)
	if err != nil {
		return nil, fmt.Errorf("compile route pattern %q: %w", src, err)
	}
	re.MatchTimeout = matchTimeout
	return re, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
