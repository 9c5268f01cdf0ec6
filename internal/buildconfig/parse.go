package buildconfig

import (
	stdErrors "errors"
	"fmt"
	"strings"
)

var errUnknownVariant = stdErrors.New("unrecognized route variant")

type rawRoute struct {
	Kind     *string           `json:"kind"`
	Handle   *string           `json:"handle"`
	Src      string            `json:"src"`
	Dest     string            `json:"dest"`
	Status   int               `json:"status"`
	Headers  map[string]string `json:"headers"`
	Continue bool              `json:"continue"`
}

func (rr rawRoute) toRoute() (Route, error) {
	kind, err := rr.kind()
	if err != nil {
		return nil, err
	}
	base := rule{Src: rr.Src, Continue: rr.Continue, Headers: rr.Headers}
	if kind == KindFilesystem || (kind == KindMiss && rr.Src == "") {
		// phase markers carry no pattern
		base = rule{}
	}
	re, err := compilePattern(base.Src)
	if err != nil {
		return nil, err
	}
	base.re = re

	switch kind {
	case KindRewrite:
		if rr.Src == "" || rr.Dest == "" {
			return nil, fmt.Errorf("rewrite requires src and dest")
		}
		return Rewrite{rule: base, Dest: rr.Dest, Status: rr.Status}, nil
	case KindRedirect:
		if rr.Src == "" {
			return nil, fmt.Errorf("redirect requires src")
		}
		loc := rr.Dest
		if loc == "" {
			loc = headerValue(rr.Headers, "Location")
		}
		if loc == "" {
			return nil, fmt.Errorf("redirect requires a destination or Location header")
		}
		status := rr.Status
		if status == 0 {
			status = 307
		}
		if status < 300 || status > 399 {
			return nil, fmt.Errorf("redirect status %d is not 3xx", status)
		}
		return Redirect{rule: base, Location: loc, Status: status}, nil
	case KindHeader:
		if rr.Src == "" || len(rr.Headers) == 0 {
			return nil, fmt.Errorf("header rule requires src and headers")
		}
		return HeaderInjection{rule: base}, nil
	case KindFilesystem:
		return FilesystemFallback{rule: base}, nil
	case KindMiss:
		return Miss{rule: base, Dest: rr.Dest, Status: rr.Status}, nil
	}
	return nil, fmt.Errorf("%w: %q", errUnknownVariant, kind)
}

// kind resolves the variant tag: explicit kind, handle marker, or route shape.
func (rr rawRoute) kind() (Kind, error) {
	if rr.Kind != nil {
		switch k := Kind(*rr.Kind); k {
		case KindRewrite, KindRedirect, KindHeader, KindFilesystem, KindMiss:
			return k, nil
		default:
			return "", fmt.Errorf("%w: kind %q", errUnknownVariant, *rr.Kind)
		}
	}
	if rr.Handle != nil {
		switch *rr.Handle {
		case "filesystem":
			return KindFilesystem, nil
		case "miss":
			return KindMiss, nil
		default:
			return "", fmt.Errorf("%w: handle %q", errUnknownVariant, *rr.Handle)
		}
	}
	switch {
	case rr.Status >= 300 && rr.Status <= 399 && (rr.Dest != "" || headerValue(rr.Headers, "Location") != ""):
		return KindRedirect, nil
	case rr.Dest != "":
		return KindRewrite, nil
	case rr.Src != "" && len(rr.Headers) > 0:
		return KindHeader, nil
	}
	return "", fmt.Errorf("%w: route has no recognizable shape", errUnknownVariant)
}

func headerValue(h map[string]string, name string) string {
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
