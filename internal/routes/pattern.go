package routes

import (
	"regexp"
	"strings"
)

var captureRef = regexp.MustCompile(`\$(\d+|[A-Za-z_][A-Za-z0-9_]*)`)

// isLiteralDest reports whether dest references no capture groups.
func isLiteralDest(dest string) bool {
	return !captureRef.MatchString(dest)
}

// substitute expands $1 and $name references with captured groups. Unknown
// references expand to the empty string.
func substitute(tmpl string, groups []string, named map[string]string) string {
	return captureRef.ReplaceAllStringFunc(tmpl, func(ref string) string {
		name := ref[1:]
		if v, ok := named[name]; ok {
			return v
		}
		idx := 0
		for _, c := range name {
			if c < '0' || c > '9' {
				return ""
			}
			idx = idx*10 + int(c-'0')
		}
		if idx < len(groups) {
			return groups[idx]
		}
		return ""
	})
}

// pathOnly strips a query string and fragment.
func pathOnly(dest string) string {
	if i := strings.IndexAny(dest, "?#"); i >= 0 {
		return dest[:i]
	}
	return dest
}

func isExternal(dest string) bool {
	return strings.HasPrefix(dest, "https://") || strings.HasPrefix(dest, "http://")
}
