// Package jsmodule finds and rewrites module specifiers in JavaScript source
// without evaluating it.
package jsmodule

import (
	"path"
	"regexp"
	"strings"
)

// Each alternative captures the quoted specifier in its own group.
var specifierPattern = regexp.MustCompile(
	`(?m)(?:\bimport\s+(?:[^'"();]+?\s+from\s+)?|\bexport\s+[^'"();]*?\s+from\s+)['"]([^'"\n]+)['"]` +
		`|\bimport\s*\(\s*['"]([^'"\n]+)['"]\s*\)` +
		`|\brequire\s*\(\s*['"]([^'"\n]+)['"]\s*\)`)

// Specifier is one module reference found in source.
type Specifier struct {
	Value      string
	Start, End int // byte offsets of Value inside the source
}

// Scan returns every static, dynamic and require() specifier in source order.
func Scan(src []byte) []Specifier {
	var out []Specifier
	for _, loc := range specifierPattern.FindAllSubmatchIndex(src, -1) {
		for g := 1; g < len(loc)/2; g++ {
			s, e := loc[2*g], loc[2*g+1]
			if s < 0 {
				continue
			}
			out = append(out, Specifier{Value: string(src[s:e]), Start: s, End: e})
			break
		}
	}
	return out
}

// IsRelative reports whether spec is a ./ or ../ reference.
func IsRelative(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}

// Resolve joins a relative specifier onto the slash path of the importing
// module. Query and fragment suffixes are dropped. ok is false when the
// result escapes the module root.
func Resolve(importer, spec string) (string, bool) {
	if i := strings.IndexAny(spec, "?#"); i >= 0 {
		spec = spec[:i]
	}
	joined := path.Join(path.Dir(importer), spec)
	if joined == ".." || strings.HasPrefix(joined, "../") {
		return "", false
	}
	return joined, true
}

// Rewrite replaces specifiers found in replacements and returns the new source.
// Unlisted specifiers are kept byte for byte.
func Rewrite(src []byte, replacements map[string]string) []byte {
	if len(replacements) == 0 {
		return src
	}
	var b strings.Builder
	b.Grow(len(src))
	last := 0
	for _, s := range Scan(src) {
		repl, ok := replacements[s.Value]
		if !ok {
			continue
		}
		b.Write(src[last:s.Start])
		b.WriteString(repl)
		last = s.End
	}
	b.Write(src[last:])
	return []byte(b.String())
}

// RelativeSpecifier returns a ./ or ../ specifier that reaches to from the module at from.
func RelativeSpecifier(from, to string) string {
	fromParts := splitDir(path.Dir(from))
	toParts := strings.Split(to, "/")
	i := 0
	for i < len(fromParts) && i < len(toParts)-1 && fromParts[i] == toParts[i] {
		i++
	}
	var b strings.Builder
	if i == len(fromParts) {
		b.WriteString("./")
	} else {
		b.WriteString(strings.Repeat("../", len(fromParts)-i))
	}
	b.WriteString(strings.Join(toParts[i:], "/"))
	return b.String()
}

func splitDir(dir string) []string {
	if dir == "." || dir == "" {
		return nil
	}
	return strings.Split(dir, "/")
}
