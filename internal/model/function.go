// Package model holds the entities passed between pipeline stages. Each stage
// consumes an immutable snapshot and produces a new one.
package model

import (
	"sort"

	"git.home.luguber.info/inful/edgebundle/internal/assets"
	"git.home.luguber.info/inful/edgebundle/internal/contenthash"
)

// RuntimeKind classifies a function directory.
type RuntimeKind string

const (
	RuntimeEdge        RuntimeKind = "edge"
	RuntimePrerendered RuntimeKind = "prerendered"
	RuntimeUnsupported RuntimeKind = "unsupported"
)

// Import is a relative module reference resolved inside a function directory.
type Import struct {
	Specifier string // as written in source
	Target    string // unit path relative to the function directory
}

// CodeUnit is one module file of a function. Content is nil once the unit has
// been hoisted into a shared chunk; ChunkID is set instead.
type CodeUnit struct {
	Path    string
	Content []byte
	Sum     contenthash.Sum
	Size    int64
	Imports []Import
	Binary  bool
	ChunkID string
}

// Hoisted reports whether the unit now lives in a shared chunk.
func (u CodeUnit) Hoisted() bool { return u.ChunkID != "" }

// Prerender carries the static-like fallback of a prerendered function.
type Prerender struct {
	Expiration  int // seconds; 0 means never revalidate
	BypassToken string
	Fallback    *assets.Asset
}

// FunctionDescriptor describes one function directory.
type FunctionDescriptor struct {
	Name    string // directory path without the .func suffix, e.g. "api/hello"
	Dir     string
	Kind    RuntimeKind
	Runtime string // raw runtime declared by the manifest
	Route   string // implicit route derived from the directory position
	Regions []string

	// Entry is nil for prerendered functions whose runtime cannot run on the edge.
	Entry *CodeUnit
	// Units are the dependency units, sorted by path. They are the dedup candidates.
	Units []CodeUnit

	Prerender *Prerender
}

// ChunkRefs returns the sorted, unique chunk ids referenced by the descriptor.
func (d *FunctionDescriptor) ChunkRefs() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, u := range d.Units {
		if !u.Hoisted() {
			continue
		}
		if _, ok := seen[u.ChunkID]; ok {
			continue
		}
		seen[u.ChunkID] = struct{}{}
		out = append(out, u.ChunkID)
	}
	sort.Strings(out)
	return out
}

// Unit finds a dependency unit by path.
func (d *FunctionDescriptor) Unit(path string) (CodeUnit, bool) {
	i := sort.Search(len(d.Units), func(i int) bool { return d.Units[i].Path >= path })
	if i < len(d.Units) && d.Units[i].Path == path {
		return d.Units[i], true
	}
	return CodeUnit{}, false
}

// HasCode reports whether the function contributes code to the bundle.
func (d *FunctionDescriptor) HasCode() bool { return d.Entry != nil }

// CodeBytes sums entry and private unit sizes.
func (d *FunctionDescriptor) CodeBytes() int64 {
	var n int64
	if d.Entry != nil {
		n += d.Entry.Size
	}
	for _, u := range d.Units {
		if !u.Hoisted() {
			n += u.Size
		}
	}
	return n
}

// WithUnits returns a shallow copy of d carrying units in place of d.Units.
func (d *FunctionDescriptor) WithUnits(units []CodeUnit) *FunctionDescriptor {
	cp := *d
	cp.Units = units
	return &cp
}

// SortFunctions orders descriptors by name, the normalised order every later stage relies on.
func SortFunctions(fns []*FunctionDescriptor) {
	sort.Slice(fns, func(i, j int) bool { return fns[i].Name < fns[j].Name })
}
