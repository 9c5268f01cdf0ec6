// Package chunks groups identical dependency code units across functions and
// hoists shared ones into content-addressed chunks.
package chunks

import (
	"bytes"
	"sort"
	"sync"

	"git.home.luguber.info/inful/edgebundle/internal/contenthash"
	foundationerrors "git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
	"git.home.luguber.info/inful/edgebundle/internal/model"
)

// Occurrence locates one registered code unit.
type Occurrence struct {
	Function string
	Path     string
}

// Group is every occurrence of one identity.
type Group struct {
	Sum         contenthash.Sum
	Content     []byte
	Occurrences []Occurrence // sorted by function, then path
}

// Functions returns the distinct function names referencing the group, sorted.
func (g Group) Functions() []string {
	var out []string
	for _, o := range g.Occurrences {
		if len(out) == 0 || out[len(out)-1] != o.Function {
			out = append(out, o.Function)
		}
	}
	return out
}

// Registry collects dedup candidates for one build. It is safe for concurrent
// use by the function processor's workers and must not outlive the build.
type Registry struct {
	mu     sync.Mutex
	groups map[contenthash.Sum]*Group
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{groups: make(map[contenthash.Sum]*Group)}
}

// Register records unit as a candidate referenced by fn.
func (r *Registry) Register(fn string, unit model.CodeUnit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[unit.Sum]
	if !ok {
		r.groups[unit.Sum] = &Group{
			Sum:         unit.Sum,
			Content:     unit.Content,
			Occurrences: []Occurrence{{Function: fn, Path: unit.Path}},
		}
		return nil
	}
	if !bytes.Equal(g.Content, unit.Content) {
		first := g.Occurrences[0]
		return foundationerrors.ChunkIntegrityError("distinct content with equal identity").
			WithContext("chunk", unit.Sum.String()).
			WithContext("first", first.Function+":"+first.Path).
			WithContext("second", fn+":"+unit.Path).
			Build()
	}
	g.Occurrences = append(g.Occurrences, Occurrence{Function: fn, Path: unit.Path})
	return nil
}

// Groups returns a snapshot of all groups sorted by identity.
func (r *Registry) Groups() []Group {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Group, 0, len(r.groups))
	for _, g := range r.groups {
		occ := append([]Occurrence(nil), g.Occurrences...)
		sort.Slice(occ, func(i, j int) bool {
			if occ[i].Function != occ[j].Function {
				return occ[i].Function < occ[j].Function
			}
			return occ[i].Path < occ[j].Path
		})
		out = append(out, Group{Sum: g.Sum, Content: g.Content, Occurrences: occ})
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Sum[:], out[j].Sum[:]) < 0 })
	return out
}

// Len returns the number of distinct identities.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}
