package chunks

import (
	"context"
	"log/slog"
	"path"
	"slices"
	"sort"

	"git.home.luguber.info/inful/edgebundle/internal/contenthash"
	foundationerrors "git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
	"git.home.luguber.info/inful/edgebundle/internal/logfields"
	"git.home.luguber.info/inful/edgebundle/internal/model"
)

// Options controls deduplication.
type Options struct {
	Disabled bool
}

// Result is the deduplicated function set.
type Result struct {
	Functions  []*model.FunctionDescriptor
	Chunks     *model.ChunkSet
	BytesSaved int64
	// Demoted counts shared identities kept private because hoisting them
	// would have changed what they import.
	Demoted int
}

type unitKey struct {
	fn, path string
}

// Deduplicate hoists code units referenced by two or more functions into
// chunks and rewrites each descriptor to reference them. Functions are
// returned in the order given; the input descriptors are not modified.
func Deduplicate(ctx context.Context, fns []*model.FunctionDescriptor, reg *Registry, opts Options) (*Result, error) {
	if opts.Disabled {
		slog.Info("Chunk deduplication disabled")
		return &Result{Functions: fns, Chunks: model.NewChunkSet()}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	units := make(map[unitKey]model.CodeUnit)
	byName := make(map[string]*model.FunctionDescriptor, len(fns))
	for _, fn := range fns {
		byName[fn.Name] = fn
		for _, u := range fn.Units {
			units[unitKey{fn.Name, u.Path}] = u
		}
	}

	groups := reg.Groups()
	bySum := make(map[contenthash.Sum]Group, len(groups))
	hoisted := make(map[contenthash.Sum]bool)
	for _, g := range groups {
		for _, o := range g.Occurrences {
			if _, ok := units[unitKey{o.Function, o.Path}]; !ok {
				return nil, foundationerrors.InternalError("registered unit has no descriptor").
					WithContext("function", o.Function).
					WithContext("path", o.Path).
					Build()
			}
		}
		bySum[g.Sum] = g
		if len(g.Functions()) >= 2 {
			hoisted[g.Sum] = true
		}
	}
	shared := len(hoisted)

	// A hoisted unit must keep importing exactly what it imported before, so
	// every relative import target has to be hoisted too and must resolve to
	// the same identity in every referencer.
	for changed := true; changed; {
		changed = false
		for _, g := range groups {
			if hoisted[g.Sum] && !importsStable(g, units, hoisted) {
				delete(hoisted, g.Sum)
				changed = true
				slog.Debug("Shared unit kept private", logfields.Chunk(g.Sum.Short()), logfields.Path(g.Occurrences[0].Path))
			}
		}
	}

	chunkList := make([]*model.Chunk, 0, len(hoisted))
	var saved int64
	for _, g := range groups {
		if !hoisted[g.Sum] {
			continue
		}
		first := units[unitKey{g.Occurrences[0].Function, g.Occurrences[0].Path}]
		c := &model.Chunk{
			ID:           g.Sum.String(),
			Ext:          path.Ext(first.Path),
			Content:      g.Content,
			Binary:       first.Binary,
			ReferencedBy: g.Functions(),
		}
		for _, imp := range first.Imports {
			target := units[unitKey{g.Occurrences[0].Function, imp.Target}]
			c.Imports = append(c.Imports, model.ChunkImport{Specifier: imp.Specifier, ChunkID: target.Sum.String()})
		}
		saved += int64(len(c.Content)) * int64(len(c.ReferencedBy)-1)
		chunkList = append(chunkList, c)
		slog.Debug("Hoisted chunk", logfields.Chunk(g.Sum.Short()), logfields.Count(len(c.ReferencedBy)), logfields.Bytes(int64(len(c.Content))))
	}
	set := model.NewChunkSet(chunkList...)

	out := make([]*model.FunctionDescriptor, len(fns))
	for i, fn := range fns {
		if len(fn.Units) == 0 {
			out[i] = fn
			continue
		}
		rewritten := make([]model.CodeUnit, len(fn.Units))
		for j, u := range fn.Units {
			if hoisted[u.Sum] {
				u.ChunkID = u.Sum.String()
				u.Content = nil
			}
			rewritten[j] = u
		}
		out[i] = fn.WithUnits(rewritten)
	}

	if err := verify(out, set); err != nil {
		return nil, err
	}

	slog.Info("Deduplicated shared code",
		logfields.Count(set.Len()),
		slog.Int("demoted", shared-len(hoisted)),
		slog.Int64("bytes_saved", saved))
	return &Result{Functions: out, Chunks: set, BytesSaved: saved, Demoted: shared - len(hoisted)}, nil
}

func importsStable(g Group, units map[unitKey]model.CodeUnit, hoisted map[contenthash.Sum]bool) bool {
	var want []contenthash.Sum
	for i, o := range g.Occurrences {
		u := units[unitKey{o.Function, o.Path}]
		got := make([]contenthash.Sum, 0, len(u.Imports))
		for _, imp := range u.Imports {
			target, ok := units[unitKey{o.Function, imp.Target}]
			if !ok || !hoisted[target.Sum] {
				return false
			}
			got = append(got, target.Sum)
		}
		if i == 0 {
			want = got
			continue
		}
		if !slices.Equal(got, want) {
			return false
		}
	}
	return true
}

// verify checks that every chunk reference resolves and every chunk is referenced.
func verify(fns []*model.FunctionDescriptor, set *model.ChunkSet) error {
	refs := make(map[string][]string)
	for _, fn := range fns {
		for _, id := range fn.ChunkRefs() {
			if _, ok := set.Get(id); !ok {
				return foundationerrors.ChunkIntegrityError("function references a missing chunk").
					WithContext("function", fn.Name).
					WithContext("chunk", id).
					Build()
			}
			refs[id] = append(refs[id], fn.Name)
		}
	}
	for _, c := range set.All() {
		for _, imp := range c.Imports {
			if _, ok := set.Get(imp.ChunkID); !ok {
				return foundationerrors.ChunkIntegrityError("chunk imports a missing chunk").
					WithContext("chunk", c.ID).
					WithContext("import", imp.ChunkID).
					Build()
			}
		}
		got := refs[c.ID]
		if len(got) == 0 {
			return foundationerrors.ChunkIntegrityError("orphan chunk").
				WithContext("chunk", c.ID).
				Build()
		}
		sort.Strings(got)
		if !slices.Equal(got, c.ReferencedBy) {
			return foundationerrors.ChunkIntegrityError("chunk referencers disagree with descriptors").
				WithContext("chunk", c.ID).
				Build()
		}
	}
	return nil
}
