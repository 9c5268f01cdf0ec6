// Package functions turns the function directories of the intermediate output
// into descriptors, registering their dependency units for deduplication.
package functions

import (
	"context"
	stdErrors "errors"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/edgebundle/internal/assets"
	"git.home.luguber.info/inful/edgebundle/internal/chunks"
	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
	"git.home.luguber.info/inful/edgebundle/internal/logfields"
	"git.home.luguber.info/inful/edgebundle/internal/model"
)

// Options controls processing.
type Options struct {
	// Concurrency bounds the worker pool; zero means runtime.NumCPU().
	Concurrency int
}

// Skipped records a function left out of the bundle.
type Skipped struct {
	Name    string
	Runtime string
	Err     *errors.ClassifiedError
}

// Result holds processed functions sorted by name.
type Result struct {
	Functions []*model.FunctionDescriptor
	Skipped   []Skipped
}

// Count returns how many functions of kind were seen, skipped ones included.
func (r *Result) Count(kind model.RuntimeKind) int {
	if kind == model.RuntimeUnsupported {
		return len(r.Skipped)
	}
	n := 0
	for _, fn := range r.Functions {
		if fn.Kind == kind {
			n++
		}
	}
	return n
}

// Fallbacks returns the prerender fallback assets, sorted by path.
func (r *Result) Fallbacks() []*assets.Asset {
	var out []*assets.Asset
	for _, fn := range r.Functions {
		if fn.Prerender != nil && fn.Prerender.Fallback != nil {
			out = append(out, fn.Prerender.Fallback)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

type outcome struct {
	fn      *model.FunctionDescriptor
	skipped *Skipped
}

// Process classifies every function directory under root and loads its code.
// A missing root yields an empty result.
func Process(ctx context.Context, root string, reg *chunks.Registry, opts Options) (*Result, error) {
	names, err := discover(root)
	if err != nil {
		return nil, err
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	outcomes := make([]outcome, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			o, err := processOne(root, name, reg)
			if err != nil {
				return err
			}
			outcomes[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{}
	for _, o := range outcomes {
		switch {
		case o.skipped != nil:
			res.Skipped = append(res.Skipped, *o.skipped)
		case o.fn != nil:
			res.Functions = append(res.Functions, o.fn)
		}
	}
	model.SortFunctions(res.Functions)
	if err := checkRoutes(res.Functions); err != nil {
		return nil, err
	}
	slog.Info("Processed functions",
		slog.Int("edge", res.Count(model.RuntimeEdge)),
		slog.Int("prerendered", res.Count(model.RuntimePrerendered)),
		slog.Int("unsupported", res.Count(model.RuntimeUnsupported)))
	return res, nil
}

// checkRoutes rejects two functions serving the same implicit route, such as
// blog.func and blog/index.func.
func checkRoutes(fns []*model.FunctionDescriptor) error {
	seen := make(map[string]string, len(fns))
	for _, fn := range fns {
		if prev, ok := seen[fn.Route]; ok {
			return errors.ConfigError("two functions serve the same route").
				WithContext(errors.ContextFunction, fn.Name).
				WithContext("other", prev).
				WithContext("route", fn.Route).
				Build()
		}
		seen[fn.Route] = fn.Name
	}
	return nil
}

// discover returns function names (slash paths without the suffix), sorted.
// Symlinked function directories are followed.
func discover(root string) ([]string, error) {
	if _, err := os.Stat(root); stdErrors.Is(err, fs.ErrNotExist) {
		slog.Debug("No functions directory", logfields.Path(root))
		return nil, nil
	}
	var names []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !strings.HasSuffix(d.Name(), DirSuffix) {
			return nil
		}
		isDir := d.IsDir()
		if d.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(p)
			if err != nil {
				return err
			}
			isDir = info.IsDir()
		}
		if !isDir {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		names = append(names, strings.TrimSuffix(filepath.ToSlash(rel), DirSuffix))
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "scan functions directory").
			Fatal().WithContext("path", root).Build()
	}
	sort.Strings(names)
	return names, nil
}

// ImplicitRoute maps a function name to the route it serves. A trailing
// "index" segment maps to its parent.
func ImplicitRoute(name string) string {
	r := assets.RoutingPath(name)
	if r == "/index" {
		return "/"
	}
	return strings.TrimSuffix(r, "/index")
}

func processOne(root, name string, reg *chunks.Registry) (outcome, error) {
	dir := filepath.Join(root, filepath.FromSlash(name)+DirSuffix)
	m, err := readManifest(filepath.Join(dir, ManifestFile))
	if err != nil {
		return outcome{}, err
	}
	pre, err := readPrerenderConfig(filepath.Join(root, filepath.FromSlash(name)+PrerenderSuffix))
	if err != nil {
		return outcome{}, err
	}

	fn := &model.FunctionDescriptor{
		Name:    name,
		Dir:     dir,
		Runtime: m.Runtime,
		Route:   ImplicitRoute(name),
		Regions: m.Regions,
	}
	switch {
	case pre != nil:
		fn.Kind = model.RuntimePrerendered
	case m.Runtime == edgeRuntime:
		fn.Kind = model.RuntimeEdge
	default:
		cerr := errors.FunctionUnsupportedError("function runtime cannot run on the edge").
			WithContext("function", name).
			WithContext("runtime", m.Runtime).
			Build()
		slog.Warn("Skipping function", logfields.Function(name), logfields.Runtime(m.Runtime))
		return outcome{skipped: &Skipped{Name: name, Runtime: m.Runtime, Err: cerr}}, nil
	}

	if pre != nil {
		fallback, err := fallbackAsset(root, name, fn.Route, pre.Fallback)
		if err != nil {
			return outcome{}, err
		}
		fn.Prerender = &model.Prerender{Expiration: pre.Expiration, BypassToken: pre.BypassToken, Fallback: fallback}
	}

	// Prerendered functions on other runtimes are served from their fallback only.
	if m.Runtime == edgeRuntime {
		entry, units, err := loadGraph(dir, m.Entrypoint)
		if err != nil {
			return outcome{}, err
		}
		fn.Entry = entry
		fn.Units = units
		for _, u := range units {
			if err := reg.Register(name, u); err != nil {
				return outcome{}, err
			}
		}
	}

	slog.Debug("Function processed",
		logfields.Function(name),
		logfields.Runtime(m.Runtime),
		logfields.Route(fn.Route),
		logfields.Count(len(fn.Units)))
	return outcome{fn: fn}, nil
}

func fallbackAsset(root, name, route, file string) (*assets.Asset, error) {
	parent := path.Dir(name)
	src := filepath.Join(root, filepath.FromSlash(parent), filepath.FromSlash(file))
	info, err := os.Stat(src)
	if err != nil || !info.Mode().IsRegular() {
		b := errors.ConfigError("prerender fallback file is not readable").
			UserAction().
			WithContext("function", name).
			WithContext("path", src)
		if err != nil {
			b = b.WithCause(err)
		}
		return nil, b.Build()
	}
	a := assets.New(route, path.Join(prerenderPrefix, name, path.Base(filepath.ToSlash(file))), src, info.Size())
	a.Prerendered = true
	return a, nil
}

func sortUnits(units []model.CodeUnit) {
	sort.Slice(units, func(i, j int) bool { return units[i].Path < units[j].Path })
}
