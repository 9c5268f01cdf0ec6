// Package assemble writes the worker bundle: router driver, function modules,
// shared chunks, static assets and the asset manifest.
package assemble

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/edgebundle/internal/assets"
	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
	"git.home.luguber.info/inful/edgebundle/internal/jsmodule"
	"git.home.luguber.info/inful/edgebundle/internal/logfields"
	"git.home.luguber.info/inful/edgebundle/internal/model"
	"git.home.luguber.info/inful/edgebundle/internal/routes"
)

// Output layout, relative to the output directory.
const (
	WorkerDir         = "_worker.js"
	FunctionsDir      = "__functions"
	ChunksDir         = "__chunks"
	RouterFile        = "__router.js"
	EntryFile         = "index.js"
	AssetManifestFile = "asset-manifest.json"
)

// Input is everything the assembler emits.
type Input struct {
	Manifest  *assets.Manifest
	Functions []*model.FunctionDescriptor
	Chunks    *model.ChunkSet
	Table     *routes.Table
}

// Options controls assembly.
type Options struct {
	// Minifier is applied to every emitted script module; nil disables minification.
	Minifier Minifier
	// Entrypoint replaces the generated index.js, copied verbatim.
	Entrypoint  string
	Version     string
	Concurrency int
	// Reserved names files written next to the bundle by later stages.
	Reserved []string
}

// File is one emitted file.
type File struct {
	Path string // slash path relative to the output directory
	Size int64
}

// Bundle describes the assembled output.
type Bundle struct {
	Dir      string
	Files    []File // sorted by path
	Minified int
	Warnings []*errors.ClassifiedError
}

// Bytes sums the size of every emitted file.
func (b *Bundle) Bytes() int64 {
	var n int64
	for _, f := range b.Files {
		n += f.Size
	}
	return n
}

type functionEntry struct {
	Name   string
	Module string // entry module path relative to the worker directory
}

type assembler struct {
	dir  string
	opts Options
	set  *model.ChunkSet

	mu       sync.Mutex
	files    []File
	minified int
	warnings []*errors.ClassifiedError
}

// Assemble writes the bundle for in into dir, which must exist and be empty.
func Assemble(ctx context.Context, dir string, in Input, opts Options) (*Bundle, error) {
	a := &assembler{dir: dir, opts: opts, set: in.Chunks}
	if err := CheckLayout(in.Manifest, opts.Reserved...); err != nil {
		return nil, err
	}

	if err := a.copyAssets(ctx, in.Manifest); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []functionEntry
	for _, fn := range in.Functions {
		if !fn.HasCode() {
			continue
		}
		e, err := a.emitFunction(fn)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	for _, c := range in.Chunks.All() {
		if err := a.emitChunk(c); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	router, err := renderRouter(opts.Version, in.Table, entries)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryAssembly, "render router driver").Fatal().Build()
	}
	if err := a.write(path.Join(WorkerDir, RouterFile), a.minify(path.Join(WorkerDir, RouterFile), router)); err != nil {
		return nil, err
	}
	if err := a.emitEntry(); err != nil {
		return nil, err
	}
	if err := a.writeAssetManifest(in.Manifest); err != nil {
		return nil, err
	}

	sort.Slice(a.files, func(i, j int) bool { return a.files[i].Path < a.files[j].Path })
	b := &Bundle{Dir: dir, Files: a.files, Minified: a.minified, Warnings: a.warnings}
	slog.Info("Assembled bundle",
		logfields.Output(dir),
		logfields.Count(len(b.Files)),
		logfields.Bytes(b.Bytes()),
		slog.Int("functions", len(entries)),
		slog.Int("chunks", in.Chunks.Len()))
	return b, nil
}

func (a *assembler) copyAssets(ctx context.Context, m *assets.Manifest) error {
	limit := a.opts.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, asset := range m.All() {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return a.copyFile(asset.File, asset.Source)
		})
	}
	return g.Wait()
}

func (a *assembler) emitFunction(fn *model.FunctionDescriptor) (functionEntry, error) {
	base := path.Join(FunctionsDir, fn.Name)
	hoisted := map[string]string{} // unit path -> chunk file
	for _, u := range fn.Units {
		if !u.Hoisted() {
			continue
		}
		c, ok := a.set.Get(u.ChunkID)
		if !ok {
			return functionEntry{}, errors.ChunkIntegrityError("function references a missing chunk").
				WithContext("function", fn.Name).WithContext("chunk", u.ChunkID).Build()
		}
		hoisted[u.Path] = path.Join(ChunksDir, c.File())
	}

	modules := []model.CodeUnit{*fn.Entry}
	for _, u := range fn.Units {
		if !u.Hoisted() {
			modules = append(modules, u)
		}
	}
	for _, u := range modules {
		modPath := path.Join(base, u.Path)
		content := u.Content
		if !u.Binary {
			repl := map[string]string{}
			for _, imp := range u.Imports {
				if chunkPath, ok := hoisted[imp.Target]; ok {
					repl[imp.Specifier] = jsmodule.RelativeSpecifier(modPath, chunkPath) + specifierSuffix(imp.Specifier)
				}
			}
			content = a.minify(path.Join(WorkerDir, modPath), jsmodule.Rewrite(content, repl))
		}
		if err := a.write(path.Join(WorkerDir, modPath), content); err != nil {
			return functionEntry{}, err
		}
	}
	slog.Debug("Emitted function", logfields.Function(fn.Name), logfields.Count(len(modules)))
	return functionEntry{Name: fn.Name, Module: path.Join(base, fn.Entry.Path)}, nil
}

func (a *assembler) emitChunk(c *model.Chunk) error {
	rel := path.Join(WorkerDir, ChunksDir, c.File())
	content := c.Content
	if !c.Binary {
		repl := map[string]string{}
		for _, imp := range c.Imports {
			target, ok := a.set.Get(imp.ChunkID)
			if !ok {
				return errors.ChunkIntegrityError("chunk imports a missing chunk").
					WithContext("chunk", c.ID).WithContext("import", imp.ChunkID).Build()
			}
			repl[imp.Specifier] = "./" + target.File() + specifierSuffix(imp.Specifier)
		}
		content = a.minify(rel, jsmodule.Rewrite(content, repl))
	}
	return a.write(rel, content)
}

func (a *assembler) emitEntry() error {
	rel := path.Join(WorkerDir, EntryFile)
	if a.opts.Entrypoint == "" {
		content, err := renderEntry(a.opts.Version)
		if err != nil {
			return errors.WrapError(err, errors.CategoryAssembly, "render worker entry").Fatal().Build()
		}
		return a.write(rel, content)
	}
	content, err := os.ReadFile(a.opts.Entrypoint)
	if err != nil {
		msg := "read custom entrypoint"
		if stdErrors.Is(err, fs.ErrNotExist) {
			msg = "custom entrypoint not found"
		}
		return errors.WrapError(err, errors.CategoryAssembly, msg).
			Fatal().UserAction().WithContext("path", a.opts.Entrypoint).Build()
	}
	return a.write(rel, content)
}

type assetManifestEntry struct {
	File        string `json:"file"`
	Hash        string `json:"hash"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
	Prerendered bool   `json:"prerendered,omitempty"`
}

func (a *assembler) writeAssetManifest(m *assets.Manifest) error {
	out := make(map[string]assetManifestEntry, m.Len())
	for _, asset := range m.All() {
		sum, err := asset.Hash()
		if err != nil {
			return errors.WrapError(err, errors.CategoryFileSystem, "hash asset").
				Fatal().WithContext("path", asset.Source).Build()
		}
		out[asset.Path] = assetManifestEntry{
			File:        asset.File,
			Hash:        sum.String(),
			Size:        asset.Size,
			ContentType: asset.ContentType,
			Prerendered: asset.Prerendered,
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "encode asset manifest").Fatal().Build()
	}
	return a.write(AssetManifestFile, append(data, '\n'))
}

func (a *assembler) minify(rel string, src []byte) []byte {
	if a.opts.Minifier == nil || !isMinifiable(rel) {
		return src
	}
	out, err := a.opts.Minifier.Minify(rel, src)
	if err != nil {
		w := errors.WrapError(err, errors.CategoryAssembly, "minification failed; module kept unminified").
			Warning().WithContext("path", rel).Build()
		slog.Warn("Minification failed", logfields.Path(rel), logfields.Error(err))
		a.mu.Lock()
		a.warnings = append(a.warnings, w)
		a.mu.Unlock()
		return src
	}
	a.mu.Lock()
	a.minified++
	a.mu.Unlock()
	return out
}

func isMinifiable(rel string) bool {
	switch path.Ext(rel) {
	case ".js", ".mjs":
		return true
	}
	return false
}

func (a *assembler) write(rel string, data []byte) error {
	dst := filepath.Join(a.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "create output directory").
			Fatal().WithContext("path", dst).Build()
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "write output file").
			Fatal().WithContext("path", dst).Build()
	}
	a.record(rel, int64(len(data)))
	return nil
}

func (a *assembler) copyFile(rel, src string) error {
	dst := filepath.Join(a.dir, filepath.FromSlash(rel))
	fail := func(err error, msg string) error {
		return errors.WrapError(err, errors.CategoryFileSystem, msg).
			Fatal().WithContext("path", src).Build()
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fail(err, "create asset directory")
	}
	in, err := os.Open(src)
	if err != nil {
		return fail(err, "open asset")
	}
	defer func() { _ = in.Close() }()
	out, err := os.Create(dst)
	if err != nil {
		return fail(err, "create asset")
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fail(err, "copy asset")
	}
	a.record(rel, n)
	return nil
}

func (a *assembler) record(rel string, size int64) {
	a.mu.Lock()
	a.files = append(a.files, File{Path: rel, Size: size})
	a.mu.Unlock()
}

// specifierSuffix keeps a query or fragment such as "?module" when a specifier is rewritten.
func specifierSuffix(spec string) string {
	if i := strings.IndexAny(spec, "?#"); i >= 0 {
		return spec[i:]
	}
	return ""
}
