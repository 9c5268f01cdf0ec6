package testing

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Rule is one route rule written to config.json.
type Rule map[string]any

// FunctionSpec describes a function directory written by the builder.
type FunctionSpec struct {
	Runtime    string
	Entrypoint string            // defaults to index.js
	Files      map[string]string // relative path -> content; must include the entrypoint
	Regions    []string
}

// PrerenderSpec marks a function as prerendered.
type PrerenderSpec struct {
	Fallback    string // file name next to the function directory
	Content     string
	Expiration  any // int or false
	BypassToken string
}

// OutputBuilder provides a fluent interface for creating intermediate output trees.
type OutputBuilder struct {
	t       *testing.T
	root    string
	version int
	routes  []Rule
	raw     string
	wrote   bool
}

// NewOutputBuilder creates a builder rooted at a fresh temp directory.
func NewOutputBuilder(t *testing.T) *OutputBuilder {
	t.Helper()
	return &OutputBuilder{t: t, root: t.TempDir(), version: 3}
}

// Root returns the intermediate output root.
func (b *OutputBuilder) Root() string { return b.root }

// WithVersion sets the schema version written to config.json.
func (b *OutputBuilder) WithVersion(v int) *OutputBuilder {
	b.version = v
	return b
}

// WithRoutes appends route rules.
func (b *OutputBuilder) WithRoutes(rules ...Rule) *OutputBuilder {
	b.routes = append(b.routes, rules...)
	return b
}

// WithRawConfig writes config.json verbatim instead of generating it.
func (b *OutputBuilder) WithRawConfig(content string) *OutputBuilder {
	b.raw = content
	return b
}

// WithoutConfig skips writing config.json.
func (b *OutputBuilder) WithoutConfig() *OutputBuilder {
	b.wrote = true
	return b
}

// WithStatic writes a static file at rel under static/.
func (b *OutputBuilder) WithStatic(rel, content string) *OutputBuilder {
	b.t.Helper()
	WriteFile(b.t, filepath.Join(b.root, "static", filepath.FromSlash(rel)), content)
	return b
}

// WithEdgeFunction writes an edge function with a single entry file.
func (b *OutputBuilder) WithEdgeFunction(name, entry string) *OutputBuilder {
	return b.WithFunction(name, FunctionSpec{Runtime: "edge", Files: map[string]string{"index.js": entry}})
}

// WithFunction writes functions/<name>.func with its manifest and files.
func (b *OutputBuilder) WithFunction(name string, spec FunctionSpec) *OutputBuilder {
	b.t.Helper()
	dir := b.functionDir(name)
	manifest := map[string]any{"runtime": spec.Runtime}
	if spec.Entrypoint != "" {
		manifest["entrypoint"] = spec.Entrypoint
	}
	if len(spec.Regions) > 0 {
		manifest["regions"] = spec.Regions
	}
	WriteJSON(b.t, filepath.Join(dir, ".vc-config.json"), manifest)
	for rel, content := range spec.Files {
		WriteFile(b.t, filepath.Join(dir, filepath.FromSlash(rel)), content)
	}
	return b
}

// WithPrerender writes the prerender config and fallback next to function name.
func (b *OutputBuilder) WithPrerender(name string, spec PrerenderSpec) *OutputBuilder {
	b.t.Helper()
	parent := filepath.Dir(b.functionDir(name))
	cfg := map[string]any{"fallback": spec.Fallback}
	if spec.Expiration != nil {
		cfg["expiration"] = spec.Expiration
	}
	if spec.BypassToken != "" {
		cfg["bypassToken"] = spec.BypassToken
	}
	WriteJSON(b.t, filepath.Join(b.root, "functions", filepath.FromSlash(name)+".prerender-config.json"), cfg)
	if spec.Content != "" {
		WriteFile(b.t, filepath.Join(parent, spec.Fallback), spec.Content)
	}
	return b
}

// WithFunctionLink makes functions/<name>.func a symlink to functions/<target>.func.
func (b *OutputBuilder) WithFunctionLink(name, target string) *OutputBuilder {
	b.t.Helper()
	link := b.functionDir(name)
	if err := os.MkdirAll(filepath.Dir(link), testDirPermissions); err != nil {
		b.t.Fatalf("mkdir for link %s: %v", link, err)
	}
	if err := os.Symlink(b.functionDir(target), link); err != nil {
		b.t.Skipf("symlinks unavailable: %v", err)
	}
	return b
}

// Build writes config.json (unless already written) and returns the root.
func (b *OutputBuilder) Build() string {
	b.t.Helper()
	if b.wrote {
		return b.root
	}
	b.wrote = true
	path := filepath.Join(b.root, "config.json")
	if b.raw != "" {
		WriteFile(b.t, path, b.raw)
		return b.root
	}
	routes := b.routes
	if routes == nil {
		routes = []Rule{}
	}
	WriteJSON(b.t, path, map[string]any{"version": b.version, "routes": routes})
	return b.root
}

func (b *OutputBuilder) functionDir(name string) string {
	return filepath.Join(b.root, "functions", filepath.FromSlash(strings.TrimSuffix(name, ".func"))+".func")
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), testDirPermissions); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), testFilePermissions); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteJSON marshals v to path.
func WriteJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	WriteFile(t, path, string(data))
}
