// Package assets enumerates the static tree of the intermediate output into a
// manifest of routing path to content identity.
package assets

import (
	"context"
	stdErrors "errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/edgebundle/internal/buildconfig"
	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
	"git.home.luguber.info/inful/edgebundle/internal/logfields"
)

// RoutingPath converts a slash-separated relative file path into a routing key.
// Keys are NFC-normalised so that names written by different filesystems compare equal.
func RoutingPath(rel string) string {
	return "/" + norm.NFC.String(strings.TrimPrefix(filepath.ToSlash(rel), "/"))
}

// Collect walks staticRoot recursively. A missing root yields an empty manifest.
// Overrides (keyed by relative file path) replace the routing path and content type.
func Collect(ctx context.Context, staticRoot string, overrides map[string]buildconfig.Override) (*Manifest, error) {
	if _, err := os.Stat(staticRoot); stdErrors.Is(err, fs.ErrNotExist) {
		slog.Debug("No static directory; continuing without static assets", logfields.Path(staticRoot))
		return NewManifest()
	}

	var list []*Asset
	err := filepath.WalkDir(staticRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(staticRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		a := New(RoutingPath(rel), rel, path, info.Size())
		if ov, ok := overrides[rel]; ok {
			if ov.Path != "" {
				a.Path = RoutingPath(ov.Path)
			}
			a.ContentType = ov.ContentType
		}
		list = append(list, a)
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "walk static assets").
			Fatal().WithContext("path", staticRoot).Build()
	}

	m, err := NewManifest(list...)
	if err != nil {
		return nil, err
	}
	slog.Info("Static assets collected", logfields.Count(m.Len()), logfields.Bytes(m.TotalBytes()))
	return m, nil
}
