package assemble

import (
	"strings"

	"git.home.luguber.info/inful/edgebundle/internal/assets"
	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
)

// CheckLayout fails when an asset would be written over a generated bundle
// file or over another asset. reserved names further generated files,
// relative to the output directory.
func CheckLayout(m *assets.Manifest, reserved ...string) error {
	generated := append([]string{WorkerDir, AssetManifestFile}, reserved...)
	files := make(map[string]string, m.Len())
	for _, a := range m.All() {
		for _, r := range generated {
			if a.File == r || strings.HasPrefix(a.File, r+"/") {
				return errors.AssetCollisionError("static asset collides with a generated bundle file").
					WithContext(errors.ContextPath, a.Path).
					WithContext("generated", r).
					Build()
			}
		}
		if prev, ok := files[a.File]; ok {
			return errors.AssetCollisionError("two assets are written to the same output file").
				WithContext(errors.ContextPath, a.Path).
				WithContext("first", prev).
				WithContext("file", a.File).
				Build()
		}
		files[a.File] = a.Path
	}
	return nil
}
