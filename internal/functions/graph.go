package functions

import (
	stdErrors "errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"git.home.luguber.info/inful/edgebundle/internal/contenthash"
	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
	"git.home.luguber.info/inful/edgebundle/internal/jsmodule"
	"git.home.luguber.info/inful/edgebundle/internal/model"
)

var scriptExt = map[string]bool{".js": true, ".mjs": true, ".cjs": true}

// IsScript reports whether a unit path is scanned for imports.
func IsScript(p string) bool { return scriptExt[path.Ext(p)] }

// loadGraph reads the entry and every unit reachable from it through relative
// specifiers that stay inside dir. Units are returned sorted by path.
func loadGraph(dir, entry string) (*model.CodeUnit, []model.CodeUnit, error) {
	entry = path.Clean(filepath.ToSlash(entry))
	seen := map[string]bool{entry: true}
	queue := []string{entry}
	var root *model.CodeUnit
	var units []model.CodeUnit

	for len(queue) > 0 {
		rel := queue[0]
		queue = queue[1:]

		u, err := readUnit(dir, rel, rel == entry)
		if err != nil {
			return nil, nil, err
		}
		for _, imp := range u.Imports {
			if !seen[imp.Target] {
				seen[imp.Target] = true
				queue = append(queue, imp.Target)
			}
		}
		if rel == entry {
			root = &u
			continue
		}
		units = append(units, u)
	}

	sortUnits(units)
	return root, units, nil
}

func readUnit(dir, rel string, isEntry bool) (model.CodeUnit, error) {
	file := filepath.Join(dir, filepath.FromSlash(rel))
	data, err := os.ReadFile(file)
	if err != nil {
		msg := "read code unit"
		switch {
		case stdErrors.Is(err, fs.ErrNotExist) && isEntry:
			msg = "function entrypoint not found"
		case stdErrors.Is(err, fs.ErrNotExist):
			msg = "imported module not found"
		}
		return model.CodeUnit{}, errors.WrapError(err, errors.CategoryFileSystem, msg).
			Fatal().WithContext("path", file).Build()
	}

	u := model.CodeUnit{
		Path:    rel,
		Content: data,
		Sum:     contenthash.Chunk(data),
		Size:    int64(len(data)),
		Binary:  !IsScript(rel),
	}
	if u.Binary {
		return u, nil
	}

	byValue := map[string]bool{}
	for _, spec := range jsmodule.Scan(data) {
		if !jsmodule.IsRelative(spec.Value) || byValue[spec.Value] {
			continue
		}
		target, ok := jsmodule.Resolve(rel, spec.Value)
		if !ok {
			continue
		}
		byValue[spec.Value] = true
		u.Imports = append(u.Imports, model.Import{Specifier: spec.Value, Target: target})
	}
	return u, nil
}
