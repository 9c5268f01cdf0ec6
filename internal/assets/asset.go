package assets

import (
	"fmt"
	"os"
	"sync"

	"git.home.luguber.info/inful/edgebundle/internal/contenthash"
)

// Asset is one static file keyed by its routing path.
type Asset struct {
	Path        string // routing key, e.g. "/img/logo.png"
	File        string // location relative to the output root, slash separated
	Source      string // absolute path of the input file
	ContentType string // empty unless overridden
	Size        int64
	Prerendered bool // true for prerender fallbacks

	hash func() (contenthash.Sum, error)
}

// New creates an asset whose content hash is computed on first use.
func New(path, file, source string, size int64) *Asset {
	a := &Asset{Path: path, File: file, Source: source, Size: size}
	a.hash = sync.OnceValues(func() (contenthash.Sum, error) {
		f, err := os.Open(a.Source)
		if err != nil {
			return contenthash.Sum{}, err
		}
		defer func() { _ = f.Close() }()
		sum, _, err := contenthash.Asset(f)
		return sum, err
	})
	return a
}

// Hash returns the content identity, reading the file at most once.
func (a *Asset) Hash() (contenthash.Sum, error) {
	if a.hash == nil {
		return contenthash.Sum{}, fmt.Errorf("asset %s has no content source", a.Path)
	}
	return a.hash()
}
