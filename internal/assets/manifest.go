package assets

import (
	"sort"

	"git.home.luguber.info/inful/edgebundle/internal/foundation/errors"
)

// Manifest is the path-ordered set of static assets. Paths are unique.
type Manifest struct {
	assets []*Asset
	byPath map[string]*Asset
}

// NewManifest builds a manifest, failing on the first duplicate routing path.
func NewManifest(list ...*Asset) (*Manifest, error) {
	m := &Manifest{byPath: make(map[string]*Asset, len(list))}
	for _, a := range list {
		if err := m.add(a); err != nil {
			return nil, err
		}
	}
	m.sort()
	return m, nil
}

func (m *Manifest) add(a *Asset) error {
	if prev, ok := m.byPath[a.Path]; ok {
		return errors.AssetCollisionError("two static assets resolve to the same path").
			WithContext("path", a.Path).
			WithContext("first", prev.Source).
			WithContext("second", a.Source).
			Build()
	}
	m.byPath[a.Path] = a
	m.assets = append(m.assets, a)
	return nil
}

func (m *Manifest) sort() {
	sort.Slice(m.assets, func(i, j int) bool { return m.assets[i].Path < m.assets[j].Path })
}

// Extend returns a new manifest holding m's assets plus extra.
func (m *Manifest) Extend(extra ...*Asset) (*Manifest, error) {
	return NewManifest(append(m.All(), extra...)...)
}

// Lookup finds the asset served at path.
func (m *Manifest) Lookup(path string) (*Asset, bool) {
	a, ok := m.byPath[path]
	return a, ok
}

// All returns the assets ordered by path.
func (m *Manifest) All() []*Asset {
	out := make([]*Asset, len(m.assets))
	copy(out, m.assets)
	return out
}

// Len returns the asset count.
func (m *Manifest) Len() int { return len(m.assets) }

// TotalBytes sums asset sizes.
func (m *Manifest) TotalBytes() int64 {
	var n int64
	for _, a := range m.assets {
		n += a.Size
	}
	return n
}
