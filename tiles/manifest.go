package tiles

import "sort"

// Manifest describes the worlds of a save and the regions with rendered data.
type Manifest struct {
	DefaultWorld string                   `json:"default_world"`
	Worlds       map[string]WorldManifest `json:"worlds"`
}

// WorldManifest lists the regions of one world and their bounding box.
type WorldManifest struct {
	Regions []Region `json:"regions"`
	Bounds
}

// Bounds is an inclusive bounding box in region coordinates.
type Bounds struct {
	MinX int `json:"min_x"`
	MaxX int `json:"max_x"`
	MinZ int `json:"min_z"`
	MaxZ int `json:"max_z"`
}

// Mid returns the midpoint of the box in fractional region coordinates.
func (b Bounds) Mid() (float64, float64) {
	return float64(b.MinX+b.MaxX) / 2, float64(b.MinZ+b.MaxZ) / 2
}

// Extend grows the box to include r.
func (b Bounds) Extend(r Region) Bounds {
	b.MinX = min(b.MinX, r.X)
	b.MaxX = max(b.MaxX, r.X)
	b.MinZ = min(b.MinZ, r.Z)
	b.MaxZ = max(b.MaxZ, r.Z)
	return b
}

// NewWorldManifest builds a world entry from a region list, computing the
// bounding box and sorting regions by row then column.
func NewWorldManifest(regions []Region) WorldManifest {
	w := WorldManifest{Regions: append([]Region(nil), regions...)}
	sort.Slice(w.Regions, func(i, j int) bool {
		a, b := w.Regions[i], w.Regions[j]
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		return a.X < b.X
	})
	for i, r := range w.Regions {
		if i == 0 {
			w.Bounds = Bounds{MinX: r.X, MaxX: r.X, MinZ: r.Z, MaxZ: r.Z}
			continue
		}
		w.Bounds = w.Bounds.Extend(r)
	}
	return w
}

// World resolves a world id, falling back to the default world when id is
// empty. ok is false when the world is unknown.
func (m *Manifest) World(id string) (string, WorldManifest, bool) {
	if m == nil {
		return "", WorldManifest{}, false
	}
	if id == "" {
		id = m.DefaultWorld
	}
	if id == "" {
		for _, k := range m.WorldIDs() {
			id = k
			break
		}
	}
	w, ok := m.Worlds[id]
	return id, w, ok
}

// WorldIDs returns the world ids in sorted order.
func (m *Manifest) WorldIDs() []string {
	ids := make([]string, 0, len(m.Worlds))
	for id := range m.Worlds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
