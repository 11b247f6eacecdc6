package tiles

import (
	"fmt"
	"math"
)

// Hover describes what lies under a pointer.
type Hover struct {
	Region Region
	// InRegion is the block offset inside Region.
	InRegionX, InRegionZ int
	// BlockX, BlockZ are world block coordinates.
	BlockX, BlockZ int
	// Label is the surface label when Known.
	Label string
	Known bool
}

// CoordText formats the world block coordinates for a status line.
func (h Hover) CoordText() string {
	return fmt.Sprintf("X: %d, Z: %d", h.BlockX, h.BlockZ)
}

// CopyText formats the region and block coordinates for the clipboard.
func (h Hover) CopyText() string {
	return fmt.Sprintf("Region: %d, %d | Block: %d, %d", h.Region.X, h.Region.Z, h.BlockX, h.BlockZ)
}

// LabelText returns the surface label or a marker for unknown ground.
func (h Hover) LabelText() string {
	if !h.Known {
		return LabelOutOfRegion
	}
	return h.Label
}

// Resolve maps a surface point to world coordinates and, when the owning
// tile is ready, to its surface label. lookup reads the tile cache.
func Resolve(v View, px, py float64, lookup func(Region) (State, bool)) Hover {
	ts := RegionSize(v.Zoom)
	r := v.RegionAt(px, py)
	relX := (px - v.OffsetX - float64(r.X)*ts) / v.Zoom
	relZ := (py - v.OffsetY - float64(r.Z)*ts) / v.Zoom

	h := Hover{
		Region:    r,
		InRegionX: int(math.Floor(relX)),
		InRegionZ: int(math.Floor(relZ)),
	}
	ox, oz := r.BlockOrigin()
	h.BlockX = ox + h.InRegionX
	h.BlockZ = oz + h.InRegionZ

	if h.InRegionX < 0 || h.InRegionX >= BlocksPerRegion || h.InRegionZ < 0 || h.InRegionZ >= BlocksPerRegion {
		return h
	}
	if lookup == nil {
		return h
	}
	st, ok := lookup(r)
	if !ok {
		return h
	}
	if ready, ok := st.(Ready); ok {
		h.Label, h.Known = ready.Meta.Label(h.InRegionX, h.InRegionZ)
	}
	return h
}

// Resolve answers a pointer query against the current view and cache.
func (tm *TileManager) Resolve(px, py float64) Hover {
	return Resolve(tm.viewport.View(), px, py, tm.cache.Get)
}
