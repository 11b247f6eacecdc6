package tiles

import (
	"fmt"
	"math"
)

const (
	// TileSize is the edge of a region tile in pixels at zoom 1.
	TileSize = 512
	// BlocksPerRegion is the edge of a region in world blocks.
	BlocksPerRegion = 512
)

// Region identifies one tile of the world map.
type Region struct {
	X int `json:"x"`
	Z int `json:"z"`
}

func (r Region) String() string {
	return fmt.Sprintf("%d.%d", r.X, r.Z)
}

// Rect is an axis aligned rectangle in screen pixels.
type Rect struct {
	X, Y, W, H float64
}

// Center returns the midpoint of the rectangle.
func (r Rect) Center() (float64, float64) {
	return r.X + r.W/2, r.Y + r.H/2
}

// Outside reports whether the rectangle lies completely outside a viewport
// of the given size grown by margin pixels on every side.
func (r Rect) Outside(width, height, margin float64) bool {
	return r.X+r.W < -margin || r.X > width+margin ||
		r.Y+r.H < -margin || r.Y > height+margin
}

// RegionSize returns the on-screen edge of a region tile at the given zoom.
func RegionSize(zoom float64) float64 {
	return TileSize * zoom
}

// RegionRect returns the screen rectangle covered by a region.
func (v View) RegionRect(r Region) Rect {
	ts := RegionSize(v.Zoom)
	return Rect{
		X: v.OffsetX + float64(r.X)*ts,
		Y: v.OffsetY + float64(r.Z)*ts,
		W: ts,
		H: ts,
	}
}

// RegionAt returns the region under a screen point.
func (v View) RegionAt(sx, sy float64) Region {
	ts := RegionSize(v.Zoom)
	return Region{
		X: int(math.Floor((sx - v.OffsetX) / ts)),
		Z: int(math.Floor((sy - v.OffsetY) / ts)),
	}
}

// CenterDistance is the distance between the center of a region's tile and
// the center of a viewport of the given size.
func (v View) CenterDistance(r Region, width, height float64) float64 {
	cx, cy := v.RegionRect(r).Center()
	return math.Hypot(cx-width/2, cy-height/2)
}

// BlockOrigin returns the world block coordinate of the region's top-left corner.
func (r Region) BlockOrigin() (int, int) {
	return r.X * BlocksPerRegion, r.Z * BlocksPerRegion
}

// RegionOfBlock returns the region containing a world block.
func RegionOfBlock(bx, bz int) Region {
	return Region{X: floorDiv(bx, BlocksPerRegion), Z: floorDiv(bz, BlocksPerRegion)}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
