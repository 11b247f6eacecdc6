package tiles

import (
	"math"
	"sync"
)

const (
	MinZoom     = 0.05
	MaxZoom     = 10.0
	DefaultZoom = 4.0

	// JumpMinZoom is the zoom below which a jump to coordinates resets the
	// zoom to JumpZoom, since the target would be too small to see.
	JumpMinZoom = 0.4
	JumpZoom    = 1.0
)

// pixelsPerBlock at zoom 1.
const pixelsPerBlock = float64(TileSize) / BlocksPerRegion

// View maps world pixels to screen pixels: screen = world*Zoom + Offset.
type View struct {
	Zoom    float64
	OffsetX float64
	OffsetY float64
}

// DefaultView is the view a freshly opened map starts with.
func DefaultView() View {
	return View{Zoom: DefaultZoom}
}

// ClampZoom limits z to [MinZoom, MaxZoom].
func ClampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return DefaultZoom
	}
	return math.Min(math.Max(z, MinZoom), MaxZoom)
}

// ScreenToWorld converts a screen point to world pixels.
func (v View) ScreenToWorld(sx, sy float64) (float64, float64) {
	return (sx - v.OffsetX) / v.Zoom, (sy - v.OffsetY) / v.Zoom
}

// WorldToScreen converts world pixels to a screen point.
func (v View) WorldToScreen(wx, wy float64) (float64, float64) {
	return wx*v.Zoom + v.OffsetX, wy*v.Zoom + v.OffsetY
}

// ZoomAt multiplies the zoom by delta keeping the world point under the
// anchor (ax, ay) fixed on screen. The offset correction uses the factor
// actually applied after clamping.
func (v View) ZoomAt(delta, ax, ay float64) View {
	old := v.Zoom
	v.Zoom = ClampZoom(v.Zoom * delta)
	f := v.Zoom / old
	v.OffsetX -= (ax - v.OffsetX) * (f - 1)
	v.OffsetY -= (ay - v.OffsetY) * (f - 1)
	return v
}

// Pan moves the view by a screen delta.
func (v View) Pan(dx, dy float64) View {
	v.OffsetX += dx
	v.OffsetY += dy
	return v
}

// CenterWorld places the world point (wx, wy) at the center of a viewport.
func (v View) CenterWorld(wx, wy, width, height float64) View {
	v.OffsetX = width/2 - wx*v.Zoom
	v.OffsetY = height/2 - wy*v.Zoom
	return v
}

// CenterRegions centers the middle of the region at fractional region
// coordinates (mx, mz).
func (v View) CenterRegions(mx, mz, width, height float64) View {
	return v.CenterWorld(mx*TileSize+TileSize/2, mz*TileSize+TileSize/2, width, height)
}

// CenterBlock centers a world block, resetting the zoom when it is too far out.
func (v View) CenterBlock(bx, bz int, width, height float64) View {
	if v.Zoom < JumpMinZoom {
		v.Zoom = JumpZoom
	}
	return v.CenterWorld(float64(bx)*pixelsPerBlock, float64(bz)*pixelsPerBlock, width, height)
}

// Viewport owns the view transform and the surface size. It is shared
// between the UI goroutine and the tile workers.
type Viewport struct {
	mu     sync.RWMutex
	view   View
	width  float64
	height float64
	// pending is a centering asked for before the surface had a size.
	pending func(View, float64, float64) View
}

func NewViewport() *Viewport {
	return &Viewport{view: DefaultView()}
}

// Snapshot returns the current view and surface size.
func (vp *Viewport) Snapshot() (View, float64, float64) {
	vp.mu.RLock()
	defer vp.mu.RUnlock()
	return vp.view, vp.width, vp.height
}

func (vp *Viewport) View() View {
	vp.mu.RLock()
	defer vp.mu.RUnlock()
	return vp.view
}

// Resize updates the surface size and reports whether it changed. A
// centering requested while the surface was empty is applied on the first
// non-empty size.
func (vp *Viewport) Resize(width, height float64) bool {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	if vp.width == width && vp.height == height {
		return false
	}
	vp.width, vp.height = width, height
	if vp.pending != nil && width > 0 && height > 0 {
		vp.view = vp.pending(vp.view, width, height)
		vp.pending = nil
	}
	return true
}

func (vp *Viewport) SetView(v View) {
	v.Zoom = ClampZoom(v.Zoom)
	vp.update(func(View, float64, float64) View { return v })
}

func (vp *Viewport) Pan(dx, dy float64) {
	vp.update(func(v View, _, _ float64) View { return v.Pan(dx, dy) })
}

func (vp *Viewport) ZoomAt(delta, ax, ay float64) {
	vp.update(func(v View, _, _ float64) View { return v.ZoomAt(delta, ax, ay) })
}

// ZoomCenter zooms anchored at the middle of the surface.
func (vp *Viewport) ZoomCenter(delta float64) {
	vp.update(func(v View, w, h float64) View { return v.ZoomAt(delta, w/2, h/2) })
}

// CenterBounds centers the midpoint of a region bounding box.
func (vp *Viewport) CenterBounds(b Bounds) {
	mx, mz := b.Mid()
	vp.center(func(v View, w, h float64) View { return v.CenterRegions(mx, mz, w, h) })
}

// CenterBlock centers a world block.
func (vp *Viewport) CenterBlock(bx, bz int) {
	vp.center(func(v View, w, h float64) View { return v.CenterBlock(bx, bz, w, h) })
}

func (vp *Viewport) center(fn func(View, float64, float64) View) {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	if vp.width <= 0 || vp.height <= 0 {
		vp.pending = fn
		return
	}
	vp.pending = nil
	vp.view = fn(vp.view, vp.width, vp.height)
}

func (vp *Viewport) update(fn func(View, float64, float64) View) {
	vp.mu.Lock()
	vp.view = fn(vp.view, vp.width, vp.height)
	vp.mu.Unlock()
}
