package tiles

// TileDraw is one visible region of a frame. State is nil for a region that
// was absent when the frame was planned.
type TileDraw struct {
	Region Region
	Rect   Rect
	State  State
}

// Frame is what the render loop paints.
type Frame struct {
	// Epoch identifies the selection the tiles belong to.
	Epoch  uint64
	View   View
	Width  float64
	Height float64
	Tiles  []TileDraw
}

// Frame plans the next repaint from the current view: regions of the world
// outside the viewport are culled and every visible absent region is
// requested. It never waits on the backend.
func (tm *TileManager) Frame() Frame {
	v, w, h := tm.viewport.Snapshot()
	f := Frame{View: v, Width: w, Height: h}

	tm.mu.Lock()
	f.Epoch = tm.epoch
	_, wm, ok := tm.manifest.World(tm.world)
	tm.mu.Unlock()
	if !ok {
		return f
	}

	for _, r := range wm.Regions {
		rect := v.RegionRect(r)
		if rect.Outside(w, h, 0) {
			continue
		}
		st, ok := tm.cache.Get(r)
		if !ok {
			tm.RequestTile(r)
		}
		f.Tiles = append(f.Tiles, TileDraw{Region: r, Rect: rect, State: st})
	}
	return f
}
