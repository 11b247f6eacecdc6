// Package mapview is the gio widget of the world map: it paints the frames
// planned by a tiles.TileManager and turns pointer input into view changes.
package mapview

import (
	"image"
	"image/color"
	"math"
	"sync"

	"gioui.org/f32"
	"gioui.org/io/event"
	"gioui.org/io/pointer"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"github.com/sirupsen/logrus"

	"github.com/olablt/gio-worldmap/tiles"
)

const (
	WheelZoomIn   = 1.25
	WheelZoomOut  = 0.8
	ButtonZoomIn  = 1.5
	ButtonZoomOut = 0.7

	// NearestZoom is the zoom from which tiles are sampled without smoothing.
	NearestZoom = 2.0
	// LabelZoom is the zoom above which placeholders carry a label.
	LabelZoom = 0.4
)

type Options struct {
	// Clipboard is the direct clipboard path. Nil leaves only the fallback.
	Clipboard TextWriter
	// OnChange asks the window for a new frame.
	OnChange func()
	Logger   logrus.FieldLogger
}

type MapView struct {
	tm     *tiles.TileManager
	vp     *tiles.Viewport
	ops    *ImageOpCache
	copier *Copier
	notice *Notice
	log    logrus.FieldLogger

	dragging bool
	last     f32.Point

	mu       sync.Mutex
	pointer  f32.Point
	hover    tiles.Hover
	hasHover bool

	// shown is the hover as of the end of the previous Layout. Widgets laid
	// out before the map read that value, so a change asks for a new frame.
	shown      tiles.Hover
	shownHover bool
	invalidate func(gtx layout.Context)
}

func New(tm *tiles.TileManager, opts Options) *MapView {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &MapView{
		tm:         tm,
		vp:         tm.Viewport(),
		ops:        NewImageOpCache(),
		copier:     NewCopier(opts.Clipboard, opts.Logger),
		notice:     NewNotice(NoticeDuration, opts.OnChange),
		log:        opts.Logger,
		invalidate: invalidateFrame,
	}
}

func invalidateFrame(gtx layout.Context) {
	gtx.Execute(op.InvalidateCmd{})
}

func (mv *MapView) Layout(gtx layout.Context) layout.Dimensions {
	size := gtx.Constraints.Max
	mv.vp.Resize(float64(size.X), float64(size.Y))
	mv.events(gtx)

	if ok, err := mv.copier.Flush(gtx); ok {
		if err != nil {
			mv.log.WithError(err).Warn("mapview: copy failed")
			mv.notice.Show(NoticeCopyFailed)
		} else {
			mv.notice.Show(NoticeCopied)
		}
	}

	// Confine the area of interest to a gtx Max
	defer clip.Rect{Max: size}.Push(gtx.Ops).Pop()
	event.Op(gtx.Ops, mv)
	paint.FillShape(gtx.Ops, colorBackground, clip.Rect{Max: size}.Op())

	f := mv.tm.Frame()
	for _, t := range f.Tiles {
		mv.drawTile(gtx, f, t)
	}

	mv.mu.Lock()
	if mv.hasHover {
		mv.hover = mv.tm.Resolve(float64(mv.pointer.X), float64(mv.pointer.Y))
	}
	hover, has := mv.hover, mv.hasHover
	mv.mu.Unlock()
	if hover != mv.shown || has != mv.shownHover {
		mv.shown, mv.shownHover = hover, has
		mv.invalidate(gtx)
	}
	return layout.Dimensions{Size: size}
}

func (mv *MapView) events(gtx layout.Context) {
	for {
		ev, ok := gtx.Event(pointer.Filter{
			Target:  mv,
			Kinds:   pointer.Scroll | pointer.Drag | pointer.Press | pointer.Release | pointer.Cancel | pointer.Move | pointer.Leave,
			ScrollY: pointer.ScrollRange{Min: -100, Max: 100},
		})
		if !ok {
			break
		}
		if x, ok := ev.(pointer.Event); ok {
			mv.pointerEvent(x)
		}
	}
}

func (mv *MapView) pointerEvent(x pointer.Event) {
	switch x.Kind {
	case pointer.Press:
		switch {
		case x.Buttons.Contain(pointer.ButtonSecondary):
			mv.copyAt(x.Position)
		case x.Buttons.Contain(pointer.ButtonPrimary):
			mv.dragging = true
			mv.last = x.Position
		}
	case pointer.Drag:
		if mv.dragging {
			d := x.Position.Sub(mv.last)
			mv.vp.Pan(float64(d.X), float64(d.Y))
			mv.last = x.Position
		}
		mv.hoverAt(x.Position)
	case pointer.Release, pointer.Cancel:
		mv.dragging = false
	case pointer.Scroll:
		switch {
		case x.Scroll.Y < 0:
			mv.vp.ZoomAt(WheelZoomIn, float64(x.Position.X), float64(x.Position.Y))
		case x.Scroll.Y > 0:
			mv.vp.ZoomAt(WheelZoomOut, float64(x.Position.X), float64(x.Position.Y))
		}
		mv.hoverAt(x.Position)
	case pointer.Move:
		mv.hoverAt(x.Position)
	case pointer.Leave:
		mv.mu.Lock()
		mv.hasHover = false
		mv.mu.Unlock()
	}
}

func (mv *MapView) hoverAt(p f32.Point) {
	h := mv.tm.Resolve(float64(p.X), float64(p.Y))
	mv.mu.Lock()
	mv.pointer = p
	mv.hover = h
	mv.hasHover = true
	mv.mu.Unlock()
}

func (mv *MapView) copyAt(p f32.Point) {
	h := mv.tm.Resolve(float64(p.X), float64(p.Y))
	if mv.copier.Copy(h.CopyText()) {
		mv.notice.Show(NoticeCopied)
	}
	mv.log.WithField("text", h.CopyText()).Debug("mapview: copy coordinates")
}

func (mv *MapView) drawTile(gtx layout.Context, f tiles.Frame, t tiles.TileDraw) {
	switch st := t.State.(type) {
	case tiles.Ready:
		if st.Image != nil {
			mv.drawImage(gtx, f, t, st.Image)
			return
		}
		drawPlaceholder(gtx, t.Rect, f.View.Zoom, false)
	case tiles.Failed:
		drawPlaceholder(gtx, t.Rect, f.View.Zoom, true)
	default:
		drawPlaceholder(gtx, t.Rect, f.View.Zoom, false)
	}
}

// drawImage stretches img over the tile rect.
func (mv *MapView) drawImage(gtx layout.Context, f tiles.Frame, t tiles.TileDraw, img image.Image) {
	b := img.Bounds()
	if b.Empty() {
		return
	}
	imgOp := mv.ops.Get(f.Epoch, t.Region, img)
	imgOp.Filter = paint.FilterLinear
	if f.View.Zoom >= NearestZoom {
		imgOp.Filter = paint.FilterNearest
	}

	sx := float32(t.Rect.W / float64(b.Dx()))
	sy := float32(t.Rect.H / float64(b.Dy()))
	tr := f32.Affine2D{}.
		Offset(f32.Pt(-float32(b.Min.X), -float32(b.Min.Y))).
		Scale(f32.Point{}, f32.Pt(sx, sy)).
		Offset(f32.Pt(float32(t.Rect.X), float32(t.Rect.Y)))
	stack := op.Affine(tr).Push(gtx.Ops)
	cl := clip.Rect(b).Push(gtx.Ops)
	imgOp.Add(gtx.Ops)
	paint.PaintOp{}.Add(gtx.Ops)
	cl.Pop()
	stack.Pop()
}

func screenRect(r tiles.Rect) image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X)), int(math.Floor(r.Y)),
		int(math.Ceil(r.X+r.W)), int(math.Ceil(r.Y+r.H)),
	)
}

func drawPlaceholder(gtx layout.Context, r tiles.Rect, zoom float64, failed bool) {
	rect := screenRect(r)
	fill, border := colorPlaceholder, colorBorder
	if failed {
		fill, border = colorFailed, colorFailedMark
	}
	paint.FillShape(gtx.Ops, fill, clip.Rect(rect).Op())
	drawBorder(gtx, rect, border)

	if zoom <= LabelZoom {
		return
	}
	text := LabelRendering
	if failed {
		text = LabelFailed
	}
	label := labelOp(text)
	size := label.Size()
	cx, cy := rect.Min.X+rect.Dx()/2, rect.Min.Y+rect.Dy()/2
	stack := op.Offset(image.Pt(cx-size.X/2, cy-size.Y/2)).Push(gtx.Ops)
	cl := clip.Rect{Max: size}.Push(gtx.Ops)
	label.Add(gtx.Ops)
	paint.PaintOp{}.Add(gtx.Ops)
	cl.Pop()
	stack.Pop()
}

func drawBorder(gtx layout.Context, r image.Rectangle, c color.NRGBA) {
	for _, edge := range []image.Rectangle{
		{Min: r.Min, Max: image.Pt(r.Max.X, r.Min.Y+1)},
		{Min: image.Pt(r.Min.X, r.Max.Y-1), Max: r.Max},
		{Min: r.Min, Max: image.Pt(r.Min.X+1, r.Max.Y)},
		{Min: image.Pt(r.Max.X-1, r.Min.Y), Max: r.Max},
	} {
		paint.FillShape(gtx.Ops, c, clip.Rect(edge).Op())
	}
}

// Hover is what lies under the pointer; ok is false when the pointer is not
// over the map.
func (mv *MapView) Hover() (tiles.Hover, bool) {
	mv.mu.Lock()
	defer mv.mu.Unlock()
	return mv.hover, mv.hasHover
}

// Notice is the transient message to show, empty when none.
func (mv *MapView) Notice() string {
	return mv.notice.Text()
}

func (mv *MapView) ZoomIn() {
	mv.vp.ZoomCenter(ButtonZoomIn)
}

func (mv *MapView) ZoomOut() {
	mv.vp.ZoomCenter(ButtonZoomOut)
}

func (mv *MapView) ResetView() {
	mv.tm.ResetView()
}

func (mv *MapView) Recenter() {
	mv.tm.Recenter()
}

// JumpTo centers the world block (x, z).
func (mv *MapView) JumpTo(x, z int) {
	mv.vp.CenterBlock(x, z)
}

// Close cancels the pending notice timer.
func (mv *MapView) Close() {
	mv.notice.Stop()
}
