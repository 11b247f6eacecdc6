package mapview

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"gioui.org/op/paint"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	LabelRendering = "Rendering..."
	LabelFailed    = "Render failed"
)

var (
	colorBackground  = color.NRGBA{0x14, 0x14, 0x19, 0xff}
	colorPlaceholder = color.NRGBA{0x1e, 0x1e, 0x24, 0xff}
	colorBorder      = color.NRGBA{0x3a, 0x3a, 0x45, 0xff}
	colorFailed      = color.NRGBA{0x2a, 0x16, 0x18, 0xff}
	colorFailedMark  = color.NRGBA{0xc0, 0x39, 0x2b, 0xff}
	colorLabel       = color.NRGBA{0x88, 0x88, 0x99, 0xff}
)

var (
	labelOnce sync.Once
	labelOps  map[string]paint.ImageOp
)

// labelOp returns the pre-rendered image of a placeholder label.
func labelOp(text string) paint.ImageOp {
	labelOnce.Do(func() {
		labelOps = map[string]paint.ImageOp{
			LabelRendering: paint.NewImageOp(labelImage(LabelRendering, colorLabel)),
			LabelFailed:    paint.NewImageOp(labelImage(LabelFailed, colorFailedMark)),
		}
	})
	return labelOps[text]
}

// labelImage draws text on a transparent image just large enough for it.
func labelImage(text string, fg color.NRGBA) *image.NRGBA {
	face := basicfont.Face7x13
	d := &font.Drawer{Face: face}
	w := d.MeasureString(text).Round()
	m := face.Metrics()
	h := (m.Ascent + m.Descent).Round()

	const pad = 2
	img := image.NewNRGBA(image.Rect(0, 0, w+2*pad, h+2*pad))
	draw.Draw(img, img.Bounds(), image.Transparent, image.Point{}, draw.Src)
	d.Dst = img
	d.Src = image.NewUniform(fg)
	d.Dot = fixed.Point26_6{
		X: fixed.I(pad),
		Y: fixed.I(pad) + m.Ascent,
	}
	d.DrawString(text)
	return img
}
