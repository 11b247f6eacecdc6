package main

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"gioui.org/font/gofont"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/text"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"
	"github.com/sirupsen/logrus"

	"github.com/olablt/gio-worldmap/mapview"
	"github.com/olablt/gio-worldmap/tiles"
)

var (
	colorBar    = color.NRGBA{R: 0x1e, G: 0x1e, B: 0x24, A: 0xff}
	colorText   = color.NRGBA{R: 0xdd, G: 0xdd, B: 0xe6, A: 0xff}
	colorMuted  = color.NRGBA{R: 0x88, G: 0x88, B: 0x99, A: 0xff}
	colorNotice = color.NRGBA{R: 0x7f, G: 0xd1, B: 0x8b, A: 0xff}
	colorError  = color.NRGBA{R: 0xe0, G: 0x6c, B: 0x6c, A: 0xff}
)

type ui struct {
	tm      *tiles.TileManager
	mv      *mapview.MapView
	log     logrus.FieldLogger
	th      *material.Theme
	refresh func()
	busy    atomic.Bool

	zoomIn, zoomOut, reset, recenter widget.Clickable
	regen, jump, retry               widget.Clickable
	x, z                             widget.Editor

	mu       sync.Mutex
	sel      tiles.Selection
	status   string
	blocking bool
}

func newUI(tm *tiles.TileManager, mv *mapview.MapView, log logrus.FieldLogger, refresh func()) *ui {
	th := material.NewTheme()
	th.Shaper = text.NewShaper(text.WithCollection(gofont.Collection()))
	th.Palette.Fg = colorText
	th.Palette.Bg = colorBar
	u := &ui{tm: tm, mv: mv, log: log, th: th, refresh: refresh}
	for _, ed := range []*widget.Editor{&u.x, &u.z} {
		ed.SingleLine = true
		ed.Submit = true
		ed.Filter = "-0123456789"
	}
	return u
}

// setStatus replaces the status line. A blocking status hides the map.
func (u *ui) setStatus(s string, blocking bool) {
	u.mu.Lock()
	u.status, u.blocking = s, blocking
	u.mu.Unlock()
	u.refresh()
}

func (u *ui) Layout(gtx layout.Context) layout.Dimensions {
	u.handle(gtx)

	u.mu.Lock()
	status, blocking := u.status, u.blocking
	u.mu.Unlock()

	return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
		layout.Rigid(u.toolbar),
		layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
			if blocking {
				return u.blocked(gtx, status)
			}
			return u.mv.Layout(gtx)
		}),
		layout.Rigid(func(gtx layout.Context) layout.Dimensions {
			return u.statusBar(gtx, status)
		}),
	)
}

func (u *ui) handle(gtx layout.Context) {
	if u.zoomIn.Clicked(gtx) {
		u.mv.ZoomIn()
	}
	if u.zoomOut.Clicked(gtx) {
		u.mv.ZoomOut()
	}
	if u.reset.Clicked(gtx) {
		u.mv.ResetView()
	}
	if u.recenter.Clicked(gtx) {
		u.mv.Recenter()
	}
	if u.regen.Clicked(gtx) {
		u.regenerate()
	}
	if u.retry.Clicked(gtx) {
		u.mu.Lock()
		sel := u.sel
		u.mu.Unlock()
		u.load(sel)
	}
	submitted := u.jump.Clicked(gtx)
	for _, ed := range []*widget.Editor{&u.x, &u.z} {
		for {
			ev, ok := ed.Update(gtx)
			if !ok {
				break
			}
			if _, ok := ev.(widget.SubmitEvent); ok {
				submitted = true
			}
		}
	}
	if submitted {
		x, z, err := parseBlock(u.x.Text(), u.z.Text())
		if err != nil {
			u.setStatus(err.Error(), false)
			return
		}
		u.mv.JumpTo(x, z)
	}
}

// parseBlock reads the jump target. Empty fields are zero.
func parseBlock(xs, zs string) (int, int, error) {
	parse := func(name, s string) (int, error) {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid %s coordinate %q", name, s)
		}
		return v, nil
	}
	x, err := parse("X", xs)
	if err != nil {
		return 0, 0, err
	}
	z, err := parse("Z", zs)
	if err != nil {
		return 0, 0, err
	}
	return x, z, nil
}

func (u *ui) toolbar(gtx layout.Context) layout.Dimensions {
	return u.bar(gtx, func(gtx layout.Context) layout.Dimensions {
		button := func(c *widget.Clickable, label string) layout.FlexChild {
			return layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				return layout.Inset{Right: unit.Dp(4)}.Layout(gtx, material.Button(u.th, c, label).Layout)
			})
		}
		editor := func(ed *widget.Editor, hint string) layout.FlexChild {
			return layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				gtx.Constraints.Min.X = gtx.Dp(80)
				gtx.Constraints.Max.X = gtx.Dp(80)
				return layout.UniformInset(unit.Dp(6)).Layout(gtx, material.Editor(u.th, ed, hint).Layout)
			})
		}
		return layout.Flex{Alignment: layout.Middle}.Layout(gtx,
			button(&u.zoomIn, "+"),
			button(&u.zoomOut, "-"),
			button(&u.reset, "Reset"),
			button(&u.recenter, "Center"),
			button(&u.regen, "Regenerate"),
			editor(&u.x, "X"),
			editor(&u.z, "Z"),
			button(&u.jump, "Go"),
		)
	})
}

func (u *ui) statusBar(gtx layout.Context, status string) layout.Dimensions {
	return u.bar(gtx, func(gtx layout.Context) layout.Dimensions {
		label := func(s string, c color.NRGBA) layout.FlexChild {
			return layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				l := material.Body2(u.th, s)
				l.Color = c
				return layout.Inset{Right: unit.Dp(16)}.Layout(gtx, l.Layout)
			})
		}
		coords, surface := "X: -, Z: -", ""
		if h, ok := u.mv.Hover(); ok {
			coords, surface = h.CoordText(), h.LabelText()
		}
		st := u.tm.Stats()
		children := []layout.FlexChild{
			label(coords, colorText),
			label(surface, colorMuted),
			label(fmt.Sprintf("%d loading, %d ready, %d failed", st.Loading, st.Ready, st.Failed), colorMuted),
		}
		if n := u.mv.Notice(); n != "" {
			c := colorNotice
			if n == mapview.NoticeCopyFailed {
				c = colorError
			}
			children = append(children, label(n, c))
		}
		if status != "" {
			children = append(children, label(status, colorMuted))
		}
		return layout.Flex{Alignment: layout.Middle}.Layout(gtx, children...)
	})
}

func (u *ui) bar(gtx layout.Context, w layout.Widget) layout.Dimensions {
	m := op.Record(gtx.Ops)
	dims := layout.UniformInset(unit.Dp(4)).Layout(gtx, w)
	call := m.Stop()
	dims.Size.X = gtx.Constraints.Max.X
	paint.FillShape(gtx.Ops, colorBar, clip.Rect{Max: dims.Size}.Op())
	call.Add(gtx.Ops)
	return dims
}

func (u *ui) blocked(gtx layout.Context, msg string) layout.Dimensions {
	paint.FillShape(gtx.Ops, colorBar, clip.Rect{Max: gtx.Constraints.Max}.Op())
	return layout.Center.Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Vertical, Alignment: layout.Middle}.Layout(gtx,
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				l := material.Body1(u.th, msg)
				l.Color = colorError
				return layout.UniformInset(unit.Dp(12)).Layout(gtx, l.Layout)
			}),
			layout.Rigid(material.Button(u.th, &u.retry, "Retry").Layout),
		)
	})
}
