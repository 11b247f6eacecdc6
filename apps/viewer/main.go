// Command viewer opens the world map of one save in a window.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gioui.org/app"
	"gioui.org/op"
	"gioui.org/unit"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/olablt/gio-worldmap/backend"
	"github.com/olablt/gio-worldmap/config"
	"github.com/olablt/gio-worldmap/logging"
	"github.com/olablt/gio-worldmap/mapview"
	"github.com/olablt/gio-worldmap/tiles"
)

func main() {
	fs := config.NewViewerFlags("viewer")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg, err := config.LoadFlags(fs, config.ViewerFlags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, closer, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closer.Close()
	if cfg.Viewer.Pack == "" || cfg.Viewer.Save == "" {
		log.Fatal("viewer: a pack and a save are required (--pack, --save)")
	}

	client, err := backend.New(cfg.Viewer.Backend, backend.Options{
		CacheBytes: int64(cfg.Viewer.CacheMB) << 20,
		Logger:     log,
	})
	if err != nil {
		log.WithError(err).Fatal("viewer: backend")
	}
	defer client.Close()

	refresh := make(chan struct{}, 1)
	invalidate := func() {
		select {
		case refresh <- struct{}{}:
		default:
		}
	}
	tm := tiles.NewTileManager(client, tiles.NewViewport(), tiles.Options{
		Concurrency: cfg.Viewer.Concurrency,
		CullMargin:  cfg.Viewer.CullMargin,
		TileTimeout: cfg.Viewer.TileTimeout,
		Logger:      log,
		OnChange:    invalidate,
	})
	defer tm.Dispose()
	mv := mapview.New(tm, mapview.Options{
		Clipboard: &mapview.SystemClipboard{},
		OnChange:  invalidate,
		Logger:    log,
	})
	defer mv.Close()

	ui := newUI(tm, mv, log, invalidate)
	ui.load(tiles.Selection{
		Pack:  cfg.Viewer.Pack,
		Save:  cfg.Viewer.Save,
		World: cfg.Viewer.World,
		Force: cfg.Viewer.Force,
	})

	go func() {
		w := new(app.Window)
		w.Option(
			app.Title(fmt.Sprintf("World Map: %s / %s", cfg.Viewer.Pack, cfg.Viewer.Save)),
			app.Size(unit.Dp(1280), unit.Dp(800)),
		)
		go func() {
			for range refresh {
				w.Invalidate()
			}
		}()
		if err := loop(w, ui); err != nil {
			log.WithError(err).Error("viewer: window closed")
		}
		tm.Dispose()
		mv.Close()
		client.Close()
		closer.Close()
		os.Exit(0)
	}()
	app.Main()
}

func loop(w *app.Window, ui *ui) error {
	var ops op.Ops
	for {
		switch e := w.Event().(type) {
		case app.DestroyEvent:
			return e.Err
		case app.FrameEvent:
			gtx := app.NewContext(&ops, e)
			ui.Layout(gtx)
			e.Frame(gtx.Ops)
		}
	}
}

// load opens sel in the background; the window shows the result when the
// manifest arrives.
func (u *ui) load(sel tiles.Selection) {
	u.mu.Lock()
	u.sel = sel
	u.mu.Unlock()
	u.setStatus("Loading map...", false)
	go func() {
		err := u.tm.Load(context.Background(), sel)
		var merr *tiles.ManifestError
		switch {
		case errors.As(err, &merr):
			u.setStatus(fmt.Sprintf("Cannot load the map of %s / %s: %v", sel.Pack, sel.Save, merr.Err), true)
		case err != nil:
			u.setStatus(err.Error(), true)
		default:
			u.setStatus("", false)
		}
	}()
}

func (u *ui) regenerate() {
	if !u.busy.CompareAndSwap(false, true) {
		return
	}
	u.setStatus("Regenerating map...", false)
	go func() {
		defer u.busy.Store(false)
		if err := u.tm.Regenerate(context.Background()); err != nil {
			u.log.WithError(err).Error("viewer: regenerate failed")
			u.setStatus("Regenerate failed: "+err.Error(), false)
			return
		}
		sess := u.tm.Session()
		u.log.WithFields(logrus.Fields{"pack": sess.Selection.Pack, "save": sess.Selection.Save, "world": sess.World}).Info("viewer: map regenerated")
		u.setStatus("", false)
	}()
}
