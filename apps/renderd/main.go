// Command renderd renders region tiles of local saves and serves them over
// HTTP to the viewer.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/olablt/gio-worldmap/config"
	"github.com/olablt/gio-worldmap/logging"
	"github.com/olablt/gio-worldmap/renderd"
)

const shutdownTimeout = 5 * time.Second

func main() {
	fs := config.NewRenderdFlags("renderd")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg, err := config.LoadFlags(fs, config.RenderdFlags)
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg.Renderd, log); err != nil {
		log.WithError(err).Error("renderd: stopped")
		closer.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Renderd, log *logrus.Logger) error {
	var watcher *renderd.Watcher
	if cfg.Watch {
		w, err := renderd.NewWatcher()
		if err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		defer w.Close()
		watcher = w
	}
	svc := renderd.New(renderd.Options{
		Layout:  renderd.Layout{PacksDir: cfg.PacksDir, CacheDir: cfg.CacheDir},
		Synth:   renderd.Synth{Labels: cfg.Labels},
		Workers: cfg.Workers,
		Watcher: watcher,
		Logger:  log,
	})

	if log.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           renderd.NewRouter(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"listen": cfg.Listen,
			"packs":  cfg.PacksDir,
			"cache":  cfg.CacheDir,
		}).Info("renderd: serving")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return svc.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	err := g.Wait()
	log.WithField("renders", svc.Renders()).Info("renderd: shut down")
	return err
}
