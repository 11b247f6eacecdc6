package renderd

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/olablt/gio-worldmap/tiles"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// makeSave creates empty region files for a world of a save.
func makeSave(t *testing.T, layout Layout, pack, save, world string, regions ...tiles.Region) {
	t.Helper()
	dir := layout.chunksDir(pack, save, world)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, r := range regions {
		require.NoError(t, os.WriteFile(filepath.Join(dir, r.String()+regionFileExt), nil, 0o644))
	}
}

func newTestLayout(t *testing.T) Layout {
	t.Helper()
	root := t.TempDir()
	return Layout{PacksDir: filepath.Join(root, "packs"), CacheDir: filepath.Join(root, "cache")}
}

func newTestService(t *testing.T, layout Layout, w *Watcher) *Service {
	t.Helper()
	return New(Options{Layout: layout, Workers: 2, Watcher: w, Logger: quietLogger()})
}
