package tiles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

const fakeMetaSize = 4

// fakeBackend serves tiny tiles. RenderRegion blocks on gate when it is set
// and ignores context cancellation, like a backend that cannot be aborted.
type fakeBackend struct {
	manifest    *Manifest
	manifestErr error
	gate        chan struct{}
	started     chan Region
	fail        map[Region]bool

	mu       sync.Mutex
	renders  []Region
	opens    []string
	inFlight int
	peak     int
	generate int
}

func newFakeBackend(regions ...Region) *fakeBackend {
	return &fakeBackend{
		manifest: &Manifest{
			DefaultWorld: "default",
			Worlds:       map[string]WorldManifest{"default": NewWorldManifest(regions)},
		},
		started: make(chan Region, 256),
		fail:    map[Region]bool{},
	}
}

func (b *fakeBackend) Manifest(ctx context.Context, pack, save, world string) (*Manifest, error) {
	if b.manifestErr != nil {
		return nil, b.manifestErr
	}
	return b.manifest, nil
}

func (b *fakeBackend) RenderRegion(ctx context.Context, req RenderRequest) (string, error) {
	b.mu.Lock()
	b.renders = append(b.renders, req.Region)
	b.inFlight++
	b.peak = max(b.peak, b.inFlight)
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.inFlight--
		b.mu.Unlock()
	}()

	b.started <- req.Region
	if b.gate != nil {
		<-b.gate
	}
	b.mu.Lock()
	fail := b.fail[req.Region]
	b.mu.Unlock()
	if fail {
		return "", errors.New("render failed")
	}
	return fmt.Sprintf("/save-tile/%s/%s/%s/%d.%d.png", req.Pack, req.Save, req.World, req.Region.X, req.Region.Z), nil
}

func (b *fakeBackend) GenerateFullMap(ctx context.Context, pack, save, world string, force bool) error {
	b.mu.Lock()
	b.generate++
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	b.mu.Lock()
	b.opens = append(b.opens, location)
	b.mu.Unlock()

	if strings.HasSuffix(location, MetadataExt) {
		meta := Metadata{Size: fakeMetaSize, Indices: make([]byte, fakeMetaSize*fakeMetaSize), Palette: []string{"Air", "stone"}}
		meta.Indices[1*fakeMetaSize+2] = 1
		data, err := json.Marshal(meta)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	img := image.NewRGBA(image.Rect(0, 0, fakeMetaSize, fakeMetaSize))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return io.NopCloser(&buf), nil
}

func (b *fakeBackend) renderCalls() []Region {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Region(nil), b.renders...)
}

func (b *fakeBackend) peakInFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peak
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// newTestManager loads a selection on b with a large viewport so that no
// queued tile is culled unless a test moves the view.
func newTestManager(t *testing.T, b *fakeBackend, opts Options) *TileManager {
	t.Helper()
	vp := NewViewport()
	vp.Resize(100000, 100000)
	opts.Logger = quietLogger()
	tm := NewTileManager(b, vp, opts)
	t.Cleanup(tm.Dispose)
	if err := tm.Load(context.Background(), Selection{Pack: "pack", Save: "save"}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	vp.SetView(View{Zoom: 1})
	return tm
}
