package tiles

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventually = 5 * time.Second

func waitStarted(t *testing.T, b *fakeBackend, n int) []Region {
	t.Helper()
	var got []Region
	for range n {
		select {
		case r := <-b.started:
			got = append(got, r)
		case <-time.After(eventually):
			t.Fatalf("backend saw %d of %d renders", len(got), n)
		}
	}
	return got
}

func TestRequestTileIsIdempotent(t *testing.T) {
	b := newFakeBackend(Region{0, 0})
	b.gate = make(chan struct{})
	tm := newTestManager(t, b, Options{Concurrency: 2})

	assert.True(t, tm.RequestTile(Region{0, 0}))
	assert.False(t, tm.RequestTile(Region{0, 0}))
	waitStarted(t, b, 1)
	assert.False(t, tm.RequestTile(Region{0, 0}))

	st, ok := tm.State(Region{0, 0})
	require.True(t, ok)
	assert.IsType(t, Loading{}, st)

	close(b.gate)
	require.Eventually(t, func() bool {
		st, _ := tm.State(Region{0, 0})
		_, ready := st.(Ready)
		return ready
	}, eventually, time.Millisecond)

	assert.False(t, tm.RequestTile(Region{0, 0}))
	assert.Len(t, b.renderCalls(), 1)

	st, _ = tm.State(Region{0, 0})
	ready := st.(Ready)
	assert.Equal(t, 4, ready.Image.Bounds().Dx())
	label, ok := ready.Meta.Label(2, 1)
	assert.True(t, ok)
	assert.Equal(t, "stone", label)
}

func TestConcurrencyCap(t *testing.T) {
	const workers, tiles = 3, 25
	var regions []Region
	for i := range tiles {
		regions = append(regions, Region{X: i % 5, Z: i / 5})
	}
	b := newFakeBackend(regions...)
	b.gate = make(chan struct{})
	tm := newTestManager(t, b, Options{Concurrency: workers})

	for _, r := range regions {
		require.True(t, tm.RequestTile(r))
	}
	waitStarted(t, b, workers)

	select {
	case r := <-b.started:
		t.Fatalf("render of %v started past the cap", r)
	case <-time.After(50 * time.Millisecond):
	}
	s := tm.Stats()
	assert.Equal(t, workers, s.InFlight)
	assert.Equal(t, tiles-workers, s.Queued)
	assert.Equal(t, tiles, s.Loading)

	close(b.gate)
	require.Eventually(t, func() bool {
		return tm.Stats().Ready == tiles
	}, eventually, time.Millisecond)

	assert.LessOrEqual(t, b.peakInFlight(), workers)
	assert.LessOrEqual(t, tm.Stats().Peak, workers)
	assert.Len(t, b.renderCalls(), tiles)
}

func TestQueueFollowsCurrentView(t *testing.T) {
	b := newFakeBackend(Region{0, 0}, Region{1, 0}, Region{2, 0}, Region{3, 0})
	b.gate = make(chan struct{})
	tm := newTestManager(t, b, Options{Concurrency: 1})
	vp := tm.Viewport()
	vp.Resize(800, 600)

	require.True(t, tm.RequestTile(Region{0, 0}))
	waitStarted(t, b, 1)
	for _, r := range []Region{{1, 0}, {2, 0}, {3, 0}} {
		require.True(t, tm.RequestTile(r))
	}

	// Looking at region 3 now; region 1 is the farthest.
	vp.Pan(-3*TileSize, 0)
	close(b.gate)

	require.Eventually(t, func() bool {
		return tm.Stats().Ready == 4
	}, eventually, time.Millisecond)
	want := []Region{{0, 0}, {3, 0}, {2, 0}, {1, 0}}
	if diff := cmp.Diff(want, b.renderCalls()); diff != "" {
		t.Errorf("render order mismatch (-want+got):\n%v", diff)
	}
}

func TestOffscreenTileDroppedOnDequeue(t *testing.T) {
	b := newFakeBackend(Region{0, 0}, Region{100, 100})
	b.gate = make(chan struct{})
	tm := newTestManager(t, b, Options{Concurrency: 1})
	tm.Viewport().Resize(800, 600)

	require.True(t, tm.RequestTile(Region{0, 0}))
	waitStarted(t, b, 1)
	require.True(t, tm.RequestTile(Region{100, 100}))
	close(b.gate)

	require.Eventually(t, func() bool {
		return tm.Stats().Dropped == 1 && tm.Stats().Ready == 1
	}, eventually, time.Millisecond)

	_, ok := tm.State(Region{100, 100})
	assert.False(t, ok, "dropped tile must be absent")
	assert.Equal(t, []Region{{0, 0}}, b.renderCalls())

	// Panning back makes it requestable again.
	tm.Viewport().Pan(-100*TileSize, -100*TileSize)
	assert.True(t, tm.RequestTile(Region{100, 100}))
	require.Eventually(t, func() bool {
		return tm.Stats().Ready == 2
	}, eventually, time.Millisecond)
}

func TestSelectionChangeDiscardsInFlight(t *testing.T) {
	const n = 4
	var regions []Region
	for i := range n {
		regions = append(regions, Region{X: i})
	}
	b := newFakeBackend(regions...)
	b.gate = make(chan struct{})

	var changes atomic.Int32
	tm := newTestManager(t, b, Options{Concurrency: n, OnChange: func() { changes.Add(1) }})
	for _, r := range regions {
		require.True(t, tm.RequestTile(r))
	}
	waitStarted(t, b, n)
	before := tm.Session().Epoch

	require.NoError(t, tm.Load(context.Background(), Selection{Pack: "pack", Save: "other"}))
	assert.Greater(t, tm.Session().Epoch, before)
	assert.Equal(t, 0, tm.Stats().Loading+tm.Stats().Ready)
	seen := changes.Load()

	require.Eventually(t, func() bool {
		return tm.Stats().InFlight == 0
	}, eventually, time.Millisecond, "stale fetches still hold workers")

	close(b.gate)
	require.Eventually(t, func() bool {
		return tm.Stats().Detached == 0
	}, eventually, time.Millisecond)

	assert.Zero(t, tm.Stats().Ready)
	for _, r := range regions {
		_, ok := tm.State(r)
		assert.False(t, ok, "stale completion wrote %v", r)
	}
	assert.Equal(t, seen, changes.Load(), "stale completion triggered a redraw")
}

func TestHungFetchDoesNotStallNewSelection(t *testing.T) {
	b := newFakeBackend(Region{0, 0}, Region{1, 0})
	b.gate = make(chan struct{})
	tm := newTestManager(t, b, Options{Concurrency: 1})

	require.True(t, tm.RequestTile(Region{0, 0}))
	waitStarted(t, b, 1)

	require.NoError(t, tm.Load(context.Background(), Selection{Pack: "pack", Save: "other"}))
	require.True(t, tm.RequestTile(Region{1, 0}))
	assert.Equal(t, []Region{{1, 0}}, waitStarted(t, b, 1))

	close(b.gate)
	require.Eventually(t, func() bool {
		return tm.Stats().Ready == 1 && tm.Stats().Detached == 0
	}, eventually, time.Millisecond)
	_, ok := tm.State(Region{0, 0})
	assert.False(t, ok)
}

func TestFailedTileIsNotRetried(t *testing.T) {
	b := newFakeBackend(Region{0, 0})
	b.fail[Region{0, 0}] = true
	tm := newTestManager(t, b, Options{Concurrency: 1})
	tm.Viewport().Resize(800, 600)

	require.True(t, tm.RequestTile(Region{0, 0}))
	require.Eventually(t, func() bool {
		return tm.Stats().Failed == 1
	}, eventually, time.Millisecond)

	st, _ := tm.State(Region{0, 0})
	failed, ok := st.(Failed)
	require.True(t, ok)
	var terr *TileError
	require.True(t, errors.As(failed.Err, &terr))
	assert.Equal(t, Region{0, 0}, terr.Region)

	f := tm.Frame()
	require.Len(t, f.Tiles, 1)
	assert.IsType(t, Failed{}, f.Tiles[0].State)
	assert.False(t, tm.RequestTile(Region{0, 0}))
	assert.Len(t, b.renderCalls(), 1)

	// An explicit clear allows a new attempt.
	tm.ClearCache()
	b.mu.Lock()
	b.fail = map[Region]bool{}
	b.mu.Unlock()
	tm.Frame()
	require.Eventually(t, func() bool {
		return tm.Stats().Ready == 1
	}, eventually, time.Millisecond)
	assert.Len(t, b.renderCalls(), 2)
}

func TestFrameCullsAndRequests(t *testing.T) {
	b := newFakeBackend(Region{0, 0}, Region{5, 5})
	b.gate = make(chan struct{})
	tm := newTestManager(t, b, Options{Concurrency: 1})
	tm.Viewport().Resize(800, 600)
	tm.Viewport().SetView(View{Zoom: 4})

	f := tm.Frame()
	require.Len(t, f.Tiles, 1)
	assert.Equal(t, Region{0, 0}, f.Tiles[0].Region)
	assert.Equal(t, Rect{W: 2048, H: 2048}, f.Tiles[0].Rect)
	assert.Nil(t, f.Tiles[0].State)

	assert.Equal(t, []Region{{0, 0}}, waitStarted(t, b, 1))
	f = tm.Frame()
	assert.IsType(t, Loading{}, f.Tiles[0].State)
	_, ok := tm.State(Region{5, 5})
	assert.False(t, ok)
	close(b.gate)
}

func TestLoadManifestError(t *testing.T) {
	b := newFakeBackend()
	vp := NewViewport()
	tm := NewTileManager(b, vp, Options{Logger: quietLogger()})
	defer tm.Dispose()

	b.manifestErr = errors.New("save not found")
	err := tm.Load(context.Background(), Selection{Pack: "p", Save: "s"})
	var merr *ManifestError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "s", merr.Selection.Save)
	assert.False(t, tm.Loaded())
	assert.False(t, tm.RequestTile(Region{0, 0}))
	assert.Empty(t, tm.Frame().Tiles)
}

func TestLoadCentersOnWorld(t *testing.T) {
	b := newFakeBackend(Region{-2, 0}, Region{2, 1})
	vp := NewViewport()
	vp.Resize(800, 600)
	tm := NewTileManager(b, vp, Options{Logger: quietLogger()})
	defer tm.Dispose()

	require.NoError(t, tm.Load(context.Background(), Selection{Pack: "p", Save: "s"}))
	s := tm.Session()
	assert.Equal(t, "default", s.World)
	v := vp.View()
	assert.Equal(t, DefaultZoom, v.Zoom)
	sx, sy := v.WorldToScreen(TileSize/2, TileSize)
	assert.InDelta(t, 400, sx, 1e-9)
	assert.InDelta(t, 300, sy, 1e-9)

	vp.SetView(View{Zoom: 0.5})
	tm.ResetView()
	assert.Equal(t, DefaultZoom, vp.View().Zoom)
}

func TestLoadBeforeFirstResize(t *testing.T) {
	b := newFakeBackend(Region{-2, 0}, Region{2, 1})
	vp := NewViewport()
	tm := NewTileManager(b, vp, Options{Logger: quietLogger()})
	defer tm.Dispose()

	require.NoError(t, tm.Load(context.Background(), Selection{Pack: "p", Save: "s"}))
	assert.True(t, vp.Resize(800, 600))
	sx, sy := vp.View().WorldToScreen(TileSize/2, TileSize)
	assert.InDelta(t, 400, sx, 1e-9)
	assert.InDelta(t, 300, sy, 1e-9)

	// Applied once: later resizes keep the view.
	vp.Pan(10, 0)
	vp.Resize(1024, 768)
	sx, _ = vp.View().WorldToScreen(TileSize/2, TileSize)
	assert.InDelta(t, 410, sx, 1e-9)
}

func TestRegenerateReloads(t *testing.T) {
	b := newFakeBackend(Region{0, 0})
	tm := newTestManager(t, b, Options{Concurrency: 1})
	tm.Viewport().Resize(800, 600)
	tm.Frame()
	require.Eventually(t, func() bool { return tm.Stats().Ready == 1 }, eventually, time.Millisecond)

	epoch := tm.Session().Epoch
	require.NoError(t, tm.Regenerate(context.Background()))
	assert.Equal(t, 1, b.generate)
	assert.Greater(t, tm.Session().Epoch, epoch)
	assert.Zero(t, tm.Stats().Ready)
}

func TestDispose(t *testing.T) {
	b := newFakeBackend(Region{0, 0})
	tm := newTestManager(t, b, Options{})
	tm.Dispose()
	assert.False(t, tm.RequestTile(Region{0, 0}))
	assert.ErrorIs(t, tm.Load(context.Background(), Selection{}), ErrDisposed)
	assert.ErrorIs(t, tm.Regenerate(context.Background()), ErrDisposed)
	tm.Dispose()
}
