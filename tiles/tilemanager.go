package tiles

import (
	"context"
	"fmt"
	"image"
	_ "image/png"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/olablt/gio-worldmap/tiles/worker"
)

const (
	DefaultConcurrency = 6
	DefaultCullMargin  = 1000.0
	DefaultTileTimeout = 30 * time.Second
)

type Options struct {
	// Concurrency caps the number of tile fetches in flight.
	Concurrency int
	// CullMargin is how far outside the viewport a queued tile may drift
	// before its fetch is abandoned.
	CullMargin  float64
	TileTimeout time.Duration
	Logger      logrus.FieldLogger
	// OnChange is called from worker goroutines whenever a tile settles.
	OnChange func()
}

// TileManager owns the tile cache and the fetch queue of one map session.
type TileManager struct {
	backend  Backend
	viewport *Viewport
	pool     *worker.Pool
	cache    *Cache
	log      logrus.FieldLogger
	margin   float64
	onChange func()

	mu       sync.Mutex
	epoch    uint64
	sel      Selection
	world    string
	manifest *Manifest
	ctx      context.Context
	cancel   context.CancelFunc
	disposed bool
}

func NewTileManager(backend Backend, vp *Viewport, opts Options) *TileManager {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.CullMargin <= 0 {
		opts.CullMargin = DefaultCullMargin
	}
	if opts.TileTimeout == 0 {
		opts.TileTimeout = DefaultTileTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TileManager{
		backend:  backend,
		viewport: vp,
		pool: worker.NewPool(worker.Options{
			Workers: opts.Concurrency,
			Timeout: opts.TileTimeout,
			Logger:  opts.Logger,
		}),
		cache:    NewCache(),
		log:      opts.Logger,
		margin:   opts.CullMargin,
		onChange: opts.OnChange,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (tm *TileManager) Viewport() *Viewport { return tm.viewport }

// Load opens a selection: it drops everything of the previous session, then
// fetches the manifest and centers the view on the world. The manifest call
// blocks; the previous session is gone before it starts.
func (tm *TileManager) Load(ctx context.Context, sel Selection) error {
	epoch, err := tm.reset(sel, nil, "")
	if err != nil {
		return err
	}
	log := tm.log.WithFields(logrus.Fields{"pack": sel.Pack, "save": sel.Save, "epoch": epoch})

	manifest, err := tm.backend.Manifest(ctx, sel.Pack, sel.Save, sel.World)
	if err != nil {
		log.WithError(err).Error("tiles: manifest load failed")
		return &ManifestError{Selection: sel, Err: err}
	}
	world, wm, ok := manifest.World(sel.World)
	if !ok {
		log.WithField("world", world).Warn("tiles: world has no rendered regions")
	}

	tm.mu.Lock()
	if tm.epoch != epoch {
		tm.mu.Unlock()
		log.Debug("tiles: manifest arrived for a replaced selection")
		return nil
	}
	tm.manifest = manifest
	tm.world = world
	tm.mu.Unlock()

	if ok {
		tm.viewport.CenterBounds(wm.Bounds)
	}
	log.WithFields(logrus.Fields{"world": world, "regions": len(wm.Regions)}).Info("tiles: manifest loaded")
	tm.changed()
	return nil
}

// ClearCache forgets every tile of the current selection so that visible
// tiles are fetched again. Fetches in flight are discarded when they land.
func (tm *TileManager) ClearCache() {
	tm.mu.Lock()
	sel, manifest, world := tm.sel, tm.manifest, tm.world
	tm.mu.Unlock()
	if _, err := tm.reset(sel, manifest, world); err == nil {
		tm.changed()
	}
}

// Regenerate asks the backend to re-render the whole world, then reloads
// the selection so that every tile is fetched again.
func (tm *TileManager) Regenerate(ctx context.Context) error {
	tm.mu.Lock()
	sel, world, disposed := tm.sel, tm.world, tm.disposed
	tm.mu.Unlock()
	if disposed {
		return ErrDisposed
	}
	if world != "" {
		sel.World = world
	}
	if err := tm.backend.GenerateFullMap(ctx, sel.Pack, sel.Save, sel.World, true); err != nil {
		return fmt.Errorf("generate map %s/%s: %w", sel.Pack, sel.Save, err)
	}
	sel.Force = false
	return tm.Load(ctx, sel)
}

// Dispose ends the session. The manager cannot be used afterwards.
func (tm *TileManager) Dispose() {
	tm.mu.Lock()
	if tm.disposed {
		tm.mu.Unlock()
		return
	}
	tm.disposed = true
	tm.epoch++
	tm.cancel()
	tm.cache.Clear()
	tm.manifest = nil
	tm.mu.Unlock()

	tm.pool.Shutdown()
}

// reset starts a new epoch for sel with the given manifest.
func (tm *TileManager) reset(sel Selection, manifest *Manifest, world string) (uint64, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.disposed {
		return 0, ErrDisposed
	}
	tm.epoch++
	tm.cancel()
	tm.ctx, tm.cancel = context.WithCancel(context.Background())
	tm.cache.Clear()
	if n := tm.pool.Reset(); n > 0 {
		tm.log.WithField("epoch", tm.epoch).Debugf("tiles: discarded %d queued requests", n)
	}
	tm.sel = sel
	tm.manifest = manifest
	tm.world = world
	return tm.epoch, nil
}

// RequestTile queues a fetch for r unless r already has a cache entry. It
// reports whether a fetch was queued.
func (tm *TileManager) RequestTile(r Region) bool {
	tm.mu.Lock()
	if tm.disposed || tm.manifest == nil || !tm.cache.Reserve(r) {
		tm.mu.Unlock()
		return false
	}
	epoch, ctx, sel := tm.epoch, tm.ctx, tm.sel
	sel.World = tm.world
	tm.mu.Unlock()

	err := tm.pool.Submit(worker.Task{
		Ctx:   ctx,
		Label: r.String(),
		Priority: func() float64 {
			v, w, h := tm.viewport.Snapshot()
			return v.CenterDistance(r, w, h)
		},
		Stale: func() bool {
			v, w, h := tm.viewport.Snapshot()
			return v.RegionRect(r).Outside(w, h, tm.margin)
		},
		Drop: func() { tm.abandon(epoch, r) },
		Work: func(ctx context.Context) error {
			return tm.fetch(ctx, epoch, sel, r)
		},
	})
	if err != nil {
		tm.abandon(epoch, r)
		return false
	}
	return true
}

// abandon reverts a queued region to absent.
func (tm *TileManager) abandon(epoch uint64, r Region) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.epoch != epoch {
		return
	}
	if tm.cache.Release(r) {
		tm.log.WithField("region", r).Debug("tiles: dropping off-screen tile request")
	}
}

func (tm *TileManager) fetch(ctx context.Context, epoch uint64, sel Selection, r Region) error {
	img, meta, err := tm.load(ctx, sel, r)
	var st State = Ready{Image: img, Meta: meta}
	if err != nil {
		err = &TileError{Region: r, Err: err}
		st = Failed{Err: err}
	}

	tm.mu.Lock()
	current := tm.epoch == epoch
	if current {
		tm.cache.Set(r, st)
	}
	tm.mu.Unlock()

	log := tm.log.WithFields(logrus.Fields{"region": r, "epoch": epoch})
	if !current {
		log.Debug("tiles: discarding tile of a replaced selection")
		return nil
	}
	if err != nil {
		log.WithError(err).Warn("tiles: tile fetch failed")
	}
	tm.changed()
	return err
}

func (tm *TileManager) load(ctx context.Context, sel Selection, r Region) (image.Image, *Metadata, error) {
	loc, err := tm.backend.RenderRegion(ctx, RenderRequest{
		Pack:   sel.Pack,
		Save:   sel.Save,
		Region: r,
		World:  sel.World,
		Force:  sel.Force,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("render: %w", err)
	}

	rc, err := tm.backend.Open(ctx, loc)
	if err != nil {
		return nil, nil, fmt.Errorf("open image: %w", err)
	}
	img, _, err := image.Decode(rc)
	rc.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("decode image %s: %w", loc, err)
	}

	rc, err = tm.backend.Open(ctx, MetadataLocation(loc))
	if err != nil {
		return nil, nil, fmt.Errorf("open metadata: %w", err)
	}
	defer rc.Close()
	meta, err := DecodeMetadata(rc)
	if err != nil {
		return nil, nil, err
	}
	return img, meta, nil
}

func (tm *TileManager) changed() {
	if tm.onChange != nil {
		tm.onChange()
	}
}

// State returns the cached state of r; ok is false when r is absent.
func (tm *TileManager) State(r Region) (State, bool) {
	return tm.cache.Get(r)
}

// Session describes the loaded selection.
type Session struct {
	Selection Selection
	World     string
	Manifest  *Manifest
	Epoch     uint64
}

func (tm *TileManager) Session() Session {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return Session{Selection: tm.sel, World: tm.world, Manifest: tm.manifest, Epoch: tm.epoch}
}

// Loaded reports whether a manifest is available.
func (tm *TileManager) Loaded() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.manifest != nil
}

// Recenter centers the view on the bounding box of the current world.
func (tm *TileManager) Recenter() bool {
	tm.mu.Lock()
	_, wm, ok := tm.manifest.World(tm.world)
	tm.mu.Unlock()
	if ok {
		tm.viewport.CenterBounds(wm.Bounds)
	}
	return ok
}

// ResetView restores the default zoom and recenters.
func (tm *TileManager) ResetView() {
	v := tm.viewport.View()
	v.Zoom = DefaultZoom
	tm.viewport.SetView(v)
	tm.Recenter()
}

type Stats struct {
	worker.Stats
	Loading int
	Ready   int
	Failed  int
}

func (tm *TileManager) Stats() Stats {
	s := Stats{Stats: tm.pool.Stats()}
	s.Loading, s.Ready, s.Failed = tm.cache.Counts()
	return s
}
