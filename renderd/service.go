package renderd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/olablt/gio-worldmap/backend"
	"github.com/olablt/gio-worldmap/tiles"
)

const DefaultWorkers = 4

type Options struct {
	Layout Layout
	Synth  Synth
	// Workers bounds the parallel renders of a full-map generation.
	Workers int
	// Watcher, when set, reports cache changes made by other processes.
	Watcher *Watcher
	Logger  logrus.FieldLogger
}

// Service renders region tiles into the cache and builds manifests from it.
type Service struct {
	layout  Layout
	synth   Synth
	workers int
	watch   *Watcher
	log     logrus.FieldLogger

	group   singleflight.Group
	renders atomic.Int64

	mu        sync.Mutex
	manifests map[string]*tiles.Manifest
	// gen changes on every invalidation so a scan racing with a write is
	// not cached.
	gen uint64
}

type RenderResult struct {
	World    string
	Region   tiles.Region
	Location string
	// Rendered is false when the cached tile was reused.
	Rendered bool
}

type GenerateResult struct {
	World    string
	Rendered int
	Failed   int
}

func New(opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Service{
		layout:    opts.Layout,
		synth:     opts.Synth,
		workers:   opts.Workers,
		watch:     opts.Watcher,
		log:       opts.Logger,
		manifests: map[string]*tiles.Manifest{},
	}
}

// Renders counts tiles painted since start.
func (s *Service) Renders() int64 {
	return s.renders.Load()
}

// TileLocation is the URL path a rendered tile is served at.
func TileLocation(pack, save, world string, r tiles.Region) string {
	return backend.TilePrefix + url.PathEscape(pack) + "/" + url.PathEscape(save) + "/" +
		url.PathEscape(world) + "/" + r.String() + ".png"
}

// Manifest lists the rendered regions of a save per world.
func (s *Service) Manifest(pack, save string) (*tiles.Manifest, error) {
	if err := validNames(pack, save); err != nil {
		return nil, err
	}
	key := pack + "/" + save
	s.mu.Lock()
	m, ok := s.manifests[key]
	gen := s.gen
	s.mu.Unlock()
	if ok {
		return m, nil
	}

	m, err := s.scan(pack, save)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.gen == gen {
		s.manifests[key] = m
	}
	s.mu.Unlock()
	return m, nil
}

type metaHeader struct {
	RX    int    `json:"rx"`
	RZ    int    `json:"rz"`
	World string `json:"world"`
}

func (s *Service) scan(pack, save string) (*tiles.Manifest, error) {
	root := s.layout.MapCacheDir(pack, save)
	m := &tiles.Manifest{Worlds: map[string]tiles.WorldManifest{}}
	worldDirs, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return nil, err
	}
	s.watchDir(root)

	found := map[string][]tiles.Region{}
	for _, wd := range worldDirs {
		if !wd.IsDir() {
			continue
		}
		dir := filepath.Join(root, wd.Name())
		s.watchDir(dir)
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if _, ok := parseRegionName(f.Name(), tiles.MetadataExt); !ok {
				continue
			}
			h, err := readHeader(filepath.Join(dir, f.Name()))
			if err != nil {
				s.log.WithError(err).WithField("file", f.Name()).Warn("renderd: skipping unreadable metadata")
				continue
			}
			world := h.World
			if world == "" {
				world = wd.Name()
			}
			found[world] = append(found[world], tiles.Region{X: h.RX, Z: h.RZ})
		}
	}
	for world, regions := range found {
		m.Worlds[world] = tiles.NewWorldManifest(regions)
	}
	if id, err := pickWorld(m.WorldIDs(), ""); err == nil {
		m.DefaultWorld = id
	}
	return m, nil
}

func readHeader(path string) (metaHeader, error) {
	var h metaHeader
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	err = json.NewDecoder(f).Decode(&h)
	return h, err
}

// Invalidate drops the cached manifest of a save.
func (s *Service) Invalidate(pack, save string) {
	s.mu.Lock()
	delete(s.manifests, pack+"/"+save)
	s.gen++
	s.mu.Unlock()
}

// invalidatePath drops the manifest owning a changed cache file.
func (s *Service) invalidatePath(path string) {
	rel, err := filepath.Rel(s.layout.CacheDir, path)
	if err != nil {
		return
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 3 || parts[0] == ".." || parts[2] != "map_cache" {
		return
	}
	s.log.WithFields(logrus.Fields{"pack": parts[0], "save": parts[1], "file": filepath.Base(path)}).Debug("renderd: cache changed")
	s.Invalidate(parts[0], parts[1])
}

func (s *Service) watchDir(dir string) {
	if s.watch == nil {
		return
	}
	if err := s.watch.Add(dir); err != nil {
		s.log.WithError(err).WithField("dir", dir).Warn("renderd: cannot watch directory")
	}
}

// Render paints a region unless a cached tile exists and force is false.
func (s *Service) Render(ctx context.Context, pack, save, world string, r tiles.Region, force bool) (RenderResult, error) {
	if err := validNames(pack, save); err != nil {
		return RenderResult{}, err
	}
	world, err := s.layout.ResolveWorld(pack, save, world)
	if err != nil {
		return RenderResult{}, err
	}
	res := RenderResult{World: world, Region: r, Location: TileLocation(pack, save, world, r)}
	if !s.layout.HasRegion(pack, save, world, r) {
		return res, fmt.Errorf("%w: %s", ErrRegionNotFound, r)
	}

	tile := s.layout.TilePath(pack, save, world, r)
	if !force && exists(tile) && exists(tiles.MetadataLocation(tile)) {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	_, err, _ = s.group.Do(tile, func() (any, error) {
		return nil, s.paint(pack, save, world, r, tile)
	})
	if err != nil {
		return res, err
	}
	res.Rendered = true
	s.Invalidate(pack, save)
	return res, nil
}

func (s *Service) paint(pack, save, world string, r tiles.Region, tile string) error {
	dir := filepath.Dir(tile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	s.watchDir(s.layout.MapCacheDir(pack, save))
	s.watchDir(dir)

	img, meta := s.synth.Render(world, r)
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := writeFileAtomic(tile, func(w io.Writer) error { return enc.Encode(w, img) }); err != nil {
		return fmt.Errorf("write tile %s: %w", r, err)
	}
	// Metadata last: the manifest only lists tiles whose image is complete.
	if err := writeFileAtomic(tiles.MetadataLocation(tile), func(w io.Writer) error {
		return json.NewEncoder(w).Encode(meta)
	}); err != nil {
		return fmt.Errorf("write metadata %s: %w", r, err)
	}
	s.renders.Add(1)
	s.log.WithFields(logrus.Fields{"pack": pack, "save": save, "world": world, "region": r}).Debug("renderd: region rendered")
	return nil
}

// Generate renders every region of a world. Individual failures are counted,
// not returned.
func (s *Service) Generate(ctx context.Context, pack, save, world string, force bool) (GenerateResult, error) {
	if err := validNames(pack, save); err != nil {
		return GenerateResult{}, err
	}
	world, err := s.layout.ResolveWorld(pack, save, world)
	if err != nil {
		return GenerateResult{}, err
	}
	regions, err := s.layout.Regions(pack, save, world)
	if err != nil {
		return GenerateResult{World: world}, fmt.Errorf("list regions: %w", err)
	}
	log := s.log.WithFields(logrus.Fields{"pack": pack, "save": save, "world": world})
	log.WithField("regions", len(regions)).Info("renderd: generating map")

	var rendered, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, r := range regions {
		g.Go(func() error {
			if _, err := s.Render(gctx, pack, save, world, r, force); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				log.WithError(err).WithField("region", r).Warn("renderd: region failed")
				return nil
			}
			rendered.Add(1)
			return nil
		})
	}
	err = g.Wait()
	res := GenerateResult{World: world, Rendered: int(rendered.Load()), Failed: int(failed.Load())}
	if err != nil {
		return res, err
	}
	log.WithFields(logrus.Fields{"rendered": res.Rendered, "failed": res.Failed}).Info("renderd: map generated")
	return res, nil
}

// Run invalidates manifests on watcher events until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if s.watch == nil {
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case path, ok := <-s.watch.Events:
			if !ok {
				return nil
			}
			s.invalidatePath(path)
		case err, ok := <-s.watch.Errors:
			if !ok {
				return nil
			}
			s.log.WithError(err).Warn("renderd: watcher error")
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".tile-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
