// Package renderd is a development render service. It paints synthetic
// region tiles for the region files found in a packs directory and serves
// them with the same HTTP contract as the real backend.
package renderd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/olablt/gio-worldmap/tiles"
)

const regionFileExt = ".region.bin"

var (
	ErrBadName        = errors.New("invalid name")
	ErrWorldNotFound  = errors.New("world not found")
	ErrRegionNotFound = errors.New("region file not found")
)

// preferredWorlds are tried in order when no world is requested.
var preferredWorlds = []string{"zone3_taiga1_world", "default_world", "default"}

// Layout locates saves and rendered tiles on disk.
//
//	<packs>/<pack>/saves/<save>/universe/worlds/<world>/chunks/<rx>.<rz>.region.bin
//	<cache>/<pack>/<save>/map_cache/<world>/<rx>.<rz>.png (+ .json)
type Layout struct {
	PacksDir string
	CacheDir string
}

func validName(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) || strings.ContainsRune(s, 0) {
		return fmt.Errorf("%w: %q", ErrBadName, s)
	}
	return nil
}

func validNames(names ...string) error {
	for _, n := range names {
		if err := validName(n); err != nil {
			return err
		}
	}
	return nil
}

func (l Layout) worldsDir(pack, save string) string {
	return filepath.Join(l.PacksDir, pack, "saves", save, "universe", "worlds")
}

func (l Layout) chunksDir(pack, save, world string) string {
	return filepath.Join(l.worldsDir(pack, save), world, "chunks")
}

// MapCacheDir is the root of the rendered tiles of a save.
func (l Layout) MapCacheDir(pack, save string) string {
	return filepath.Join(l.CacheDir, pack, save, "map_cache")
}

func (l Layout) tileDir(pack, save, world string) string {
	return filepath.Join(l.MapCacheDir(pack, save), world)
}

// TilePath is the PNG path of a rendered region.
func (l Layout) TilePath(pack, save, world string, r tiles.Region) string {
	return filepath.Join(l.tileDir(pack, save, world), r.String()+".png")
}

// Worlds lists the world directories of a save.
func (l Layout) Worlds(pack, save string) ([]string, error) {
	if err := validNames(pack, save); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(l.worldsDir(pack, save))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var worlds []string
	for _, e := range entries {
		if e.IsDir() {
			worlds = append(worlds, e.Name())
		}
	}
	slices.Sort(worlds)
	return worlds, nil
}

// ResolveWorld picks the requested world when it exists, otherwise the first
// preferred world, otherwise the first world by name.
func (l Layout) ResolveWorld(pack, save, world string) (string, error) {
	worlds, err := l.Worlds(pack, save)
	if err != nil {
		return "", err
	}
	return pickWorld(worlds, world)
}

func pickWorld(worlds []string, want string) (string, error) {
	if want != "" && slices.Contains(worlds, want) {
		return want, nil
	}
	for _, w := range preferredWorlds {
		if slices.Contains(worlds, w) {
			return w, nil
		}
	}
	if len(worlds) == 0 {
		return "", ErrWorldNotFound
	}
	return worlds[0], nil
}

// Regions lists the regions that have a region file in a world.
func (l Layout) Regions(pack, save, world string) ([]tiles.Region, error) {
	if err := validNames(pack, save, world); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(l.chunksDir(pack, save, world))
	if err != nil {
		return nil, err
	}
	var regions []tiles.Region
	for _, e := range entries {
		if r, ok := parseRegionName(e.Name(), regionFileExt); ok && !e.IsDir() {
			regions = append(regions, r)
		}
	}
	return regions, nil
}

// HasRegion reports whether a region file exists.
func (l Layout) HasRegion(pack, save, world string, r tiles.Region) bool {
	_, err := os.Stat(filepath.Join(l.chunksDir(pack, save, world), r.String()+regionFileExt))
	return err == nil
}

// parseRegionName parses "<rx>.<rz><ext>".
func parseRegionName(name, ext string) (tiles.Region, bool) {
	base, ok := strings.CutSuffix(name, ext)
	if !ok {
		return tiles.Region{}, false
	}
	xs, zs, ok := strings.Cut(base, ".")
	if !ok {
		return tiles.Region{}, false
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return tiles.Region{}, false
	}
	z, err := strconv.Atoi(zs)
	if err != nil {
		return tiles.Region{}, false
	}
	return tiles.Region{X: x, Z: z}, true
}
