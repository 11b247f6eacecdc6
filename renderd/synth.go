package renderd

import (
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/olablt/gio-worldmap/tiles"
)

const (
	// cellBlocks is the edge of the square of blocks sharing one surface.
	cellBlocks = 4
	cells      = tiles.BlocksPerRegion / cellBlocks
	// ChunksPerRegion is reported in tile metadata (32x32 chunks of 16 blocks).
	ChunksPerRegion = 1024
)

type surface struct {
	name  string
	color color.RGBA
	below float64
}

var surfaces = []surface{
	{"water", color.RGBA{48, 92, 168, 255}, 0.36},
	{"sand", color.RGBA{218, 204, 150, 255}, 0.41},
	{"soil_grass", color.RGBA{86, 140, 62, 255}, 0.60},
	{"soil_dirt", color.RGBA{120, 92, 60, 255}, 0.70},
	{"stone", color.RGBA{128, 128, 132, 255}, 0.84},
	{"snow", color.RGBA{236, 240, 244, 255}, math.Inf(1)},
}

var (
	background = color.RGBA{20, 20, 25, 255}
	gridColor  = color.RGBA{0, 0, 0, 60}
)

// Palette is the label table of every synthetic tile. Index 0 is air.
func Palette() []string {
	p := []string{"Air"}
	for _, s := range surfaces {
		p = append(p, s.name)
	}
	return p
}

func colorPalette() color.Palette {
	p := color.Palette{background}
	for _, s := range surfaces {
		p = append(p, s.color)
	}
	return p
}

// Synth paints deterministic terrain. The same world name always yields the
// same map.
type Synth struct {
	// Labels draws the region name on each tile.
	Labels bool
}

// Render paints one region and its surface metadata.
func (s Synth) Render(world string, r tiles.Region) (*image.RGBA, *tiles.Metadata) {
	seed := worldSeed(world)
	ox, oz := r.BlockOrigin()

	small := image.NewPaletted(image.Rect(0, 0, cells, cells), colorPalette())
	for cz := range cells {
		for cx := range cells {
			h := terrainHeight(seed, ox+cx*cellBlocks+cellBlocks/2, oz+cz*cellBlocks+cellBlocks/2)
			small.Pix[cz*small.Stride+cx] = surfaceIndex(h)
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, tiles.TileSize, tiles.TileSize))
	xdraw.NearestNeighbor.Scale(img, img.Bounds(), small, small.Bounds(), xdraw.Src, nil)
	drawChunkGrid(img)
	if s.Labels {
		drawLabel(img, r.String())
	}

	meta := &tiles.Metadata{
		RX:      r.X,
		RZ:      r.Z,
		World:   world,
		Chunks:  ChunksPerRegion,
		Size:    tiles.BlocksPerRegion,
		Indices: make([]byte, tiles.BlocksPerRegion*tiles.BlocksPerRegion),
		Palette: Palette(),
	}
	for z := range tiles.BlocksPerRegion {
		row := small.Pix[(z/cellBlocks)*small.Stride:]
		for x := range tiles.BlocksPerRegion {
			meta.Indices[z*tiles.BlocksPerRegion+x] = row[x/cellBlocks]
		}
	}
	return img, meta
}

func surfaceIndex(h float64) uint8 {
	for i, s := range surfaces {
		if h < s.below {
			return uint8(i + 1)
		}
	}
	return uint8(len(surfaces))
}

func worldSeed(world string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(world))
	return h.Sum64()
}

// terrainHeight is two octaves of value noise in [0, 1).
func terrainHeight(seed uint64, bx, bz int) float64 {
	return 0.7*valueNoise(seed, bx, bz, 96) + 0.3*valueNoise(seed^0x9e3779b97f4a7c15, bx, bz, 24)
}

func valueNoise(seed uint64, bx, bz, scale int) float64 {
	fx := float64(bx) / float64(scale)
	fz := float64(bz) / float64(scale)
	x0, z0 := math.Floor(fx), math.Floor(fz)
	tx, tz := smooth(fx-x0), smooth(fz-z0)
	ix, iz := int64(x0), int64(z0)

	a := lattice(seed, ix, iz)
	b := lattice(seed, ix+1, iz)
	c := lattice(seed, ix, iz+1)
	d := lattice(seed, ix+1, iz+1)
	top := a + (b-a)*tx
	bottom := c + (d-c)*tx
	return top + (bottom-top)*tz
}

func smooth(t float64) float64 { return t * t * (3 - 2*t) }

// lattice hashes a grid point to [0, 1) with splitmix64.
func lattice(seed uint64, x, z int64) float64 {
	v := seed ^ uint64(x)*0xbf58476d1ce4e5b9 ^ uint64(z)*0x94d049bb133111eb
	v += 0x9e3779b97f4a7c15
	v = (v ^ (v >> 30)) * 0xbf58476d1ce4e5b9
	v = (v ^ (v >> 27)) * 0x94d049bb133111eb
	v ^= v >> 31
	return float64(v>>11) / float64(1<<53)
}

func drawChunkGrid(img *image.RGBA) {
	const chunk = 16
	px := tiles.TileSize / (tiles.BlocksPerRegion / chunk)
	grid := &image.Uniform{gridColor}
	for i := 0; i < tiles.TileSize; i += px {
		draw.Draw(img, image.Rect(i, 0, i+1, tiles.TileSize), grid, image.Point{}, draw.Over)
		draw.Draw(img, image.Rect(0, i, tiles.TileSize, i+1), grid, image.Point{}, draw.Over)
	}
}

func drawLabel(img *image.RGBA, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
	}
	w := d.MeasureString(text).Round()
	h := face.Metrics().Height.Round()

	const pad = 6
	bg := image.Rect(pad, pad, pad+w+2*pad, pad+h+2*pad)
	draw.Draw(img, bg, &image.Uniform{color.RGBA{0, 0, 0, 140}}, image.Point{}, draw.Over)
	d.Dot = fixed.Point26_6{
		X: fixed.I(2 * pad),
		Y: fixed.I(2*pad + face.Metrics().Ascent.Round()),
	}
	d.DrawString(text)
}
