package renderd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olablt/gio-worldmap/tiles"
)

func TestSynthIsDeterministic(t *testing.T) {
	r := tiles.Region{X: -2, Z: 3}
	img1, meta1 := Synth{}.Render("default", r)
	img2, meta2 := Synth{}.Render("default", r)
	assert.Equal(t, img1.Pix, img2.Pix)
	assert.Equal(t, meta1.Indices, meta2.Indices)

	_, other := Synth{}.Render("nether", r)
	assert.NotEqual(t, meta1.Indices, other.Indices)
}

func TestSynthMetadataMatchesImage(t *testing.T) {
	img, meta := Synth{}.Render("default", tiles.Region{X: 1, Z: 0})
	assert.Equal(t, tiles.TileSize, img.Bounds().Dx())
	assert.Equal(t, 1, meta.RX)
	assert.Equal(t, "default", meta.World)
	assert.Equal(t, ChunksPerRegion, meta.Chunks)
	assert.Equal(t, Palette(), meta.Palette)
	require.Len(t, meta.Indices, tiles.BlocksPerRegion*tiles.BlocksPerRegion)

	// Away from chunk grid lines each pixel has its surface colour.
	for _, p := range [][2]int{{5, 6}, {100, 250}, {333, 77}, {500, 499}} {
		x, z := p[0], p[1]
		idx := meta.Indices[z*tiles.BlocksPerRegion+x]
		require.NotZero(t, idx)
		assert.Equal(t, surfaces[idx-1].color, img.RGBAAt(x, z), "pixel %v", p)
		label, ok := meta.Label(x, z)
		assert.True(t, ok)
		assert.Equal(t, surfaces[idx-1].name, label)
	}
}

func TestSurfaceIndex(t *testing.T) {
	assert.Equal(t, uint8(1), surfaceIndex(0))
	assert.Equal(t, uint8(3), surfaceIndex(0.5))
	assert.Equal(t, uint8(len(surfaces)), surfaceIndex(0.99))
	seed := worldSeed("w")
	for i := range 200 {
		h := terrainHeight(seed, i*37-1000, i*-53)
		assert.GreaterOrEqual(t, h, 0.0)
		assert.Less(t, h, 1.0)
	}
}
