package renderd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olablt/gio-worldmap/tiles"
)

func TestPickWorld(t *testing.T) {
	tests := []struct {
		worlds []string
		want   string
		got    string
	}{
		{[]string{"a", "default", "nether"}, "nether", "nether"},
		{[]string{"a", "default", "nether"}, "", "default"},
		{[]string{"a", "default", "default_world"}, "missing", "default_world"},
		{[]string{"zone3_taiga1_world", "default"}, "", "zone3_taiga1_world"},
		{[]string{"b", "c"}, "", "b"},
	}
	for _, tt := range tests {
		got, err := pickWorld(tt.worlds, tt.want)
		require.NoError(t, err)
		assert.Equal(t, tt.got, got, "%v want %q", tt.worlds, tt.want)
	}
	_, err := pickWorld(nil, "x")
	assert.ErrorIs(t, err, ErrWorldNotFound)
}

func TestParseRegionName(t *testing.T) {
	r, ok := parseRegionName("-1.12.region.bin", regionFileExt)
	assert.True(t, ok)
	assert.Equal(t, tiles.Region{X: -1, Z: 12}, r)

	r, ok = parseRegionName("3.-4.json", tiles.MetadataExt)
	assert.True(t, ok)
	assert.Equal(t, tiles.Region{X: 3, Z: -4}, r)

	for _, name := range []string{"x.1.json", "1.json", "1.2.png", "1.y.json", ".json"} {
		_, ok := parseRegionName(name, tiles.MetadataExt)
		assert.False(t, ok, name)
	}
}

func TestValidName(t *testing.T) {
	for _, bad := range []string{"", ".", "..", "a/b", `a\b`, "a\x00"} {
		assert.True(t, errors.Is(validName(bad), ErrBadName), "%q", bad)
	}
	assert.NoError(t, validName("My Pack v1.2"))
}

func TestLayoutRegions(t *testing.T) {
	layout := newTestLayout(t)
	makeSave(t, layout, "p", "s", "default", tiles.Region{X: 0, Z: 0}, tiles.Region{X: -1, Z: 2})
	makeSave(t, layout, "p", "s", "nether")

	worlds, err := layout.Worlds("p", "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "nether"}, worlds)

	regions, err := layout.Regions("p", "s", "default")
	require.NoError(t, err)
	assert.ElementsMatch(t, []tiles.Region{{X: 0, Z: 0}, {X: -1, Z: 2}}, regions)
	assert.True(t, layout.HasRegion("p", "s", "default", tiles.Region{X: -1, Z: 2}))
	assert.False(t, layout.HasRegion("p", "s", "default", tiles.Region{X: 5, Z: 5}))

	worlds, err = layout.Worlds("p", "missing")
	require.NoError(t, err)
	assert.Empty(t, worlds)
	_, err = layout.Worlds("..", "s")
	assert.ErrorIs(t, err, ErrBadName)
}
