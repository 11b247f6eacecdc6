package renderd

import (
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olablt/gio-worldmap/backend"
	"github.com/olablt/gio-worldmap/tiles"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, regions ...tiles.Region) (*Service, *backend.Client) {
	t.Helper()
	layout := newTestLayout(t)
	makeSave(t, layout, "pack", "save", "default", regions...)
	s := newTestService(t, layout, nil)
	srv := httptest.NewServer(NewRouter(s))
	t.Cleanup(srv.Close)

	c, err := backend.New(srv.URL, backend.Options{Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return s, c
}

func TestServerRoundTrip(t *testing.T) {
	_, c := newTestServer(t, tiles.Region{X: 0, Z: 0}, tiles.Region{X: 1, Z: 0})
	ctx := context.Background()

	loc, err := c.RenderRegion(ctx, tiles.RenderRequest{Pack: "pack", Save: "save", Region: tiles.Region{X: 1, Z: 0}})
	require.NoError(t, err)
	assert.Equal(t, "/save-tile/pack/save/default/1.0.png", loc)

	rc, err := c.Open(ctx, loc)
	require.NoError(t, err)
	img, err := png.Decode(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, tiles.TileSize, img.Bounds().Dx())

	rc, err = c.Open(ctx, tiles.MetadataLocation(loc))
	require.NoError(t, err)
	meta, err := tiles.DecodeMetadata(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, 1, meta.RX)

	m, err := c.Manifest(ctx, "pack", "save", "")
	require.NoError(t, err)
	assert.Equal(t, []tiles.Region{{X: 1, Z: 0}}, m.Worlds["default"].Regions)

	require.NoError(t, c.GenerateFullMap(ctx, "pack", "save", "", false))
	m, err = c.Manifest(ctx, "pack", "save", "")
	require.NoError(t, err)
	assert.Len(t, m.Worlds["default"].Regions, 2)
}

func TestServerErrors(t *testing.T) {
	_, c := newTestServer(t, tiles.Region{})
	ctx := context.Background()

	_, err := c.RenderRegion(ctx, tiles.RenderRequest{Pack: "pack", Save: "save", Region: tiles.Region{X: 4}})
	var serr *backend.StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusNotFound, serr.Code)
	assert.Contains(t, serr.Message, "region file not found")

	_, err = c.Manifest(ctx, "", "save", "")
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusBadRequest, serr.Code)

	_, err = c.Open(ctx, "/save-tile/pack/save/default/0.0.png")
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusNotFound, serr.Code)

	_, err = c.Open(ctx, "/save-tile/pack/save/default/passwd")
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusNotFound, serr.Code)
}

func TestServerRejectsBadBody(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, backend.RenderPath, strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	NewRouter(s).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var res backend.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, backend.StatusFailed, res.Status)
}

// The whole viewer pipeline against the development service.
func TestTileManagerAgainstServer(t *testing.T) {
	_, c := newTestServer(t, tiles.Region{X: 0, Z: 0}, tiles.Region{X: 1, Z: 0})
	ctx := context.Background()
	require.NoError(t, c.GenerateFullMap(ctx, "pack", "save", "", false))

	vp := tiles.NewViewport()
	vp.Resize(1024, 512)
	tm := tiles.NewTileManager(c, vp, tiles.Options{Concurrency: 2, Logger: quietLogger()})
	defer tm.Dispose()
	require.NoError(t, tm.Load(ctx, tiles.Selection{Pack: "pack", Save: "save"}))
	vp.SetView(tiles.View{Zoom: 1})

	f := tm.Frame()
	require.Len(t, f.Tiles, 2)
	require.Eventually(t, func() bool { return tm.Stats().Ready == 2 }, 10*time.Second, 5*time.Millisecond)

	h := tm.Resolve(512+10, 20)
	assert.Equal(t, tiles.Region{X: 1, Z: 0}, h.Region)
	assert.Equal(t, 522, h.BlockX)
	assert.True(t, h.Known)
	assert.Contains(t, Palette()[1:], h.Label)
}

func TestTileHandlerServesMetadata(t *testing.T) {
	s, c := newTestServer(t, tiles.Region{})
	_, err := s.Render(context.Background(), "pack", "save", "", tiles.Region{}, false)
	require.NoError(t, err)

	rc, err := c.Open(context.Background(), "/save-tile/pack/save/default/0.0.json")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"palette"`)
}
