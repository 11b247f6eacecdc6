package renderd

import (
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/olablt/gio-worldmap/backend"
	"github.com/olablt/gio-worldmap/tiles"
)

// NewRouter wires the service to the backend HTTP contract.
func NewRouter(s *Service) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	h := &handlers{s: s}
	api := r.Group("/api")
	api.GET("manifest", h.manifest)
	api.POST("render", h.render)
	api.POST("generate", h.generate)
	r.GET(backend.TilePrefix+":pack/:save/:world/:file", h.tile)
	return r
}

type handlers struct {
	s *Service
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Debug("renderd: request")
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrBadName):
		return http.StatusBadRequest
	case errors.Is(err, ErrWorldNotFound), errors.Is(err, ErrRegionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, code int, err error) {
	c.JSON(code, backend.Response{Status: backend.StatusFailed, Message: err.Error()})
}

// GET /api/manifest?pack=&save=&world=
func (h *handlers) manifest(c *gin.Context) {
	m, err := h.s.Manifest(c.Query("pack"), c.Query("save"))
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, backend.Response{Status: backend.StatusSuccess, Manifest: m})
}

// POST /api/render
// Body: backend.RenderBody
func (h *handlers) render(c *gin.Context) {
	var req backend.RenderBody
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	res, err := h.s.Render(c.Request.Context(), req.Pack, req.Save, req.World, tiles.Region{X: req.RX, Z: req.RZ}, req.Force)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, backend.Response{Status: backend.StatusSuccess, TileURL: res.Location, World: res.World})
}

// POST /api/generate
// Body: backend.GenerateBody
func (h *handlers) generate(c *gin.Context) {
	var req backend.GenerateBody
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	res, err := h.s.Generate(c.Request.Context(), req.Pack, req.Save, req.World, req.Force)
	if err != nil {
		fail(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, backend.Response{
		Status:   backend.StatusSuccess,
		Rendered: res.Rendered,
		Failed:   res.Failed,
		World:    res.World,
	})
}

// GET /save-tile/:pack/:save/:world/:file
func (h *handlers) tile(c *gin.Context) {
	pack, save, world, file := c.Param("pack"), c.Param("save"), c.Param("world"), c.Param("file")
	if err := validNames(pack, save, world, file); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	ext := filepath.Ext(file)
	if _, ok := parseRegionName(file, ext); !ok || (ext != ".png" && ext != tiles.MetadataExt) {
		fail(c, http.StatusNotFound, errors.New("not a tile"))
		return
	}
	path := filepath.Join(h.s.layout.tileDir(pack, save, world), file)
	if !exists(path) {
		fail(c, http.StatusNotFound, errors.New("tile not rendered"))
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.File(path)
}
