package mapview

import (
	"image"
	"sync"

	"gioui.org/op/paint"

	"github.com/olablt/gio-worldmap/tiles"
)

type imageOpEntry struct {
	img image.Image
	op  paint.ImageOp
}

// ImageOpCache keeps the paint.ImageOp of every drawn tile so an image is
// uploaded once per session. Entries belong to one epoch; a frame of a newer
// epoch drops them all.
type ImageOpCache struct {
	mu    sync.RWMutex
	epoch uint64
	cache map[tiles.Region]imageOpEntry
}

func NewImageOpCache() *ImageOpCache {
	return &ImageOpCache{
		cache: make(map[tiles.Region]imageOpEntry),
	}
}

// Get returns the op for img, creating it when r has none or a different
// image.
func (c *ImageOpCache) Get(epoch uint64, r tiles.Region, img image.Image) paint.ImageOp {
	c.mu.RLock()
	e, ok := c.cache[r]
	same := c.epoch == epoch
	c.mu.RUnlock()
	if ok && same && e.img == img {
		return e.op
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		c.epoch = epoch
		c.cache = make(map[tiles.Region]imageOpEntry)
	}
	e = imageOpEntry{img: img, op: paint.NewImageOp(img)}
	c.cache[r] = e
	return e.op
}

func (c *ImageOpCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *ImageOpCache) Clear() {
	c.mu.Lock()
	c.cache = make(map[tiles.Region]imageOpEntry)
	c.mu.Unlock()
}
