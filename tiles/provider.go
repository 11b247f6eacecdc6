package tiles

import (
	"context"
	"io"
)

// Selection identifies the map being viewed.
type Selection struct {
	Pack  string
	Save  string
	World string
	// Force asks the backend to re-render tiles instead of serving cached ones.
	Force bool
}

// RenderRequest asks the backend to render one region tile.
type RenderRequest struct {
	Pack   string
	Save   string
	Region Region
	World  string
	Force  bool
}

// Backend is the render service the viewer pulls tiles from. Any call may be
// slow or fail; implementations must be safe for concurrent use.
type Backend interface {
	// Manifest describes the worlds of a save. world may be empty.
	Manifest(ctx context.Context, pack, save, world string) (*Manifest, error)
	// RenderRegion renders a region tile and returns its image location. The
	// metadata lives at MetadataLocation(location).
	RenderRegion(ctx context.Context, req RenderRequest) (string, error)
	// GenerateFullMap renders every region of a world out of band.
	GenerateFullMap(ctx context.Context, pack, save, world string, force bool) error
	// Open fetches a resource returned by RenderRegion.
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}
