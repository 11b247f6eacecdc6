package tiles

import (
	"errors"
	"fmt"
	"image"
)

// State is the load state of a cached tile. A region without a cache entry
// is absent; otherwise its state is one of Loading, Ready or Failed.
type State interface {
	state()
}

// Loading means a fetch is queued or in flight.
type Loading struct{}

// Ready holds a decoded tile and its metadata.
type Ready struct {
	Image image.Image
	Meta  *Metadata
}

// Failed records why a tile could not be loaded. It is not retried.
type Failed struct {
	Err error
}

func (Loading) state() {}
func (Ready) state()   {}
func (Failed) state()  {}

// TileError is the error stored for a region whose fetch failed.
type TileError struct {
	Region Region
	Err    error
}

func (e *TileError) Error() string {
	return fmt.Sprintf("tile %v: %v", e.Region, e.Err)
}

func (e *TileError) Unwrap() error { return e.Err }

// ManifestError is returned by Load when the manifest of a selection could
// not be fetched.
type ManifestError struct {
	Selection Selection
	Err       error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("load manifest %s/%s: %v", e.Selection.Pack, e.Selection.Save, e.Err)
}

func (e *ManifestError) Unwrap() error { return e.Err }

var (
	// ErrNoWorld is returned when a manifest has no entry for the requested world.
	ErrNoWorld = errors.New("world not in manifest")
	// ErrDisposed is returned by operations on a disposed manager.
	ErrDisposed = errors.New("tile manager disposed")
)
