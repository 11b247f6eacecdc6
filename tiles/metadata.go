package tiles

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
)

const (
	// MetadataExt is the extension of the per-tile metadata resource.
	MetadataExt = ".json"

	LabelUnknown     = "Unknown"
	LabelOutOfRegion = "Out of region"
)

// Metadata is the per-pixel palette index buffer of one tile.
type Metadata struct {
	RX      int      `json:"rx"`
	RZ      int      `json:"rz"`
	World   string   `json:"world"`
	Chunks  int      `json:"chunks"`
	Size    int      `json:"size"`
	Indices []byte   `json:"data"`
	Palette []string `json:"palette"`
}

// DecodeMetadata reads and validates a metadata document.
func DecodeMetadata(r io.Reader) (*Metadata, error) {
	var m Metadata
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if m.Size <= 0 {
		m.Size = BlocksPerRegion
	}
	if len(m.Indices) != m.Size*m.Size {
		return nil, fmt.Errorf("metadata: %d indices for size %d", len(m.Indices), m.Size)
	}
	return &m, nil
}

// Label returns the surface label at an in-tile pixel. ok is false when the
// pixel is outside the buffer.
func (m *Metadata) Label(x, z int) (string, bool) {
	if m == nil || x < 0 || z < 0 || x >= m.Size || z >= m.Size {
		return "", false
	}
	idx := int(m.Indices[z*m.Size+x])
	if idx >= len(m.Palette) || m.Palette[idx] == "" {
		return LabelUnknown, true
	}
	return m.Palette[idx], true
}

// MetadataLocation derives the metadata location of a tile image location by
// swapping its extension. Query strings are preserved.
func MetadataLocation(tileLocation string) string {
	loc, query, _ := strings.Cut(tileLocation, "?")
	loc = strings.TrimSuffix(loc, path.Ext(loc)) + MetadataExt
	if query != "" {
		loc += "?" + query
	}
	return loc
}
