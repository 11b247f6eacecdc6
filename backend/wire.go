// Package backend talks to a region render service over HTTP.
package backend

import "github.com/olablt/gio-worldmap/tiles"

const (
	StatusSuccess = "success"
	StatusFailed  = "error"

	ManifestPath = "/api/manifest"
	RenderPath   = "/api/render"
	GeneratePath = "/api/generate"
	TilePrefix   = "/save-tile/"
)

// Response is the envelope of every API reply.
type Response struct {
	Status   string          `json:"status"`
	Message  string          `json:"message,omitempty"`
	Manifest *tiles.Manifest `json:"manifest,omitempty"`
	TileURL  string          `json:"tile_url,omitempty"`
	Rendered int             `json:"rendered,omitempty"`
	Failed   int             `json:"failed,omitempty"`
	World    string          `json:"world,omitempty"`
}

type RenderBody struct {
	Pack  string `json:"pack"`
	Save  string `json:"save"`
	RX    int    `json:"rx"`
	RZ    int    `json:"rz"`
	World string `json:"world,omitempty"`
	Force bool   `json:"force"`
}

type GenerateBody struct {
	Pack  string `json:"pack"`
	Save  string `json:"save"`
	World string `json:"world,omitempty"`
	Force bool   `json:"force"`
}
