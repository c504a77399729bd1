// Package encode turns plate tiles into common image formats for export and
// debugging. Float samples are quantized to 8 bits here and nowhere else.
package encode

import (
	"fmt"

	"github.com/pspoerri/platepyramid/internal/raster"
)

// Encoder encodes a tile into bytes of one image format.
type Encoder interface {
	// Encode encodes a tile to bytes.
	Encode(img *raster.Image) ([]byte, error)

	// Format returns the format name (e.g. "png", "webp").
	Format() string

	// FileExtension returns the appropriate file extension.
	FileExtension() string
}

// NewEncoder creates an encoder for the given format and quality. Quality is
// ignored by lossless formats.
func NewEncoder(format string, quality int) (Encoder, error) {
	switch format {
	case "png":
		return &PNGEncoder{}, nil
	case "webp":
		return NewWebPEncoder(quality), nil
	default:
		return nil, fmt.Errorf("unsupported tile format: %q (supported: png, webp)", format)
	}
}
