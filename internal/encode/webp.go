package encode

import (
	"bytes"

	"github.com/gen2brain/webp"

	"github.com/pspoerri/platepyramid/internal/raster"
)

// WebPEncoder encodes tiles as WebP using a pure-Go (WASM-based) encoder.
// No CGo or system libraries required; a system libwebp is used via purego
// when available, otherwise the WASM fallback kicks in.
type WebPEncoder struct {
	Quality int
}

// NewWebPEncoder returns a WebP encoder. Quality ≤ 0 defaults to 85.
func NewWebPEncoder(quality int) *WebPEncoder {
	if quality <= 0 {
		quality = 85
	}
	return &WebPEncoder{Quality: quality}
}

func (e *WebPEncoder) Encode(img *raster.Image) ([]byte, error) {
	var buf bytes.Buffer
	opts := webp.Options{
		Lossless: false,
		Quality:  e.Quality,
	}
	if err := webp.Encode(&buf, img.ToRGBA(), opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *WebPEncoder) Format() string        { return "webp" }
func (e *WebPEncoder) FileExtension() string { return ".webp" }
