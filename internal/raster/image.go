// Package raster provides the pixel-level operations the plate manager is
// built on: a float32 raster with a per-pixel validity plane, quadrant
// placement, decimation, separable convolution and a generic geometric warp.
//
// Values are stored as float32 so that kernel arithmetic (the 2-tap preblur,
// bicubic warps) is exact up to float rounding; quantization to 8 bits happens
// only at the encode boundary.
package raster

// Image is a W×H raster with Channels value samples per pixel and a separate
// validity (alpha) plane in [0, 1]. Alpha 0 means the pixel carries no data;
// such pixels never contribute to interpolation.
//
// Channels is 1 for grayscale data and 3 for RGB. Pix is row-major with
// interleaved channels; Alpha is row-major with one sample per pixel.
type Image struct {
	W, H     int
	Channels int
	Pix      []float32
	Alpha    []float32
}

// New returns a fully transparent image (all samples and validity zero).
func New(w, h, channels int) *Image {
	return &Image{
		W:        w,
		H:        h,
		Channels: channels,
		Pix:      make([]float32, w*h*channels),
		Alpha:    make([]float32, w*h),
	}
}

// Sample returns channel c of pixel (x, y). No bounds checking.
func (m *Image) Sample(x, y, c int) float32 {
	return m.Pix[(y*m.W+x)*m.Channels+c]
}

// SetSample sets channel c of pixel (x, y).
func (m *Image) SetSample(x, y, c int, v float32) {
	m.Pix[(y*m.W+x)*m.Channels+c] = v
}

// AlphaAt returns the validity of pixel (x, y).
func (m *Image) AlphaAt(x, y int) float32 {
	return m.Alpha[y*m.W+x]
}

// SetAlpha sets the validity of pixel (x, y).
func (m *Image) SetAlpha(x, y int, a float32) {
	m.Alpha[y*m.W+x] = a
}

// Fill sets every pixel to the given channel values with validity a.
func (m *Image) Fill(values []float32, a float32) {
	for i := 0; i < m.W*m.H; i++ {
		for c := 0; c < m.Channels; c++ {
			m.Pix[i*m.Channels+c] = values[c]
		}
		m.Alpha[i] = a
	}
}

// Clone returns a deep copy.
func (m *Image) Clone() *Image {
	out := &Image{W: m.W, H: m.H, Channels: m.Channels}
	out.Pix = append([]float32(nil), m.Pix...)
	out.Alpha = append([]float32(nil), m.Alpha...)
	return out
}

// IsTransparent reports whether every pixel has zero validity.
func (m *Image) IsTransparent() bool {
	for _, a := range m.Alpha {
		if a != 0 {
			return false
		}
	}
	return true
}
