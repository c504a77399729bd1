package raster

import (
	"image"
	"image/color"
)

// FromRGBA converts a stdlib image into a 3-channel raster. Values keep the
// 0–255 range; alpha becomes validity in [0, 1].
func FromRGBA(img image.Image) *Image {
	b := img.Bounds()
	out := New(b.Dx(), b.Dy(), 3)
	for y := 0; y < out.H; y++ {
		for x := 0; x < out.W; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			off := (y*out.W + x) * 3
			out.Pix[off] = float32(c.R)
			out.Pix[off+1] = float32(c.G)
			out.Pix[off+2] = float32(c.B)
			out.Alpha[y*out.W+x] = float32(c.A) / 255.0
		}
	}
	return out
}

// FromGray converts a grayscale stdlib image into a single-channel raster.
// Values keep the 0–255 range; alpha becomes validity in [0, 1].
func FromGray(img image.Image) *Image {
	b := img.Bounds()
	out := New(b.Dx(), b.Dy(), 1)
	for y := 0; y < out.H; y++ {
		for x := 0; x < out.W; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			out.Pix[y*out.W+x] = float32(c.R)
			out.Alpha[y*out.W+x] = float32(c.A) / 255.0
		}
	}
	return out
}

// ToRGBA converts the raster to a stdlib NRGBA image, clamping values to
// 0–255. Single-channel rasters replicate the value across R, G and B.
func (m *Image) ToRGBA() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, m.W, m.H))
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			off := (y*m.W + x) * m.Channels
			var r, g, b uint8
			if m.Channels == 1 {
				v := clampByte(m.Pix[off])
				r, g, b = v, v, v
			} else {
				r = clampByte(m.Pix[off])
				g = clampByte(m.Pix[off+1])
				b = clampByte(m.Pix[off+2])
			}
			a := m.Alpha[y*m.W+x]
			if a < 0 {
				a = 0
			} else if a > 1 {
				a = 1
			}
			img.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: uint8(a*255 + 0.5)})
		}
	}
	return img
}

func clampByte(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
