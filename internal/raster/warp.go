package raster

import "math"

// Kernel selects the interpolation used by Warp.
type Kernel int

const (
	// KernelNearest picks the nearest source pixel.
	KernelNearest Kernel = iota
	// KernelBilinear blends the 2×2 neighborhood.
	KernelBilinear
	// KernelBicubic is Catmull-Rom cubic interpolation over the 4×4
	// neighborhood (a = -0.5).
	KernelBicubic
)

// Edge selects how Warp treats samples that fall outside the source image.
type Edge int

const (
	// EdgeZero treats outside samples as fully transparent.
	EdgeZero Edge = iota
	// EdgeReplicate clamps outside samples to the nearest edge pixel.
	EdgeReplicate
)

// MapFunc maps a destination pixel coordinate to the source pixel coordinate
// it samples from.
type MapFunc func(x, y float64) (sx, sy float64)

// Warp resamples m into a w×h destination image. For each destination pixel
// the mapping gives the source position; the kernel interpolates around it.
//
// Interpolation is validity-weighted: source samples contribute
// premultiplied by their alpha, and the interpolated alpha both normalizes
// the values and becomes the destination validity. Destination pixels whose
// entire kernel support is invalid (or outside the image under EdgeZero)
// come out fully transparent.
func (m *Image) Warp(w, h int, mapping MapFunc, edge Edge, kernel Kernel) *Image {
	out := New(w, h, m.Channels)
	nc := m.Channels
	acc := make([]float64, nc)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := mapping(float64(x), float64(y))
			if math.IsNaN(sx) || math.IsNaN(sy) || math.IsInf(sx, 0) || math.IsInf(sy, 0) {
				continue
			}

			var lo, taps int
			var weight func(d float64) float64
			switch kernel {
			case KernelNearest:
				lo, taps = 0, 1
			case KernelBilinear:
				lo, taps = 0, 2
				weight = func(d float64) float64 { return 1 - math.Abs(d) }
			default: // KernelBicubic
				lo, taps = -1, 4
				weight = catmullRom
			}

			var ix, iy int
			if kernel == KernelNearest {
				ix = int(math.Round(sx))
				iy = int(math.Round(sy))
			} else {
				ix = int(math.Floor(sx))
				iy = int(math.Floor(sy))
			}

			for c := range acc {
				acc[c] = 0
			}
			var accA, accW float64

			for j := 0; j < taps; j++ {
				py := iy + lo + j
				var wy float64 = 1
				if weight != nil {
					wy = weight(sy - float64(py))
				}
				for i := 0; i < taps; i++ {
					px := ix + lo + i
					var wx float64 = 1
					if weight != nil {
						wx = weight(sx - float64(px))
					}
					wgt := wx * wy
					if wgt == 0 {
						continue
					}

					qx, qy := px, py
					outside := qx < 0 || qx >= m.W || qy < 0 || qy >= m.H
					if outside {
						if edge == EdgeZero {
							accW += wgt
							continue
						}
						qx = clampIndex(qx, m.W)
						qy = clampIndex(qy, m.H)
					}

					a := float64(m.Alpha[qy*m.W+qx])
					accW += wgt
					if a == 0 {
						continue
					}
					accA += wgt * a
					off := (qy*m.W + qx) * nc
					for c := 0; c < nc; c++ {
						acc[c] += wgt * a * float64(m.Pix[off+c])
					}
				}
			}

			if accA <= 0 {
				continue // fully transparent destination pixel
			}
			outOff := (y*w + x) * nc
			for c := 0; c < nc; c++ {
				out.Pix[outOff+c] = float32(acc[c] / accA)
			}
			a := accA
			if accW > 0 {
				a /= accW
			}
			if a > 1 {
				a = 1
			}
			out.Alpha[y*w+x] = float32(a)
		}
	}
	return out
}

// catmullRom is the cubic interpolation weight with a = -0.5.
func catmullRom(d float64) float64 {
	d = math.Abs(d)
	switch {
	case d < 1:
		return 1.5*d*d*d - 2.5*d*d + 1
	case d < 2:
		return -0.5*d*d*d + 2.5*d*d - 4*d + 2
	default:
		return 0
	}
}
