package raster

// Crop returns a copy of the w×h region of m starting at (x, y). The region
// must lie inside the image.
func (m *Image) Crop(x, y, w, h int) *Image {
	out := New(w, h, m.Channels)
	for row := 0; row < h; row++ {
		srcOff := ((y+row)*m.W + x) * m.Channels
		dstOff := row * w * m.Channels
		copy(out.Pix[dstOff:dstOff+w*m.Channels], m.Pix[srcOff:srcOff+w*m.Channels])

		srcAOff := (y+row)*m.W + x
		dstAOff := row * w
		copy(out.Alpha[dstAOff:dstAOff+w], m.Alpha[srcAOff:srcAOff+w])
	}
	return out
}

// PlaceAt copies src into m with src's origin at (x, y). Channel counts must
// match; the placement must lie inside m.
func (m *Image) PlaceAt(src *Image, x, y int) {
	if src.Channels != m.Channels {
		panic("raster: channel count mismatch in PlaceAt")
	}
	for row := 0; row < src.H; row++ {
		dstOff := ((y+row)*m.W + x) * m.Channels
		srcOff := row * src.W * m.Channels
		copy(m.Pix[dstOff:dstOff+src.W*m.Channels], src.Pix[srcOff:srcOff+src.W*m.Channels])

		dstAOff := (y+row)*m.W + x
		srcAOff := row * src.W
		copy(m.Alpha[dstAOff:dstAOff+src.W], src.Alpha[srcAOff:srcAOff+src.W])
	}
}

// Subsample returns every k-th pixel along both axes starting at (0, 0).
// Point decimation: no filtering is applied.
func (m *Image) Subsample(k int) *Image {
	w := (m.W + k - 1) / k
	h := (m.H + k - 1) / k
	out := New(w, h, m.Channels)
	for y := 0; y < h; y++ {
		sy := y * k
		for x := 0; x < w; x++ {
			sx := x * k
			srcOff := (sy*m.W + sx) * m.Channels
			dstOff := (y*w + x) * m.Channels
			copy(out.Pix[dstOff:dstOff+m.Channels], m.Pix[srcOff:srcOff+m.Channels])
			out.Alpha[y*w+x] = m.Alpha[sy*m.W+sx]
		}
	}
	return out
}

// SeparableConvolve convolves m with the 1D kernel along X then Y, using
// replicate edge extension (samples outside the image take the nearest edge
// value). The kernel origin is at index (len-1)/2, so a 2-tap kernel averages
// each pixel with its right/lower neighbor — the alignment needed for
// decimation by 2 to average 2×2 blocks.
//
// Validity is convolved alongside the values with premultiplied weighting:
// invalid pixels contribute nothing, and the output validity is the filtered
// validity itself.
func (m *Image) SeparableConvolve(kernel []float32) *Image {
	center := (len(kernel) - 1) / 2
	tmp := convolveAxis(m, kernel, center, true)
	return convolveAxis(tmp, kernel, center, false)
}

func convolveAxis(m *Image, kernel []float32, center int, horizontal bool) *Image {
	out := New(m.W, m.H, m.Channels)
	nc := m.Channels
	acc := make([]float32, nc)

	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			for c := range acc {
				acc[c] = 0
			}
			var accA, accW float32
			for i, k := range kernel {
				sx, sy := x, y
				if horizontal {
					sx = clampIndex(x+i-center, m.W)
				} else {
					sy = clampIndex(y+i-center, m.H)
				}
				a := m.Alpha[sy*m.W+sx]
				accA += k * a
				accW += k
				if a == 0 {
					continue
				}
				off := (sy*m.W + sx) * nc
				for c := 0; c < nc; c++ {
					acc[c] += k * a * m.Pix[off+c]
				}
			}
			outOff := (y*m.W + x) * nc
			if accA > 0 {
				for c := 0; c < nc; c++ {
					out.Pix[outOff+c] = acc[c] / accA
				}
			}
			if accW > 0 {
				accA /= accW
			}
			out.Alpha[y*m.W+x] = accA
		}
	}
	return out
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
