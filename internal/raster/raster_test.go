package raster

import (
	"image"
	"image/color"
	"math"
	"testing"
)

// uniformImage creates a w×h single-channel image with every pixel set to v
// and full validity.
func uniformImage(w, h int, v float32) *Image {
	img := New(w, h, 1)
	img.Fill([]float32{v}, 1)
	return img
}

// checkerImage creates a w×h single-channel image alternating v1 and v2 per
// pixel, full validity.
func checkerImage(w, h int, v1, v2 float32) *Image {
	img := New(w, h, 1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := v1
			if (x+y)%2 == 1 {
				v = v2
			}
			img.SetSample(x, y, 0, v)
			img.SetAlpha(x, y, 1)
		}
	}
	return img
}

func TestIsTransparent(t *testing.T) {
	img := New(4, 4, 1)
	if !img.IsTransparent() {
		t.Error("fresh image should be transparent")
	}
	img.SetAlpha(3, 2, 0.5)
	if img.IsTransparent() {
		t.Error("image with one valid pixel should not be transparent")
	}
}

func TestCropPlaceRoundTrip(t *testing.T) {
	src := New(8, 8, 3)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			for c := 0; c < 3; c++ {
				src.SetSample(x, y, c, float32(x*100+y*10+c))
			}
			src.SetAlpha(x, y, 1)
		}
	}

	patch := src.Crop(2, 3, 4, 2)
	if patch.W != 4 || patch.H != 2 {
		t.Fatalf("crop is %dx%d, want 4x2", patch.W, patch.H)
	}
	if got, want := patch.Sample(0, 0, 1), src.Sample(2, 3, 1); got != want {
		t.Errorf("crop(0,0,1) = %v, want %v", got, want)
	}

	dst := New(8, 8, 3)
	dst.PlaceAt(patch, 2, 3)
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			for c := 0; c < 3; c++ {
				if dst.Sample(2+x, 3+y, c) != src.Sample(2+x, 3+y, c) {
					t.Fatalf("placed pixel (%d,%d,%d) mismatch", x, y, c)
				}
			}
		}
	}
	if dst.AlphaAt(0, 0) != 0 {
		t.Error("pixels outside the placement should stay transparent")
	}
}

func TestSubsamplePointDecimation(t *testing.T) {
	src := New(6, 6, 1)
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			src.SetSample(x, y, 0, float32(y*6+x))
			src.SetAlpha(x, y, 1)
		}
	}

	out := src.Subsample(2)
	if out.W != 3 || out.H != 3 {
		t.Fatalf("subsample is %dx%d, want 3x3", out.W, out.H)
	}
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			want := src.Sample(2*x, 2*y, 0)
			if got := out.Sample(x, y, 0); got != want {
				t.Errorf("out(%d,%d) = %v, want %v (no blending)", x, y, got, want)
			}
		}
	}
}

func TestSeparableConvolveAveragesForward(t *testing.T) {
	// With the 2-tap [0.5, 0.5] kernel, out(x,y) must average the 2×2 block
	// whose top-left corner is (x,y), clamping at the right/bottom edges.
	src := New(4, 4, 1)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			src.SetSample(x, y, 0, float32(y*4+x))
			src.SetAlpha(x, y, 1)
		}
	}

	out := src.SeparableConvolve([]float32{0.5, 0.5})
	at := func(x, y int) float32 {
		return src.Sample(clampIndex(x, 4), clampIndex(y, 4), 0)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			want := (at(x, y) + at(x+1, y) + at(x, y+1) + at(x+1, y+1)) / 4
			if got := out.Sample(x, y, 0); math.Abs(float64(got-want)) > 1e-5 {
				t.Errorf("out(%d,%d) = %v, want %v", x, y, got, want)
			}
			if a := out.AlphaAt(x, y); a != 1 {
				t.Errorf("alpha(%d,%d) = %v, want 1", x, y, a)
			}
		}
	}
}

func TestSeparableConvolveSkipsInvalid(t *testing.T) {
	// A single valid pixel among invalid neighbors keeps its value: invalid
	// samples contribute neither value nor weight to the normalization.
	src := New(4, 4, 1)
	src.SetSample(1, 1, 0, 42)
	src.SetAlpha(1, 1, 1)

	out := src.SeparableConvolve([]float32{0.5, 0.5})
	if got := out.Sample(1, 1, 0); got != 42 {
		t.Errorf("out(1,1) = %v, want 42", got)
	}
	if a := out.AlphaAt(1, 1); a != 0.25 {
		t.Errorf("alpha(1,1) = %v, want 0.25", a)
	}
	if a := out.AlphaAt(3, 3); a != 0 {
		t.Errorf("alpha(3,3) = %v, want 0", a)
	}
}

func TestWarpIdentity(t *testing.T) {
	src := checkerImage(8, 8, 10, 20)
	out := src.Warp(8, 8, func(x, y float64) (float64, float64) {
		return x, y
	}, EdgeZero, KernelNearest)

	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if out.Sample(x, y, 0) != src.Sample(x, y, 0) {
				t.Fatalf("identity warp changed pixel (%d,%d)", x, y)
			}
		}
	}
}

func TestWarpZeroEdgeTransparent(t *testing.T) {
	src := uniformImage(4, 4, 100)
	// Shift the sampling window so the right half reads outside the source.
	out := src.Warp(4, 4, func(x, y float64) (float64, float64) {
		return x + 2, y
	}, EdgeZero, KernelBilinear)

	if out.AlphaAt(0, 0) == 0 {
		t.Error("in-range destination pixel should be valid")
	}
	if out.AlphaAt(3, 0) != 0 {
		t.Error("destination pixel mapping outside the source must be fully transparent")
	}
}

func TestWarpBicubicLinearPrecision(t *testing.T) {
	// Catmull-Rom interpolation reproduces linear ramps exactly, so a
	// half-pixel shift of a ramp stays a ramp (away from the edges).
	src := New(16, 16, 1)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			src.SetSample(x, y, 0, float32(3*x+2*y))
			src.SetAlpha(x, y, 1)
		}
	}

	out := src.Warp(16, 16, func(x, y float64) (float64, float64) {
		return x + 0.5, y + 0.5
	}, EdgeZero, KernelBicubic)

	for y := 2; y < 12; y++ {
		for x := 2; x < 12; x++ {
			want := 3*(float64(x)+0.5) + 2*(float64(y)+0.5)
			got := float64(out.Sample(x, y, 0))
			if math.Abs(got-want) > 1e-3 {
				t.Errorf("out(%d,%d) = %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestFromGraySingleChannel(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			src.SetGray(x, y, color.Gray{Y: uint8(y*4 + x)})
		}
	}

	img := FromGray(src)
	if img.Channels != 1 {
		t.Fatalf("channels = %d, want 1", img.Channels)
	}
	if got, want := img.Sample(3, 2, 0), float32(11); got != want {
		t.Errorf("sample(3,2) = %v, want %v", got, want)
	}
	if img.AlphaAt(0, 0) != 1 {
		t.Error("opaque gray pixels must be fully valid")
	}
}
