package geodesy

// Point is a 2D coordinate. Depending on context it holds pixel coordinates,
// projected planar meters, or lon/lat degrees.
type Point struct {
	X, Y float64
}

// BBox is an axis-aligned bounding box. A zero BBox is empty.
type BBox struct {
	MinX, MinY float64
	MaxX, MaxY float64
	set        bool
}

// Grow expands the bbox to include p.
func (b *BBox) Grow(p Point) {
	if !b.set {
		b.MinX, b.MaxX = p.X, p.X
		b.MinY, b.MaxY = p.Y, p.Y
		b.set = true
		return
	}
	if p.X < b.MinX {
		b.MinX = p.X
	}
	if p.X > b.MaxX {
		b.MaxX = p.X
	}
	if p.Y < b.MinY {
		b.MinY = p.Y
	}
	if p.Y > b.MaxY {
		b.MaxY = p.Y
	}
}

// Empty reports whether the bbox contains no points.
func (b BBox) Empty() bool { return !b.set }

// Width returns MaxX - MinX.
func (b BBox) Width() float64 { return b.MaxX - b.MinX }

// Height returns MaxY - MinY.
func (b BBox) Height() float64 { return b.MaxY - b.MinY }

// Rect constructs a bbox from min/max corners.
func Rect(minX, minY, maxX, maxY float64) BBox {
	return BBox{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY, set: true}
}

// Matrix3 is a row-major 3×3 affine transform. The bottom row is expected to
// stay (0, 0, 1); Apply and Inverse rely on it.
type Matrix3 [3][3]float64

// Identity returns the identity transform.
func Identity() Matrix3 {
	return Matrix3{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

// Apply transforms p by m, treating p as a homogeneous (x, y, 1) column.
func (m Matrix3) Apply(p Point) Point {
	return Point{
		X: m[0][0]*p.X + m[0][1]*p.Y + m[0][2],
		Y: m[1][0]*p.X + m[1][1]*p.Y + m[1][2],
	}
}

// Mul returns m·n.
func (m Matrix3) Mul(n Matrix3) Matrix3 {
	var out Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[i][0]*n[0][j] + m[i][1]*n[1][j] + m[i][2]*n[2][j]
		}
	}
	return out
}

// Inverse returns the inverse of an affine transform using the closed form
// for the 2×2 linear part plus translation. The second return value is false
// when the linear part is singular.
func (m Matrix3) Inverse() (Matrix3, bool) {
	det := m[0][0]*m[1][1] - m[0][1]*m[1][0]
	if det == 0 {
		return Matrix3{}, false
	}
	inv := Matrix3{
		{m[1][1] / det, -m[0][1] / det, 0},
		{-m[1][0] / det, m[0][0] / det, 0},
		{0, 0, 1},
	}
	inv[0][2] = -(inv[0][0]*m[0][2] + inv[0][1]*m[1][2])
	inv[1][2] = -(inv[1][0]*m[0][2] + inv[1][1]*m[1][2])
	return inv, true
}
