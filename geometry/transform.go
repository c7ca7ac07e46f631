package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrSingular is returned when inverting a transform with zero scale
	ErrSingular = errors.New("transform is singular")
	// ErrDegenerate is returned when a transform is requested for a zero or
	// negative sized coordinate space
	ErrDegenerate = errors.New("degenerate coordinate space")
	// ErrRotation is returned for rotations that are not a multiple of 90
	// degrees
	ErrRotation = errors.New("rotation must be a multiple of 90 degrees")
)

// singularEpsilon is the determinant magnitude below which a transform is
// treated as singular
const singularEpsilon = 1e-12

// Transform is a 2D affine mapping between two coordinate spaces.  A point
// (x,y) maps to (A*x + B*y + Tx, C*x + D*y + Ty).
type Transform struct {
	A, B, Tx float64
	C, D, Ty float64
}

// Identity returns a transform that leaves points unchanged
func Identity() Transform {
	return Transform{A: 1, D: 1}
}

// Translate returns a transform that moves points by dx, dy
func Translate(dx, dy float64) Transform {
	return Transform{A: 1, D: 1, Tx: dx, Ty: dy}
}

// Scale returns a transform scaling each axis about the origin
func Scale(sx, sy float64) Transform {
	return Transform{A: sx, D: sy}
}

// Rotate returns a clockwise rotation about the origin, in image coordinates
// where the y axis points down.  Only multiples of 90 degrees are accepted so
// the coefficients stay exact.
func Rotate(degrees int) (Transform, error) {

	var cos, sin float64

	switch normalizeRotation(degrees) {
	case 0:
		cos, sin = 1, 0
	case 90:
		cos, sin = 0, 1
	case 180:
		cos, sin = -1, 0
	case 270:
		cos, sin = 0, -1
	default:
		return Transform{}, fmt.Errorf("%w: got %d", ErrRotation, degrees)
	}

	return Transform{A: cos, B: -sin, C: sin, D: cos}, nil
}

// Compute returns the transform mapping a srcW x srcH space onto a dstW x dstH
// space.  The source is rotated about its center by rotation degrees.  When
// maintainAspect is true a single scale factor, the smaller of the two axis
// factors, is used for both axes and the result is centered in the
// destination.
func Compute(srcW, srcH, dstW, dstH, rotation int,
	maintainAspect bool) (Transform, error) {

	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return Transform{}, fmt.Errorf("%w: source %dx%d, destination %dx%d",
			ErrDegenerate, srcW, srcH, dstW, dstH)
	}

	rot, err := Rotate(rotation)

	if err != nil {
		return Transform{}, err
	}

	// move source center to origin so rotation happens about it
	t := Translate(-float64(srcW)/2, -float64(srcH)/2).Then(rot)

	// a quarter turn swaps which source axis lands on the destination width
	inW, inH := float64(srcW), float64(srcH)

	if r := normalizeRotation(rotation); r == 90 || r == 270 {
		inW, inH = inH, inW
	}

	sx := float64(dstW) / inW
	sy := float64(dstH) / inH

	if maintainAspect {
		s := math.Min(sx, sy)
		sx, sy = s, s
	}

	t = t.Then(Scale(sx, sy)).
		Then(Translate(float64(dstW)/2, float64(dstH)/2))

	return t, nil
}

// Then returns the transform that applies t followed by next
func (t Transform) Then(next Transform) Transform {
	return Transform{
		A:  next.A*t.A + next.B*t.C,
		B:  next.A*t.B + next.B*t.D,
		Tx: next.A*t.Tx + next.B*t.Ty + next.Tx,
		C:  next.C*t.A + next.D*t.C,
		D:  next.C*t.B + next.D*t.D,
		Ty: next.C*t.Tx + next.D*t.Ty + next.Ty,
	}
}

// Determinant returns the determinant of the linear part of the transform
func (t Transform) Determinant() float64 {
	return t.A*t.D - t.B*t.C
}

// Invert returns the transform mapping the destination space back to the
// source space
func (t Transform) Invert() (Transform, error) {

	if math.Abs(t.Determinant()) < singularEpsilon {
		return Transform{}, ErrSingular
	}

	m := mat.NewDense(3, 3, []float64{
		t.A, t.B, t.Tx,
		t.C, t.D, t.Ty,
		0, 0, 1,
	})

	var inv mat.Dense
	err := inv.Inverse(m)

	if err != nil {
		return Transform{}, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	return Transform{
		A: inv.At(0, 0), B: inv.At(0, 1), Tx: inv.At(0, 2),
		C: inv.At(1, 0), D: inv.At(1, 1), Ty: inv.At(1, 2),
	}, nil
}

// Apply maps a single point
func (t Transform) Apply(p Point) Point {
	return Point{
		X: t.A*p.X + t.B*p.Y + t.Tx,
		Y: t.C*p.X + t.D*p.Y + t.Ty,
	}
}

// MapRect maps the four corners of r and returns their bounding box
func (t Transform) MapRect(r Rect) Rect {

	corners := [4]Point{
		t.Apply(Point{r.Left, r.Top}),
		t.Apply(Point{r.Right, r.Top}),
		t.Apply(Point{r.Right, r.Bottom}),
		t.Apply(Point{r.Left, r.Bottom}),
	}

	out := Rect{
		Left:   corners[0].X,
		Top:    corners[0].Y,
		Right:  corners[0].X,
		Bottom: corners[0].Y,
	}

	for _, c := range corners[1:] {
		out.Left = math.Min(out.Left, c.X)
		out.Top = math.Min(out.Top, c.Y)
		out.Right = math.Max(out.Right, c.X)
		out.Bottom = math.Max(out.Bottom, c.Y)
	}

	return out
}

// ScaleX returns the length a unit step along the source x axis has in the
// destination space
func (t Transform) ScaleX() float64 {
	return math.Hypot(t.A, t.C)
}

// ScaleY returns the length a unit step along the source y axis has in the
// destination space
func (t Transform) ScaleY() float64 {
	return math.Hypot(t.B, t.D)
}

// Coefficients returns the transform as a row major 2x3 matrix, the layout
// used by affine warp functions
func (t Transform) Coefficients() [6]float64 {
	return [6]float64{t.A, t.B, t.Tx, t.C, t.D, t.Ty}
}

// Equal reports whether all coefficients are within tolerance of other
func (t Transform) Equal(other Transform, tolerance float64) bool {

	a := t.Coefficients()
	b := other.Coefficients()

	for i := range a {
		if math.Abs(a[i]-b[i]) > tolerance {
			return false
		}
	}

	return true
}

// String returns the transform coefficients in readable form
func (t Transform) String() string {
	return fmt.Sprintf("[%.4f %.4f %.4f; %.4f %.4f %.4f]",
		t.A, t.B, t.Tx, t.C, t.D, t.Ty)
}

// normalizeRotation folds degrees into the range [0, 360)
func normalizeRotation(degrees int) int {

	r := degrees % 360

	if r < 0 {
		r += 360
	}

	return r
}
