package geometry

import (
	"fmt"
	"image"
	"math"
)

// Point is an x,y coordinate in some pixel space
type Point struct {
	X, Y float64
}

// Rect represents a rectangle by its left, top, right and bottom edges.  The
// coordinate space the edges belong to is decided by the caller.
type Rect struct {
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
}

// NewRect creates a Rect from its top left corner and dimensions
func NewRect(x, y, width, height float64) Rect {
	return Rect{
		Left:   x,
		Top:    y,
		Right:  x + width,
		Bottom: y + height,
	}
}

// RectFromCenter creates a Rect from its center point and dimensions
func RectFromCenter(cx, cy, width, height float64) Rect {
	return NewRect(cx-width/2, cy-height/2, width, height)
}

// RectFromImage converts an image.Rectangle into a Rect
func RectFromImage(r image.Rectangle) Rect {
	return Rect{
		Left:   float64(r.Min.X),
		Top:    float64(r.Min.Y),
		Right:  float64(r.Max.X),
		Bottom: float64(r.Max.Y),
	}
}

// Width returns the width of the rectangle
func (r Rect) Width() float64 {
	return r.Right - r.Left
}

// Height returns the height of the rectangle
func (r Rect) Height() float64 {
	return r.Bottom - r.Top
}

// Area returns the area of the rectangle, zero if it is empty
func (r Rect) Area() float64 {
	if r.Empty() {
		return 0
	}

	return r.Width() * r.Height()
}

// Empty reports whether the rectangle has no area
func (r Rect) Empty() bool {
	return r.Right <= r.Left || r.Bottom <= r.Top
}

// Center returns the mid point of the rectangle
func (r Rect) Center() Point {
	return Point{
		X: (r.Left + r.Right) / 2,
		Y: (r.Top + r.Bottom) / 2,
	}
}

// Offset returns the rectangle moved by dx, dy
func (r Rect) Offset(dx, dy float64) Rect {
	return Rect{
		Left:   r.Left + dx,
		Top:    r.Top + dy,
		Right:  r.Right + dx,
		Bottom: r.Bottom + dy,
	}
}

// Intersect returns the largest rectangle contained by both r and other.  If
// they do not overlap the zero Rect is returned.
func (r Rect) Intersect(other Rect) Rect {

	out := Rect{
		Left:   math.Max(r.Left, other.Left),
		Top:    math.Max(r.Top, other.Top),
		Right:  math.Min(r.Right, other.Right),
		Bottom: math.Min(r.Bottom, other.Bottom),
	}

	if out.Empty() {
		return Rect{}
	}

	return out
}

// IoU calculates the Intersection over Union of two rectangles
func (r Rect) IoU(other Rect) float64 {

	inter := r.Intersect(other).Area()

	if inter == 0 {
		return 0
	}

	union := r.Area() + other.Area() - inter

	if union <= 0 {
		return 0
	}

	return inter / union
}

// Clamp restricts the rectangle to lie within 0,0 and width,height
func (r Rect) Clamp(width, height float64) Rect {
	return Rect{
		Left:   clamp(r.Left, 0, width),
		Top:    clamp(r.Top, 0, height),
		Right:  clamp(r.Right, 0, width),
		Bottom: clamp(r.Bottom, 0, height),
	}
}

// ImageRect converts to an image.Rectangle, rounding edges to the nearest
// pixel
func (r Rect) ImageRect() image.Rectangle {
	return image.Rect(
		int(math.Round(r.Left)),
		int(math.Round(r.Top)),
		int(math.Round(r.Right)),
		int(math.Round(r.Bottom)),
	)
}

// String returns the rectangle as left,top,right,bottom
func (r Rect) String() string {
	return fmt.Sprintf("(%.1f,%.1f,%.1f,%.1f)", r.Left, r.Top, r.Right, r.Bottom)
}

// Xyah returns the rectangle as center x, center y, aspect ratio and height
func (r Rect) Xyah() [4]float64 {

	c := r.Center()
	h := r.Height()
	aspect := 0.0

	if h != 0 {
		aspect = r.Width() / h
	}

	return [4]float64{c.X, c.Y, aspect, h}
}

// RectFromXyah creates a Rect from center x, center y, aspect ratio and
// height values
func RectFromXyah(xyah [4]float64) Rect {
	width := xyah[2] * xyah[3]
	return NewRect(xyah[0]-width/2, xyah[1]-xyah[3]/2, width, xyah[3])
}

func clamp(val, min, max float64) float64 {

	if val < min {
		return min
	}

	if val > max {
		return max
	}

	return val
}
