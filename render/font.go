package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Alignment positions a caption along the top edge of its box
type Alignment int

const (
	Left Alignment = iota + 1
	Center
	Right
)

// Font defines the parameters for rendering Hershey text with GoCV.  Use
// TTFText for plates with characters outside the Latin range.
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
	// padding between the text and its background
	LeftPad   int
	RightPad  int
	TopPad    int
	BottomPad int
	Alignment Alignment
}

// DefaultFont returns a small white anti-aliased font for captions
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Color:     White,
		Thickness: 1,
		LineType:  gocv.LineAA,
		LeftPad:   4,
		RightPad:  4,
		TopPad:    4,
		BottomPad: 6,
		Alignment: Left,
	}
}

// Measure returns the width and height of text drawn in this font, excluding
// padding
func (f Font) Measure(text string) image.Point {
	return gocv.GetTextSize(text, f.Face, f.Scale, f.Thickness)
}
