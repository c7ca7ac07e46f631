package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// TrailStyle defines the parameters used for rendering the trail style
type TrailStyle struct {
	// LineSame defines if the color of the trail line should be the
	// same color as that of the bounding box.  If set to false then use
	// the color specified at LineColor
	LineSame      bool
	LineColor     color.RGBA
	LineThickness int
	// CircleSame defines if the color of the midpoint circle should be the
	// same color as that of the bounding box.  If set to false then use
	// the color specified at CircleColor
	CircleSame   bool
	CircleColor  color.RGBA
	CircleRadius int
}

// DefaultTrailStyle returns default trail style settings
func DefaultTrailStyle() TrailStyle {
	return TrailStyle{
		LineSame:      false,
		LineColor:     Yellow,
		LineThickness: 1,
		CircleSame:    true,
		CircleColor:   Pink,
		CircleRadius:  3,
	}
}

// Trail draws the centre point history of one tracked object, oldest point
// first, with a circle on the most recent point
func Trail(img *gocv.Mat, points []image.Point, colorIndex int, style TrailStyle) {

	if len(points) < 2 {
		return
	}

	lineClr := ColorFor(colorIndex)
	circleClr := lineClr

	if !style.LineSame {
		lineClr = style.LineColor
	}

	if !style.CircleSame {
		circleClr = style.CircleColor
	}

	for i := 1; i < len(points); i++ {
		gocv.Line(img, points[i-1], points[i], lineClr, style.LineThickness)
	}

	gocv.Circle(img, points[len(points)-1], style.CircleRadius, circleClr, -1)
}
