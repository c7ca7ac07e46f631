package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Box is a rectangle to outline with an optional caption
type Box struct {
	Rect    image.Rectangle
	Caption string
	// ColorIndex selects the palette color, usually the track ID
	ColorIndex int
}

// boxLabel holds a precalculated caption so all captions can be painted
// after the outlines
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// Boxes outlines each box in its palette color and paints its caption above
// the top edge
func Boxes(img *gocv.Mat, boxes []Box, font Font, lineThickness int) {
	drawBoxes(img, boxes, font, lineThickness, nil)
}

// BoxesWithColor outlines every box in the same color
func BoxesWithColor(img *gocv.Mat, boxes []Box, font Font, lineThickness int,
	clr color.RGBA) {
	drawBoxes(img, boxes, font, lineThickness, &clr)
}

func drawBoxes(img *gocv.Mat, boxes []Box, font Font, lineThickness int,
	override *color.RGBA) {

	boxLabels := make([]boxLabel, 0, len(boxes))

	for _, box := range boxes {

		useClr := ColorFor(box.ColorIndex)

		if override != nil {
			useClr = *override
		}

		gocv.Rectangle(img, box.Rect, useClr, lineThickness)

		if box.Caption == "" {
			continue
		}

		boxLabels = append(boxLabels, placeLabel(box.Rect, box.Caption, useClr,
			font, lineThickness))
	}

	// captions are the top most layer so overlapping outlines don't cut
	// through them
	for _, l := range boxLabels {
		gocv.Rectangle(img, l.rect, l.clr, -1)
		gocv.PutTextWithParams(img, l.text, l.textPos, font.Face, font.Scale,
			font.Color, font.Thickness, font.LineType, false)
	}
}

// placeLabel calculates the caption background and text position for the
// font alignment
func placeLabel(rect image.Rectangle, text string, clr color.RGBA, font Font,
	lineThickness int) boxLabel {

	textSize := font.Measure(text)

	var centerX int

	switch font.Alignment {
	case Center:
		centerX = (rect.Min.X + rect.Max.X) / 2

	case Right:
		centerX = rect.Max.X - (textSize.X / 2) - font.RightPad + (lineThickness / 2)

	case Left:
		fallthrough
	default:
		centerX = rect.Min.X + (textSize.X / 2) + font.LeftPad - (lineThickness / 2)
	}

	top := rect.Min.Y

	// keep the caption inside the image when the box touches the top edge
	if top-textSize.Y-font.TopPad-font.BottomPad < 0 {
		top = rect.Min.Y + textSize.Y + font.TopPad + font.BottomPad
	}

	return boxLabel{
		rect: image.Rect(centerX-textSize.X/2-font.LeftPad,
			top-textSize.Y-font.TopPad-font.BottomPad,
			centerX+textSize.X/2+font.RightPad, top),
		clr:     clr,
		text:    text,
		textPos: image.Pt(centerX-textSize.X/2, top-font.BottomPad),
	}
}

// StatusLine writes a single line of text with a dark background at the
// bottom left of the image
func StatusLine(img *gocv.Mat, text string, font Font) {

	textSize := font.Measure(text)
	bottom := img.Rows()

	bg := image.Rect(0, bottom-textSize.Y-font.TopPad-font.BottomPad,
		textSize.X+font.LeftPad+font.RightPad, bottom)

	gocv.Rectangle(img, bg, Black, -1)
	gocv.PutTextWithParams(img, text, image.Pt(font.LeftPad, bottom-font.BottomPad),
		font.Face, font.Scale, font.Color, font.Thickness, font.LineType, false)
}

// HeaderLine writes a single line of text with a dark background at the top
// left of the image
func HeaderLine(img *gocv.Mat, text string, font Font) {

	textSize := font.Measure(text)
	height := textSize.Y + font.TopPad + font.BottomPad

	gocv.Rectangle(img, image.Rect(0, 0, textSize.X+font.LeftPad+font.RightPad, height),
		Black, -1)
	gocv.PutTextWithParams(img, text, image.Pt(font.LeftPad, height-font.BottomPad),
		font.Face, font.Scale, font.Color, font.Thickness, font.LineType, false)
}
