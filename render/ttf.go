package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"

	"gocv.io/x/gocv"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// TTFText renders text with a TrueType font so plate characters outside the
// Hershey font's Latin range can be drawn
type TTFText struct {
	face  font.Face
	color color.RGBA
}

// LoadTTF parses the TTF font file and creates a face of the given point size
func LoadTTF(path string, size float64, clr color.RGBA) (*TTFText, error) {

	fontBytes, err := os.ReadFile(path)

	if err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}

	f, err := opentype.Parse(fontBytes)

	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to create type face: %w", err)
	}

	return &TTFText{face: face, color: clr}, nil
}

// Measure returns the width and height in pixels that text occupies
func (t *TTFText) Measure(text string) image.Point {
	adv := font.MeasureString(t.face, text)
	m := t.face.Metrics()
	return image.Pt(adv.Ceil(), (m.Ascent + m.Descent).Ceil())
}

// Put draws text with its baseline starting at x,y onto a 3 channel BGR image.
// Only the text's bounding area is rasterized and blended.
func (t *TTFText) Put(img *gocv.Mat, text string, x, y int) error {

	if img.Empty() || img.Channels() != 3 {
		return fmt.Errorf("text can only be drawn on a 3 channel image")
	}

	size := t.Measure(text)
	ascent := t.face.Metrics().Ascent.Ceil()

	area := image.Rect(x, y-ascent, x+size.X, y-ascent+size.Y).
		Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))

	if area.Empty() {
		return nil
	}

	rgba := image.NewRGBA(image.Rect(0, 0, area.Dx(), area.Dy()))
	draw.Draw(rgba, rgba.Bounds(), image.Transparent, image.Point{}, draw.Src)

	dr := &font.Drawer{
		Dst:  rgba,
		Src:  image.NewUniform(t.color),
		Face: t.face,
		Dot: fixed.Point26_6{
			X: fixed.I(x - area.Min.X),
			Y: fixed.I(y - area.Min.Y),
		},
	}
	dr.DrawString(text)

	layer, err := gocv.NewMatFromBytes(area.Dy(), area.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)

	if err != nil {
		return fmt.Errorf("error creating Mat from RGBA: %w", err)
	}

	defer layer.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()

	gocv.CvtColor(layer, &bgr, gocv.ColorRGBAToBGR)

	region := img.Region(area)
	defer region.Close()

	gocv.AddWeighted(region, 1.0, bgr, 1.0, 0, &region)

	return nil
}

// Close releases the font face
func (t *TTFText) Close() error {
	return t.face.Close()
}
