package preprocess

import (
	"image"
	"image/color"

	"github.com/swdee/go-alpr/geometry"
	"gocv.io/x/gocv"
)

// Warper applies a geometry.Transform to image pixels, producing a fixed
// size output such as a network input crop
type Warper struct {
	// transform maps source pixels to destination pixels
	transform geometry.Transform
	// inverse maps destination pixels back to the source
	inverse geometry.Transform
	// destWidth and destHeight are the dimensions of the warped output
	destWidth  int
	destHeight int
	// matrix is the 2x3 transform handed to OpenCV
	matrix gocv.Mat
	// pad is the color used outside the mapped source area
	pad color.RGBA
}

// NewWarper returns a Warper producing destWidth x destHeight output.  An
// error is returned if the transform can not be inverted.
func NewWarper(t geometry.Transform, destWidth, destHeight int,
	pad color.RGBA) (*Warper, error) {

	inv, err := t.Invert()

	if err != nil {
		return nil, err
	}

	w := &Warper{
		transform:  t,
		inverse:    inv,
		destWidth:  destWidth,
		destHeight: destHeight,
		matrix:     gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F),
		pad:        pad,
	}

	for i, v := range t.Coefficients() {
		w.matrix.SetDoubleAt(i/3, i%3, v)
	}

	return w, nil
}

// Warp renders src through the transform into dest, which is (re)allocated
// at the destination size
func (w *Warper) Warp(src gocv.Mat, dest *gocv.Mat) {
	gocv.WarpAffineWithParams(src, dest, w.matrix,
		image.Pt(w.destWidth, w.destHeight), gocv.InterpolationLinear,
		gocv.BorderConstant, w.pad)
}

// Transform returns the source to destination transform
func (w *Warper) Transform() geometry.Transform {
	return w.transform
}

// Inverse returns the destination to source transform
func (w *Warper) Inverse() geometry.Transform {
	return w.inverse
}

// DestSize returns the dimensions of the warped output
func (w *Warper) DestSize() image.Point {
	return image.Pt(w.destWidth, w.destHeight)
}

// Close frees the transform matrix
func (w *Warper) Close() error {
	return w.matrix.Close()
}
