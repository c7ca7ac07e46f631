package classifier

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// InputBuffer holds the reusable Mat a backend resizes mismatched images into
type InputBuffer struct {
	size    int
	resized gocv.Mat
}

// NewInputBuffer returns an InputBuffer for a square model input of size
func NewInputBuffer(size int) *InputBuffer {
	return &InputBuffer{
		size:    size,
		resized: gocv.NewMat(),
	}
}

// Prepare returns img unchanged when it already matches the model input,
// otherwise a resized copy held by the buffer.  The returned Mat must not be
// closed by the caller.
func (b *InputBuffer) Prepare(img gocv.Mat) (gocv.Mat, error) {

	if img.Empty() {
		return img, fmt.Errorf("input image is empty")
	}

	if img.Channels() != 3 {
		return img, fmt.Errorf("input image has %d channels, expected 3", img.Channels())
	}

	if img.Cols() == b.size && img.Rows() == b.size {
		return img, nil
	}

	gocv.Resize(img, &b.resized, image.Pt(b.size, b.size), 0, 0,
		gocv.InterpolationArea)

	return b.resized, nil
}

// Close frees the buffer
func (b *InputBuffer) Close() error {
	return b.resized.Close()
}
