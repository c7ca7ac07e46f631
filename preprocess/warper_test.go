package preprocess

import (
	"errors"
	"image/color"
	"testing"

	"github.com/swdee/go-alpr/geometry"
	"gocv.io/x/gocv"
)

var (
	black = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

func TestLetterBoxWarp(t *testing.T) {

	tests := []struct {
		srcWidth     int
		srcHeight    int
		resizeWidth  int
		resizeHeight int
		expectedXPad int
		expectedYPad int
	}{
		{1280, 720, 640, 640, 0, 140},
		{800, 1000, 640, 640, 64, 0},
		{800, 800, 640, 640, 0, 0},
	}

	for _, tc := range tests {
		img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0),
			tc.srcHeight, tc.srcWidth, gocv.MatTypeCV8UC3)

		tr, err := geometry.Compute(tc.srcWidth, tc.srcHeight, tc.resizeWidth,
			tc.resizeHeight, 0, true)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		warper, err := NewWarper(tr, tc.resizeWidth, tc.resizeHeight, black)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		resizedImg := gocv.NewMat()
		warper.Warp(img, &resizedImg)

		if resizedImg.Cols() != tc.resizeWidth || resizedImg.Rows() != tc.resizeHeight {
			t.Errorf("src (%d, %d): expected %dx%d output, got %dx%d", tc.srcWidth, tc.srcHeight,
				tc.resizeWidth, tc.resizeHeight, resizedImg.Cols(), resizedImg.Rows())
		}

		// centre of the output is always inside the source image
		if v := resizedImg.GetVecbAt(tc.resizeHeight/2, tc.resizeWidth/2)[0]; v != 255 {
			t.Errorf("src (%d, %d): expected image pixel at centre, got %d",
				tc.srcWidth, tc.srcHeight, v)
		}

		// padding is black
		if tc.expectedYPad > 1 {
			if v := resizedImg.GetVecbAt(tc.expectedYPad/2, tc.resizeWidth/2)[0]; v != 0 {
				t.Errorf("src (%d, %d): expected top padding, got %d", tc.srcWidth, tc.srcHeight, v)
			}
		}

		if tc.expectedXPad > 1 {
			if v := resizedImg.GetVecbAt(tc.resizeHeight/2, tc.expectedXPad/2)[0]; v != 0 {
				t.Errorf("src (%d, %d): expected left padding, got %d", tc.srcWidth, tc.srcHeight, v)
			}
		}

		img.Close()
		resizedImg.Close()
		warper.Close()
	}
}

func TestWarperSingular(t *testing.T) {

	_, err := NewWarper(geometry.Scale(0, 1), 10, 10, white)

	if !errors.Is(err, geometry.ErrSingular) {
		t.Errorf("expected ErrSingular, got %v", err)
	}
}
