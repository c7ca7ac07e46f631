package imagefilter

import (
	"image"
	"image/color"
	"testing"

	"gocv.io/x/gocv"
)

func TestNormalize(t *testing.T) {

	f, err := New(DefaultOptions())

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defer f.Close()

	// white plate with a dark character block in the middle
	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 85, 256,
		gocv.MatTypeCV8UC3)
	defer src.Close()

	gocv.Rectangle(&src, image.Rect(100, 20, 140, 65), color.RGBA{A: 255}, -1)

	dst := gocv.NewMat()
	defer dst.Close()

	err = f.Normalize(src, &dst)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dst.Cols() != 256 || dst.Rows() != 85 || dst.Channels() != 3 {
		t.Fatalf("unexpected output %dx%d with %d channels", dst.Cols(), dst.Rows(), dst.Channels())
	}

	// inverted binary: the dark character becomes white, the plate black
	if v := dst.GetVecbAt(42, 120)[0]; v != 255 {
		t.Errorf("expected character pixel 255, got %d", v)
	}

	if v := dst.GetVecbAt(5, 5)[0]; v != 0 {
		t.Errorf("expected background pixel 0, got %d", v)
	}
}

func TestNormalizeWithoutThreshold(t *testing.T) {

	opts := DefaultOptions()
	opts.Binarize = false

	f, err := New(opts)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defer f.Close()

	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 85, 256,
		gocv.MatTypeCV8UC3)
	defer src.Close()

	gocv.Rectangle(&src, image.Rect(100, 20, 140, 65), color.RGBA{A: 255}, -1)

	dst := gocv.NewMat()
	defer dst.Close()

	err = f.Normalize(src, &dst)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dst.Channels() != 3 {
		t.Fatalf("expected 3 channels, got %d", dst.Channels())
	}

	// blurred grayscale keeps the original polarity
	if v := dst.GetVecbAt(42, 120)[0]; v != 0 {
		t.Errorf("expected character pixel 0, got %d", v)
	}

	if v := dst.GetVecbAt(5, 5)[0]; v != 255 {
		t.Errorf("expected background pixel 255, got %d", v)
	}

	// the edge of the character is smoothed rather than binary
	if v := dst.GetVecbAt(42, 100)[0]; v == 0 || v == 255 {
		t.Errorf("expected blurred edge pixel, got %d", v)
	}
}

func TestNormalizeEmpty(t *testing.T) {

	f, err := New(DefaultOptions())

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defer f.Close()

	src := gocv.NewMat()
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()

	if err := f.Normalize(src, &dst); err == nil {
		t.Errorf("expected error for empty input")
	}
}

func TestOptionsValidate(t *testing.T) {

	tests := []struct {
		name  string
		opts  func(o *Options)
		valid bool
	}{
		{"defaults", func(o *Options) {}, true},
		{"even kernel", func(o *Options) { o.BlurKernel = 4 }, false},
		{"even block", func(o *Options) { o.BlockSize = 100 }, false},
		{"even block without threshold", func(o *Options) { o.BlockSize = 100; o.Binarize = false }, true},
	}

	for _, tc := range tests {
		o := DefaultOptions()
		tc.opts(&o)

		err := o.Validate()

		if (err == nil) != tc.valid {
			t.Errorf("%s: expected valid=%v, got error %v", tc.name, tc.valid, err)
		}
	}
}
