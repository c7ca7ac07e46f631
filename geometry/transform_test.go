package geometry

import (
	"errors"
	"math"
	"testing"
)

// almostEqual checks if two float64 values are equal within a given tolerance
func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func rectsEqual(a, b Rect, tolerance float64) bool {
	return almostEqual(a.Left, b.Left, tolerance) &&
		almostEqual(a.Top, b.Top, tolerance) &&
		almostEqual(a.Right, b.Right, tolerance) &&
		almostEqual(a.Bottom, b.Bottom, tolerance)
}

func TestComputeLetterbox(t *testing.T) {

	tests := []struct {
		srcWidth      int
		srcHeight     int
		dstWidth      int
		dstHeight     int
		expectedXPad  float64
		expectedYPad  float64
		expectedScale float64
	}{
		{1280, 720, 640, 640, 0, 140, 0.50},
		{800, 1000, 640, 640, 64, 0, 0.64},
		{800, 800, 640, 640, 0, 0, 0.8},
		{640, 480, 192, 192, 0, 24, 0.3},
	}

	for _, tc := range tests {
		tr, err := Compute(tc.srcWidth, tc.srcHeight, tc.dstWidth, tc.dstHeight, 0, true)

		if err != nil {
			t.Fatalf("src (%d, %d): unexpected error: %v", tc.srcWidth, tc.srcHeight, err)
		}

		origin := tr.Apply(Point{0, 0})

		if !almostEqual(origin.X, tc.expectedXPad, 1e-9) || !almostEqual(origin.Y, tc.expectedYPad, 1e-9) {
			t.Errorf("src (%d, %d): padding wrong, expected x=%f, y=%f, got x=%f, y=%f",
				tc.srcWidth, tc.srcHeight, tc.expectedXPad, tc.expectedYPad, origin.X, origin.Y)
		}

		if !almostEqual(tr.ScaleX(), tc.expectedScale, 1e-9) {
			t.Errorf("src (%d, %d): scale incorrect, expected %f, got %f",
				tc.srcWidth, tc.srcHeight, tc.expectedScale, tr.ScaleX())
		}
	}
}

func TestMaintainAspectUsesSingleScale(t *testing.T) {

	sizes := [][4]int{
		{640, 480, 192, 192},
		{1920, 1080, 300, 300},
		{120, 40, 256, 256},
		{33, 701, 256, 85},
	}

	for _, rot := range []int{0, 90, 180, 270, -90} {
		for _, s := range sizes {
			tr, err := Compute(s[0], s[1], s[2], s[3], rot, true)

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !almostEqual(tr.ScaleX(), tr.ScaleY(), 1e-9) {
				t.Errorf("size %v rotation %d: width scale %f != height scale %f",
					s, rot, tr.ScaleX(), tr.ScaleY())
			}
		}
	}
}

func TestIndependentAxes(t *testing.T) {

	tr, err := Compute(120, 40, 256, 85, 0, false)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := tr.MapRect(NewRect(0, 0, 120, 40))
	want := Rect{0, 0, 256, 85}

	if !rectsEqual(got, want, 1e-9) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestRoundTrip(t *testing.T) {

	rects := []Rect{
		{10, 20, 30, 40},
		{0, 0, 640, 480},
		{100.5, 7.25, 101, 300},
		{-5, -5, 5, 5},
	}

	for _, rot := range []int{0, 90, 180, 270} {
		for _, aspect := range []bool{true, false} {
			tr, err := Compute(640, 480, 192, 192, rot, aspect)

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			inv, err := tr.Invert()

			if err != nil {
				t.Fatalf("rotation %d: unexpected invert error: %v", rot, err)
			}

			for _, r := range rects {
				got := inv.MapRect(tr.MapRect(r))

				if !rectsEqual(got, r, 1e-6) {
					t.Errorf("rotation %d aspect %v: expected %v, got %v", rot, aspect, r, got)
				}
			}

			twice, err := inv.Invert()

			if err != nil {
				t.Fatalf("unexpected error inverting inverse: %v", err)
			}

			if !twice.Equal(tr, 1e-9) {
				t.Errorf("rotation %d: invert twice gave %s, expected %s", rot, twice, tr)
			}
		}
	}
}

func TestRotationSwapsAxes(t *testing.T) {

	tr, err := Compute(640, 480, 480, 640, 90, false)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := tr.MapRect(NewRect(0, 0, 640, 480))
	want := Rect{0, 0, 480, 640}

	if !rectsEqual(got, want, 1e-9) {
		t.Errorf("expected %v, got %v", want, got)
	}

	// top left corner of the source ends up at the top right after a
	// clockwise quarter turn
	p := tr.Apply(Point{0, 0})

	if !almostEqual(p.X, 480, 1e-9) || !almostEqual(p.Y, 0, 1e-9) {
		t.Errorf("expected (480, 0), got (%f, %f)", p.X, p.Y)
	}
}

func TestInvertSingular(t *testing.T) {

	_, err := Scale(0, 2).Invert()

	if !errors.Is(err, ErrSingular) {
		t.Errorf("expected ErrSingular, got %v", err)
	}
}

func TestComputeErrors(t *testing.T) {

	_, err := Compute(0, 10, 256, 256, 0, false)

	if !errors.Is(err, ErrDegenerate) {
		t.Errorf("expected ErrDegenerate, got %v", err)
	}

	_, err = Compute(100, 10, 256, 0, 0, false)

	if !errors.Is(err, ErrDegenerate) {
		t.Errorf("expected ErrDegenerate for zero destination, got %v", err)
	}

	_, err = Compute(100, 10, 256, 256, 45, false)

	if !errors.Is(err, ErrRotation) {
		t.Errorf("expected ErrRotation, got %v", err)
	}
}

func TestRectIoU(t *testing.T) {

	tests := []struct {
		a, b Rect
		iou  float64
	}{
		{Rect{0, 0, 10, 10}, Rect{0, 0, 10, 10}, 1},
		{Rect{0, 0, 10, 10}, Rect{5, 0, 15, 10}, 50.0 / 150.0},
		{Rect{0, 0, 10, 10}, Rect{20, 20, 30, 30}, 0},
		{Rect{0, 0, 10, 10}, Rect{10, 0, 20, 10}, 0},
	}

	for _, tc := range tests {
		if got := tc.a.IoU(tc.b); !almostEqual(got, tc.iou, 1e-9) {
			t.Errorf("IoU(%v, %v) expected %f, got %f", tc.a, tc.b, tc.iou, got)
		}
	}
}

func TestRectXyahRoundTrip(t *testing.T) {

	r := Rect{10, 20, 50, 40}
	got := RectFromXyah(r.Xyah())

	if !rectsEqual(got, r, 1e-9) {
		t.Errorf("expected %v, got %v", r, got)
	}
}
