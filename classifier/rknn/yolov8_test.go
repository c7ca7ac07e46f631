package rknn

import (
	"math"
	"testing"
)

// almostEqual checks if two float32 values are equal within a given tolerance
func almostEqual(a, b, tolerance float32) bool {
	return math.Abs(float64(a-b)) <= float64(tolerance)
}

func TestQuantizationRoundTrip(t *testing.T) {

	tests := []struct {
		value float32
		zp    int32
		scale float32
	}{
		{0.5, -128, 0.003921},
		{0.25, -10, 0.01},
		{0, 0, 0.1},
	}

	for _, tc := range tests {
		q := qntF32ToAffine(tc.value, tc.zp, tc.scale)
		got := deqntAffineToF32(q, tc.zp, tc.scale)

		if !almostEqual(got, tc.value, tc.scale) {
			t.Errorf("value %f: expected within %f, got %f", tc.value, tc.scale, got)
		}
	}

	if qntF32ToAffine(100, 0, 0.1) != 127 {
		t.Errorf("expected saturation at 127")
	}

	if qntF32ToAffine(-100, 0, 0.1) != -128 {
		t.Errorf("expected saturation at -128")
	}
}

func TestComputeDFL(t *testing.T) {

	dflLen := 4
	tensor := make([]float32, 4*dflLen)

	// side 0 peaks sharply at bin 2, the other sides are uniform
	tensor[2] = 50

	box := computeDFL(tensor, dflLen)

	if !almostEqual(box[0], 2, 1e-4) {
		t.Errorf("expected side 0 distance 2, got %f", box[0])
	}

	for i := 1; i < 4; i++ {
		if !almostEqual(box[i], 1.5, 1e-4) {
			t.Errorf("expected uniform side %d distance 1.5, got %f", i, box[i])
		}
	}
}

func TestCoreMaskForThreads(t *testing.T) {

	tests := map[int]CoreMask{
		0: NPUCoreAuto,
		1: NPUCore0,
		2: NPUCore01,
		3: NPUCore012,
		8: NPUCore012,
	}

	for n, want := range tests {
		if got := coreMaskForThreads(n); got != want {
			t.Errorf("threads %d: expected mask %d, got %d", n, want, got)
		}
	}
}

func TestCoresFor(t *testing.T) {

	tests := []struct {
		platform string
		ct       CoreType
		want     []int
	}{
		{"rk3588", FastCores, []int{4, 5, 6, 7}},
		{" RK3582 ", FastCores, []int{4, 5}},
		{"rk3582", AllCores, []int{0, 1, 2, 3, 4, 5}},
		{"rk3566", AllCores, []int{0, 1, 2, 3}},
	}

	for _, tt := range tests {
		got, err := CoresFor(tt.platform, tt.ct)

		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.platform, err)
			continue
		}

		if len(got) != len(tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.platform, tt.want, got)
			continue
		}

		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s: expected %v, got %v", tt.platform, tt.want, got)
				break
			}
		}
	}

	if _, err := CoresFor("rk1234", FastCores); err == nil {
		t.Errorf("expected error for unknown platform")
	}
}
