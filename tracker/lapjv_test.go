package tracker

import (
	"testing"

	"github.com/swdee/go-alpr/classifier"
	"github.com/swdee/go-alpr/geometry"
)

func TestSolveLAP(t *testing.T) {

	tests := []struct {
		name  string
		cost  [][]float64
		wantX []int
		wantY []int
	}{
		{
			name: "diagonal optimum",
			cost: [][]float64{
				{4, 1, 3, 2},
				{2, 0, 5, 3},
				{3, 2, 2, 3},
				{2, 3, 3, 2},
			},
			wantX: []int{3, 1, 2, 0},
			wantY: []int{3, 1, 2, 0},
		},
		{
			name: "contended column",
			cost: [][]float64{
				{10, 19, 8, 15},
				{10, 18, 7, 17},
				{13, 16, 9, 14},
				{12, 19, 8, 18},
			},
			wantX: []int{3, 0, 1, 2},
			wantY: []int{1, 2, 3, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {

			x, y, err := solveLAP(tt.cost)

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			for i := range tt.wantX {
				if x[i] != tt.wantX[i] {
					t.Errorf("expected x[%d] = %d, got %d", i, tt.wantX[i], x[i])
				}
				if y[i] != tt.wantY[i] {
					t.Errorf("expected y[%d] = %d, got %d", i, tt.wantY[i], y[i])
				}
			}
		})
	}
}

func TestSolveLAPEmpty(t *testing.T) {

	x, y, err := solveLAP(nil)

	if err != nil || x != nil || y != nil {
		t.Errorf("expected empty solution, got %v %v %v", x, y, err)
	}
}

func TestAssociateGatesByThreshold(t *testing.T) {

	tracks := []*track{
		{obj: TrackedObject{Location: geometry.NewRect(0, 0, 100, 100)}},
		{obj: TrackedObject{Location: geometry.NewRect(500, 500, 50, 50)}},
	}

	dets := []classifier.Detection{
		det(90, 0, 100, 100, "A", 0.9),
		det(505, 500, 50, 50, "A", 0.9),
	}

	pairs, err := associate(tracks, dets, 0.3)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// the first detection overlaps track 0 with IoU 10/190 only
	if len(pairs) != 1 || pairs[0].track != 1 || pairs[0].det != 1 {
		t.Errorf("expected only track 1 paired with detection 1, got %+v", pairs)
	}
}
