package tracker

import (
	"sync"
	"testing"

	"github.com/swdee/go-alpr/classifier"
	"github.com/swdee/go-alpr/geometry"
	"go.uber.org/zap/zaptest"
	"gocv.io/x/gocv"
)

func det(x, y, w, h float64, label string, conf float32) classifier.Detection {
	return classifier.Detection{
		Location:   geometry.NewRect(x, y, w, h),
		Label:      label,
		Confidence: conf,
	}
}

func replaceConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.Smoothing = SmoothReplace
	cfg.Logger = zaptest.NewLogger(t).Sugar()
	return cfg
}

func TestTrackerCreatesAndMatches(t *testing.T) {

	tr := New(replaceConfig(t))

	tr.Update([]classifier.Detection{
		det(10, 10, 100, 40, "plate", 0.9),
		det(300, 200, 80, 30, "plate", 0.8),
	}, 1)

	snap := tr.Snapshot()

	if len(snap.Objects) != 2 || snap.Created != 2 {
		t.Fatalf("expected 2 created tracks, got %d (created %d)", len(snap.Objects), snap.Created)
	}

	// move the first box slightly, second is unchanged
	tr.Update([]classifier.Detection{
		det(302, 200, 80, 30, "plate", 0.85),
		det(14, 12, 100, 40, "plate", 0.95),
	}, 2)

	snap = tr.Snapshot()

	if len(snap.Objects) != 2 || snap.Matched != 2 || snap.Created != 0 {
		t.Fatalf("expected both tracks matched, got %+v", snap)
	}

	if snap.Objects[0].ID != 1 || snap.Objects[0].Location.Left != 14 {
		t.Errorf("expected track 1 at left 14, got %+v", snap.Objects[0])
	}

	if snap.Objects[1].ID != 2 || snap.Objects[1].Hits != 2 || snap.Objects[1].Age != 2 {
		t.Errorf("unexpected second track %+v", snap.Objects[1])
	}
}

func TestTrackerRemovesAfterMaxMissed(t *testing.T) {

	tests := []struct {
		maxMissed int
	}{
		{0}, {1}, {3}, {5},
	}

	for _, tc := range tests {
		cfg := replaceConfig(t)
		cfg.MaxMissed = tc.maxMissed
		tr := New(cfg)

		tr.Update([]classifier.Detection{det(10, 10, 50, 20, "plate", 0.9)}, 0)

		for i := 1; i <= tc.maxMissed; i++ {
			tr.Update(nil, int64(i))

			snap := tr.Snapshot()

			if len(snap.Objects) != 1 || snap.Objects[0].Missed != i {
				t.Fatalf("maxMissed %d: expected track kept after %d misses, got %+v",
					tc.maxMissed, i, snap.Objects)
			}
		}

		tr.Update(nil, int64(tc.maxMissed+1))

		snap := tr.Snapshot()

		if len(snap.Objects) != 0 || snap.Removed != 1 {
			t.Errorf("maxMissed %d: expected removal on miss %d, got %+v",
				tc.maxMissed, tc.maxMissed+1, snap)
		}
	}
}

func TestTrackerMissResetOnMatch(t *testing.T) {

	tr := New(replaceConfig(t))

	tr.Update([]classifier.Detection{det(10, 10, 50, 20, "plate", 0.9)}, 0)
	tr.Update(nil, 1)
	tr.Update(nil, 2)
	tr.Update([]classifier.Detection{det(11, 10, 50, 20, "plate", 0.9)}, 3)

	snap := tr.Snapshot()

	if len(snap.Objects) != 1 || snap.Objects[0].Missed != 0 || snap.Objects[0].LastSeen != 3 {
		t.Errorf("expected matched track with missed reset, got %+v", snap.Objects)
	}
}

func TestTrackerBestOverlapWins(t *testing.T) {

	tr := New(replaceConfig(t))

	tr.Update([]classifier.Detection{det(0, 0, 100, 100, "A", 0.9)}, 0)

	// both overlap the track, the one with higher IoU wins and the other
	// starts a new track
	tr.Update([]classifier.Detection{
		det(40, 0, 100, 100, "A", 0.9),
		det(5, 0, 100, 100, "A", 0.9),
	}, 1)

	snap := tr.Snapshot()

	if len(snap.Objects) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(snap.Objects))
	}

	if snap.Objects[0].ID != 1 || snap.Objects[0].Location.Left != 5 {
		t.Errorf("expected track 1 matched to best overlap, got %+v", snap.Objects[0])
	}

	if snap.Objects[1].ID != 2 || snap.Objects[1].Location.Left != 40 {
		t.Errorf("expected new track 2 at left 40, got %+v", snap.Objects[1])
	}
}

func TestTrackerOptimalAssignment(t *testing.T) {

	cfg := replaceConfig(t)
	cfg.MatchThreshold = 0.7
	tr := New(cfg)

	tr.Update([]classifier.Detection{
		det(20, 0, 100, 100, "A", 0.9),
		det(35, 0, 100, 100, "B", 0.9),
	}, 0)

	// taking the best single overlap for track 1 (left 25, IoU 0.90) would
	// leave track 2 with only left 12 (IoU 0.63), matching both needs track 1
	// to take left 12 (IoU 0.85) and track 2 left 25 (IoU 0.82)
	tr.Update([]classifier.Detection{
		det(25, 0, 100, 100, "A", 0.9),
		det(12, 0, 100, 100, "B", 0.9),
	}, 1)

	snap := tr.Snapshot()

	if snap.Matched != 2 || snap.Created != 0 || len(snap.Objects) != 2 {
		t.Fatalf("expected both tracks matched, got matched %d created %d tracks %d",
			snap.Matched, snap.Created, len(snap.Objects))
	}

	if snap.Objects[0].Location.Left != 12 || snap.Objects[1].Location.Left != 25 {
		t.Errorf("unexpected assignment %+v", snap.Objects)
	}
}

func TestTrackerBelowThresholdNotMatched(t *testing.T) {

	tr := New(replaceConfig(t))

	tr.Update([]classifier.Detection{det(0, 0, 100, 100, "A", 0.9)}, 0)
	// IoU is 10/190
	tr.Update([]classifier.Detection{det(90, 0, 100, 100, "A", 0.9)}, 1)

	snap := tr.Snapshot()

	if len(snap.Objects) != 2 || snap.Matched != 0 || snap.Objects[0].Missed != 1 {
		t.Errorf("expected no match, got %+v", snap)
	}
}

func TestTrackerLabelFollowsConfidence(t *testing.T) {

	tr := New(replaceConfig(t))

	tr.Update([]classifier.Detection{det(0, 0, 100, 40, "B", 0.8)}, 0)
	tr.Update([]classifier.Detection{det(0, 0, 100, 40, "8", 0.7)}, 1)

	if obj := tr.Snapshot().Objects[0]; obj.Label != "B" || obj.Confidence != 0.8 {
		t.Errorf("expected label B kept, got %s %.2f", obj.Label, obj.Confidence)
	}

	tr.Update([]classifier.Detection{det(0, 0, 100, 40, "8", 0.9)}, 2)

	if obj := tr.Snapshot().Objects[0]; obj.Label != "8" || obj.Confidence != 0.9 {
		t.Errorf("expected label 8 taken over, got %s %.2f", obj.Label, obj.Confidence)
	}
}

func TestTrackerMinSize(t *testing.T) {

	cfg := replaceConfig(t)
	cfg.MinSize = 10
	tr := New(cfg)

	tr.Update([]classifier.Detection{
		det(0, 0, 5, 40, "A", 0.9),
		det(0, 0, 0, 0, "A", 0.9),
		det(50, 50, 20, 20, "A", 0.9),
	}, 0)

	if n := len(tr.Snapshot().Objects); n != 1 {
		t.Errorf("expected 1 track, got %d", n)
	}
}

func TestTrackerKalmanSmoothing(t *testing.T) {

	cfg := DefaultConfig()
	cfg.Logger = zaptest.NewLogger(t).Sugar()
	tr := New(cfg)

	tr.Update([]classifier.Detection{det(100, 100, 80, 40, "plate", 0.9)}, 0)

	// a jump in position is only partly followed
	tr.Update([]classifier.Detection{det(110, 100, 80, 40, "plate", 0.9)}, 1)

	obj := tr.Snapshot().Objects[0]

	if obj.Location.Left <= 100 || obj.Location.Left >= 110 {
		t.Errorf("expected smoothed left between 100 and 110, got %f", obj.Location.Left)
	}

	if obj.Hits != 2 {
		t.Errorf("expected 2 hits, got %d", obj.Hits)
	}
}

func TestTrackerReset(t *testing.T) {

	tr := New(replaceConfig(t))

	tr.Update([]classifier.Detection{det(0, 0, 100, 40, "A", 0.9)}, 0)
	tr.Reset()

	if n := len(tr.Snapshot().Objects); n != 0 {
		t.Errorf("expected no tracks after reset, got %d", n)
	}

	tr.Update([]classifier.Detection{det(0, 0, 100, 40, "A", 0.9)}, 1)

	// IDs are not reused
	if id := tr.Snapshot().Objects[0].ID; id != 2 {
		t.Errorf("expected track ID 2, got %d", id)
	}
}

func TestTrackerTrail(t *testing.T) {

	cfg := replaceConfig(t)
	cfg.TrailLength = 3
	tr := New(cfg)

	for i := 0; i < 5; i++ {
		tr.Update([]classifier.Detection{det(float64(i*2), 0, 100, 40, "A", 0.9)}, int64(i))
	}

	points := tr.Snapshot().Trails[1]

	if len(points) != 3 {
		t.Fatalf("expected 3 trail points, got %d", len(points))
	}

	if points[0].X != 54 || points[2].X != 58 {
		t.Errorf("unexpected trail %v", points)
	}
}

func TestTrackerConcurrentDraw(t *testing.T) {

	tr := New(replaceConfig(t))
	tr.SetFrameConfiguration(640, 480, 0)

	canvas := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer canvas.Close()

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		for i := 0; i < 50; i++ {
			tr.Update([]classifier.Detection{det(float64(i), 10, 100, 40, "A", 0.9)}, int64(i))
		}
	}()

	for i := 0; i < 50; i++ {
		tr.DrawDebug(&canvas)
	}

	wg.Wait()

	if n := len(tr.Snapshot().Objects); n != 1 {
		t.Errorf("expected 1 track, got %d", n)
	}
}

func TestNewConfigDefaults(t *testing.T) {

	tr := New(Config{MatchThreshold: 0, MaxMissed: 0, TrailLength: 0})

	if tr.cfg.MatchThreshold != DefaultConfig().MatchThreshold {
		t.Errorf("expected default match threshold, got %f", tr.cfg.MatchThreshold)
	}

	if tr.cfg.MaxMissed != 0 || tr.cfg.TrailLength != 0 {
		t.Errorf("expected zero max missed and trail length kept, got %d %d",
			tr.cfg.MaxMissed, tr.cfg.TrailLength)
	}

	tr = New(Config{MaxMissed: -1})

	if tr.cfg.MaxMissed != DefaultConfig().MaxMissed {
		t.Errorf("expected default max missed, got %d", tr.cfg.MaxMissed)
	}
}

func TestSetFrameConfigurationIgnoresEmptySize(t *testing.T) {

	tr := New(replaceConfig(t))
	tr.SetFrameConfiguration(0, 0, 0)

	if tr.frame.Load() != nil {
		t.Fatalf("expected empty frame configuration to be ignored")
	}

	tr.SetFrameConfiguration(640, 480, 90)
	tr.SetFrameConfiguration(0, 480, 0)

	fc := tr.frame.Load()

	if fc == nil || fc.width != 640 || fc.height != 480 || fc.orientation != 90 {
		t.Errorf("expected previous frame configuration kept, got %+v", fc)
	}

	canvas := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer canvas.Close()

	tr.Update([]classifier.Detection{det(10, 10, 100, 40, "A", 0.9)}, 0)
	tr.Draw(&canvas)
}
