// Package tracker follows detections across frames, smoothing their boxes
// and expiring objects that are no longer seen, and draws the tracked
// objects onto the display overlay.
package tracker

import (
	"image"
	"sync"

	"github.com/swdee/go-alpr/classifier"
	"github.com/swdee/go-alpr/geometry"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Smoothing selects how a matched track's box follows its detection
type Smoothing int

const (
	// SmoothKalman filters box position and size with a constant velocity
	// Kalman filter
	SmoothKalman Smoothing = iota
	// SmoothReplace uses the latest detection box as is
	SmoothReplace
)

// String returns the name of the smoothing mode
func (s Smoothing) String() string {
	switch s {
	case SmoothKalman:
		return "kalman"
	case SmoothReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Config defines the association and expiry parameters
type Config struct {
	// MatchThreshold is the minimum IoU for a detection to continue a track
	MatchThreshold float64
	// MaxMissed is the number of consecutive updates a track may go unmatched,
	// it is removed on the next miss
	MaxMissed int
	// Smoothing mode for matched tracks
	Smoothing Smoothing
	// MinSize is the minimum width and height in pixels of a detection to be
	// tracked
	MinSize float64
	// TrailLength is the number of centre points kept per track for debug
	// drawing
	TrailLength int
	// Logger receives tracker diagnostics
	Logger *zap.SugaredLogger
}

// DefaultConfig returns the tracker settings used by the detector
func DefaultConfig() Config {
	return Config{
		MatchThreshold: 0.3,
		MaxMissed:      3,
		Smoothing:      SmoothKalman,
		MinSize:        2,
		TrailLength:    30,
	}
}

// TrackedObject is the smoothed state of a followed object
type TrackedObject struct {
	// ID is unique for the lifetime of the Tracker, starting at 1
	ID int64
	// Location in frame coordinates
	Location   geometry.Rect
	Label      string
	Class      int
	Confidence float32
	// Age is the number of updates since the track was created
	Age int
	// Hits is the number of detections matched to the track
	Hits int
	// Missed is the number of consecutive updates without a match
	Missed int
	// LastSeen is the timestamp of the last matched update
	LastSeen int64
}

// Snapshot is an immutable view of the tracker after an update
type Snapshot struct {
	Timestamp int64
	Objects   []TrackedObject
	// Detections are the raw detections passed to the update
	Detections []classifier.Detection
	// Trails holds centre point history by track ID
	Trails  map[int64][]image.Point
	Matched int
	Created int
	Removed int
}

// frameConfig is the frame geometry set by SetFrameConfiguration
type frameConfig struct {
	width       int
	height      int
	orientation int
}

// track is the mutable per object state owned by the Tracker
type track struct {
	obj    TrackedObject
	kalman *KalmanState
}

// Tracker associates detections to tracked objects.  Update and Reset are
// serialized, Draw may be called concurrently with them from another
// goroutine.
type Tracker struct {
	cfg    Config
	kf     *KalmanFilter
	mu     sync.Mutex
	tracks []*track
	nextID int64
	trail  *Trail
	// snapshot is the latest published state read by Draw
	snapshot atomic.Pointer[Snapshot]
	frame    atomic.Pointer[frameConfig]
	log      *zap.SugaredLogger
}

// New returns a Tracker.  A non positive MatchThreshold or negative MaxMissed
// is replaced by its default, a MaxMissed of zero drops a track on its first
// miss and a TrailLength of zero disables trails.
func New(cfg Config) *Tracker {

	def := DefaultConfig()

	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = def.MatchThreshold
	}

	if cfg.MaxMissed < 0 {
		cfg.MaxMissed = def.MaxMissed
	}

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	t := &Tracker{
		cfg:    cfg,
		kf:     NewKalmanFilter(1.0/20, 1.0/160),
		nextID: 1,
		trail:  NewTrail(cfg.TrailLength),
		log:    cfg.Logger,
	}

	t.snapshot.Store(&Snapshot{})

	return t
}

// SetFrameConfiguration sets the frame dimensions and sensor orientation
// used to map tracked boxes onto the canvas when drawing.  A non positive
// size, such as reported by a stream before its first frame, is ignored.
func (t *Tracker) SetFrameConfiguration(width, height, orientation int) {

	if width <= 0 || height <= 0 {
		t.log.Debugw("ignoring empty frame configuration", "width", width, "height", height)
		return
	}

	t.frame.Store(&frameConfig{
		width:       width,
		height:      height,
		orientation: orientation,
	})
}

// Snapshot returns the state published by the most recent update
func (t *Tracker) Snapshot() *Snapshot {
	return t.snapshot.Load()
}

// Reset drops all tracks, trails and the published snapshot
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tracks = nil
	t.trail.Reset()
	t.snapshot.Store(&Snapshot{})
}

// Update associates the detections of one processed frame with the tracked
// objects.  Detections matched to an existing track update it, unmatched
// detections start new tracks and tracks unmatched for more than MaxMissed
// consecutive updates are removed.
func (t *Tracker) Update(detections []classifier.Detection, timestamp int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	dets := make([]classifier.Detection, 0, len(detections))

	for _, d := range detections {
		if d.Location.Empty() || d.Location.Width() < t.cfg.MinSize ||
			d.Location.Height() < t.cfg.MinSize {
			continue
		}

		dets = append(dets, d)
	}

	if t.cfg.Smoothing == SmoothKalman {
		for _, tr := range t.tracks {
			t.kf.Predict(tr.kalman)
			tr.obj.Location = geometry.RectFromXyah(tr.kalman.Box())
		}
	}

	pairs, err := associate(t.tracks, dets, t.cfg.MatchThreshold)

	if err != nil {
		// every track stays unmatched for this update
		t.log.Errorw("track assignment failed", "timestamp", timestamp, "error", err)
		pairs = nil
	}

	trackMatched := make([]bool, len(t.tracks))
	detMatched := make([]bool, len(dets))

	for _, p := range pairs {
		trackMatched[p.track] = true
		detMatched[p.det] = true
		t.correct(t.tracks[p.track], dets[p.det], timestamp)
	}

	// age and expire tracks, keeping order of creation
	kept := t.tracks[:0]
	removed := 0

	for i, tr := range t.tracks {
		tr.obj.Age++

		if !trackMatched[i] {
			tr.obj.Missed++

			if tr.obj.Missed > t.cfg.MaxMissed {
				t.trail.Remove(tr.obj.ID)
				removed++
				continue
			}
		}

		kept = append(kept, tr)
	}

	// clear references to removed tracks in the backing array
	for i := len(kept); i < len(t.tracks); i++ {
		t.tracks[i] = nil
	}

	t.tracks = kept

	created := 0

	for i, d := range dets {
		if detMatched[i] {
			continue
		}

		t.tracks = append(t.tracks, t.create(d, timestamp))
		created++
	}

	for _, tr := range t.tracks {
		if tr.obj.Missed == 0 {
			c := tr.obj.Location.Center()
			t.trail.Add(tr.obj.ID, image.Pt(int(c.X), int(c.Y)))
		}
	}

	t.publish(dets, timestamp, len(pairs), created, removed)

	t.log.Debugw("tracker updated", "timestamp", timestamp, "detections", len(dets),
		"tracks", len(t.tracks), "matched", len(pairs), "created", created,
		"removed", removed)
}

// create starts a track from an unmatched detection
func (t *Tracker) create(d classifier.Detection, timestamp int64) *track {

	tr := &track{
		obj: TrackedObject{
			ID:         t.nextID,
			Location:   d.Location,
			Label:      d.Label,
			Class:      d.Class,
			Confidence: d.Confidence,
			Hits:       1,
			LastSeen:   timestamp,
		},
	}

	t.nextID++

	if t.cfg.Smoothing == SmoothKalman {
		tr.kalman = t.kf.Initiate(d.Location.Xyah())
	}

	return tr
}

// correct applies a matched detection to a track
func (t *Tracker) correct(tr *track, d classifier.Detection, timestamp int64) {

	tr.obj.Hits++
	tr.obj.Missed = 0
	tr.obj.LastSeen = timestamp

	// a differing label only takes over when it is more confident
	if d.Label == tr.obj.Label || d.Confidence > tr.obj.Confidence {
		tr.obj.Label = d.Label
		tr.obj.Class = d.Class
		tr.obj.Confidence = d.Confidence
	}

	if t.cfg.Smoothing != SmoothKalman {
		tr.obj.Location = d.Location
		return
	}

	err := t.kf.Update(tr.kalman, d.Location.Xyah())

	if err != nil {
		t.log.Warnw("kalman update failed, restarting track state", "id", tr.obj.ID,
			"error", err)
		tr.kalman = t.kf.Initiate(d.Location.Xyah())
	}

	tr.obj.Location = geometry.RectFromXyah(tr.kalman.Box())
}

// publish stores an immutable copy of the tracker state for Draw
func (t *Tracker) publish(dets []classifier.Detection, timestamp int64,
	matched, created, removed int) {

	snap := &Snapshot{
		Timestamp:  timestamp,
		Objects:    make([]TrackedObject, len(t.tracks)),
		Detections: dets,
		Trails:     make(map[int64][]image.Point, len(t.tracks)),
		Matched:    matched,
		Created:    created,
		Removed:    removed,
	}

	for i, tr := range t.tracks {
		snap.Objects[i] = tr.obj

		if points := t.trail.GetPoints(tr.obj.ID); points != nil {
			snap.Trails[tr.obj.ID] = points
		}
	}

	t.snapshot.Store(snap)
}

// pair is an associated track and detection index
type pair struct {
	track int
	det   int
	iou   float64
}

// associate pairs tracks and detections with the assignment minimizing the
// total 1-IoU cost.  Pairs with an IoU below threshold are left unmatched.
func associate(tracks []*track, dets []classifier.Detection,
	threshold float64) ([]pair, error) {

	rows, cols := len(tracks), len(dets)

	if rows == 0 || cols == 0 {
		return nil, nil
	}

	iou := make([][]float64, rows)

	for i, tr := range tracks {
		iou[i] = make([]float64, cols)

		for j, d := range dets {
			iou[i][j] = tr.obj.Location.IoU(d.Location)
		}
	}

	// extend to a square matrix where leaving a track and a detection both
	// unmatched costs 1-threshold, so only cheaper pairs are chosen
	n := rows + cols
	limit := 1 - threshold
	cost := make([][]float64, n)

	for i := range cost {
		cost[i] = make([]float64, n)

		for j := range cost[i] {
			switch {
			case i < rows && j < cols:
				cost[i][j] = 1 - iou[i][j]
			case i >= rows && j >= cols:
				cost[i][j] = 0
			default:
				cost[i][j] = limit / 2
			}
		}
	}

	x, _, err := solveLAP(cost)

	if err != nil {
		return nil, err
	}

	var pairs []pair

	for i := 0; i < rows; i++ {
		j := x[i]

		if j < 0 || j >= cols {
			continue
		}

		if v := iou[i][j]; v >= threshold && v > 0 {
			pairs = append(pairs, pair{track: i, det: j, iou: v})
		}
	}

	return pairs, nil
}
