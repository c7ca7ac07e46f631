package tracker

import (
	"image"
	"sync"
)

// Trail keeps a bounded history of centre points per track used for
// drawing the path an object has followed
type Trail struct {
	// size is the maximum number of most recent points to keep in history
	size int
	// history of tracked points by track ID
	history map[int64][]image.Point
	sync.Mutex
}

// NewTrail returns a new trail history.  Size is the maximum length of each
// track's trail.
func NewTrail(size int) *Trail {
	return &Trail{
		size:    size,
		history: make(map[int64][]image.Point),
	}
}

// Reset clears all history
func (t *Trail) Reset() {
	t.Lock()
	defer t.Unlock()

	t.history = make(map[int64][]image.Point)
}

// Add appends the centre point of a tracked object, dropping the oldest point
// once the trail is full
func (t *Trail) Add(id int64, p image.Point) {

	if t.size <= 0 {
		return
	}

	t.Lock()
	defer t.Unlock()

	points := append(t.history[id], p)

	if len(points) > t.size {
		points = points[len(points)-t.size:]
	}

	t.history[id] = points
}

// Remove deletes the history of a track that is no longer followed
func (t *Trail) Remove(id int64) {
	t.Lock()
	defer t.Unlock()

	delete(t.history, id)
}

// GetPoints returns a copy of the point history for a specific track ID
func (t *Trail) GetPoints(id int64) []image.Point {
	t.Lock()
	defer t.Unlock()

	points, exists := t.history[id]

	if !exists {
		return nil
	}

	out := make([]image.Point, len(points))
	copy(out, points)

	return out
}
