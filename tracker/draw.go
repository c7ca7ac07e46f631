package tracker

import (
	"fmt"
	"image"

	"github.com/swdee/go-alpr/geometry"
	"github.com/swdee/go-alpr/render"
	"gocv.io/x/gocv"
)

// frameToCanvas returns the transform from frame coordinates to the canvas.
// Without a frame configuration boxes are drawn as is.
func (t *Tracker) frameToCanvas(canvas *gocv.Mat) geometry.Transform {

	fc := t.frame.Load()

	if fc == nil {
		return geometry.Identity()
	}

	tr, err := geometry.Compute(fc.width, fc.height, canvas.Cols(), canvas.Rows(),
		fc.orientation, false)

	if err != nil {
		t.log.Warnw("invalid frame configuration for drawing", "error", err)
		return geometry.Identity()
	}

	return tr
}

// Draw paints the tracked objects of the latest snapshot with their label
// and confidence
func (t *Tracker) Draw(canvas *gocv.Mat) {

	snap := t.snapshot.Load()
	toCanvas := t.frameToCanvas(canvas)

	boxes := make([]render.Box, 0, len(snap.Objects))

	for _, obj := range snap.Objects {
		boxes = append(boxes, render.Box{
			Rect:       toCanvas.MapRect(obj.Location).ImageRect(),
			Caption:    fmt.Sprintf("%s %.2f", obj.Label, obj.Confidence),
			ColorIndex: int(obj.ID),
		})
	}

	render.Boxes(canvas, boxes, render.DefaultFont(), 2)
}

// DrawDebug paints the tracked objects, the raw detections of the last
// update, centre point trails and a line of tracker diagnostics
func (t *Tracker) DrawDebug(canvas *gocv.Mat) {

	snap := t.snapshot.Load()
	toCanvas := t.frameToCanvas(canvas)

	raw := make([]render.Box, 0, len(snap.Detections))

	for _, d := range snap.Detections {
		raw = append(raw, render.Box{Rect: toCanvas.MapRect(d.Location).ImageRect()})
	}

	render.BoxesWithColor(canvas, raw, render.DefaultFont(), 1, render.White)

	for id, points := range snap.Trails {
		mapped := make([]image.Point, len(points))

		for i, p := range points {
			m := toCanvas.Apply(geometry.Point{X: float64(p.X), Y: float64(p.Y)})
			mapped[i] = image.Pt(int(m.X), int(m.Y))
		}

		render.Trail(canvas, mapped, int(id), render.DefaultTrailStyle())
	}

	t.Draw(canvas)

	render.StatusLine(canvas, fmt.Sprintf("tracks=%d matched=%d created=%d removed=%d ts=%d",
		len(snap.Objects), snap.Matched, snap.Created, snap.Removed, snap.Timestamp),
		render.DefaultFont())
}
