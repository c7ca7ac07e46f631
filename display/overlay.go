// Package display composes the live preview with the tracker overlay and
// serves it to browsers as an MJPEG stream, alongside a websocket feed of
// recognized plate text.
package display

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// DrawFunc paints onto the BGR canvas before it is encoded
type DrawFunc func(canvas *gocv.Mat)

// Overlay repaints the latest camera frame with the registered draw callbacks
// when invalidated and keeps the most recent JPEG encoding of the result
type Overlay struct {
	mu         sync.Mutex
	background gocv.Mat
	canvas     gocv.Mat
	callbacks  []DrawFunc
	// latest is the most recent JPEG and updated is closed when it changes
	latest  []byte
	updated chan struct{}
	seq     int64

	invalidate chan struct{}
	quality    int
	log        *zap.SugaredLogger
	closeOnce  sync.Once
}

// NewOverlay returns an Overlay encoding at the given JPEG quality
func NewOverlay(quality int, logger *zap.SugaredLogger) *Overlay {

	if quality <= 0 || quality > 100 {
		quality = 80
	}

	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Overlay{
		background: gocv.NewMat(),
		canvas:     gocv.NewMat(),
		updated:    make(chan struct{}),
		invalidate: make(chan struct{}, 1),
		quality:    quality,
		log:        logger,
	}
}

// AddCallback registers a function called on every repaint in registration
// order
func (o *Overlay) AddCallback(fn DrawFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.callbacks = append(o.callbacks, fn)
}

// SetBackground copies an RGB frame to use as the background of the next
// repaint
func (o *Overlay) SetBackground(frame gocv.Mat) {

	if frame.Empty() {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	gocv.CvtColor(frame, &o.background, gocv.ColorRGBToBGR)
}

// PostInvalidate requests a repaint without blocking.  Requests made while
// one is pending are merged.
func (o *Overlay) PostInvalidate() {
	select {
	case o.invalidate <- struct{}{}:
	default:
	}
}

// Run repaints on each invalidation until ctx is cancelled
func (o *Overlay) Run(ctx context.Context) error {

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-o.invalidate:
			err := o.Repaint()

			if err != nil {
				o.log.Warnw("overlay repaint failed", "error", err)
			}
		}
	}
}

// Repaint composes the background and callbacks and encodes the result.
// Nothing is encoded until a background has been set.
func (o *Overlay) Repaint() error {

	o.mu.Lock()

	if o.background.Empty() {
		o.mu.Unlock()
		return nil
	}

	o.background.CopyTo(&o.canvas)

	for _, fn := range o.callbacks {
		fn(&o.canvas)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, o.canvas,
		[]int{int(gocv.IMWriteJpegQuality), o.quality})

	o.mu.Unlock()

	if err != nil {
		return fmt.Errorf("error encoding overlay: %w", err)
	}

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	buf.Close()

	o.publish(data)

	return nil
}

// publish stores a new JPEG and wakes waiting streams
func (o *Overlay) publish(data []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.latest = data
	o.seq++
	close(o.updated)
	o.updated = make(chan struct{})
}

// Latest returns the most recent JPEG and its sequence number, nil before the
// first repaint
func (o *Overlay) Latest() ([]byte, int64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.latest, o.seq
}

// Next waits for a JPEG newer than seq
func (o *Overlay) Next(ctx context.Context, seq int64) ([]byte, int64, error) {

	for {
		o.mu.Lock()
		data, cur, updated := o.latest, o.seq, o.updated
		o.mu.Unlock()

		if cur > seq && data != nil {
			return data, cur, nil
		}

		select {
		case <-ctx.Done():
			return nil, seq, ctx.Err()
		case <-updated:
		}
	}
}

// Close frees the canvas Mats
func (o *Overlay) Close() error {

	o.closeOnce.Do(func() {
		o.mu.Lock()
		defer o.mu.Unlock()

		o.background.Close()
		o.canvas.Close()
	})

	return nil
}
