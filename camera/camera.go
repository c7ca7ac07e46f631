// Package camera delivers preview frames from an OpenCV video capture device,
// file or stream through a fixed ring of reusable buffers.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ErrEndOfStream is returned by Run when the capture source has no more
// frames
var ErrEndOfStream = errors.New("end of stream")

// Frame is a captured RGB pixel buffer.  It must be released exactly once
// when the consumer has finished with the pixels so the buffer can be reused.
type Frame struct {
	// Mat holds the pixels in RGB order
	Mat gocv.Mat
	// Seq is a monotonic sequence number starting at 1
	Seq int64
	// released guards against double release
	released  atomic.Bool
	onRelease func(*Frame)
}

// NewFrame wraps a Mat as a Frame.  onRelease, if not nil, is called once
// when the frame is released.
func NewFrame(m gocv.Mat, seq int64, onRelease func(*Frame)) *Frame {
	return &Frame{Mat: m, Seq: seq, onRelease: onRelease}
}

// Size returns the frame dimensions
func (f *Frame) Size() image.Point {
	return image.Pt(f.Mat.Cols(), f.Mat.Rows())
}

// Release returns the frame buffer to the camera, allowing capture of the
// next frame
func (f *Frame) Release() {

	if !f.released.CompareAndSwap(false, true) {
		return
	}

	if f.onRelease != nil {
		f.onRelease(f)
	}
}

// Released reports whether the frame has been released since capture
func (f *Frame) Released() bool {
	return f.released.Load()
}

// Config defines the capture parameters
type Config struct {
	// Device is either a numeric device index or a file path/stream URL
	Device string
	// Width and Height are the desired preview size
	Width  int
	Height int
	// Orientation is the clockwise rotation in degrees of the sensor relative
	// to the display
	Orientation int
	// Buffers is the number of frames that may be held by consumers at once
	Buffers int
	// Logger receives capture diagnostics
	Logger *zap.SugaredLogger
}

// Source captures frames from a gocv VideoCapture
type Source struct {
	cfg     Config
	capture *gocv.VideoCapture
	// raw receives BGR pixels before conversion
	raw  gocv.Mat
	free chan *Frame
	all  []*Frame
	seq  int64
	size image.Point
	log  *zap.SugaredLogger
	once sync.Once
}

// Open starts the capture device and requests the desired preview size
func Open(cfg Config) (*Source, error) {

	if cfg.Buffers <= 0 {
		cfg.Buffers = 2
	}

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	capture, err := gocv.OpenVideoCapture(cfg.Device)

	if err != nil {
		return nil, fmt.Errorf("error opening capture device %s: %w", cfg.Device, err)
	}

	if cfg.Width > 0 && cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	s := &Source{
		cfg:     cfg,
		capture: capture,
		raw:     gocv.NewMat(),
		free:    make(chan *Frame, cfg.Buffers),
		log:     cfg.Logger,
	}

	for i := 0; i < cfg.Buffers; i++ {
		f := NewFrame(gocv.NewMat(), 0, s.recycle)
		f.released.Store(true)
		s.all = append(s.all, f)
		s.free <- f
	}

	s.size = image.Pt(
		int(capture.Get(gocv.VideoCaptureFrameWidth)),
		int(capture.Get(gocv.VideoCaptureFrameHeight)),
	)

	s.log.Infow("camera opened", "device", cfg.Device, "requested",
		image.Pt(cfg.Width, cfg.Height), "actual", s.size)

	return s, nil
}

// recycle returns a released frame's buffer to the ring
func (s *Source) recycle(f *Frame) {
	s.free <- f
}

// Size returns the preview size reported by the device
func (s *Source) Size() image.Point {
	return s.size
}

// Orientation returns the configured sensor orientation in degrees
func (s *Source) Orientation() int {
	return s.cfg.Orientation
}

// Run captures frames until ctx is cancelled or the source ends, handing
// each one to handler.  The handler owns the frame until it calls Release.
// Capture waits for a free buffer when all are held by consumers.
func (s *Source) Run(ctx context.Context, handler func(*Frame)) error {

	for {
		var f *Frame

		select {
		case <-ctx.Done():
			return ctx.Err()
		case f = <-s.free:
		}

		if ok := s.capture.Read(&s.raw); !ok || s.raw.Empty() {
			s.free <- f
			return ErrEndOfStream
		}

		gocv.CvtColor(s.raw, &f.Mat, gocv.ColorBGRToRGB)

		s.seq++
		f.Seq = s.seq
		f.released.Store(false)

		if s.size.X == 0 {
			s.size = f.Size()
		}

		handler(f)
	}
}

// Close stops the capture device and frees the frame buffers.  Frames still
// held by consumers must not be used afterwards.
func (s *Source) Close() error {

	var err error

	s.once.Do(func() {
		err = s.capture.Close()
		s.raw.Close()

		for _, f := range s.all {
			f.Mat.Close()
		}
	})

	return err
}
