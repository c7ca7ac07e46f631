// Package pipeline runs the two stage plate detection and character
// recognition on camera frames.  Frames arriving while a previous frame is
// still being processed are dropped so inference never backs up capture.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/swdee/go-alpr/camera"
	"github.com/swdee/go-alpr/classifier"
	"github.com/swdee/go-alpr/imagefilter"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ErrClosed is returned when starting a Processor that has been closed
var ErrClosed = errors.New("processor closed")

// Config defines the detection thresholds and frame geometry
type Config struct {
	// DetectThreshold is the minimum stage-1 confidence for a plate to be
	// recognized and tracked
	DetectThreshold float32
	// RecognizeThreshold is the minimum confidence of a character
	RecognizeThreshold float32
	// SensorOrientation is the clockwise rotation in degrees applied when
	// cropping frames for the classifiers
	SensorOrientation int
	// MaintainAspect letterboxes the frame into the stage-1 input
	MaintainAspect bool
	// Filter normalizes plate crops before character recognition
	Filter imagefilter.Options
	// Logger receives pipeline diagnostics
	Logger *zap.SugaredLogger
}

// DefaultConfig returns the thresholds used by the detector
func DefaultConfig() Config {
	return Config{
		DetectThreshold:    0.65,
		RecognizeThreshold: 0.6,
		MaintainAspect:     true,
		Filter:             imagefilter.DefaultOptions(),
	}
}

// Validate checks the thresholds, orientation and filter options
func (c Config) Validate() error {

	if c.DetectThreshold < 0 || c.DetectThreshold > 1 {
		return fmt.Errorf("detect threshold %.2f outside [0,1]", c.DetectThreshold)
	}

	if c.RecognizeThreshold < 0 || c.RecognizeThreshold > 1 {
		return fmt.Errorf("recognize threshold %.2f outside [0,1]", c.RecognizeThreshold)
	}

	if c.SensorOrientation%90 != 0 {
		return fmt.Errorf("sensor orientation %d is not a multiple of 90", c.SensorOrientation)
	}

	return c.Filter.Validate()
}

// Processor is the per frame detect and recognize pipeline.  OnNewFrame is
// called from the capture goroutine, the work runs on a single background
// goroutine started by Start.
type Processor struct {
	cfg      Config
	detector classifier.Classifier
	ocr      classifier.Classifier
	tracker  Tracker
	overlay  Overlay
	filter   *imagefilter.Filter

	// busy is the Idle/Busy gate.  Only OnNewFrame moves it to busy and only
	// the worker moves it back to idle.
	busy atomic.Bool
	// work hands the accepted frame's sequence number to the worker
	work chan int64

	listenerMu sync.RWMutex
	listener   Listener

	// frameBuf holds the pixels of the frame being processed
	frameBuf gocv.Mat
	// scratch Mats owned by the worker
	cropBuf  gocv.Mat
	ocrCrop  gocv.Mat
	ocrInput gocv.Mat
	crop     *cropCache

	accepted         atomic.Int64
	dropped          atomic.Int64
	consecutiveDrops atomic.Int64
	failed           atomic.Int64
	lastLatency      atomic.Duration

	started   atomic.Bool
	closed    atomic.Bool
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	log       *zap.SugaredLogger
}

// New returns a Processor using detector for plates and ocr for characters.
// The tracker and overlay may be nil.
func New(cfg Config, detector, ocr classifier.Classifier, tracker Tracker,
	overlay Overlay) (*Processor, error) {

	if detector == nil || ocr == nil {
		return nil, fmt.Errorf("detector and ocr classifiers are required")
	}

	err := cfg.Validate()

	if err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	filter, err := imagefilter.New(cfg.Filter)

	if err != nil {
		return nil, fmt.Errorf("error creating image filter: %w", err)
	}

	return &Processor{
		cfg:      cfg,
		detector: detector,
		ocr:      ocr,
		tracker:  tracker,
		overlay:  overlay,
		filter:   filter,
		work:     make(chan int64, 1),
		frameBuf: gocv.NewMat(),
		cropBuf:  gocv.NewMat(),
		ocrCrop:  gocv.NewMat(),
		ocrInput: gocv.NewMat(),
		done:     make(chan struct{}),
		log:      cfg.Logger,
	}, nil
}

// SetListener sets the receiver of per frame results
func (p *Processor) SetListener(l Listener) {
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()

	p.listener = l
}

// Start launches the background worker.  The worker stops when ctx is
// cancelled or the Processor is closed.
func (p *Processor) Start(ctx context.Context) error {

	if p.closed.Load() {
		return ErrClosed
	}

	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("processor already started")
	}

	p.wg.Add(1)
	go p.run(ctx)

	return nil
}

// run is the background worker loop
func (p *Processor) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case seq := <-p.work:
			p.process(seq)
		}
	}
}

// OnNewFrame offers a captured frame to the pipeline and reports whether it
// was accepted.  The frame is always released before returning, either
// after its pixels are copied or immediately when the pipeline is busy.
func (p *Processor) OnNewFrame(frame *camera.Frame) bool {

	p.invalidate()

	if p.closed.Load() || !p.busy.CompareAndSwap(false, true) {
		frame.Release()

		dropped := p.dropped.Inc()
		consecutive := p.consecutiveDrops.Inc()

		p.log.Debugw("frame dropped", "seq", frame.Seq, "dropped", dropped,
			"consecutive", consecutive)

		return false
	}

	frame.Mat.CopyTo(&p.frameBuf)
	frame.Release()

	p.accepted.Inc()
	p.consecutiveDrops.Store(0)

	p.work <- frame.Seq

	return true
}

// Busy reports whether a frame is in flight
func (p *Processor) Busy() bool {
	return p.busy.Load()
}

// Stats returns the current frame counters
func (p *Processor) Stats() Stats {
	return Stats{
		Accepted:         p.accepted.Load(),
		Dropped:          p.dropped.Load(),
		ConsecutiveDrops: p.consecutiveDrops.Load(),
		Failed:           p.failed.Load(),
		LastLatency:      p.lastLatency.Load(),
	}
}

// invalidate asks the overlay to repaint
func (p *Processor) invalidate() {
	if p.overlay != nil {
		p.overlay.PostInvalidate()
	}
}

// publish hands a result to the listener
func (p *Processor) publish(r Result) {
	p.listenerMu.RLock()
	l := p.listener
	p.listenerMu.RUnlock()

	if l != nil {
		l.OnResult(r)
	}
}

// Close stops the worker, waiting for an in flight frame to finish, and
// frees the working buffers.  Capture must have stopped delivering frames.
// The classifiers are not closed.
func (p *Processor) Close() error {

	var err error

	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.done)
		p.wg.Wait()

		err = multierr.Combine(
			p.filter.Close(),
			p.crop.Close(),
			p.frameBuf.Close(),
			p.cropBuf.Close(),
			p.ocrCrop.Close(),
			p.ocrInput.Close(),
		)
	})

	return err
}
