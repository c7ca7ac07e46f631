// Package rknn runs YOLOv8 detection models on the Rockchip NPU through the
// RKNN Toolkit2 runtime.
package rknn

import (
	"fmt"
	"image"
	"sync"

	"github.com/swdee/go-alpr/classifier"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// BackendName is the name the backend registers under
const BackendName = "rknn"

func init() {
	classifier.Register(BackendName, Open)
}

// Classifier runs a YOLOv8 RKNN model
type Classifier struct {
	cfg    classifier.Config
	labels []string
	rt     *runtime
	input  *classifier.InputBuffer
	// size is the square model input dimension read from the model
	size int
	log  *zap.SugaredLogger
	mu   sync.Mutex
}

// Open loads the RKNN model described by cfg
func Open(cfg classifier.Config, labels []string) (classifier.Classifier, error) {

	rt, err := newRuntime(cfg.ModelFile, NPUCoreAuto)

	if err != nil {
		return nil, err
	}

	w, h := rt.inputSize()

	if w != h {
		rt.close()
		return nil, fmt.Errorf("model input %dx%d is not square", w, h)
	}

	if w != cfg.InputSize {
		cfg.Logger.Warnw("model input size differs from configuration, using model size",
			"model", w, "config", cfg.InputSize)
	}

	for _, a := range rt.outputAttrs {
		cfg.Logger.Debugw("output tensor", "attr", a.String())
	}

	return &Classifier{
		cfg:    cfg,
		labels: labels,
		rt:     rt,
		input:  classifier.NewInputBuffer(w),
		size:   w,
		log:    cfg.Logger,
	}, nil
}

// Recognize runs the model on img and returns detections in input space
func (c *Classifier) Recognize(img gocv.Mat) ([]classifier.Detection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	in, err := c.input.Prepare(img)

	if err != nil {
		return nil, err
	}

	outs, err := c.rt.run(in)

	if err != nil {
		return nil, fmt.Errorf("runtime inferencing failed: %w", err)
	}

	cands, err := decodeYOLOv8(outs, c.size, len(c.labels), c.cfg.ScoreThreshold)

	if err != nil {
		return nil, err
	}

	return classifier.Select(cands, c.labels, c.cfg.ScoreThreshold,
		c.cfg.NMSThreshold, c.cfg.MaxDetections, c.size), nil
}

// SetUseAccelerator returns ErrUnsupported when asked to leave the NPU, there
// is no CPU fallback for RKNN models
func (c *Classifier) SetUseAccelerator(use bool) error {

	if !use {
		return fmt.Errorf("rknn models only run on the NPU: %w", classifier.ErrUnsupported)
	}

	return nil
}

// SetNumThreads pins the model to 1, 2 or 3 NPU cores
func (c *Classifier) SetNumThreads(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	mask := coreMaskForThreads(n)
	c.log.Debugw("setting NPU core mask", "threads", n, "mask", int(mask))

	return c.rt.setCoreMask(mask)
}

// InputSize returns the model input dimensions
func (c *Classifier) InputSize() image.Point {
	return image.Pt(c.size, c.size)
}

// Labels returns the class labels
func (c *Classifier) Labels() []string {
	return c.labels
}

// Close releases the model and buffers
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return multierr.Combine(c.rt.close(), c.input.Close())
}
