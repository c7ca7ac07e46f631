// Package tflite runs YOLOv4-tiny TensorFlow Lite models exported with a
// boxes output and a class scores output.
package tflite

import (
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"

	tflite "github.com/mattn/go-tflite"
	"github.com/mattn/go-tflite/delegates"
	"github.com/mattn/go-tflite/delegates/xnnpack"
	"github.com/swdee/go-alpr/classifier"
	"github.com/swdee/go-alpr/geometry"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// BackendName is the name the backend registers under
const BackendName = "tflite"

func init() {
	classifier.Register(BackendName, Open)
}

// Classifier wraps a tflite interpreter.  The interpreter is rebuilt whenever
// the thread count or accelerator setting changes.
type Classifier struct {
	cfg         classifier.Config
	labels      []string
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	delegate    delegates.Delegater
	input       *classifier.InputBuffer
	threads     int
	accelerated bool
	log         *zap.SugaredLogger
	mu          sync.Mutex
}

// Open loads the tflite model file
func Open(cfg classifier.Config, labels []string) (classifier.Classifier, error) {

	model := tflite.NewModelFromFile(cfg.ModelFile)

	if model == nil {
		return nil, fmt.Errorf("failed to load model %s", cfg.ModelFile)
	}

	c := &Classifier{
		cfg:     cfg,
		labels:  labels,
		model:   model,
		input:   classifier.NewInputBuffer(cfg.InputSize),
		threads: runtime.NumCPU(),
		log:     cfg.Logger,
	}

	err := c.rebuild()

	if err != nil {
		c.model.Delete()
		c.input.Close()
		return nil, err
	}

	return c, nil
}

// rebuild creates the interpreter from the current settings, releasing the
// previous one
func (c *Classifier) rebuild() error {

	c.release()

	c.options = tflite.NewInterpreterOptions()
	c.options.SetNumThread(c.threads)
	c.options.SetErrorReporter(func(msg string, _ interface{}) {
		c.log.Warnw("tflite", "message", msg)
	}, nil)

	if c.accelerated {
		d := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(c.threads)})

		if d == nil {
			return errors.New("failed to create XNNPACK delegate")
		}

		c.delegate = d
		c.options.AddDelegate(d)
	}

	c.interpreter = tflite.NewInterpreter(c.model, c.options)

	if c.interpreter == nil {
		return errors.New("cannot create interpreter")
	}

	if status := c.interpreter.AllocateTensors(); status != tflite.OK {
		return fmt.Errorf("tensor allocation failed, status %v", status)
	}

	in := c.interpreter.GetInputTensor(0)

	if in.Dim(1) != c.cfg.InputSize || in.Dim(2) != c.cfg.InputSize {
		return fmt.Errorf("model input %dx%d does not match configured size %d",
			in.Dim(2), in.Dim(1), c.cfg.InputSize)
	}

	if c.interpreter.GetOutputTensorCount() < 2 {
		return fmt.Errorf("expected boxes and scores outputs, model has %d outputs",
			c.interpreter.GetOutputTensorCount())
	}

	return nil
}

// release deletes the interpreter, options and delegate
func (c *Classifier) release() {

	if c.interpreter != nil {
		c.interpreter.Delete()
		c.interpreter = nil
	}

	if c.options != nil {
		c.options.Delete()
		c.options = nil
	}

	if c.delegate != nil {
		c.delegate.Delete()
		c.delegate = nil
	}
}

// Recognize runs the model on img and returns detections in input space
func (c *Classifier) Recognize(img gocv.Mat) ([]classifier.Detection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	in, err := c.input.Prepare(img)

	if err != nil {
		return nil, err
	}

	pixels := in.ToBytes()
	tensor := c.interpreter.GetInputTensor(0)

	switch tensor.Type() {
	case tflite.UInt8:
		if status := tensor.CopyFromBuffer(pixels); status != tflite.OK {
			return nil, fmt.Errorf("copying input failed, status %v", status)
		}

	case tflite.Float32:
		buf := make([]float32, len(pixels))

		for i, p := range pixels {
			buf[i] = float32(p) / 255.0
		}

		if status := tensor.CopyFromBuffer(buf); status != tflite.OK {
			return nil, fmt.Errorf("copying input failed, status %v", status)
		}

	default:
		return nil, fmt.Errorf("unsupported input tensor type %v", tensor.Type())
	}

	if status := c.interpreter.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("invoke failed, status %v", status)
	}

	boxes, err := readFloats(c.interpreter.GetOutputTensor(0))

	if err != nil {
		return nil, fmt.Errorf("boxes output: %w", err)
	}

	scores, err := readFloats(c.interpreter.GetOutputTensor(1))

	if err != nil {
		return nil, fmt.Errorf("scores output: %w", err)
	}

	cands, err := decode(boxes, scores, len(c.labels), c.cfg.ScoreThreshold)

	if err != nil {
		return nil, err
	}

	return classifier.Select(cands, c.labels, c.cfg.ScoreThreshold,
		c.cfg.NMSThreshold, c.cfg.MaxDetections, c.cfg.InputSize), nil
}

// readFloats returns the tensor values as float32, dequantizing uint8 and
// int8 tensors
func readFloats(t *tflite.Tensor) ([]float32, error) {

	switch t.Type() {
	case tflite.Float32:
		return t.Float32s(), nil

	case tflite.UInt8:
		q := t.QuantizationParams()
		raw := t.UInt8s()
		out := make([]float32, len(raw))

		for i, v := range raw {
			out[i] = float32(q.Scale * float64(int(v)-q.ZeroPoint))
		}

		return out, nil

	case tflite.Int8:
		q := t.QuantizationParams()
		raw := t.Int8s()
		out := make([]float32, len(raw))

		for i, v := range raw {
			out[i] = float32(q.Scale * float64(int(v)-q.ZeroPoint))
		}

		return out, nil
	}

	return nil, fmt.Errorf("unsupported output tensor type %v", t.Type())
}

// decode converts the flat boxes (center x, center y, width, height in input
// pixels) and per class scores into candidates
func decode(boxes, scores []float32, numClasses int,
	threshold float32) ([]classifier.Candidate, error) {

	if numClasses <= 0 {
		return nil, errors.New("model labels are required to decode scores")
	}

	n := len(boxes) / 4

	if len(scores) != n*numClasses {
		return nil, fmt.Errorf("scores length %d does not match %d boxes of %d classes",
			len(scores), n, numClasses)
	}

	cands := make([]classifier.Candidate, 0)

	for i := 0; i < n; i++ {

		bestClass := -1
		bestScore := float32(0)

		for k := 0; k < numClasses; k++ {
			if s := scores[i*numClasses+k]; s > bestScore {
				bestScore = s
				bestClass = k
			}
		}

		if bestClass < 0 || bestScore < threshold {
			continue
		}

		b := boxes[i*4 : i*4+4]

		cands = append(cands, classifier.Candidate{
			Box: geometry.RectFromCenter(float64(b[0]), float64(b[1]),
				float64(b[2]), float64(b[3])),
			Score: bestScore,
			Class: bestClass,
		})
	}

	return cands, nil
}

// SetUseAccelerator enables or disables the XNNPACK delegate
func (c *Classifier) SetUseAccelerator(use bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accelerated == use {
		return nil
	}

	c.accelerated = use

	return c.rebuild()
}

// SetNumThreads sets the interpreter thread count
func (c *Classifier) SetNumThreads(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 {
		return fmt.Errorf("invalid thread count %d", n)
	}

	if c.threads == n {
		return nil
	}

	c.threads = n

	return c.rebuild()
}

// InputSize returns the model input dimensions
func (c *Classifier) InputSize() image.Point {
	return image.Pt(c.cfg.InputSize, c.cfg.InputSize)
}

// Labels returns the class labels
func (c *Classifier) Labels() []string {
	return c.labels
}

// Close releases the interpreter and model
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.release()
	c.model.Delete()

	return c.input.Close()
}
