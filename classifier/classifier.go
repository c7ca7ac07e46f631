package classifier

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var (
	// ErrUnsupported is returned when a backend can not honour a setting
	ErrUnsupported = errors.New("operation not supported by backend")
	// ErrUnknownBackend is returned by Open for an unregistered backend name
	ErrUnknownBackend = errors.New("unknown classifier backend")
)

// Classifier is a neural network detector taking a fixed size image and
// returning the objects located in it.  The same interface serves the plate
// detector and the character recognizer, each instance being configured with
// its own model, labels and input size.
type Classifier interface {
	// Recognize runs inference on an RGB image and returns detections with
	// locations in model input space, 0 to InputSize on each axis.  Images
	// not matching InputSize are resized first, callers map locations back
	// with the Transform that produced the input.
	Recognize(img gocv.Mat) ([]Detection, error)
	// SetUseAccelerator switches between the hardware accelerated compute
	// backend and the CPU
	SetUseAccelerator(use bool) error
	// SetNumThreads sets the number of threads (or cores) inference runs on
	SetNumThreads(n int) error
	// InputSize returns the width and height of the model input
	InputSize() image.Point
	// Labels returns the class labels the model was trained with
	Labels() []string
	// Close releases the model
	Close() error
}

// Config defines the parameters used to construct a Classifier
type Config struct {
	// Backend is the registered name of the inference backend
	Backend string
	// ModelFile is the path to the model file.  Backends that need a second
	// file, such as a darknet network config, take it from ConfigFile.
	ModelFile  string
	ConfigFile string
	// LabelFile is a text file containing one label per line
	LabelFile string
	// InputSize is the square input dimension of the model
	InputSize int
	// Quantized indicates the model takes uint8 input
	Quantized bool
	// NumThreads is the number of threads to run inference with, zero leaves
	// the backend default
	NumThreads int
	// UseAccelerator enables the hardware accelerated backend
	UseAccelerator bool
	// ScoreThreshold is the minimum score a box must reach before NMS
	ScoreThreshold float32
	// NMSThreshold is the maximum IoU allowed between two kept boxes of the
	// same class
	NMSThreshold float32
	// MaxDetections caps the number of detections returned
	MaxDetections int
	// Logger receives backend diagnostics
	Logger *zap.SugaredLogger
}

// withDefaults fills in unset optional fields
func (c Config) withDefaults() Config {

	if c.ScoreThreshold == 0 {
		c.ScoreThreshold = 0.25
	}

	if c.NMSThreshold == 0 {
		c.NMSThreshold = 0.45
	}

	if c.MaxDetections == 0 {
		c.MaxDetections = 64
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}

	return c
}

// Validate checks the configuration describes a usable model
func (c Config) Validate() error {

	if c.ModelFile == "" {
		return errors.New("model file not set")
	}

	if c.InputSize <= 0 {
		return fmt.Errorf("invalid input size %d", c.InputSize)
	}

	if c.NumThreads < 0 {
		return fmt.Errorf("invalid thread count %d", c.NumThreads)
	}

	return nil
}

// OpenFunc constructs a Classifier for a backend
type OpenFunc func(cfg Config, labels []string) (Classifier, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]OpenFunc)
)

// Register makes a backend available to Open under the given name.  It is
// intended to be called from the init function of backend packages.
func Register(name string, fn OpenFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("classifier backend %q registered twice", name))
	}

	registry[name] = fn
}

// Backends returns the sorted names of all registered backends
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))

	for name := range registry {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Open validates the config, loads the label file and constructs the
// Classifier using the configured backend
func Open(cfg Config) (Classifier, error) {

	err := cfg.Validate()

	if err != nil {
		return nil, fmt.Errorf("invalid classifier config: %w", err)
	}

	registryMu.RLock()
	fn, ok := registry[cfg.Backend]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q, available %v", ErrUnknownBackend,
			cfg.Backend, Backends())
	}

	var labels []string

	if cfg.LabelFile != "" {
		labels, err = LoadLabels(cfg.LabelFile)

		if err != nil {
			return nil, fmt.Errorf("error loading labels: %w", err)
		}
	}

	cfg = cfg.withDefaults()

	c, err := fn(cfg, labels)

	if err != nil {
		return nil, fmt.Errorf("error opening %s classifier: %w", cfg.Backend, err)
	}

	cfg.Logger.Infow("classifier opened", "backend", cfg.Backend,
		"model", cfg.ModelFile, "inputSize", cfg.InputSize,
		"labels", len(labels), "quantized", cfg.Quantized)

	if cfg.NumThreads > 0 {
		if err := c.SetNumThreads(cfg.NumThreads); err != nil {
			cfg.Logger.Warnw("unable to set thread count", "threads", cfg.NumThreads, "error", err)
		}
	}

	if cfg.UseAccelerator {
		if err := c.SetUseAccelerator(true); err != nil {
			cfg.Logger.Warnw("unable to enable accelerator", "error", err)
		}
	}

	return c, nil
}
