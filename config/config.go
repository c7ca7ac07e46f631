// Package config loads the detector settings from optional .env files and
// ALPR_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/swdee/go-alpr/classifier"
	"github.com/swdee/go-alpr/tracker"
	"go.uber.org/multierr"
)

// Prefix is prepended to every environment variable name
const Prefix = "ALPR_"

// Config holds the settings of the detector program
type Config struct {
	// Camera is a device index, video file or stream URL
	Camera        string
	PreviewWidth  int
	PreviewHeight int
	// SensorOrientation is the clockwise camera rotation in degrees
	SensorOrientation int

	Detector classifier.Config
	OCR      classifier.Config

	DetectThreshold    float32
	RecognizeThreshold float32
	MaintainAspect     bool
	// Binarize applies the adaptive threshold to plate crops before OCR,
	// when false OCR receives the blurred grayscale crop
	Binarize bool

	TrackIoU       float64
	TrackMaxMissed int
	TrackSmoothing string

	// HTTPAddr is where the preview stream and viewer websocket are served
	HTTPAddr    string
	JPEGQuality int
	// FontFile is an optional TTF font for plate text outside the Latin range
	FontFile string
	Debug    bool
	// LogLevel is a zap level name
	LogLevel string
	// Platform is the Rockchip SoC name used to pin the process to its fast
	// cores when the rknn backend is built in, empty leaves affinity alone
	Platform string
}

// Default returns the settings of the plate reader models, a 192x192
// quantized plate detector and 256x256 quantized character detector
func Default() Config {
	return Config{
		Camera:        "0",
		PreviewWidth:  640,
		PreviewHeight: 480,
		Detector: classifier.Config{
			Backend:    "tflite",
			ModelFile:  "yolov4-tiny_192_74maP_quantized.tflite",
			LabelFile:  "coco.txt",
			InputSize:  192,
			Quantized:  true,
			NumThreads: 4,
		},
		OCR: classifier.Config{
			Backend:    "tflite",
			ModelFile:  "yolov4-tiny_ocr_256_100maP_quantized.tflite",
			LabelFile:  "ocr.txt",
			InputSize:  256,
			Quantized:  true,
			NumThreads: 4,
		},
		DetectThreshold:    0.65,
		RecognizeThreshold: 0.6,
		MaintainAspect:     true,
		Binarize:           true,
		TrackIoU:           0.3,
		TrackMaxMissed:     3,
		TrackSmoothing:     tracker.SmoothKalman.String(),
		HTTPAddr:           "localhost:8080",
		JPEGQuality:        80,
		LogLevel:           "info",
	}
}

// Load reads the given .env files, ignoring missing ones, then overrides the
// defaults with any ALPR_ environment variables set.  Variables already set
// in the environment take precedence over .env files.
func Load(files ...string) (Config, error) {

	for _, f := range files {
		err := godotenv.Load(f)

		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("error loading %s: %w", f, err)
		}
	}

	c := Default()
	var errs error

	c.Camera = getEnv("CAMERA", c.Camera)
	c.PreviewWidth = getEnvAsInt("PREVIEW_WIDTH", c.PreviewWidth, &errs)
	c.PreviewHeight = getEnvAsInt("PREVIEW_HEIGHT", c.PreviewHeight, &errs)
	c.SensorOrientation = getEnvAsInt("SENSOR_ORIENTATION", c.SensorOrientation, &errs)

	c.Detector = loadClassifier("DETECTOR_", c.Detector, &errs)
	c.OCR = loadClassifier("OCR_", c.OCR, &errs)

	c.DetectThreshold = float32(getEnvAsFloat("DETECT_THRESHOLD", float64(c.DetectThreshold), &errs))
	c.RecognizeThreshold = float32(getEnvAsFloat("RECOGNIZE_THRESHOLD", float64(c.RecognizeThreshold), &errs))
	c.MaintainAspect = getEnvAsBool("MAINTAIN_ASPECT", c.MaintainAspect, &errs)
	c.Binarize = getEnvAsBool("BINARIZE", c.Binarize, &errs)

	c.TrackIoU = getEnvAsFloat("TRACK_IOU", c.TrackIoU, &errs)
	c.TrackMaxMissed = getEnvAsInt("TRACK_MAX_MISSED", c.TrackMaxMissed, &errs)
	c.TrackSmoothing = getEnv("TRACK_SMOOTHING", c.TrackSmoothing)

	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.JPEGQuality = getEnvAsInt("JPEG_QUALITY", c.JPEGQuality, &errs)
	c.FontFile = getEnv("FONT_FILE", c.FontFile)
	c.Debug = getEnvAsBool("DEBUG", c.Debug, &errs)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Platform = getEnv("PLATFORM", c.Platform)

	if errs != nil {
		return Config{}, errs
	}

	return c, nil
}

// loadClassifier reads the settings of one classifier stage
func loadClassifier(stage string, c classifier.Config, errs *error) classifier.Config {
	c.Backend = getEnv(stage+"BACKEND", c.Backend)
	c.ModelFile = getEnv(stage+"MODEL", c.ModelFile)
	c.ConfigFile = getEnv(stage+"MODEL_CONFIG", c.ConfigFile)
	c.LabelFile = getEnv(stage+"LABELS", c.LabelFile)
	c.InputSize = getEnvAsInt(stage+"INPUT_SIZE", c.InputSize, errs)
	c.Quantized = getEnvAsBool(stage+"QUANTIZED", c.Quantized, errs)
	c.NumThreads = getEnvAsInt(stage+"THREADS", c.NumThreads, errs)
	c.UseAccelerator = getEnvAsBool(stage+"ACCELERATOR", c.UseAccelerator, errs)
	return c
}

// Smoothing returns the tracker smoothing mode
func (c Config) Smoothing() (tracker.Smoothing, error) {
	switch strings.ToLower(c.TrackSmoothing) {
	case tracker.SmoothKalman.String():
		return tracker.SmoothKalman, nil
	case tracker.SmoothReplace.String():
		return tracker.SmoothReplace, nil
	default:
		return 0, fmt.Errorf("unknown track smoothing %q", c.TrackSmoothing)
	}
}

// Validate checks sizes, thresholds and that the model and label files exist
func (c Config) Validate() error {

	var errs error

	if c.PreviewWidth <= 0 || c.PreviewHeight <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("preview size %dx%d must be positive",
			c.PreviewWidth, c.PreviewHeight))
	}

	if c.SensorOrientation%90 != 0 {
		errs = multierr.Append(errs, fmt.Errorf("sensor orientation %d is not a multiple of 90",
			c.SensorOrientation))
	}

	if c.DetectThreshold < 0 || c.DetectThreshold > 1 ||
		c.RecognizeThreshold < 0 || c.RecognizeThreshold > 1 {
		errs = multierr.Append(errs, fmt.Errorf("thresholds must be within [0,1]"))
	}

	if c.TrackIoU <= 0 || c.TrackIoU > 1 {
		errs = multierr.Append(errs, fmt.Errorf("track IoU %.2f must be within (0,1]", c.TrackIoU))
	}

	if c.TrackMaxMissed < 0 {
		errs = multierr.Append(errs, fmt.Errorf("track max missed must not be negative"))
	}

	if _, err := c.Smoothing(); err != nil {
		errs = multierr.Append(errs, err)
	}

	for name, cc := range map[string]classifier.Config{"detector": c.Detector, "ocr": c.OCR} {
		if err := cc.Validate(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
		}

		for _, f := range []string{cc.ModelFile, cc.LabelFile} {
			if _, err := os.Stat(f); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}

	return errs
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(Prefix + key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int, errs *error) int {
	value, exists := os.LookupEnv(Prefix + key)

	if !exists || value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)

	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
		return defaultValue
	}

	return intValue
}

func getEnvAsFloat(key string, defaultValue float64, errs *error) float64 {
	value, exists := os.LookupEnv(Prefix + key)

	if !exists || value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)

	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
		return defaultValue
	}

	return floatValue
}

func getEnvAsBool(key string, defaultValue bool, errs *error) bool {
	value, exists := os.LookupEnv(Prefix + key)

	if !exists || value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)

	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("%s%s: %w", Prefix, key, err))
		return defaultValue
	}

	return boolValue
}
