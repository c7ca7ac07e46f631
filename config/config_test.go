package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/swdee/go-alpr/tracker"
)

func TestLoadDefaults(t *testing.T) {

	c, err := Load(filepath.Join(t.TempDir(), "missing.env"))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.PreviewWidth != 640 || c.PreviewHeight != 480 {
		t.Errorf("expected 640x480 preview, got %dx%d", c.PreviewWidth, c.PreviewHeight)
	}

	if c.Detector.InputSize != 192 || c.OCR.InputSize != 256 {
		t.Errorf("unexpected input sizes %d %d", c.Detector.InputSize, c.OCR.InputSize)
	}

	if c.DetectThreshold != 0.65 || c.RecognizeThreshold != 0.6 || !c.MaintainAspect || !c.Binarize {
		t.Errorf("unexpected thresholds %+v", c)
	}
}

func TestLoadEnvFileAndOverrides(t *testing.T) {

	dir := t.TempDir()
	envFile := filepath.Join(dir, "alpr.env")

	err := os.WriteFile(envFile, []byte(
		"ALPR_PREVIEW_WIDTH=1280\n"+
			"ALPR_OCR_INPUT_SIZE=320\n"+
			"ALPR_DETECTOR_BACKEND=rknn\n"+
			"ALPR_TRACK_SMOOTHING=replace\n"), 0o644)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// environment wins over the file
	t.Setenv("ALPR_PREVIEW_WIDTH", "800")
	t.Setenv("ALPR_DEBUG", "true")
	t.Setenv("ALPR_BINARIZE", "false")

	// godotenv sets variables for the process, clear them afterwards
	t.Cleanup(func() {
		os.Unsetenv("ALPR_OCR_INPUT_SIZE")
		os.Unsetenv("ALPR_DETECTOR_BACKEND")
		os.Unsetenv("ALPR_TRACK_SMOOTHING")
	})

	c, err := Load(envFile)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.PreviewWidth != 800 {
		t.Errorf("expected environment preview width 800, got %d", c.PreviewWidth)
	}

	if c.OCR.InputSize != 320 || c.Detector.Backend != "rknn" || !c.Debug || c.Binarize {
		t.Errorf("unexpected overrides %+v", c)
	}

	s, err := c.Smoothing()

	if err != nil || s != tracker.SmoothReplace {
		t.Errorf("expected replace smoothing, got %v %v", s, err)
	}
}

func TestLoadInvalidNumber(t *testing.T) {

	t.Setenv("ALPR_TRACK_MAX_MISSED", "three")

	if _, err := Load(); err == nil {
		t.Errorf("expected parse error")
	}
}

func TestValidate(t *testing.T) {

	dir := t.TempDir()

	for _, f := range []string{"det.tflite", "det.txt", "ocr.tflite", "ocr.txt"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x\n"), 0o644); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	c := Default()
	c.Detector.ModelFile = filepath.Join(dir, "det.tflite")
	c.Detector.LabelFile = filepath.Join(dir, "det.txt")
	c.OCR.ModelFile = filepath.Join(dir, "ocr.tflite")
	c.OCR.LabelFile = filepath.Join(dir, "ocr.txt")

	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.OCR.LabelFile = filepath.Join(dir, "missing.txt")
	c.SensorOrientation = 45

	if err := c.Validate(); err == nil {
		t.Errorf("expected validation errors")
	}
}
