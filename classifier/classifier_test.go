package classifier

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/swdee/go-alpr/geometry"
	"gocv.io/x/gocv"
)

func TestLoadLabels(t *testing.T) {

	file := filepath.Join(t.TempDir(), "ocr.txt")
	err := os.WriteFile(file, []byte("A\n B \n\nC\n"), 0o644)

	if err != nil {
		t.Fatalf("failed writing labels: %v", err)
	}

	labels, err := LoadLabels(file)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"A", "B", "C"}

	if !reflect.DeepEqual(labels, want) {
		t.Errorf("expected %v, got %v", want, labels)
	}

	_, err = LoadLabels(filepath.Join(t.TempDir(), "missing.txt"))

	if err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestSelect(t *testing.T) {

	labels := []string{"plate", "car"}

	cands := []Candidate{
		{Box: geometry.Rect{10, 10, 50, 30}, Score: 0.9, Class: 0},
		// overlaps the first box heavily, same class, suppressed
		{Box: geometry.Rect{12, 10, 52, 30}, Score: 0.8, Class: 0},
		// overlaps but different class, kept
		{Box: geometry.Rect{12, 10, 52, 30}, Score: 0.7, Class: 1},
		// below threshold
		{Box: geometry.Rect{100, 100, 120, 120}, Score: 0.1, Class: 0},
		// extends past the input, clamped
		{Box: geometry.Rect{150, 150, 220, 200}, Score: 0.95, Class: 0},
	}

	dets := Select(cands, labels, 0.25, 0.45, 64, 192)

	if len(dets) != 3 {
		t.Fatalf("expected 3 detections, got %d: %v", len(dets), dets)
	}

	if dets[0].Confidence != 0.95 || dets[0].Location.Right != 192 || dets[0].Location.Bottom != 192 {
		t.Errorf("unexpected first detection %v", dets[0])
	}

	if dets[1].Label != "plate" || dets[1].Confidence != 0.9 {
		t.Errorf("unexpected second detection %v", dets[1])
	}

	if dets[2].Label != "car" || dets[2].Class != 1 {
		t.Errorf("unexpected third detection %v", dets[2])
	}

	if got := Select(cands, labels, 0.25, 0.45, 1, 192); len(got) != 1 {
		t.Errorf("expected max detections to cap at 1, got %d", len(got))
	}
}

func TestSortByLeftAndFilter(t *testing.T) {

	dets := []Detection{
		{Location: geometry.Rect{Left: 30}, Label: "C", Confidence: 0.7},
		{Location: geometry.Rect{Left: 10}, Label: "A", Confidence: 0.8},
		{Location: geometry.Rect{Left: 20}, Label: "B", Confidence: 0.3},
		{Location: geometry.Rect{Left: 10}, Label: "D", Confidence: 0.9},
	}

	SortByLeft(dets)

	got := ""

	for _, d := range dets {
		got += d.Label
	}

	if got != "ADBC" {
		t.Errorf("expected stable order ADBC, got %s", got)
	}

	kept := FilterByConfidence(dets, 0.6)

	if len(kept) != 3 {
		t.Errorf("expected 3 detections kept, got %d", len(kept))
	}
}

func TestLabelFor(t *testing.T) {

	labels := []string{"A", "B"}

	if LabelFor(labels, 1) != "B" {
		t.Errorf("expected B")
	}

	if LabelFor(labels, 5) != "5" {
		t.Errorf("expected numeric fallback, got %s", LabelFor(labels, 5))
	}
}

type nopClassifier struct{}

func (nopClassifier) Recognize(gocv.Mat) ([]Detection, error) { return nil, nil }
func (nopClassifier) SetUseAccelerator(bool) error            { return ErrUnsupported }
func (nopClassifier) SetNumThreads(int) error                 { return nil }
func (nopClassifier) InputSize() image.Point                  { return image.Pt(8, 8) }
func (nopClassifier) Labels() []string                        { return nil }
func (nopClassifier) Close() error                            { return nil }

func TestRegistry(t *testing.T) {

	Register("test-nop", func(cfg Config, labels []string) (Classifier, error) {
		return nopClassifier{}, nil
	})

	c, err := Open(Config{Backend: "test-nop", ModelFile: "model", InputSize: 8,
		UseAccelerator: true})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.InputSize() != image.Pt(8, 8) {
		t.Errorf("unexpected input size %v", c.InputSize())
	}

	_, err = Open(Config{Backend: "missing", ModelFile: "model", InputSize: 8})

	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("expected ErrUnknownBackend, got %v", err)
	}

	_, err = Open(Config{Backend: "test-nop", InputSize: 8})

	if err == nil {
		t.Errorf("expected error for missing model file")
	}
}

func TestInputBufferPrepare(t *testing.T) {

	buf := NewInputBuffer(32)
	defer buf.Close()

	img := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer img.Close()

	out, err := buf.Prepare(img)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Cols() != 32 || out.Rows() != 32 {
		t.Errorf("expected 32x32, got %dx%d", out.Cols(), out.Rows())
	}

	gray := gocv.NewMatWithSize(32, 32, gocv.MatTypeCV8UC1)
	defer gray.Close()

	if _, err := buf.Prepare(gray); err == nil {
		t.Errorf("expected error for single channel input")
	}
}
