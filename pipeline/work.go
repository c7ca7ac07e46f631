package pipeline

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"time"

	"github.com/swdee/go-alpr/classifier"
	"github.com/swdee/go-alpr/geometry"
	"github.com/swdee/go-alpr/preprocess"
	"gocv.io/x/gocv"
)

// ErrClassifierPanic wraps a panic recovered from a classifier call
var ErrClassifierPanic = errors.New("classifier panicked")

// padColor fills warped areas outside the source image
var padColor = color.RGBA{A: 255}

// cropCache holds the frame to stage-1 input warper for one frame size
type cropCache struct {
	frameSize image.Point
	warper    *preprocess.Warper
}

// Close frees the cached warper
func (c *cropCache) Close() error {
	if c == nil || c.warper == nil {
		return nil
	}

	return c.warper.Close()
}

// frameWarper returns the cached frame to crop warper, rebuilding it when the
// frame size changes
func (p *Processor) frameWarper(frameSize image.Point) (*preprocess.Warper, error) {

	if p.crop != nil && p.crop.frameSize == frameSize {
		return p.crop.warper, nil
	}

	in := p.detector.InputSize()

	t, err := geometry.Compute(frameSize.X, frameSize.Y, in.X, in.Y,
		p.cfg.SensorOrientation, p.cfg.MaintainAspect)

	if err != nil {
		return nil, fmt.Errorf("error computing frame to crop transform: %w", err)
	}

	w, err := preprocess.NewWarper(t, in.X, in.Y, padColor)

	if err != nil {
		return nil, fmt.Errorf("error creating frame to crop warper: %w", err)
	}

	p.crop.Close()
	p.crop = &cropCache{frameSize: frameSize, warper: w}

	p.log.Infow("frame to crop transform", "frame", frameSize, "crop", in,
		"orientation", p.cfg.SensorOrientation, "transform", t.String())

	return w, nil
}

// process runs detection and recognition on the frame in frameBuf then
// returns the gate to idle
func (p *Processor) process(seq int64) {

	start := time.Now()
	frameSize := image.Pt(p.frameBuf.Cols(), p.frameBuf.Rows())

	result := Result{
		Seq:       seq,
		FrameSize: frameSize,
		CropSize:  p.detector.InputSize(),
	}

	dets, latency, err := p.detect(frameSize)

	result.InferenceTime = latency
	p.lastLatency.Store(latency)

	if err != nil {
		p.failed.Inc()
		p.log.Errorw("plate detection failed", "seq", seq, "error", err)

		result.Err = err
		result.ProcessTime = time.Since(start)

		p.finish(result)
		return
	}

	tracked := make([]classifier.Detection, 0, len(dets))

	for _, d := range dets {
		if d.Confidence < p.cfg.DetectThreshold {
			continue
		}

		tracked = append(tracked, d)

		plate := p.recognize(d)

		if plate.Err != nil {
			p.log.Warnw("plate recognition skipped", "seq", seq,
				"region", d.Location.String(), "error", plate.Err)
		}

		tracked = append(tracked, plate.Characters...)
		result.Plates = append(result.Plates, plate)

		if plate.Text != "" {
			result.Text = plate.Text
		}
	}

	if p.tracker != nil {
		p.tracker.Update(tracked, seq)
	}

	result.Detections = tracked
	result.ProcessTime = time.Since(start)

	p.log.Debugw("frame processed", "seq", seq, "plates", len(result.Plates),
		"text", result.Text, "inference", latency, "total", result.ProcessTime)

	p.finish(result)
}

// finish releases the gate, requests a repaint and publishes the result
func (p *Processor) finish(r Result) {
	p.busy.Store(false)
	p.invalidate()
	p.publish(r)
}

// detect warps the frame into the stage-1 input and returns the detections
// mapped back to frame coordinates and clamped to the frame
func (p *Processor) detect(frameSize image.Point) ([]classifier.Detection,
	time.Duration, error) {

	w, err := p.frameWarper(frameSize)

	if err != nil {
		return nil, 0, err
	}

	w.Warp(p.frameBuf, &p.cropBuf)

	start := time.Now()
	dets, err := safeRecognize(p.detector, p.cropBuf)
	latency := time.Since(start)

	if err != nil {
		return nil, latency, fmt.Errorf("stage-1 classifier: %w", err)
	}

	inv := w.Inverse()

	for i := range dets {
		dets[i].Location = inv.MapRect(dets[i].Location).
			Clamp(float64(frameSize.X), float64(frameSize.Y))
	}

	return dets, latency, nil
}

// ocrDestSize returns the region to OCR input size.  Width is the OCR input
// size and height follows the region aspect ratio without exceeding it.
func ocrDestSize(ocrSize int, region image.Rectangle) image.Point {

	h := ocrSize

	if region.Dx() > 0 {
		h = ocrSize * region.Dy() / region.Dx()
	}

	if h > ocrSize {
		h = ocrSize
	}

	return image.Pt(ocrSize, h)
}

// recognize reads the characters inside a plate region.  A degenerate region
// or failed classifier call returns a Plate with Err set and no characters.
func (p *Processor) recognize(d classifier.Detection) Plate {

	plate := Plate{Location: d.Location, Confidence: d.Confidence}

	region := d.Location.ImageRect().Intersect(
		image.Rect(0, 0, p.frameBuf.Cols(), p.frameBuf.Rows()))

	if region.Empty() {
		plate.Err = fmt.Errorf("empty region: %w", geometry.ErrDegenerate)
		return plate
	}

	ocrSize := p.ocr.InputSize()
	dest := ocrDestSize(ocrSize.X, region)

	t, err := geometry.Compute(region.Dx(), region.Dy(), dest.X, dest.Y,
		p.cfg.SensorOrientation, false)

	if err != nil {
		plate.Err = fmt.Errorf("region %v to %v: %w", region, dest, err)
		return plate
	}

	// the region is drawn into the top of a full size OCR canvas
	w, err := preprocess.NewWarper(t, ocrSize.X, ocrSize.Y, padColor)

	if err != nil {
		plate.Err = fmt.Errorf("region warper: %w", err)
		return plate
	}

	defer w.Close()

	roi := p.frameBuf.Region(region)
	w.Warp(roi, &p.ocrCrop)
	roi.Close()

	err = p.filter.Normalize(p.ocrCrop, &p.ocrInput)

	if err != nil {
		plate.Err = fmt.Errorf("normalize region: %w", err)
		return plate
	}

	chars, err := safeRecognize(p.ocr, p.ocrInput)

	if err != nil {
		plate.Err = fmt.Errorf("stage-2 classifier: %w", err)
		return plate
	}

	classifier.SortByLeft(chars)
	chars = classifier.FilterByConfidence(chars, p.cfg.RecognizeThreshold)

	inv := w.Inverse()
	text := strings.Builder{}

	for i := range chars {
		chars[i].Location = inv.MapRect(chars[i].Location).
			Offset(float64(region.Min.X), float64(region.Min.Y))
		text.WriteString(chars[i].Label)
	}

	plate.Characters = chars
	plate.Text = text.String()

	return plate
}

// safeRecognize calls the classifier converting a panic into an error
func safeRecognize(c classifier.Classifier, img gocv.Mat) (dets []classifier.Detection,
	err error) {

	defer func() {
		if r := recover(); r != nil {
			dets = nil
			err = fmt.Errorf("%w: %v", ErrClassifierPanic, r)
		}
	}()

	return c.Recognize(img)
}
