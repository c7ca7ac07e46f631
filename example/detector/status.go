package main

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/swdee/go-alpr/pipeline"
	"github.com/swdee/go-alpr/render"
	"gocv.io/x/gocv"
)

const (
	// size of the TTF font used for plate text
	ttfFontSize = 20
)

// status draws the most recent plate reading and timing onto the preview
type status struct {
	mu   sync.Mutex
	last pipeline.Result
	font render.Font
	ttf  *render.TTFText
}

// newStatus creates the status overlay, plate text is drawn with the TTF
// font when one is given so characters outside the Hershey fonts render
func newStatus(fontFile string) (*status, error) {

	s := &status{
		font: render.DefaultFont(),
	}

	if fontFile == "" {
		return s, nil
	}

	var err error
	s.ttf, err = render.LoadTTF(fontFile, ttfFontSize, render.White)

	if err != nil {
		return nil, err
	}

	return s, nil
}

// OnResult keeps the result for the next repaint
func (s *status) OnResult(r pipeline.Result) {
	s.mu.Lock()
	s.last = r
	s.mu.Unlock()
}

// Draw renders the plate text below each plate and a timing line at the
// top of the canvas
func (s *status) Draw(canvas *gocv.Mat) {

	s.mu.Lock()
	r := s.last
	s.mu.Unlock()

	for _, p := range r.Plates {
		if p.Text == "" {
			continue
		}

		loc := p.Location.ImageRect()
		s.putText(canvas, p.Text, image.Pt(loc.Min.X, loc.Max.Y))
	}

	line := fmt.Sprintf("frame %d %dx%d crop %dx%d inference %s",
		r.Seq, r.FrameSize.X, r.FrameSize.Y, r.CropSize.X, r.CropSize.Y,
		r.InferenceTime.Round(100*time.Microsecond))

	if r.Err != nil {
		line = fmt.Sprintf("frame %d error: %v", r.Seq, r.Err)
	}

	render.HeaderLine(canvas, line, s.font)
}

// putText draws plate text below the plate box
func (s *status) putText(canvas *gocv.Mat, text string, pt image.Point) {

	if s.ttf == nil {
		size := s.font.Measure(text)
		gocv.PutTextWithParams(canvas, text, image.Pt(pt.X, pt.Y+size.Y+s.font.TopPad),
			s.font.Face, s.font.Scale, render.Yellow, s.font.Thickness, s.font.LineType, false)
		return
	}

	size := s.ttf.Measure(text)
	s.ttf.Put(canvas, text, pt.X, pt.Y+size.Y)
}

// Close releases the font face
func (s *status) Close() error {
	if s.ttf != nil {
		return s.ttf.Close()
	}
	return nil
}
