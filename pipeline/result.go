package pipeline

import (
	"image"
	"time"

	"github.com/swdee/go-alpr/classifier"
	"github.com/swdee/go-alpr/geometry"
)

// Plate is the reading of one stage-1 region
type Plate struct {
	// Text is the concatenation of the kept character labels in left to
	// right order
	Text string
	// Location of the plate in frame coordinates
	Location   geometry.Rect
	Confidence float32
	// Characters are the kept character detections in frame coordinates
	Characters []classifier.Detection
	// Err is set when character recognition of the region failed or was
	// skipped
	Err error
}

// Result is published for every frame accepted by the Processor
type Result struct {
	// Seq is the sequence number of the processed frame
	Seq    int64
	Plates []Plate
	// Text is the last recognized plate string
	Text string
	// InferenceTime is the wall clock time of the stage-1 classifier call
	InferenceTime time.Duration
	// ProcessTime is the time taken for the whole frame
	ProcessTime time.Duration
	FrameSize   image.Point
	CropSize    image.Point
	// Detections is the ordered list handed to the tracker
	Detections []classifier.Detection
	// Err is set when stage-1 detection failed and nothing was tracked
	Err error
}

// Stats are the frame counters of a Processor
type Stats struct {
	// Accepted is the number of frames processed or in flight
	Accepted int64
	// Dropped is the number of frames skipped because the processor was busy
	Dropped int64
	// ConsecutiveDrops is the number of frames dropped since the last
	// accepted frame
	ConsecutiveDrops int64
	// Failed is the number of accepted frames whose stage-1 detection failed
	Failed int64
	// LastLatency is the stage-1 inference time of the last processed frame
	LastLatency time.Duration
}

// Listener receives the Result of each processed frame.  It is called from
// the processing goroutine and should return promptly.
type Listener interface {
	OnResult(Result)
}

// ListenerFunc adapts a function to a Listener
type ListenerFunc func(Result)

// OnResult calls f(r)
func (f ListenerFunc) OnResult(r Result) {
	f(r)
}

// Tracker receives the frame space detections of each processed frame
type Tracker interface {
	Update(detections []classifier.Detection, timestamp int64)
}

// Overlay is asked to repaint when new frames arrive and after each update
type Overlay interface {
	PostInvalidate()
}
