package classifier

import (
	"fmt"
	"sort"

	"github.com/swdee/go-alpr/geometry"
)

// Detection is a single object located by a Classifier
type Detection struct {
	// Location of the object, in whichever coordinate space the detection
	// currently belongs to
	Location geometry.Rect
	// Confidence is the probability score in the range [0,1]
	Confidence float32
	// Label is the class name of the object
	Label string
	// Class is the index of Label in the model's label list
	Class int
}

// String returns a readable description of the detection
func (d Detection) String() string {
	return fmt.Sprintf("%s %.2f [%.1f, %.1f, %.1f, %.1f]", d.Label, d.Confidence,
		d.Location.Left, d.Location.Top, d.Location.Right, d.Location.Bottom)
}

// FilterByConfidence returns the detections whose confidence is at least
// threshold, preserving order
func FilterByConfidence(dets []Detection, threshold float32) []Detection {

	out := make([]Detection, 0, len(dets))

	for _, d := range dets {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}

	return out
}

// SortByLeft orders detections left to right by their left edge.  Detections
// sharing a left edge keep their relative order.
func SortByLeft(dets []Detection) {
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Location.Left < dets[j].Location.Left
	})
}

// LabelFor returns the label at index class, or a numeric label when the
// label list does not cover it
func LabelFor(labels []string, class int) string {

	if class >= 0 && class < len(labels) {
		return labels[class]
	}

	return fmt.Sprintf("%d", class)
}
