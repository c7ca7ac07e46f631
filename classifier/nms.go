package classifier

import (
	"github.com/swdee/go-alpr/geometry"
)

// Candidate is a decoded box before score filtering and Non-Maximum
// Suppression, in model input pixel space
type Candidate struct {
	Box   geometry.Rect
	Score float32
	Class int
}

// Select applies the score threshold and class-wise Non-Maximum Suppression
// to candidate boxes and returns at most maxDets detections ordered by
// descending score.  Boxes are clamped to the size x size input space.
func Select(cands []Candidate, labels []string, scoreThresh, nmsThresh float32,
	maxDets int, size int) []Detection {

	scores := make([]float32, 0, len(cands))
	kept := make([]Candidate, 0, len(cands))

	for _, c := range cands {
		if c.Score >= scoreThresh {
			kept = append(kept, c)
			scores = append(scores, c.Score)
		}
	}

	validCount := len(kept)

	if validCount == 0 {
		return nil
	}

	// indexArray keeps the position of each candidate as the scores are
	// sorted, suppressed entries are set to -1
	indexArray := make([]int, validCount)

	for i := range indexArray {
		indexArray[i] = i
	}

	quickSortIndiceInverse(scores, 0, validCount-1, indexArray)

	classSet := make(map[int]bool)

	for _, c := range kept {
		classSet[c.Class] = true
	}

	for c := range classSet {
		nms(validCount, kept, indexArray, c, nmsThresh)
	}

	dim := float64(size)
	dets := make([]Detection, 0)

	for i := 0; i < validCount; i++ {
		if indexArray[i] == -1 || len(dets) >= maxDets {
			continue
		}

		c := kept[indexArray[i]]

		dets = append(dets, Detection{
			Location:   c.Box.Clamp(dim, dim),
			Confidence: scores[i],
			Label:      LabelFor(labels, c.Class),
			Class:      c.Class,
		})
	}

	return dets
}

// quickSortIndiceInverse is a quick sort algorithm that sorts the scores
// in descending order and synchronously updates the indices vector to track
// the reordering of elements
func quickSortIndiceInverse(input []float32, left int, right int, indices []int) int {

	var key float32
	var keyIndex int

	low := left
	high := right

	if left < right {
		keyIndex = indices[left]
		key = input[left]

		for low < high {
			for low < high && input[high] <= key {
				high--
			}

			input[low] = input[high]
			indices[low] = indices[high]

			for low < high && input[low] >= key {
				low++
			}

			input[high] = input[low]
			indices[high] = indices[low]
		}

		input[low] = key
		indices[low] = keyIndex

		quickSortIndiceInverse(input, left, low-1, indices)
		quickSortIndiceInverse(input, low+1, right, indices)
	}

	return low
}

// nms implements a Non-Maximum Suppression (NMS) algorithm over the boxes of
// a single class.  order is the score sorted index array and suppressed
// boxes are marked with -1.
func nms(validCount int, cands []Candidate, order []int, filterID int,
	threshold float32) {

	for i := 0; i < validCount; i++ {

		n := order[i]

		if n == -1 || cands[n].Class != filterID {
			continue
		}

		for j := i + 1; j < validCount; j++ {
			m := order[j]

			if m == -1 || cands[m].Class != filterID {
				continue
			}

			if float32(cands[n].Box.IoU(cands[m].Box)) > threshold {
				order[j] = -1
			}
		}
	}
}
