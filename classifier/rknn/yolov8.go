package rknn

import (
	"fmt"
	"math"

	"github.com/swdee/go-alpr/classifier"
	"github.com/swdee/go-alpr/geometry"
)

// decodeYOLOv8 turns the int8 outputs of a YOLOv8 model exported for RKNN
// into candidate boxes in model input pixel space.  The model has three
// branches, each with a DFL box tensor, a class score tensor and optionally a
// score sum tensor used for quick filtering.
func decodeYOLOv8(outs []output, inputHeight int, numClasses int,
	threshold float32) ([]classifier.Candidate, error) {

	perBranch := len(outs) / 3

	if perBranch < 2 || len(outs)%3 != 0 {
		return nil, fmt.Errorf("unexpected YOLOv8 output count %d", len(outs))
	}

	for i, o := range outs {
		if o.BufInt == nil {
			return nil, fmt.Errorf("output %d is not int8 quantized", i)
		}
	}

	// distribution focal loss (DFL) length
	dflLen := int(outs[0].Attr.Dims[1] / 4)

	cands := make([]classifier.Candidate, 0)

	for i := 0; i < 3; i++ {

		box := outs[i*perBranch]
		score := outs[i*perBranch+1]

		var scoreSum *output

		if perBranch == 3 {
			scoreSum = &outs[i*perBranch+2]
		}

		gridH := int(box.Attr.Dims[2])
		gridW := int(box.Attr.Dims[3])

		if gridH == 0 || gridW == 0 {
			return nil, fmt.Errorf("output %d has empty grid", i*perBranch)
		}

		stride := inputHeight / gridH

		cands = processStride(cands, box, score, scoreSum, gridH, gridW, stride,
			dflLen, numClasses, threshold)
	}

	return cands, nil
}

// processStride decodes one branch of the model and appends the boxes
// passing threshold to cands
func processStride(cands []classifier.Candidate, box, score output,
	scoreSum *output, gridH, gridW, stride, dflLen, numClasses int,
	threshold float32) []classifier.Candidate {

	gridLen := gridH * gridW
	scoreThresI8 := qntF32ToAffine(threshold, score.Attr.ZP, score.Attr.Scale)

	var scoreSumThresI8 int8

	if scoreSum != nil {
		scoreSumThresI8 = qntF32ToAffine(threshold, scoreSum.Attr.ZP, scoreSum.Attr.Scale)
	}

	beforeDFL := make([]float32, 4*dflLen)

	for i := 0; i < gridH; i++ {
		for j := 0; j < gridW; j++ {

			offset := i*gridW + j
			maxClassID := -1

			// quick filtering using score sum
			if scoreSum != nil && scoreSum.BufInt[offset] < scoreSumThresI8 {
				continue
			}

			maxScore := int8(-score.Attr.ZP)

			for c := 0; c < numClasses; c++ {
				v := score.BufInt[offset+c*gridLen]

				if v > scoreThresI8 && v > maxScore {
					maxScore = v
					maxClassID = c
				}
			}

			if maxClassID < 0 {
				continue
			}

			for k := 0; k < dflLen*4; k++ {
				beforeDFL[k] = deqntAffineToF32(box.BufInt[offset+k*gridLen],
					box.Attr.ZP, box.Attr.Scale)
			}

			dist := computeDFL(beforeDFL, dflLen)

			x1 := (-dist[0] + float32(j) + 0.5) * float32(stride)
			y1 := (-dist[1] + float32(i) + 0.5) * float32(stride)
			x2 := (dist[2] + float32(j) + 0.5) * float32(stride)
			y2 := (dist[3] + float32(i) + 0.5) * float32(stride)

			cands = append(cands, classifier.Candidate{
				Box: geometry.Rect{
					Left:   float64(x1),
					Top:    float64(y1),
					Right:  float64(x2),
					Bottom: float64(y2),
				},
				Score: deqntAffineToF32(maxScore, score.Attr.ZP, score.Attr.Scale),
				Class: maxClassID,
			})
		}
	}

	return cands
}

// deqntAffineToF32 converts a quantized int8 value back to a float32 using
// the provided zero point and scale
func deqntAffineToF32(qnt int8, zp int32, scale float32) float32 {
	return (float32(qnt) - float32(zp)) * scale
}

// qntF32ToAffine converts a float32 value to an int8 using quantization
// parameters: zero point and scale
func qntF32ToAffine(f32 float32, zp int32, scale float32) int8 {

	dstVal := (f32 / scale) + float32(zp)

	switch {
	case dstVal <= -128:
		return -128
	case dstVal >= 127:
		return 127
	}

	return int8(dstVal)
}

// computeDFL calculates the Distribution Focal Loss (DFL), the expected
// distance of each box side from the anchor point
func computeDFL(tensor []float32, dflLen int) [4]float32 {

	var box [4]float32

	for b := 0; b < 4; b++ {

		expSum := float32(0)
		accSum := float32(0)

		for i := 0; i < dflLen; i++ {
			e := float32(math.Exp(float64(tensor[i+b*dflLen])))
			expSum += e
			accSum += e * float32(i)
		}

		box[b] = accSum / expSum
	}

	return box
}
