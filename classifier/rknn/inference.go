package rknn

/*
#include "rknn_api.h"
#include <stdlib.h>
#include <string.h>
*/
import "C"
import (
	"fmt"
	"unsafe"

	"github.com/x448/float16"
	"gocv.io/x/gocv"
)

var f16LookupTable [65536]float32

func init() {
	// precompute float16 lookup table for faster conversion to float32
	for i := range f16LookupTable {
		f16LookupTable[i] = float16.Frombits(uint16(i)).Float32()
	}
}

// output is one model output tensor copied into Go memory.  Quantized
// tensors are kept as int8, fp16 tensors are widened to float32.
type output struct {
	BufInt   []int8
	BufFloat []float32
	Attr     tensorAttr
}

// run passes the RGB uint8 Mat to the model as NHWC input, runs inference
// and copies the outputs out of C memory
func (r *runtime) run(img gocv.Mat) ([]output, error) {

	if !img.IsContinuous() {
		img = img.Clone()
		defer img.Close()
	}

	data, err := img.DataPtrUint8()

	if err != nil {
		return nil, fmt.Errorf("error getting data pointer to Mat: %w", err)
	}

	var cInput C.rknn_input
	cInput.index = 0
	cInput.buf = unsafe.Pointer(&data[0])
	cInput.size = C.uint32_t(len(data))
	cInput.pass_through = 0
	cInput._type = C.rknn_tensor_type(TensorUint8)
	cInput.fmt = C.rknn_tensor_format(TensorNHWC)

	ret := C.rknn_inputs_set(r.ctx, 1, &cInput)

	if ret != C.RKNN_SUCC {
		return nil, callError("rknn_inputs_set", ret)
	}

	ret = C.rknn_run(r.ctx, nil)

	if ret < 0 {
		return nil, callError("rknn_run", ret)
	}

	cOutputs := make([]C.rknn_output, r.numOutputs)

	for i := range cOutputs {
		cOutputs[i].index = C.uint32_t(i)
		cOutputs[i].want_float = 0
	}

	ret = C.rknn_outputs_get(r.ctx, C.uint32_t(r.numOutputs), &cOutputs[0], nil)

	if ret < 0 {
		return nil, callError("rknn_outputs_get", ret)
	}

	outs := make([]output, r.numOutputs)

	for i, cOut := range cOutputs {
		outs[i].Attr = r.outputAttrs[i]

		switch r.outputAttrs[i].Type {
		case TensorFloat16:
			raw := unsafe.Slice((*uint16)(cOut.buf), int(cOut.size)/2)
			outs[i].BufFloat = make([]float32, len(raw))

			for j, v := range raw {
				outs[i].BufFloat[j] = f16LookupTable[v]
			}

		case TensorFloat32:
			raw := unsafe.Slice((*float32)(cOut.buf), int(cOut.size)/4)
			outs[i].BufFloat = append([]float32(nil), raw...)

		default:
			raw := unsafe.Slice((*int8)(cOut.buf), int(cOut.size))
			outs[i].BufInt = append([]int8(nil), raw...)
		}
	}

	ret = C.rknn_outputs_release(r.ctx, C.uint32_t(r.numOutputs), &cOutputs[0])

	if ret != C.RKNN_SUCC {
		return outs, callError("rknn_outputs_release", ret)
	}

	return outs, nil
}
