package rknn

/*
#include "rknn_api.h"
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"strings"
	"unsafe"
)

// TensorFormat wraps C.rknn_tensor_format
type TensorFormat int

const (
	TensorNCHW      TensorFormat = C.RKNN_TENSOR_NCHW
	TensorNHWC      TensorFormat = C.RKNN_TENSOR_NHWC
	TensorNC1HWC2   TensorFormat = C.RKNN_TENSOR_NC1HWC2
	TensorUndefined TensorFormat = C.RKNN_TENSOR_UNDEFINED
)

// TensorType wraps C.rknn_tensor_type
type TensorType int

const (
	TensorFloat32 TensorType = C.RKNN_TENSOR_FLOAT32
	TensorFloat16 TensorType = C.RKNN_TENSOR_FLOAT16
	TensorInt8    TensorType = C.RKNN_TENSOR_INT8
	TensorUint8   TensorType = C.RKNN_TENSOR_UINT8
)

// maxDims is the maximum number of dimensions of a tensor
const maxDims = C.RKNN_MAX_DIMS

// tensorAttr holds the fields of C.rknn_tensor_attr used for decoding
type tensorAttr struct {
	Index uint32
	NDims uint32
	Dims  [maxDims]uint32
	Name  string
	Fmt   TensorFormat
	Type  TensorType
	ZP    int32
	Scale float32
}

// String returns the tensor attributes formatted as a string
func (a tensorAttr) String() string {
	return fmt.Sprintf("index=%d, name=%s, n_dims=%d, dims=%v, fmt=%d, type=%d, zp=%d, scale=%f",
		a.Index, a.Name, a.NDims, a.Dims[:a.NDims], a.Fmt, a.Type, a.ZP, a.Scale)
}

// queryTensors gets the input or output tensor attributes of the model
func (r *runtime) queryTensors(cmd C.rknn_query_cmd, count uint32) ([]tensorAttr, error) {

	attrs := make([]tensorAttr, count)

	for i := uint32(0); i < count; i++ {

		var cAttr C.rknn_tensor_attr
		cAttr.index = C.uint32_t(i)

		ret := C.rknn_query(r.ctx, cmd, unsafe.Pointer(&cAttr),
			C.uint(unsafe.Sizeof(cAttr)))

		if ret != C.RKNN_SUCC {
			return nil, callError("rknn_query", ret)
		}

		attrs[i] = convertTensorAttr(&cAttr)
	}

	return attrs, nil
}

// convertTensorAttr converts a C.rknn_tensor_attr to a Go tensorAttr
func convertTensorAttr(cAttr *C.rknn_tensor_attr) tensorAttr {

	name := string(C.GoBytes(unsafe.Pointer(&cAttr.name[0]), C.RKNN_MAX_NAME_LEN))

	// trim at the first null character
	if idx := strings.IndexByte(name, 0); idx != -1 {
		name = name[:idx]
	}

	return tensorAttr{
		Index: uint32(cAttr.index),
		NDims: uint32(cAttr.n_dims),
		Dims:  *(*[maxDims]uint32)(unsafe.Pointer(&cAttr.dims)),
		Name:  name,
		Fmt:   TensorFormat(cAttr.fmt),
		Type:  TensorType(cAttr._type),
		ZP:    int32(cAttr.zp),
		Scale: float32(cAttr.scale),
	}
}
