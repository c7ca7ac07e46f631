package rknn

/*
#cgo LDFLAGS: -lrknnrt
#include "rknn_api.h"
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"os"
	"unsafe"
)

// CoreMask wraps C.rknn_core_mask
type CoreMask int

// rknn_core_mask values used to target which cores on the NPU the model is run
// on.  Multi core masks split supported ops across cores, other ops fall back
// to core 0.
const (
	NPUCoreAuto    CoreMask = C.RKNN_NPU_CORE_AUTO
	NPUCore0       CoreMask = C.RKNN_NPU_CORE_0
	NPUCore1       CoreMask = C.RKNN_NPU_CORE_1
	NPUCore2       CoreMask = C.RKNN_NPU_CORE_2
	NPUCore01      CoreMask = C.RKNN_NPU_CORE_0_1
	NPUCore012     CoreMask = C.RKNN_NPU_CORE_0_1_2
	NPUSkipSetCore CoreMask = 9999
)

// coreMaskForThreads maps a requested degree of parallelism onto the NPU
// cores of an RK3588
func coreMaskForThreads(n int) CoreMask {
	switch {
	case n <= 0:
		return NPUCoreAuto
	case n == 1:
		return NPUCore0
	case n == 2:
		return NPUCore01
	default:
		return NPUCore012
	}
}

// ErrorCode wraps the return codes of the C API
type ErrorCode int

// error code values returned by the C API
const (
	Success              ErrorCode = C.RKNN_SUCC
	ErrFail              ErrorCode = C.RKNN_ERR_FAIL
	ErrTimeout           ErrorCode = C.RKNN_ERR_TIMEOUT
	ErrDeviceUnavailable ErrorCode = C.RKNN_ERR_DEVICE_UNAVAILABLE
	ErrMallocFail        ErrorCode = C.RKNN_ERR_MALLOC_FAIL
	ErrParamInvalid      ErrorCode = C.RKNN_ERR_PARAM_INVALID
	ErrModelInvalid      ErrorCode = C.RKNN_ERR_MODEL_INVALID
	ErrCtxInvalid        ErrorCode = C.RKNN_ERR_CTX_INVALID
	ErrInputInvalid      ErrorCode = C.RKNN_ERR_INPUT_INVALID
	ErrOutputInvalid     ErrorCode = C.RKNN_ERR_OUTPUT_INVALID
	ErrDeviceMismatch    ErrorCode = C.RKNN_ERR_DEVICE_UNMATCH
	ErrPlatformMismatch  ErrorCode = C.RKNN_ERR_TARGET_PLATFORM_UNMATCH
)

var errorText = map[ErrorCode]string{
	Success:              "success",
	ErrFail:              "failed",
	ErrTimeout:           "timed out",
	ErrDeviceUnavailable: "NPU unavailable",
	ErrMallocFail:        "out of memory",
	ErrParamInvalid:      "invalid parameter",
	ErrModelInvalid:      "invalid model",
	ErrCtxInvalid:        "invalid context",
	ErrInputInvalid:      "invalid input",
	ErrOutputInvalid:     "invalid output",
	ErrDeviceMismatch:    "driver does not match the runtime library",
	ErrPlatformMismatch:  "model was compiled for another platform",
}

// String describes the error code
func (e ErrorCode) String() string {
	if text, ok := errorText[e]; ok {
		return text
	}
	return fmt.Sprintf("unknown error code %d", int(e))
}

// callError formats a failed C call
func callError(fn string, ret C.int) error {
	return fmt.Errorf("C.%s failed with code %d, error: %s", fn, int(ret),
		ErrorCode(ret).String())
}

// runtime holds the RKNN context for one loaded model
type runtime struct {
	// ctx is the C runtime context
	ctx C.rknn_context
	// numInputs and numOutputs are the model tensor counts
	numInputs  uint32
	numOutputs uint32
	// inputAttrs caches the Input Tensor Attributes of the Model
	inputAttrs []tensorAttr
	// outputAttrs caches the Output Tensor Attributes of the Model
	outputAttrs []tensorAttr
}

// newRuntime loads the RKNN compiled model file and queries its tensors
func newRuntime(modelFile string, core CoreMask) (*runtime, error) {

	info, err := os.Stat(modelFile)

	if err != nil {
		return nil, fmt.Errorf("model file does not exist at %s, error: %w",
			modelFile, err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("model file %s is a directory", modelFile)
	}

	r := &runtime{}

	cModelFile := C.CString(modelFile)
	defer C.free(unsafe.Pointer(cModelFile))

	ret := C.rknn_init(&r.ctx, unsafe.Pointer(cModelFile), 0, 0, nil)

	if ret != C.RKNN_SUCC {
		return nil, callError("rknn_init", ret)
	}

	if core != NPUSkipSetCore {
		err = r.setCoreMask(core)

		if err != nil {
			r.close()
			return nil, err
		}
	}

	err = r.queryIONumber()

	if err != nil {
		r.close()
		return nil, err
	}

	r.inputAttrs, err = r.queryTensors(C.RKNN_QUERY_INPUT_ATTR, r.numInputs)

	if err != nil {
		r.close()
		return nil, err
	}

	r.outputAttrs, err = r.queryTensors(C.RKNN_QUERY_OUTPUT_ATTR, r.numOutputs)

	if err != nil {
		r.close()
		return nil, err
	}

	return r, nil
}

// setCoreMask wraps C.rknn_set_core_mask and specifies the NPU core
// configuration to run the model on
func (r *runtime) setCoreMask(mask CoreMask) error {

	ret := C.rknn_set_core_mask(r.ctx, C.rknn_core_mask(mask))

	if ret != C.RKNN_SUCC {
		return callError("rknn_set_core_mask", ret)
	}

	return nil
}

// queryIONumber caches the number of Input and Output tensors of the model
func (r *runtime) queryIONumber() error {

	var cIONum C.rknn_input_output_num

	ret := C.rknn_query(r.ctx, C.RKNN_QUERY_IN_OUT_NUM, unsafe.Pointer(&cIONum),
		C.uint(C.sizeof_rknn_input_output_num))

	if ret != C.RKNN_SUCC {
		return callError("rknn_query", ret)
	}

	r.numInputs = uint32(cIONum.n_input)
	r.numOutputs = uint32(cIONum.n_output)

	return nil
}

// close wraps C.rknn_destroy which unloads the model and releases all C
// resources
func (r *runtime) close() error {

	ret := C.rknn_destroy(r.ctx)

	if ret != C.RKNN_SUCC {
		return callError("rknn_destroy", ret)
	}

	return nil
}

// inputSize returns the width and height of the first input tensor
func (r *runtime) inputSize() (int, int) {

	attr := r.inputAttrs[0]

	// NCHW by default
	height, width := attr.Dims[2], attr.Dims[3]

	if attr.Fmt == TensorNHWC {
		height, width = attr.Dims[1], attr.Dims[2]
	}

	return int(width), int(height)
}
