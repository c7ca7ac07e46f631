// Package imagefilter normalizes cropped plate regions before character
// recognition using OpenCV grayscale, blur and adaptive threshold operations.
package imagefilter

import (
	"fmt"
	"image"

	"go.uber.org/multierr"
	"gocv.io/x/gocv"
)

// Options defines the parameters of the normalization chain
type Options struct {
	// BlurKernel is the width and height of the Gaussian kernel, must be odd
	BlurKernel int
	// BlurSigma is the Gaussian standard deviation in both axes
	BlurSigma float64
	// Binarize enables the adaptive threshold step
	Binarize bool
	// MaxValue is the value given to pixels passing the threshold
	MaxValue float32
	// BlockSize is the size of the pixel neighbourhood used to calculate the
	// threshold, must be odd and greater than 1
	BlockSize int
	// C is subtracted from the weighted neighbourhood mean
	C float32
	// Method selects mean or Gaussian weighting of the neighbourhood
	Method gocv.AdaptiveThresholdType
	// Invert produces dark characters on a light background as white on black
	Invert bool
}

// DefaultOptions returns the settings used for license plate crops
func DefaultOptions() Options {
	return Options{
		BlurKernel: 3,
		BlurSigma:  2.5,
		Binarize:   true,
		MaxValue:   255,
		BlockSize:  101,
		C:          6,
		Method:     gocv.AdaptiveThresholdGaussian,
		Invert:     true,
	}
}

// Validate checks the kernel and block sizes are usable by OpenCV
func (o Options) Validate() error {

	if o.BlurKernel < 1 || o.BlurKernel%2 == 0 {
		return fmt.Errorf("blur kernel must be a positive odd number, got %d", o.BlurKernel)
	}

	if o.Binarize && (o.BlockSize < 3 || o.BlockSize%2 == 0) {
		return fmt.Errorf("threshold block size must be odd and greater than 1, got %d", o.BlockSize)
	}

	return nil
}

// ToGrayscale converts an RGB image to single channel grayscale
func ToGrayscale(src gocv.Mat, dst *gocv.Mat) {
	gocv.CvtColor(src, dst, gocv.ColorRGBToGray)
}

// GaussianBlur blurs src with a square kernel of kernelSize and standard
// deviation sigma
func GaussianBlur(src gocv.Mat, dst *gocv.Mat, kernelSize int, sigma float64) {
	gocv.GaussianBlur(src, dst, image.Pt(kernelSize, kernelSize), sigma, sigma,
		gocv.BorderDefault)
}

// AdaptiveThreshold binarizes a grayscale image using a threshold computed
// over each pixel's blockSize neighbourhood
func AdaptiveThreshold(src gocv.Mat, dst *gocv.Mat, maxValue float32,
	method gocv.AdaptiveThresholdType, invert bool, blockSize int, c float32) {

	typ := gocv.ThresholdBinary

	if invert {
		typ = gocv.ThresholdBinaryInv
	}

	gocv.AdaptiveThreshold(src, dst, maxValue, method, typ, blockSize, c)
}

// Filter runs the normalization chain reusing its intermediate Mats between
// calls.  A Filter is not safe for concurrent use.
type Filter struct {
	opts   Options
	gray   gocv.Mat
	blur   gocv.Mat
	binary gocv.Mat
}

// New returns a Filter for the given options
func New(opts Options) (*Filter, error) {

	err := opts.Validate()

	if err != nil {
		return nil, err
	}

	return &Filter{
		opts:   opts,
		gray:   gocv.NewMat(),
		blur:   gocv.NewMat(),
		binary: gocv.NewMat(),
	}, nil
}

// Options returns the filter settings
func (f *Filter) Options() Options {
	return f.opts
}

// Normalize converts the RGB src to grayscale, blurs it and applies the
// adaptive threshold, writing a 3 channel result to dst so it can be passed
// to a Classifier
func (f *Filter) Normalize(src gocv.Mat, dst *gocv.Mat) error {

	if src.Empty() {
		return fmt.Errorf("cannot normalize empty image")
	}

	ToGrayscale(src, &f.gray)
	GaussianBlur(f.gray, &f.blur, f.opts.BlurKernel, f.opts.BlurSigma)

	out := f.blur

	if f.opts.Binarize {
		AdaptiveThreshold(f.blur, &f.binary, f.opts.MaxValue, f.opts.Method,
			f.opts.Invert, f.opts.BlockSize, f.opts.C)
		out = f.binary
	}

	// gray to 3 channels, all channels equal so RGB and BGR order match
	gocv.CvtColor(out, dst, gocv.ColorGrayToBGR)

	return nil
}

// Close frees the intermediate Mats
func (f *Filter) Close() error {
	return multierr.Combine(f.gray.Close(), f.blur.Close(), f.binary.Close())
}
