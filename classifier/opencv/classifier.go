// Package opencv runs darknet YOLOv4-tiny models with the OpenCV DNN module.
package opencv

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/swdee/go-alpr/classifier"
	"github.com/swdee/go-alpr/geometry"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// BackendName is the name the backend registers under
const BackendName = "opencv"

func init() {
	classifier.Register(BackendName, Open)
}

// Classifier is a darknet YOLO network loaded into OpenCV
type Classifier struct {
	cfg    classifier.Config
	labels []string
	net    gocv.Net
	// outNames are the unconnected output layers of the network
	outNames []string
	input    *classifier.InputBuffer
	threads  int
	log      *zap.SugaredLogger
	mu       sync.Mutex
}

// Open reads the darknet weights (ModelFile) and network config (ConfigFile)
func Open(cfg classifier.Config, labels []string) (classifier.Classifier, error) {

	if cfg.ConfigFile == "" {
		return nil, errors.New("darknet network config file not set")
	}

	net := gocv.ReadNet(cfg.ModelFile, cfg.ConfigFile)

	if net.Empty() {
		return nil, fmt.Errorf("failed to load network %s", cfg.ModelFile)
	}

	c := &Classifier{
		cfg:    cfg,
		labels: labels,
		net:    net,
		input:  classifier.NewInputBuffer(cfg.InputSize),
		log:    cfg.Logger,
	}

	c.selectBackend(false)

	layers := net.GetLayerNames()

	for _, id := range net.GetUnconnectedOutLayers() {
		// layer ids are 1 based
		if id > 0 && id <= len(layers) {
			c.outNames = append(c.outNames, layers[id-1])
		}
	}

	if len(c.outNames) == 0 {
		c.Close()
		return nil, errors.New("network has no output layers")
	}

	return c, nil
}

// selectBackend sets the preferable backend and target of the network
func (c *Classifier) selectBackend(useCUDA bool) {

	if useCUDA {
		c.net.SetPreferableBackend(gocv.NetBackendCUDA)
		c.net.SetPreferableTarget(gocv.NetTargetCUDA)
		return
	}

	c.net.SetPreferableBackend(gocv.NetBackendDefault)
	c.net.SetPreferableTarget(gocv.NetTargetCPU)
}

// Recognize runs the network on img and returns detections in input space
func (c *Classifier) Recognize(img gocv.Mat) ([]classifier.Detection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	in, err := c.input.Prepare(img)

	if err != nil {
		return nil, err
	}

	size := c.cfg.InputSize

	// the input is already RGB so channels are not swapped
	blob := gocv.BlobFromImage(in, 1.0/255.0, image.Pt(size, size),
		gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	c.net.SetInput(blob, "")
	outs := c.net.ForwardLayers(c.outNames)

	defer func() {
		for _, o := range outs {
			o.Close()
		}
	}()

	cands := make([]classifier.Candidate, 0)

	for _, out := range outs {
		cands = appendDarknetCandidates(cands, out, size, c.cfg.ScoreThreshold)
	}

	return classifier.Select(cands, c.labels, c.cfg.ScoreThreshold,
		c.cfg.NMSThreshold, c.cfg.MaxDetections, size), nil
}

// appendDarknetCandidates decodes a YOLO region layer output where each row
// holds normalized center x, center y, width, height, objectness and the
// class scores
func appendDarknetCandidates(cands []classifier.Candidate, out gocv.Mat,
	size int, threshold float32) []classifier.Candidate {

	cols := out.Cols()

	if cols <= 5 {
		return cands
	}

	rows := make([][]float32, out.Rows())

	for i := range rows {
		rows[i] = make([]float32, cols)

		for j := 0; j < cols; j++ {
			rows[i][j] = out.GetFloatAt(i, j)
		}
	}

	return decodeRows(cands, rows, size, threshold)
}

// decodeRows converts darknet rows into candidates scaled to size pixels
func decodeRows(cands []classifier.Candidate, rows [][]float32, size int,
	threshold float32) []classifier.Candidate {

	dim := float64(size)

	for _, row := range rows {

		objectness := row[4]

		if objectness < threshold {
			continue
		}

		bestClass := -1
		bestScore := float32(0)

		for k, s := range row[5:] {
			if s > bestScore {
				bestScore = s
				bestClass = k
			}
		}

		// region layer class scores already include objectness
		score := bestScore

		if bestClass < 0 || score < threshold {
			continue
		}

		cx, cy := float64(row[0])*dim, float64(row[1])*dim
		w, h := float64(row[2])*dim, float64(row[3])*dim

		cands = append(cands, classifier.Candidate{
			Box:   geometry.RectFromCenter(cx, cy, w, h),
			Score: score,
			Class: bestClass,
		})
	}

	return cands
}

// SetUseAccelerator switches the network between the CUDA and CPU targets
func (c *Classifier) SetUseAccelerator(use bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.selectBackend(use)
	c.log.Infow("opencv backend selected", "cuda", use)

	return nil
}

// SetNumThreads records the thread count.  OpenCV sizes its own thread pool
// so the value is informational only.
func (c *Classifier) SetNumThreads(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.threads = n
	c.log.Debugw("opencv uses its global thread pool", "requested", n)

	return nil
}

// InputSize returns the network input dimensions
func (c *Classifier) InputSize() image.Point {
	return image.Pt(c.cfg.InputSize, c.cfg.InputSize)
}

// Labels returns the class labels
func (c *Classifier) Labels() []string {
	return c.labels
}

// Close releases the network
func (c *Classifier) Close() error {
	return multierr.Combine(c.net.Close(), c.input.Close())
}
