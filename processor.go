package rotodet

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"sync"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
	"github.com/esimov/rotodet/utils"
)

// Processor options
type Processor struct {
	MinSize       int
	MaxSize       int
	ShiftFactor   float64
	ScaleFactor   float64
	QThreshold    float64
	MaxDetections int
	BlurRadius    float64
	MaxImageSize  int
	MarkColor     string
	Classifier    string
	NoCluster     bool
	Annotate      bool
	Strict        bool
	Detector      *Detector
	Spinner       *utils.Spinner

	once    sync.Once
	loadErr error
}

// DefaultProcessor returns a processor with the default scan settings.
func DefaultProcessor() *Processor {
	return &Processor{
		MinSize:     100,
		ShiftFactor: 0.1,
		ScaleFactor: 1.2,
		QThreshold:  10.0,
		MarkColor:   DefaultMarkColor,
	}
}

// loadDetector reads the classifier file once, unless a Detector was already provided.
func (p *Processor) loadDetector() error {
	p.once.Do(func() {
		if p.Detector != nil {
			return
		}
		if p.Classifier == "" {
			p.loadErr = fmt.Errorf("%w: no classifier file provided", ErrInvalidParameters)
			return
		}
		data, err := os.ReadFile(p.Classifier)
		if err != nil {
			p.loadErr = fmt.Errorf("error reading the cascade file: %w", err)
			return
		}
		p.Detector, p.loadErr = NewDetector(data)
	})
	return p.loadErr
}

// Detect runs the face detector over the image. The detections are returned in
// the coordinate space of img, even if the image was downscaled for the scan.
func (p *Processor) Detect(img image.Image) (*Result, error) {
	if err := p.loadDetector(); err != nil {
		return nil, err
	}

	var (
		work  = img
		ratio = 1.0
	)
	dx, dy := img.Bounds().Dx(), img.Bounds().Dy()

	// Large inputs are scanned at a reduced resolution.
	if p.MaxImageSize > 0 && (dx > p.MaxImageSize || dy > p.MaxImageSize) {
		fitted := imaging.Fit(img, p.MaxImageSize, p.MaxImageSize, imaging.Lanczos)
		ratio = float64(dx) / float64(fitted.Bounds().Dx())
		work = fitted
	}
	if p.BlurRadius > 0 {
		work = blur.Gaussian(work, p.BlurRadius)
	}

	imgParams := toImageParams(work)
	maxSize := p.MaxSize
	if maxSize <= 0 || maxSize > utils.Min(imgParams.Rows, imgParams.Cols) {
		maxSize = utils.Min(imgParams.Rows, imgParams.Cols)
	}
	// The image is smaller than the smallest window.
	if p.MinSize > 0 && p.MinSize > maxSize {
		return &Result{}, nil
	}

	res, err := p.Detector.Detect(DetectParams{
		CascadeParams: CascadeParams{
			MinSize:       float64(p.MinSize),
			MaxSize:       float64(maxSize),
			ShiftFactor:   p.ShiftFactor,
			ScaleFactor:   p.ScaleFactor,
			MaxDetections: p.MaxDetections,
			Strict:        p.Strict,
			ImageParams:   imgParams,
		},
		QCutoff: p.QThreshold,
		Cluster: !p.NoCluster,
	})
	if err != nil {
		return nil, err
	}

	if ratio != 1.0 {
		r := float32(ratio)
		for i := range res.Detections {
			res.Detections[i].Row *= r
			res.Detections[i].Col *= r
			res.Detections[i].Scale *= r
		}
	}
	return res, nil
}

// Process decodes the source image, runs the detector over it and writes the result into w.
// In annotation mode the detections are drawn over the source image which is then
// encoded into w, otherwise the detections are written as text: the detection count
// followed by one "row col size confidence" line per detection.
func (p *Processor) Process(r io.Reader, w io.Writer) error {
	var markColor = DefaultMarkColor
	if p.MarkColor != "" {
		markColor = p.MarkColor
	}
	col, err := parseColor(markColor)
	if err != nil {
		return err
	}

	img, err := decodeImg(r)
	if err != nil {
		return err
	}

	res, err := p.Detect(img)
	if err != nil {
		return err
	}
	if res.Overflow {
		log.Printf(utils.DecorateText("raw detection capacity exceeded, %d detections kept", utils.WarningMessage), res.Raw)
	}

	if p.Annotate {
		drawDetections(img, res.Detections, col)
		return encodeImg(w, img)
	}
	return writeDetections(w, res.Detections)
}

// writeDetections prints the detection count followed by one line per detection.
func writeDetections(w io.Writer, dets []Detection) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "%d\n", len(dets))
	for _, det := range dets {
		fmt.Fprintf(bw, "%d %d %d %f\n", int(det.Row), int(det.Col), int(det.Scale), det.Q)
	}
	return bw.Flush()
}
