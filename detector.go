package rotodet

import (
	"errors"
	"fmt"
)

// Detector couples a decoded classifier with the rotation table used to evaluate it.
// It holds no per-frame state, so a single Detector can serve concurrent callers.
type Detector struct {
	cascade *Cascade
	lut     *RotationLUT
}

// DetectParams holds the scan parameters plus the clustering options.
type DetectParams struct {
	CascadeParams
	QCutoff float64
	Cluster bool
}

// Result is the outcome of a detection run.
// Raw is the number of windows accepted by the cascade before clustering,
// Overflow reports that the raw detection capacity was exceeded.
type Result struct {
	Detections []Detection
	Raw        int
	Overflow   bool
}

// NewDetector unpacks the classifier blob and binds it to the shared rotation table.
func NewDetector(packet []byte) (*Detector, error) {
	cascade, err := Unpack(packet)
	if err != nil {
		return nil, fmt.Errorf("error unpacking the cascade file: %w", err)
	}
	return &Detector{cascade: cascade, lut: DefaultLUT()}, nil
}

// NewDetectorWithLUT returns a detector using an already decoded cascade and a caller owned table.
func NewDetectorWithLUT(cascade *Cascade, lut *RotationLUT) *Detector {
	return &Detector{cascade: cascade, lut: lut}
}

// Cascade returns the classifier used by the detector.
func (d *Detector) Cascade() *Cascade {
	return d.cascade
}

// Detect scans the image and, if requested, clusters the raw detections.
// Exceeding the raw detection capacity is not an error: it is reported
// through Result.Overflow and the capped detection list is still processed.
func (d *Detector) Detect(dp DetectParams) (*Result, error) {
	dets, err := d.cascade.RunCascade(d.lut, dp.CascadeParams)
	res := &Result{Raw: len(dets)}

	if err != nil {
		if !errors.Is(err, ErrCapacityExceeded) {
			return nil, err
		}
		res.Overflow = true
	}

	if dp.Cluster {
		dets = ClusterDetections(dets, d.cascade.AspectRatio(), float32(dp.QCutoff))
	}
	res.Detections = dets

	return res, nil
}
