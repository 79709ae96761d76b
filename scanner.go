package rotodet

import (
	"fmt"
	"math"

	"github.com/esimov/rotodet/utils"
)

// DefaultMaxDetections is the raw detection capacity used when none is configured.
const DefaultMaxDetections = 2048

// scanMargin keeps the rotated window diagonal inside the image (1/sqrt(2)).
const scanMargin = 0.707107

// CascadeParams contains the parameters used to sweep the detection window over the image.
// MinSize: the minimum window size.
// MaxSize: the maximum window size.
// ShiftFactor: the window stride as a fraction of the window size.
// ScaleFactor: the geometric growth of the window size between two scales.
// MaxDetections: the raw detection capacity, DefaultMaxDetections when zero.
// Strict: report sample coordinates outside of the image instead of clamping them.
type CascadeParams struct {
	MinSize       float64
	MaxSize       float64
	ShiftFactor   float64
	ScaleFactor   float64
	MaxDetections int
	Strict        bool
	ImageParams
}

// ImageParams describes the grayscale image.
// Pixels: the grayscale pixel data in row-major order.
// Rows: the number of image rows.
// Cols: the number of image columns.
// Dim: the row stride, at least Cols.
type ImageParams struct {
	Pixels []uint8
	Rows   int
	Cols   int
	Dim    int
}

// Detection holds the window center, its size and the detection score.
type Detection struct {
	Row   float32
	Col   float32
	Scale float32
	Q     float32
}

func (img *ImageParams) validate() error {
	if img.Rows <= 0 || img.Cols <= 0 {
		return fmt.Errorf("%w: image size %dx%d", ErrInvalidParameters, img.Rows, img.Cols)
	}
	if img.Dim < img.Cols {
		return fmt.Errorf("%w: row stride %d is less than the column count %d", ErrInvalidParameters, img.Dim, img.Cols)
	}
	if need := (img.Rows-1)*img.Dim + img.Cols; len(img.Pixels) < need {
		return fmt.Errorf("%w: pixel buffer holds %d bytes, %d required", ErrInvalidParameters, len(img.Pixels), need)
	}
	return nil
}

// finite32 reports whether v stays a finite number once converted to float32.
func finite32(v float64) bool {
	f := float64(float32(v))
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// validate checks the scan parameters. The sweep runs in float32, so the
// bounds are checked on the converted values: a size which underflows to zero
// or a scale factor rounding to 1 would never let the scale loop terminate.
func (cp *CascadeParams) validate() error {
	if err := cp.ImageParams.validate(); err != nil {
		return err
	}
	for _, v := range []struct {
		name string
		val  float64
	}{
		{"minimum size", cp.MinSize},
		{"maximum size", cp.MaxSize},
		{"shift factor", cp.ShiftFactor},
		{"scale factor", cp.ScaleFactor},
	} {
		if !finite32(v.val) {
			return fmt.Errorf("%w: %s %v is not a finite float32 value", ErrInvalidParameters, v.name, v.val)
		}
	}
	switch {
	case float32(cp.MinSize) <= 0:
		return fmt.Errorf("%w: minimum size %v must be positive", ErrInvalidParameters, cp.MinSize)
	case cp.MinSize > cp.MaxSize:
		return fmt.Errorf("%w: minimum size %v exceeds maximum size %v", ErrInvalidParameters, cp.MinSize, cp.MaxSize)
	case float32(cp.ScaleFactor) <= 1:
		return fmt.Errorf("%w: scale factor %v must be greater than 1", ErrInvalidParameters, cp.ScaleFactor)
	case float32(cp.ShiftFactor) <= 0:
		return fmt.Errorf("%w: shift factor %v must be positive", ErrInvalidParameters, cp.ShiftFactor)
	case cp.MaxDetections < 0:
		return fmt.Errorf("%w: negative detection capacity %d", ErrInvalidParameters, cp.MaxDetections)
	}
	return nil
}

// RunCascade sweeps the detection window over every scale, position and rotation
// and returns the windows accepted by the cascade, ordered by scale, row, column
// and rotation. When the capacity is exhausted the collected detections are
// returned together with ErrCapacityExceeded.
func (c *Cascade) RunCascade(lut *RotationLUT, cp CascadeParams) ([]Detection, error) {
	if err := cp.validate(); err != nil {
		return nil, err
	}

	capacity := cp.MaxDetections
	if capacity == 0 {
		capacity = DefaultMaxDetections
	}

	var (
		img        = &cp.ImageParams
		detections = make([]Detection, 0, utils.Min(capacity, 256))
		overflow   int

		scaleFactor = float32(cp.ScaleFactor)
		shiftFactor = float32(cp.ShiftFactor)
		maxSize     = float32(cp.MaxSize)
		rows        = float32(img.Rows)
		cols        = float32(img.Cols)
	)
	// No window larger than the shorter image edge fits between the margins.
	maxSize = min(maxSize, min(rows, cols))

	for s := float32(cp.MinSize); s <= maxSize; s *= scaleFactor {
		step := utils.Max(shiftFactor*s, 1)
		margin := scanMargin*s + 1

		for r := margin; r <= rows-margin; r += step {
			for col := margin; col <= cols-margin; col += step {
				for rot := 0; rot < NumRotations; rot++ {
					q, ok, err := c.classify(lut, img, int(r), int(col), int(s), rot, cp.Strict)
					if err != nil {
						return detections, err
					}
					if !ok {
						continue
					}
					if len(detections) >= capacity {
						overflow++
						continue
					}
					detections = append(detections, Detection{Row: r, Col: col, Scale: s, Q: q})
				}
			}
		}
	}

	if overflow > 0 {
		return detections, fmt.Errorf("%w: %d detections dropped over a capacity of %d",
			ErrCapacityExceeded, overflow, capacity)
	}
	return detections, nil
}
