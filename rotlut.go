package rotodet

import (
	"math"
	"sync"
)

// NumRotations is the number of discrete in-plane rotation angles
// evaluated for every detection window. The angles are evenly spaced over 2*pi.
const NumRotations = 10

const lutSize = 256 * 256 * NumRotations

// RotationLUT holds the precomputed, rotated row and column offsets for every
// signed byte pair (r, c) and every rotation index. The values are integers
// which are later scaled by the window size and divided by 256.
//
// A RotationLUT is immutable once constructed, so it can be shared
// between goroutines scanning independent frames.
type RotationLUT struct {
	rows [lutSize]int16
	cols [lutSize]int16
}

var (
	defaultLUT     *RotationLUT
	defaultLUTOnce sync.Once
)

// DefaultLUT returns the process wide rotation table, computing it on first use.
func DefaultLUT() *RotationLUT {
	defaultLUTOnce.Do(func() {
		defaultLUT = NewRotationLUT()
	})
	return defaultLUT
}

// NewRotationLUT computes a new rotation table.
func NewRotationLUT() *RotationLUT {
	lut := &RotationLUT{}

	for t := 0; t < NumRotations; t++ {
		theta := float64(t) * 2.0 * math.Pi / NumRotations
		sin, cos := math.Sincos(theta)

		for i := 0; i < 256; i++ {
			for j := 0; j < 256; j++ {
				// Reinterpret the byte codes as signed offsets.
				r := float64(int8(uint8(i)))
				c := float64(int8(uint8(j)))

				idx := lutIndex(uint8(i), uint8(j), t)
				lut.rows[idx] = int16(math.Round(r*cos + c*sin))
				lut.cols[idx] = int16(math.Round(-r*sin + c*cos))
			}
		}
	}
	return lut
}

// Offset returns the rotated (row, col) offset of the signed byte pair (r, c)
// for the rotation index rot.
func (lut *RotationLUT) Offset(r, c uint8, rot int) (int, int) {
	idx := lutIndex(r, c, rot)
	return int(lut.rows[idx]), int(lut.cols[idx])
}

func lutIndex(r, c uint8, rot int) int {
	return (int(r)<<8|int(c))*NumRotations + rot
}
