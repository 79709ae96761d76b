package rotodet

import (
	"fmt"
	"image"
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// DefaultMarkColor is the color of the circles drawn around the detections.
const DefaultMarkColor = "#ff0000"

// markThickness is the stroke width of the detection circles in pixels.
const markThickness = 4

// parseColor converts a hex color string into an opaque color.
func parseColor(hex string) (color.NRGBA, error) {
	if hex == "" {
		hex = DefaultMarkColor
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid mark color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}, nil
}

// drawDetections marks every detection with a circle. The circle radius is half
// of the detection size, which matches the window for a unit aspect ratio.
func drawDetections(img *image.NRGBA, dets []Detection, col color.NRGBA) {
	for _, det := range dets {
		drawCircle(img, float64(det.Col), float64(det.Row), float64(det.Scale)/2, markThickness, col)
	}
}

// drawCircle strokes a circle centered at (cx, cy). Pixels whose distance from the
// center falls within thickness/2 of the radius are painted.
func drawCircle(img *image.NRGBA, cx, cy, radius, thickness float64, col color.NRGBA) {
	half := thickness / 2
	outer := radius + half
	inner := math.Max(0, radius-half)

	rect := image.Rect(
		int(math.Floor(cx-outer)), int(math.Floor(cy-outer)),
		int(math.Ceil(cx+outer))+1, int(math.Ceil(cy+outer))+1,
	).Intersect(img.Bounds())

	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			dist := math.Sqrt(dx*dx + dy*dy)
			if dist >= inner && dist <= outer {
				img.SetNRGBA(x, y, col)
			}
		}
	}
}
