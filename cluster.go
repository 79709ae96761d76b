package rotodet

// ClusterOverlap is the normalized overlap above which two detections
// are considered to belong to the same object.
const ClusterOverlap = 0.3

// Overlap returns the intersection of two detections divided by their union.
// Each detection is treated as an axis aligned rectangle of height Scale and
// width ratio*Scale centered at (Row, Col), regardless of its rotation.
func Overlap(d1, d2 Detection, ratio float32) float32 {
	r1, c1, s1 := d1.Row, d1.Col, d1.Scale
	r2, c2, s2 := d2.Row, d2.Col, d2.Scale

	overRow := max(0, min(r1+s1/2, r2+s2/2)-max(r1-s1/2, r2-s2/2))
	overCol := max(0, min(c1+ratio*s1/2, c2+ratio*s2/2)-max(c1-ratio*s1/2, c2-ratio*s2/2))

	return overRow * overCol / (ratio*s1*s1 + ratio*s2*s2 - overRow*overCol)
}

// components labels every detection with the 1-based id of its connected
// component in the overlap graph and returns the number of components.
// Component ids follow the order in which their first member appears.
func components(dets []Detection, ratio float32) ([]int, int) {
	labels := make([]int, len(dets))
	stack := make([]int, 0, len(dets))
	ncc := 0

	for i := range dets {
		if labels[i] != 0 {
			continue
		}
		ncc++
		labels[i] = ncc
		stack = append(stack[:0], i)

		for len(stack) > 0 {
			k := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			for j := range dets {
				if labels[j] == 0 && Overlap(dets[k], dets[j], ratio) > ClusterOverlap {
					labels[j] = ncc
					stack = append(stack, j)
				}
			}
		}
	}
	return labels, ncc
}

// ClusterDetections merges overlapping detections. Every connected group of
// detections becomes a single detection positioned at the mean of its members
// and scored with the sum of their scores. Groups scoring below qCutoff are dropped.
func ClusterDetections(dets []Detection, ratio, qCutoff float32) []Detection {
	if len(dets) == 0 {
		return nil
	}
	labels, ncc := components(dets, ratio)

	type accum struct {
		r, c, s, q float32
		n          int
	}
	sums := make([]accum, ncc)
	for i, det := range dets {
		a := &sums[labels[i]-1]
		a.r += det.Row
		a.c += det.Col
		a.s += det.Scale
		a.q += det.Q
		a.n++
	}

	clusters := make([]Detection, 0, ncc)
	for _, a := range sums {
		if a.q < qCutoff {
			continue
		}
		n := float32(a.n)
		clusters = append(clusters, Detection{
			Row:   a.r / n,
			Col:   a.c / n,
			Scale: a.s / n,
			Q:     a.q,
		})
	}
	return clusters
}
