package rotodet

import (
	"math/rand"
	"testing"
)

// benchCascade builds a cascade of random trees. Thresholds are kept low
// enough for a fair share of the windows to reach the later stages.
func benchCascade(rnd *rand.Rand, nstages, ntrees, depth int) *Cascade {
	cascade := &Cascade{aspectRatio: 1}
	for i := 0; i < nstages; i++ {
		var st stage
		for j := 0; j < ntrees; j++ {
			t := tree{
				depth:  depth,
				codes:  make([][4]uint8, 1<<depth-1),
				leaves: make([]float32, 1<<depth),
			}
			for k := range t.codes {
				rnd.Read(t.codes[k][:])
			}
			for k := range t.leaves {
				t.leaves[k] = rnd.Float32()*2 - 0.5
			}
			st.trees = append(st.trees, t)
		}
		st.threshold = float32(i * ntrees / 4)
		cascade.stages = append(cascade.stages, st)
	}
	return cascade
}

func Benchmark_Detect(b *testing.B) {
	rnd := rand.New(rand.NewSource(42))
	det := NewDetectorWithLUT(benchCascade(rnd, 8, 4, 6), DefaultLUT())

	img := newImage(240, 320)
	rnd.Read(img.Pixels)

	dp := DetectParams{
		CascadeParams: CascadeParams{
			MinSize:     40,
			MaxSize:     240,
			ShiftFactor: 0.1,
			ScaleFactor: 1.2,
			ImageParams: img,
		},
		QCutoff: 5,
		Cluster: true,
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := det.Detect(dp); err != nil {
			b.Fatalf("detection failed: %v", err)
		}
	}
}

func Benchmark_Cluster(b *testing.B) {
	rnd := rand.New(rand.NewSource(7))
	dets := make([]Detection, DefaultMaxDetections)
	for i := range dets {
		dets[i] = Detection{
			Row:   rnd.Float32() * 480,
			Col:   rnd.Float32() * 640,
			Scale: 40 + rnd.Float32()*100,
			Q:     rnd.Float32() * 5,
		}
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		ClusterDetections(dets, 1, 10)
	}
}
