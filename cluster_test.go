package rotodet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlap(t *testing.T) {
	assert := assert.New(t)

	a := Detection{Row: 50, Col: 50, Scale: 20}
	assert.InDelta(1, Overlap(a, a, 1), 1e-6)
	assert.InDelta(1, Overlap(a, a, 0.8), 1e-6)

	far := Detection{Row: 50, Col: 100, Scale: 20}
	assert.Zero(Overlap(a, far, 1))

	// Half of the window is shared: 10*20 / (400+400-200).
	half := Detection{Row: 50, Col: 60, Scale: 20}
	assert.InDelta(1.0/3, Overlap(a, half, 1), 1e-6)
	assert.Equal(Overlap(a, half, 1), Overlap(half, a, 1))

	// The aspect ratio stretches the windows horizontally.
	assert.Greater(Overlap(a, half, 2), Overlap(a, half, 1))
}

func TestClusterDetections_Empty(t *testing.T) {
	assert.Nil(t, ClusterDetections(nil, 1, 0))
	assert.Nil(t, ClusterDetections([]Detection{}, 1, 0))
}

func TestClusterDetections_MergesOverlapping(t *testing.T) {
	dets := []Detection{
		{Row: 40, Col: 40, Scale: 20, Q: 4},
		{Row: 42, Col: 40, Scale: 22, Q: 5},
	}

	clusters := ClusterDetections(dets, 1, 8)
	require.Len(t, clusters, 1)
	assert.Equal(t, Detection{Row: 41, Col: 40, Scale: 21, Q: 9}, clusters[0])

	assert.Empty(t, ClusterDetections(dets, 1, 10))
}

func TestClusterDetections_IsTransitive(t *testing.T) {
	// A and C are disjoint, both overlap B. B is listed last.
	a := Detection{Row: 10, Col: 10, Scale: 10, Q: 1}
	b := Detection{Row: 10, Col: 15, Scale: 10, Q: 2}
	c := Detection{Row: 10, Col: 20, Scale: 10, Q: 3}

	require.Zero(t, Overlap(a, c, 1))
	require.Greater(t, Overlap(a, b, 1), float32(ClusterOverlap))
	require.Greater(t, Overlap(b, c, 1), float32(ClusterOverlap))

	clusters := ClusterDetections([]Detection{a, c, b}, 1, 0)
	require.Len(t, clusters, 1)
	assert.InDelta(t, 10, clusters[0].Row, 1e-5)
	assert.InDelta(t, 15, clusters[0].Col, 1e-5)
	assert.InDelta(t, 10, clusters[0].Scale, 1e-5)
	assert.InDelta(t, 6, clusters[0].Q, 1e-5)
}

func TestClusterDetections_FirstOccurrenceOrder(t *testing.T) {
	dets := []Detection{
		{Row: 100, Col: 100, Scale: 10, Q: 1},
		{Row: 10, Col: 10, Scale: 10, Q: 2},
		{Row: 100, Col: 101, Scale: 10, Q: 3},
		{Row: 200, Col: 10, Scale: 10, Q: 4},
	}

	clusters := ClusterDetections(dets, 1, 0)
	require.Len(t, clusters, 3)
	assert.InDelta(t, 100.5, clusters[0].Col, 1e-5)
	assert.Equal(t, float32(4), clusters[0].Q)
	assert.Equal(t, dets[1], clusters[1])
	assert.Equal(t, dets[3], clusters[2])
}

func TestClusterDetections_SeparatedAreUnchanged(t *testing.T) {
	dets := []Detection{
		{Row: 20, Col: 20, Scale: 16, Q: 12},
		{Row: 20, Col: 80, Scale: 16, Q: 15},
		{Row: 90, Col: 50, Scale: 30, Q: 11},
	}

	clusters := ClusterDetections(dets, 1, 10)
	assert.Equal(t, dets, clusters)
	assert.Equal(t, clusters, ClusterDetections(clusters, 1, 10))
}

func TestClusterDetections_FiltersByScore(t *testing.T) {
	dets := []Detection{
		{Row: 20, Col: 20, Scale: 16, Q: 9.5},
		{Row: 20, Col: 80, Scale: 16, Q: 10},
	}

	clusters := ClusterDetections(dets, 1, 10)
	require.Len(t, clusters, 1)
	assert.Equal(t, dets[1], clusters[0])
}
