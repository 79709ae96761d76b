package rotodet

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeClassifier stores a cascade accepting every window in a temporary file.
func writeClassifier(t *testing.T) string {
	t.Helper()

	blob, err := constCascade(1, 0).MarshalBinary()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "accept-all.cascade")
	require.NoError(t, os.WriteFile(path, blob, 0644))
	return path
}

func newTestProcessor(t *testing.T) *Processor {
	p := DefaultProcessor()
	p.MinSize = 32
	p.MaxSize = 32
	p.QThreshold = 0
	p.MaxDetections = 10000
	p.Classifier = writeClassifier(t)
	return p
}

func encodePNG(t *testing.T, width, height int) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, width, height))))
	return &buf
}

func TestProcessor_Defaults(t *testing.T) {
	p := DefaultProcessor()

	assert.Equal(t, 100, p.MinSize)
	assert.Equal(t, 0.1, p.ShiftFactor)
	assert.Equal(t, 1.2, p.ScaleFactor)
	assert.Equal(t, 10.0, p.QThreshold)
	assert.Equal(t, DefaultMarkColor, p.MarkColor)
}

func TestProcessor_LoadDetector(t *testing.T) {
	p := &Processor{}
	assert.ErrorIs(t, p.loadDetector(), ErrInvalidParameters)

	p = &Processor{Classifier: filepath.Join(t.TempDir(), "missing")}
	assert.ErrorIs(t, p.loadDetector(), os.ErrNotExist)

	bogus := filepath.Join(t.TempDir(), "bogus")
	require.NoError(t, os.WriteFile(bogus, []byte("not a cascade"), 0644))
	p = &Processor{Classifier: bogus}
	assert.ErrorIs(t, p.loadDetector(), ErrMalformedModel)

	p = &Processor{Classifier: writeClassifier(t)}
	require.NoError(t, p.loadDetector())
	det := p.Detector
	require.NotNil(t, det)

	// The classifier is read only once.
	require.NoError(t, p.loadDetector())
	assert.Same(t, det, p.Detector)
}

func TestProcessor_PrintsDetections(t *testing.T) {
	p := newTestProcessor(t)

	var out bytes.Buffer
	require.NoError(t, p.Process(encodePNG(t, 64, 64), &out))
	assert.Equal(t, "1\n31 31 32 360.000000\n", out.String())
}

func TestProcessor_PrintsRawDetections(t *testing.T) {
	p := newTestProcessor(t)
	p.NoCluster = true

	var out bytes.Buffer
	require.NoError(t, p.Process(encodePNG(t, 64, 64), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 361)
	assert.Equal(t, "360", lines[0])
	assert.Equal(t, "23 23 32 1.000000", lines[1])
}

func TestProcessor_ImageSmallerThanMinSize(t *testing.T) {
	p := newTestProcessor(t)

	var out bytes.Buffer
	require.NoError(t, p.Process(encodePNG(t, 20, 20), &out))
	assert.Equal(t, "0\n", out.String())
}

func TestProcessor_Annotate(t *testing.T) {
	p := newTestProcessor(t)
	p.Annotate = true
	p.MarkColor = "#00ff00"

	var out bytes.Buffer
	require.NoError(t, p.Process(encodePNG(t, 64, 48), &out))

	cfg, format, err := image.DecodeConfig(&out)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, 48, cfg.Height)
}

func TestProcessor_InvalidMarkColor(t *testing.T) {
	p := newTestProcessor(t)
	p.MarkColor = "#zz"

	var out bytes.Buffer
	assert.Error(t, p.Process(encodePNG(t, 64, 64), &out))
	assert.Zero(t, out.Len())
}

func TestProcessor_DetectMapsBackDownscaledImage(t *testing.T) {
	p := newTestProcessor(t)
	p.MaxImageSize = 64
	p.BlurRadius = 1

	res, err := p.Detect(image.NewNRGBA(image.Rect(0, 0, 128, 128)))
	require.NoError(t, err)
	require.Len(t, res.Detections, 1)

	face := res.Detections[0]
	assert.InDelta(t, 64, face.Scale, 1e-3)
	assert.InDelta(t, 2*31.627, face.Row, 1e-2)
	assert.InDelta(t, 2*31.627, face.Col, 1e-2)
}

func TestProcessor_DetectClampsMaxSize(t *testing.T) {
	p := newTestProcessor(t)
	p.MaxSize = 0

	res, err := p.Detect(image.NewNRGBA(image.Rect(0, 0, 64, 64)))
	require.NoError(t, err)
	assert.False(t, res.Overflow)
	// Larger windows are scanned up to the shorter image edge.
	assert.Greater(t, res.Raw, 6*6*NumRotations)
}

func TestProcessor_Overflow(t *testing.T) {
	p := newTestProcessor(t)
	p.MaxDetections = 10

	var out bytes.Buffer
	require.NoError(t, p.Process(encodePNG(t, 64, 64), &out))
	assert.Equal(t, "1\n23 23 32 10.000000\n", out.String())
}

func TestProcessor_RejectsScaleFactorRoundingToOne(t *testing.T) {
	p := newTestProcessor(t)
	p.ScaleFactor = 1 + 1e-9

	var out bytes.Buffer
	assert.ErrorIs(t, p.Process(encodePNG(t, 64, 64), &out), ErrInvalidParameters)
	assert.Zero(t, out.Len())
}
