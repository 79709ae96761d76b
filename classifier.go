package rotodet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/esimov/rotodet/utils"
)

// maxTreeDepth bounds the depth accepted from a classifier blob.
// Deeper trees would overflow the node index arithmetic long before
// they could fit into any realistic buffer.
const maxTreeDepth = 30

// tree is a complete binary decision tree stored in array form:
// the root is at index 0 and the children of node i are at 2i+1 and 2i+2.
type tree struct {
	depth  int
	codes  [][4]uint8
	leaves []float32
}

type stage struct {
	trees     []tree
	threshold float32
}

// Cascade is the decoded classifier: an ordered list of stages,
// each one summing the outputs of its decision trees.
type Cascade struct {
	aspectRatio float32
	stages      []stage
}

// treeSize returns the serialized size in bytes of a tree with the given depth.
func treeSize(depth int) int64 {
	nodes := int64(1) << uint(depth)
	return 2*4 + (nodes-1)*4 + nodes*4
}

// reader walks the classifier blob, checking every read against the buffer length.
type reader struct {
	buf []byte
	pos int
}

func (rd *reader) need(n int64, what string) error {
	if n < 0 || int64(len(rd.buf)-rd.pos) < n {
		return fmt.Errorf("%w: %s needs %d bytes at offset %d, only %d left",
			ErrMalformedModel, what, n, rd.pos, len(rd.buf)-rd.pos)
	}
	return nil
}

func (rd *reader) readInt32(what string) (int32, error) {
	if err := rd.need(4, what); err != nil {
		return 0, err
	}
	v := int32(binary.LittleEndian.Uint32(rd.buf[rd.pos:]))
	rd.pos += 4
	return v, nil
}

func (rd *reader) readFloat32(what string) (float32, error) {
	if err := rd.need(4, what); err != nil {
		return 0, err
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(rd.buf[rd.pos:]))
	rd.pos += 4
	return v, nil
}

// Unpack decodes and validates a classifier blob. Bytes following
// the last stage are ignored.
func Unpack(packet []byte) (*Cascade, error) {
	rd := &reader{buf: packet}

	ratio, err := rd.readFloat32("aspect ratio")
	if err != nil {
		return nil, err
	}
	if math.IsNaN(float64(ratio)) || math.IsInf(float64(ratio), 0) || ratio <= 0 {
		return nil, fmt.Errorf("%w: invalid aspect ratio %v", ErrMalformedModel, ratio)
	}

	nstages, err := rd.readInt32("stage count")
	if err != nil {
		return nil, err
	}
	if nstages < 0 {
		return nil, fmt.Errorf("%w: negative stage count %d", ErrMalformedModel, nstages)
	}

	cascade := &Cascade{aspectRatio: ratio}
	for i := 0; i < int(nstages); i++ {
		st, err := unpackStage(rd, i)
		if err != nil {
			return nil, err
		}
		cascade.stages = append(cascade.stages, st)
	}
	return cascade, nil
}

func unpackStage(rd *reader, idx int) (stage, error) {
	var st stage

	ntrees, err := rd.readInt32(fmt.Sprintf("stage %d tree count", idx))
	if err != nil {
		return st, err
	}
	if ntrees < 0 {
		return st, fmt.Errorf("%w: stage %d has negative tree count %d", ErrMalformedModel, idx, ntrees)
	}
	// Every tree occupies at least 12 bytes, so a bogus count can be rejected before allocating.
	if err := rd.need(int64(ntrees)*treeSize(0), fmt.Sprintf("stage %d trees", idx)); err != nil {
		return st, err
	}

	st.trees = make([]tree, 0, ntrees)
	for j := 0; j < int(ntrees); j++ {
		t, err := unpackTree(rd)
		if err != nil {
			return st, fmt.Errorf("stage %d, tree %d: %w", idx, j, err)
		}
		st.trees = append(st.trees, t)
	}

	st.threshold, err = rd.readFloat32(fmt.Sprintf("stage %d threshold", idx))
	return st, err
}

func unpackTree(rd *reader) (tree, error) {
	var t tree

	outdim, err := rd.readInt32("output dimension")
	if err != nil {
		return t, err
	}
	if outdim != 1 {
		return t, fmt.Errorf("%w: unsupported output dimension %d", ErrMalformedModel, outdim)
	}
	depth, err := rd.readInt32("tree depth")
	if err != nil {
		return t, err
	}
	if depth < 0 || depth > maxTreeDepth {
		return t, fmt.Errorf("%w: tree depth %d out of range", ErrMalformedModel, depth)
	}
	t.depth = int(depth)

	// The two header words were already consumed.
	if err := rd.need(treeSize(t.depth)-8, "tree body"); err != nil {
		return t, err
	}

	nodes := 1 << uint(t.depth)
	t.codes = make([][4]uint8, nodes-1)
	for i := range t.codes {
		copy(t.codes[i][:], rd.buf[rd.pos:rd.pos+4])
		rd.pos += 4
	}
	t.leaves = make([]float32, nodes)
	for i := range t.leaves {
		t.leaves[i] = math.Float32frombits(binary.LittleEndian.Uint32(rd.buf[rd.pos:]))
		rd.pos += 4
	}
	return t, nil
}

// MarshalBinary encodes the cascade back into the packed classifier layout.
func (c *Cascade) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	le := binary.LittleEndian

	write := func(v any) {
		// Writes into a bytes.Buffer never fail.
		_ = binary.Write(buf, le, v)
	}
	write(c.aspectRatio)
	write(int32(len(c.stages)))
	for _, st := range c.stages {
		write(int32(len(st.trees)))
		for _, t := range st.trees {
			write(int32(1))
			write(int32(t.depth))
			for _, code := range t.codes {
				buf.Write(code[:])
			}
			write(t.leaves)
		}
		write(st.threshold)
	}
	return buf.Bytes(), nil
}

// AspectRatio returns the width to height ratio of the detection window.
func (c *Cascade) AspectRatio() float32 {
	return c.aspectRatio
}

// NumStages returns the number of cascade stages.
func (c *Cascade) NumStages() int {
	return len(c.stages)
}

// Classify runs the cascade over a single window centered at (r, col) with
// size s and rotation index rot. It reports whether the window was accepted
// and, if so, its confidence score.
func (c *Cascade) Classify(lut *RotationLUT, cp CascadeParams, r, col, s float32, rot int) (float32, bool, error) {
	if err := cp.ImageParams.validate(); err != nil {
		return 0, false, err
	}
	if rot < 0 || rot >= NumRotations {
		return 0, false, fmt.Errorf("%w: rotation index %d", ErrInvalidParameters, rot)
	}
	return c.classify(lut, &cp.ImageParams, int(r), int(col), int(s), rot, cp.Strict)
}

func (c *Cascade) classify(lut *RotationLUT, img *ImageParams, r, col, s, rot int, strict bool) (float32, bool, error) {
	if len(c.stages) == 0 {
		return 0, false, nil
	}

	var (
		out       float32
		threshold float32
	)
	for i := range c.stages {
		st := &c.stages[i]
		for j := range st.trees {
			o, err := st.trees[j].output(lut, img, r, col, s, rot, strict)
			if err != nil {
				return 0, false, err
			}
			out += o
		}
		threshold = st.threshold

		// Most windows are rejected here, during the first stages.
		if out <= threshold {
			return 0, false, nil
		}
	}
	return out - threshold, true, nil
}

// output walks the tree from the root to a leaf and returns the leaf value.
func (t *tree) output(lut *RotationLUT, img *ImageParams, r, c, s, rot int, strict bool) (float32, error) {
	idx := 0
	for d := 0; d < t.depth; d++ {
		ok, err := bintest(t.codes[idx], lut, img, r, c, s, rot, strict)
		if err != nil {
			return 0, err
		}
		if ok {
			idx = 2*idx + 1
		} else {
			idx = 2*idx + 2
		}
	}
	return t.leaves[idx-len(t.codes)], nil
}

// bintest compares the intensity of the two pixels addressed by the test code.
func bintest(code [4]uint8, lut *RotationLUT, img *ImageParams, r, c, s, rot int, strict bool) (bool, error) {
	dr1, dc1 := lut.Offset(code[0], code[1], rot)
	dr2, dc2 := lut.Offset(code[2], code[3], rot)

	p1, err := img.at((256*r+dr1*s)/256, (256*c+dc1*s)/256, strict)
	if err != nil {
		return false, err
	}
	p2, err := img.at((256*r+dr2*s)/256, (256*c+dc2*s)/256, strict)
	if err != nil {
		return false, err
	}
	return p1 <= p2, nil
}

// at returns the pixel intensity at (r, c). Coordinates falling outside
// of the image are clamped to the border unless strict is set.
func (img *ImageParams) at(r, c int, strict bool) (uint8, error) {
	if r < 0 || r >= img.Rows || c < 0 || c >= img.Cols {
		if strict {
			return 0, fmt.Errorf("%w: (%d, %d) outside %dx%d image",
				ErrSampleOutOfBounds, r, c, img.Rows, img.Cols)
		}
		r = utils.Clamp(r, 0, img.Rows-1)
		c = utils.Clamp(c, 0, img.Cols-1)
	}
	return img.Pixels[r*img.Dim+c], nil
}
