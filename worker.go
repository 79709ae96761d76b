package rotodet

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Frame is a grayscale frame submitted to a Worker together with a caller defined sequence number.
type Frame struct {
	Seq int64
	ImageParams
}

// FrameResult carries the outcome of the detection run over a single frame.
type FrameResult struct {
	Seq int64
	*Result
	Err error
}

// Worker runs the detector on a dedicated goroutine. A scan always runs to
// completion, so frames submitted while a scan is in flight are dropped
// instead of being queued. The pixel buffer of an accepted frame must not
// be modified until its result has been received.
type Worker struct {
	Logger logrus.FieldLogger

	det     *Detector
	params  DetectParams
	frames  chan Frame
	results chan FrameResult
	busy    atomic.Bool
	dropped atomic.Uint64
}

// NewWorker creates a worker which applies dp to every frame. The image
// fields of dp are ignored, they are supplied by the submitted frames.
func NewWorker(det *Detector, dp DetectParams) *Worker {
	return &Worker{
		Logger:  logrus.StandardLogger(),
		det:     det,
		params:  dp,
		frames:  make(chan Frame, 1),
		results: make(chan FrameResult, 1),
	}
}

// Submit hands over a frame for detection. It never blocks: if the worker
// is still busy with a previous frame the new one is dropped and false is returned.
func (w *Worker) Submit(f Frame) bool {
	if !w.busy.CompareAndSwap(false, true) {
		n := w.dropped.Add(1)
		w.Logger.WithFields(logrus.Fields{
			"seq":     f.Seq,
			"dropped": n,
		}).Debug("detector busy, frame dropped")
		return false
	}
	w.frames <- f
	return true
}

// Results returns the channel on which the detection results are delivered.
func (w *Worker) Results() <-chan FrameResult {
	return w.results
}

// Dropped returns the number of frames dropped so far.
func (w *Worker) Dropped() uint64 {
	return w.dropped.Load()
}

// Run processes the submitted frames until the context is cancelled.
// The results channel is closed when Run returns.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.results)

	for {
		select {
		case <-ctx.Done():
			return
		case f := <-w.frames:
			dp := w.params
			dp.ImageParams = f.ImageParams

			res, err := w.det.Detect(dp)
			if err != nil {
				w.Logger.WithError(err).WithField("seq", f.Seq).Error("detection failed")
			} else if res.Overflow {
				w.Logger.WithFields(logrus.Fields{
					"seq": f.Seq,
					"raw": res.Raw,
				}).Warn("raw detection capacity exceeded")
			}

			// The frame buffer is released before the result is delivered.
			w.busy.Store(false)

			select {
			case w.results <- FrameResult{Seq: f.Seq, Result: res, Err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}
