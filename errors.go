package rotodet

import "errors"

var (
	// ErrMalformedModel is returned when the classifier blob is truncated
	// or its declared sizes are inconsistent with the buffer length.
	ErrMalformedModel = errors.New("malformed classifier")

	// ErrSampleOutOfBounds is returned in strict sampling mode when
	// a binary test would read a pixel outside of the image buffer.
	ErrSampleOutOfBounds = errors.New("sample coordinate out of bounds")

	// ErrCapacityExceeded signals that the scanner produced more raw
	// detections than the configured capacity. The detections collected
	// up to that point are still returned.
	ErrCapacityExceeded = errors.New("detection capacity exceeded")

	// ErrInvalidParameters is returned for unusable image or scan parameters.
	ErrInvalidParameters = errors.New("invalid parameters")
)
