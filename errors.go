package results

import (
	"errors"
	"fmt"
)

var (
	// ErrShapeMismatch is returned when batch sizes disagree, a tensor is malformed,
	// or a label falls outside [0, NumClasses).
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrEmptyStream is returned when the stream yields no samples at all.
	ErrEmptyStream = errors.New("empty stream")

	// ErrDeviceMismatch is returned when inputs and model live on different devices.
	ErrDeviceMismatch = errors.New("device mismatch")

	// ErrPassInProgress is returned when Run is called while another pass is running.
	ErrPassInProgress = errors.New("evaluation pass already in progress")
)

// BatchError reports the batch that aborted an evaluation pass
type BatchError struct {
	// Batch is the zero-based position of the failing batch in the stream.
	Batch int

	// Processed is the number of samples from earlier batches that were discarded with the pass.
	Processed int

	Err error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d (after %d samples): %v", e.Batch, e.Processed, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// PostProcessError is returned alongside completed results when persisting or
// exporting them failed. The results themselves are valid.
type PostProcessError struct {
	Stage string
	Err   error
}

func (e *PostProcessError) Error() string {
	return "post-processing failed at " + e.Stage + ": " + e.Err.Error()
}

func (e *PostProcessError) Unwrap() error {
	return e.Err
}
