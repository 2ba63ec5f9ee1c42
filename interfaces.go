package results

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Model is a trained classifier
type Model interface {
	// Forward maps an [N, ...] input batch to [N, C] class scores.
	Forward(ctx context.Context, inputs Tensor) (Tensor, error)

	// SetInferenceMode switches the model into (true) or out of (false) inference-only mode.
	SetInferenceMode(enabled bool)

	// Device reports where the model expects its inputs.
	Device() Device
}

// BatchStream yields (inputs, labels) batches once, in order, and io.EOF when exhausted
type BatchStream interface {
	Next(ctx context.Context) (Batch, error)
}

// SummaryPersistence stores run summaries
type SummaryPersistence interface {
	Save(ctx context.Context, summary Summary) error
	Load(ctx context.Context, runID uuid.UUID) (*Summary, error)
}

// RecordSink receives the classified samples of a completed run, e.g. for indexing
type RecordSink interface {
	Export(ctx context.Context, results *Results) error
}

// Clock supplies run timestamps
type Clock interface {
	Now() time.Time
}
