package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	results "github.com/FrenchMajesty/classifier-results"
	"github.com/google/uuid"
)

// MockModel is a mock implementation of results.Model for testing
type MockModel struct {
	ForwardFunc func(ctx context.Context, inputs results.Tensor) (results.Tensor, error)
	DeviceName  results.Device

	mu            sync.Mutex
	CallCount     int
	SamplesSeen   int
	InferenceMode bool
	ModeChanges   int
}

func (m *MockModel) Forward(ctx context.Context, inputs results.Tensor) (results.Tensor, error) {
	m.mu.Lock()
	m.CallCount++
	m.SamplesSeen += inputs.Len()
	m.mu.Unlock()

	if m.ForwardFunc != nil {
		return m.ForwardFunc(ctx, inputs)
	}

	// Default: predict class 0 of two classes
	n := inputs.Len()
	scores := make([]float32, n*2)
	for i := 0; i < n; i++ {
		scores[i*2] = 1
	}
	return results.Tensor{Shape: []int{n, 2}, Data: scores, Device: inputs.Device}, nil
}

func (m *MockModel) SetInferenceMode(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InferenceMode = enabled
	m.ModeChanges++
}

func (m *MockModel) Device() results.Device {
	return m.DeviceName
}

// NewLookupModel returns a deterministic model that predicts, for every sample,
// the class stored in the sample's first input value.
func NewLookupModel(numClasses int) *MockModel {
	return &MockModel{
		ForwardFunc: func(ctx context.Context, inputs results.Tensor) (results.Tensor, error) {
			n := inputs.Len()
			scores := make([]float32, n*numClasses)
			for i := 0; i < n; i++ {
				class := int(inputs.Row(i)[0])
				scores[i*numClasses+class] = 1
			}
			return results.Tensor{Shape: []int{n, numClasses}, Data: scores, Device: inputs.Device}, nil
		},
	}
}

// Batch builds a batch of [N, 1] inputs holding the predicted class of each
// sample, for use with NewLookupModel.
func Batch(predicted, labels []int) results.Batch {
	data := make([]float32, len(predicted))
	for i, p := range predicted {
		data[i] = float32(p)
	}
	return results.Batch{
		Inputs: results.Tensor{Shape: []int{len(predicted), 1}, Data: data},
		Labels: labels,
	}
}

// ImageBatch builds a batch of [N, C, S, S] images for use with NewLookupModel.
// The first value of each image holds its predicted class, the rest is 0.5.
func ImageBatch(predicted, labels []int, channels, size int) results.Batch {
	sample := channels * size * size
	data := make([]float32, len(predicted)*sample)
	for i, p := range predicted {
		for j := 0; j < sample; j++ {
			data[i*sample+j] = 0.5
		}
		data[i*sample] = float32(p)
	}
	return results.Batch{
		Inputs: results.Tensor{Shape: []int{len(predicted), channels, size, size}, Data: data},
		Labels: labels,
	}
}

// Evaluate runs a lookup model over the batches and fails the test on error
func Evaluate(tb testing.TB, classNames []string, batches ...results.Batch) *results.Results {
	tb.Helper()

	evaluator, err := results.NewEvaluator(results.Config{
		Model:      NewLookupModel(len(classNames)),
		ClassNames: classNames,
		Clock:      FixedClock{T: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		Logger:     Discard,
	})
	if err != nil {
		tb.Fatalf("failed to create evaluator: %v", err)
	}

	res, err := evaluator.Run(context.Background(), results.NewSliceStream(batches...))
	if err != nil {
		tb.Fatalf("evaluation failed: %v", err)
	}
	return res
}

// MockPersistence is a mock implementation of results.SummaryPersistence for testing
type MockPersistence struct {
	SaveFunc func(ctx context.Context, summary results.Summary) error

	mu        sync.Mutex
	SaveCount int
	Saved     map[uuid.UUID]results.Summary
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Saved: make(map[uuid.UUID]results.Summary),
	}
}

func (m *MockPersistence) Save(ctx context.Context, summary results.Summary) error {
	m.mu.Lock()
	m.SaveCount++
	m.Saved[summary.RunID] = summary
	m.mu.Unlock()

	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, summary)
	}
	return nil
}

func (m *MockPersistence) Load(ctx context.Context, runID uuid.UUID) (*results.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.Saved[runID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

// MockSink is a mock implementation of results.RecordSink for testing
type MockSink struct {
	ExportFunc func(ctx context.Context, res *results.Results) error

	mu          sync.Mutex
	ExportCount int
	Last        *results.Results
}

func (m *MockSink) Export(ctx context.Context, res *results.Results) error {
	m.mu.Lock()
	m.ExportCount++
	m.Last = res
	m.mu.Unlock()

	if m.ExportFunc != nil {
		return m.ExportFunc(ctx, res)
	}
	return nil
}

// FixedClock always returns the same instant
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time {
	return c.T
}

// Discard is a logger that drops every message
func Discard(format string, args ...any) {}
