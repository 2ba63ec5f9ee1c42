package results

import (
	"time"

	"github.com/google/uuid"
)

// Batch is one element of a BatchStream: N inputs and their N ground-truth labels
type Batch struct {
	Inputs Tensor
	Labels []int
}

// ClassificationRecord is one evaluated sample
type ClassificationRecord struct {
	// Index is the position of the sample in the stream.
	Index int

	// Input is the sample's own copy of the model input, without the batch dimension.
	Input Tensor

	Predicted   int
	GroundTruth int
}

// Correct reports whether the prediction matches the ground truth.
func (r ClassificationRecord) Correct() bool {
	return r.Predicted == r.GroundTruth
}

// ResultSet partitions every evaluated sample into correct and incorrect,
// each in stream order.
type ResultSet struct {
	Correct   []ClassificationRecord
	Incorrect []ClassificationRecord
}

// Len returns the total number of records.
func (s ResultSet) Len() int {
	return len(s.Correct) + len(s.Incorrect)
}

// Select returns the correct or incorrect records.
func (s ResultSet) Select(correct bool) []ClassificationRecord {
	if correct {
		return s.Correct
	}
	return s.Incorrect
}

// Results is the output of one evaluation pass. It is never modified after
// Run returns and may be read from any number of goroutines.
type Results struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time

	ClassNames []string
	Records    ResultSet
	Confusion  ConfusionMatrix
	Accuracy   PerClassAccuracy

	// Policy used when ranking classes with undefined accuracy.
	UndefinedAccuracy UndefinedPolicy
}

// Samples returns the number of evaluated samples.
func (r *Results) Samples() int {
	return r.Records.Len()
}

// OverallAccuracy returns the percentage of correct samples.
func (r *Results) OverallAccuracy() float64 {
	if r.Samples() == 0 {
		return 0
	}
	return 100 * float64(len(r.Records.Correct)) / float64(r.Samples())
}

// ClassName returns the display name for class c.
func (r *Results) ClassName(c int) string {
	return className(r.ClassNames, c)
}

// TopMisclassified returns the n least accurate classes using the run's policy.
func (r *Results) TopMisclassified(n int) []ClassAccuracy {
	return r.Accuracy.TopMisclassified(n, r.ClassNames, r.UndefinedAccuracy)
}

// Summary returns the persistable part of the results.
func (r *Results) Summary() Summary {
	return Summary{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		ClassNames: append([]string(nil), r.ClassNames...),
		Samples:    r.Samples(),
		Correct:    len(r.Records.Correct),
		Incorrect:  len(r.Records.Incorrect),
		Confusion:  r.Confusion.clone(),
		Accuracy:   append(PerClassAccuracy(nil), r.Accuracy...),
	}
}

// Summary is everything about a run except the sample tensors
type Summary struct {
	RunID      uuid.UUID        `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	ClassNames []string         `json:"class_names"`
	Samples    int              `json:"samples"`
	Correct    int              `json:"correct"`
	Incorrect  int              `json:"incorrect"`
	Confusion  ConfusionMatrix  `json:"confusion"`
	Accuracy   PerClassAccuracy `json:"accuracy"`
}

// State is the lifecycle of an evaluation pass
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "not_started"
	}
}
