package results

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// Evaluator runs a model once over a batch stream and caches everything the
// diagnostic views need, so no view ever runs the model again.
type Evaluator struct {
	model       Model
	numClasses  int
	classNames  []string
	undefined   UndefinedPolicy
	denorm      Denormalizer
	persistence SummaryPersistence
	sink        RecordSink
	clock       Clock
	logf        func(format string, args ...any)

	stateLock sync.Mutex
	state     State
}

// NewEvaluator creates a new Evaluator with the given configuration
func NewEvaluator(cfg Config) (*Evaluator, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Evaluator{
		model:       cfg.Model,
		numClasses:  cfg.NumClasses,
		classNames:  append([]string(nil), cfg.ClassNames...),
		undefined:   cfg.UndefinedAccuracy,
		denorm:      NewDenormalizer(cfg.Mean, cfg.Std),
		persistence: cfg.Persistence,
		sink:        cfg.Sink,
		clock:       cfg.Clock,
		logf:        cfg.Logger,
	}, nil
}

// State returns the state of the current or most recent pass.
func (e *Evaluator) State() State {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()
	return e.state
}

// Denormalizer maps normalized inputs back to display range.
func (e *Evaluator) Denormalizer() Denormalizer {
	return e.denorm
}

// ClassNames returns the class names used in reports.
func (e *Evaluator) ClassNames() []string {
	return append([]string(nil), e.classNames...)
}

// Run consumes the stream exactly once and returns the partitioned results.
// Any error aborts the whole pass and no results are returned, except for a
// *PostProcessError, which accompanies valid results.
func (e *Evaluator) Run(ctx context.Context, stream BatchStream) (*Results, error) {
	e.stateLock.Lock()
	if e.state == StateRunning {
		e.stateLock.Unlock()
		return nil, ErrPassInProgress
	}
	e.state = StateRunning
	e.stateLock.Unlock()

	runID := uuid.New()
	startedAt := e.clock.Now()
	e.logf("evaluation %s: starting pass over %d classes", runID, e.numClasses)

	e.model.SetInferenceMode(true)

	acc, err := e.aggregate(ctx, stream)
	if err != nil {
		e.setState(StateFailed)
		e.logf("evaluation %s: pass failed: %v", runID, err)
		return nil, fmt.Errorf("evaluation pass failed: %w", err)
	}

	res := &Results{
		RunID:             runID,
		StartedAt:         startedAt,
		FinishedAt:        e.clock.Now(),
		ClassNames:        append([]string(nil), e.classNames...),
		Records:           acc.records,
		Confusion:         acc.confusion,
		Accuracy:          AccuracyFromConfusion(acc.confusion),
		UndefinedAccuracy: e.undefined,
	}
	e.setState(StateCompleted)
	e.logf("evaluation %s: %d samples in %d batches, %d correct, %d incorrect",
		runID, res.Samples(), acc.batches, len(res.Records.Correct), len(res.Records.Incorrect))

	if undefined := res.Accuracy.Undefined(); len(undefined) > 0 {
		e.logf("evaluation %s: %d classes have no samples and no defined accuracy", runID, len(undefined))
	}

	return res, e.postProcess(ctx, res)
}

func (e *Evaluator) setState(s State) {
	e.stateLock.Lock()
	e.state = s
	e.stateLock.Unlock()
}

// aggregate folds every batch of the stream into a fresh accumulator
func (e *Evaluator) aggregate(ctx context.Context, stream BatchStream) (*accumulator, error) {
	acc := newAccumulator(e.numClasses)

	for {
		if err := ctx.Err(); err != nil {
			return nil, acc.fail(err)
		}

		batch, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, acc.fail(fmt.Errorf("failed to read batch: %w", err))
		}

		if err := e.checkBatch(batch); err != nil {
			return nil, acc.fail(err)
		}

		scores, err := e.model.Forward(ctx, batch.Inputs)
		if err != nil {
			return nil, acc.fail(fmt.Errorf("model forward failed: %w", err))
		}

		predicted, err := predict(scores, batch.Inputs.Len(), e.numClasses)
		if err != nil {
			return nil, acc.fail(err)
		}

		acc.commit(batch, predicted)
	}

	if acc.samples == 0 {
		return nil, ErrEmptyStream
	}

	return acc, nil
}

// checkBatch validates a batch before the model sees it
func (e *Evaluator) checkBatch(b Batch) error {
	if err := b.Inputs.Validate(); err != nil {
		return fmt.Errorf("invalid inputs: %w", err)
	}
	if len(b.Labels) != b.Inputs.Len() {
		return fmt.Errorf("%w: %d labels for %d inputs", ErrShapeMismatch, len(b.Labels), b.Inputs.Len())
	}
	for i, l := range b.Labels {
		if l < 0 || l >= e.numClasses {
			return fmt.Errorf("%w: label %d of sample %d outside [0, %d)", ErrShapeMismatch, l, i, e.numClasses)
		}
	}
	if md := e.model.Device(); !md.Compatible(b.Inputs.Device) {
		return fmt.Errorf("%w: inputs on %q, model on %q", ErrDeviceMismatch, b.Inputs.Device, md)
	}
	return nil
}

// predict takes the argmax of every row of an [n, numClasses] score tensor
func predict(scores Tensor, n, numClasses int) ([]int, error) {
	if err := scores.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model output: %w", err)
	}
	if len(scores.Shape) != 2 || scores.Shape[0] != n || scores.Shape[1] != numClasses {
		return nil, fmt.Errorf("%w: model output shape %v, expected [%d %d]", ErrShapeMismatch, scores.Shape, n, numClasses)
	}

	predicted := make([]int, n)
	for i := range predicted {
		predicted[i] = Argmax(scores.Row(i))
	}
	return predicted, nil
}

// postProcess persists and exports a completed run
func (e *Evaluator) postProcess(ctx context.Context, res *Results) error {
	if e.persistence != nil {
		if err := e.persistence.Save(ctx, res.Summary()); err != nil {
			e.logf("evaluation %s: failed to save summary: %v", res.RunID, err)
			return &PostProcessError{Stage: "persistence", Err: err}
		}
	}

	if e.sink != nil {
		if err := e.sink.Export(ctx, res); err != nil {
			e.logf("evaluation %s: failed to export records: %v", res.RunID, err)
			return &PostProcessError{Stage: "export", Err: err}
		}
	}

	return nil
}
