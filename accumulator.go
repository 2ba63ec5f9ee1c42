package results

// accumulator is the state of one pass. It is owned by the pass and only
// handed out once the stream is exhausted.
type accumulator struct {
	confusion ConfusionMatrix
	records   ResultSet
	samples   int
	batches   int
}

func newAccumulator(numClasses int) *accumulator {
	return &accumulator{
		confusion: NewConfusionMatrix(numClasses),
	}
}

// commit folds a fully validated batch into the accumulator.
func (a *accumulator) commit(b Batch, predicted []int) {
	for i, gt := range b.Labels {
		a.confusion.add(gt, predicted[i])
	}

	for i, gt := range b.Labels {
		rec := ClassificationRecord{
			Index:       a.samples + i,
			Input:       b.Inputs.Sample(i),
			Predicted:   predicted[i],
			GroundTruth: gt,
		}
		if rec.Correct() {
			a.records.Correct = append(a.records.Correct, rec)
		} else {
			a.records.Incorrect = append(a.records.Incorrect, rec)
		}
	}

	a.samples += len(b.Labels)
	a.batches++
}

// fail wraps err with the position of the batch being processed.
func (a *accumulator) fail(err error) error {
	return &BatchError{
		Batch:     a.batches,
		Processed: a.samples,
		Err:       err,
	}
}
