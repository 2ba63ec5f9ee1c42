package results

import (
	"encoding/json"
	"fmt"
)

// ConfusionMatrix counts samples per (ground truth, predicted) class pair.
// Rows are ground truth, columns are predictions.
type ConfusionMatrix struct {
	n      int
	counts []int64
}

// NewConfusionMatrix returns an all-zero matrix for n classes.
func NewConfusionMatrix(n int) ConfusionMatrix {
	return ConfusionMatrix{
		n:      n,
		counts: make([]int64, n*n),
	}
}

// Size returns the number of classes.
func (m ConfusionMatrix) Size() int {
	return m.n
}

// At returns the count for ground truth class gt predicted as class pred.
func (m ConfusionMatrix) At(gt, pred int) int64 {
	return m.counts[gt*m.n+pred]
}

// add increments one cell. Only the aggregation pass calls it.
func (m *ConfusionMatrix) add(gt, pred int) {
	m.counts[gt*m.n+pred]++
}

// Row returns a copy of the counts for ground truth class gt.
func (m ConfusionMatrix) Row(gt int) []int64 {
	row := make([]int64, m.n)
	copy(row, m.counts[gt*m.n:(gt+1)*m.n])
	return row
}

// RowSum returns the number of samples whose ground truth is gt.
func (m ConfusionMatrix) RowSum(gt int) int64 {
	var sum int64
	for _, c := range m.counts[gt*m.n : (gt+1)*m.n] {
		sum += c
	}
	return sum
}

// ColumnSum returns the number of samples predicted as pred.
func (m ConfusionMatrix) ColumnSum(pred int) int64 {
	var sum int64
	for gt := 0; gt < m.n; gt++ {
		sum += m.counts[gt*m.n+pred]
	}
	return sum
}

// Diagonal returns the correctly classified count per class.
func (m ConfusionMatrix) Diagonal() []int64 {
	diag := make([]int64, m.n)
	for c := 0; c < m.n; c++ {
		diag[c] = m.counts[c*m.n+c]
	}
	return diag
}

// Total returns the number of samples counted.
func (m ConfusionMatrix) Total() int64 {
	var sum int64
	for _, c := range m.counts {
		sum += c
	}
	return sum
}

// Rows returns the matrix as a fresh [][]int64.
func (m ConfusionMatrix) Rows() [][]int64 {
	rows := make([][]int64, m.n)
	for gt := range rows {
		rows[gt] = m.Row(gt)
	}
	return rows
}

// Merge returns the cell-wise sum of two matrices of the same size.
// Merging is associative and commutative, so partial matrices built over
// disjoint parts of a stream can be combined in any order.
func (m ConfusionMatrix) Merge(other ConfusionMatrix) (ConfusionMatrix, error) {
	if m.n != other.n {
		return ConfusionMatrix{}, fmt.Errorf("%w: cannot merge %dx%d with %dx%d confusion matrix", ErrShapeMismatch, m.n, m.n, other.n, other.n)
	}
	merged := NewConfusionMatrix(m.n)
	for i := range merged.counts {
		merged.counts[i] = m.counts[i] + other.counts[i]
	}
	return merged, nil
}

func (m ConfusionMatrix) clone() ConfusionMatrix {
	c := NewConfusionMatrix(m.n)
	copy(c.counts, m.counts)
	return c
}

// MarshalJSON encodes the matrix as a list of rows
func (m ConfusionMatrix) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Rows())
}

// UnmarshalJSON decodes a square list of rows
func (m *ConfusionMatrix) UnmarshalJSON(data []byte) error {
	var rows [][]int64
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	decoded := NewConfusionMatrix(len(rows))
	for gt, row := range rows {
		if len(row) != len(rows) {
			return fmt.Errorf("%w: confusion matrix row %d has %d columns, expected %d", ErrShapeMismatch, gt, len(row), len(rows))
		}
		for pred, c := range row {
			if c < 0 {
				return fmt.Errorf("confusion matrix cell (%d,%d) is negative", gt, pred)
			}
			decoded.counts[gt*decoded.n+pred] = c
		}
	}
	*m = decoded
	return nil
}
