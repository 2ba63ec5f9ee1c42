package results

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// PerClassAccuracy holds one percentage (0-100) per class. Classes without any
// ground-truth samples have no defined accuracy and hold NaN.
type PerClassAccuracy []float64

// AccuracyFromConfusion computes 100 * diagonal / row sum for every class.
func AccuracyFromConfusion(m ConfusionMatrix) PerClassAccuracy {
	acc := make(PerClassAccuracy, m.Size())
	for c := range acc {
		total := m.RowSum(c)
		if total == 0 {
			acc[c] = math.NaN()
			continue
		}
		acc[c] = 100 * float64(m.At(c, c)) / float64(total)
	}
	return acc
}

// Defined reports whether class c had at least one ground-truth sample.
func (a PerClassAccuracy) Defined(c int) bool {
	return !math.IsNaN(a[c])
}

// Undefined returns the classes without a defined accuracy.
func (a PerClassAccuracy) Undefined() []int {
	var classes []int
	for c := range a {
		if !a.Defined(c) {
			classes = append(classes, c)
		}
	}
	return classes
}

// MarshalJSON writes undefined entries as null
func (a PerClassAccuracy) MarshalJSON() ([]byte, error) {
	out := make([]*float64, len(a))
	for c := range a {
		if a.Defined(c) {
			v := a[c]
			out[c] = &v
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads null entries back as NaN
func (a *PerClassAccuracy) UnmarshalJSON(data []byte) error {
	var in []*float64
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out := make(PerClassAccuracy, len(in))
	for c, v := range in {
		if v == nil {
			out[c] = math.NaN()
			continue
		}
		out[c] = *v
	}
	*a = out
	return nil
}

// UndefinedPolicy decides how classes without an accuracy appear in rankings.
type UndefinedPolicy int

const (
	// UndefinedReport lists undefined classes after all defined ones, flagged as N/A.
	UndefinedReport UndefinedPolicy = iota

	// UndefinedSkip leaves undefined classes out of rankings.
	UndefinedSkip

	// UndefinedZero ranks undefined classes as 0% accurate.
	UndefinedZero
)

func (p UndefinedPolicy) String() string {
	switch p {
	case UndefinedSkip:
		return "skip"
	case UndefinedZero:
		return "zero"
	default:
		return "report"
	}
}

// ParseUndefinedPolicy maps "report", "skip" or "zero" to a policy. An empty string reports.
func ParseUndefinedPolicy(s string) (UndefinedPolicy, error) {
	switch s {
	case "report", "":
		return UndefinedReport, nil
	case "skip":
		return UndefinedSkip, nil
	case "zero":
		return UndefinedZero, nil
	default:
		return UndefinedReport, fmt.Errorf("unknown undefined accuracy policy %q, want report, skip or zero", s)
	}
}

// ClassAccuracy is one entry of a ranking.
type ClassAccuracy struct {
	Class   int
	Name    string
	Value   float64
	Defined bool
}

// Ranked orders classes from least to most accurate. Equal accuracies keep class order.
func (a PerClassAccuracy) Ranked(names []string, policy UndefinedPolicy) []ClassAccuracy {
	ranked := make([]ClassAccuracy, 0, len(a))
	var undefined []ClassAccuracy
	for c := range a {
		entry := ClassAccuracy{Class: c, Name: className(names, c), Value: a[c], Defined: a.Defined(c)}
		if entry.Defined {
			ranked = append(ranked, entry)
			continue
		}
		switch policy {
		case UndefinedSkip:
		case UndefinedZero:
			entry.Value = 0
			ranked = append(ranked, entry)
		default:
			undefined = append(undefined, entry)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Value < ranked[j].Value
	})
	return append(ranked, undefined...)
}

// TopMisclassified returns at most n classes with the lowest accuracy.
func (a PerClassAccuracy) TopMisclassified(n int, names []string, policy UndefinedPolicy) []ClassAccuracy {
	ranked := a.Ranked(names, policy)
	if n >= 0 && n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}
