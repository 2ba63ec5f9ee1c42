package views

import (
	"fmt"
	"strconv"

	results "github.com/FrenchMajesty/classifier-results"
)

// ConfusionHeatmap renders the confusion matrix with annotated counts.
// X is the predicted class and Y the ground-truth label.
func ConfusionHeatmap(res *results.Results) PlotData {
	m := res.Confusion
	data := make([]DataPoint, 0, m.Size()*m.Size())
	for gt := 0; gt < m.Size(); gt++ {
		for pred := 0; pred < m.Size(); pred++ {
			data = append(data, DataPoint{
				X:     pred,
				Y:     gt,
				Z:     m.At(gt, pred),
				Label: strconv.FormatInt(m.At(gt, pred), 10),
			})
		}
	}

	accuracy := make(map[string]any, len(res.Accuracy))
	for c := range res.Accuracy {
		if res.Accuracy.Defined(c) {
			accuracy[res.ClassName(c)] = res.Accuracy[c]
		} else {
			accuracy[res.ClassName(c)] = nil
		}
	}

	return PlotData{
		PlotType:  ConfusionMatrix,
		Title:     fmt.Sprintf("Confusion Matrix (%d samples)", res.Samples()),
		Timestamp: res.FinishedAt,
		RunID:     res.RunID,
		Series: []SeriesData{{
			Name:  "Confusion Matrix",
			Type:  "heatmap",
			Data:  data,
			Style: map[string]any{"colorscale": "Blues", "annotate": true, "format": "d"},
		}},
		Config: PlotConfig{
			XAxisLabel: "Predicted",
			YAxisLabel: "Labels",
			Width:      1000,
			Height:     1000,
			CustomOptions: map[string]any{
				"class_names": res.ClassNames,
			},
		},
		Metrics: map[string]any{
			"overall_accuracy": res.OverallAccuracy(),
			"class_accuracy":   accuracy,
		},
	}
}
