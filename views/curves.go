package views

import "fmt"

// LossAccuracy plots per-epoch training and test loss and accuracy as four panels
func LossAccuracy(trainLoss, trainAcc, testLoss, testAcc []float64) PlotData {
	panel := func(row, col int, title string, values []float64) Panel {
		return Panel{
			Row:    row,
			Col:    col,
			Title:  title,
			Series: []SeriesData{lineSeries(title, values)},
		}
	}

	return PlotData{
		PlotType:  LossAccuracyPlot,
		Title:     "Loss and Accuracy",
		Timestamp: timeNow(),
		Layout:    &Layout{Rows: 2, Cols: 2},
		Panels: []Panel{
			panel(0, 0, "Training Loss", trainLoss),
			panel(0, 1, "Test Loss", testLoss),
			panel(1, 0, "Training Accuracy", trainAcc),
			panel(1, 1, "Test Accuracy", testAcc),
		},
		Config: PlotConfig{Width: 1500, Height: 1000},
	}
}

// CombinedOptions labels a Combined plot. Empty fields take the defaults
// epochs, Accuracy, "Test vs Train" and [Train, Test].
type CombinedOptions struct {
	XLabel string
	YLabel string
	Title  string
	Legend []string
}

func (o *CombinedOptions) applyDefaults() {
	if o.XLabel == "" {
		o.XLabel = "epochs"
	}
	if o.YLabel == "" {
		o.YLabel = "Accuracy"
	}
	if o.Title == "" {
		o.Title = "Test vs Train"
	}
	if o.Legend == nil {
		o.Legend = []string{"Train", "Test"}
	}
}

// Combined plots several curves on a single set of axes
func Combined(curves [][]float64, opts CombinedOptions) PlotData {
	opts.applyDefaults()

	series := make([]SeriesData, len(curves))
	for i, values := range curves {
		name := fmt.Sprintf("series %d", i)
		if i < len(opts.Legend) {
			name = opts.Legend[i]
		}
		series[i] = lineSeries(name, values)
	}

	return PlotData{
		PlotType:  CombinedPlot,
		Title:     opts.Title,
		Timestamp: timeNow(),
		Series:    series,
		Config: PlotConfig{
			XAxisLabel: opts.XLabel,
			YAxisLabel: opts.YLabel,
			ShowLegend: true,
			Legend:     opts.Legend,
			Width:      800,
			Height:     600,
		},
	}
}

func lineSeries(name string, values []float64) SeriesData {
	data := make([]DataPoint, len(values))
	for i, v := range values {
		data[i] = DataPoint{X: i, Y: v}
	}
	return SeriesData{Name: name, Type: "line", Data: data}
}
