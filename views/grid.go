package views

import (
	"context"
	"fmt"

	results "github.com/FrenchMajesty/classifier-results"
)

// GridOptions sets the largest grid a view may use. Zero values default to 6 x 6.
type GridOptions struct {
	Rows int
	Cols int
}

func (o *GridOptions) applyDefaults() {
	if o.Rows <= 0 {
		o.Rows = 6
	}
	if o.Cols <= 0 {
		o.Cols = 6
	}
}

// Grid lays out correctly or incorrectly classified samples. The grid is the
// largest square no bigger than opts that the available records can fill.
func Grid(res *results.Results, denorm results.Denormalizer, correct bool, opts GridOptions) (PlotData, error) {
	opts.applyDefaults()

	records := res.Records.Select(correct)
	if len(records) == 0 {
		return PlotData{}, ErrNoRecords
	}
	rows, cols := clampGrid(len(records), opts.Rows, opts.Cols)

	panels := make([]Panel, 0, rows*cols)
	for num := 0; num < rows*cols; num++ {
		rec := records[num]
		img, err := imageData(denorm, rec.Input)
		if err != nil {
			return PlotData{}, fmt.Errorf("sample %d: %w", rec.Index, err)
		}
		panels = append(panels, Panel{
			Row:     num / cols,
			Col:     num % cols,
			Title:   "GT:" + res.ClassName(rec.GroundTruth),
			Caption: "Predicted: " + res.ClassName(rec.Predicted),
			Image:   img,
		})
	}

	plotType, title := IncorrectGrid, "Misclassified Images"
	if correct {
		plotType, title = CorrectGrid, "Correctly Classified Images"
	}

	return PlotData{
		PlotType:  plotType,
		Title:     title,
		Timestamp: res.FinishedAt,
		RunID:     res.RunID,
		Layout:    &Layout{Rows: rows, Cols: cols},
		Panels:    panels,
		Config:    PlotConfig{Width: 1000, Height: 1000},
		Metrics: map[string]any{
			"available": len(records),
			"shown":     len(panels),
		},
	}, nil
}

// DataGrid previews the first batch of a stream with ground-truth titles
func DataGrid(ctx context.Context, stream results.BatchStream, denorm results.Denormalizer, classNames []string, opts GridOptions) (PlotData, error) {
	opts.applyDefaults()

	batch, err := results.First(ctx, stream)
	if err != nil {
		return PlotData{}, err
	}
	if err := batch.Inputs.Validate(); err != nil {
		return PlotData{}, err
	}
	n := batch.Inputs.Len()
	if n == 0 {
		return PlotData{}, ErrNoRecords
	}
	if len(batch.Labels) != n {
		return PlotData{}, fmt.Errorf("%w: %d labels for %d inputs", results.ErrShapeMismatch, len(batch.Labels), n)
	}
	rows, cols := clampGrid(n, opts.Rows, opts.Cols)

	panels := make([]Panel, 0, rows*cols)
	for num := 0; num < rows*cols; num++ {
		img, err := imageData(denorm, batch.Inputs.Sample(num))
		if err != nil {
			return PlotData{}, fmt.Errorf("sample %d: %w", num, err)
		}
		panels = append(panels, Panel{
			Row:   num / cols,
			Col:   num % cols,
			Title: "GT:" + name(classNames, batch.Labels[num]),
			Image: img,
		})
	}

	return PlotData{
		PlotType:  DataGridPlot,
		Title:     "Training Data",
		Timestamp: timeNow(),
		Layout:    &Layout{Rows: rows, Cols: cols},
		Panels:    panels,
		Config:    PlotConfig{Width: 1000, Height: 1000},
	}, nil
}

// imageData denormalizes a [C, H, W] sample and transposes it to HWC
func imageData(denorm results.Denormalizer, sample results.Tensor) (*ImageData, error) {
	img, err := denorm.Apply(sample)
	if err != nil {
		return nil, err
	}
	if len(img.Shape) != 3 {
		return nil, fmt.Errorf("%w: expected a [C H W] image, got shape %v", results.ErrShapeMismatch, img.Shape)
	}
	return toHWC(img), nil
}

func toHWC(img results.Tensor) *ImageData {
	c, h, w := img.Shape[0], img.Shape[1], img.Shape[2]
	plane := h * w
	pixels := make([]float32, c*plane)
	for ch := 0; ch < c; ch++ {
		for i := 0; i < plane; i++ {
			pixels[i*c+ch] = img.Data[ch*plane+i]
		}
	}
	return &ImageData{
		Height:    h,
		Width:     w,
		Channels:  c,
		Grayscale: c == 1,
		Pixels:    pixels,
	}
}

func name(classNames []string, c int) string {
	if c >= 0 && c < len(classNames) {
		return classNames[c]
	}
	return fmt.Sprint(c)
}
