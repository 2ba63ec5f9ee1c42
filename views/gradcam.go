package views

import (
	"context"
	"fmt"
	"math"

	results "github.com/FrenchMajesty/classifier-results"
)

// ActivationMapper computes class activation maps for a batch of images.
// Given [N, C, H, W] images and optional target classes (nil means the
// predicted class), it returns one [H, W] mask in [0, 1] per image and the
// class the model assigned to each image.
type ActivationMapper interface {
	Map(ctx context.Context, images results.Tensor, classIDs []int) (masks []results.Tensor, labels []int, err error)
}

// GradCAMOptions configures the Grad-CAM view
type GradCAMOptions struct {
	// Correct selects correctly classified records instead of misclassified ones.
	Correct bool

	// UseGroundTruth targets the ground-truth class instead of the predicted one.
	UseGroundTruth bool

	// BatchSize is the number of records sent to the mapper. If 0, uses 64.
	BatchSize int

	// HeatmapWeight and ImageWeight blend the colored mask with the image. Default 0.5 each.
	HeatmapWeight float32
	ImageWeight   float32

	// Alpha scales the blended image after normalization. If 0, uses 1.
	Alpha float32

	Rows int
	Cols int
}

func (o *GradCAMOptions) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 64
	}
	if o.HeatmapWeight == 0 && o.ImageWeight == 0 {
		o.HeatmapWeight, o.ImageWeight = 0.5, 0.5
	}
	if o.Alpha == 0 {
		o.Alpha = 1
	}
	if o.Rows <= 0 {
		o.Rows = 6
	}
	if o.Cols <= 0 {
		o.Cols = 6
	}
}

// GradCAM overlays activation maps on the first BatchSize correct or incorrect records
func GradCAM(ctx context.Context, res *results.Results, denorm results.Denormalizer, mapper ActivationMapper, opts GradCAMOptions) (PlotData, error) {
	opts.applyDefaults()

	records := res.Records.Select(opts.Correct)
	if len(records) == 0 {
		return PlotData{}, ErrNoRecords
	}
	records = records[:min(opts.BatchSize, len(records))]

	samples := make([]results.Tensor, len(records))
	var classIDs []int
	if opts.UseGroundTruth {
		classIDs = make([]int, len(records))
	}
	for i, rec := range records {
		samples[i] = rec.Input
		if opts.UseGroundTruth {
			classIDs[i] = rec.GroundTruth
		}
	}
	batch, err := results.Stack(samples)
	if err != nil {
		return PlotData{}, err
	}
	if len(batch.Shape) != 4 {
		return PlotData{}, fmt.Errorf("%w: expected [N C H W] images, got shape %v", results.ErrShapeMismatch, batch.Shape)
	}

	masks, labels, err := mapper.Map(ctx, batch, classIDs)
	if err != nil {
		return PlotData{}, fmt.Errorf("activation mapping failed: %w", err)
	}
	if len(masks) != len(records) || len(labels) != len(records) {
		return PlotData{}, fmt.Errorf("%w: mapper returned %d masks and %d labels for %d images", results.ErrShapeMismatch, len(masks), len(labels), len(records))
	}
	for i, mask := range masks {
		if err := mask.Validate(); err != nil {
			return PlotData{}, fmt.Errorf("mask of sample %d: %w", records[i].Index, err)
		}
	}

	rows, cols := clampGrid(len(records), opts.Rows, opts.Cols)
	panels := make([]Panel, 0, rows*cols)
	for num := 0; num < rows*cols; num++ {
		img, err := denorm.Apply(records[num].Input)
		if err != nil {
			return PlotData{}, fmt.Errorf("sample %d: %w", records[num].Index, err)
		}
		combined, err := overlay(masks[num], img, opts)
		if err != nil {
			return PlotData{}, fmt.Errorf("sample %d: %w", records[num].Index, err)
		}
		panels = append(panels, Panel{
			Row:     num / cols,
			Col:     num % cols,
			Title:   "GT:" + res.ClassName(records[num].GroundTruth),
			Caption: "Predicted: " + res.ClassName(labels[num]),
			Image:   combined,
		})
	}

	classText := "Predicted"
	if opts.UseGroundTruth {
		classText = "Actual"
	}
	correctText := "Mis"
	if opts.Correct {
		correctText = "Correctly"
	}

	return PlotData{
		PlotType:  GradCAMOverlay,
		Title:     fmt.Sprintf("Grad-CAM of %s Classified Images with respect to %s Class", correctText, classText),
		Timestamp: res.FinishedAt,
		RunID:     res.RunID,
		Layout:    &Layout{Rows: rows, Cols: cols},
		Panels:    panels,
		Config:    PlotConfig{Width: 1000, Height: 1000},
	}, nil
}

// overlay blends a jet-colored [H, W] mask with a [C, H, W] image and returns
// an RGB image normalized by its maximum and scaled by alpha
func overlay(mask, img results.Tensor, opts GradCAMOptions) (*ImageData, error) {
	if len(img.Shape) != 3 {
		return nil, fmt.Errorf("%w: expected a [C H W] image, got shape %v", results.ErrShapeMismatch, img.Shape)
	}
	c, h, w := img.Shape[0], img.Shape[1], img.Shape[2]
	if len(mask.Shape) != 2 || mask.Shape[0] != h || mask.Shape[1] != w {
		return nil, fmt.Errorf("%w: mask shape %v does not match image %dx%d", results.ErrShapeMismatch, mask.Shape, h, w)
	}
	if c != 1 && c != 3 {
		return nil, fmt.Errorf("%w: cannot overlay a %d channel image", results.ErrShapeMismatch, c)
	}

	plane := h * w
	pixels := make([]float32, 3*plane)
	var maxValue float32
	for i := 0; i < plane; i++ {
		heat := jet(mask.Data[i])
		for ch := 0; ch < 3; ch++ {
			src := ch
			if c == 1 {
				src = 0
			}
			v := opts.HeatmapWeight*heat[ch] + opts.ImageWeight*img.Data[src*plane+i]
			pixels[i*3+ch] = v
			maxValue = max(maxValue, v)
		}
	}

	if maxValue > 0 {
		for i := range pixels {
			pixels[i] = pixels[i] / maxValue * opts.Alpha
		}
	}

	return &ImageData{Height: h, Width: w, Channels: 3, Pixels: pixels}, nil
}

// jet maps v in [0, 1] to the jet colormap
func jet(v float32) [3]float32 {
	x := float64(min(max(v, 0), 1))
	channel := func(center float64) float32 {
		return float32(math.Min(math.Max(1.5-math.Abs(4*x-center), 0), 1))
	}
	return [3]float32{channel(3), channel(2), channel(1)}
}
