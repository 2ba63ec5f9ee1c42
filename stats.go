package results

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
)

// ChannelStats holds per-channel statistics of a dataset
type ChannelStats struct {
	Mean []float64
	Std  []float64

	// SampleShape is the shape of one sample of the first batch.
	SampleShape []int
	Batches     int
}

// ComputeChannelStats averages the per-batch channel mean and sample standard
// deviation over every batch of an [N, C, H, W] stream.
func ComputeChannelStats(ctx context.Context, stream BatchStream) (*ChannelStats, error) {
	var stats ChannelStats

	for {
		b, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read batch %d: %w", stats.Batches, err)
		}
		if err := b.Inputs.Validate(); err != nil {
			return nil, fmt.Errorf("batch %d: %w", stats.Batches, err)
		}
		if len(b.Inputs.Shape) != 4 {
			return nil, fmt.Errorf("%w: batch %d has shape %v, expected [N C H W]", ErrShapeMismatch, stats.Batches, b.Inputs.Shape)
		}

		channels := b.Inputs.Shape[1]
		if stats.Batches == 0 {
			stats.Mean = make([]float64, channels)
			stats.Std = make([]float64, channels)
			stats.SampleShape = append([]int(nil), b.Inputs.Shape[1:]...)
		} else if channels != len(stats.Mean) {
			return nil, fmt.Errorf("%w: batch %d has %d channels, expected %d", ErrShapeMismatch, stats.Batches, channels, len(stats.Mean))
		}

		mean, std := batchChannelStats(b.Inputs)
		for c := range mean {
			stats.Mean[c] += mean[c]
			stats.Std[c] += std[c]
		}
		stats.Batches++
	}

	if stats.Batches == 0 {
		return nil, ErrEmptyStream
	}

	for c := range stats.Mean {
		stats.Mean[c] /= float64(stats.Batches)
		stats.Std[c] /= float64(stats.Batches)
	}
	return &stats, nil
}

// batchChannelStats computes mean and unbiased std over dims (N, H, W) per channel
func batchChannelStats(t Tensor) (mean, std []float64) {
	n, channels := t.Shape[0], t.Shape[1]
	plane := t.Shape[2] * t.Shape[3]
	count := float64(n * plane)

	mean = make([]float64, channels)
	std = make([]float64, channels)
	if count == 0 {
		return mean, std
	}
	for c := 0; c < channels; c++ {
		var sum float64
		for s := 0; s < n; s++ {
			base := (s*channels + c) * plane
			for _, v := range t.Data[base : base+plane] {
				sum += float64(v)
			}
		}
		mean[c] = sum / count

		var sq float64
		for s := 0; s < n; s++ {
			base := (s*channels + c) * plane
			for _, v := range t.Data[base : base+plane] {
				d := float64(v) - mean[c]
				sq += d * d
			}
		}
		if count > 1 {
			std[c] = math.Sqrt(sq / (count - 1))
		}
	}
	return mean, std
}
