package results

import "fmt"

// Denormalizer reverses the per-channel (x - mean) / std normalization applied
// before inference so images can be displayed again.
type Denormalizer struct {
	mean []float64
	std  []float64
}

// NewDenormalizer builds a denormalizer. Empty mean and std make it the identity.
func NewDenormalizer(mean, std []float64) Denormalizer {
	return Denormalizer{
		mean: append([]float64(nil), mean...),
		std:  append([]float64(nil), std...),
	}
}

// Channels returns the number of channels the denormalizer was configured for.
func (d Denormalizer) Channels() int {
	return len(d.mean)
}

// Apply returns a denormalized copy of a single [C, H, W] image.
func (d Denormalizer) Apply(img Tensor) (Tensor, error) {
	if err := img.Validate(); err != nil {
		return Tensor{}, err
	}
	out := Tensor{
		Shape:  append([]int(nil), img.Shape...),
		Data:   append([]float32(nil), img.Data...),
		Device: img.Device,
	}
	if len(d.mean) == 0 {
		return out, nil
	}
	if len(img.Shape) != 3 {
		return Tensor{}, fmt.Errorf("%w: expected a [C H W] image, got shape %v", ErrShapeMismatch, img.Shape)
	}
	channels := img.Shape[0]
	if channels != len(d.mean) {
		return Tensor{}, fmt.Errorf("%w: image has %d channels, normalization has %d", ErrShapeMismatch, channels, len(d.mean))
	}

	plane := img.Shape[1] * img.Shape[2]
	for c := 0; c < channels; c++ {
		mean, std := float32(d.mean[c]), float32(d.std[c])
		for i := c * plane; i < (c+1)*plane; i++ {
			out.Data[i] = out.Data[i]*std + mean
		}
	}
	return out, nil
}
