// Package imaging turns [C, H, W] tensors with values in [0, 1] into images.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"

	results "github.com/FrenchMajesty/classifier-results"
)

// ToImage converts a grayscale or RGB [C, H, W] tensor to an image
func ToImage(t results.Tensor) (image.Image, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if len(t.Shape) != 3 || (t.Shape[0] != 1 && t.Shape[0] != 3) {
		return nil, fmt.Errorf("%w: expected a [1|3 H W] image, got shape %v", results.ErrShapeMismatch, t.Shape)
	}

	c, h, w := t.Shape[0], t.Shape[1], t.Shape[2]
	plane := h * w
	rect := image.Rect(0, 0, w, h)

	if c == 1 {
		img := image.NewGray(rect)
		for i := 0; i < plane; i++ {
			img.Pix[i] = toByte(t.Data[i])
		}
		return img, nil
	}

	img := image.NewNRGBA(rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			img.SetNRGBA(x, y, color.NRGBA{
				R: toByte(t.Data[i]),
				G: toByte(t.Data[plane+i]),
				B: toByte(t.Data[2*plane+i]),
				A: 255,
			})
		}
	}
	return img, nil
}

// EncodePNG converts the tensor and encodes it as PNG
func EncodePNG(t results.Tensor) ([]byte, error) {
	img, err := ToImage(t)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// PNGDataURL encodes the tensor as a data:image/png;base64 URL
func PNGDataURL(t results.Tensor) (string, error) {
	data, err := EncodePNG(t)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

func toByte(v float32) uint8 {
	switch {
	case v <= 0 || v != v:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v*255 + 0.5)
	}
}
