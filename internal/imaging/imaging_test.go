package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"math"
	"strings"
	"testing"

	results "github.com/FrenchMajesty/classifier-results"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToImage_Gray(t *testing.T) {
	img, err := ToImage(results.Tensor{Shape: []int{1, 1, 2}, Data: []float32{0, 1}})
	require.NoError(t, err)

	gray, ok := img.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, []uint8{0, 255}, gray.Pix)
}

func TestToImage_RGB(t *testing.T) {
	img, err := ToImage(results.Tensor{Shape: []int{3, 1, 1}, Data: []float32{1, 0.5, 0}})
	require.NoError(t, err)

	rgb, ok := img.(*image.NRGBA)
	require.True(t, ok)
	assert.Equal(t, []uint8{255, 128, 0, 255}, rgb.Pix)
}

func TestToImage_Rejects(t *testing.T) {
	tests := map[string]results.Tensor{
		"flat":        {Shape: []int{4}, Data: make([]float32, 4)},
		"two channel": {Shape: []int{2, 1, 1}, Data: make([]float32, 2)},
		"short data":  {Shape: []int{1, 2, 2}, Data: []float32{0.5}},
	}
	for name, tensor := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ToImage(tensor)
			assert.ErrorIs(t, err, results.ErrShapeMismatch)
		})
	}
}

func TestPNGDataURL(t *testing.T) {
	url, err := PNGDataURL(results.Tensor{Shape: []int{1, 2, 2}, Data: []float32{0, 0.25, 0.5, 1}})
	require.NoError(t, err)

	const prefix = "data:image/png;base64,"
	require.True(t, strings.HasPrefix(url, prefix))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())
}

func TestToByte(t *testing.T) {
	assert.Equal(t, uint8(0), toByte(-0.5))
	assert.Equal(t, uint8(0), toByte(float32(math.NaN())))
	assert.Equal(t, uint8(255), toByte(2))
	assert.Equal(t, uint8(128), toByte(0.5))
}
