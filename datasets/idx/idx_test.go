package idx

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	results "github.com/FrenchMajesty/classifier-results"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imagesFile(images [][]byte, rows, cols int) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, []uint32{imagesMagic, uint32(len(images)), uint32(rows), uint32(cols)})
	for _, img := range images {
		buf.Write(img)
	}
	return buf.Bytes()
}

func labelsFile(labels []byte) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, []uint32{labelsMagic, uint32(len(labels))})
	buf.Write(labels)
	return buf.Bytes()
}

func writeGzip(t *testing.T, path string, data []byte) string {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// five 2x2 images; image i is filled with value 51*i and labelled i%3
func writeDataset(t *testing.T) (Config, string, string) {
	t.Helper()
	dir := t.TempDir()

	var images [][]byte
	var labels []byte
	for i := 0; i < 5; i++ {
		v := byte(51 * i)
		images = append(images, []byte{v, v, v, v})
		labels = append(labels, byte(i%3))
	}

	cfg := Config{
		ImagesPath: filepath.Join(dir, "t10k-images-idx3-ubyte.gz"),
		LabelsPath: filepath.Join(dir, "t10k-labels-idx1-ubyte.gz"),
	}
	imgSum := writeGzip(t, cfg.ImagesPath, imagesFile(images, 2, 2))
	labelSum := writeGzip(t, cfg.LabelsPath, labelsFile(labels))
	return cfg, imgSum, labelSum
}

func TestLoad(t *testing.T) {
	cfg, _, _ := writeDataset(t)

	ds, err := Load(cfg)
	require.NoError(t, err)

	assert.Equal(t, 5, ds.Len())
	assert.Equal(t, 2, ds.Rows)
	assert.Equal(t, 2, ds.Cols)
	assert.Equal(t, 3, ds.NumClasses())
	assert.Equal(t, []byte{0, 1, 2, 0, 1}, ds.Labels)
}

func TestLoadUncompressed(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		ImagesPath: filepath.Join(dir, "images-idx3-ubyte"),
		LabelsPath: filepath.Join(dir, "labels-idx1-ubyte"),
	}
	require.NoError(t, os.WriteFile(cfg.ImagesPath, imagesFile([][]byte{{1, 2, 3}}, 1, 3), 0644))
	require.NoError(t, os.WriteFile(cfg.LabelsPath, labelsFile([]byte{7}), 0644))

	ds, err := Load(cfg)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{1, 2, 3}}, ds.Images)
	assert.Equal(t, 8, ds.NumClasses())
}

func TestLoadChecksum(t *testing.T) {
	cfg, imgSum, labelSum := writeDataset(t)

	cfg.ImagesSHA256 = imgSum
	cfg.LabelsSHA256 = labelSum
	_, err := Load(cfg)
	require.NoError(t, err)

	cfg.LabelsSHA256 = "00" + labelSum[2:]
	_, err = Load(cfg)
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestLoadMismatchedCounts(t *testing.T) {
	cfg, _, _ := writeDataset(t)
	writeGzip(t, cfg.LabelsPath, labelsFile([]byte{0, 1}))

	_, err := Load(cfg)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(Config{ImagesPath: filepath.Join(t.TempDir(), "missing.gz")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadImagesErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short header", []byte{0, 0, 8}},
		{"wrong magic", labelsFile([]byte{1, 2})},
		{"truncated", imagesFile([][]byte{{1, 2, 3, 4}}, 2, 2)[:18]},
		{"zero size", imagesFile(nil, 0, 4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := ReadImages(bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestReadLabelsErrors(t *testing.T) {
	_, err := ReadLabels(bytes.NewReader(imagesFile([][]byte{{1}}, 1, 1)))
	assert.ErrorIs(t, err, ErrFormat)

	_, err = ReadLabels(bytes.NewReader(labelsFile([]byte{1, 2, 3})[:9]))
	assert.ErrorIs(t, err, ErrFormat)
}

func TestStreamBatches(t *testing.T) {
	cfg, _, _ := writeDataset(t)
	cfg.BatchSize = 2

	ds, err := Load(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	stream := ds.Stream()

	var sizes []int
	var labels []int
	for {
		b, err := stream.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.NoError(t, b.Inputs.Validate())
		assert.Equal(t, results.DeviceCPU, b.Inputs.Device)
		assert.Equal(t, []int{b.Inputs.Len(), 1, 2, 2}, b.Inputs.Shape)
		sizes = append(sizes, b.Inputs.Len())
		labels = append(labels, b.Labels...)
	}

	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, []int{0, 1, 2, 0, 1}, labels)
}

func TestStreamNormalizes(t *testing.T) {
	cfg, _, _ := writeDataset(t)
	cfg.Mean = 0.5
	cfg.Std = 0.5

	ds, err := Load(cfg)
	require.NoError(t, err)

	b, err := ds.Stream().Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, b.Inputs.Len())

	// pixel values 0, 51, ..., 204 are 0, 0.2, ..., 0.8 before normalization
	for i, want := range []float32{-1, -0.6, -0.2, 0.2, 0.6} {
		assert.InDelta(t, want, b.Inputs.Row(i)[0], 1e-6)
	}

	denorm := results.NewDenormalizer([]float64{0.5}, []float64{0.5})
	img, err := denorm.Apply(b.Inputs.Sample(4))
	require.NoError(t, err)
	assert.InDelta(t, 0.8, img.Data[0], 1e-6)
}

func TestStreamLimitAndCancel(t *testing.T) {
	cfg, _, _ := writeDataset(t)
	cfg.Limit = 3

	ds, err := Load(cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ds.Stream().Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamEvaluates(t *testing.T) {
	cfg, _, _ := writeDataset(t)
	ds, err := Load(cfg)
	require.NoError(t, err)

	stats, err := results.ComputeChannelStats(context.Background(), ds.Stream())
	require.NoError(t, err)
	require.Len(t, stats.Mean, 1)
	assert.InDelta(t, 0.4, stats.Mean[0], 1e-6)
}
