// Package idx loads image classification datasets stored in the IDX format
// used by MNIST and Fashion-MNIST, optionally gzip compressed, and serves them
// as a results.BatchStream of normalized [N, 1, H, W] tensors.
package idx

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	results "github.com/FrenchMajesty/classifier-results"
)

const (
	imagesMagic = 0x00000803
	labelsMagic = 0x00000801

	// DefaultBatchSize is used when Config.BatchSize is not set
	DefaultBatchSize = 64
)

// Normalization constants of the MNIST training set
const (
	MNISTMean = 0.1307
	MNISTStd  = 0.3081
)

var (
	// ErrFormat is returned for files that are not valid IDX data
	ErrFormat = errors.New("invalid idx file")

	// ErrChecksum is returned when a file does not match its expected SHA-256
	ErrChecksum = errors.New("checksum mismatch")
)

// Config describes where to find the dataset and how to batch it
type Config struct {
	ImagesPath string
	LabelsPath string

	// Expected hex SHA-256 of the files as stored on disk. Empty skips the check.
	ImagesSHA256 string
	LabelsSHA256 string

	BatchSize int

	// Limit keeps only the first Limit samples when positive.
	Limit int

	// Pixels are scaled to [0, 1] then normalized as (x - Mean) / Std.
	Mean float64
	Std  float64
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Std == 0 {
		c.Std = 1
	}
}

// Dataset holds decoded images and labels
type Dataset struct {
	Rows, Cols int
	Images     [][]byte
	Labels     []byte

	batchSize int
	mean, std float64
}

// Load reads, verifies and decodes an image file and its label file.
func Load(cfg Config) (*Dataset, error) {
	cfg.applyDefaults()

	imgData, err := readFile(cfg.ImagesPath, cfg.ImagesSHA256)
	if err != nil {
		return nil, err
	}
	labelData, err := readFile(cfg.LabelsPath, cfg.LabelsSHA256)
	if err != nil {
		return nil, err
	}

	images, rows, cols, err := ReadImages(bytes.NewReader(imgData))
	if err != nil {
		return nil, fmt.Errorf("file '%s': %w", cfg.ImagesPath, err)
	}
	labels, err := ReadLabels(bytes.NewReader(labelData))
	if err != nil {
		return nil, fmt.Errorf("file '%s': %w", cfg.LabelsPath, err)
	}
	if len(images) != len(labels) {
		return nil, fmt.Errorf("%w: %d images but %d labels", ErrFormat, len(images), len(labels))
	}

	if cfg.Limit > 0 && cfg.Limit < len(images) {
		images = images[:cfg.Limit]
		labels = labels[:cfg.Limit]
	}

	return &Dataset{
		Rows:      rows,
		Cols:      cols,
		Images:    images,
		Labels:    labels,
		batchSize: cfg.BatchSize,
		mean:      cfg.Mean,
		std:       cfg.Std,
	}, nil
}

// readFile returns the file contents, gunzipped when the name ends in .gz
func readFile(path, digest string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read file '%s': %w", path, err)
	}

	if digest != "" {
		sum := sha256.Sum256(raw)
		if got := hex.EncodeToString(sum[:]); !strings.EqualFold(got, digest) {
			return nil, fmt.Errorf("%w: file '%s' has sha256 %s, expected %s", ErrChecksum, path, got, digest)
		}
	}

	if !strings.HasSuffix(path, ".gz") {
		return raw, nil
	}

	gzipReader, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("gzip file '%s': %w", path, err)
	}
	defer gzipReader.Close()

	var uncompressed bytes.Buffer
	if _, err := uncompressed.ReadFrom(gzipReader); err != nil {
		return nil, fmt.Errorf("buffering file '%s': %w", path, err)
	}
	return uncompressed.Bytes(), nil
}

// ReadImages decodes an uncompressed IDX3 unsigned byte image file.
func ReadImages(r io.Reader) (images [][]byte, rows, cols int, err error) {
	br := bufio.NewReader(r)

	var header [4]uint32
	if err := binary.Read(br, binary.BigEndian, &header); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: short image header: %v", ErrFormat, err)
	}
	if header[0] != imagesMagic {
		return nil, 0, 0, fmt.Errorf("%w: image magic %#08x", ErrFormat, header[0])
	}

	count, rows, cols := int(header[1]), int(header[2]), int(header[3])
	size := rows * cols
	if size == 0 {
		return nil, 0, 0, fmt.Errorf("%w: empty image size %dx%d", ErrFormat, rows, cols)
	}

	images = make([][]byte, count)
	for i := range images {
		images[i] = make([]byte, size)
		if _, err := io.ReadFull(br, images[i]); err != nil {
			return nil, 0, 0, fmt.Errorf("%w: image %d of %d truncated", ErrFormat, i, count)
		}
	}
	return images, rows, cols, nil
}

// ReadLabels decodes an uncompressed IDX1 unsigned byte label file.
func ReadLabels(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)

	var header [2]uint32
	if err := binary.Read(br, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: short label header: %v", ErrFormat, err)
	}
	if header[0] != labelsMagic {
		return nil, fmt.Errorf("%w: label magic %#08x", ErrFormat, header[0])
	}

	labels := make([]byte, header[1])
	if _, err := io.ReadFull(br, labels); err != nil {
		return nil, fmt.Errorf("%w: expected %d labels", ErrFormat, header[1])
	}
	return labels, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Images)
}

// NumClasses returns one more than the largest label.
func (d *Dataset) NumClasses() int {
	n := 0
	for _, l := range d.Labels {
		n = max(n, int(l)+1)
	}
	return n
}

// Stream returns a fresh pass over the dataset in file order.
func (d *Dataset) Stream() *Stream {
	return &Stream{ds: d}
}

// Stream yields consecutive batches of a Dataset. The last batch may be short.
type Stream struct {
	ds   *Dataset
	next int
}

// Next implements results.BatchStream
func (s *Stream) Next(ctx context.Context) (results.Batch, error) {
	if err := ctx.Err(); err != nil {
		return results.Batch{}, err
	}

	d := s.ds
	if s.next >= d.Len() {
		return results.Batch{}, io.EOF
	}

	batchSize := d.batchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	std := d.std
	if std == 0 {
		std = 1
	}

	end := min(s.next+batchSize, d.Len())
	n := end - s.next
	size := d.Rows * d.Cols

	data := make([]float32, n*size)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		img := d.Images[s.next+i]
		for j, px := range img {
			data[i*size+j] = float32((float64(px)/255 - d.mean) / std)
		}
		labels[i] = int(d.Labels[s.next+i])
	}
	s.next = end

	return results.Batch{
		Inputs: results.Tensor{Shape: []int{n, 1, d.Rows, d.Cols}, Data: data, Device: results.DeviceCPU},
		Labels: labels,
	}, nil
}
