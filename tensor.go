package results

import "fmt"

// Device names the compute target a tensor or model lives on, e.g. "cpu" or "cuda:0".
// The empty device means "unspecified" and matches any other device.
type Device string

const (
	DeviceUnspecified Device = ""
	DeviceCPU         Device = "cpu"
)

// Compatible reports whether tensors on d and other can be used together without a copy.
func (d Device) Compatible(other Device) bool {
	return d == DeviceUnspecified || other == DeviceUnspecified || d == other
}

// Tensor is a dense, row-major float32 tensor. The first dimension is the batch dimension.
type Tensor struct {
	Shape  []int
	Data   []float32
	Device Device
}

// NewTensor builds a tensor and checks that the data length matches the shape.
func NewTensor(data []float32, shape ...int) (Tensor, error) {
	t := Tensor{Shape: append([]int(nil), shape...), Data: data}
	if err := t.Validate(); err != nil {
		return Tensor{}, err
	}
	return t, nil
}

// Validate checks that the tensor has at least one dimension and that Data fills Shape exactly.
func (t Tensor) Validate() error {
	if len(t.Shape) == 0 {
		return fmt.Errorf("%w: tensor has no dimensions", ErrShapeMismatch)
	}
	size := 1
	for _, d := range t.Shape {
		if d < 0 {
			return fmt.Errorf("%w: negative dimension in shape %v", ErrShapeMismatch, t.Shape)
		}
		size *= d
	}
	if size != len(t.Data) {
		return fmt.Errorf("%w: shape %v needs %d values, got %d", ErrShapeMismatch, t.Shape, size, len(t.Data))
	}
	return nil
}

// Len returns the size of the batch dimension.
func (t Tensor) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// SampleSize returns the number of values in one sample.
func (t Tensor) SampleSize() int {
	size := 1
	for _, d := range t.Shape[1:] {
		size *= d
	}
	return size
}

// Sample returns a copy of sample i with the batch dimension removed.
func (t Tensor) Sample(i int) Tensor {
	n := t.SampleSize()
	data := make([]float32, n)
	copy(data, t.Data[i*n:(i+1)*n])
	return Tensor{
		Shape:  append([]int(nil), t.Shape[1:]...),
		Data:   data,
		Device: t.Device,
	}
}

// Row returns a view over sample i without copying.
func (t Tensor) Row(i int) []float32 {
	n := t.SampleSize()
	return t.Data[i*n : (i+1)*n]
}

// Stack concatenates samples of identical shape into a batch tensor.
func Stack(samples []Tensor) (Tensor, error) {
	if len(samples) == 0 {
		return Tensor{}, fmt.Errorf("%w: nothing to stack", ErrShapeMismatch)
	}
	shape := samples[0].Shape
	size := len(samples[0].Data)
	data := make([]float32, 0, size*len(samples))
	for i, s := range samples {
		if !sameShape(s.Shape, shape) {
			return Tensor{}, fmt.Errorf("%w: sample %d has shape %v, expected %v", ErrShapeMismatch, i, s.Shape, shape)
		}
		data = append(data, s.Data...)
	}
	return Tensor{
		Shape:  append([]int{len(samples)}, shape...),
		Data:   data,
		Device: samples[0].Device,
	}, nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Argmax returns the index of the largest value. Ties resolve to the lowest index
// and NaN never wins against a number.
func Argmax(scores []float32) int {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] || (scores[best] != scores[best] && scores[i] == scores[i]) {
			best = i
		}
	}
	return best
}
