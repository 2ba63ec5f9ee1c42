package onnx

import (
	"context"
	"fmt"
	"sync"

	results "github.com/FrenchMajesty/classifier-results"
	ort "github.com/yalue/onnxruntime_go"
)

// Config holds configuration for an ONNX model
type Config struct {
	// ModelPath is the exported .onnx file. Required.
	ModelPath string

	// LibraryPath is the onnxruntime shared library. If empty, the runtime's default lookup is used.
	LibraryPath string

	// InputName and OutputName match the names given at export time. Default "input" and "output".
	InputName  string
	OutputName string

	// NumClasses is the width of the output scores. Required.
	NumClasses int
}

// applyDefaults fills in default values for unset config fields
func (c *Config) applyDefaults() {
	if c.InputName == "" {
		c.InputName = "input"
	}
	if c.OutputName == "" {
		c.OutputName = "output"
	}
}

func (c *Config) validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("model path is required")
	}
	if c.NumClasses <= 0 {
		return fmt.Errorf("number of classes must be positive, got %d", c.NumClasses)
	}
	return nil
}

// session is the part of ort.DynamicAdvancedSession the model uses
type session interface {
	Run(inputs, outputs []ort.Value) error
	Destroy() error
}

// Model runs an exported classifier with onnxruntime on the CPU
type Model struct {
	session    session
	numClasses int

	// onnxruntime sessions are not safe for concurrent Run calls
	runLock sync.Mutex

	mu        sync.Mutex
	inference bool
	closed    bool
}

var _ results.Model = (*Model)(nil)

var (
	envLock  sync.Mutex
	envUsers int
)

// acquireEnvironment initializes the shared onnxruntime environment on first use
func acquireEnvironment(libraryPath string) error {
	envLock.Lock()
	defer envLock.Unlock()

	if envUsers == 0 && !ort.IsInitialized() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize onnxruntime: %w", err)
		}
	}
	envUsers++
	return nil
}

// releaseEnvironment destroys the environment when its last model is closed
func releaseEnvironment() error {
	envLock.Lock()
	defer envLock.Unlock()

	envUsers--
	if envUsers > 0 {
		return nil
	}
	envUsers = 0
	return ort.DestroyEnvironment()
}

// NewModel loads an ONNX model. Close must be called to release the runtime.
func NewModel(cfg Config) (*Model, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := acquireEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	s, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName}, nil)
	if err != nil {
		releaseEnvironment()
		return nil, fmt.Errorf("failed to load model %s: %w", cfg.ModelPath, err)
	}

	return &Model{
		session:    s,
		numClasses: cfg.NumClasses,
	}, nil
}

// Forward runs one batch through the session and returns [N, NumClasses] scores.
func (m *Model) Forward(ctx context.Context, inputs results.Tensor) (results.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return results.Tensor{}, err
	}
	if err := inputs.Validate(); err != nil {
		return results.Tensor{}, err
	}

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return results.Tensor{}, fmt.Errorf("model is closed")
	}

	in, err := ort.NewTensor(toShape(inputs.Shape), inputs.Data)
	if err != nil {
		return results.Tensor{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	n := inputs.Len()
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(n), int64(m.numClasses)))
	if err != nil {
		return results.Tensor{}, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer out.Destroy()

	m.runLock.Lock()
	err = m.session.Run([]ort.Value{in}, []ort.Value{out})
	m.runLock.Unlock()
	if err != nil {
		return results.Tensor{}, fmt.Errorf("onnx inference failed: %w", err)
	}

	scores := make([]float32, n*m.numClasses)
	copy(scores, out.GetData())
	return results.Tensor{Shape: []int{n, m.numClasses}, Data: scores, Device: results.DeviceCPU}, nil
}

// SetInferenceMode is recorded only; exported graphs are already in inference form.
func (m *Model) SetInferenceMode(enabled bool) {
	m.mu.Lock()
	m.inference = enabled
	m.mu.Unlock()
}

// InferenceMode reports the last mode set with SetInferenceMode
func (m *Model) InferenceMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inference
}

// Device implements results.Model
func (m *Model) Device() results.Device {
	return results.DeviceCPU
}

// Close destroys the session and, if it was the last one, the runtime environment.
func (m *Model) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if err := m.session.Destroy(); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return releaseEnvironment()
}

func toShape(dims []int) ort.Shape {
	shape := make([]int64, len(dims))
	for i, d := range dims {
		shape[i] = int64(d)
	}
	return ort.NewShape(shape...)
}
