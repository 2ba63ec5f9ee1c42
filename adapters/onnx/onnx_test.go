package onnx

import (
	"context"
	"os"
	"testing"

	results "github.com/FrenchMajesty/classifier-results"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{ModelPath: "model.onnx", NumClasses: 10}
	cfg.applyDefaults()

	assert.Equal(t, "input", cfg.InputName)
	assert.Equal(t, "output", cfg.OutputName)
	assert.NoError(t, cfg.validate())
}

func TestNewModel_InvalidConfig(t *testing.T) {
	tests := map[string]Config{
		"missing model path": {NumClasses: 10},
		"missing classes":    {ModelPath: "model.onnx"},
		"negative classes":   {ModelPath: "model.onnx", NumClasses: -1},
	}

	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewModel(cfg)
			assert.Error(t, err)
		})
	}
}

func TestToShape(t *testing.T) {
	shape := toShape([]int{4, 3, 32, 32})
	assert.Equal(t, int64(4*3*32*32), shape.FlattenedSize())
	assert.Len(t, shape, 4)
}

func TestModel_InferenceMode(t *testing.T) {
	m := &Model{numClasses: 10}
	assert.False(t, m.InferenceMode())

	m.SetInferenceMode(true)
	assert.True(t, m.InferenceMode())
	assert.Equal(t, results.DeviceCPU, m.Device())
}

// Runs only when a runtime library and a model with 10 outputs over [N 1 28 28] inputs are available
func TestModel_Forward(t *testing.T) {
	lib, path := os.Getenv("ONNXRUNTIME_LIB"), os.Getenv("ONNX_TEST_MODEL")
	if lib == "" || path == "" {
		t.Skip("ONNXRUNTIME_LIB and ONNX_TEST_MODEL not set")
	}

	model, err := NewModel(Config{ModelPath: path, LibraryPath: lib, NumClasses: 10})
	require.NoError(t, err)
	defer model.Close()

	inputs := results.Tensor{Shape: []int{2, 1, 28, 28}, Data: make([]float32, 2*28*28)}
	scores, err := model.Forward(context.Background(), inputs)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 10}, scores.Shape)
	assert.Equal(t, results.DeviceCPU, scores.Device)

	require.NoError(t, model.Close())
	_, err = model.Forward(context.Background(), inputs)
	assert.Error(t, err)
}
