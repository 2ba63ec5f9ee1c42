package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	results "github.com/FrenchMajesty/classifier-results"
	"github.com/FrenchMajesty/classifier-results/internal/imaging"
	"github.com/sourcegraph/conc/pool"
)

// ErrUnknownLabel is returned when the model answers with a label outside the class list
var ErrUnknownLabel = errors.New("model returned an unknown label")

const defaultVisionModel = "gpt-4.1-mini"
const defaultVisionPrompt = `You are an image classification assistant. Classify the image into exactly one of these classes:
%s

Rules:
- Return ONLY the class name, exactly as written above
- Do not explain your answer`

// VisionConfig configures a VisionModel
type VisionConfig struct {
	// ClassNames are the labels the model may answer with, in class index order. Required.
	ClassNames []string

	// Model is the chat model name. If empty, uses gpt-4.1-mini.
	Model string

	// SystemPrompt overrides the default prompt. A %s verb receives the class list.
	SystemPrompt string

	// Concurrency bounds the in-flight requests per batch. If 0, uses 4.
	Concurrency int

	// Mean and Std undo input normalization before images are encoded.
	Mean []float64
	Std  []float64

	// Temperature is omitted from requests when nil.
	Temperature *float32
}

// VisionModel classifies images with a multimodal chat model. Each sample of a
// batch becomes one request; the answer is mapped to a one-hot score row.
type VisionModel struct {
	client      LanguageModelClient
	model       string
	prompt      string
	concurrency int
	temperature *float32
	denorm      results.Denormalizer
	labels      map[string]int
	numClasses  int

	mu        sync.Mutex
	inference bool
}

var _ results.Model = (*VisionModel)(nil)

// NewVisionModel creates a VisionModel on top of a chat client
func NewVisionModel(client LanguageModelClient, cfg VisionConfig) (*VisionModel, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if len(cfg.ClassNames) == 0 {
		return nil, fmt.Errorf("class names are required")
	}
	if len(cfg.Mean) != len(cfg.Std) {
		return nil, fmt.Errorf("normalization mean has %d channels but std has %d", len(cfg.Mean), len(cfg.Std))
	}

	m := &VisionModel{
		client:      client,
		model:       defaultVisionModel,
		prompt:      defaultVisionPrompt,
		concurrency: 4,
		temperature: cfg.Temperature,
		denorm:      results.NewDenormalizer(cfg.Mean, cfg.Std),
		labels:      make(map[string]int, len(cfg.ClassNames)),
		numClasses:  len(cfg.ClassNames),
	}
	if cfg.Model != "" {
		m.model = cfg.Model
	}
	if cfg.SystemPrompt != "" {
		m.prompt = cfg.SystemPrompt
	}
	if cfg.Concurrency > 0 {
		m.concurrency = cfg.Concurrency
	}
	if strings.Contains(m.prompt, "%s") {
		m.prompt = fmt.Sprintf(m.prompt, "- "+strings.Join(cfg.ClassNames, "\n- "))
	}

	for i, name := range cfg.ClassNames {
		key := normalizeLabel(name)
		if _, dup := m.labels[key]; dup {
			return nil, fmt.Errorf("duplicate class name %q", name)
		}
		m.labels[key] = i
	}

	return m, nil
}

// Forward classifies an [N, C, H, W] batch with C of 1 or 3.
func (m *VisionModel) Forward(ctx context.Context, inputs results.Tensor) (results.Tensor, error) {
	if len(inputs.Shape) != 4 || (inputs.Shape[1] != 1 && inputs.Shape[1] != 3) {
		return results.Tensor{}, fmt.Errorf("%w: vision model expects [N 1|3 H W] inputs, got %v", results.ErrShapeMismatch, inputs.Shape)
	}

	n := inputs.Len()
	scores := make([]float32, n*m.numClasses)

	p := pool.New().WithMaxGoroutines(m.concurrency).WithContext(ctx).WithCancelOnError()
	for i := 0; i < n; i++ {
		p.Go(func(ctx context.Context) error {
			class, err := m.classify(ctx, inputs.Sample(i))
			if err != nil {
				return fmt.Errorf("sample %d: %w", i, err)
			}
			// Each goroutine owns its own row
			scores[i*m.numClasses+class] = 1
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return results.Tensor{}, err
	}

	return results.Tensor{Shape: []int{n, m.numClasses}, Data: scores, Device: inputs.Device}, nil
}

// SetInferenceMode is recorded only; remote models are always in inference mode.
func (m *VisionModel) SetInferenceMode(enabled bool) {
	m.mu.Lock()
	m.inference = enabled
	m.mu.Unlock()
}

// InferenceMode reports the last mode set with SetInferenceMode
func (m *VisionModel) InferenceMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inference
}

// Device reports the host, where images are encoded before upload.
func (m *VisionModel) Device() results.Device {
	return results.DeviceCPU
}

// classify sends one image and maps the answer to a class index
func (m *VisionModel) classify(ctx context.Context, img results.Tensor) (int, error) {
	dataURL, err := m.encode(img)
	if err != nil {
		return 0, err
	}

	req := ChatCompletionRequest{
		Model: m.model,
		Messages: []ChatMessage{
			{Role: MessageRoleSystem, Content: []ContentPart{TextPart(m.prompt)}},
			{Role: MessageRoleUser, Content: []ContentPart{TextPart("Which class is this image?"), ImagePart(dataURL)}},
		},
		MaxCompletionTokens: 20,
	}
	if m.temperature != nil {
		req.Temperature = *m.temperature
	}

	resp, err := m.client.ChatCompletion(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("failed to get model response: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
		return 0, fmt.Errorf("no response from model")
	}

	answer := *resp.Choices[0].Message.Content
	class, ok := m.labels[normalizeLabel(answer)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLabel, strings.TrimSpace(answer))
	}
	return class, nil
}

// encode denormalizes a [C, H, W] sample and returns it as a PNG data URL
func (m *VisionModel) encode(sample results.Tensor) (string, error) {
	img, err := m.denorm.Apply(sample)
	if err != nil {
		return "", err
	}
	return imaging.PNGDataURL(img)
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Trim(s, `."'`)
}
