package voyage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	results "github.com/FrenchMajesty/classifier-results"
	"github.com/FrenchMajesty/classifier-results/internal/imaging"
	"github.com/FrenchMajesty/classifier-results/internal/retry"
	"github.com/austinfhunter/voyageai"
)

type VoyageEmbeddingType string

const (
	VoyageEmbeddingTypeDocument VoyageEmbeddingType = "document"
	VoyageEmbeddingTypeQuery    VoyageEmbeddingType = "query"
	VoyageEmbeddingTypeDefault  VoyageEmbeddingType = ""
)

// Config configures an ImageEmbedder
type Config struct {
	// Model is the multimodal model name. If empty, uses voyage-multimodal-3.
	Model string

	// InputType is sent with every request. If empty, uses document.
	InputType VoyageEmbeddingType

	// BaseURL overrides the API endpoint.
	BaseURL string

	// TimeOut is the per-request timeout in milliseconds. If 0, no timeout is set.
	TimeOut int

	// Mean and Std undo input normalization before images are encoded.
	Mean []float64
	Std  []float64

	RetryConfig retry.Config
	Logger      retry.Logger
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = voyageai.ModelVoyageMultimodal3
	}
	if c.InputType == VoyageEmbeddingTypeDefault {
		c.InputType = VoyageEmbeddingTypeDocument
	}
	if c.RetryConfig == (retry.Config{}) {
		c.RetryConfig = retry.DefaultConfig()
	}
}

// ImageEmbedder maps image samples to Voyage multimodal embeddings
type ImageEmbedder struct {
	client    *voyageai.VoyageClient
	model     string
	inputType string
	denorm    results.Denormalizer
	retry     retry.Config
	logger    retry.Logger
}

// NewImageEmbedder creates an embedder with its own client
func NewImageEmbedder(apiKey string, cfg Config) (*ImageEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if len(cfg.Mean) != len(cfg.Std) {
		return nil, fmt.Errorf("normalization mean has %d channels but std has %d", len(cfg.Mean), len(cfg.Std))
	}
	cfg.applyDefaults()

	// The client resends a request MaxRetries times even after a success, so
	// it gets exactly one attempt and retries happen in Embed.
	client := voyageai.NewClient(&voyageai.VoyageClientOpts{
		Key:        apiKey,
		TimeOut:    cfg.TimeOut,
		MaxRetries: 1,
		BaseURL:    cfg.BaseURL,
	})

	return &ImageEmbedder{
		client:    client,
		model:     cfg.Model,
		inputType: string(cfg.InputType),
		denorm:    results.NewDenormalizer(cfg.Mean, cfg.Std),
		retry:     cfg.RetryConfig,
		logger:    cfg.Logger,
	}, nil
}

// Model returns the embedding model name
func (e *ImageEmbedder) Model() string {
	return e.model
}

// Embed returns the embedding of one [C, H, W] sample
func (e *ImageEmbedder) Embed(ctx context.Context, sample results.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := e.denorm.Apply(sample)
	if err != nil {
		return nil, err
	}
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, err
	}
	encoded, err := voyageai.GetBase64(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	inputs := []voyageai.MultimodalContent{{
		Content: []voyageai.MultimodalInput{voyageai.Multimodal(encoded)},
	}}
	opts := retry.Options{
		Config:    e.retry,
		Retryable: retryableStatus,
		Logger:    e.logger,
		Name:      "voyage multimodal embed",
	}

	return retry.Execute(ctx, opts, func(int) retry.Attempt[[]float32] {
		resp, err := e.client.MultimodalEmbed(inputs, e.model, &voyageai.MultimodalRequestOpts{
			InputType: &e.inputType,
		})
		if err != nil {
			return retry.Attempt[[]float32]{Err: fmt.Errorf("could not get embedding: %w", err)}
		}
		// Rate limits and server errors come back as an empty response
		if resp == nil || len(resp.Data) == 0 {
			return retry.Attempt[[]float32]{StatusCode: http.StatusServiceUnavailable}
		}
		return retry.Attempt[[]float32]{Value: resp.Data[0].Embedding}
	})
}

func retryableStatus(err error, statusCode int, _ []byte) bool {
	return err == nil && statusCode >= http.StatusTooManyRequests
}
