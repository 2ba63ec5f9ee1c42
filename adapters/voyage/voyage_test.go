package voyage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	results "github.com/FrenchMajesty/classifier-results"
	"github.com/FrenchMajesty/classifier-results/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type multimodalRequest struct {
	Inputs []struct {
		Content []map[string]string `json:"content"`
	} `json:"inputs"`
	Model     string `json:"model"`
	InputType string `json:"input_type"`
}

const embeddingResponse = `{"object":"list","data":[{"object":"embedding","embedding":[0.1,0.2,0.3],"index":0}],"model":"voyage-multimodal-3","usage":{"total_tokens":1}}`

func fastRetry() retry.Config {
	return retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiple: 1}
}

func graySample() results.Tensor {
	return results.Tensor{Shape: []int{1, 2, 2}, Data: []float32{0, 0.25, 0.5, 1}}
}

func TestImageEmbedder_Embed(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/multimodalembeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "BEARER test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}

		var req multimodalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if len(req.Inputs) != 1 || len(req.Inputs[0].Content) != 1 {
			t.Errorf("expected a single image input, got %+v", req.Inputs)
		} else {
			content := req.Inputs[0].Content[0]
			if content["type"] != "image_base64" || !strings.HasPrefix(content["image_base64"], "data:image/png;base64,") {
				t.Errorf("unexpected content %v", content)
			}
		}
		if req.Model != "voyage-multimodal-3" || req.InputType != "document" {
			t.Errorf("unexpected model %q or input type %q", req.Model, req.InputType)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(embeddingResponse))
	}))
	defer server.Close()

	embedder, err := NewImageEmbedder("test-key", Config{BaseURL: server.URL, RetryConfig: fastRetry()})
	require.NoError(t, err)

	vec, err := embedder.Embed(context.Background(), graySample())
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "voyage-multimodal-3", embedder.Model())
}

func TestImageEmbedder_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(embeddingResponse))
	}))
	defer server.Close()

	embedder, err := NewImageEmbedder("test-key", Config{BaseURL: server.URL, RetryConfig: fastRetry()})
	require.NoError(t, err)

	vec, err := embedder.Embed(context.Background(), graySample())
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestImageEmbedder_ExhaustsRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	embedder, err := NewImageEmbedder("test-key", Config{BaseURL: server.URL, RetryConfig: fastRetry()})
	require.NoError(t, err)

	_, err = embedder.Embed(context.Background(), graySample())
	var exhausted *retry.ExhaustedError
	assert.True(t, errors.As(err, &exhausted))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestImageEmbedder_BadRequest(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"image too small"}`))
	}))
	defer server.Close()

	embedder, err := NewImageEmbedder("test-key", Config{BaseURL: server.URL, RetryConfig: fastRetry()})
	require.NoError(t, err)

	_, err = embedder.Embed(context.Background(), graySample())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image too small")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestImageEmbedder_RejectsNonImageInputs(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	embedder, err := NewImageEmbedder("test-key", Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = embedder.Embed(context.Background(), results.Tensor{Shape: []int{4}, Data: make([]float32, 4)})
	assert.True(t, errors.Is(err, results.ErrShapeMismatch))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestImageEmbedder_CanceledContext(t *testing.T) {
	embedder, err := NewImageEmbedder("test-key", Config{BaseURL: "http://127.0.0.1:0"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = embedder.Embed(ctx, graySample())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewImageEmbedder_Validation(t *testing.T) {
	_, err := NewImageEmbedder("", Config{})
	assert.Error(t, err)

	_, err = NewImageEmbedder("key", Config{Mean: []float64{0.5}})
	assert.Error(t, err)

	embedder, err := NewImageEmbedder("key", Config{InputType: VoyageEmbeddingTypeQuery, Model: "voyage-multimodal-3.5"})
	require.NoError(t, err)
	assert.Equal(t, "query", embedder.inputType)
	assert.Equal(t, "voyage-multimodal-3.5", embedder.Model())
	assert.Equal(t, retry.DefaultConfig(), embedder.retry)
}
