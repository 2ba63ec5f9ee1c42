package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/FrenchMajesty/classifier-results/internal/retry"
	"github.com/google/uuid"
)

// isRetryableError determines if an error should trigger a retry
func (c *OpenAIClient) isRetryableError(err error, statusCode int, responseBody []byte) bool {
	// Network errors
	if err != nil && statusCode == 0 {
		return true
	}

	if statusCode >= 500 || statusCode == http.StatusTooManyRequests {
		return true
	}

	// Image inputs are occasionally rejected with a transient 400
	if statusCode == http.StatusBadRequest {
		var errorResp ChatCompletionResponseError
		if json.Unmarshal(responseBody, &errorResp) == nil && errorResp.Error.Code == "invalid_image" {
			return false
		}
		return true
	}

	return false
}

// createAndRunRetryableRequest executes an HTTP request with retry logic
func (c *OpenAIClient) createAndRunRetryableRequest(ctx context.Context, url string, requestBody any, apiName string) ([]byte, error) {
	opts := retry.Options{
		Config:    c.RetryConfig,
		Retryable: c.isRetryableError,
		Logger:    c.Logger,
		Name:      "OpenAI " + apiName + " API",
	}

	return retry.Execute(ctx, opts, c.buildRetryableFn(ctx, url, requestBody, apiName))
}

// buildRetryableFn builds a retryable function for the given request body
func (c *OpenAIClient) buildRetryableFn(ctx context.Context, url string, requestBody any, apiName string) func(int) retry.Attempt[[]byte] {
	return func(attempt int) retry.Attempt[[]byte] {
		body, err := json.Marshal(requestBody)
		if err != nil {
			return retry.Attempt[[]byte]{Err: fmt.Errorf("failed to marshal %s request: %w", apiName, err)}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
		if err != nil {
			return retry.Attempt[[]byte]{Err: fmt.Errorf("failed to create HTTP request: %w", err)}
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTPClient.Do(httpReq)
		if err != nil {
			return retry.Attempt[[]byte]{Err: err}
		}
		defer resp.Body.Close()

		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.Attempt[[]byte]{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read %s response body: %w", apiName, err)}
		}

		if chatReq, ok := requestBody.(ChatCompletionRequest); c.DumpRequests && ok {
			saveResponseToFile(chatReq.Model, chatReq, bodyBytes, resp.StatusCode)
		}

		if resp.StatusCode != http.StatusOK {
			return retry.Attempt[[]byte]{
				StatusCode:   resp.StatusCode,
				ResponseBody: bodyBytes,
				Err: &ChatCompletionError{
					Message:    fmt.Sprintf("openai %s API error %d", apiName, resp.StatusCode),
					StatusCode: resp.StatusCode,
					RawBody:    json.RawMessage(bodyBytes),
				},
			}
		}

		return retry.Attempt[[]byte]{Value: bodyBytes, StatusCode: resp.StatusCode, ResponseBody: bodyBytes}
	}
}

// saveResponseToFile saves the request/response to a file for debugging purposes
func saveResponseToFile(model string, req ChatCompletionRequest, bodyBytes []byte, statusCode int) {
	timestamp := time.Now().Format("20060102_150405")
	random := uuid.New().String()[:8]
	filename := fmt.Sprintf("openai_req_%s_%s.json", timestamp, random)

	modelDir := filepath.Join("debug_llm_requests", model)
	if err := os.MkdirAll(modelDir, 0755); err != nil {
		log.Printf("Error creating directory %s: %v", modelDir, err)
		return
	}

	var responseBody any
	if err := json.Unmarshal(bodyBytes, &responseBody); err != nil {
		log.Printf("Error parsing response body as JSON: %v", err)
		return
	}

	// Image payloads are large; keep only their prefix in dumps
	req.Messages = append([]ChatMessage(nil), req.Messages...)
	for i := range req.Messages {
		parts := make([]ContentPart, len(req.Messages[i].Content))
		copy(parts, req.Messages[i].Content)
		for j := range parts {
			if parts[j].ImageURL != nil && len(parts[j].ImageURL.URL) > 64 {
				trimmed := *parts[j].ImageURL
				trimmed.URL = trimmed.URL[:64] + "..."
				parts[j].ImageURL = &trimmed
			}
		}
		req.Messages[i].Content = parts
	}

	jsonData, err := json.MarshalIndent(map[string]any{
		"request":  req,
		"response": responseBody,
		"status":   statusCode,
	}, "", "  ")
	if err != nil {
		log.Printf("Error marshaling response data: %v", err)
		return
	}

	path := filepath.Join(modelDir, filename)
	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		log.Printf("Error writing to file %s: %v", path, err)
	}
}
