package openai

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/FrenchMajesty/classifier-results/internal/retry"
)

// OpenAIClient is a minimal client for the OpenAI Chat API
type OpenAIClient struct {
	APIKey       string
	DumpRequests bool
	BaseURL      string
	HTTPClient   *http.Client
	RetryConfig  retry.Config
	Logger       retry.Logger
}

type LanguageModelClient interface {
	ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error)
	SetBaseURL(baseUrl string)
}

// ChatCompletionRequest is the request body for the chat completion endpoint
type ChatCompletionRequest struct {
	Model               string        `json:"model"`
	Messages            []ChatMessage `json:"messages"`
	MaxCompletionTokens int           `json:"max_completion_tokens,omitempty"`
	Temperature         float32       `json:"temperature,omitempty"`
}

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

type ContentPartType string

const (
	ContentPartText  ContentPartType = "text"
	ContentPartImage ContentPartType = "image_url"
)

// ContentPart is one element of a multimodal message
type ContentPart struct {
	Type     ContentPartType `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *ImageURL       `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// TextPart builds a text content part
func TextPart(text string) ContentPart {
	return ContentPart{Type: ContentPartText, Text: text}
}

// ImagePart builds an image content part from a URL or data URL
func ImagePart(url string) ContentPart {
	return ContentPart{Type: ContentPartImage, ImageURL: &ImageURL{URL: url, Detail: "low"}}
}

// ChatMessage is a request message
type ChatMessage struct {
	Role    MessageRole   `json:"role"`
	Content []ContentPart `json:"content"`
}

// ResponseMessage is the assistant message returned in a choice
type ResponseMessage struct {
	Role    MessageRole `json:"role"`
	Content *string     `json:"content,omitempty"`
	Refusal *string     `json:"refusal,omitempty"`
}

type ChatCompletionChoice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

// The response from the chat completion endpoint
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   ChatCompletionUsage    `json:"usage"`
}

type ChatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type ChatCompletionResponseError struct {
	Error ChatError `json:"error"`
}

// ChatCompletionError wraps standard errors with raw response body for error logging
type ChatCompletionError struct {
	Message    string          `json:"message"`
	StatusCode int             `json:"status_code,omitempty"`
	RawBody    json.RawMessage `json:"raw_body,omitempty"`
}

func (e *ChatCompletionError) Error() string {
	return e.Message
}

// GetRawResponseBody returns the raw response body if available
func (e *ChatCompletionError) GetRawResponseBody() json.RawMessage {
	return e.RawBody
}
