package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	OpenRouterName    = "openrouter"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// OpenRouterConfig holds configuration for the OpenRouter client.
type OpenRouterConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string // defaults to google/gemini-2.5-flash
	Timeout      time.Duration
	RPS          float64       // default 2
	MaxRetries   int           // attempts, default 3
	RetryDelay   time.Duration // base backoff, default 1s
}

// OpenRouterClient talks to OpenRouter's chat completions API over plain
// HTTP, retrying transient failures.
type OpenRouterClient struct {
	apiKey       string
	baseURL      string
	defaultModel string
	client       *http.Client
	limiter      *RateLimiter

	maxRetries int
	retryDelay time.Duration
}

var _ LLMClient = (*OpenRouterClient)(nil)

// NewOpenRouterClient creates a new OpenRouter client.
func NewOpenRouterClient(cfg OpenRouterConfig) *OpenRouterClient {
	c := &OpenRouterClient{
		apiKey:       cfg.APIKey,
		baseURL:      orDefault(cfg.BaseURL, OpenRouterBaseURL),
		defaultModel: orDefault(cfg.DefaultModel, "google/"+GeminiDefaultModel),
		client:       &http.Client{Timeout: cfg.Timeout},
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}
	if c.client.Timeout == 0 {
		c.client.Timeout = 60 * time.Second
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	if c.retryDelay <= 0 {
		c.retryDelay = time.Second
	}
	c.limiter = NewRateLimiter(cfg.RPS)
	return c
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (c *OpenRouterClient) Name() string { return OpenRouterName }

// Model returns the configured default model.
func (c *OpenRouterClient) Model() string { return c.defaultModel }

// RateLimiter exposes the client's limiter for status reporting.
func (c *OpenRouterClient) RateLimiter() *RateLimiter { return c.limiter }

// Chat sends a chat completion request.
func (c *OpenRouterClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	result := &ChatResult{
		RequestID: req.RequestID,
		Provider:  OpenRouterName,
	}
	if result.RequestID == "" {
		result.RequestID = uuid.New().String()
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	orReq := newOpenRouterRequest(model, req)

	execStart := time.Now()
	orResp, attempts, err := c.doRequest(ctx, "/chat/completions", orReq)
	result.Attempts = attempts
	if err != nil {
		errType := "http_error"
		if IsRateLimitError(err) {
			errType = "rate_limited"
		}
		return result.fail(start, errType, err)
	}

	content, err := orResp.text()
	if err != nil {
		return result.fail(start, "content_marshal_error", err)
	}
	result.ModelUsed = orResp.Model
	result.PromptTokens = orResp.Usage.PromptTokens
	result.CompletionTokens = orResp.Usage.CompletionTokens
	result.TotalTokens = orResp.Usage.TotalTokens
	return result.succeed(start, execStart, req, content), nil
}

// Wire types.

type openRouterRequest struct {
	Model          string                    `json:"model"`
	Messages       []openRouterMessage       `json:"messages"`
	Temperature    *float64                  `json:"temperature,omitempty"`
	MaxTokens      int                       `json:"max_tokens,omitempty"`
	ResponseFormat *openRouterResponseFormat `json:"response_format,omitempty"`
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []openRouterContent
}

type openRouterContent struct {
	Type     string              `json:"type"`
	Text     string              `json:"text,omitempty"`
	ImageURL *openRouterImageURL `json:"image_url,omitempty"`
}

type openRouterImageURL struct {
	URL string `json:"url"`
}

type openRouterResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

type openRouterResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	// Error is set on 200 responses that failed at the model level.
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code,omitempty"` // string or int
	} `json:"error,omitempty"`
}

func newOpenRouterRequest(model string, req *ChatRequest) *openRouterRequest {
	out := &openRouterRequest{
		Model:       model,
		Messages:    make([]openRouterMessage, 0, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, openRouterMessage{Role: m.Role, Content: messageContent(m)})
	}
	if rf := req.ResponseFormat; rf != nil {
		out.ResponseFormat = &openRouterResponseFormat{Type: rf.Type, JSONSchema: rf.JSONSchema}
	}
	return out
}

// messageContent is plain text, or image parts followed by the text for a
// page image message.
func messageContent(m Message) any {
	if len(m.Images) == 0 {
		return m.Content
	}
	parts := make([]openRouterContent, 0, len(m.Images)+1)
	for _, img := range m.Images {
		parts = append(parts, openRouterContent{
			Type:     "image_url",
			ImageURL: &openRouterImageURL{URL: imageDataURL(m.ImageMimeType, img)},
		})
	}
	if m.Content != "" {
		parts = append(parts, openRouterContent{Type: "text", Text: m.Content})
	}
	return parts
}

// text returns the first choice's content. Non-string content is
// re-encoded as JSON.
func (r *openRouterResponse) text() (string, error) {
	switch v := r.Choices[0].Message.Content.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal content: %w", err)
		}
		return string(b), nil
	}
}
