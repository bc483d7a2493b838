package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	OpenAIName = "openai"

	// GeminiBaseURL is Gemini's OpenAI-compatible endpoint.
	GeminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta/openai/"
	GeminiDefaultModel = "gemini-2.5-flash"
)

// OpenAIConfig holds configuration for the OpenAI-compatible chat client.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string // defaults to GeminiBaseURL
	DefaultModel string // defaults to GeminiDefaultModel
	RateLimit    float64
	MaxRetries   int // SDK transport retries; negative disables
	Timeout      time.Duration
	HTTPClient   *http.Client // optional (tests)
}

// OpenAIClient implements LLMClient over any OpenAI-compatible chat
// completions API using the official SDK.
type OpenAIClient struct {
	apiKey       string
	baseURL      string
	defaultModel string
	rateLimit    float64
	limiter      *RateLimiter
	client       openai.Client
}

// NewOpenAIClient creates a new OpenAI-compatible chat client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = GeminiBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = GeminiDefaultModel
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	cfg.MaxRetries = max(cfg.MaxRetries, 0)
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	)

	return &OpenAIClient{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		defaultModel: cfg.DefaultModel,
		rateLimit:    cfg.RateLimit,
		limiter:      NewRateLimiter(cfg.RateLimit),
		client:       client,
	}
}

// Name returns the client identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// Model returns the configured default model.
func (c *OpenAIClient) Model() string {
	return c.defaultModel
}

// RateLimiter exposes the client's limiter for status reporting.
func (c *OpenAIClient) RateLimiter() *RateLimiter {
	return c.limiter
}

// Chat sends a chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	result := &ChatResult{
		RequestID: requestID,
		Provider:  OpenAIName,
		Attempts:  1,
	}

	params, err := buildOpenAIParams(model, req)
	if err != nil {
		return result.fail(start, "invalid_request", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return result.fail(start, "context_cancelled", err)
	}
	execStart := time.Now()

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		err = mapOpenAIError(err)
		var rl *RateLimitError
		if errors.As(err, &rl) {
			c.limiter.Record429(rl.RetryAfter)
			return result.fail(start, "rate_limited", err)
		}
		return result.fail(start, "http_error", err)
	}
	if len(resp.Choices) == 0 {
		return result.fail(start, "empty_response", fmt.Errorf("no choices in response"))
	}

	result.ModelUsed = resp.Model
	result.PromptTokens = int(resp.Usage.PromptTokens)
	result.CompletionTokens = int(resp.Usage.CompletionTokens)
	result.TotalTokens = int(resp.Usage.TotalTokens)
	return result.succeed(start, execStart, req, resp.Choices[0].Message.Content), nil
}

func buildOpenAIParams(model string, req *ChatRequest) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		case RoleUser:
			if len(m.Images) == 0 {
				params.Messages = append(params.Messages, openai.UserMessage(m.Content))
				continue
			}
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Images)+1)
			for _, img := range m.Images {
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: imageDataURL(m.ImageMimeType, img),
				}))
			}
			if m.Content != "" {
				parts = append(parts, openai.TextContentPart(m.Content))
			}
			params.Messages = append(params.Messages, openai.UserMessage(parts))
		default:
			return params, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}

	if rf := req.ResponseFormat; rf != nil && len(rf.JSONSchema) > 0 {
		var wrapper struct {
			Name   string          `json:"name"`
			Strict bool            `json:"strict"`
			Schema json.RawMessage `json:"schema"`
		}
		if err := json.Unmarshal(rf.JSONSchema, &wrapper); err != nil {
			return params, fmt.Errorf("invalid response schema: %w", err)
		}
		var schema map[string]any
		if err := json.Unmarshal(wrapper.Schema, &schema); err != nil {
			return params, fmt.Errorf("invalid response schema body: %w", err)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   wrapper.Name,
					Schema: schema,
					Strict: openai.Bool(wrapper.Strict),
				},
			},
		}
	}
	return params, nil
}

// imageDataURL encodes an inline image as a data URL.
func imageDataURL(mimeType string, img []byte) string {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(img)
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &RateLimitError{
				Message:    fmt.Sprintf("OpenAI-compatible API rate limited: %s", apiErr.Message),
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		}
		if msg := strings.TrimSpace(apiErr.Message); msg != "" {
			return fmt.Errorf("OpenAI-compatible API error (status %d): %s", apiErr.StatusCode, msg)
		}
		return fmt.Errorf("OpenAI-compatible API error (status %d)", apiErr.StatusCode)
	}
	return err
}

var _ LLMClient = (*OpenAIClient)(nil)
