// Package providers holds the remote model clients the companion talks to.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// LLMClient is the interface for chat completion requests.
type LLMClient interface {
	// Chat sends a chat completion request.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error)

	// Name returns the client identifier (e.g., "openrouter").
	Name() string
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    string   `json:"role"` // "system", "user", "assistant"
	Content string   `json:"content"`
	Images  [][]byte `json:"-"` // sent as base64 data URLs
	// ImageMimeType applies to every image in Images. Defaults to image/jpeg.
	ImageMimeType string `json:"-"`
}

// ResponseFormat specifies structured output format.
type ResponseFormat struct {
	Type       string          `json:"type"` // "json_schema"
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

// ChatRequest is a request to an LLM.
type ChatRequest struct {
	Messages []Message `json:"messages"`

	// Model selection (uses client default if empty)
	Model string `json:"model,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`

	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	RequestID string `json:"-"`
}

// Temperature is a helper for the optional ChatRequest.Temperature field.
func Temperature(t float64) *float64 {
	return &t
}

// ChatResult is the complete response from an LLM call.
type ChatResult struct {
	Content    string          `json:"content"`
	ParsedJSON json.RawMessage `json:"parsed_json,omitempty"` // set if ResponseFormat was set

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	ExecutionTime time.Duration `json:"execution_time"`
	TotalTime     time.Duration `json:"total_time"`

	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used"`

	RequestID string `json:"request_id"`
	Attempts  int    `json:"attempts"`

	Success      bool          `json:"success"`
	ErrorType    string        `json:"error_type,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	RetryAfter   time.Duration `json:"retry_after,omitempty"`
}

// fail records err on the result and returns both, for client error paths.
func (r *ChatResult) fail(start time.Time, errType string, err error) (*ChatResult, error) {
	r.Success = false
	r.ErrorType = errType
	r.ErrorMessage = err.Error()
	r.TotalTime = time.Since(start)
	var rl *RateLimitError
	if errors.As(err, &rl) {
		r.RetryAfter = rl.RetryAfter
	}
	return r, err
}

// succeed fills in a successful answer. When the request asked for
// structured output the content must parse as JSON; otherwise the result is
// marked unsuccessful with ErrorType "json_parse".
func (r *ChatResult) succeed(start, execStart time.Time, req *ChatRequest, content string) *ChatResult {
	r.Success = true
	r.Content = content
	r.ExecutionTime = time.Since(execStart)
	r.TotalTime = time.Since(start)

	if req.ResponseFormat == nil || content == "" {
		return r
	}
	parsed, err := parseStructuredJSON(content)
	if err != nil {
		r.Success = false
		r.ErrorType = "json_parse"
		r.ErrorMessage = fmt.Sprintf("failed to parse JSON response: %v", err)
		return r
	}
	r.ParsedJSON = parsed
	return r
}

// RateLimitError is returned when a provider answers 429.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	StatusCode int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Message, e.RetryAfter)
	}
	return e.Message
}

// IsRateLimitError reports whether err is or wraps a *RateLimitError.
func IsRateLimitError(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// parseRetryAfter parses a Retry-After header in either delay-seconds or
// HTTP-date form. Unparseable or past values return 0.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
