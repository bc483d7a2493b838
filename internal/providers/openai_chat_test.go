package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const chatCompletionBody = `{
	"id":"chatcmpl-1",
	"object":"chat.completion",
	"created":1,
	"model":"gemini-2.5-flash",
	"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":%q}}],
	"usage":{"prompt_tokens":12,"completion_tokens":5,"total_tokens":17}
}`

func TestOpenAIClientChatSuccess(t *testing.T) {
	var payload map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Fatalf("unexpected authorization: %s", auth)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, chatCompletionBody, "A bakery leaflet.")
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{
		APIKey:    "test-key",
		BaseURL:   server.URL,
		RateLimit: 100,
	})

	result, err := client.Chat(context.Background(), &ChatRequest{
		Temperature: Temperature(0.4),
		Messages: []Message{
			{Role: RoleSystem, Content: "Be concise."},
			{Role: RoleUser, Content: "Describe this page", Images: [][]byte{[]byte("png")}, ImageMimeType: "image/png"},
		},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !result.Success || result.Content != "A bakery leaflet." {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.TotalTokens != 17 {
		t.Errorf("TotalTokens = %d, want 17", result.TotalTokens)
	}

	if got, _ := payload["model"].(string); got != GeminiDefaultModel {
		t.Errorf("model = %q, want %q", got, GeminiDefaultModel)
	}
	if got, _ := payload["temperature"].(float64); got != 0.4 {
		t.Errorf("temperature = %v, want 0.4", got)
	}
	messages, _ := payload["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("sent %d messages, want 2", len(messages))
	}
	user := messages[1].(map[string]any)
	parts, ok := user["content"].([]any)
	if !ok || len(parts) != 2 {
		t.Fatalf("user content = %#v, want image and text parts", user["content"])
	}
	url := parts[0].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("image url = %q", url)
	}
}

func TestOpenAIClientChatRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota","type":"rate_limit_error","param":"","code":"rate_limit"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		MaxRetries: -1,
	})

	result, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError, got %T: %v", err, err)
	}
	if rle.RetryAfter != 3*time.Second {
		t.Fatalf("expected RetryAfter=3s, got %v", rle.RetryAfter)
	}
	if result.ErrorType != "rate_limited" || result.RetryAfter != 3*time.Second {
		t.Errorf("result = %+v", result)
	}
	if client.RateLimiter().TryConsume() {
		t.Error("limiter should block after Retry-After")
	}
}

func TestOpenAIClientServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"API key not valid","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "bad", BaseURL: server.URL, MaxRetries: -1})
	result, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status 400") {
		t.Errorf("error = %v, want status in message", err)
	}
	if result.Success || result.ErrorType != "http_error" {
		t.Errorf("result = %+v", result)
	}
}

func TestBuildOpenAIParams(t *testing.T) {
	t.Run("rejects unknown roles", func(t *testing.T) {
		_, err := buildOpenAIParams("m", &ChatRequest{Messages: []Message{{Role: "tool"}}})
		if err == nil {
			t.Error("expected error for unsupported role")
		}
	})

	t.Run("structured response format", func(t *testing.T) {
		params, err := buildOpenAIParams("m", &ChatRequest{
			Messages:       []Message{{Role: RoleUser, Content: "x"}},
			ResponseFormat: &ResponseFormat{Type: "json_schema", JSONSchema: summarySchema},
		})
		if err != nil {
			t.Fatalf("buildOpenAIParams() error = %v", err)
		}
		if params.ResponseFormat.OfJSONSchema == nil {
			t.Fatal("expected JSON schema response format")
		}
		if params.ResponseFormat.OfJSONSchema.JSONSchema.Name != "page_analysis" {
			t.Errorf("schema name = %q", params.ResponseFormat.OfJSONSchema.JSONSchema.Name)
		}
	})
}
