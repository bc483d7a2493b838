package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

const MockClientName = "mock"

var errMockFailure = errors.New("mock client configured to fail")

// MockClient answers chat requests from canned values. Tests set the
// exported fields before the first call.
type MockClient struct {
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // requests allowed before failing; 0 never fails
	ResponseText string
	// ResponseJSON replaces the reply for requests that ask for structured output.
	ResponseJSON json.RawMessage
	// Respond computes the reply and wins over ResponseText.
	Respond func(req *ChatRequest) (string, error)

	mu  sync.Mutex
	log []ChatRequest
}

func NewMockClient() *MockClient {
	return &MockClient{Latency: time.Millisecond, ResponseText: "mock response"}
}

func (c *MockClient) Name() string { return MockClientName }

// Chat records req and answers after Latency.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	n := c.record(req)

	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", n),
		Provider:  MockClientName,
		ModelUsed: req.Model,
		Attempts:  1,
	}

	switch {
	case c.ShouldFail:
		return result.fail(start, "mock_failure", errMockFailure)
	case c.FailAfter > 0 && n > c.FailAfter:
		return result.fail(start, "mock_failure", fmt.Errorf("%w after %d requests", errMockFailure, c.FailAfter))
	}

	timer := time.NewTimer(c.Latency)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return result.fail(start, "context_cancelled", ctx.Err())
	}

	text, err := c.reply(req)
	if err != nil {
		return result.fail(start, "mock_failure", err)
	}

	result.Success = true
	result.Content = text
	if req.ResponseFormat != nil && len(c.ResponseJSON) > 0 {
		result.ParsedJSON = c.ResponseJSON
	}
	result.PromptTokens = estimateTokens(req.Messages)
	result.CompletionTokens = len(result.Content) / 4
	result.TotalTokens = result.PromptTokens + result.CompletionTokens
	result.ExecutionTime = time.Since(start)
	result.TotalTime = result.ExecutionTime
	return result, nil
}

func (c *MockClient) reply(req *ChatRequest) (string, error) {
	if req.ResponseFormat != nil && len(c.ResponseJSON) > 0 {
		return string(c.ResponseJSON), nil
	}
	if c.Respond != nil {
		return c.Respond(req)
	}
	return c.ResponseText, nil
}

// estimateTokens assumes four characters per token.
func estimateTokens(msgs []Message) int {
	n := 0
	for _, m := range msgs {
		n += len(m.Content) / 4
	}
	return n
}

func (c *MockClient) record(req *ChatRequest) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, *req)
	return len(c.log)
}

// RequestCount returns how many requests Chat has received.
func (c *MockClient) RequestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.log)
}

// Requests returns the received requests in arrival order.
func (c *MockClient) Requests() []ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatRequest(nil), c.log...)
}

// LastRequest returns the most recent request, or nil before the first call.
func (c *MockClient) LastRequest() *ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.log) == 0 {
		return nil
	}
	last := c.log[len(c.log)-1]
	return &last
}

var _ LLMClient = (*MockClient)(nil)
