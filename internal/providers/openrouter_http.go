package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
)

// doRequest posts to OpenRouter, retrying transient failures. It returns the
// number of attempts made.
func (c *OpenRouterClient) doRequest(ctx context.Context, path string, orReq *openRouterRequest) (*openRouterResponse, int, error) {
	var attempts int

	resp, err := retry.DoWithData(
		func() (*openRouterResponse, error) {
			attempts++
			if attempts > 1 {
				c.injectNonce(orReq, attempts-1)
			}
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, retry.Unrecoverable(err)
			}
			return c.post(ctx, path, orReq)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(10*time.Second),
		retry.MaxJitter(max(c.retryDelay/2, time.Millisecond)),
		retry.DelayType(c.retryDelayFor),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, attempts, err
	}
	return resp, attempts, nil
}

// retryDelayFor honors Retry-After on rate limits and otherwise backs off
// exponentially with jitter.
func (c *OpenRouterClient) retryDelayFor(n uint, err error, cfg *retry.Config) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}
	return retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)(n, err, cfg)
}

// post performs one attempt. Errors that must not be retried are wrapped with
// retry.Unrecoverable.
func (c *OpenRouterClient) post(ctx context.Context, path string, orReq *openRouterRequest) (*openRouterResponse, error) {
	bodyBytes, err := json.Marshal(orReq)
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/jackzampolin/leaflet")
	req.Header.Set("X-Title", "Leaflet")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.limiter.Record429(retryAfter)
		return nil, &RateLimitError{
			Message:    fmt.Sprintf("OpenRouter rate limited: %s", string(respBody)),
			RetryAfter: retryAfter,
			StatusCode: resp.StatusCode,
		}
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("OpenRouter error (status %d): %s", resp.StatusCode, string(respBody))
		if shouldRetryStatus(resp.StatusCode) {
			return nil, err
		}
		return nil, retry.Unrecoverable(err)
	}

	var orResp openRouterResponse
	if err := json.Unmarshal(respBody, &orResp); err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to unmarshal response: %w", err))
	}
	if err := checkResponse(&orResp); err != nil {
		return nil, err
	}
	return &orResp, nil
}

// shouldRetryStatus returns true for status codes that should be retried.
func shouldRetryStatus(statusCode int) bool {
	switch statusCode {
	case 413, 422: // retried with a nonce, often cache/format issues
		return true
	default:
		return statusCode >= 500
	}
}

// checkResponse inspects a 200 OK body for API-level errors and empty choices.
func checkResponse(resp *openRouterResponse) error {
	if resp.Error != nil {
		code := fmt.Sprintf("%v", resp.Error.Code)
		switch code {
		case "overloaded", "rate_limit_exceeded", "503", "502", "500":
			return fmt.Errorf("OpenRouter API error (retryable): %s", resp.Error.Message)
		}
		return retry.Unrecoverable(fmt.Errorf("OpenRouter API error: %s", resp.Error.Message))
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("empty choices in response (model=%s, id=%s)", resp.Model, resp.ID)
	}
	return nil
}

// injectNonce appends a unique comment to the last user message so a retried
// request is not served from a provider-side cache.
func (c *OpenRouterClient) injectNonce(req *openRouterRequest, attempt int) {
	comment := fmt.Sprintf("\n<!-- retry_%d_id: %s -->", attempt, uuid.New().String()[:16])

	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != RoleUser {
			continue
		}
		switch content := req.Messages[i].Content.(type) {
		case string:
			req.Messages[i].Content = content + comment
		case []openRouterContent:
			for j := range content {
				if content[j].Type == "text" {
					content[j].Text += comment
					break
				}
			}
		}
		return
	}
}
