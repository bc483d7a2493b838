// Package llmcall keeps a bounded history of companion model calls so a
// reader can see which prompt (by key and hash) produced which answer, what
// it cost in tokens and how long it took.
package llmcall

import (
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/leaflet/internal/providers"
)

// Call is one recorded model round trip.
type Call struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	Operation  string `json:"operation"` // analyze, summarize or chat
	PageIndex  int    `json:"page_index"`
	PromptKey  string `json:"prompt_key"`
	PromptHash string `json:"prompt_hash,omitempty"`

	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`

	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	Attempts     int `json:"attempts"`
	LatencyMs    int `json:"latency_ms"`

	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Response string `json:"response"`
}

// RecordOptions is what the caller knows about a call that the provider's
// result does not.
type RecordOptions struct {
	Operation   string
	PageIndex   int
	PromptKey   string
	PromptHash  string
	Temperature *float64 // nil when the provider default applied
}

// FromChatResult builds a Call with a fresh ID, or nil for a nil result.
func FromChatResult(result *providers.ChatResult, opts RecordOptions) *Call {
	if result == nil {
		return nil
	}
	c := &Call{
		ID:          uuid.NewString(),
		RequestID:   result.RequestID,
		Timestamp:   time.Now(),
		Operation:   opts.Operation,
		PageIndex:   opts.PageIndex,
		PromptKey:   opts.PromptKey,
		PromptHash:  opts.PromptHash,
		Provider:    result.Provider,
		Model:       result.ModelUsed,
		Temperature: opts.Temperature,
		Attempts:    result.Attempts,
		LatencyMs:   int(result.TotalTime / time.Millisecond),
		Success:     result.Success,
		Response:    result.Content,
	}
	c.InputTokens, c.OutputTokens = result.PromptTokens, result.CompletionTokens
	if !c.Success {
		c.Error = result.ErrorMessage
	}
	return c
}
