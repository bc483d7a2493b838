// Package companion answers questions about the visible page using a remote
// multimodal model. Every failure is converted to a fixed fallback string;
// nothing raises past this package.
package companion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/leaflet/internal/llmcall"
	"github.com/jackzampolin/leaflet/internal/metrics"
	"github.com/jackzampolin/leaflet/internal/prompts"
	"github.com/jackzampolin/leaflet/internal/providers"
)

// Fallback replies.
const (
	AnalyzeFailed = "Unable to analyze this page at the moment. Please check your API key."
	AnalyzeEmpty  = "No analysis available."
	ChatFailed    = "Sorry, I encountered an error processing your request."
	ChatEmpty     = "I couldn't understand that."
)

const (
	DefaultTemperature = 0.4
	DefaultTimeout     = 60 * time.Second
)

var errNoClient = errors.New("no model provider configured")

// Role of a transcript turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one prior exchange forwarded as chat history.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// PageImage is the page the companion looks at.
type PageImage struct {
	Data     []byte
	MimeType string
	Index    int
	Count    int
	Title    string
}

func (p PageImage) data() prompts.PageData {
	return prompts.PageData{PageNumber: p.Index + 1, PageCount: p.Count, Title: p.Title}
}

// AnalysisResult is the structured page summary.
type AnalysisResult struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"keyPoints"`
}

var analysisSchema = json.RawMessage(`{
	"name": "page_analysis",
	"strict": true,
	"schema": {
		"type": "object",
		"properties": {
			"summary": {"type": "string", "minLength": 1},
			"keyPoints": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["summary", "keyPoints"],
		"additionalProperties": false
	}
}`)

// Config configures a Companion.
type Config struct {
	// Client may be nil, in which case every call returns its fallback.
	Client providers.LLMClient
	Model  string

	// Temperature for analyze and summarize. Values <= 0 mean DefaultTemperature.
	Temperature float64

	// ThreadHistory forwards prior turns to the model. When false only the
	// system instruction and the new message are sent.
	ThreadHistory bool

	Timeout time.Duration

	Prompts *prompts.Resolver
	Calls   *llmcall.Recorder
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// DefaultConfig returns the companion defaults without a client.
func DefaultConfig() Config {
	return Config{
		Temperature:   DefaultTemperature,
		ThreadHistory: true,
		Timeout:       DefaultTimeout,
	}
}

// Companion wraps one model client with the analyze, chat and summarize
// operations.
type Companion struct {
	mu     sync.RWMutex
	client providers.LLMClient
	model  string

	temperature   float64
	threadHistory bool
	timeout       time.Duration
	prompts       *prompts.Resolver
	calls         *llmcall.Recorder
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

// New creates a Companion.
func New(cfg Config) *Companion {
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Prompts == nil {
		cfg.Prompts = prompts.NewResolver(cfg.Logger)
	}
	if _, ok := cfg.Prompts.GetEmbedded(AnalyzePromptKey); !ok {
		RegisterPrompts(cfg.Prompts)
	}
	return &Companion{
		client:        cfg.Client,
		model:         cfg.Model,
		temperature:   cfg.Temperature,
		threadHistory: cfg.ThreadHistory,
		timeout:       cfg.Timeout,
		prompts:       cfg.Prompts,
		calls:         cfg.Calls,
		logger:        cfg.Logger.With("component", "companion"),
		metrics:       cfg.Metrics,
	}
}

// Enabled reports whether a model client is configured.
func (c *Companion) Enabled() bool {
	client, _ := c.current()
	return client != nil
}

// SetClient swaps the model client, e.g. after a config reload. Calls already
// in flight finish on the old client.
func (c *Companion) SetClient(client providers.LLMClient, model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client = client
	c.model = model
}

func (c *Companion) current() (providers.LLMClient, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client, c.model
}

// Analyze describes a single page. No history is sent.
func (c *Companion) Analyze(ctx context.Context, page PageImage) string {
	prompt := c.resolve(AnalyzePromptKey, page)
	req := &providers.ChatRequest{
		Temperature: providers.Temperature(c.temperature),
		Messages: []providers.Message{
			userMessage(prompt.Text, &page),
		},
	}

	text, err := c.complete(ctx, metrics.OpAnalyze, prompt, page.Index, req)
	switch {
	case err != nil:
		c.logger.Warn("page analysis failed", "page", page.Index, "error", err)
		return AnalyzeFailed
	case text == "":
		return AnalyzeEmpty
	default:
		return text
	}
}

// Chat answers text about page. page may be nil when no image is available.
// history holds earlier turns, oldest first.
func (c *Companion) Chat(ctx context.Context, history []Turn, text string, page *PageImage) string {
	var pageData PageImage
	pageIndex := -1
	if page != nil {
		pageData = *page
		pageIndex = page.Index
	}
	prompt := c.resolve(ChatSystemPromptKey, pageData)

	msgs := []providers.Message{{Role: providers.RoleSystem, Content: prompt.Text}}
	if c.threadHistory {
		for _, t := range history {
			if strings.TrimSpace(t.Text) == "" {
				continue
			}
			role := providers.RoleUser
			if t.Role == RoleModel {
				role = providers.RoleAssistant
			}
			msgs = append(msgs, providers.Message{Role: role, Content: t.Text})
		}
	}
	msgs = append(msgs, userMessage(text, page))

	reply, err := c.complete(ctx, metrics.OpChat, prompt, pageIndex, &providers.ChatRequest{Messages: msgs})
	switch {
	case err != nil:
		c.logger.Warn("chat failed", "page", pageIndex, "error", err)
		return ChatFailed
	case reply == "":
		return ChatEmpty
	default:
		return reply
	}
}

// Summarize returns a schema-validated summary of page. On failure the
// summary holds the analyze fallback and KeyPoints is empty.
func (c *Companion) Summarize(ctx context.Context, page PageImage) AnalysisResult {
	fallback := AnalysisResult{Summary: AnalyzeFailed, KeyPoints: []string{}}
	client, model := c.current()
	if client == nil {
		c.metrics.ObserveCompanion(metrics.OpSummarize, metrics.OutcomeError, 0)
		return fallback
	}

	prompt := c.resolve(SummarizePromptKey, page)
	req := &providers.ChatRequest{
		Model:          model,
		RequestID:      uuid.New().String(),
		Temperature:    providers.Temperature(c.temperature),
		ResponseFormat: &providers.ResponseFormat{Type: "json_schema", JSONSchema: analysisSchema},
		Messages:       []providers.Message{userMessage(prompt.Text, &page)},
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	parsed, result, err := providers.ChatStructured(ctx, client, req)
	c.record(result, metrics.OpSummarize, prompt, page.Index)

	var out AnalysisResult
	if err == nil {
		err = json.Unmarshal(parsed, &out)
	}
	if err != nil {
		c.metrics.ObserveCompanion(metrics.OpSummarize, metrics.OutcomeError, time.Since(start))
		c.logger.Warn("page summary failed", "page", page.Index, "error", err)
		return fallback
	}
	if out.KeyPoints == nil {
		out.KeyPoints = []string{}
	}
	c.metrics.ObserveCompanion(metrics.OpSummarize, metrics.OutcomeOK, time.Since(start))
	return out
}

// complete runs one chat call with the configured timeout and records it.
func (c *Companion) complete(ctx context.Context, op string, prompt *prompts.ResolvedPrompt, pageIndex int, req *providers.ChatRequest) (string, error) {
	client, model := c.current()
	if client == nil {
		c.metrics.ObserveCompanion(op, metrics.OutcomeError, 0)
		return "", errNoClient
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req.Model = model
	req.RequestID = uuid.New().String()

	start := time.Now()
	result, err := client.Chat(ctx, req)
	c.record(result, op, prompt, pageIndex)

	if err == nil && (result == nil || !result.Success) {
		err = fmt.Errorf("model call unsuccessful")
		if result != nil && result.ErrorMessage != "" {
			err = fmt.Errorf("model call unsuccessful: %s", result.ErrorMessage)
		}
	}
	if err != nil {
		c.metrics.ObserveCompanion(op, metrics.OutcomeError, time.Since(start))
		return "", err
	}

	text := strings.TrimSpace(result.Content)
	outcome := metrics.OutcomeOK
	if text == "" {
		outcome = metrics.OutcomeEmpty
	}
	c.metrics.ObserveCompanion(op, outcome, time.Since(start))
	c.logger.Debug("model call complete",
		"op", op,
		"page", pageIndex,
		"provider", result.Provider,
		"tokens", result.TotalTokens,
		"elapsed", time.Since(start))
	return text, nil
}

func (c *Companion) record(result *providers.ChatResult, op string, prompt *prompts.ResolvedPrompt, pageIndex int) {
	opts := llmcall.RecordOptions{
		Operation:  op,
		PageIndex:  pageIndex,
		PromptKey:  prompt.Key,
		PromptHash: prompt.Hash,
	}
	if op != metrics.OpChat {
		opts.Temperature = providers.Temperature(c.temperature)
	}
	c.calls.Record(result, opts)
}

// resolve returns the rendered prompt for key. A template that fails to
// render is used verbatim.
func (c *Companion) resolve(key string, page PageImage) *prompts.ResolvedPrompt {
	p, err := c.prompts.Resolve(key)
	if err != nil {
		// Registered in New; only reachable if the resolver was swapped out.
		c.logger.Error("prompt missing", "key", key, "error", err)
		return &prompts.ResolvedPrompt{Key: key}
	}
	rendered, err := prompts.Render(p.Text, page.data())
	if err != nil {
		c.logger.Warn("prompt template failed to render", "key", key, "error", err)
		return p
	}
	out := *p
	out.Text = strings.TrimSpace(rendered)
	return &out
}

// userMessage puts the page image before the text.
func userMessage(text string, page *PageImage) providers.Message {
	msg := providers.Message{Role: providers.RoleUser, Content: text}
	if page != nil && len(page.Data) > 0 {
		msg.Images = [][]byte{page.Data}
		msg.ImageMimeType = page.MimeType
	}
	return msg
}
