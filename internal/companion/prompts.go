package companion

import (
	_ "embed"

	"github.com/jackzampolin/leaflet/internal/prompts"
)

//go:embed analyze.tmpl
var analyzePrompt string

//go:embed chat_system.tmpl
var chatSystemPrompt string

//go:embed summarize.tmpl
var summarizePrompt string

// Prompt keys
const (
	AnalyzePromptKey    = "companion.analyze"
	ChatSystemPromptKey = "companion.chat.system"
	SummarizePromptKey  = "companion.summarize"
)

// RegisterPrompts registers the companion prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         AnalyzePromptKey,
		Text:        analyzePrompt,
		Description: "Single-page analysis: summary, dates, prices, calls to action, visual hierarchy",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         ChatSystemPromptKey,
		Text:        chatSystemPrompt,
		Description: "System instruction for questions about the visible page",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         SummarizePromptKey,
		Text:        summarizePrompt,
		Description: "Structured summary with key points, validated against a JSON schema",
	})
}
