// Package prompts holds the companion's prompt templates. Each prompt has an
// embedded default; the companion.prompts config section can replace any of
// them at runtime. Resolved prompts carry a sha256 of their text so recorded
// model calls point at the exact wording used.
package prompts

// EmbeddedPrompt is a built-in default registered at startup.
type EmbeddedPrompt struct {
	Key         string // dotted, e.g. companion.analyze
	Text        string
	Description string
	Variables   []string // filled by Register when empty
	Hash        string   // filled by Register when empty
}

// ResolvedPrompt is the text in effect for a key.
type ResolvedPrompt struct {
	Key        string   `json:"key"`
	Text       string   `json:"text"`
	Variables  []string `json:"variables,omitempty"`
	IsOverride bool     `json:"is_override"`
	Hash       string   `json:"hash"`
}

// PageData is what companion templates render against.
type PageData struct {
	PageNumber int // 1-based
	PageCount  int
	Title      string
}
