package providers

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Provider types understood by the registry.
const (
	TypeOpenAI     = "openai" // any OpenAI-compatible endpoint, Gemini by default
	TypeGemini     = "gemini" // alias of openai with Gemini defaults
	TypeOpenRouter = "openrouter"
)

// RegistryConfig is the llm_providers config section with API keys resolved.
type RegistryConfig struct {
	LLMProviders map[string]LLMProviderConfig
}

// LLMProviderConfig describes one configured provider.
type LLMProviderConfig struct {
	Type      string
	Model     string
	BaseURL   string
	APIKey    string
	RateLimit float64 // requests per second
	Enabled   bool
}

// usable reports whether the entry should produce a client.
func (c LLMProviderConfig) usable() bool { return c.Enabled && c.APIKey != "" }

type registryEntry struct {
	client LLMClient
	// cfg is nil for clients added with RegisterLLM; Reload leaves those alone.
	cfg *LLMProviderConfig
}

// Registry maps provider names to chat clients. It is safe for concurrent
// use and can be rebuilt in place when the config file changes.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
	logger  *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[string]registryEntry{}, logger: slog.Default()}
}

// NewRegistryFromConfig returns a registry holding a client for every
// enabled provider that has an API key.
func NewRegistryFromConfig(cfg RegistryConfig, logger *slog.Logger) *Registry {
	r := NewRegistry()
	if logger != nil {
		r.logger = logger
	}
	r.Reload(cfg)
	return r
}

// RegisterLLM adds or replaces a client under name.
func (r *Registry) RegisterLLM(name string, client LLMClient) {
	r.mu.Lock()
	r.entries[name] = registryEntry{client: client}
	r.mu.Unlock()
	r.logger.Info("registered LLM client", "name", name)
}

// UnregisterLLM drops the client registered under name.
func (r *Registry) UnregisterLLM(name string) {
	r.mu.Lock()
	delete(r.entries, name)
	r.mu.Unlock()
	r.logger.Info("unregistered LLM client", "name", name)
}

// GetLLM returns the client registered under name.
func (r *Registry) GetLLM(name string) (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[name]; ok {
		return e.client, nil
	}
	return nil, fmt.Errorf("LLM client not found: %s", name)
}

func (r *Registry) HasLLM(name string) bool {
	_, err := r.GetLLM(name)
	return err == nil
}

// ListLLM returns the registered names in sorted order.
func (r *Registry) ListLLM() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Reload brings config-built clients in line with cfg. Unchanged providers
// keep their client (and its rate limiter state); changed ones are rebuilt;
// providers that disappeared or were disabled are dropped.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, e := range r.entries {
		if e.cfg == nil {
			continue
		}
		if next, ok := cfg.LLMProviders[name]; !ok || !next.usable() {
			delete(r.entries, name)
			r.logger.Info("unregistered LLM client", "name", name)
		}
	}

	for name, pc := range cfg.LLMProviders {
		if !pc.usable() {
			continue
		}
		prev, exists := r.entries[name]
		if exists && prev.cfg != nil && *prev.cfg == pc {
			continue
		}
		client := newLLMClient(pc)
		if client == nil {
			r.logger.Warn("unknown LLM provider type", "name", name, "type", pc.Type)
			continue
		}
		r.entries[name] = registryEntry{client: client, cfg: &pc}
		verb := "registered"
		if exists {
			verb = "updated"
		}
		r.logger.Info(verb+" LLM client", "name", name, "type", pc.Type, "model", pc.Model)
	}
}

func newLLMClient(cfg LLMProviderConfig) LLMClient {
	switch cfg.Type {
	case TypeOpenAI, TypeGemini:
		return NewOpenAIClient(OpenAIConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			RateLimit:    cfg.RateLimit,
		})
	case TypeOpenRouter:
		return NewOpenRouterClient(OpenRouterConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			RPS:          cfg.RateLimit,
		})
	}
	return nil
}
