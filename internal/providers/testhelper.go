package providers

import (
	"os"
)

// TestConfig holds provider API keys loaded from environment variables so
// live tests use the same configuration path as production.
type TestConfig struct {
	GeminiAPIKey     string
	OpenRouterAPIKey string
}

// LoadTestConfig loads provider API keys from environment variables.
func LoadTestConfig() TestConfig {
	return TestConfig{
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
	}
}

// HasAnyLLM returns true if any provider key is configured.
func (c TestConfig) HasAnyLLM() bool {
	return c.GeminiAPIKey != "" || c.OpenRouterAPIKey != ""
}

// ToRegistryConfig converts test config to a RegistryConfig.
// Only providers with API keys are included.
func (c TestConfig) ToRegistryConfig() RegistryConfig {
	cfg := RegistryConfig{LLMProviders: make(map[string]LLMProviderConfig)}
	if c.GeminiAPIKey != "" {
		cfg.LLMProviders["gemini"] = LLMProviderConfig{
			Type:      TypeGemini,
			APIKey:    c.GeminiAPIKey,
			RateLimit: 1,
			Enabled:   true,
		}
	}
	if c.OpenRouterAPIKey != "" {
		cfg.LLMProviders["openrouter"] = LLMProviderConfig{
			Type:      TypeOpenRouter,
			APIKey:    c.OpenRouterAPIKey,
			RateLimit: 1,
			Enabled:   true,
		}
	}
	return cfg
}
