package config

import (
	"time"

	"github.com/jackzampolin/leaflet/internal/companion"
	"github.com/jackzampolin/leaflet/internal/flipbook"
	"github.com/jackzampolin/leaflet/internal/llmcall"
	"github.com/jackzampolin/leaflet/internal/logging"
)

// Config holds leaflet configuration.
// Stored at: ~/.leaflet/config.yaml
type Config struct {
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers" json:"llm_providers"`
	Companion    CompanionCfg              `mapstructure:"companion" yaml:"companion" json:"companion"`
	Layout       LayoutCfg                 `mapstructure:"layout" yaml:"layout" json:"layout"`
	Server       ServerCfg                 `mapstructure:"server" yaml:"server" json:"server"`
	Log          LogCfg                    `mapstructure:"log" yaml:"log" json:"log"`
}

// LLMProviderCfg configures an LLM provider.
type LLMProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type" json:"type"`             // "gemini", "openai", "openrouter"
	Model     string  `mapstructure:"model" yaml:"model" json:"model"`          // Model name
	BaseURL   string  `mapstructure:"base_url" yaml:"base_url" json:"base_url"` // Optional endpoint override
	APIKey    string  `mapstructure:"api_key" yaml:"api_key" json:"api_key"`    // API key (supports ${ENV_VAR} syntax)
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// CompanionCfg configures the AI companion.
type CompanionCfg struct {
	Provider       string            `mapstructure:"provider" yaml:"provider" json:"provider"` // key into llm_providers
	Model          string            `mapstructure:"model" yaml:"model" json:"model"`          // overrides the provider model
	Temperature    float64           `mapstructure:"temperature" yaml:"temperature" json:"temperature"`
	ThreadHistory  bool              `mapstructure:"thread_history" yaml:"thread_history" json:"thread_history"`
	TimeoutSeconds int               `mapstructure:"timeout_seconds" yaml:"timeout_seconds" json:"timeout_seconds"`
	CallHistory    int               `mapstructure:"call_history" yaml:"call_history" json:"call_history"`      // recorded calls kept in memory
	Prompts        map[string]string `mapstructure:"prompts" yaml:"prompts,omitempty" json:"prompts,omitempty"` // prompt key -> template override
}

// LayoutCfg configures page fitting. Zero values use the built-in defaults.
type LayoutCfg struct {
	AspectRatio       float64 `mapstructure:"aspect_ratio" yaml:"aspect_ratio" json:"aspect_ratio"`
	Breakpoint        float64 `mapstructure:"breakpoint" yaml:"breakpoint" json:"breakpoint"`
	NavBandSingle     float64 `mapstructure:"nav_band_single" yaml:"nav_band_single" json:"nav_band_single"`
	NavBandDouble     float64 `mapstructure:"nav_band_double" yaml:"nav_band_double" json:"nav_band_double"`
	HeightShareSingle float64 `mapstructure:"height_share_single" yaml:"height_share_single" json:"height_share_single"`
	HeightShareDouble float64 `mapstructure:"height_share_double" yaml:"height_share_double" json:"height_share_double"`
	WidthShareSingle  float64 `mapstructure:"width_share_single" yaml:"width_share_single" json:"width_share_single"`
	WidthShareDouble  float64 `mapstructure:"width_share_double" yaml:"width_share_double" json:"width_share_double"`
	MinWidth          int     `mapstructure:"min_width" yaml:"min_width" json:"min_width"`
	MinHeight         int     `mapstructure:"min_height" yaml:"min_height" json:"min_height"`
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host        string `mapstructure:"host" yaml:"host" json:"host"`
	Port        string `mapstructure:"port" yaml:"port" json:"port"`
	PagesDir    string `mapstructure:"pages_dir" yaml:"pages_dir" json:"pages_dir"` // optional directory loaded at startup
	MaxUploadMB int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
}

// LogCfg configures logging.
type LogCfg struct {
	Level      string `mapstructure:"level" yaml:"level" json:"level"`
	Format     string `mapstructure:"format" yaml:"format" json:"format"` // text or json
	File       string `mapstructure:"file" yaml:"file" json:"file"`       // optional rotating log file
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" json:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress" json:"compress"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	layout := flipbook.DefaultLayoutConfig()
	return &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"gemini": {
				Type:      "gemini",
				Model:     "gemini-2.5-flash",
				APIKey:    "${GEMINI_API_KEY}",
				RateLimit: 2,
				Enabled:   true,
			},
			"openrouter": {
				Type:      "openrouter",
				Model:     "google/gemini-2.5-flash",
				APIKey:    "${OPENROUTER_API_KEY}",
				RateLimit: 2,
				Enabled:   true,
			},
		},
		Companion: CompanionCfg{
			Provider:       "gemini",
			Temperature:    companion.DefaultTemperature,
			ThreadHistory:  true,
			TimeoutSeconds: int(companion.DefaultTimeout / time.Second),
			CallHistory:    llmcall.DefaultCapacity,
		},
		Layout: LayoutCfg{
			AspectRatio:       layout.AspectRatio,
			Breakpoint:        layout.Breakpoint,
			NavBandSingle:     layout.NavBandSingle,
			NavBandDouble:     layout.NavBandDouble,
			HeightShareSingle: layout.HeightShareSingle,
			HeightShareDouble: layout.HeightShareDouble,
			WidthShareSingle:  layout.WidthShareSingle,
			WidthShareDouble:  layout.WidthShareDouble,
			MinWidth:          layout.MinWidth,
			MinHeight:         layout.MinHeight,
		},
		Server: ServerCfg{
			Host:        "127.0.0.1",
			Port:        "8080",
			MaxUploadMB: 32,
		},
		Log: LogCfg{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// ToLayoutConfig converts the layout section, falling back to the default
// for every zero field.
func (c *Config) ToLayoutConfig() flipbook.LayoutConfig {
	out := flipbook.DefaultLayoutConfig()
	l := c.Layout
	setFloat := func(dst *float64, v float64) {
		if v != 0 {
			*dst = v
		}
	}
	setFloat(&out.AspectRatio, l.AspectRatio)
	setFloat(&out.Breakpoint, l.Breakpoint)
	setFloat(&out.NavBandSingle, l.NavBandSingle)
	setFloat(&out.NavBandDouble, l.NavBandDouble)
	setFloat(&out.HeightShareSingle, l.HeightShareSingle)
	setFloat(&out.HeightShareDouble, l.HeightShareDouble)
	setFloat(&out.WidthShareSingle, l.WidthShareSingle)
	setFloat(&out.WidthShareDouble, l.WidthShareDouble)
	if l.MinWidth != 0 {
		out.MinWidth = l.MinWidth
	}
	if l.MinHeight != 0 {
		out.MinHeight = l.MinHeight
	}
	return out
}

// ToLoggingOptions converts the log section.
func (c *Config) ToLoggingOptions() logging.Options {
	return logging.Options{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       ResolveEnvVars(c.Log.File),
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// Addr returns the server listen address.
func (c *Config) Addr() (host, port string) {
	return c.Server.Host, c.Server.Port
}
