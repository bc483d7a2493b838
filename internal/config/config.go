package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/leaflet/internal/providers"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
	logger    *slog.Logger
}

// NewManager creates a new config manager and loads initial config.
// An empty cfgFile searches ./config.yaml then homeDir/config.yaml.
func NewManager(cfgFile, homeDir string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
		logger:    slog.Default(),
	}

	if err := cm.initViper(cfgFile, homeDir); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// SetLogger sets the logger used for reload errors.
func (cm *Manager) SetLogger(logger *slog.Logger) {
	if logger != nil {
		cm.logger = logger
	}
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile, homeDir string) error {
	v := cm.v
	setDefaults(v, DefaultConfig())

	// Environment variables with LEAFLET_ prefix, e.g. LEAFLET_SERVER_PORT.
	v.SetEnvPrefix("LEAFLET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if homeDir != "" {
			v.AddConfigPath(homeDir)
		}
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults registers every leaf so partial config files and env vars
// merge with the defaults instead of replacing whole sections.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("llm_providers", d.LLMProviders)

	v.SetDefault("companion.provider", d.Companion.Provider)
	v.SetDefault("companion.model", d.Companion.Model)
	v.SetDefault("companion.temperature", d.Companion.Temperature)
	v.SetDefault("companion.thread_history", d.Companion.ThreadHistory)
	v.SetDefault("companion.timeout_seconds", d.Companion.TimeoutSeconds)
	v.SetDefault("companion.call_history", d.Companion.CallHistory)

	v.SetDefault("layout.aspect_ratio", d.Layout.AspectRatio)
	v.SetDefault("layout.breakpoint", d.Layout.Breakpoint)
	v.SetDefault("layout.nav_band_single", d.Layout.NavBandSingle)
	v.SetDefault("layout.nav_band_double", d.Layout.NavBandDouble)
	v.SetDefault("layout.height_share_single", d.Layout.HeightShareSingle)
	v.SetDefault("layout.height_share_double", d.Layout.HeightShareDouble)
	v.SetDefault("layout.width_share_single", d.Layout.WidthShareSingle)
	v.SetDefault("layout.width_share_double", d.Layout.WidthShareDouble)
	v.SetDefault("layout.min_width", d.Layout.MinWidth)
	v.SetDefault("layout.min_height", d.Layout.MinHeight)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.pages_dir", d.Server.PagesDir)
	v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.ToLayoutConfig().Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout config: %w", err)
	}
	return &cfg, nil
}

// ConfigFile returns the path of the loaded config file, if any.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. A file that fails to
// parse or validate is logged and the previous config stays active.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			cm.logger.Warn("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		cm.logger.Info("config reloaded", "file", e.Name)
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		LLMProviders: make(map[string]providers.LLMProviderConfig),
	}
	for name, llm := range c.LLMProviders {
		cfg.LLMProviders[name] = providers.LLMProviderConfig{
			Type:      llm.Type,
			Model:     llm.Model,
			BaseURL:   llm.BaseURL,
			APIKey:    ResolveEnvVars(llm.APIKey),
			RateLimit: llm.RateLimit,
			Enabled:   llm.Enabled,
		}
	}
	return cfg
}

// CompanionModel returns the model the companion should request: the
// companion override, else the selected provider's model.
func (c *Config) CompanionModel() string {
	if c.Companion.Model != "" {
		return c.Companion.Model
	}
	return c.LLMProviders[c.Companion.Provider].Model
}

// Redacted returns a copy with API keys that resolved to a value masked.
// Unresolved ${VAR} references are kept so users can see what is expected.
func (c *Config) Redacted() *Config {
	out := *c
	out.LLMProviders = make(map[string]LLMProviderCfg, len(c.LLMProviders))
	for name, p := range c.LLMProviders {
		if p.APIKey != "" && !envVarPattern.MatchString(p.APIKey) {
			p.APIKey = "********"
		}
		out.LLMProviders[name] = p
	}
	return &out
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Leaflet configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export GEMINI_API_KEY=xxx OPENROUTER_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
