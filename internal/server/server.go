package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackzampolin/leaflet/internal/api"
	"github.com/jackzampolin/leaflet/internal/companion"
	"github.com/jackzampolin/leaflet/internal/config"
	"github.com/jackzampolin/leaflet/internal/home"
	"github.com/jackzampolin/leaflet/internal/library"
	"github.com/jackzampolin/leaflet/internal/llmcall"
	"github.com/jackzampolin/leaflet/internal/metrics"
	"github.com/jackzampolin/leaflet/internal/prompts"
	"github.com/jackzampolin/leaflet/internal/providers"
	"github.com/jackzampolin/leaflet/internal/server/endpoints"
	"github.com/jackzampolin/leaflet/internal/svcctx"
	"github.com/jackzampolin/leaflet/internal/viewer"
)

// Server is the Leaflet HTTP server. It owns one viewer session, mounted
// when the server starts and closed on shutdown.
type Server struct {
	httpServer *http.Server
	registry   *providers.Registry
	prompts    *prompts.Resolver
	calls      *llmcall.Recorder
	companion  *companion.Companion
	viewer     *viewer.Viewer
	configMgr  *config.Manager
	metrics    *metrics.Metrics
	home       *home.Dir
	logger     *slog.Logger
	pagesDir   string
	maxUpload  int64

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// PagesDir is loaded into the book when the server starts
	PagesDir string
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Registry replaces the provider registry built from config
	Registry *providers.Registry
	Metrics  *metrics.Metrics
	Home     *home.Dir
	// SwaggerSpecPath optionally serves a swagger.json from disk
	SwaggerSpecPath string
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := config.DefaultConfig()
	if cfg.ConfigManager != nil {
		c = cfg.ConfigManager.Get()
	}
	layout := c.ToLayoutConfig()
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout config: %w", err)
	}

	registry := cfg.Registry
	if registry == nil {
		registry = providers.NewRegistryFromConfig(c.ToProviderRegistryConfig(), cfg.Logger)
	}

	resolver := prompts.NewResolver(cfg.Logger)
	companion.RegisterPrompts(resolver)
	resolver.SetOverrides(c.Companion.Prompts)

	calls := llmcall.NewRecorder(c.Companion.CallHistory)

	s := &Server{
		registry:  registry,
		prompts:   resolver,
		calls:     calls,
		configMgr: cfg.ConfigManager,
		metrics:   cfg.Metrics,
		home:      cfg.Home,
		logger:    cfg.Logger,
		pagesDir:  cfg.PagesDir,
		maxUpload: int64(c.Server.MaxUploadMB) << 20,
	}

	client, model := s.companionClient(c)
	s.companion = companion.New(companion.Config{
		Client:        client,
		Model:         model,
		Temperature:   c.Companion.Temperature,
		ThreadHistory: c.Companion.ThreadHistory,
		Timeout:       time.Duration(c.Companion.TimeoutSeconds) * time.Second,
		Prompts:       resolver,
		Calls:         calls,
		Logger:        cfg.Logger,
		Metrics:       cfg.Metrics,
	})
	s.viewer = viewer.New(viewer.Options{
		Layout:    layout,
		Companion: s.companion,
		Logger:    cfg.Logger,
		Metrics:   cfg.Metrics,
	})

	if cfg.ConfigManager != nil {
		cfg.ConfigManager.OnChange(s.applyConfig)
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{SwaggerSpecPath: cfg.SwaggerSpecPath}) {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // companion calls wait on the model
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// companionClient looks up the provider the companion is configured to use.
func (s *Server) companionClient(c *config.Config) (providers.LLMClient, string) {
	name := c.Companion.Provider
	if name == "" {
		return nil, ""
	}
	client, err := s.registry.GetLLM(name)
	if err != nil {
		s.logger.Warn("companion disabled: provider not available", "provider", name, "error", err)
		return nil, ""
	}
	return client, c.CompanionModel()
}

// applyConfig pushes a reloaded config into the running services.
func (s *Server) applyConfig(c *config.Config) {
	s.registry.Reload(c.ToProviderRegistryConfig())
	s.prompts.SetOverrides(c.Companion.Prompts)
	s.companion.SetClient(s.companionClient(c))
	if err := s.viewer.SetLayoutConfig(c.ToLayoutConfig()); err != nil {
		s.logger.Error("ignoring layout change", "error", err)
	}
	s.logger.Info("services reloaded from config",
		"providers", s.registry.ListLLM(),
		"companion_enabled", s.companion.Enabled())
}

// Mount loads the pages directory and makes the viewer available to
// handlers. Start calls it; tests may call it directly.
func (s *Server) Mount() error {
	if s.pagesDir != "" {
		_, err := s.viewer.LoadDir(s.pagesDir)
		switch {
		case errors.Is(err, library.ErrNoPages):
			s.logger.Warn("pages directory has no images; waiting for uploads", "dir", s.pagesDir)
		case err != nil:
			return fmt.Errorf("failed to load pages from %s: %w", s.pagesDir, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.services = &svcctx.Services{
		Viewer:         s.viewer,
		Registry:       s.registry,
		Prompts:        s.prompts,
		Calls:          s.calls,
		Metrics:        s.metrics,
		Config:         s.configMgr,
		Logger:         s.logger,
		Home:           s.home,
		MaxUploadBytes: s.maxUpload,
	}
	return nil
}

// Start mounts the viewer and serves HTTP.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.Mount(); err != nil {
		s.setNotRunning()
		return err
	}
	s.logger.Info("viewer mounted",
		"pages", s.viewer.Library().Len(),
		"sheets", s.viewer.Book().TotalSheets(),
		"companion_enabled", s.companion.Enabled())

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown stops the HTTP server and closes the viewer.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.viewer.Close()

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Viewer returns the viewer session.
func (s *Server) Viewer() *viewer.Viewer {
	return s.viewer
}

// Calls returns the model call recorder.
func (s *Server) Calls() *llmcall.Recorder {
	return s.calls
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.mu.RLock()
		services := s.services
		s.mu.RUnlock()
		if services != nil {
			ctx = svcctx.WithServices(ctx, services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the viewer is mounted.
// Returns 503 Service Unavailable until then.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svcctx.ViewerFrom(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
