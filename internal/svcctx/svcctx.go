// Package svcctx carries the mounted viewer and its collaborators through
// request contexts. It sits apart from server so endpoints can import it.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/leaflet/internal/config"
	"github.com/jackzampolin/leaflet/internal/home"
	"github.com/jackzampolin/leaflet/internal/llmcall"
	"github.com/jackzampolin/leaflet/internal/metrics"
	"github.com/jackzampolin/leaflet/internal/prompts"
	"github.com/jackzampolin/leaflet/internal/providers"
	"github.com/jackzampolin/leaflet/internal/viewer"
)

// Services is set once the viewer is mounted. Any field except Viewer may
// be nil.
type Services struct {
	Viewer   *viewer.Viewer
	Registry *providers.Registry
	Prompts  *prompts.Resolver
	Calls    *llmcall.Recorder
	Metrics  *metrics.Metrics
	Config   *config.Manager
	Logger   *slog.Logger
	Home     *home.Dir

	// MaxUploadBytes bounds multipart page uploads; zero means the
	// endpoint default.
	MaxUploadBytes int64
}

type servicesKey struct{}

// WithServices returns ctx carrying s.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom returns the services in ctx, or nil before mount.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

func field[T any](ctx context.Context, get func(*Services) T) T {
	if s := ServicesFrom(ctx); s != nil {
		return get(s)
	}
	var zero T
	return zero
}

func ViewerFrom(ctx context.Context) *viewer.Viewer {
	return field(ctx, func(s *Services) *viewer.Viewer { return s.Viewer })
}

func RegistryFrom(ctx context.Context) *providers.Registry {
	return field(ctx, func(s *Services) *providers.Registry { return s.Registry })
}

func PromptsFrom(ctx context.Context) *prompts.Resolver {
	return field(ctx, func(s *Services) *prompts.Resolver { return s.Prompts })
}

func CallsFrom(ctx context.Context) *llmcall.Recorder {
	return field(ctx, func(s *Services) *llmcall.Recorder { return s.Calls })
}

func MetricsFrom(ctx context.Context) *metrics.Metrics {
	return field(ctx, func(s *Services) *metrics.Metrics { return s.Metrics })
}

func ConfigFrom(ctx context.Context) *config.Manager {
	return field(ctx, func(s *Services) *config.Manager { return s.Config })
}

func HomeFrom(ctx context.Context) *home.Dir {
	return field(ctx, func(s *Services) *home.Dir { return s.Home })
}

// LoggerFrom never returns nil; it falls back to slog.Default.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if l := field(ctx, func(s *Services) *slog.Logger { return s.Logger }); l != nil {
		return l
	}
	return slog.Default()
}

// MaxUploadBytesFrom returns the upload limit, or def when none is set.
func MaxUploadBytesFrom(ctx context.Context, def int64) int64 {
	if n := field(ctx, func(s *Services) int64 { return s.MaxUploadBytes }); n > 0 {
		return n
	}
	return def
}
