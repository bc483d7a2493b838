// Package viewer assembles one viewer session: the page library, the
// flipbook, its input navigator and keyboard hub, and the companion session.
package viewer

import (
	"log/slog"
	"sync"

	"github.com/jackzampolin/leaflet/internal/companion"
	"github.com/jackzampolin/leaflet/internal/flipbook"
	"github.com/jackzampolin/leaflet/internal/library"
	"github.com/jackzampolin/leaflet/internal/metrics"
)

// Options configures a Viewer.
type Options struct {
	Layout    flipbook.LayoutConfig
	Companion *companion.Companion
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Viewer is the composition root of a mounted viewer. The flipbook reports
// page changes to the companion session; keyboard input reaches the
// navigator through the hub until Close.
type Viewer struct {
	library   *library.Library
	book      *flipbook.Flipbook
	nav       *flipbook.Navigator
	keys      *flipbook.KeyHub
	companion *companion.Companion
	session   *companion.Session
	logger    *slog.Logger
	metrics   *metrics.Metrics

	mu      sync.RWMutex
	layout  flipbook.LayoutConfig
	unmount func()
}

// New builds and mounts a viewer.
func New(opts Options) *Viewer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Layout == (flipbook.LayoutConfig{}) {
		opts.Layout = flipbook.DefaultLayoutConfig()
	}
	if opts.Companion == nil {
		cfg := companion.DefaultConfig()
		cfg.Logger = opts.Logger
		cfg.Metrics = opts.Metrics
		opts.Companion = companion.New(cfg)
	}

	lib := library.New()
	book := flipbook.New(lib)
	session := companion.NewSession(opts.Companion, lib, opts.Logger)

	v := &Viewer{
		library:   lib,
		book:      book,
		keys:      flipbook.NewKeyHub(),
		companion: opts.Companion,
		session:   session,
		logger:    opts.Logger.With("component", "viewer"),
		metrics:   opts.Metrics,
		layout:    opts.Layout,
	}

	book.OnPageChange(session.SetPage)
	v.nav = flipbook.NewNavigator(book, v.onStep)
	v.unmount = v.nav.Mount(v.keys)
	return v
}

func (v *Viewer) onStep(s flipbook.Step) {
	if !s.Moved {
		v.logger.Debug("navigation ignored", "source", s.Source, "direction", s.Direction)
		return
	}
	v.metrics.Navigated(s.Source, string(s.Direction), v.book.CurrentSheet(), v.book.TotalSheets())
	v.logger.Debug("page changed", "source", s.Source, "direction", s.Direction, "index", s.Index)
}

// Append adds uploaded pages to the end of the book.
func (v *Viewer) Append(uploads ...library.Upload) ([]flipbook.Page, error) {
	added, err := v.library.Append(uploads...)
	if err != nil {
		return nil, err
	}
	v.metrics.PagesAppended(len(added), v.book.TotalSheets())
	v.logger.Info("pages appended", "count", len(added), "total", v.library.Len())
	return added, nil
}

// LoadDir appends the images in dir.
func (v *Viewer) LoadDir(dir string) ([]flipbook.Page, error) {
	added, err := v.library.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	v.metrics.PagesAppended(len(added), v.book.TotalSheets())
	v.logger.Info("pages loaded", "dir", dir, "count", len(added))
	return added, nil
}

// Layout fits a page to vp. A nil mode picks one from the viewport width.
func (v *Viewer) Layout(vp flipbook.Viewport, mode *flipbook.Mode) flipbook.PageSize {
	cfg := v.LayoutConfig()
	if mode == nil {
		return cfg.Fit(vp)
	}
	return flipbook.FitPageSize(vp, *mode, cfg)
}

// LayoutConfig returns the active layout configuration.
func (v *Viewer) LayoutConfig() flipbook.LayoutConfig {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.layout
}

// SetLayoutConfig replaces the layout configuration after validating it.
func (v *Viewer) SetLayoutConfig(cfg flipbook.LayoutConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.layout = cfg
	return nil
}

func (v *Viewer) Library() *library.Library       { return v.library }
func (v *Viewer) Book() *flipbook.Flipbook        { return v.book }
func (v *Viewer) Navigator() *flipbook.Navigator  { return v.nav }
func (v *Viewer) Keys() *flipbook.KeyHub          { return v.keys }
func (v *Viewer) Companion() *companion.Companion { return v.companion }
func (v *Viewer) Session() *companion.Session     { return v.session }

// Close unmounts the keyboard listener, cancels companion calls and releases
// page images.
func (v *Viewer) Close() {
	v.mu.Lock()
	unmount := v.unmount
	v.unmount = nil
	v.mu.Unlock()

	if unmount != nil {
		unmount()
	}
	v.session.Close()
	v.library.Release()
}
