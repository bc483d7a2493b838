package flipbook

import (
	"fmt"
	"math"
)

// Mode selects single-page or two-page spread display.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeDouble Mode = "double"
)

// ParseMode parses "single" or "double".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSingle, ModeDouble:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown display mode %q", s)
	}
}

// Viewport is the drawable area in CSS pixels.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// LayoutConfig holds the dimension-fitting parameters.
type LayoutConfig struct {
	// AspectRatio is page width / page height.
	AspectRatio float64 `json:"aspect_ratio"`
	// Breakpoint is the viewport width below which single mode is used.
	Breakpoint float64 `json:"breakpoint"`

	// NavBand is the height reserved for the navigation bar.
	NavBandSingle float64 `json:"nav_band_single"`
	NavBandDouble float64 `json:"nav_band_double"`

	// HeightShare is the fraction of the remaining height given to a page.
	HeightShareSingle float64 `json:"height_share_single"`
	HeightShareDouble float64 `json:"height_share_double"`

	// WidthShare is the fraction of the viewport width the page (single) or
	// spread (double) may occupy.
	WidthShareSingle float64 `json:"width_share_single"`
	WidthShareDouble float64 `json:"width_share_double"`

	// MinWidth and MinHeight floor degenerate results.
	MinWidth  int `json:"min_width"`
	MinHeight int `json:"min_height"`
}

// DefaultLayoutConfig returns parameters tuned for 1689x3000 leaflet pages.
func DefaultLayoutConfig() LayoutConfig {
	return LayoutConfig{
		AspectRatio:       1689.0 / 3000.0,
		Breakpoint:        768,
		NavBandSingle:     70,
		NavBandDouble:     80,
		HeightShareSingle: 0.95,
		HeightShareDouble: 0.90,
		WidthShareSingle:  0.98,
		WidthShareDouble:  0.95,
		MinWidth:          200,
		MinHeight:         300,
	}
}

// Validate checks the configuration for values that cannot produce a layout.
func (c LayoutConfig) Validate() error {
	if c.AspectRatio <= 0 || math.IsInf(c.AspectRatio, 0) || math.IsNaN(c.AspectRatio) {
		return fmt.Errorf("aspect ratio must be positive, got %v", c.AspectRatio)
	}
	for name, share := range map[string]float64{
		"height_share_single": c.HeightShareSingle,
		"height_share_double": c.HeightShareDouble,
		"width_share_single":  c.WidthShareSingle,
		"width_share_double":  c.WidthShareDouble,
	} {
		if share <= 0 || share > 1 {
			return fmt.Errorf("%s must be in (0, 1], got %v", name, share)
		}
	}
	if c.MinWidth < 1 || c.MinHeight < 1 {
		return fmt.Errorf("minimum page size must be at least 1x1, got %dx%d", c.MinWidth, c.MinHeight)
	}
	return nil
}

// PageSize is the fitted size of one page.
type PageSize struct {
	Width  int  `json:"width"`
	Height int  `json:"height"`
	Mode   Mode `json:"mode"`
}

// SpreadWidth is the horizontal space the book occupies.
func (p PageSize) SpreadWidth() int {
	if p.Mode == ModeDouble {
		return p.Width * 2
	}
	return p.Width
}

// ModeFor picks single mode on narrow viewports and spreads otherwise.
func (c LayoutConfig) ModeFor(vp Viewport) Mode {
	if vp.Width < c.Breakpoint {
		return ModeSingle
	}
	return ModeDouble
}

// Fit fits a page to vp using the mode the viewport width implies.
func (c LayoutConfig) Fit(vp Viewport) PageSize {
	return FitPageSize(vp, c.ModeFor(vp), c)
}

// FitPageSize computes the largest page that fits vp in the given mode while
// keeping the page aspect ratio. It is a pure function of its arguments.
func FitPageSize(vp Viewport, mode Mode, cfg LayoutConfig) PageSize {
	navBand, heightShare, widthShare := cfg.NavBandDouble, cfg.HeightShareDouble, cfg.WidthShareDouble
	pagesAcross := 2.0
	if mode == ModeSingle {
		navBand, heightShare, widthShare = cfg.NavBandSingle, cfg.HeightShareSingle, cfg.WidthShareSingle
		pagesAcross = 1
	}

	height := (vp.Height - navBand) * heightShare
	width := height * cfg.AspectRatio

	budget := vp.Width * widthShare
	if needed := width * pagesAcross; needed > budget && needed > 0 {
		width = budget / pagesAcross
		height = width / cfg.AspectRatio
	}

	size := PageSize{
		Width:  int(math.Floor(width)),
		Height: int(math.Floor(height)),
		Mode:   mode,
	}
	return clampPageSize(size, cfg)
}

// clampPageSize replaces sizes below the configured floor with the smallest
// size that meets both floors at the configured aspect ratio.
func clampPageSize(size PageSize, cfg LayoutConfig) PageSize {
	if size.Width >= cfg.MinWidth && size.Height >= cfg.MinHeight {
		return size
	}
	height := math.Max(float64(cfg.MinHeight), float64(cfg.MinWidth)/cfg.AspectRatio)
	width := height * cfg.AspectRatio
	size.Width = int(math.Ceil(width))
	size.Height = int(math.Ceil(height))
	return size
}
