package flipbook

import (
	"math"
	"testing"
)

func TestFitPageSize_Spread(t *testing.T) {
	cfg := DefaultLayoutConfig()
	cfg.AspectRatio = 0.563
	vp := Viewport{Width: 1024, Height: 768}

	size := FitPageSize(vp, ModeDouble, cfg)

	if float64(size.SpreadWidth()) > 0.95*1024 {
		t.Errorf("spread width = %d, want <= %v", size.SpreadWidth(), 0.95*1024)
	}
	ratio := float64(size.Width) / float64(size.Height)
	// Flooring both sides can move the ratio by at most ~1px over the height.
	if math.Abs(ratio-cfg.AspectRatio) > 1.0/float64(size.Height)+1e-9 {
		t.Errorf("width/height = %v, want %v", ratio, cfg.AspectRatio)
	}
	if size.Mode != ModeDouble {
		t.Errorf("Mode = %q, want double", size.Mode)
	}
}

func TestFitPageSize(t *testing.T) {
	cfg := DefaultLayoutConfig()

	tests := []struct {
		name string
		vp   Viewport
		mode Mode
		want PageSize
	}{
		{
			// height bound: (1080-80)*0.9 = 900, width 506.7
			name: "desktop height bound",
			vp:   Viewport{Width: 1920, Height: 1080},
			mode: ModeDouble,
			want: PageSize{Width: 506, Height: 900, Mode: ModeDouble},
		},
		{
			// 2w = 1013.4 > 0.95*800 = 760, scaled to w=380
			name: "narrow desktop width bound",
			vp:   Viewport{Width: 800, Height: 1080},
			mode: ModeDouble,
			want: PageSize{Width: 380, Height: 674, Mode: ModeDouble},
		},
		{
			// (844-70)*0.95 = 735.3, w = 413.97 <= 0.98*390 = 382.2 fails, scaled
			name: "phone",
			vp:   Viewport{Width: 390, Height: 844},
			mode: ModeSingle,
			want: PageSize{Width: 382, Height: 678, Mode: ModeSingle},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FitPageSize(tt.vp, tt.mode, cfg)
			if got != tt.want {
				t.Errorf("FitPageSize(%+v, %s) = %+v, want %+v", tt.vp, tt.mode, got, tt.want)
			}
		})
	}
}

func TestFitPageSize_DegenerateClamp(t *testing.T) {
	cfg := DefaultLayoutConfig()

	for _, vp := range []Viewport{
		{Width: 0, Height: 0},
		{Width: 100, Height: 50},
		{Width: -20, Height: -300},
		{Width: 1200, Height: 79},
	} {
		for _, mode := range []Mode{ModeSingle, ModeDouble} {
			size := FitPageSize(vp, mode, cfg)
			if size.Width < cfg.MinWidth || size.Height < cfg.MinHeight {
				t.Errorf("FitPageSize(%+v, %s) = %dx%d, below floor %dx%d",
					vp, mode, size.Width, size.Height, cfg.MinWidth, cfg.MinHeight)
			}
			ratio := float64(size.Width) / float64(size.Height)
			if math.Abs(ratio-cfg.AspectRatio) > 0.01 {
				t.Errorf("FitPageSize(%+v, %s) ratio = %v, want %v", vp, mode, ratio, cfg.AspectRatio)
			}
		}
	}
}

func TestFitPageSize_Idempotent(t *testing.T) {
	cfg := DefaultLayoutConfig()
	vp := Viewport{Width: 1366, Height: 768}
	first := cfg.Fit(vp)
	for range 5 {
		if got := cfg.Fit(vp); got != first {
			t.Fatalf("Fit() = %+v, then %+v", first, got)
		}
	}
}

func TestModeFor(t *testing.T) {
	cfg := DefaultLayoutConfig()
	if got := cfg.ModeFor(Viewport{Width: 767, Height: 900}); got != ModeSingle {
		t.Errorf("ModeFor(767) = %s, want single", got)
	}
	if got := cfg.ModeFor(Viewport{Width: 768, Height: 900}); got != ModeDouble {
		t.Errorf("ModeFor(768) = %s, want double", got)
	}
}

func TestLayoutConfig_Validate(t *testing.T) {
	if err := DefaultLayoutConfig().Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	bad := DefaultLayoutConfig()
	bad.AspectRatio = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero aspect ratio")
	}

	bad = DefaultLayoutConfig()
	bad.WidthShareDouble = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("expected error for width share above 1")
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("single"); err != nil || m != ModeSingle {
		t.Errorf("ParseMode(single) = %q, %v", m, err)
	}
	if _, err := ParseMode("triple"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
