package viewer

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jackzampolin/leaflet/internal/companion"
	"github.com/jackzampolin/leaflet/internal/flipbook"
	"github.com/jackzampolin/leaflet/internal/library"
	"github.com/jackzampolin/leaflet/internal/metrics"
	"github.com/jackzampolin/leaflet/internal/providers"
)

var png = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func uploads(n int) []library.Upload {
	out := make([]library.Upload, n)
	for i := range out {
		out[i] = library.Upload{FileName: "p.png", Data: png}
	}
	return out
}

func newTestViewer(t *testing.T, client providers.LLMClient) (*Viewer, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(false)
	cfg := companion.DefaultConfig()
	cfg.Client = client
	cfg.Metrics = m
	v := New(Options{Companion: companion.New(cfg), Metrics: m})
	t.Cleanup(v.Close)
	return v, m
}

func TestViewer_KeyboardDrivesSession(t *testing.T) {
	v, m := newTestViewer(t, providers.NewMockClient())
	if _, err := v.Append(uploads(6)...); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if n := v.Keys().Dispatch(flipbook.KeyArrowRight); n != 1 {
		t.Fatalf("Dispatch() reached %d listeners, want 1", n)
	}
	v.Keys().Dispatch(flipbook.KeyArrowRight)

	if got := v.Book().CurrentSheet(); got != 2 {
		t.Errorf("CurrentSheet() = %d, want 2", got)
	}
	if got := v.Session().Page(); got != 3 {
		t.Errorf("session page = %d, want 3", got)
	}

	count, err := testutil.GatherAndCount(m.Registry(), "leaflet_viewer_navigation_steps_total")
	if err != nil || count != 1 {
		t.Errorf("navigation series = %d, %v", count, err)
	}
}

func TestViewer_PageChangeClearsAnalysis(t *testing.T) {
	v, _ := newTestViewer(t, providers.NewMockClient())
	v.Append(uploads(4)...)

	if _, err := v.Session().Analyze(context.Background()); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	v.Navigator().PressNext()
	if v.Session().State().Analysis != nil {
		t.Error("analysis kept after page change")
	}
}

func TestViewer_CloseUnmountsKeyboard(t *testing.T) {
	v, _ := newTestViewer(t, nil)
	v.Append(uploads(4)...)

	if v.Keys().Listeners() != 1 {
		t.Fatalf("Listeners() = %d, want 1", v.Keys().Listeners())
	}
	v.Close()
	v.Close()

	if v.Keys().Listeners() != 0 {
		t.Errorf("Listeners() = %d after Close, want 0", v.Keys().Listeners())
	}
	if v.Keys().Dispatch(flipbook.KeyArrowRight) != 0 || v.Book().CurrentSheet() != 0 {
		t.Error("key reached the book after Close")
	}
	if _, _, err := v.Library().Image(0); err == nil {
		t.Error("images not released on Close")
	}
}

func TestViewer_Layout(t *testing.T) {
	v, _ := newTestViewer(t, nil)

	vp := flipbook.Viewport{Width: 1920, Height: 1080}
	if got := v.Layout(vp, nil); got != v.LayoutConfig().Fit(vp) {
		t.Errorf("Layout(nil mode) = %+v", got)
	}
	single := flipbook.ModeSingle
	if got := v.Layout(vp, &single); got.Mode != flipbook.ModeSingle {
		t.Errorf("Layout(single).Mode = %s", got.Mode)
	}

	bad := v.LayoutConfig()
	bad.AspectRatio = 0
	if err := v.SetLayoutConfig(bad); err == nil {
		t.Error("SetLayoutConfig accepted a zero aspect ratio")
	}
}

func TestViewer_CompanionFailureKeepsNavigation(t *testing.T) {
	mock := providers.NewMockClient()
	mock.Respond = func(*providers.ChatRequest) (string, error) {
		return "", context.DeadlineExceeded
	}
	v, _ := newTestViewer(t, mock)
	if _, err := v.Append(uploads(4)...); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	analysis, err := v.Session().Analyze(context.Background())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if analysis.Text != companion.AnalyzeFailed {
		t.Errorf("Analyze() text = %q, want fallback", analysis.Text)
	}

	if !v.Navigator().PressNext() {
		t.Fatal("PressNext() = false after companion failure")
	}
	if got := v.Book().CurrentSheet(); got != 1 {
		t.Errorf("CurrentSheet() = %d, want 1", got)
	}
	if got := v.Session().Page(); got != 1 {
		t.Errorf("session page = %d, want 1", got)
	}
}
